package srs

import "fmt"

// Rating is the user's recall quality for a reviewed card.
type Rating int

// Ratings from total lapse to effortless recall.
const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether r is one of Again..Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// String returns the rating's name, or Rating(n) when r is out of range.
func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// Passed reports whether the rating counts as successful recall.
func (r Rating) Passed() bool {
	return r >= Good
}
