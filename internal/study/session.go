// Package study drives a flashcard study session: it fixes the due set when the
// session starts, presents cards one at a time, applies ratings through the
// srs scheduler and persists each rating as one atomic write.
package study

import (
	"time"

	"github.com/google/uuid"

	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/srs"
)

type State string

const (
	StateIdle       State = "idle"
	StatePresenting State = "presenting" // front of the current card
	StateFlipped    State = "flipped"    // back of the current card
	StateComplete   State = "complete"
	StateNoCardsDue State = "no_cards_due"
	StateFailed     State = "failed" // last rating was not persisted; retry allowed
)

// Session is the whole in-flight state of one study session. Controller
// methods take a Session and return the next one; they never keep it.
type Session struct {
	ID               uuid.UUID          `json:"id"`
	UserID           uuid.UUID          `json:"user_id"`
	DeckID           uuid.UUID          `json:"deck_id"`
	StartedAt        time.Time          `json:"started_at"`
	ShownAt          time.Time          `json:"shown_at"`
	Queue            []models.Flashcard `json:"queue"`
	Index            int                `json:"index"`
	State            State              `json:"state"`
	Completed        int                `json:"completed"`
	DifficultyScores []int              `json:"difficulty_scores"`
	CurrentStreak    int                `json:"current_streak"`
	BestStreak       int                `json:"best_streak"`
	LastResult       *srs.Result        `json:"last_result,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
}

// Current returns the card being presented, if any.
func (s Session) Current() (models.Flashcard, bool) {
	switch s.State {
	case StatePresenting, StateFlipped, StateFailed:
	default:
		return models.Flashcard{}, false
	}
	if s.Index < 0 || s.Index >= len(s.Queue) {
		return models.Flashcard{}, false
	}
	return s.Queue[s.Index], true
}

// Remaining is the number of cards not yet rated.
func (s Session) Remaining() int {
	if n := len(s.Queue) - s.Index; n > 0 {
		return n
	}
	return 0
}

func (s Session) Finished() bool {
	return s.State == StateComplete || s.State == StateNoCardsDue
}

// AverageDifficulty is the plain mean of every rating given in the session.
func (s Session) AverageDifficulty() float64 {
	return mean(s.DifficultyScores)
}

// sessionDay is the calendar day (UTC) a session is aggregated under.
func sessionDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
