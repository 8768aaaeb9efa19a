package models

import (
	"time"

	"github.com/google/uuid"
)

// StudySession is the per user, deck and day aggregate. Writes for the same
// key replace the previous values.
type StudySession struct {
	UserID          uuid.UUID `json:"user_id"`
	DeckID          uuid.UUID `json:"deck_id"`
	SessionDate     time.Time `json:"session_date"`
	CardsStudied    int       `json:"cards_studied"`
	AverageScore    float64   `json:"average_score"`
	DurationSeconds int       `json:"duration_seconds"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RateCardRequest struct {
	Difficulty int `json:"difficulty" validate:"required,min=1,max=4"`
}
