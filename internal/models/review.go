package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is an append-only audit record of one rating event.
type Review struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	FlashcardID uuid.UUID `json:"flashcard_id"`
	Difficulty  int       `json:"difficulty"` // 1=Again, 2=Hard, 3=Good, 4=Easy
	TimeTaken   int       `json:"time_taken"` // seconds
	CreatedAt   time.Time `json:"created_at"`
}
