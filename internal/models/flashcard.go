package models

import (
	"time"

	"github.com/google/uuid"
)

type FlashcardDeck struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CardCount   int       `json:"card_count"`
	IsFavorite  bool      `json:"is_favorite"`
	CreatedAt   time.Time `json:"created_at"`
}

// Flashcard is a single card of a deck. A nil or past NextReview means the
// card is due.
type Flashcard struct {
	ID           uuid.UUID  `json:"id"`
	DeckID       uuid.UUID  `json:"deck_id"`
	Front        string     `json:"front"`
	Back         string     `json:"back"`
	ReviewCount  int        `json:"review_count"`
	LastReviewed *time.Time `json:"last_reviewed"`
	NextReview   *time.Time `json:"next_review"`
	EaseFactor   float64    `json:"ease_factor"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (c *Flashcard) IsDue(now time.Time) bool {
	return c.NextReview == nil || !c.NextReview.After(now)
}

// CardUpdate carries the scheduling fields written back after a review.
type CardUpdate struct {
	FlashcardID  uuid.UUID `json:"flashcard_id"`
	ReviewCount  int       `json:"review_count"`
	LastReviewed time.Time `json:"last_reviewed"`
	NextReview   time.Time `json:"next_review"`
	EaseFactor   float64   `json:"ease_factor"`
}

type CreateDeckRequest struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description *string             `json:"description" validate:"omitempty,max=2000"`
	Cards       []CreateCardRequest `json:"cards" validate:"max=1000,dive"`
}

type CreateCardRequest struct {
	Front string `json:"front" validate:"required"`
	Back  string `json:"back" validate:"required"`
}

type DeckStats struct {
	TotalCards  int     `json:"total_cards"`
	Mastered    int     `json:"mastered"`
	Learning    int     `json:"learning"`
	New         int     `json:"new"`
	DueNow      int     `json:"due_now"`
	MasteryRate float64 `json:"mastery_rate"`
}

// DueSummary is one row of the reminder query: how many cards of a deck are due.
type DueSummary struct {
	UserID    uuid.UUID `json:"user_id"`
	DeckID    uuid.UUID `json:"deck_id"`
	DeckTitle string    `json:"deck_title"`
	DueCount  int       `json:"due_count"`
}
