package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flashdeck-backend/internal/database"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/study"
)

// Store backs the study controller.
type Store struct {
	db    DB
	cards *FlashcardRepo
}

func NewStore(db DB) *Store {
	return &Store{db: db, cards: NewFlashcardRepo(db)}
}

func (s *Store) DueCards(ctx context.Context, deckID uuid.UUID, now time.Time) ([]models.Flashcard, error) {
	return s.cards.DueCards(ctx, deckID, now)
}

// RecordRating inserts the review, updates the card and upserts the daily
// aggregate in one transaction.
func (s *Store) RecordRating(ctx context.Context, rec study.RatingRecord) error {
	return database.RunInTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertReview(ctx, tx, &rec.Review); err != nil {
			return fmt.Errorf("failed to insert review: %w", err)
		}
		if err := updateCard(ctx, tx, rec.Card); err != nil {
			return fmt.Errorf("failed to update card %s: %w", rec.Card.FlashcardID, err)
		}
		if err := upsertSession(ctx, tx, rec.Session); err != nil {
			return fmt.Errorf("failed to upsert study session: %w", err)
		}
		return nil
	})
}
