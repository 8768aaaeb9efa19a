package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flashdeck-backend/internal/database"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/srs"
)

type FlashcardRepo struct {
	db DB
}

func NewFlashcardRepo(db DB) *FlashcardRepo {
	return &FlashcardRepo{db: db}
}

// Deck operations

const deckColumns = `id, user_id, title, description, card_count, is_favorite, created_at`

func scanDeck(row pgx.Row) (*models.FlashcardDeck, error) {
	d := &models.FlashcardDeck{}
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.Description, &d.CardCount, &d.IsFavorite, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDeck inserts the deck and its cards in one transaction. On success d
// and cards carry their generated ids.
func (r *FlashcardRepo) CreateDeck(ctx context.Context, d *models.FlashcardDeck, cards []models.Flashcard) error {
	d.ID = uuid.New()

	return database.RunInTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO flashcard_decks (id, user_id, title, description)
			 VALUES ($1, $2, $3, $4) RETURNING created_at`,
			d.ID, d.UserID, d.Title, d.Description,
		).Scan(&d.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert deck: %w", err)
		}

		n, err := insertCards(ctx, tx, d.ID, cards)
		if err != nil {
			return err
		}
		d.CardCount = n
		return nil
	})
}

func (r *FlashcardRepo) GetDeckByID(ctx context.Context, id uuid.UUID) (*models.FlashcardDeck, error) {
	query := `SELECT ` + deckColumns + ` FROM flashcard_decks WHERE id = $1`

	d, err := scanDeck(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

func (r *FlashcardRepo) ListDecksByUser(ctx context.Context, userID uuid.UUID) ([]*models.FlashcardDeck, error) {
	query := `SELECT ` + deckColumns + ` FROM flashcard_decks WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decks := []*models.FlashcardDeck{}
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, err
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

func (r *FlashcardRepo) DeleteDeck(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM flashcard_decks WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleFavorite flips is_favorite and returns the new value.
func (r *FlashcardRepo) ToggleFavorite(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	var favorite bool
	err := r.db.QueryRow(ctx,
		`UPDATE flashcard_decks SET is_favorite = NOT is_favorite
		 WHERE id = $1 AND user_id = $2 RETURNING is_favorite`,
		id, userID,
	).Scan(&favorite)
	if err != nil {
		return false, notFound(err)
	}
	return favorite, nil
}

// Card operations

// CreateCards appends cards to an existing deck and bumps its card_count.
func (r *FlashcardRepo) CreateCards(ctx context.Context, deckID uuid.UUID, cards []models.Flashcard) error {
	return database.RunInTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := insertCards(ctx, tx, deckID, cards)
		return err
	})
}

// insertCards writes new cards with no review history and refreshes the
// deck's card_count. It returns the resulting count.
func insertCards(ctx context.Context, q querier, deckID uuid.UUID, cards []models.Flashcard) (int, error) {
	for i := range cards {
		cards[i].ID = uuid.New()
		cards[i].DeckID = deckID
		cards[i].EaseFactor = srs.DefaultEaseFactor
		cards[i].ReviewCount = 0

		_, err := q.Exec(ctx,
			`INSERT INTO flashcards (id, deck_id, front, back, ease_factor)
			 VALUES ($1, $2, $3, $4, $5)`,
			cards[i].ID, deckID, cards[i].Front, cards[i].Back, cards[i].EaseFactor,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert card: %w", err)
		}
	}

	var count int
	err := q.QueryRow(ctx,
		`UPDATE flashcard_decks
		 SET card_count = (SELECT COUNT(*) FROM flashcards WHERE deck_id = $1)
		 WHERE id = $1 RETURNING card_count`,
		deckID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to update card count: %w", notFound(err))
	}
	return count, nil
}

const cardColumns = `id, deck_id, front, back, review_count, last_reviewed, next_review, ease_factor, created_at`

func (r *FlashcardRepo) GetCardsByDeck(ctx context.Context, deckID uuid.UUID) ([]models.Flashcard, error) {
	query := `SELECT ` + cardColumns + ` FROM flashcards WHERE deck_id = $1 ORDER BY created_at, id`
	return r.queryCards(ctx, query, deckID)
}

// DueCards returns the cards of deckID that were never scheduled or whose
// next review is at or before now. Never-reviewed cards come first, then the
// most overdue.
func (r *FlashcardRepo) DueCards(ctx context.Context, deckID uuid.UUID, now time.Time) ([]models.Flashcard, error) {
	query := `SELECT ` + cardColumns + ` FROM flashcards
		WHERE deck_id = $1 AND (next_review IS NULL OR next_review <= $2)
		ORDER BY next_review ASC NULLS FIRST, created_at, id`
	return r.queryCards(ctx, query, deckID, now)
}

func (r *FlashcardRepo) queryCards(ctx context.Context, query string, args ...any) ([]models.Flashcard, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []models.Flashcard{}
	for rows.Next() {
		c := models.Flashcard{}
		err := rows.Scan(
			&c.ID, &c.DeckID, &c.Front, &c.Back, &c.ReviewCount,
			&c.LastReviewed, &c.NextReview, &c.EaseFactor, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *FlashcardRepo) UpdateCard(ctx context.Context, u models.CardUpdate) error {
	return updateCard(ctx, r.db, u)
}

func updateCard(ctx context.Context, q querier, u models.CardUpdate) error {
	tag, err := q.Exec(ctx,
		`UPDATE flashcards
		 SET review_count = $1, last_reviewed = $2, next_review = $3, ease_factor = $4
		 WHERE id = $5`,
		u.ReviewCount, u.LastReviewed, u.NextReview, u.EaseFactor, u.FlashcardID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FlashcardRepo) GetDeckStats(ctx context.Context, deckID uuid.UUID, now time.Time) (*models.DeckStats, error) {
	stats := &models.DeckStats{}

	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE review_count >= 3 AND ease_factor >= 2.5),
			COUNT(*) FILTER (WHERE review_count > 0 AND (review_count < 3 OR ease_factor < 2.5)),
			COUNT(*) FILTER (WHERE review_count = 0),
			COUNT(*) FILTER (WHERE next_review IS NULL OR next_review <= $2)
		FROM flashcards WHERE deck_id = $1`,
		deckID, now,
	).Scan(&stats.TotalCards, &stats.Mastered, &stats.Learning, &stats.New, &stats.DueNow)
	if err != nil {
		return nil, err
	}

	if stats.TotalCards > 0 {
		stats.MasteryRate = float64(stats.Mastered) / float64(stats.TotalCards) * 100
	}

	return stats, nil
}

// DueSummaries lists, per user and deck, how many previously reviewed cards
// have come due by now. Brand-new cards are not counted.
func (r *FlashcardRepo) DueSummaries(ctx context.Context, now time.Time) ([]models.DueSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.user_id, d.id, d.title, COUNT(*)
		FROM flashcards c
		JOIN flashcard_decks d ON d.id = c.deck_id
		WHERE c.review_count > 0 AND c.next_review <= $1
		GROUP BY d.user_id, d.id, d.title
		ORDER BY d.user_id, d.title`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DueSummary
	for rows.Next() {
		var s models.DueSummary
		if err := rows.Scan(&s.UserID, &s.DeckID, &s.DeckTitle, &s.DueCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
