package repository

import (
	"context"

	"github.com/google/uuid"

	"flashdeck-backend/internal/models"
)

// ReviewRepo appends to the reviews log. Rows are never updated.
type ReviewRepo struct {
	db DB
}

func NewReviewRepo(db DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

func (r *ReviewRepo) Create(ctx context.Context, rv *models.Review) error {
	return insertReview(ctx, r.db, rv)
}

func insertReview(ctx context.Context, q querier, rv *models.Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	_, err := q.Exec(ctx,
		`INSERT INTO reviews (id, user_id, flashcard_id, difficulty, time_taken, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rv.ID, rv.UserID, rv.FlashcardID, rv.Difficulty, rv.TimeTaken, rv.CreatedAt,
	)
	return err
}

// ListByFlashcard returns userID's reviews of a card, newest first.
func (r *ReviewRepo) ListByFlashcard(ctx context.Context, flashcardID, userID uuid.UUID, limit int) ([]models.Review, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, flashcard_id, difficulty, time_taken, created_at
		 FROM reviews WHERE flashcard_id = $1 AND user_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		flashcardID, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var rv models.Review
		if err := rows.Scan(&rv.ID, &rv.UserID, &rv.FlashcardID, &rv.Difficulty, &rv.TimeTaken, &rv.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}
