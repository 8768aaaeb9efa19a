package repository

import (
	"context"

	"github.com/google/uuid"

	"flashdeck-backend/internal/models"
)

type StudySessionRepo struct {
	db DB
}

func NewStudySessionRepo(db DB) *StudySessionRepo {
	return &StudySessionRepo{db: db}
}

// Upsert writes the aggregate for (user, deck, day). A second write for the
// same key replaces the counters rather than adding to them.
func (r *StudySessionRepo) Upsert(ctx context.Context, s models.StudySession) error {
	return upsertSession(ctx, r.db, s)
}

func upsertSession(ctx context.Context, q querier, s models.StudySession) error {
	_, err := q.Exec(ctx, `
		INSERT INTO study_sessions (user_id, deck_id, session_date, cards_studied, average_score, duration_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, deck_id, session_date) DO UPDATE
		SET cards_studied = EXCLUDED.cards_studied,
			average_score = EXCLUDED.average_score,
			duration_seconds = EXCLUDED.duration_seconds,
			updated_at = EXCLUDED.updated_at
	`, s.UserID, s.DeckID, s.SessionDate, s.CardsStudied, s.AverageScore, s.DurationSeconds, s.UpdatedAt)
	return err
}

// ListByUser returns the most recent aggregates of a user, newest day first.
func (r *StudySessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.StudySession, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}

	rows, err := r.db.Query(ctx, `
		SELECT user_id, deck_id, session_date, cards_studied, average_score, duration_seconds, updated_at
		FROM study_sessions
		WHERE user_id = $1
		ORDER BY session_date DESC, updated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.StudySession{}
	for rows.Next() {
		var s models.StudySession
		err := rows.Scan(&s.UserID, &s.DeckID, &s.SessionDate, &s.CardsStudied, &s.AverageScore, &s.DurationSeconds, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
