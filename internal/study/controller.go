package study

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/srs"
)

var (
	ErrInvalidTransition = errors.New("study: action not allowed in current state")
	ErrNoCurrentCard     = errors.New("study: no card is being presented")
	ErrInvalidRating     = errors.New("study: rating must be between 1 and 4")
	ErrPersistence       = errors.New("study: failed to persist rating")
)

// RatingRecord is everything one rating writes. Stores must apply it as a
// single unit: either all three writes land or none do.
type RatingRecord struct {
	Review  models.Review
	Card    models.CardUpdate
	Session models.StudySession
}

type Store interface {
	DueCards(ctx context.Context, deckID uuid.UUID, now time.Time) ([]models.Flashcard, error)
	RecordRating(ctx context.Context, rec RatingRecord) error
}

type Controller struct {
	store     Store
	scheduler *srs.Scheduler
	now       func() time.Time
}

// NewController wires a controller. A nil now defaults to time.Now.
func NewController(store Store, scheduler *srs.Scheduler, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{store: store, scheduler: scheduler, now: now}
}

// Start selects the due cards of deckID once. The returned session is either
// presenting its first card or in StateNoCardsDue; nothing is written.
func (c *Controller) Start(ctx context.Context, userID, deckID uuid.UUID) (Session, error) {
	now := c.now()

	cards, err := c.store.DueCards(ctx, deckID, now)
	if err != nil {
		return Session{}, fmt.Errorf("failed to load due cards: %w", err)
	}

	s := Session{
		ID:        uuid.New(),
		UserID:    userID,
		DeckID:    deckID,
		StartedAt: now,
		State:     StateIdle,
	}

	if len(cards) == 0 {
		s.State = StateNoCardsDue
		return s, nil
	}

	s.Queue = cards
	s.State = StatePresenting
	s.ShownAt = now
	return s, nil
}

// Flip toggles between the front and back of the current card.
func (c *Controller) Flip(s Session) (Session, error) {
	if _, ok := s.Current(); !ok {
		return s, ErrNoCurrentCard
	}

	switch s.State {
	case StatePresenting:
		s.State = StateFlipped
	case StateFlipped, StateFailed:
		s.State = StatePresenting
	default:
		return s, ErrInvalidTransition
	}
	return s, nil
}

// Rate records rating for the current card and advances the session. If the
// store fails, the returned session is in StateFailed on the same card with
// its progress unchanged, and the error wraps ErrPersistence.
func (c *Controller) Rate(ctx context.Context, s Session, rating srs.Rating) (Session, error) {
	if !rating.IsValid() {
		return s, ErrInvalidRating
	}
	if s.State != StateFlipped && s.State != StateFailed {
		return s, ErrInvalidTransition
	}
	card, ok := s.Current()
	if !ok {
		return s, ErrNoCurrentCard
	}

	now := c.now()
	timeTaken := int(now.Sub(s.ShownAt).Seconds())
	if timeTaken < 0 {
		timeTaken = 0
	}
	duration := int(now.Sub(s.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	result := c.scheduler.ComputeNextReview(rating, card.ReviewCount, card.EaseFactor, now)

	scores := append(slices.Clone(s.DifficultyScores), int(rating))
	rec := RatingRecord{
		Review: models.Review{
			ID:          uuid.New(),
			UserID:      s.UserID,
			FlashcardID: card.ID,
			Difficulty:  int(rating),
			TimeTaken:   timeTaken,
			CreatedAt:   now,
		},
		Card: models.CardUpdate{
			FlashcardID:  card.ID,
			ReviewCount:  card.ReviewCount + 1,
			LastReviewed: now,
			NextReview:   result.NextReview,
			EaseFactor:   result.EaseFactor,
		},
		Session: models.StudySession{
			UserID:          s.UserID,
			DeckID:          s.DeckID,
			SessionDate:     sessionDay(s.StartedAt),
			CardsStudied:    s.Completed + 1,
			AverageScore:    mean(scores),
			DurationSeconds: duration,
			UpdatedAt:       now,
		},
	}

	if err := c.store.RecordRating(ctx, rec); err != nil {
		s.State = StateFailed
		s.LastError = err.Error()
		return s, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	next := s
	next.Queue = slices.Clone(s.Queue)
	reviewed := &next.Queue[s.Index]
	reviewed.ReviewCount = rec.Card.ReviewCount
	reviewed.LastReviewed = &rec.Card.LastReviewed
	reviewed.NextReview = &rec.Card.NextReview
	reviewed.EaseFactor = rec.Card.EaseFactor

	next.DifficultyScores = scores
	next.Completed = s.Completed + 1
	next.LastResult = &result
	next.LastError = ""

	if rating.Passed() {
		next.CurrentStreak = s.CurrentStreak + 1
	} else {
		next.CurrentStreak = 0
	}
	next.BestStreak = max(s.BestStreak, next.CurrentStreak)

	next.Index = s.Index + 1
	if next.Index >= len(next.Queue) {
		next.State = StateComplete
	} else {
		next.State = StatePresenting
		next.ShownAt = now
	}

	return next, nil
}

// Summary is what the user sees at the end of a session.
type Summary struct {
	CardsStudied      int       `json:"cards_studied"`
	AverageDifficulty float64   `json:"average_difficulty"`
	BestStreak        int       `json:"best_streak"`
	DurationSeconds   int       `json:"duration_seconds"`
	Remaining         int       `json:"remaining"`
	SuggestedReturn   time.Time `json:"suggested_return"`
}

func (c *Controller) Summarize(s Session) Summary {
	now := c.now()
	avg := s.AverageDifficulty()

	duration := int(now.Sub(s.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	return Summary{
		CardsStudied:      s.Completed,
		AverageDifficulty: avg,
		BestStreak:        s.BestStreak,
		DurationSeconds:   duration,
		Remaining:         s.Remaining(),
		SuggestedReturn:   now.Add(SuggestReturn(avg, s.Completed)),
	}
}

// SuggestReturn is a rough "come back later" estimate for the end-of-session
// screen. It is independent of the per-card schedule.
func SuggestReturn(averageDifficulty float64, cardsStudied int) time.Duration {
	if cardsStudied == 0 {
		return 24 * time.Hour
	}

	var wait time.Duration
	switch {
	case averageDifficulty < 2:
		wait = time.Hour
	case averageDifficulty < 3:
		wait = 4 * time.Hour
	case averageDifficulty < 3.5:
		wait = 12 * time.Hour
	default:
		wait = 24 * time.Hour
	}

	// Long sessions need a longer break.
	if cardsStudied > 50 {
		wait += wait / 2
	}
	return wait
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}
