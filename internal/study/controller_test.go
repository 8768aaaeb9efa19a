package study

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/srs"
)

type halfSource struct{}

func (halfSource) Float64() float64 { return 0.5 }

type memoryStore struct {
	cards    map[uuid.UUID]*models.Flashcard
	order    []uuid.UUID
	reviews  []models.Review
	sessions map[string]models.StudySession
	failWith error
	dueCalls int
}

func newMemoryStore(cards ...models.Flashcard) *memoryStore {
	s := &memoryStore{
		cards:    make(map[uuid.UUID]*models.Flashcard),
		sessions: make(map[string]models.StudySession),
	}
	for i := range cards {
		c := cards[i]
		s.cards[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
	return s
}

func (m *memoryStore) DueCards(ctx context.Context, deckID uuid.UUID, now time.Time) ([]models.Flashcard, error) {
	m.dueCalls++
	var due []models.Flashcard
	for _, id := range m.order {
		c := m.cards[id]
		if c.DeckID == deckID && c.IsDue(now) {
			due = append(due, *c)
		}
	}
	return due, nil
}

func (m *memoryStore) RecordRating(ctx context.Context, rec RatingRecord) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.reviews = append(m.reviews, rec.Review)

	c := m.cards[rec.Card.FlashcardID]
	c.ReviewCount = rec.Card.ReviewCount
	last, next := rec.Card.LastReviewed, rec.Card.NextReview
	c.LastReviewed = &last
	c.NextReview = &next
	c.EaseFactor = rec.Card.EaseFactor

	key := rec.Session.UserID.String() + rec.Session.DeckID.String() + rec.Session.SessionDate.Format("2006-01-02")
	m.sessions[key] = rec.Session
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newCard(deckID uuid.UUID, front string) models.Flashcard {
	return models.Flashcard{
		ID:         uuid.New(),
		DeckID:     deckID,
		Front:      front,
		Back:       front + " back",
		EaseFactor: srs.DefaultEaseFactor,
	}
}

func setup(t *testing.T, cards ...models.Flashcard) (*Controller, *memoryStore, *clock) {
	t.Helper()
	store := newMemoryStore(cards...)
	clk := &clock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	ctrl := NewController(store, srs.NewScheduler(halfSource{}, nil), clk.now)
	return ctrl, store, clk
}

func rateCurrent(t *testing.T, ctrl *Controller, s Session, r srs.Rating) Session {
	t.Helper()
	s, err := ctrl.Flip(s)
	require.NoError(t, err)
	s, err = ctrl.Rate(context.Background(), s, r)
	require.NoError(t, err)
	return s
}

func TestStart_NoCardsDue(t *testing.T) {
	deckID := uuid.New()
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	card := newCard(deckID, "later")
	card.NextReview = &future

	ctrl, store, _ := setup(t, card)

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)
	assert.Equal(t, StateNoCardsDue, s.State)
	assert.True(t, s.Finished())
	assert.Empty(t, store.reviews)
	assert.Empty(t, store.sessions)

	_, err = ctrl.Flip(s)
	assert.ErrorIs(t, err, ErrNoCurrentCard)
}

func TestStart_SelectsDueCardsOnce(t *testing.T) {
	deckID := uuid.New()
	past := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	soon := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

	fresh := newCard(deckID, "fresh")
	overdue := newCard(deckID, "overdue")
	overdue.NextReview = &past
	notYet := newCard(deckID, "not yet")
	notYet.NextReview = &soon
	otherDeck := newCard(uuid.New(), "other deck")

	ctrl, store, clk := setup(t, fresh, overdue, notYet, otherDeck)

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)
	require.Len(t, s.Queue, 2)
	assert.Equal(t, StatePresenting, s.State)
	assert.Equal(t, "fresh", s.Queue[0].Front)
	assert.Equal(t, "overdue", s.Queue[1].Front)

	// notYet becomes due mid-session but the queue is fixed.
	clk.advance(time.Hour)
	s = rateCurrent(t, ctrl, s, srs.Good)
	s = rateCurrent(t, ctrl, s, srs.Good)
	assert.Equal(t, StateComplete, s.State)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, store.dueCalls)
}

func TestFlip_IsReversible(t *testing.T) {
	deckID := uuid.New()
	ctrl, store, _ := setup(t, newCard(deckID, "a"))

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)

	s, err = ctrl.Flip(s)
	require.NoError(t, err)
	assert.Equal(t, StateFlipped, s.State)

	s, err = ctrl.Flip(s)
	require.NoError(t, err)
	assert.Equal(t, StatePresenting, s.State)
	assert.Empty(t, store.reviews)
}

func TestRate_RequiresFlippedCard(t *testing.T) {
	deckID := uuid.New()
	ctrl, store, _ := setup(t, newCard(deckID, "a"))

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)

	_, err = ctrl.Rate(context.Background(), s, srs.Good)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, store.reviews)
}

func TestRate_RejectsOutOfRangeRating(t *testing.T) {
	deckID := uuid.New()
	ctrl, store, _ := setup(t, newCard(deckID, "a"))

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)
	s, err = ctrl.Flip(s)
	require.NoError(t, err)

	for _, r := range []srs.Rating{0, 5, -1} {
		_, err = ctrl.Rate(context.Background(), s, r)
		assert.ErrorIs(t, err, ErrInvalidRating)
	}
	assert.Empty(t, store.reviews)
}

func TestRate_PersistsReviewCardAndSession(t *testing.T) {
	deckID := uuid.New()
	userID := uuid.New()
	card := newCard(deckID, "a")
	ctrl, store, clk := setup(t, card)

	s, err := ctrl.Start(context.Background(), userID, deckID)
	require.NoError(t, err)
	start := clk.now()

	clk.advance(12 * time.Second)
	s = rateCurrent(t, ctrl, s, srs.Good)

	require.Len(t, store.reviews, 1)
	review := store.reviews[0]
	assert.Equal(t, userID, review.UserID)
	assert.Equal(t, card.ID, review.FlashcardID)
	assert.Equal(t, 3, review.Difficulty)
	assert.Equal(t, 12, review.TimeTaken)

	stored := store.cards[card.ID]
	assert.Equal(t, 1, stored.ReviewCount)
	assert.InDelta(t, 2.36, stored.EaseFactor, 1e-9)
	require.NotNil(t, stored.LastReviewed)
	assert.True(t, stored.LastReviewed.Equal(start.Add(12*time.Second)))
	require.NotNil(t, stored.NextReview)
	assert.True(t, stored.NextReview.Equal(start.Add(12*time.Second).AddDate(0, 0, 1)))

	require.Len(t, store.sessions, 1)
	for _, ss := range store.sessions {
		assert.Equal(t, 1, ss.CardsStudied)
		assert.Equal(t, 3.0, ss.AverageScore)
		assert.Equal(t, 12, ss.DurationSeconds)
		assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), ss.SessionDate)
	}

	require.NotNil(t, s.LastResult)
	assert.Equal(t, 1, s.LastResult.IntervalDays)
	assert.Equal(t, StateComplete, s.State)
}

func TestRate_ReviewCountGrowsByOnePerRating(t *testing.T) {
	deckID := uuid.New()
	card := newCard(deckID, "a")
	ctrl, store, clk := setup(t, card)

	for i := 1; i <= 4; i++ {
		s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
		require.NoError(t, err)
		require.Len(t, s.Queue, 1, "round %d", i)

		rateCurrent(t, ctrl, s, srs.Again)
		assert.Equal(t, i, store.cards[card.ID].ReviewCount)

		// Again always schedules the next day.
		clk.advance(48 * time.Hour)
	}
}

func TestRate_UsesPreReviewHistory(t *testing.T) {
	deckID := uuid.New()
	card := newCard(deckID, "a")
	card.ReviewCount = 1
	ctrl, store, _ := setup(t, card)

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)
	s = rateCurrent(t, ctrl, s, srs.Easy)

	assert.Equal(t, 6, s.LastResult.BaseIntervalDays)
	assert.Equal(t, 2, store.cards[card.ID].ReviewCount)
	assert.InDelta(t, 2.5, store.cards[card.ID].EaseFactor, 1e-9)
}

func TestRate_AggregatesSession(t *testing.T) {
	deckID := uuid.New()
	cards := []models.Flashcard{newCard(deckID, "a"), newCard(deckID, "b"), newCard(deckID, "c"), newCard(deckID, "d")}
	ctrl, store, clk := setup(t, cards...)

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)

	ratings := []srs.Rating{srs.Good, srs.Easy, srs.Again, srs.Good}
	var presented []uuid.UUID
	for _, r := range ratings {
		cur, ok := s.Current()
		require.True(t, ok)
		presented = append(presented, cur.ID)

		clk.advance(5 * time.Second)
		s = rateCurrent(t, ctrl, s, r)
	}

	assert.Equal(t, StateComplete, s.State)
	assert.Equal(t, []int{3, 4, 1, 3}, s.DifficultyScores)
	assert.Equal(t, 2.75, s.AverageDifficulty())
	assert.Equal(t, 2, s.BestStreak)
	assert.Equal(t, 1, s.CurrentStreak)

	for i, rv := range store.reviews {
		assert.Equal(t, presented[i], rv.FlashcardID)
		assert.Equal(t, cards[i].ID, rv.FlashcardID)
	}

	for _, ss := range store.sessions {
		assert.Equal(t, 4, ss.CardsStudied)
		assert.Equal(t, 2.75, ss.AverageScore)
		assert.Equal(t, 20, ss.DurationSeconds)
	}

	sum := ctrl.Summarize(s)
	assert.Equal(t, 4, sum.CardsStudied)
	assert.Equal(t, 2.75, sum.AverageDifficulty)
	assert.Equal(t, 0, sum.Remaining)
	assert.Equal(t, clk.now().Add(4*time.Hour), sum.SuggestedReturn)
}

func TestRate_PersistenceFailureKeepsProgress(t *testing.T) {
	deckID := uuid.New()
	ctrl, store, _ := setup(t, newCard(deckID, "a"), newCard(deckID, "b"))

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)
	s = rateCurrent(t, ctrl, s, srs.Good)
	s, err = ctrl.Flip(s)
	require.NoError(t, err)

	dbErr := errors.New("connection reset")
	store.failWith = dbErr

	failed, err := ctrl.Rate(context.Background(), s, srs.Hard)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, StateFailed, failed.State)
	assert.Equal(t, "connection reset", failed.LastError)
	assert.Equal(t, 1, failed.Completed)
	assert.Equal(t, []int{3}, failed.DifficultyScores)
	assert.Equal(t, 1, failed.Index)
	assert.Len(t, store.reviews, 1)

	store.failWith = nil
	done, err := ctrl.Rate(context.Background(), failed, srs.Hard)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, done.State)
	assert.Empty(t, done.LastError)
	assert.Equal(t, []int{3, 2}, done.DifficultyScores)
	assert.Len(t, store.reviews, 2)
}

func TestRate_DoesNotMutateInputSession(t *testing.T) {
	deckID := uuid.New()
	ctrl, _, _ := setup(t, newCard(deckID, "a"), newCard(deckID, "b"))

	s, err := ctrl.Start(context.Background(), uuid.New(), deckID)
	require.NoError(t, err)
	flipped, err := ctrl.Flip(s)
	require.NoError(t, err)

	_, err = ctrl.Rate(context.Background(), flipped, srs.Good)
	require.NoError(t, err)

	assert.Equal(t, 0, flipped.Queue[0].ReviewCount)
	assert.Empty(t, flipped.DifficultyScores)
	assert.Equal(t, 0, flipped.Index)
}

func TestSuggestReturn(t *testing.T) {
	tests := []struct {
		name  string
		avg   float64
		count int
		want  time.Duration
	}{
		{"nothing studied", 0, 0, 24 * time.Hour},
		{"struggling", 1.5, 10, time.Hour},
		{"mixed", 2.5, 10, 4 * time.Hour},
		{"mostly good", 3.2, 10, 12 * time.Hour},
		{"easy", 3.8, 10, 24 * time.Hour},
		{"long easy session", 3.8, 80, 36 * time.Hour},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SuggestReturn(tc.avg, tc.count))
		})
	}
}
