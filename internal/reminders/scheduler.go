// Package reminders periodically tells users, over the realtime channel, that
// cards they have studied before are due again.
package reminders

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"flashdeck-backend/internal/events"
	"flashdeck-backend/internal/models"
)

const (
	DefaultInterval = 24 * time.Hour
	pollInterval    = 1 * time.Hour
	runTimeout      = 2 * time.Minute
)

type DueSource interface {
	DueSummaries(ctx context.Context, now time.Time) ([]models.DueSummary, error)
}

type Notifier interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

type Scheduler struct {
	source   DueSource
	notifier Notifier
	redis    *redis.Client
	interval time.Duration
	stopChan chan struct{}
}

// NewScheduler builds a scheduler that reminds each user at most once per
// interval.
func NewScheduler(source DueSource, notifier Notifier, client *redis.Client, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		source:   source,
		notifier: notifier,
		redis:    client,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	if s.source == nil || s.notifier == nil || s.redis == nil {
		return
	}

	go s.loop()

	log.Printf("Reminder scheduler started (every %s, at most once per %s per user)", pollInterval, s.interval)
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *Scheduler) loop() {
	// Run on startup as well as by interval.
	s.runOnce(time.Now().UTC())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(time.Now().UTC())
		}
	}
}

func (s *Scheduler) runOnce(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	sent, err := s.Run(ctx, now)
	if err != nil {
		log.Printf("reminders: %v", err)
		return
	}
	if sent > 0 {
		log.Printf("reminders: notified %d users", sent)
	}
}

// Run sends one cards_due digest to every user with due cards who has not
// been reminded within the interval. It returns the number of users notified.
func (s *Scheduler) Run(ctx context.Context, now time.Time) (int, error) {
	summaries, err := s.source.DueSummaries(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due cards: %w", err)
	}

	byUser := groupByUser(summaries)

	sent := 0
	for _, userID := range sortedUsers(byUser) {
		digest := buildDigest(byUser[userID])
		if digest.TotalDue == 0 {
			continue
		}

		claimed, err := s.redis.SetNX(ctx, throttleKey(userID), now.Format(time.RFC3339), s.interval).Result()
		if err != nil {
			log.Printf("reminders: failed to claim throttle for user %s: %v", userID, err)
			continue
		}
		if !claimed {
			continue
		}

		msg := models.WSMessage{Type: events.TypeCardsDue, Payload: digest}
		if err := s.notifier.Publish(ctx, userID, msg); err != nil {
			log.Printf("reminders: failed to notify user %s: %v", userID, err)
			// Release the claim so the next poll retries.
			s.redis.Del(ctx, throttleKey(userID))
			continue
		}
		sent++
	}

	return sent, nil
}

func throttleKey(userID uuid.UUID) string {
	return fmt.Sprintf("reminder:cards_due:%s", userID.String())
}

func groupByUser(summaries []models.DueSummary) map[uuid.UUID][]models.DueSummary {
	byUser := make(map[uuid.UUID][]models.DueSummary)
	for _, s := range summaries {
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}
	return byUser
}

func sortedUsers(byUser map[uuid.UUID][]models.DueSummary) []uuid.UUID {
	users := make([]uuid.UUID, 0, len(byUser))
	for id := range byUser {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users
}

// buildDigest orders decks by due count, largest first.
func buildDigest(summaries []models.DueSummary) events.DueDigest {
	digest := events.DueDigest{Decks: []events.CardsDue{}}
	for _, s := range summaries {
		if s.DueCount <= 0 {
			continue
		}
		digest.TotalDue += s.DueCount
		digest.Decks = append(digest.Decks, events.CardsDue{DeckID: s.DeckID, DeckTitle: s.DeckTitle, DueCount: s.DueCount})
	}
	sort.SliceStable(digest.Decks, func(i, j int) bool {
		return digest.Decks[i].DueCount > digest.Decks[j].DueCount
	})
	return digest
}
