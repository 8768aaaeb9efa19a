// Package events publishes per-user realtime updates over Redis pub/sub. The
// websocket hub relays them to every open connection of the user.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"flashdeck-backend/internal/models"
)

const (
	TypeCardReviewed    = "card_reviewed"
	TypeSessionComplete = "session_complete"
	TypeCardsDue        = "cards_due"
)

// Channel is the pub/sub channel for one user's updates.
func Channel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

type CardReviewed struct {
	SessionID    uuid.UUID `json:"session_id"`
	DeckID       uuid.UUID `json:"deck_id"`
	FlashcardID  uuid.UUID `json:"flashcard_id"`
	Difficulty   int       `json:"difficulty"`
	EaseFactor   float64   `json:"ease_factor"`
	IntervalDays int       `json:"interval_days"`
	NextReview   time.Time `json:"next_review"`
	Remaining    int       `json:"remaining"`
}

type SessionComplete struct {
	SessionID         uuid.UUID `json:"session_id"`
	DeckID            uuid.UUID `json:"deck_id"`
	CardsStudied      int       `json:"cards_studied"`
	AverageDifficulty float64   `json:"average_difficulty"`
	BestStreak        int       `json:"best_streak"`
	SuggestedReturn   time.Time `json:"suggested_return"`
}

type CardsDue struct {
	DeckID    uuid.UUID `json:"deck_id"`
	DeckTitle string    `json:"deck_title"`
	DueCount  int       `json:"due_count"`
}

// DueDigest is the payload of a cards_due reminder: every deck of the user
// that has reviewed cards waiting.
type DueDigest struct {
	TotalDue int        `json:"total_due"`
	Decks    []CardsDue `json:"decks"`
}

type Publisher struct {
	redis *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{redis: client}
}

// Publish sends msg to the user's channel. A nil publisher drops the message.
func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	if p == nil || p.redis == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", msg.Type, err)
	}
	if err := p.redis.Publish(ctx, Channel(userID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", msg.Type, err)
	}
	return nil
}
