// Package sessionstore keeps in-flight study sessions in Redis between requests.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"flashdeck-backend/internal/study"
)

const (
	DefaultTTL = 12 * time.Hour

	// LockTTL bounds how long a crashed request can hold a session.
	LockTTL = 30 * time.Second
)

var (
	ErrNotFound  = errors.New("study session not found")
	ErrForbidden = errors.New("study session belongs to another user")
	ErrLocked    = errors.New("study session is busy with another request")
)

// unlockScript deletes the lock only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: client, ttl: ttl}
}

func key(id uuid.UUID) string {
	return fmt.Sprintf("study_session:%s", id.String())
}

func lockKey(id uuid.UUID) string {
	return fmt.Sprintf("study_session:%s:lock", id.String())
}

// Save writes s and restarts its TTL.
func (st *Store) Save(ctx context.Context, s study.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode study session: %w", err)
	}
	if err := st.redis.Set(ctx, key(s.ID), data, st.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save study session: %w", err)
	}
	return nil
}

// Get loads session id for userID. A session owned by someone else is
// reported as ErrForbidden.
func (st *Store) Get(ctx context.Context, id, userID uuid.UUID) (study.Session, error) {
	data, err := st.redis.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return study.Session{}, ErrNotFound
	}
	if err != nil {
		return study.Session{}, fmt.Errorf("failed to load study session: %w", err)
	}

	var s study.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return study.Session{}, fmt.Errorf("failed to decode study session: %w", err)
	}
	if s.UserID != userID {
		return study.Session{}, ErrForbidden
	}
	return s, nil
}

func (st *Store) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := st.Get(ctx, id, userID); err != nil {
		return err
	}
	if err := st.redis.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete study session: %w", err)
	}
	return nil
}

// Lock claims session id for one read-modify-write cycle. It fails fast with
// ErrLocked while another request holds it. The returned unlock releases the
// claim and is safe to call after the request context is done.
func (st *Store) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	token := uuid.NewString()
	ok, err := st.redis.SetNX(ctx, lockKey(id), token, LockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock study session: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	unlock := func() {
		if err := unlockScript.Run(context.WithoutCancel(ctx), st.redis, []string{lockKey(id)}, token).Err(); err != nil {
			log.Printf("release lock on study session %s: %v", id, err)
		}
	}
	return unlock, nil
}
