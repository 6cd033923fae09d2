package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/accessly/accessly/pkg/store"
)

// Session is a server-side session record. Only the opaque sid travels in
// the cookie; expiry is enforced at lookup time.
type Session struct {
	SID       string          `json:"sid"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SessionStore keeps session records in Redis with a TTL matching their
// expiry, so abandoned sessions age out on their own.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a session store with the given session lifetime
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(sid string) string {
	return "session:" + sid
}

// Create starts a new session bound to a user and returns it.
// This is the login side effect: the session records the user id.
func (s *SessionStore) Create(ctx context.Context, userID string) (*Session, error) {
	session := &Session{
		SID:       uuid.New().String(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.ttl),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.SID), payload, s.ttl).Err(); err != nil {
		return nil, store.Transient(err)
	}

	return session, nil
}

// Get retrieves a session by sid. Expired or missing sessions both return
// store.ErrNotFound; the expiry check does not trust the TTL alone.
func (s *SessionStore) Get(ctx context.Context, sid string) (*Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(sid)).Result()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Transient(err)
	}

	var session Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		// Stale record the TTL has not collected yet
		s.client.Del(ctx, sessionKey(sid))
		return nil, store.ErrNotFound
	}

	return &session, nil
}

// Destroy removes the whole session record. Logout uses this rather than
// clearing fields so no stale partial state can persist.
func (s *SessionStore) Destroy(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return store.Transient(err)
	}
	return nil
}
