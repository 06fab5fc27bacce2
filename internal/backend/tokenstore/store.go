// Package tokenstore persists the session token of one device between process
// runs, the way a browser keeps it in local storage.
package tokenstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studygenie/pkg/platform/sentinel"
)

// Store holds at most one session token.
//
// Error Contract:
// - Load returns sentinel.ErrNotFound when no token is stored or it expired
// - Save replaces any stored token; ttl <= 0 means no expiry
// - Clear is idempotent
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// InMemory keeps the token in process memory for tests and memory mode.
type InMemory struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	clock     func() time.Time
}

// NewInMemory constructs an empty in-memory token store.
func NewInMemory() *InMemory {
	return &InMemory{clock: time.Now}
}

// WithClock overrides the clock used for expiry checks.
func (s *InMemory) WithClock(clock func() time.Time) *InMemory {
	s.clock = clock
	return s
}

func (s *InMemory) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", fmt.Errorf("session token: %w", sentinel.ErrNotFound)
	}
	if !s.expiresAt.IsZero() && !s.clock().Before(s.expiresAt) {
		return "", fmt.Errorf("session token: %w", sentinel.ErrNotFound)
	}
	return s.token, nil
}

func (s *InMemory) Save(_ context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = time.Time{}
	if ttl > 0 {
		s.expiresAt = s.clock().Add(ttl)
	}
	return nil
}

func (s *InMemory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
	return nil
}
