package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"studygenie/pkg/platform/sentinel"
)

const (
	// Redis key prefix for device session tokens
	sessionTokenKeyPrefix = "studygenie:session:"
)

// Redis stores the token under a device-scoped key so several devices can share
// one Redis without clobbering each other.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis constructs a Redis-backed token store for device.
func NewRedis(client *redis.Client, device string) *Redis {
	return &Redis{
		client: client,
		key:    sessionTokenKeyPrefix + device,
	}
}

func (s *Redis) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("session token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load session token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return token, nil
}

// Save uses SET with expiry so the key disappears together with the session.
func (s *Redis) Save(ctx context.Context, token string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("save session token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *Redis) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}
