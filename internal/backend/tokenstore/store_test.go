package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"studygenie/pkg/platform/sentinel"
)

// TokenStoreSuite runs the store contract against both implementations.
type TokenStoreSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	now   time.Time
	store func() Store
}

func TestInMemoryTokenStoreSuite(t *testing.T) {
	s := &TokenStoreSuite{}
	s.store = func() Store {
		return NewInMemory().WithClock(func() time.Time { return s.now })
	}
	suite.Run(t, s)
}

func TestRedisTokenStoreSuite(t *testing.T) {
	s := &TokenStoreSuite{}
	s.store = func() Store {
		client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
		s.T().Cleanup(func() { _ = client.Close() })
		return NewRedis(client, "laptop")
	}
	suite.Run(t, s)
}

func (s *TokenStoreSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.T().Cleanup(mr.Close)
}

// advance moves both clocks: the injected one and miniredis' TTL clock.
func (s *TokenStoreSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
	s.mr.FastForward(d)
}

func (s *TokenStoreSuite) TestLoadWithoutToken() {
	_, err := s.store().Load(context.Background())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *TokenStoreSuite) TestSaveLoadClear() {
	ctx := context.Background()
	store := s.store()

	s.Require().NoError(store.Save(ctx, "token-1", time.Hour))
	got, err := store.Load(ctx)
	s.Require().NoError(err)
	s.Equal("token-1", got)

	s.Require().NoError(store.Save(ctx, "token-2", time.Hour))
	got, err = store.Load(ctx)
	s.Require().NoError(err)
	s.Equal("token-2", got)

	s.Require().NoError(store.Clear(ctx))
	_, err = store.Load(ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(store.Clear(ctx), "clear is idempotent")
}

func (s *TokenStoreSuite) TestTokenExpires() {
	ctx := context.Background()
	store := s.store()

	s.Require().NoError(store.Save(ctx, "short-lived", time.Minute))
	s.advance(2 * time.Minute)

	_, err := store.Load(ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *TokenStoreSuite) TestZeroTTLNeverExpires() {
	ctx := context.Background()
	store := s.store()

	s.Require().NoError(store.Save(ctx, "forever", 0))
	s.advance(24 * time.Hour)

	got, err := store.Load(ctx)
	s.Require().NoError(err)
	s.Equal("forever", got)
}
