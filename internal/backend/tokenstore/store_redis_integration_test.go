//go:build integration

package tokenstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"studygenie/internal/backend/tokenstore"
	"studygenie/pkg/platform/sentinel"
	"studygenie/pkg/testutil/containers"
)

type RedisTokenStoreIntegrationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisTokenStoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTokenStoreIntegrationSuite))
}

func (s *RedisTokenStoreIntegrationSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisTokenStoreIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisTokenStoreIntegrationSuite) TestDevicesAreIsolated() {
	ctx := context.Background()
	laptop := tokenstore.NewRedis(s.redis.Client, "laptop")
	phone := tokenstore.NewRedis(s.redis.Client, "phone")

	s.Require().NoError(laptop.Save(ctx, "laptop-token", time.Hour))
	_, err := phone.Load(ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	got, err := laptop.Load(ctx)
	s.Require().NoError(err)
	s.Equal("laptop-token", got)
}

func (s *RedisTokenStoreIntegrationSuite) TestClosedClientIsUnavailable() {
	client := s.redis.NewClient(s.T())
	store := tokenstore.NewRedis(client, "laptop")
	s.Require().NoError(client.Close())

	_, err := store.Load(context.Background())
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)
}
