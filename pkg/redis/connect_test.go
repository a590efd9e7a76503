package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/redis"
)

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("connects and reports healthy", func(t *testing.T) {
		srv := miniredis.RunT(t)
		client, err := redis.Connect(ctx, redis.Config{
			ConnectionURL:  "redis://" + srv.Addr() + "/0",
			RetryAttempts:  1,
			ConnectTimeout: time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		assert.NoError(t, redis.Healthcheck(client)(ctx))

		srv.Close()
		assert.ErrorIs(t, redis.Healthcheck(client)(ctx), redis.ErrHealthcheckFailed)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := redis.Connect(ctx, redis.Config{ConnectionURL: "mysql://nope"})
		assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
	})

	t.Run("server never ready", func(t *testing.T) {
		srv := miniredis.RunT(t)
		addr := srv.Addr()
		srv.Close()

		_, err := redis.Connect(ctx, redis.Config{
			ConnectionURL:  "redis://" + addr + "/0",
			RetryAttempts:  2,
			RetryInterval:  10 * time.Millisecond,
			ConnectTimeout: time.Second,
		})
		assert.ErrorIs(t, err, redis.ErrRedisNotReady)
	})
}
