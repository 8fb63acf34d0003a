package economy

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client connected to it.
func setupRedis(tb testing.TB) *redis.Client {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping Redis container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	if err != nil {
		tb.Fatalf("starting redis container: %v", err)
	}
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			tb.Logf("terminating redis container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(tb, err)

	client := redis.NewClient(&redis.Options{Addr: addr})
	tb.Cleanup(func() { _ = client.Close() })
	require.NoError(tb, client.Ping(ctx).Err())
	return client
}

func TestRedis(t *testing.T) {
	client := setupRedis(t)
	r := NewRedis(slog.New(slog.NewTextHandler(io.Discard, nil)), client, RedisConfig{Scale: 2})
	ctx := context.Background()
	p := uuid.New()

	require.NoError(t, r.Deposit(ctx, p, decimal.NewFromInt(50)))

	t.Run("insufficient funds", func(t *testing.T) {
		err := r.Charge(ctx, uuid.NewString(), p, decimal.NewFromInt(100))
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		bal, err := r.Balance(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "50.00", bal.StringFixed(2))
	})

	t.Run("charge once per transaction", func(t *testing.T) {
		tx := uuid.NewString()
		require.NoError(t, r.Charge(ctx, tx, p, decimal.RequireFromString("10.25")))
		require.NoError(t, r.Charge(ctx, tx, p, decimal.RequireFromString("10.25")))

		bal, err := r.Balance(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "39.75", bal.StringFixed(2))

		require.NoError(t, r.Refund(ctx, tx, p, decimal.RequireFromString("10.25")))
		require.NoError(t, r.Refund(ctx, tx, p, decimal.RequireFromString("10.25")))

		bal, err = r.Balance(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "50.00", bal.StringFixed(2))
	})

	t.Run("refund without charge", func(t *testing.T) {
		require.NoError(t, r.Refund(ctx, uuid.NewString(), p, decimal.NewFromInt(5)))
		bal, err := r.Balance(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "50.00", bal.StringFixed(2))
	})

	t.Run("unknown player", func(t *testing.T) {
		bal, err := r.Balance(ctx, uuid.New())
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
	})
}

func TestRedisRejectsExcessPrecision(t *testing.T) {
	r := NewRedis(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, RedisConfig{Scale: 2})
	err := r.Charge(context.Background(), "tx", uuid.New(), decimal.RequireFromString("0.001"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(slog.New(slog.NewTextHandler(io.Discard, nil)), client, RedisConfig{Scale: 2})
	err := r.Charge(context.Background(), "tx", uuid.New(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrUnavailable)
}
