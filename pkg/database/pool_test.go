package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noWait(int) time.Duration { return 0 }

func TestRetryBackoff_ExponentialWithJitter(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := defaultRetryBaseWait << attempt
		lo := time.Duration(float64(base) * (1 - retryJitterFraction))
		hi := time.Duration(float64(base) * (1 + retryJitterFraction))

		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "op", nil, noWait, always, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "op", nil, noWait, always, func(context.Context) error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, defaultRetryAttempts, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "op", nil, noWait, isConnectionError, func(context.Context) error {
		calls++
		return errors.New("syntax error at or near")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry(ctx, "op", nil, func(int) time.Duration { return time.Hour }, always,
		func(context.Context) error { return errors.New("down") })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:5432: connection refused")))
	assert.True(t, isConnectionError(errors.New("connection reset by peer")))
	assert.True(t, isConnectionError(errors.New("i/o timeout")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.False(t, isConnectionError(errors.New("syntax error at or near")))
	assert.False(t, isConnectionError(&pgconn.PgError{Code: "42601", Message: "could not connect is not the point"}))
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "auth", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/auth?sslmode=require", cfg.DSN())
}
