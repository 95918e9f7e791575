package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBaseWait = 1 * time.Second
	retryJitterFraction  = 0.25
)

// retryBackoff returns the wait before retrying attempt (0-indexed):
// 1s, 2s, 4s, each with ±25% jitter.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := defaultRetryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- jitter only
	return base + jitter
}

// retry runs fn up to defaultRetryAttempts times while retryable reports the
// error as transient. wait is the backoff function; tests pass a zero one.
func retry(ctx context.Context, what string, logger *slog.Logger, wait func(int) time.Duration,
	retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < defaultRetryAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) || attempt == defaultRetryAttempts-1 {
			break
		}

		d := wait(attempt)
		if logger != nil {
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", defaultRetryAttempts),
				slog.Duration("backoff", d),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during retry: %w", what, ctx.Err())
		case <-time.After(d):
		}
	}
	return err
}

func always(error) bool { return true }
