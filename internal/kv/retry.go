package kv

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures WithRetry.
type RetryConfig struct {
	MaxRetries int           // default: 3
	BaseDelay  time.Duration // default: 100ms
	MaxDelay   time.Duration // default: 5s
	Multiplier float64       // default: 2.0
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry calls fn until it succeeds, fails permanently, or attempts run out.
// The returned error is never marked retryable.
func WithRetry(ctx context.Context, logger *zap.Logger, op string, cfg RetryConfig, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("succeeded after retry", zap.String("op", op), zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt < cfg.MaxRetries {
			delay := backoff(attempt, cfg)
			logger.Warn("attempt failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
	}

	logger.Error("all attempts failed", zap.String("op", op), zap.Int("attempts", cfg.MaxRetries+1))
	var storeErr *StoreError
	if errors.As(lastErr, &storeErr) {
		storeErr.Retryable = false
		return lastErr
	}
	return &StoreError{Backend: "retry", Operation: op, Err: lastErr}
}

// backoff is exponential with 80-120% jitter.
func backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	delay *= 0.8 + rand.Float64()*0.4
	return time.Duration(delay)
}
