package retry

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

// Config holds the configuration for retrying operations
type Config struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	Logger      logger.Logger

	// ShouldRetry classifies errors; nil means pkg/errors.IsRetryable
	ShouldRetry func(error) bool
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = apperrors.IsRetryable
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled by context: %w", err)
		}

		err := fn(ctx)

		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			log.Warn("Non-retryable error encountered, giving up", "error", err, "attempt", attempt)
			return err
		}

		if attempt == maxAttempts {
			break
		}

		var wait time.Duration
		if cfg.Backoff != nil {
			wait = cfg.Backoff.NextBackoff(attempt)
		}

		log.Info("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"backoff", wait)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d retry attempts failed, last error: %w", maxAttempts, lastErr)
}
