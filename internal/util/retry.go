package util

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	Multiplier     float64       // Backoff multiplier
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// QuickRetryConfig returns a configuration for quick retries, suited to
// per-operation transfer attempts inside the daemon loop
func QuickRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// ShouldRetryFunc determines if an error should trigger a retry
type ShouldRetryFunc func(error) bool

// DefaultShouldRetry retries every non-nil error
func DefaultShouldRetry(err error) bool {
	return err != nil
}

// Retry executes a function with exponential backoff retry logic
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc, shouldRetry ShouldRetryFunc) error {
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				slog.Debug("Retry succeeded", "attempt", attempt+1)
			}
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			slog.Debug("Error not retryable", "error", err)
			return err
		}

		if attempt >= config.MaxRetries {
			slog.Debug("Max retries exhausted", "attempts", attempt+1, "error", err)
			break
		}

		slog.Debug("Operation failed, retrying",
			"attempt", attempt+1,
			"maxRetries", config.MaxRetries,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-time.After(backoff):
			// Continue to next retry
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
