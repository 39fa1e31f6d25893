package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Config
// =============================================================================

// Config controls how often and how long an operation is retried.
type Config struct {
	MaxRetries     int           `json:"maxRetries"`     // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration `json:"initialBackoff"` // Delay before first retry
	MaxBackoff     time.Duration `json:"maxBackoff"`     // Upper bound on backoff duration
	Multiplier     float64       `json:"multiplier"`     // Backoff multiplier (1.0 = fixed interval)
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

// Fixed returns a Config that checks up to retries times, interval apart.
func Fixed(retries int, interval time.Duration) Config {
	return Config{
		MaxRetries:     retries,
		InitialBackoff: interval,
		MaxBackoff:     interval,
		Multiplier:     1.0,
	}
}

// Validate checks that all Config fields are within acceptable ranges.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("retry: MaxRetries must be >= 0")
	}
	if c.InitialBackoff <= 0 {
		return errors.New("retry: InitialBackoff must be > 0")
	}
	if c.MaxBackoff <= 0 {
		return errors.New("retry: MaxBackoff must be > 0")
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

func (c Config) next(backoff time.Duration) time.Duration {
	n := time.Duration(float64(backoff) * c.Multiplier)
	if n > c.MaxBackoff {
		n = c.MaxBackoff
	}
	return n
}

// sleepFunc is replaced in tests.
var sleepFunc = time.Sleep

// =============================================================================
// Polling and retrying
// =============================================================================

// Until evaluates cond, sleeping between checks, until it reports true or the
// attempts run out. It reports whether cond was satisfied. Cancelling ctx stops
// the loop early.
func Until(ctx context.Context, cfg Config, cond func() bool) bool {
	backoff := cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		if cond() {
			return true
		}
		if attempt >= cfg.MaxRetries || ctx.Err() != nil {
			return false
		}
		sleepFunc(backoff)
		backoff = cfg.next(backoff)
	}
}

// Do calls fn until it succeeds, retryable reports false for its error, or the
// retries are exhausted. A nil retryable retries every error.
func Do(ctx context.Context, cfg Config, fn func() error, retryable func(error) bool) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		sleepFunc(backoff)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoff = cfg.next(backoff)
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}
