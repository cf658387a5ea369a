package worker

import (
	"context"
	"time"

	"busticket/internal/config"
)

const (
	defaultInitialDelay = time.Second
	defaultBackoff      = 2.0
)

// RetryPolicy is the exponential backoff applied between sink deliveries.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: defaultBackoff,
	}
}

// NextDelay is the pause before retrying after the given 1-based attempt.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := r.InitialDelay
	if delay <= 0 {
		delay = defaultInitialDelay
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = defaultBackoff
	}

	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * factor)
		if r.MaxDelay > 0 && delay >= r.MaxDelay {
			return r.MaxDelay
		}
		if delay <= 0 {
			// overflow
			return r.ceiling()
		}
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

func (r RetryPolicy) ceiling() time.Duration {
	if r.MaxDelay > 0 {
		return r.MaxDelay
	}
	return time.Hour
}

// Wait blocks for NextDelay(attempt) unless ctx ends first.
func (r RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(r.NextDelay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Exhausted reports whether attempt has used up MaxRetries. Zero retries forever.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return r.MaxRetries > 0 && attempt >= r.MaxRetries
}
