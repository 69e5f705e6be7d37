// Package ratelimit bounds concurrent tool invocations per target using a
// distributed fixed-window counter. Coarse windowing is sufficient because the
// limited unit (a tool invocation) lasts seconds to minutes; precise smoothing
// buys nothing here.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/reconflow/reconflow/pkg/common/logger"
)

// CounterStore is the shared counter backing the limiter. In a distributed
// deployment all orchestrator instances point at the same store, so the window
// counts are global.
type CounterStore interface {
	// Incr atomically increments the counter for key and returns the
	// post-increment value. The counter expires after ttl; a fresh key starts
	// at 1.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter implements fixed-window rate limiting over a CounterStore.
// Distinct keys never interfere; starvation in blocking mode is bounded by the
// window length, since every new window resets capacity.
type Limiter struct {
	store        CounterStore
	pollInterval time.Duration
	logger       *logger.Logger

	// now is injectable for tests.
	now func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPollInterval overrides how often a blocking Acquire re-checks capacity.
func WithPollInterval(d time.Duration) Option {
	return func(l *Limiter) { l.pollInterval = d }
}

// WithNowFunc overrides the clock. Tests use this to pin the window.
func WithNowFunc(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a Limiter over the provided counter store.
func NewLimiter(store CounterStore, log *logger.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:        store,
		pollInterval: 100 * time.Millisecond,
		logger:       log.With("component", "rate_limiter"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var errOverLimit = errors.New("rate limit window exhausted")

// Acquire attempts to take one slot for key within the current window of length
// period. If the post-increment count is within limit the caller may proceed.
// Otherwise, when block is true the call polls with a short backoff until a new
// window frees capacity or the context ends; when block is false it returns
// false immediately.
func (l *Limiter) Acquire(ctx context.Context, key string, limit int64, period time.Duration, block bool) (bool, error) {
	if period <= 0 {
		return false, fmt.Errorf("rate limit period must be positive, got %s", period)
	}

	attempt := func() error {
		// Nanosecond arithmetic keeps sub-second windows valid.
		window := l.now().UnixNano() / int64(period)
		windowKey := fmt.Sprintf("rl:%s:%d", key, window)

		count, err := l.store.Incr(ctx, windowKey, period+time.Second)
		if err != nil {
			return backoff.Permanent(err)
		}
		if count > limit {
			return errOverLimit
		}
		return nil
	}

	if !block {
		err := attempt()
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errOverLimit):
			return false, nil
		default:
			return false, fmt.Errorf("rate limiter counter increment: %w", unwrapPermanent(err))
		}
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(l.pollInterval), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("rate limiter counter increment: %w", unwrapPermanent(err))
	}
	return true, nil
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
