package retry

import (
	"context"
	"time"
)

const (
	defaultMaxRetries  = 3
	defaultBaseWait    = time.Second
	defaultMaxWait     = time.Minute
	defaultBackoffRate = 1.0
)

type config struct {
	maxRetries  int
	baseWait    time.Duration
	maxWait     time.Duration
	backoffRate float64
}

// Option configures a call to Do.
type Option func(*config)

// WithMaxRetries sets how many times a failed call is retried. The call is
// always attempted at least once.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithBaseWait sets the delay before the first retry.
func WithBaseWait(d time.Duration) Option {
	return func(c *config) { c.baseWait = d }
}

// WithMaxWait caps the delay between retries.
func WithMaxWait(d time.Duration) Option {
	return func(c *config) { c.maxWait = d }
}

// WithBackoffRate sets the multiplier applied to the wait after each retry.
// The default rate of 1.0 gives a fixed delay.
func WithBackoffRate(rate float64) Option {
	return func(c *config) { c.backoffRate = rate }
}

// Do invokes fn, retrying recoverable failures up to the configured limit.
// Non-recoverable errors (per IsRecoverable) stop retries immediately. The
// last error is returned once retries are exhausted.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	cfg := &config{
		maxRetries:  defaultMaxRetries,
		baseWait:    defaultBaseWait,
		maxWait:     defaultMaxWait,
		backoffRate: defaultBackoffRate,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.backoffRate < 1.0 {
		cfg.backoffRate = 1.0
	}

	wait := cfg.baseWait
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRecoverable(err) {
			return err
		}
		if attempt >= cfg.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * cfg.backoffRate)
		if wait > cfg.maxWait {
			wait = cfg.maxWait
		}
	}
}
