// Package retry wraps remote calls with bounded exponential backoff.
// Connectivity failures are retried; permission, validation and not-found
// failures are terminal and surface immediately. Total wall-clock time is
// hard-bounded regardless of the attempt budget.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config tunes an Executor. Zero fields take defaults.
type Config struct {
	MaxAttempts     int           // total attempts including the first; default 3
	TotalTimeout    time.Duration // hard wall-clock bound; default 15s
	InitialInterval time.Duration // first backoff sleep; default 1s
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = 15 * time.Second
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	return c
}

// Executor runs operations under one retry policy. Safe for concurrent use.
type Executor struct {
	cfg Config
}

// New constructs an Executor from cfg (defaults applied).
func New(cfg Config) *Executor {
	return &Executor{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (e *Executor) Config() Config { return e.cfg }

// Do runs op with exponential backoff (1s, 2s, 4s, ... without jitter) until
// it succeeds, a terminal error is observed, attempts are exhausted, or the
// total timeout elapses. The last observed error is returned verbatim.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TotalTimeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = e.cfg.TotalTimeout

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if IsRetryable(err) {
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(e.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(e.cfg.TotalTimeout),
	)
	if err != nil {
		// Surface the caller's error, not the backoff wrapper.
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
	}
	return v, err
}
