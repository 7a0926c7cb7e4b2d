// Package ratelimiter throttles the operations a single session may submit.
//
// Every connection gets its own token bucket, so one chatty client cannot
// monopolise the engine lock. A zero rate disables limiting entirely and all
// calls become free.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config controls per-session limits.
type Config struct {
	// OperationsPerSecond is the sustained rate. Zero means unlimited.
	OperationsPerSecond float64 `mapstructure:"operations_per_second" validate:"min=0" yaml:"operations_per_second"`

	// Burst is the number of operations that may be submitted back to back.
	// Defaults to twice the sustained rate (at least 1).
	Burst int `mapstructure:"burst" validate:"min=0" yaml:"burst"`
}

// Limiter is a token bucket for one session.
//
// A nil *Limiter is valid and never limits.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter from cfg. Returns nil when limiting is disabled.
func New(cfg Config) *Limiter {
	if cfg.OperationsPerSecond <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = max(int(cfg.OperationsPerSecond*2), 1)
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.OperationsPerSecond), burst),
	}
}

// Allow reports whether an operation may proceed right now and, if so,
// consumes a token.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Acquire takes a token, waiting if necessary.
//
// The returned throttled flag is true when the caller had to wait, which the
// transports use to count rate-limited operations.
func (l *Limiter) Acquire(ctx context.Context) (throttled bool, err error) {
	if l.Allow() {
		return false, nil
	}
	return true, l.Wait(ctx)
}

// SetLimit changes the sustained rate. Zero restores an effectively
// unlimited rate.
func (l *Limiter) SetLimit(opsPerSecond float64) {
	if l == nil {
		return
	}
	if opsPerSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimitAt(time.Now(), rate.Limit(opsPerSecond))
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	if l == nil {
		return float64(rate.Inf)
	}
	return l.limiter.Tokens()
}
