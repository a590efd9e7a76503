package ratelimiter

import (
	"context"
	"errors"

	"github.com/dmitrymomot/sessionkit/pkg/clock"
)

// Limiter applies one bucket Config to any number of keys.
type Limiter struct {
	store Store
	cfg   Config
	clock clock.Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// New creates a Limiter over store.
func New(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &Limiter{store: store, cfg: cfg, clock: clock.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow takes one token for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN takes n tokens for key. A denied take consumes nothing.
func (l *Limiter) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if n <= 0 {
		return Result{}, ErrInvalidTokenCount
	}
	return l.take(ctx, key, n)
}

// Status reports the bucket of key without taking tokens.
func (l *Limiter) Status(ctx context.Context, key string) (Result, error) {
	return l.take(ctx, key, 0)
}

// Reset refills the bucket of key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Reset(ctx, key); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) take(ctx context.Context, key string, n int) (Result, error) {
	now := l.clock.Now()
	remaining, resetAt, err := l.store.ConsumeTokens(ctx, key, n, l.cfg, now)
	if err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
	return Result{
		Limit:     l.cfg.Capacity,
		Remaining: remaining,
		ResetAt:   resetAt,
		now:       now,
	}, nil
}
