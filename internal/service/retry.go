package service

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/repository"
)

// Retrier re-runs idempotent storage writes that failed transiently
type Retrier struct {
	attempts uint
	delay    time.Duration
}

// NewRetrier creates a Retrier from the chat config
func NewRetrier(cfg *config.ChatConfig) *Retrier {
	r := &Retrier{attempts: 1}
	if cfg != nil {
		r.attempts = cfg.RetryAttempts
		r.delay = cfg.RetryDelay
	}
	if r.attempts == 0 {
		r.attempts = 1
	}
	return r
}

// Do runs fn until it succeeds, fails with a non-transient error, or attempts run out
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(repository.IsTransient),
		retry.LastErrorOnly(true),
	)
}
