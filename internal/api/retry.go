package api

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

// RetryPolicy retries a search whose failure is transient, doubling the
// backoff between attempts up to MaxBackoff. A zero MaxBackoff keeps the
// library's default ceiling.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewRetryPolicy converts the configured policy. A non-positive attempt
// count means a single attempt.
func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// newBackOff returns a deterministic exponential schedule that allows
// MaxAttempts-1 retries and stops when ctx is done.
func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	// The attempt count is the only budget.
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs search, retrying only errors lookup.IsRetryable accepts.
// Terminal outcomes, including not_found and timeouts, are never retried.
// The error returned is always the last one search produced, so a cancelled
// retry still reports the stage that failed.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, search func(context.Context) (lookup.SearchResult, error)) (lookup.SearchResult, error) {
	var (
		result  lookup.SearchResult
		lastErr error
		attempt int
	)
	operation := func() error {
		attempt++
		result, lastErr = search(ctx)
		if lastErr != nil && !lookup.IsRetryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("Search failed transiently, retrying.",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, p.newBackOff(ctx), notify); err != nil {
		return result, lastErr
	}
	return result, nil
}
