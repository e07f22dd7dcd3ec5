// Package resilience provides fault-tolerance patterns:
// retry with exponential backoff, circuit breaker, and bulkhead.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"github.com/boddenberg/fleetpay-go/internal/domain"
)

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// permanentError stops the retry loop immediately.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation and stops early on errors wrapped
// with Permanent or on benign domain errors.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if isBenign(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * cfg.InitialBackoff
			wait := backoff
			if half := int64(backoff / 2); half > 0 {
				wait += time.Duration(rand.Int63n(half))
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

// isBenign reports errors that say nothing about the collaborator's health.
func isBenign(err error) bool {
	var (
		missing    *domain.ErrTableMissing
		notFound   *domain.ErrNotFound
		validation *domain.ErrValidation
	)
	return errors.As(err, &missing) ||
		errors.As(err, &notFound) ||
		errors.As(err, &validation) ||
		errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
func NewCircuitBreaker(name string, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	if openTimeout <= 0 {
		openTimeout = 10 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     openTimeout,      // open -> half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isBenign(err)
		},
	})
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}

// Guard runs collaborator calls through a bulkhead, a circuit breaker and
// the retry loop, in that order.
type Guard struct {
	name     string
	cfg      Config
	cb       *gobreaker.CircuitBreaker
	bulkhead *Bulkhead
}

// NewGuard builds a guard for the named collaborator.
func NewGuard(name string, cfg Config) *Guard {
	return &Guard{
		name:     name,
		cfg:      cfg,
		cb:       NewCircuitBreaker(name, cfg.OpenTimeout),
		bulkhead: NewBulkhead(cfg.MaxConcurrency),
	}
}

// Do executes fn. An open breaker surfaces as *domain.ErrCircuitOpen.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer g.bulkhead.Release()

	_, err := g.cb.Execute(func() (any, error) {
		return nil, RetryWithBackoff(ctx, g.cfg, func() error {
			return fn(ctx)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: g.name}
	}
	return err
}

// State exposes the breaker state for health reporting.
func (g *Guard) State() string {
	return g.cb.State().String()
}
