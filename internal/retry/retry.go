// Package retry runs remote calls under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

// Policy describes how an operation is retried.
// Delay before retry n (0-based) is BaseDelay * 2^n, capped at MaxDelay.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil retries everything except permanent errors (see domain.IsPermanent).
	Retryable func(error) bool

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Name labels log lines
	Name   string
	Logger *slog.Logger
}

// DefaultPolicy is used for vector store and document embedding calls
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// QueryPolicy is tuned for interactive query embedding: more attempts,
// longer base delay, only transient and rate-limit errors retried.
func QueryPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   domain.IsRetryable,
	}
}

// ExhaustedError is returned when every attempt failed.
// It matches both domain.ErrPersistentService and the last cause.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{domain.ErrPersistentService, e.Last}
}

// Backoff returns the delay to wait after the given 0-based failed attempt
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// avoid overflowing the shift
	if attempt > 30 {
		attempt = 30
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt))
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}
	return d
}

// delayFor honours a server-provided Retry-After when it is longer than the
// computed backoff.
func (p Policy) delayFor(attempt int, err error) time.Duration {
	d := p.Backoff(attempt)
	var rl *domain.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > d {
		d = rl.RetryAfter
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return !domain.IsPermanent(err)
}

func (p Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err

		if !p.retryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.delayFor(attempt, err)
		p.logger().Warn("operation failed, retrying",
			"op", p.Name,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay,
			"error", err)

		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry interrupted: %w (last error: %v)", err, last)
		}
	}

	p.logger().Error("operation failed after retries",
		"op", p.Name,
		"attempts", attempts,
		"error", last)
	return zero, &ExhaustedError{Op: p.Name, Attempts: attempts, Last: last}
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithName returns a copy of p labelled for logging
func (p Policy) WithName(name string) Policy {
	p.Name = name
	return p
}
