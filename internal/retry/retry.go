// Package retry runs an operation under a bounded attempts / fixed wait policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Wait is the fixed delay between two attempts.
	Wait time.Duration
	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool
	// Clock drives the waits; nil means the wall clock.
	Clock clock.Clock
}

// Do calls fn until it succeeds, returns a non-retryable error or the
// attempts are exhausted. It returns the number of calls made and the last
// error. A cancelled ctx interrupts the wait between attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return i, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return i, err
		}
		if i == attempts {
			return i, err
		}

		timer := clk.Timer(p.Wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return i, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return attempts, err
}
