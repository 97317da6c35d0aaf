// Package delivery sends reminder texts through a messaging transport with
// bounded retries and classifies failures as transient or permanent.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pathakanu/remindly/internal/metrics"
	"github.com/pathakanu/remindly/internal/retry"
	"github.com/rs/zerolog"
)

const (
	// DefaultAttempts is the total number of send attempts per delivery.
	DefaultAttempts = 3
	// DefaultWait is the fixed delay between two send attempts.
	DefaultWait = 2 * time.Second
)

// Transport performs a single send attempt on the external channel.
type Transport interface {
	Send(ctx context.Context, recipient int64, text string) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, recipient int64, text string) error

func (f TransportFunc) Send(ctx context.Context, recipient int64, text string) error {
	return f(ctx, recipient, text)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent tags err as not worth retrying, e.g. an unknown or blocked recipient.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was tagged with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Error is returned when a reminder could not be delivered.
type Error struct {
	Recipient int64
	Attempts  int
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("delivery to %d failed after %d attempt(s) (%s): %v", e.Recipient, e.Attempts, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client wraps a Transport with the retry policy.
type Client struct {
	transport Transport
	policy    retry.Policy
	logger    zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithPolicy overrides attempts and wait; the permanent-error predicate is kept.
func WithPolicy(attempts int, wait time.Duration) Option {
	return func(c *Client) {
		c.policy.Attempts = attempts
		c.policy.Wait = wait
	}
}

// WithClock sets the clock used for waits between attempts.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.policy.Clock = clk
	}
}

// NewClient creates a Client with 3 attempts and a fixed 2s wait.
func NewClient(transport Transport, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    logger,
		policy: retry.Policy{
			Attempts:  DefaultAttempts,
			Wait:      DefaultWait,
			Retryable: func(err error) bool { return !IsPermanent(err) },
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send delivers text to recipient. Failures come back as *Error.
func (c *Client) Send(ctx context.Context, recipient int64, text string) error {
	attempts, err := c.policy.Do(ctx, func(ctx context.Context) error {
		metrics.DeliveryAttempts.Inc()
		err := c.transport.Send(ctx, recipient, text)
		if err != nil && !IsPermanent(err) {
			c.logger.Debug().Err(err).Int64("recipient", recipient).Msg("send attempt failed")
		}
		return err
	})
	if err == nil {
		return nil
	}
	return &Error{
		Recipient: recipient,
		Attempts:  attempts,
		Permanent: IsPermanent(err),
		Err:       err,
	}
}
