package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/adamavenir/mentionrunner/internal/mention"
)

// CircuitTransport wraps a MessageTransport with a circuit breaker and
// bounded exponential backoff, so a wedged remote session fails fast
// instead of blocking the processor loop for the duration of its
// default check timeout on every call. Send retries any failure,
// including an open breaker, with exponential backoff; Check and
// SendPing are not retried, and an open breaker surfaces from them
// immediately as an error.
type CircuitTransport struct {
	inner   MessageTransport
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitTransport wraps inner with a per-session breaker named for
// logging/metrics correlation.
func NewCircuitTransport(name string, inner MessageTransport) *CircuitTransport {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &CircuitTransport{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// newRetryBackOff builds the bounded exponential policy for transient
// send failures.
func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	return b
}

// withRetry tries op up to 3 times in total with exponential backoff,
// bailing out immediately on context cancellation.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(newRetryBackOff()),
		backoff.WithMaxTries(3),
	)
}

func (c *CircuitTransport) Send(ctx context.Context, content, parentMessageID string) (Ack, error) {
	return withRetry(ctx, func() (Ack, error) {
		v, err := c.breaker.Execute(func() (interface{}, error) {
			return c.inner.Send(ctx, content, parentMessageID)
		})
		if err != nil {
			return Ack{}, err
		}
		return v.(Ack), nil
	})
}

func (c *CircuitTransport) Check(ctx context.Context, opts CheckOptions) (mention.Payload, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.Check(ctx, opts)
	})
	if err != nil {
		return mention.Payload{}, fmt.Errorf("circuit %s: %w", c.breaker.Name(), err)
	}
	return v.(mention.Payload), nil
}

func (c *CircuitTransport) SendPing(ctx context.Context) (PingResult, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.SendPing(ctx)
	})
	if err != nil {
		return PingResult{}, fmt.Errorf("circuit %s: %w", c.breaker.Name(), err)
	}
	return v.(PingResult), nil
}

func (c *CircuitTransport) Close() error {
	return c.inner.Close()
}

func (c *CircuitTransport) IsRemote() bool {
	return c.inner.IsRemote()
}

// State reports the breaker's current state, exposed for metrics.
func (c *CircuitTransport) State() gobreaker.State {
	return c.breaker.State()
}
