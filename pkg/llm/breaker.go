package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUpstreamUnavailable is returned while the breaker is open and calls
// are being shed instead of sent upstream.
var ErrUpstreamUnavailable = errors.New("completion backend unavailable")

// BreakerClient wraps a Client with a circuit breaker so a misbehaving
// completion backend trips fast instead of tying up the worker in retry
// loops for every queued task.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a circuit breaker. The breaker opens
// after 5 consecutive failures and probes again after 30 seconds.
func NewBreakerClient(inner Client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:    "llm",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Model reports the wrapped client's model name.
func (b *BreakerClient) Model() string {
	return b.inner.Model()
}

// Complete forwards through the breaker.
func (b *BreakerClient) Complete(ctx context.Context, prompt string) (string, Usage, error) {
	var usage Usage
	result, err := b.breaker.Execute(func() (any, error) {
		text, u, err := b.inner.Complete(ctx, prompt)
		usage = u
		return text, err
	})
	if err != nil {
		return "", Usage{}, b.classify(err)
	}
	return result.(string), usage, nil
}

// CompleteWithSchema forwards through the breaker.
func (b *BreakerClient) CompleteWithSchema(ctx context.Context, prompt string, schema any) (Usage, error) {
	var usage Usage
	_, err := b.breaker.Execute(func() (any, error) {
		u, err := b.inner.CompleteWithSchema(ctx, prompt, schema)
		usage = u
		return nil, err
	})
	if err != nil {
		return Usage{}, b.classify(err)
	}
	return usage, nil
}

func (b *BreakerClient) classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return err
}
