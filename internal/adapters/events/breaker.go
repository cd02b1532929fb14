package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

// BreakerBrokerClient fails sends fast with ErrBrokerCircuitOpen while the
// circuit is open. Refused sends never reach the wrapped client.
type BreakerBrokerClient struct {
	next ports.BrokerClient
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerBrokerClient(logger *slog.Logger, next ports.BrokerClient, failureThreshold uint32, openFor time.Duration) *BreakerBrokerClient {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		// A rejected payload says nothing about broker health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ports.ErrPayloadRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Warn("broker circuit state changed",
				"module", "events.breaker",
				"layer", "adapter",
				"operation", "state_change",
				"outcome", to.String(),
				"breaker", name,
				"from", from.String(),
			)
		},
	})
	return &BreakerBrokerClient{next: next, cb: cb}
}

func (c *BreakerBrokerClient) SendSync(ctx context.Context, topic, key string, value []byte) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.next.SendSync(ctx, topic, key, value)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w: %w", ports.ErrBrokerUnavailable, ports.ErrBrokerCircuitOpen, err)
	}
	return err
}

func (c *BreakerBrokerClient) State() gobreaker.State {
	return c.cb.State()
}

func (c *BreakerBrokerClient) Close() error {
	return c.next.Close()
}

var _ ports.BrokerClient = (*BreakerBrokerClient)(nil)
