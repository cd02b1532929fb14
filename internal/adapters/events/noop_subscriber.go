package events

import (
	"context"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type NoopSubscriber struct{}

func NewNoopSubscriber() *NoopSubscriber {
	return &NoopSubscriber{}
}

func (n *NoopSubscriber) Subscribe(ctx context.Context, _ ports.MessageHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n *NoopSubscriber) Close() error { return nil }
