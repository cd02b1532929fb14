package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

// DeliveryProcessor runs the dedup-guarded handling of one delivery. A nil
// return means the outcome is committed and the offset may advance.
type DeliveryProcessor interface {
	HandleDelivery(ctx context.Context, delivery ports.Delivery) error
}

type ConsumerWorker struct {
	logger      *slog.Logger
	subscriber  ports.Subscriber
	processor   DeliveryProcessor
	maxInterval time.Duration
}

func NewConsumerWorker(logger *slog.Logger, subscriber ports.Subscriber, processor DeliveryProcessor, maxInterval time.Duration) *ConsumerWorker {
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return &ConsumerWorker{
		logger: logger, subscriber: subscriber, processor: processor, maxInterval: maxInterval,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	err := w.subscriber.Subscribe(ctx, w)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.ErrorContext(ctx, "consumer stopped",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "subscribe",
			"outcome", "failure",
			"error", err,
		)
	}
	return err
}

// HandleMessage retries transient failures until they succeed or ctx ends.
// Each attempt runs detached from ctx so an attempt in flight at shutdown
// commits or rolls back cleanly.
func (w *ConsumerWorker) HandleMessage(ctx context.Context, delivery ports.Delivery) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = w.maxInterval
	if bo.InitialInterval > bo.MaxInterval {
		bo.InitialInterval = bo.MaxInterval
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	attemptCtx := context.WithoutCancel(ctx)
	operation := func() error {
		return w.processor.HandleDelivery(attemptCtx, delivery)
	}
	notify := func(err error, wait time.Duration) {
		w.logger.WarnContext(ctx, "event handling failed, retrying",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "handle_message",
			"outcome", "retry",
			"topic", delivery.Topic,
			"partition", delivery.Partition,
			"offset", delivery.Offset,
			"retry_in", wait.String(),
			"error", err,
		)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify)
}

var _ ports.MessageHandler = (*ConsumerWorker)(nil)
