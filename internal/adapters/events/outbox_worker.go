package events

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type TickResult struct {
	Claimed  int
	Sent     int
	Failed   int
	Released int
	Skipped  bool
}

// OutboxWorker drains NEW outbox rows into the broker on a fixed delay.
type OutboxWorker struct {
	logger    *slog.Logger
	tx        ports.TxManager
	outbox    ports.OutboxRepository
	broker    ports.BrokerClient
	topic     string
	interval  time.Duration
	batchSize int
	running   atomic.Bool
	nowFn     func() time.Time
}

func NewOutboxWorker(logger *slog.Logger, tx ports.TxManager, outbox ports.OutboxRepository, broker ports.BrokerClient, topic string, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &OutboxWorker{
		logger: logger, tx: tx, outbox: outbox, broker: broker, topic: topic,
		interval: interval, batchSize: batchSize,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is cancelled. The next tick is scheduled only after the
// previous one returns.
func (w *OutboxWorker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := w.Tick(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox tick failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "tick",
				"outcome", "failure",
				"error", err,
			)
		}
		timer.Reset(w.interval)
	}
}

// Tick claims one batch, sends each event and persists every outcome in the
// same transaction. An overlapping call returns Skipped without doing work.
// Cancelling ctx does not interrupt a tick that has already started. When the
// broker refuses a send without attempting it, that event and the rest of
// the batch go back to NEW and the tick ends.
func (w *OutboxWorker) Tick(ctx context.Context) (TickResult, error) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.DebugContext(ctx, "outbox tick skipped",
			"module", "events.outbox_worker",
			"layer", "adapter",
			"operation", "tick",
			"outcome", "skipped",
		)
		return TickResult{Skipped: true}, nil
	}
	defer w.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	var res TickResult
	err := w.tx.WithinTx(ctx, func(ctx context.Context) error {
		res = TickResult{}
		batch, err := w.outbox.ClaimBatch(ctx, w.batchSize)
		if err != nil {
			return err
		}
		res.Claimed = len(batch)
		for i := range batch {
			evt := &batch[i]
			sendErr := w.broker.SendSync(ctx, w.topic, evt.ID.String(), evt.Payload)
			if errors.Is(sendErr, ports.ErrBrokerCircuitOpen) {
				unsent := batch[i:]
				if err := w.outbox.Release(ctx, unsent); err != nil {
					return err
				}
				res.Released = len(unsent)
				w.logger.WarnContext(ctx, "broker circuit open, outbox batch released",
					"module", "events.outbox_worker",
					"layer", "adapter",
					"operation", "send",
					"outcome", "circuit_open",
					"released_count", res.Released,
					"topic", w.topic,
				)
				return nil
			}
			if sendErr == nil {
				if err := w.outbox.MarkSent(ctx, evt, w.nowFn()); err != nil {
					return err
				}
				res.Sent++
				continue
			}
			if err := w.outbox.MarkFailed(ctx, evt, domain.SafeErrorMessage(sendErr)); err != nil {
				return err
			}
			res.Failed++
			w.logger.WarnContext(ctx, "outbox send failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "send",
				"outcome", sendOutcome(sendErr),
				"outbox_id", evt.ID.String(),
				"event_type", evt.EventType,
				"attempt_count", evt.AttemptCount,
				"topic", w.topic,
				"error", sendErr,
			)
		}
		return nil
	})
	if err != nil {
		return TickResult{}, err
	}
	if res.Claimed > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.outbox_worker",
			"layer", "adapter",
			"operation", "tick",
			"outcome", "success",
			"claimed_count", res.Claimed,
			"sent_count", res.Sent,
			"failed_count", res.Failed,
			"released_count", res.Released,
		)
	}
	return res, nil
}

func sendOutcome(err error) string {
	switch {
	case errors.Is(err, ports.ErrBrokerTimeout):
		return "timeout"
	case errors.Is(err, ports.ErrPayloadRejected):
		return "rejected"
	case errors.Is(err, ports.ErrBrokerUnavailable):
		return "unavailable"
	default:
		return "failure"
	}
}
