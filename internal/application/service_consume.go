package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type ConsumeOutcome string

const (
	OutcomeProcessed ConsumeOutcome = "processed"
	OutcomeDuplicate ConsumeOutcome = "duplicate"
	OutcomeRejected  ConsumeOutcome = "rejected"
	OutcomeMalformed ConsumeOutcome = "malformed"
)

// HandleDelivery runs one broker delivery through the dedup barrier. A nil
// return means the outcome is committed and the offset can be acknowledged.
// A non-nil return is transient; nothing was committed.
func (s *Service) HandleDelivery(ctx context.Context, delivery ports.Delivery) error {
	_, err := s.Consume(ctx, delivery)
	return err
}

func (s *Service) Consume(ctx context.Context, delivery ports.Delivery) (ConsumeOutcome, error) {
	env, decodeErr := domain.DecodeEnvelope(delivery.Value)
	if decodeErr != nil {
		return s.consumeMalformed(ctx, delivery, decodeErr)
	}

	var (
		outcome ConsumeOutcome
		prior   *domain.ProcessedEvent
		cause   error
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.processed.Find(ctx, env.EventID)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome, prior = OutcomeDuplicate, existing
			return nil
		}

		// Handler side effects live in a savepoint so a rejected event still
		// commits its FAILED marker without them.
		handleErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			return s.handler.Handle(ctx, env)
		})
		var rec domain.ProcessedEvent
		switch {
		case handleErr == nil:
			outcome = OutcomeProcessed
			rec, err = domain.NewProcessedEvent(env.EventID, s.nowFn())
		case errors.Is(handleErr, domain.ErrEventRejected):
			outcome, cause = OutcomeRejected, handleErr
			rec, err = domain.NewFailedProcessedEvent(env.EventID, s.nowFn(), handleErr)
		default:
			return handleErr
		}
		if err != nil {
			return err
		}
		return s.processed.Record(ctx, rec)
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		outcome, err = OutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("consume event %s: %w", env.EventID, err)
	}
	s.logConsumeOutcome(ctx, delivery, env.EventID, env.EventType, outcome, prior, cause)
	return outcome, nil
}

// consumeMalformed records an undecodable message as FAILED and lets the
// offset advance.
func (s *Service) consumeMalformed(ctx context.Context, delivery ports.Delivery, decodeErr error) (ConsumeOutcome, error) {
	key := DedupKey(delivery)
	outcome := OutcomeMalformed
	var prior *domain.ProcessedEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.processed.Find(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome, prior = OutcomeDuplicate, existing
			return nil
		}
		rec, err := domain.NewFailedProcessedEvent(key, s.nowFn(), decodeErr)
		if err != nil {
			return err
		}
		return s.processed.Record(ctx, rec)
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		outcome, err = OutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("record malformed event %s: %w", key, err)
	}
	s.logConsumeOutcome(ctx, delivery, key, "", outcome, prior, decodeErr)
	return outcome, nil
}

// DedupKey identifies a delivery whose envelope could not be read by its
// topic, partition and offset.
func DedupKey(delivery ports.Delivery) string {
	return fmt.Sprintf("%s/%d/%d", delivery.Topic, delivery.Partition, delivery.Offset)
}

func (s *Service) logConsumeOutcome(ctx context.Context, delivery ports.Delivery, eventID, eventType string, outcome ConsumeOutcome, prior *domain.ProcessedEvent, cause error) {
	attrs := []any{
		"module", "application.consumer",
		"layer", "service",
		"operation", "consume",
		"outcome", string(outcome),
		"event_id", eventID,
		"event_type", eventType,
		"topic", delivery.Topic,
		"partition", delivery.Partition,
		"offset", delivery.Offset,
	}
	switch outcome {
	case OutcomeProcessed:
		s.logger.DebugContext(ctx, "event processed", attrs...)
	case OutcomeDuplicate:
		if prior != nil && prior.Status == domain.ProcessedStatusFailed {
			// Replay of a failed event needs an operator.
			s.logger.WarnContext(ctx, "redelivered event previously failed, skipping", append(attrs, "prior_status", string(prior.Status))...)
			return
		}
		s.logger.InfoContext(ctx, "duplicate event skipped", attrs...)
	default:
		s.logger.WarnContext(ctx, "event recorded as failed", append(attrs, "error", domain.SafeErrorMessage(cause))...)
	}
}
