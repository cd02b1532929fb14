package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

// EventAppender adds an outbox event to the transaction opened by Write.
type EventAppender interface {
	Append(ctx context.Context, eventType, aggregateID string, data any) (uuid.UUID, error)
}

// Write runs fn in one database transaction. Business writes made through
// ctx and every event appended through events commit together or not at all.
func (s *Service) Write(ctx context.Context, fn func(ctx context.Context, events EventAppender) error) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return fn(ctx, outboxAppender{s: s})
	})
}

type outboxAppender struct {
	s *Service
}

func (a outboxAppender) Append(ctx context.Context, eventType, aggregateID string, data any) (uuid.UUID, error) {
	return a.s.appendEvent(ctx, eventType, aggregateID, data)
}

func (s *Service) appendEvent(ctx context.Context, eventType, aggregateID string, data any) (uuid.UUID, error) {
	id := s.newID()
	now := s.nowFn()
	env, err := domain.NewEnvelope(id.String(), eventType, aggregateID, now, data)
	if err != nil {
		return uuid.Nil, err
	}
	payload, err := env.Marshal()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: encode envelope: %v", domain.ErrInvalidInput, err)
	}
	evt, err := domain.NewOutboxEvent(id, eventType, aggregateID, payload, now)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.outbox.Append(ctx, evt); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Service) ListOutbox(ctx context.Context, status string, limit int) ([]domain.OutboxEvent, error) {
	var parsed domain.OutboxStatus
	if strings.TrimSpace(status) != "" {
		var err error
		if parsed, err = domain.ParseOutboxStatus(status); err != nil {
			return nil, err
		}
	}
	return s.outbox.ListByStatus(ctx, parsed, limit)
}

func (s *Service) GetOutboxEvent(ctx context.Context, id string) (domain.OutboxEvent, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("%w: invalid outbox id", domain.ErrInvalidInput)
	}
	return s.outbox.Get(ctx, parsed)
}

// RequeueOutboxEvent moves a FAILED event back to NEW. Nothing else resends
// failed events.
func (s *Service) RequeueOutboxEvent(ctx context.Context, id string) (domain.OutboxEvent, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("%w: invalid outbox id", domain.ErrInvalidInput)
	}
	evt, err := s.outbox.Requeue(ctx, parsed)
	if err != nil {
		return domain.OutboxEvent{}, err
	}
	s.logger.InfoContext(ctx, "outbox event requeued",
		"module", "application.outbox",
		"layer", "service",
		"operation", "requeue",
		"outcome", "success",
		"outbox_id", evt.ID.String(),
		"attempt_count", evt.AttemptCount,
	)
	return evt, nil
}

func (s *Service) GetProcessedEvent(ctx context.Context, eventID string) (domain.ProcessedEvent, error) {
	if strings.TrimSpace(eventID) == "" {
		return domain.ProcessedEvent{}, fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}
	rec, err := s.processed.Find(ctx, eventID)
	if err != nil {
		return domain.ProcessedEvent{}, err
	}
	if rec == nil {
		return domain.ProcessedEvent{}, domain.ErrNotFound
	}
	return *rec, nil
}
