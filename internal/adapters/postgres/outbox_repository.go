package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outboxRepository struct {
	db           *gorm.DB
	lockingClaim bool
}

func (r *outboxRepository) Append(ctx context.Context, event domain.OutboxEvent) error {
	if event.Status == "" {
		event.Status = domain.OutboxStatusNew
	}
	rec := outboxEventModel{
		ID:           event.ID,
		EventType:    event.EventType,
		AggregateID:  event.AggregateID,
		Payload:      string(event.Payload),
		Status:       string(event.Status),
		AttemptCount: event.AttemptCount,
		LastError:    event.LastError,
		CreatedAt:    event.CreatedAt.UTC(),
		SentAt:       event.SentAt,
	}
	if err := conn(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: outbox event %s already exists", domain.ErrConflict, event.ID)
		}
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) ClaimBatch(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []outboxEventModel
	err := withinTx(ctx, r.db, func(ctx context.Context) error {
		if err := claimQuery(conn(ctx, r.db), limit, r.lockingClaim).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return conn(ctx, r.db).Model(&outboxEventModel{}).
			Where("id IN ?", ids).
			Where("status = ?", string(domain.OutboxStatusNew)).
			Update("status", string(domain.OutboxStatusProcessing)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}

	out := make([]domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		evt := toDomainOutboxEvent(row)
		if err := evt.MarkProcessing(); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

// claimQuery selects the oldest NEW rows. With locking it adds
// FOR UPDATE SKIP LOCKED so concurrent publishers never claim the same row.
func claimQuery(db *gorm.DB, limit int, locking bool) *gorm.DB {
	q := db.Model(&outboxEventModel{}).
		Where("status = ?", string(domain.OutboxStatusNew)).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if locking {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return q
}

func (r *outboxRepository) MarkSent(ctx context.Context, event *domain.OutboxEvent, at time.Time) error {
	if err := event.MarkSent(at); err != nil {
		return err
	}
	return r.persistOutcome(ctx, event, map[string]any{
		"status":     string(event.Status),
		"sent_at":    *event.SentAt,
		"last_error": nil,
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, event *domain.OutboxEvent, reason string) error {
	if err := event.MarkFailed(reason); err != nil {
		return err
	}
	return r.persistOutcome(ctx, event, map[string]any{
		"status":        string(event.Status),
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    *event.LastError,
	})
}

func (r *outboxRepository) Release(ctx context.Context, events []domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(events))
	for i := range events {
		if err := events[i].Release(); err != nil {
			return err
		}
		ids = append(ids, events[i].ID)
	}
	res := conn(ctx, r.db).Model(&outboxEventModel{}).
		Where("id IN ?", ids).
		Where("status = ?", string(domain.OutboxStatusProcessing)).
		Update("status", string(domain.OutboxStatusNew))
	if res.Error != nil {
		return fmt.Errorf("release outbox events: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("%w: %d of %d outbox events were no longer processing", domain.ErrConflict, int64(len(ids))-res.RowsAffected, len(ids))
	}
	return nil
}

func (r *outboxRepository) persistOutcome(ctx context.Context, event *domain.OutboxEvent, updates map[string]any) error {
	res := conn(ctx, r.db).Model(&outboxEventModel{}).
		Where("id = ?", event.ID).
		Where("status = ?", string(domain.OutboxStatusProcessing)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update outbox event %s: %w", event.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: outbox event %s is no longer processing", domain.ErrConflict, event.ID)
	}
	return nil
}

func (r *outboxRepository) Get(ctx context.Context, id uuid.UUID) (domain.OutboxEvent, error) {
	var row outboxEventModel
	if err := conn(ctx, r.db).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.OutboxEvent{}, mapNotFound(err)
	}
	return toDomainOutboxEvent(row), nil
}

func (r *outboxRepository) ListByStatus(ctx context.Context, status domain.OutboxStatus, limit int) ([]domain.OutboxEvent, error) {
	q := conn(ctx, r.db).Order("created_at ASC").Order("id ASC").Limit(clampLimit(limit, 50, 500))
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []outboxEventModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainOutboxEvent(row))
	}
	return out, nil
}

func (r *outboxRepository) Requeue(ctx context.Context, id uuid.UUID) (domain.OutboxEvent, error) {
	var evt domain.OutboxEvent
	err := withinTx(ctx, r.db, func(ctx context.Context) error {
		q := conn(ctx, r.db).Where("id = ?", id)
		if r.lockingClaim {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row outboxEventModel
		if err := q.Take(&row).Error; err != nil {
			return mapNotFound(err)
		}
		evt = toDomainOutboxEvent(row)
		if err := evt.Requeue(); err != nil {
			return err
		}
		res := conn(ctx, r.db).Model(&outboxEventModel{}).
			Where("id = ?", id).
			Where("status = ?", string(domain.OutboxStatusFailed)).
			Update("status", string(evt.Status))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: outbox event %s changed concurrently", domain.ErrConflict, id)
		}
		return nil
	})
	if err != nil {
		return domain.OutboxEvent{}, err
	}
	return evt, nil
}

var _ ports.OutboxRepository = (*outboxRepository)(nil)
