package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type processedEventRepository struct {
	db *gorm.DB
}

func (r *processedEventRepository) Find(ctx context.Context, eventID string) (*domain.ProcessedEvent, error) {
	var row processedEventModel
	err := conn(ctx, r.db).Where("event_id = ?", eventID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find processed event: %w", err)
	}
	rec := toDomainProcessedEvent(row)
	return &rec, nil
}

// Record never overwrites: a conflicting insert is skipped and reported as
// domain.ErrDuplicateEvent without aborting the surrounding transaction.
func (r *processedEventRepository) Record(ctx context.Context, rec domain.ProcessedEvent) error {
	var errMsg *string
	if rec.Error != nil {
		msg := domain.TruncateError(*rec.Error)
		errMsg = &msg
	}
	row := processedEventModel{
		EventID:     rec.EventID,
		ProcessedAt: rec.ProcessedAt.UTC(),
		Status:      string(rec.Status),
		Error:       errMsg,
	}
	res := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateEvent, rec.EventID)
		}
		return fmt.Errorf("record processed event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateEvent, rec.EventID)
	}
	return nil
}

var _ ports.ProcessedEventRepository = (*processedEventRepository)(nil)
