package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
	"gorm.io/gorm"
)

type activityRepository struct {
	db *gorm.DB
}

func (r *activityRepository) Record(ctx context.Context, activity domain.Activity) error {
	detail := string(activity.Detail)
	if detail == "" {
		detail = "{}"
	}
	row := activityModel{
		ActivityID:  uuid.New(),
		EventID:     activity.EventID,
		EventType:   activity.EventType,
		AggregateID: activity.AggregateID,
		UserID:      activity.UserID,
		ProductID:   activity.ProductID,
		LatencyMS:   activity.LatencyMS,
		Detail:      detail,
		RecordedAt:  activity.RecordedAt.UTC(),
	}
	if err := conn(ctx, r.db).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: activity for event %s", domain.ErrDuplicateEvent, activity.EventID)
		}
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (r *activityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	var rows []activityModel
	if err := conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("recorded_at DESC").
		Limit(clampLimit(limit, 20, 200)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainActivity(row))
	}
	return out, nil
}

var _ ports.ActivityRepository = (*activityRepository)(nil)
