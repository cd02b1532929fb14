package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

// ActivityHandler is the consumer's business step: it records one activity
// row per event and drops stale product cache entries.
type ActivityHandler struct {
	logger   *slog.Logger
	activity ports.ActivityRepository
	cache    ports.Cache
	nowFn    func() time.Time
}

func NewActivityHandler(logger *slog.Logger, activity ports.ActivityRepository, cache ports.Cache) *ActivityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityHandler{
		logger:   logger,
		activity: activity,
		cache:    cache,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (h *ActivityHandler) Handle(ctx context.Context, env domain.Envelope) error {
	activity := domain.Activity{
		EventID:     env.EventID,
		EventType:   env.EventType,
		AggregateID: env.AggregateID,
		Detail:      env.Data,
		RecordedAt:  h.nowFn(),
	}

	var invalidate string
	switch {
	case env.EventType == domain.EventTypeInferenceServed:
		var data struct {
			UserID    domain.UserID `json:"user_id"`
			LatencyMS int64         `json:"latency_ms"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.UserID == "" {
			return fmt.Errorf("%w: %s requires user_id", domain.ErrEventRejected, env.EventType)
		}
		activity.UserID = data.UserID.String()
		activity.LatencyMS = data.LatencyMS
	case strings.HasPrefix(env.EventType, "PRODUCT_"):
		var data struct {
			ProductID string `json:"productId"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || strings.TrimSpace(data.ProductID) == "" {
			return fmt.Errorf("%w: %s requires productId", domain.ErrEventRejected, env.EventType)
		}
		activity.ProductID = data.ProductID
		invalidate = data.ProductID
	}

	if err := h.activity.Record(ctx, activity); err != nil {
		return err
	}
	if invalidate != "" && h.cache != nil {
		if err := h.cache.Delete(ctx, productsAllCacheKey, productCacheKey(invalidate)); err != nil {
			h.logger.WarnContext(ctx, "product cache invalidation failed",
				"module", "application.activity_handler",
				"layer", "service",
				"operation", "invalidate",
				"outcome", "degraded",
				"event_id", env.EventID,
				"error", err,
			)
		}
	}
	return nil
}

var _ ports.EventHandler = (*ActivityHandler)(nil)
