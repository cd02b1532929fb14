package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

// GetRecommendations proxies the inference service and records an
// INFERENCE_SERVED event. A failed append is logged; the caller still gets
// the prediction.
func (s *Service) GetRecommendations(ctx context.Context, userID string) (RecommendationResult, error) {
	userID = strings.TrimSpace(userID)
	if err := domain.ValidateUserID(userID); err != nil {
		return RecommendationResult{}, err
	}
	if s.inference == nil {
		return RecommendationResult{}, fmt.Errorf("%w: inference client is not configured", domain.ErrDependencyUnavailable)
	}

	started := time.Now()
	prediction, err := s.inference.Predict(ctx, userID)
	if err != nil {
		return RecommendationResult{}, err
	}
	latency := time.Since(started).Milliseconds()

	recommendations := prediction.Recommendations
	if len(recommendations) == 0 {
		recommendations = json.RawMessage("[]")
	}
	result := RecommendationResult{UserID: userID, LatencyMS: latency, Body: prediction.Raw}
	err = s.Write(ctx, func(ctx context.Context, events EventAppender) error {
		id, err := events.Append(ctx, domain.EventTypeInferenceServed, userID, inferenceServedData{
			UserID:          domain.UserID(userID),
			LatencyMS:       latency,
			Recommendations: recommendations,
		})
		if err == nil {
			result.EventID = id.String()
		}
		return err
	})
	if err != nil {
		result.EventID = ""
		s.logger.WarnContext(ctx, "inference event append failed",
			"module", "application.recommendations",
			"layer", "service",
			"operation", "append_inference_served",
			"outcome", "failure",
			"user_id", userID,
			"error", err,
		)
	}
	return result, nil
}
