package postgres

import "github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"

func toDomainOutboxEvent(row outboxEventModel) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:           row.ID,
		EventType:    row.EventType,
		AggregateID:  row.AggregateID,
		Payload:      []byte(row.Payload),
		Status:       domain.OutboxStatus(row.Status),
		AttemptCount: row.AttemptCount,
		LastError:    row.LastError,
		CreatedAt:    row.CreatedAt.UTC(),
		SentAt:       row.SentAt,
	}
}

func toDomainProcessedEvent(row processedEventModel) domain.ProcessedEvent {
	return domain.ProcessedEvent{
		EventID:     row.EventID,
		ProcessedAt: row.ProcessedAt.UTC(),
		Status:      domain.ProcessedStatus(row.Status),
		Error:       row.Error,
	}
}

func toDomainProduct(row productModel) domain.Product {
	return domain.Product{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Price:       row.Price,
		ImageURL:    row.ImageURL,
		StockLevel:  row.StockLevel,
		Published:   row.Published,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func toDomainActivity(row activityModel) domain.Activity {
	return domain.Activity{
		EventID:     row.EventID,
		EventType:   row.EventType,
		AggregateID: row.AggregateID,
		UserID:      row.UserID,
		ProductID:   row.ProductID,
		LatencyMS:   row.LatencyMS,
		Detail:      []byte(row.Detail),
		RecordedAt:  row.RecordedAt.UTC(),
	}
}
