package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeProductCreated  = "PRODUCT_CREATED"
	EventTypeProductUpdated  = "PRODUCT_UPDATED"
	EventTypeProductDeleted  = "PRODUCT_DELETED"
	EventTypeInferenceServed = "INFERENCE_SERVED"
)

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       float64
	ImageURL    string
	StockLevel  int
	Published   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Activity is the side effect the consumer records for each handled event.
type Activity struct {
	EventID     string
	EventType   string
	AggregateID string
	UserID      string
	ProductID   string
	LatencyMS   int64
	Detail      []byte
	RecordedAt  time.Time
}
