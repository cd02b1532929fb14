package postgres

import (
	"time"

	"github.com/google/uuid"
)

type outboxEventModel struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	EventType    string     `gorm:"column:event_type;not null"`
	AggregateID  string     `gorm:"column:aggregate_id;not null"`
	Payload      string     `gorm:"column:payload;type:jsonb;not null"`
	Status       string     `gorm:"column:status;not null;index:idx_outbox_events_status_created_at,priority:1"`
	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string    `gorm:"column:last_error;size:800"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index:idx_outbox_events_status_created_at,priority:2"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxEventModel) TableName() string { return "outbox_events" }

type processedEventModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
	Status      string    `gorm:"column:status;not null"`
	Error       *string   `gorm:"column:error;size:800"`
}

func (processedEventModel) TableName() string { return "processed_events" }

type productModel struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description;not null"`
	Price       float64   `gorm:"column:price;type:numeric(12,2);not null"`
	ImageURL    string    `gorm:"column:image_url"`
	StockLevel  int       `gorm:"column:stock_level;not null"`
	Published   bool      `gorm:"column:published;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (productModel) TableName() string { return "products" }

type activityModel struct {
	ActivityID  uuid.UUID `gorm:"column:activity_id;type:uuid;primaryKey"`
	EventID     string    `gorm:"column:event_id;not null;uniqueIndex"`
	EventType   string    `gorm:"column:event_type;not null"`
	AggregateID string    `gorm:"column:aggregate_id"`
	UserID      string    `gorm:"column:user_id;index"`
	ProductID   string    `gorm:"column:product_id"`
	LatencyMS   int64     `gorm:"column:latency_ms"`
	Detail      string    `gorm:"column:detail;type:jsonb"`
	RecordedAt  time.Time `gorm:"column:recorded_at;not null"`
}

func (activityModel) TableName() string { return "event_activity" }
