package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

// TxManager runs fn inside one database transaction. Repositories called with
// the ctx passed to fn join that transaction. Nested calls open a savepoint.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OutboxRepository interface {
	Append(ctx context.Context, event domain.OutboxEvent) error
	// ClaimBatch moves up to limit NEW rows, oldest first, to PROCESSING.
	// Callers run it inside WithinTx so a rollback releases the claim.
	ClaimBatch(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, event *domain.OutboxEvent, at time.Time) error
	MarkFailed(ctx context.Context, event *domain.OutboxEvent, reason string) error
	// Release hands claimed rows that were never sent back to NEW with their
	// attempt count untouched.
	Release(ctx context.Context, events []domain.OutboxEvent) error
	Get(ctx context.Context, id uuid.UUID) (domain.OutboxEvent, error)
	ListByStatus(ctx context.Context, status domain.OutboxStatus, limit int) ([]domain.OutboxEvent, error)
	Requeue(ctx context.Context, id uuid.UUID) (domain.OutboxEvent, error)
}

type ProcessedEventRepository interface {
	// Find returns nil when no record exists for eventID.
	Find(ctx context.Context, eventID string) (*domain.ProcessedEvent, error)
	// Record inserts the marker; an existing row yields domain.ErrDuplicateEvent.
	Record(ctx context.Context, rec domain.ProcessedEvent) error
}

type UpdateProductParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       float64
	ImageURL    string
	StockLevel  int
	Published   bool
	UpdatedAt   time.Time
}

type ProductRepository interface {
	Create(ctx context.Context, product domain.Product) (domain.Product, error)
	Update(ctx context.Context, params UpdateProductParams) (domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}

type ActivityRepository interface {
	Record(ctx context.Context, activity domain.Activity) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Activity, error)
}
