package postgres

import (
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
	"gorm.io/gorm"
)

type Options struct {
	// LockingClaim enables FOR UPDATE SKIP LOCKED on the outbox claim. It
	// only takes effect on the postgres dialect.
	LockingClaim bool
}

type Repositories struct {
	Tx              *TxManager
	Outbox          ports.OutboxRepository
	ProcessedEvents ports.ProcessedEventRepository
	Products        ports.ProductRepository
	Activity        ports.ActivityRepository
}

func NewRepositories(db *gorm.DB, opts Options) Repositories {
	return Repositories{
		Tx: NewTxManager(db),
		Outbox: &outboxRepository{
			db:           db,
			lockingClaim: opts.LockingClaim && db.Dialector.Name() == "postgres",
		},
		ProcessedEvents: &processedEventRepository{db: db},
		Products:        &productRepository{db: db},
		Activity:        &activityRepository{db: db},
	}
}
