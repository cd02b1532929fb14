package application

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type Service struct {
	cfg       Config
	logger    *slog.Logger
	tx        ports.TxManager
	outbox    ports.OutboxRepository
	processed ports.ProcessedEventRepository
	products  ports.ProductRepository
	handler   ports.EventHandler
	cache     ports.Cache
	inference ports.InferenceClient
	nowFn     func() time.Time
	newID     func() uuid.UUID
}

type Dependencies struct {
	Config          Config
	Logger          *slog.Logger
	Tx              ports.TxManager
	Outbox          ports.OutboxRepository
	ProcessedEvents ports.ProcessedEventRepository
	Products        ports.ProductRepository
	Handler         ports.EventHandler
	Cache           ports.Cache
	Inference       ports.InferenceClient
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M59-Inference-Event-Relay"
	}
	if cfg.ProductCacheTTL <= 0 {
		cfg.ProductCacheTTL = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		tx:        deps.Tx,
		outbox:    deps.Outbox,
		processed: deps.ProcessedEvents,
		products:  deps.Products,
		handler:   deps.Handler,
		cache:     deps.Cache,
		inference: deps.Inference,
		nowFn:     func() time.Time { return time.Now().UTC() },
		newID:     uuid.New,
	}
}
