package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/events"
	httpadapter "github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/http"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/inference"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/security"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

type Runtime struct {
	cfg         Config
	logger      *slog.Logger
	db          *gorm.DB
	repos       postgres.Repositories
	service     *application.Service
	redisClient *redis.Client
}

func newLogger(cfg Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.slogLevel()})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	return logger
}

// NewRuntime wires the store, cache and application service shared by the
// API and worker processes. Broker clients are built by RunWorker.
func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = postgres.Close(db)
		return nil, err
	}
	repos := postgres.NewRepositories(db, postgres.Options{LockingClaim: cfg.OutboxLockingClaim})

	var productCache ports.Cache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = postgres.Close(db)
			return nil, err
		}
		productCache = cache.NewRedisCache(redisClient, "m59:")
	} else {
		logger.WarnContext(ctx, "redis not configured, product cache disabled",
			"module", "bootstrap", "layer", "runtime", "operation", "connect_cache", "outcome", "skipped")
	}

	var inferenceClient ports.InferenceClient
	if cfg.InferenceBaseURL != "" {
		client, clientErr := inference.NewClient(cfg.InferenceBaseURL, cfg.InferenceTimeout())
		if clientErr != nil {
			_ = postgres.Close(db)
			return nil, clientErr
		}
		inferenceClient = client
	}

	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:     cfg.ServiceID,
			ProductCacheTTL: cfg.ProductCacheTTL(),
		},
		Logger:          logger,
		Tx:              repos.Tx,
		Outbox:          repos.Outbox,
		ProcessedEvents: repos.ProcessedEvents,
		Products:        repos.Products,
		Handler:         application.NewActivityHandler(logger, repos.Activity, productCache),
		Cache:           productCache,
		Inference:       inferenceClient,
	})

	return &Runtime{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		repos:       repos,
		service:     service,
		redisClient: redisClient,
	}, nil
}

func (r *Runtime) ready(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Runtime) close() {
	if r.redisClient != nil {
		_ = r.redisClient.Close()
	}
	_ = postgres.Close(r.db)
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.close()

	var operators ports.OperatorVerifier
	if r.cfg.OperatorJWTSecret != "" {
		verifier, err := security.NewOperatorJWT(r.cfg.OperatorJWTSecret, r.cfg.ServiceID)
		if err != nil {
			return err
		}
		operators = verifier
	} else {
		r.logger.WarnContext(ctx, "operator secret not configured, admin routes closed",
			"module", "bootstrap", "layer", "runtime", "operation", "run_api", "outcome", "degraded")
	}
	router := httpadapter.NewRouter(httpadapter.NewHandler(r.service, r.ready, operators))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	r.logger.InfoContext(ctx, "api runtime started",
		"module", "bootstrap", "layer", "runtime", "operation", "run_api", "outcome", "started",
		"http_port", r.cfg.HTTPPort, "grpc_port", r.cfg.GRPCPort)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", runErr)
	}
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	return runErr
}

func (r *Runtime) newBroker(ctx context.Context) (ports.BrokerClient, error) {
	if len(r.cfg.KafkaBrokers) == 0 {
		r.logger.WarnContext(ctx, "kafka not configured, using logging broker client",
			"module", "bootstrap", "layer", "runtime", "operation", "build_broker", "outcome", "fallback")
		return eventadapter.NewLoggingBrokerClient(r.logger), nil
	}
	var (
		client ports.BrokerClient
		err    error
	)
	switch r.cfg.KafkaClient {
	case "sarama":
		client, err = eventadapter.NewSaramaBrokerClient(r.cfg.KafkaBrokers, r.cfg.BrokerSendTimeout())
	default:
		client, err = eventadapter.NewKafkaBrokerClient(r.cfg.KafkaBrokers, r.cfg.BrokerSendTimeout())
	}
	if err != nil {
		return nil, err
	}
	if r.cfg.BrokerBreakerEnabled {
		client = eventadapter.NewBreakerBrokerClient(r.logger, client, r.cfg.BrokerBreakerFailures, r.cfg.BrokerBreakerOpen())
	}
	return client, nil
}

func (r *Runtime) newSubscriber(ctx context.Context) (ports.Subscriber, error) {
	if len(r.cfg.KafkaBrokers) == 0 {
		r.logger.WarnContext(ctx, "kafka not configured, consumer idle",
			"module", "bootstrap", "layer", "runtime", "operation", "build_subscriber", "outcome", "fallback")
		return eventadapter.NewNoopSubscriber(), nil
	}
	switch r.cfg.KafkaClient {
	case "sarama":
		return eventadapter.NewSaramaSubscriber(r.cfg.KafkaBrokers, r.cfg.KafkaConsumerGroup, r.cfg.KafkaTopic)
	default:
		return eventadapter.NewKafkaSubscriber(r.cfg.KafkaBrokers, r.cfg.KafkaConsumerGroup, r.cfg.KafkaTopic)
	}
}

// RunWorker runs the outbox publisher and the consumer until a signal
// arrives. Both loops drain their in-flight work before broker clients and
// the database are closed.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.close()

	broker, err := r.newBroker(ctx)
	if err != nil {
		return err
	}
	defer broker.Close()
	subscriber, err := r.newSubscriber(ctx)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	publisher := eventadapter.NewOutboxWorker(r.logger, r.repos.Tx, r.repos.Outbox, broker, r.cfg.KafkaTopic, r.cfg.PublishDelay(), r.cfg.OutboxBatchSize)
	consumer := eventadapter.NewConsumerWorker(r.logger, subscriber, r.service, r.cfg.ConsumerRetryMaxInterval())

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	go func() { errCh <- publisher.Run(workerCtx) }()
	go func() { errCh <- consumer.Run(workerCtx) }()
	r.logger.InfoContext(ctx, "worker runtime started",
		"module", "bootstrap", "layer", "runtime", "operation", "run_worker", "outcome", "started",
		"topic", r.cfg.KafkaTopic, "consumer_group", r.cfg.KafkaConsumerGroup, "kafka_client", r.cfg.KafkaClient)

	var runErr error
	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
			r.logger.ErrorContext(ctx, "runtime failure", "error", err)
		}
		// One loop ending stops the other.
		cancel()
	}
	return runErr
}

// RunSmoke sends one startup smoke message to APP_TOPIC and returns once the
// broker acknowledges it.
func RunSmoke(ctx context.Context, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := validateSmokeConfig(cfg); err != nil {
		return err
	}
	logger := newLogger(cfg)
	rt := &Runtime{cfg: cfg, logger: logger}
	broker, err := rt.newBroker(ctx)
	if err != nil {
		return err
	}
	defer broker.Close()

	body, err := json.Marshal(map[string]any{
		"type": "startup-smoke",
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"msg":  "hello from " + cfg.ServiceID,
	})
	if err != nil {
		return err
	}
	key := uuid.NewString()
	if err := broker.SendSync(ctx, cfg.SmokeTopic, key, body); err != nil {
		logger.ErrorContext(ctx, "startup smoke message failed",
			"module", "bootstrap", "layer", "runtime", "operation", "smoke", "outcome", "failure",
			"topic", cfg.SmokeTopic, "error", err)
		return err
	}
	logger.InfoContext(ctx, "startup smoke message sent",
		"module", "bootstrap", "layer", "runtime", "operation", "smoke", "outcome", "success",
		"topic", cfg.SmokeTopic, "key", key)
	return nil
}
