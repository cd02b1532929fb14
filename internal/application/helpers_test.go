package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres/postgrestest"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
	"gorm.io/gorm"
)

type memoryCache struct {
	mu      sync.Mutex
	items   map[string]string
	deletes []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]string{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
		c.deletes = append(c.deletes, k)
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// countingHandler wraps the real handler and can inject a failure.
type countingHandler struct {
	mu    sync.Mutex
	next  ports.EventHandler
	calls int
	fail  error
}

func (h *countingHandler) Handle(ctx context.Context, env domain.Envelope) error {
	h.mu.Lock()
	h.calls++
	fail := h.fail
	h.mu.Unlock()
	if fail != nil {
		return fail
	}
	return h.next.Handle(ctx, env)
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type fakeInference struct {
	prediction ports.Prediction
	err        error
}

func (f *fakeInference) Predict(context.Context, string) (ports.Prediction, error) {
	return f.prediction, f.err
}

type harness struct {
	db        *gorm.DB
	repos     postgres.Repositories
	svc       *application.Service
	cache     *memoryCache
	handler   *countingHandler
	inference *fakeInference
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, repos := postgrestest.Repositories(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cache := newMemoryCache()
	handler := &countingHandler{next: application.NewActivityHandler(logger, repos.Activity, cache)}
	inference := &fakeInference{prediction: ports.Prediction{
		Recommendations: json.RawMessage(`["p-1","p-2"]`),
		Raw:             []byte(`{"user_id":"u-1","recommendations":["p-1","p-2"]}`),
	}}
	svc := application.NewService(application.Dependencies{
		Logger:          logger,
		Tx:              repos.Tx,
		Outbox:          repos.Outbox,
		ProcessedEvents: repos.ProcessedEvents,
		Products:        repos.Products,
		Handler:         handler,
		Cache:           cache,
		Inference:       inference,
	})
	return &harness{db: db, repos: repos, svc: svc, cache: cache, handler: handler, inference: inference}
}

func (h *harness) outboxRows(t *testing.T, status domain.OutboxStatus) []domain.OutboxEvent {
	t.Helper()
	rows, err := h.repos.Outbox.ListByStatus(context.Background(), status, 100)
	require.NoError(t, err)
	return rows
}

func (h *harness) countRows(t *testing.T, table, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := h.db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func deliveryFor(t *testing.T, eventID, eventType, aggregateID string, data any) ports.Delivery {
	t.Helper()
	env, err := domain.NewEnvelope(eventID, eventType, aggregateID, time.Now(), data)
	require.NoError(t, err)
	raw, err := env.Marshal()
	require.NoError(t, err)
	return ports.Delivery{Topic: "inference.events.v1", Partition: 0, Offset: 1, Key: []byte(eventID), Value: raw}
}

var errTransient = errors.New("connection reset by peer")
