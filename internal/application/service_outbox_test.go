package application_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

func TestCreateProductAppendsOutboxRowVisibleAfterRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	product, err := h.svc.CreateProduct(ctx, application.CreateProductRequest{
		Name: "Lamp", Description: "Desk lamp", Price: 25, StockLevel: 4,
	})
	require.NoError(t, err)

	// A fresh set of repositories over the same database stands in for a
	// restarted process that never ran a tick.
	restarted := postgres.NewRepositories(h.db, postgres.Options{LockingClaim: true})
	claimed, err := restarted.Outbox.ClaimBatch(ctx, 20)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	evt := claimed[0]
	assert.Equal(t, domain.EventTypeProductCreated, evt.EventType)
	assert.Equal(t, product.ID.String(), evt.AggregateID)

	env, err := domain.DecodeEnvelope(evt.Payload)
	require.NoError(t, err)
	assert.Equal(t, evt.ID.String(), env.EventID)
	assert.Equal(t, domain.EnvelopeSchemaVersion, env.SchemaVersion)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, product.ID.String(), data["productId"])
}

func TestWriteRollsBackBusinessChangeWhenPayloadCannotSerialize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	productID := uuid.New()
	err := h.svc.Write(ctx, func(ctx context.Context, events application.EventAppender) error {
		if _, err := h.repos.Products.Create(ctx, domain.Product{
			ID: productID, Name: "Lamp", Description: "Desk lamp", Price: 25,
		}); err != nil {
			return err
		}
		_, err := events.Append(ctx, domain.EventTypeProductCreated, productID.String(), map[string]any{"bad": make(chan int)})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.repos.Products.GetByID(ctx, productID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.outboxRows(t, ""))
}

func TestWriteCommitsSeveralEventsTogether(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	err := h.svc.Write(ctx, func(ctx context.Context, events application.EventAppender) error {
		for _, agg := range []string{"a", "b"} {
			if _, err := events.Append(ctx, "AUDIT", agg, map[string]string{"k": agg}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, h.outboxRows(t, domain.OutboxStatusNew), 2)
}

func TestUpdateProductEmitsOnlyOnChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	product, err := h.svc.CreateProduct(ctx, application.CreateProductRequest{
		Name: "Lamp", Description: "Desk lamp", Price: 25, StockLevel: 4,
	})
	require.NoError(t, err)

	same := "Lamp"
	_, err = h.svc.UpdateProduct(ctx, product.ID.String(), application.UpdateProductRequest{Name: &same})
	require.NoError(t, err)
	assert.Len(t, h.outboxRows(t, ""), 1)

	stock := 9
	updated, err := h.svc.UpdateProduct(ctx, product.ID.String(), application.UpdateProductRequest{Name: &same, StockLevel: &stock})
	require.NoError(t, err)
	assert.Equal(t, 9, updated.StockLevel)

	rows := h.outboxRows(t, "")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.EventTypeProductUpdated, rows[1].EventType)
	env, err := domain.DecodeEnvelope(rows[1].Payload)
	require.NoError(t, err)
	assert.Contains(t, string(env.Data), `"changedFields":["stock_level"]`)

	bad := -1
	_, err = h.svc.UpdateProduct(ctx, product.ID.String(), application.UpdateProductRequest{StockLevel: &bad})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Len(t, h.outboxRows(t, ""), 2)
}

func TestDeleteProduct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	product, err := h.svc.CreateProduct(ctx, application.CreateProductRequest{
		Name: "Lamp", Description: "Desk lamp", Price: 25,
	})
	require.NoError(t, err)
	require.NoError(t, h.svc.DeleteProduct(ctx, product.ID.String()))

	rows := h.outboxRows(t, "")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.EventTypeProductDeleted, rows[1].EventType)

	require.ErrorIs(t, h.svc.DeleteProduct(ctx, product.ID.String()), domain.ErrNotFound)
	require.ErrorIs(t, h.svc.DeleteProduct(ctx, "not-a-uuid"), domain.ErrInvalidInput)
}

func TestProductReadsUseCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	product, err := h.svc.CreateProduct(ctx, application.CreateProductRequest{
		Name: "Lamp", Description: "Desk lamp", Price: 25,
	})
	require.NoError(t, err)

	list, err := h.svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, h.cache.has("products:all"))

	got, err := h.svc.GetProduct(ctx, product.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Lamp", got.Name)
	assert.True(t, h.cache.has("products:id:"+product.ID.String()))

	// Served from cache even once the row is gone underneath.
	require.NoError(t, h.repos.Products.Delete(ctx, product.ID))
	cached, err := h.svc.GetProduct(ctx, product.ID.String())
	require.NoError(t, err)
	assert.Equal(t, product.ID, cached.ID)

	_, err = h.svc.CreateProduct(ctx, application.CreateProductRequest{Name: "Mug", Description: "Tea mug", Price: 5})
	require.NoError(t, err)
	assert.False(t, h.cache.has("products:all"))
}

func TestRequeueOutboxEventThroughService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.CreateProduct(ctx, application.CreateProductRequest{Name: "Lamp", Description: "Desk lamp", Price: 25})
	require.NoError(t, err)
	claimed, err := h.repos.Outbox.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, h.repos.Outbox.MarkFailed(ctx, &claimed[0], "timeout"))

	failed, err := h.svc.ListOutbox(ctx, "failed", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	evt, err := h.svc.RequeueOutboxEvent(ctx, failed[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusNew, evt.Status)

	_, err = h.svc.RequeueOutboxEvent(ctx, failed[0].ID.String())
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.svc.ListOutbox(ctx, "bogus", 10)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.svc.GetOutboxEvent(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetRecommendationsAppendsInferenceServed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.svc.GetRecommendations(ctx, "u-1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.EventID)
	assert.JSONEq(t, `{"user_id":"u-1","recommendations":["p-1","p-2"]}`, string(res.Body))

	rows := h.outboxRows(t, domain.OutboxStatusNew)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.EventTypeInferenceServed, rows[0].EventType)
	assert.Equal(t, "u-1", rows[0].AggregateID)
	env, err := domain.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "u-1", data["user_id"])
	assert.Contains(t, data, "latency_ms")

	_, err = h.svc.GetRecommendations(ctx, " ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	numeric, err := h.svc.GetRecommendations(ctx, "42")
	require.NoError(t, err)
	stored, err := h.repos.Outbox.Get(ctx, uuid.MustParse(numeric.EventID))
	require.NoError(t, err)
	env, err = domain.DecodeEnvelope(stored.Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(mustField(t, env.Data, "user_id")))

	h.inference.err = domain.ErrDependencyUnavailable
	_, err = h.svc.GetRecommendations(ctx, "u-2")
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.Len(t, h.outboxRows(t, domain.OutboxStatusNew), 2)
}

func mustField(t *testing.T, raw json.RawMessage, name string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	field, ok := fields[name]
	require.True(t, ok, "missing %s", name)
	return field
}
