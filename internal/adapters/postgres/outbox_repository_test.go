package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres/postgrestest"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func appendEvents(t *testing.T, ctx context.Context, appendFn func(context.Context, domain.OutboxEvent) error, n int) []domain.OutboxEvent {
	t.Helper()
	out := make([]domain.OutboxEvent, 0, n)
	for i := 0; i < n; i++ {
		// Inserted newest first so ordering comes from created_at, not insertion.
		evt, err := domain.NewOutboxEvent(uuid.New(), domain.EventTypeProductCreated, fmt.Sprintf("p-%d", i),
			[]byte(`{"i":`+fmt.Sprint(i)+`}`), base.Add(time.Duration(n-i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, appendFn(ctx, evt))
		out = append(out, evt)
	}
	return out
}

func TestClaimBatchRespectsLimitAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)

	appendEvents(t, ctx, repos.Outbox.Append, 5)

	claimed, err := repos.Outbox.ClaimBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	for i := 1; i < len(claimed); i++ {
		assert.False(t, claimed[i].CreatedAt.Before(claimed[i-1].CreatedAt), "claim must be oldest first")
	}
	for _, evt := range claimed {
		assert.Equal(t, domain.OutboxStatusProcessing, evt.Status)
		stored, err := repos.Outbox.Get(ctx, evt.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OutboxStatusProcessing, stored.Status)
	}

	rest, err := repos.Outbox.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	none, err := repos.Outbox.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	zero, err := repos.Outbox.ClaimBatch(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, zero)
}

func TestClaimBatchRolledBackWithTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	appendEvents(t, ctx, repos.Outbox.Append, 2)

	boom := errors.New("db went away")
	err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		claimed, err := repos.Outbox.ClaimBatch(ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := repos.Outbox.ListByStatus(ctx, domain.OutboxStatusNew, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestMarkSentAndMarkFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	appendEvents(t, ctx, repos.Outbox.Append, 2)

	claimed, err := repos.Outbox.ClaimBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	require.NoError(t, repos.Outbox.MarkSent(ctx, &claimed[0], base))
	require.NoError(t, repos.Outbox.MarkFailed(ctx, &claimed[1], strings.Repeat("e", 1200)))

	sent, err := repos.Outbox.Get(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.Nil(t, sent.LastError)
	assert.Zero(t, sent.AttemptCount)

	failed, err := repos.Outbox.Get(ctx, claimed[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Len(t, *failed.LastError, domain.MaxErrorLength)
	assert.Nil(t, failed.SentAt)

	// Outcomes only apply to rows still in PROCESSING.
	stale := claimed[0]
	stale.Status = domain.OutboxStatusProcessing
	require.ErrorIs(t, repos.Outbox.MarkFailed(ctx, &stale, "late"), domain.ErrConflict)
}

func TestRequeue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	events := appendEvents(t, ctx, repos.Outbox.Append, 1)

	_, err := repos.Outbox.Requeue(ctx, events[0].ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	claimed, err := repos.Outbox.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, repos.Outbox.MarkFailed(ctx, &claimed[0], "timeout"))

	requeued, err := repos.Outbox.Requeue(ctx, events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusNew, requeued.Status)
	assert.Equal(t, 1, requeued.AttemptCount)

	again, err := repos.Outbox.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.NoError(t, repos.Outbox.MarkFailed(ctx, &again[0], "timeout"))

	stored, err := repos.Outbox.Get(ctx, events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AttemptCount)

	_, err = repos.Outbox.Requeue(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppendDuplicateID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	events := appendEvents(t, ctx, repos.Outbox.Append, 1)

	require.ErrorIs(t, repos.Outbox.Append(ctx, events[0]), domain.ErrConflict)
}

func TestReleaseReturnsClaimToNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	appendEvents(t, ctx, repos.Outbox.Append, 3)

	claimed, err := repos.Outbox.ClaimBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	require.NoError(t, repos.Outbox.MarkSent(ctx, &claimed[0], base))

	require.NoError(t, repos.Outbox.Release(ctx, claimed[1:]))
	for _, evt := range claimed[1:] {
		assert.Equal(t, domain.OutboxStatusNew, evt.Status)
		stored, err := repos.Outbox.Get(ctx, evt.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OutboxStatusNew, stored.Status)
		assert.Zero(t, stored.AttemptCount)
	}

	// Already sent rows cannot be released.
	require.ErrorIs(t, repos.Outbox.Release(ctx, claimed[:1]), domain.ErrInvalidTransition)
	require.NoError(t, repos.Outbox.Release(ctx, nil))

	again, err := repos.Outbox.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, again, 2)
}
