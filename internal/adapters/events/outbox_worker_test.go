package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/adapters/postgres/postgrestest"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

const testTopic = "inference.events.v1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type sentMessage struct {
	topic string
	key   string
	value []byte
}

type fakeBroker struct {
	mu      sync.Mutex
	sent    []sentMessage
	calls   int
	failFor map[string]error
	failAll error
	block   chan struct{}
	started chan struct{}
}

func (b *fakeBroker) SendSync(_ context.Context, topic, key string, value []byte) error {
	b.mu.Lock()
	b.calls++
	block, started := b.block, b.started
	b.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll != nil {
		return b.failAll
	}
	if err, ok := b.failFor[key]; ok {
		return err
	}
	b.sent = append(b.sent, sentMessage{topic: topic, key: key, value: value})
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) sentKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.sent))
	for _, m := range b.sent {
		keys = append(keys, m.key)
	}
	return keys
}

func seedOutbox(t *testing.T, repos postgres.Repositories, n int) []domain.OutboxEvent {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	out := make([]domain.OutboxEvent, 0, n)
	for i := 0; i < n; i++ {
		evt, err := domain.NewOutboxEvent(uuid.New(), domain.EventTypeProductCreated, fmt.Sprintf("p-%d", i),
			[]byte(fmt.Sprintf(`{"n":%d}`, i)), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, repos.Outbox.Append(context.Background(), evt))
		out = append(out, evt)
	}
	return out
}

func TestTickSendsAndRecordsMixedOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	events := seedOutbox(t, repos, 3)

	broker := &fakeBroker{failFor: map[string]error{
		events[1].ID.String(): fmt.Errorf("%w: deadline exceeded", ports.ErrBrokerTimeout),
	}}
	worker := NewOutboxWorker(discardLogger(), repos.Tx, repos.Outbox, broker, testTopic, time.Second, 20)

	res, err := worker.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Claimed: 3, Sent: 2, Failed: 1}, res)

	assert.Equal(t, []string{events[0].ID.String(), events[2].ID.String()}, broker.sentKeys())
	broker.mu.Lock()
	assert.Equal(t, testTopic, broker.sent[0].topic)
	assert.JSONEq(t, `{"n":0}`, string(broker.sent[0].value))
	broker.mu.Unlock()

	for _, i := range []int{0, 2} {
		stored, err := repos.Outbox.Get(ctx, events[i].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OutboxStatusSent, stored.Status)
		assert.NotNil(t, stored.SentAt)
		assert.Nil(t, stored.LastError)
	}
	failed, err := repos.Outbox.Get(ctx, events[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "timed out")

	// FAILED rows are not picked up again.
	res, err = worker.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{}, res)
}

func TestTickHonoursBatchSizeAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	events := seedOutbox(t, repos, 5)

	broker := &fakeBroker{}
	worker := NewOutboxWorker(discardLogger(), repos.Tx, repos.Outbox, broker, testTopic, time.Second, 2)

	res, err := worker.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Claimed)
	assert.Equal(t, []string{events[0].ID.String(), events[1].ID.String()}, broker.sentKeys())

	for i := 0; i < 2; i++ {
		_, err = worker.Tick(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, broker.sentKeys(), 5)
}

type failingOutbox struct {
	ports.OutboxRepository
	err error
}

func (f failingOutbox) MarkSent(context.Context, *domain.OutboxEvent, time.Time) error {
	return f.err
}

func TestTickRollsBackOnDatabaseError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	seedOutbox(t, repos, 2)

	dbErr := errors.New("connection lost")
	broker := &fakeBroker{}
	worker := NewOutboxWorker(discardLogger(), repos.Tx, failingOutbox{OutboxRepository: repos.Outbox, err: dbErr}, broker, testTopic, time.Second, 20)

	_, err := worker.Tick(ctx)
	require.ErrorIs(t, err, dbErr)

	// The send already happened; the row is still NEW and goes out again.
	pending, err := repos.Outbox.ListByStatus(ctx, domain.OutboxStatusNew, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Len(t, broker.sentKeys(), 1)

	healthy := NewOutboxWorker(discardLogger(), repos.Tx, repos.Outbox, broker, testTopic, time.Second, 20)
	res, err := healthy.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
}

func TestTickSkipsWhileRunning(t *testing.T) {
	t.Parallel()
	_, repos := postgrestest.Repositories(t)
	seedOutbox(t, repos, 1)

	broker := &fakeBroker{block: make(chan struct{}), started: make(chan struct{}, 1)}
	worker := NewOutboxWorker(discardLogger(), repos.Tx, repos.Outbox, broker, testTopic, time.Second, 20)

	done := make(chan TickResult, 1)
	go func() {
		res, err := worker.Tick(context.Background())
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case <-broker.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick never reached the broker")
	}
	res, err := worker.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(broker.block)
	first := <-done
	assert.Equal(t, 1, first.Sent)
}

func TestTickDrainsAfterCancel(t *testing.T) {
	t.Parallel()
	_, repos := postgrestest.Repositories(t)
	events := seedOutbox(t, repos, 1)

	broker := &fakeBroker{}
	worker := NewOutboxWorker(discardLogger(), repos.Tx, repos.Outbox, broker, testTopic, time.Second, 20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := worker.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	stored, err := repos.Outbox.Get(context.Background(), events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStatusSent, stored.Status)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	t.Parallel()
	_, repos := postgrestest.Repositories(t)
	seedOutbox(t, repos, 3)

	broker := &fakeBroker{}
	worker := NewOutboxWorker(discardLogger(), repos.Tx, repos.Outbox, broker, testTopic, 10*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return len(broker.sentKeys()) == 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestTickReleasesBatchWhileCircuitOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, repos := postgrestest.Repositories(t)
	seedOutbox(t, repos, 40)

	inner := &fakeBroker{failAll: fmt.Errorf("%w: connection refused", ports.ErrBrokerUnavailable)}
	broker := NewBreakerBrokerClient(discardLogger(), inner, 5, time.Minute)
	worker := NewOutboxWorker(discardLogger(), repos.Tx, repos.Outbox, broker, testTopic, time.Second, 20)

	res, err := worker.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Claimed: 20, Failed: 5, Released: 15}, res)

	res, err = worker.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Claimed: 20, Released: 20}, res)

	inner.mu.Lock()
	assert.Equal(t, 5, inner.calls)
	inner.mu.Unlock()

	failed, err := repos.Outbox.ListByStatus(ctx, domain.OutboxStatusFailed, 100)
	require.NoError(t, err)
	assert.Len(t, failed, 5)
	for _, evt := range failed {
		assert.Equal(t, 1, evt.AttemptCount)
	}
	pending, err := repos.Outbox.ListByStatus(ctx, domain.OutboxStatusNew, 100)
	require.NoError(t, err)
	require.Len(t, pending, 35)
	for _, evt := range pending {
		assert.Zero(t, evt.AttemptCount)
		assert.Nil(t, evt.LastError)
	}
}
