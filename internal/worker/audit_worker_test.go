package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/services"
)

func event(typ amqp.EventType, id string, amount float64, version uint64) *amqp.TransactionEvent {
	return &amqp.TransactionEvent{Type: typ, ID: id, Description: "x", Amount: amount, Category: "c", Version: version}
}

func epochEvent(epoch string, typ amqp.EventType, id string, amount float64, version uint64) *amqp.TransactionEvent {
	e := event(typ, id, amount, version)
	e.Epoch = epoch
	return e
}

func TestAuditWorker_NetChange(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "a", 100, 1)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "b", -45.75, 2)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventUpdated, "b", -50, 3)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventRemoved, "a", 100, 4)))

	s := w.Stats()
	assert.Equal(t, "-50", s.NetChange.String())
	assert.Equal(t, uint64(4), s.LastVersion)
	assert.Equal(t, 1, s.Tracked)
	assert.Equal(t, 2, s.Events[amqp.EventCreated])
	assert.Equal(t, 1, s.Events[amqp.EventUpdated])
	assert.Equal(t, 1, s.Events[amqp.EventRemoved])
	assert.Zero(t, s.Missed)
}

func TestAuditWorker_UntrackedRemoval(t *testing.T) {
	w := NewAuditWorker(nil)

	// a transaction created before the worker started
	require.NoError(t, w.HandleEvent(context.Background(), event(amqp.EventRemoved, "seed", -1200, 7)))

	assert.Equal(t, "1200", w.Stats().NetChange.String())
}

func TestAuditWorker_OutOfOrderAndDuplicates(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "a", 1, 2)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "b", 1, 4)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "c", 1, 1)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "b", 1, 4)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "a", 1, 2)))

	s := w.Stats()
	assert.Equal(t, 2, s.Stale)
	assert.Equal(t, uint64(4), s.LastVersion)
	assert.Equal(t, uint64(1), s.Pending, "version 3 not seen yet")
	assert.Zero(t, s.Missed)
	assert.Equal(t, "3", s.NetChange.String())

	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "d", 1, 3)))
	assert.Zero(t, w.Stats().Pending)
	assert.Equal(t, "4", w.Stats().NetChange.String())
}

func TestAuditWorker_JoinsRunningTracker(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "a", 1, 1000)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "b", 1, 999)))

	s := w.Stats()
	assert.Equal(t, 1, s.Stale, "versions before the first one seen predate the auditor")
	assert.Zero(t, s.Pending)
	assert.Zero(t, s.Missed)
}

func TestAuditWorker_VersionsFallingOutOfWindowAreMissed(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "a", 1, 1000)))
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "b", 1, 1000+reorderWindow+44)))

	s := w.Stats()
	assert.Equal(t, uint64(44), s.Missed)
	assert.Equal(t, uint64(reorderWindow-1), s.Pending)

	// too late to count
	require.NoError(t, w.HandleEvent(ctx, event(amqp.EventCreated, "c", 1, 1001)))
	assert.Equal(t, 1, w.Stats().Stale)
}

func TestAuditWorker_Rejects(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx := context.Background()

	assert.ErrorIs(t, w.HandleEvent(ctx, nil), amqp.ErrInvalidEvent)
	assert.ErrorIs(t, w.HandleEvent(ctx, event(amqp.EventCreated, "", 1, 1)), amqp.ErrInvalidEvent)
	assert.ErrorIs(t, w.HandleEvent(ctx, event("renamed", "a", 1, 1)), amqp.ErrInvalidEvent)
	assert.Zero(t, w.Stats().LastVersion)
}

func TestAuditWorker_TrackerRestart(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx := context.Background()

	for v := uint64(1); v <= 50; v++ {
		require.NoError(t, w.HandleEvent(ctx, epochEvent("run-1", amqp.EventCreated, fmt.Sprintf("a%d", v), 1, v)))
	}
	for v := uint64(1); v <= 10; v++ {
		require.NoError(t, w.HandleEvent(ctx, epochEvent("run-2", amqp.EventCreated, fmt.Sprintf("b%d", v), 5, v)))
	}

	s := w.Stats()
	assert.Equal(t, "run-2", s.Epoch)
	assert.Equal(t, 1, s.Restarts)
	assert.Zero(t, s.Stale)
	assert.Zero(t, s.Missed)
	assert.Equal(t, uint64(10), s.LastVersion)
	assert.Equal(t, 10, s.Tracked)
	assert.Equal(t, 60, s.Events[amqp.EventCreated])
	assert.Equal(t, "100", s.NetChange.String())
}

func TestAuditWorker_LateEventFromPreviousRun(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, epochEvent("run-1", amqp.EventCreated, "a", 1, 1)))
	require.NoError(t, w.HandleEvent(ctx, epochEvent("run-2", amqp.EventCreated, "b", 2, 1)))
	require.NoError(t, w.HandleEvent(ctx, epochEvent("run-1", amqp.EventCreated, "c", 4, 2)))

	s := w.Stats()
	assert.Equal(t, "run-2", s.Epoch)
	assert.Equal(t, 1, s.Restarts)
	assert.Equal(t, 1, s.Stale)
	assert.Equal(t, "3", s.NetChange.String())
}

type auditPublisher struct {
	mu     sync.Mutex
	events []*amqp.TransactionEvent
}

func (p *auditPublisher) PublishTransactionEvent(_ context.Context, e *amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func TestAuditWorker_ReplaysConcurrentMutations(t *testing.T) {
	pub := &auditPublisher{}
	svc := services.NewTransactionService(ledger.New(nil), pub, services.ViewCacheConfig{Size: 4, TTL: time.Minute}, nil)
	ctx := context.Background()

	const writers = 200
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, core.Draft{Description: "x", Amount: 1, Category: "c"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// replay in publish order, which may differ from version order
	w := NewAuditWorker(nil)
	require.Len(t, pub.events, writers)
	for _, e := range pub.events {
		require.NoError(t, w.HandleEvent(ctx, e))
	}

	s := w.Stats()
	assert.Zero(t, s.Stale)
	assert.Zero(t, s.Missed)
	assert.Zero(t, s.Pending)
	assert.Equal(t, uint64(writers), s.LastVersion)
	assert.Equal(t, fmt.Sprint(writers), s.NetChange.String())
}

func TestAuditWorker_StatsIsACopy(t *testing.T) {
	w := NewAuditWorker(nil)
	require.NoError(t, w.HandleEvent(context.Background(), event(amqp.EventCreated, "a", 1, 1)))

	s := w.Stats()
	s.Events[amqp.EventCreated] = 99

	assert.Equal(t, 1, w.Stats().Events[amqp.EventCreated])
}

func TestAuditWorker_ReportStopsOnCancel(t *testing.T) {
	w := NewAuditWorker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, w.Report(ctx, 10))
}
