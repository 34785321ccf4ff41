// Package worker consumes transaction change events published by the tracker.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/amqp"
	applog "bilancio/internal/log"
)

// reorderWindow is how far behind the highest version a late event is still
// accepted. Versions that fall out of the window unseen count as missed.
const reorderWindow = 256

// AuditStats is a point-in-time view of what the auditor has observed.
// NetChange only covers changes seen since the auditor started; Tracked,
// LastVersion and Pending belong to the current Epoch.
type AuditStats struct {
	Events      map[amqp.EventType]int
	Epoch       string
	Restarts    int
	LastVersion uint64
	Pending     uint64
	Missed      uint64
	Stale       int
	Tracked     int
	NetChange   decimal.Decimal
}

// AuditWorker follows the event stream, detects gaps in the collection
// version sequence and keeps a running net change of the amounts it has seen.
type AuditWorker struct {
	logger *applog.Logger

	mu          sync.Mutex
	events      map[amqp.EventType]int
	epoch       string
	retired     map[string]struct{}
	restarts    int
	started     bool
	floor       uint64
	lastVersion uint64
	seen        map[uint64]struct{}
	missed      uint64
	stale       int
	amounts     map[string]decimal.Decimal
	net         decimal.Decimal
}

func NewAuditWorker(logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &AuditWorker{
		logger:  logger.WithComponent(applog.ComponentWorker),
		events:  make(map[amqp.EventType]int),
		retired: make(map[string]struct{}),
		seen:    make(map[uint64]struct{}),
		amounts: make(map[string]decimal.Decimal),
	}
}

// HandleEvent records one event. Versions may arrive out of order within
// reorderWindow; a version seen before, or an event from an epoch that has
// been replaced, is counted as stale and otherwise ignored. Malformed events
// wrap amqp.ErrInvalidEvent.
func (w *AuditWorker) HandleEvent(ctx context.Context, e *amqp.TransactionEvent) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("audit event: missing transaction id: %w", amqp.ErrInvalidEvent)
	}
	switch e.Type {
	case amqp.EventCreated, amqp.EventUpdated, amqp.EventRemoved:
	default:
		return fmt.Errorf("audit event %s: unknown type %q: %w", e.ID, e.Type, amqp.ErrInvalidEvent)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, old := w.retired[e.Epoch]; old {
		w.stale++
		w.logger.DebugContext(ctx, "Ignoring event from a previous tracker run",
			applog.FieldEventType, e.Type,
			"epoch", e.Epoch)
		return nil
	}
	if e.Epoch != w.epoch {
		if w.epoch != "" {
			// the tracker restarted: versions count from zero and the
			// transactions of the previous run are gone
			w.retired[w.epoch] = struct{}{}
			w.restarts++
			w.started = false
			clear(w.amounts)
			w.logger.InfoContext(ctx, "Tracker restarted, following new epoch",
				"previous_epoch", w.epoch,
				"epoch", e.Epoch)
		}
		w.epoch = e.Epoch
	}

	if !w.accept(ctx, e.Version) {
		w.stale++
		w.logger.DebugContext(ctx, "Ignoring stale event",
			applog.FieldEventType, e.Type,
			applog.FieldVersion, e.Version,
			"last_version", w.lastVersion)
		return nil
	}

	amount := decimal.NewFromFloat(e.Amount)
	switch e.Type {
	case amqp.EventCreated:
		w.amounts[e.ID] = amount
		w.net = w.net.Add(amount)
	case amqp.EventUpdated:
		if prev, ok := w.amounts[e.ID]; ok {
			w.net = w.net.Sub(prev)
		}
		w.amounts[e.ID] = amount
		w.net = w.net.Add(amount)
	case amqp.EventRemoved:
		if prev, ok := w.amounts[e.ID]; ok {
			w.net = w.net.Sub(prev)
			delete(w.amounts, e.ID)
		} else {
			w.net = w.net.Sub(amount)
		}
	}
	w.events[e.Type]++

	w.logger.InfoContext(ctx, "Transaction event audited",
		applog.NewFields().
			WithOperation(string(e.Type)).
			WithTransaction(e.ID, e.Description, e.Amount, e.Category).
			WithVersion(e.Version).
			ToSlice()...)
	return nil
}

// accept reports whether version is new for the current epoch and records
// it. Caller holds w.mu.
func (w *AuditWorker) accept(ctx context.Context, version uint64) bool {
	if !w.started {
		w.started = true
		clear(w.seen)
		w.floor, w.lastVersion = 0, 0
		// a fresh tracker counts from 1; a later first version means the
		// auditor joined a running tracker and earlier versions predate it
		if version > reorderWindow {
			w.floor, w.lastVersion = version-1, version-1
		}
	}

	if version <= w.floor {
		return false
	}
	if _, dup := w.seen[version]; dup {
		return false
	}
	w.seen[version] = struct{}{}
	if version > w.lastVersion {
		w.lastVersion = version
	}

	for {
		if _, ok := w.seen[w.floor+1]; !ok {
			break
		}
		delete(w.seen, w.floor+1)
		w.floor++
	}

	if w.lastVersion > w.floor+reorderWindow {
		var lost uint64
		for w.floor < w.lastVersion-reorderWindow {
			if _, ok := w.seen[w.floor+1]; ok {
				delete(w.seen, w.floor+1)
			} else {
				lost++
			}
			w.floor++
		}
		if lost > 0 {
			w.missed += lost
			w.logger.WarnContext(ctx, "Versions missing from event stream",
				applog.FieldVersion, version,
				"missed", lost)
		}
	}
	return true
}

// Stats returns a copy of the current counters.
func (w *AuditWorker) Stats() AuditStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	events := make(map[amqp.EventType]int, len(w.events))
	for k, v := range w.events {
		events[k] = v
	}
	return AuditStats{
		Events:      events,
		Epoch:       w.epoch,
		Restarts:    w.restarts,
		LastVersion: w.lastVersion,
		Pending:     w.lastVersion - w.floor - uint64(len(w.seen)),
		Missed:      w.missed,
		Stale:       w.stale,
		Tracked:     len(w.amounts),
		NetChange:   w.net,
	}
}

// Report logs the counters every interval until ctx is cancelled.
func (w *AuditWorker) Report(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := w.Stats()
			w.logger.InfoContext(ctx, "Audit report",
				"created", s.Events[amqp.EventCreated],
				"updated", s.Events[amqp.EventUpdated],
				"removed", s.Events[amqp.EventRemoved],
				"epoch", s.Epoch,
				"restarts", s.Restarts,
				"last_version", s.LastVersion,
				"pending", s.Pending,
				"missed", s.Missed,
				"stale", s.Stale,
				"net_change", s.NetChange.String())
		}
	}
}
