package services

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// EventPublisher receives a TransactionEvent after every successful mutation.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, e *amqp.TransactionEvent) error
}

// DashboardView is everything the dashboard renders for one set of criteria.
// Summary and Categories describe the whole collection; Transactions is the
// filtered view.
type DashboardView struct {
	Version      uint64             `json:"version"`
	Criteria     core.Criteria      `json:"criteria"`
	Summary      core.Summary       `json:"summary"`
	Categories   []string           `json:"categories"`
	Transactions []core.Transaction `json:"transactions"`
	Total        int                `json:"total"`
}

// StatsView is everything the statistics page renders.
type StatsView struct {
	Version    uint64          `json:"version"`
	Count      int             `json:"count"`
	Chart      core.Chart      `json:"chart"`
	Breakdown  core.Breakdown  `json:"breakdown"`
	Comparison core.Comparison `json:"comparison"`
}

// HasTransactions reports whether there is anything to chart at all.
func (v StatsView) HasTransactions() bool {
	return v.Count > 0
}

// ViewCacheConfig bounds the memoised views.
type ViewCacheConfig struct {
	Size int
	TTL  time.Duration
}

// TransactionService orchestrates the ledger, the derived views and change
// events.
type TransactionService struct {
	store      *ledger.Store
	events     EventPublisher
	dashboards *cache.LRUCache[DashboardView]
	stats      *cache.LRUCache[StatsView]
	palette    core.Palette
	logger     *applog.Logger
}

// NewTransactionService wires the service. events may be nil, in which case
// no change events are published.
func NewTransactionService(store *ledger.Store, events EventPublisher, views ViewCacheConfig, logger *applog.Logger) *TransactionService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &TransactionService{
		store:      store,
		events:     events,
		dashboards: cache.NewLRUCache[DashboardView](views.Size, views.TTL),
		stats:      cache.NewLRUCache[StatsView](views.Size, views.TTL),
		palette:    core.DefaultPalette,
		logger:     logger.WithComponent(applog.ComponentViews),
	}
}

// Caches exposes the view caches so a cache.Manager can sweep them.
func (s *TransactionService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.dashboards, s.stats}
}

// CacheStats reports hit and miss counters of the view caches.
func (s *TransactionService) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"dashboard": s.dashboards.Stats(),
		"stats":     s.stats.Stats(),
	}
}

// Create adds a transaction and publishes a created event.
func (s *TransactionService) Create(ctx context.Context, d core.Draft) (core.Transaction, error) {
	ch, err := s.store.Add(ctx, d)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	t := ch.Transaction
	s.logger.InfoContext(ctx, "Transaction created",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithTransaction(t.ID, t.Description, t.Amount, t.Category).
			ToSlice()...)
	s.publish(ctx, amqp.EventCreated, ch)
	return t, nil
}

// Update edits a transaction and publishes an updated event.
func (s *TransactionService) Update(ctx context.Context, id string, d core.Draft) (core.Transaction, error) {
	ch, err := s.store.Update(ctx, id, d)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	t := ch.Transaction
	s.logger.InfoContext(ctx, "Transaction updated",
		applog.NewFields().
			WithOperation(applog.OpUpdate).
			WithTransaction(t.ID, t.Description, t.Amount, t.Category).
			ToSlice()...)
	s.publish(ctx, amqp.EventUpdated, ch)
	return t, nil
}

// Delete removes a transaction and publishes a removed event.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	ch, err := s.store.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldTxID, ch.Transaction.ID)
	s.publish(ctx, amqp.EventRemoved, ch)
	return nil
}

// Get returns a single transaction.
func (s *TransactionService) Get(_ context.Context, id string) (core.Transaction, error) {
	t, ok := s.store.Get(id)
	if !ok {
		return core.Transaction{}, fmt.Errorf("get %q: %w", id, core.ErrNotFound)
	}
	return t, nil
}

// Dashboard returns the dashboard view for c. Views are memoised per
// collection version, so a mutation makes every older entry unreachable.
func (s *TransactionService) Dashboard(ctx context.Context, c core.Criteria) DashboardView {
	snap := s.store.Snapshot()
	key := fmt.Sprintf("%d|%q|%q", snap.Version, c.Search, c.Category)
	return s.dashboards.GetOrCompute(key, func() DashboardView {
		v := DashboardView{
			Version:      snap.Version,
			Criteria:     c,
			Summary:      core.Summarize(snap.Transactions),
			Categories:   core.Categories(snap.Transactions),
			Transactions: core.Filter(snap.Transactions, c),
			Total:        len(snap.Transactions),
		}
		s.logComputed(ctx, applog.OpFilter, snap.Version, len(v.Transactions), v.Summary.Skipped)
		return v
	})
}

// Stats returns the statistics view of the whole collection.
func (s *TransactionService) Stats(ctx context.Context) StatsView {
	snap := s.store.Snapshot()
	key := fmt.Sprintf("%d", snap.Version)
	return s.stats.GetOrCompute(key, func() StatsView {
		chart := core.Aggregate(snap.Transactions)
		v := StatsView{
			Version:    snap.Version,
			Count:      len(snap.Transactions),
			Chart:      chart,
			Breakdown:  chart.Breakdown(s.palette),
			Comparison: chart.Comparison(),
		}
		s.logComputed(ctx, applog.OpAggregate, snap.Version, len(chart.Labels), chart.Skipped)
		return v
	})
}

func (s *TransactionService) logComputed(ctx context.Context, op string, version uint64, count, skipped int) {
	args := applog.NewFields().WithOperation(op).WithVersion(version).ToSlice()
	args = append(args, applog.FieldCount, count)
	if skipped > 0 {
		s.logger.WarnContext(ctx, "Skipped non-finite amounts", append(args, applog.FieldSkipped, skipped)...)
		return
	}
	s.logger.DebugContext(ctx, "View computed", args...)
}

func (s *TransactionService) publish(ctx context.Context, typ amqp.EventType, ch ledger.Change) {
	if s.events == nil {
		return
	}
	t := ch.Transaction
	e := amqp.NewTransactionEvent(typ, t, s.store.Epoch(), ch.Version)
	if err := s.events.PublishTransactionEvent(ctx, e); err != nil {
		// The mutation already happened; the event is best effort.
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			applog.FieldEventType, typ,
			applog.FieldTxID, t.ID,
			applog.FieldError, err)
	}
}
