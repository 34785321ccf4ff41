// Package ledger owns the canonical transaction collection. Mutations are
// serialised; readers get immutable, versioned snapshots.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

// Snapshot is a point-in-time copy of the collection. Version increases by
// one on every successful mutation.
type Snapshot struct {
	Version      uint64
	Transactions []core.Transaction
}

// Change is the outcome of one mutation. Version is the collection version
// the mutation produced.
type Change struct {
	Transaction core.Transaction
	Version     uint64
}

type Store struct {
	mu      sync.RWMutex
	items   []core.Transaction
	version uint64

	epoch string

	now   func() time.Time
	newID func() string
}

func New(seed []core.Transaction) *Store {
	return &Store{
		items: append([]core.Transaction(nil), seed...),
		epoch: uuid.NewString(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// NewFromFile seeds the store from a JSON array of transactions. A missing
// file seeds DefaultSeed. The file is only read, never written.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(DefaultSeed(time.Now().UTC())), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.Transaction
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(seed))
	for i, t := range seed {
		if t.ID == "" {
			seed[i].ID = uuid.NewString()
		} else if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("seed file %s: duplicate id %q", path, t.ID)
		}
		seen[seed[i].ID] = struct{}{}
		if err := t.Draft().Validate(); err != nil {
			return nil, fmt.Errorf("seed file %s: transaction %d: %w", path, i, err)
		}
	}
	return New(seed), nil
}

// DefaultSeed returns the sample transactions a fresh tracker starts with.
func DefaultSeed(at time.Time) []core.Transaction {
	return []core.Transaction{
		{ID: "1", Description: "Initial Balance", Amount: 100, Category: "Income", Date: at},
		{ID: "2", Description: "Groceries", Amount: -45.75, Category: "Food", Date: at},
		{ID: "3", Description: "Salary", Amount: 2500, Category: "Income", Date: at},
		{ID: "4", Description: "Rent", Amount: -1200, Category: "Housing", Date: at},
		{ID: "5", Description: "Utilities", Amount: -150.50, Category: "Bills", Date: at},
	}
}

// Add validates d and appends a new transaction with a fresh id and the
// current time.
func (s *Store) Add(_ context.Context, d core.Draft) (Change, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Change{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := core.Transaction{
		ID:          s.newID(),
		Description: d.Description,
		Amount:      d.Amount,
		Category:    d.Category,
		Date:        s.now(),
	}
	s.items = append(s.items, t)
	s.version++
	return Change{Transaction: t, Version: s.version}, nil
}

// Update replaces description, amount and category of the transaction with
// the given id. Id and date never change.
func (s *Store) Update(_ context.Context, id string, d core.Draft) (Change, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Change{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Change{}, fmt.Errorf("update %q: %w", id, core.ErrNotFound)
	}
	t := &s.items[i]
	t.Description = d.Description
	t.Amount = d.Amount
	t.Category = d.Category
	s.version++
	return Change{Transaction: *t, Version: s.version}, nil
}

// Remove deletes the transaction with the given id and returns it.
func (s *Store) Remove(_ context.Context, id string) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Change{}, fmt.Errorf("remove %q: %w", id, core.ErrNotFound)
	}
	removed := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	s.version++
	return Change{Transaction: removed, Version: s.version}, nil
}

// Get looks a transaction up by id.
func (s *Store) Get(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return core.Transaction{}, false
}

// Snapshot returns a copy of the collection with its version.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version:      s.version,
		Transactions: append(make([]core.Transaction, 0, len(s.items)), s.items...),
	}
}

// Version returns the current collection version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Epoch identifies this store instance. A restarted tracker gets a new
// epoch and counts versions from zero again.
func (s *Store) Epoch() string {
	return s.epoch
}

// Len returns the number of transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}
