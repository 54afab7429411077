// Package records holds the canonical, deduplicated set of transactions seen
// during a review session.
package records

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/txn-review/approvals/src/data"
)

// ErrNotFound indicates a mutation for an unknown transaction ID.
var ErrNotFound = errors.New("records: transaction not found")

type record struct {
	tx      data.Transaction
	mutated bool
}

// Store maps transaction IDs to transactions in arrival order. Merge never
// overwrites a record it already holds, so a local approval edit survives any
// later fetch of the same transaction.
type Store struct {
	logger *slog.Logger

	mu      sync.RWMutex
	records map[string]*record
	order   []string
}

// Option mutates store configuration.
type Option func(*Store)

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(options ...Option) *Store {
	s := &Store{
		logger:  slog.Default(),
		records: make(map[string]*record),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Merge inserts transactions whose ID is not yet present, skipping
// duplicates and entries without an ID. Returns the IDs of newly added
// transactions.
func (s *Store) Merge(txs []data.Transaction) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, tx := range txs {
		if tx.ID == "" {
			continue
		}
		if _, exists := s.records[tx.ID]; exists {
			continue
		}
		s.records[tx.ID] = &record{tx: tx}
		s.order = append(s.order, tx.ID)
		added = append(added, tx.ID)
	}
	return added
}

func (s *Store) Get(id string) (data.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return data.Transaction{}, false
	}
	return r.tx, true
}

// All returns every transaction in arrival order.
func (s *Store) All() []data.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]data.Transaction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].tx)
	}
	return out
}

// SetApproval overwrites the approval flag of a held transaction and marks it
// as locally mutated.
func (s *Store) SetApproval(id string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		s.logger.Warn("approval change for unknown transaction", "transaction_id", id)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.tx.Approved = approved
	r.mutated = true
	return nil
}

// Mutated reports whether id carries a local edit.
func (s *Store) Mutated(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return ok && r.mutated
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Invalidate drops every record, local edits included.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*record)
	s.order = nil
}
