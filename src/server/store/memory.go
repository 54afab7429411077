package store

import (
	"sync"

	"github.com/txn-review/approvals/src/data"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu            sync.RWMutex
	employees     map[string]data.Employee
	employeeOrder []string
	transactions  map[string]data.Transaction
	order         []string
	byEmployee    map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees:    make(map[string]data.Employee),
		transactions: make(map[string]data.Transaction),
		byEmployee:   make(map[string][]string),
	}
}

// AddEmployees inserts employees into the store, skipping duplicates.
// Returns the IDs of newly added employees.
func (s *MemoryStore) AddEmployees(employees []data.Employee) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, e := range employees {
		if e.ID == "" {
			continue
		}
		if _, exists := s.employees[e.ID]; exists {
			continue
		}
		s.employees[e.ID] = e
		s.employeeOrder = append(s.employeeOrder, e.ID)
		added = append(added, e.ID)
	}
	return added
}

// AddTransactions inserts transactions into the store, skipping duplicates.
// Returns the IDs of newly added transactions.
func (s *MemoryStore) AddTransactions(transactions []data.Transaction) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, t := range transactions {
		if t.ID == "" {
			continue
		}
		if _, exists := s.transactions[t.ID]; exists {
			continue
		}
		s.transactions[t.ID] = t
		s.order = append(s.order, t.ID)
		s.byEmployee[t.Employee.ID] = append(s.byEmployee[t.Employee.ID], t.ID)
		added = append(added, t.ID)
	}
	return added
}

func (s *MemoryStore) ListEmployees() []data.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]data.Employee, 0, len(s.employeeOrder))
	for _, id := range s.employeeOrder {
		employees = append(employees, s.employees[id])
	}
	return employees
}

func (s *MemoryStore) CountTransactions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func (s *MemoryStore) ListTransactions(offset, limit int) ([]data.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 || offset >= len(s.order) || limit <= 0 {
		return []data.Transaction{}, nil
	}
	end := min(offset+limit, len(s.order))
	out := make([]data.Transaction, 0, end-offset)
	for _, id := range s.order[offset:end] {
		out = append(out, s.transactions[id])
	}
	return out, nil
}

func (s *MemoryStore) TransactionsByEmployee(employeeID string) []data.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byEmployee[employeeID]
	out := make([]data.Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.transactions[id])
	}
	return out
}
