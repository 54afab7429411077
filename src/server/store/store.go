package store

import (
	"errors"
	"fmt"

	"github.com/txn-review/approvals/src/data"
)

// ErrInvalidPage indicates a page index outside the feed.
var ErrInvalidPage = errors.New("store: invalid page")

// Store defines the read side of the dev API plus the seeding methods used at
// startup. Transactions are listed in insertion order. The paging queries
// return errors so a failing backend is not mistaken for an empty feed.
type Store interface {
	ListEmployees() []data.Employee
	CountTransactions() (int, error)
	ListTransactions(offset, limit int) ([]data.Transaction, error)
	TransactionsByEmployee(employeeID string) []data.Transaction
	AddEmployees(employees []data.Employee) []string
	AddTransactions(transactions []data.Transaction) []string
}

// Paginate returns page of the transactions feed, size transactions per page.
// NextPage is nil on the last page. Page 0 of an empty feed is an empty last
// page; any other page outside the feed is ErrInvalidPage.
func Paginate(s Store, page, size int) (data.PaginatedResponse, error) {
	if size <= 0 {
		return data.PaginatedResponse{}, fmt.Errorf("store: page size must be positive, got %d", size)
	}
	total, err := s.CountTransactions()
	if err != nil {
		return data.PaginatedResponse{}, fmt.Errorf("store: page %d: %w", page, err)
	}
	pages := (total + size - 1) / size
	if page < 0 || (page >= pages && !(page == 0 && total == 0)) {
		return data.PaginatedResponse{}, fmt.Errorf("%w: %d (pages: %d)", ErrInvalidPage, page, pages)
	}

	txs, err := s.ListTransactions(page*size, size)
	if err != nil {
		return data.PaginatedResponse{}, fmt.Errorf("store: page %d: %w", page, err)
	}
	if txs == nil {
		txs = []data.Transaction{}
	}
	resp := data.PaginatedResponse{Data: txs}
	if page+1 < pages {
		next := page + 1
		resp.NextPage = &next
	}
	return resp, nil
}
