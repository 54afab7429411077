package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/txn-review/approvals/src/data"
	"github.com/txn-review/approvals/src/server/store"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial.sql
var migrationSQL string

var _ store.Store = (*SQLiteStore)(nil)

const transactionColumns = `id, amount, employee_id, employee_first_name, employee_last_name, merchant, date, approved`

type SQLiteStore struct {
	db *sql.DB
}

func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite performs best with a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate() error {
	if _, err := s.db.Exec(migrationSQL); err != nil {
		return fmt.Errorf("running migration: %w", err)
	}
	slog.Info("SQLite migration completed")
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListEmployees() []data.Employee {
	rows, err := s.db.Query(`SELECT id, first_name, last_name FROM employees ORDER BY seq`)
	if err != nil {
		slog.Error("ListEmployees query failed", "error", err)
		return []data.Employee{}
	}
	defer rows.Close()

	employees := []data.Employee{}
	for rows.Next() {
		var e data.Employee
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName); err != nil {
			slog.Error("ListEmployees scan failed", "error", err)
			continue
		}
		employees = append(employees, e)
	}
	return employees
}

func (s *SQLiteStore) CountTransactions() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListTransactions(offset, limit int) ([]data.Transaction, error) {
	if offset < 0 || limit <= 0 {
		return []data.Transaction{}, nil
	}
	rows, err := s.db.Query(
		`SELECT `+transactionColumns+` FROM transactions ORDER BY seq LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	txs, err := scanTransactions(rows, "ListTransactions")
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txs, nil
}

func (s *SQLiteStore) TransactionsByEmployee(employeeID string) []data.Transaction {
	rows, err := s.db.Query(
		`SELECT `+transactionColumns+` FROM transactions WHERE employee_id = ? ORDER BY seq`,
		employeeID,
	)
	if err != nil {
		slog.Error("TransactionsByEmployee query failed", "error", err, "employee_id", employeeID)
		return []data.Transaction{}
	}
	txs, err := scanTransactions(rows, "TransactionsByEmployee")
	if err != nil {
		slog.Error("TransactionsByEmployee iteration failed", "error", err, "employee_id", employeeID)
	}
	return txs
}

func (s *SQLiteStore) AddEmployees(employees []data.Employee) []string {
	var added []string
	for _, e := range employees {
		if e.ID == "" {
			continue
		}
		res, err := s.db.Exec(
			`INSERT INTO employees (id, first_name, last_name) VALUES (?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			e.ID, e.FirstName, e.LastName,
		)
		if err != nil {
			slog.Error("AddEmployees insert failed", "error", err, "id", e.ID)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, e.ID)
		}
	}
	return added
}

func (s *SQLiteStore) AddTransactions(transactions []data.Transaction) []string {
	var added []string
	for _, t := range transactions {
		if t.ID == "" {
			continue
		}
		res, err := s.db.Exec(
			`INSERT INTO transactions (`+transactionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Amount.String(), t.Employee.ID, t.Employee.FirstName, t.Employee.LastName,
			t.Merchant, t.Date, t.Approved,
		)
		if err != nil {
			slog.Error("AddTransactions insert failed", "error", err, "id", t.ID)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, t.ID)
		}
	}
	return added
}

// scanTransactions skips rows that fail to scan and reports an iteration
// error alongside the rows read so far.
func scanTransactions(rows *sql.Rows, op string) ([]data.Transaction, error) {
	defer rows.Close()

	txs := []data.Transaction{}
	for rows.Next() {
		var t data.Transaction
		if err := rows.Scan(&t.ID, &t.Amount, &t.Employee.ID, &t.Employee.FirstName, &t.Employee.LastName,
			&t.Merchant, &t.Date, &t.Approved); err != nil {
			slog.Error(op+" scan failed", "error", err)
			continue
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
