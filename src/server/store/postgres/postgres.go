package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/txn-review/approvals/src/data"
	"github.com/txn-review/approvals/src/server/store"
)

//go:embed migrations/001_initial.sql
var migrationSQL string

var _ store.Store = (*PostgresStore)(nil)

const transactionColumns = `id, amount, employee_id, employee_first_name, employee_last_name, merchant, date, approved`

type PostgresStore struct {
	db *sql.DB
}

func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	if _, err := s.db.Exec(migrationSQL); err != nil {
		return fmt.Errorf("running migration: %w", err)
	}
	slog.Info("Database migration completed")
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ListEmployees() []data.Employee {
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

func (s *PostgresStore) CountTransactions() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListTransactions(offset, limit int) ([]data.Transaction, error) {
	if offset < 0 || limit <= 0 {
		return []data.Transaction{}, nil
	}
	rows, err := s.db.Query(
		`SELECT `+transactionColumns+` FROM transactions ORDER BY seq LIMIT $1 OFFSET $2`,
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

func (s *PostgresStore) TransactionsByEmployee(employeeID string) []data.Transaction {
	rows, err := s.db.Query(
		`SELECT `+transactionColumns+` FROM transactions WHERE employee_id = $1 ORDER BY seq`,
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

func (s *PostgresStore) AddEmployees(employees []data.Employee) []string {
	var added []string
	for _, e := range employees {
		if e.ID == "" {
			continue
		}
		res, err := s.db.Exec(
			`INSERT INTO employees (id, first_name, last_name) VALUES ($1, $2, $3)
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

func (s *PostgresStore) AddTransactions(transactions []data.Transaction) []string {
	var added []string
	for _, t := range transactions {
		if t.ID == "" {
			continue
		}
		res, err := s.db.Exec(
			`INSERT INTO transactions (`+transactionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Amount, t.Employee.ID, t.Employee.FirstName, t.Employee.LastName,
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
