// Package session sequences fetches, merges and projections for one review
// session: it decides which feed to load on mount and on selection change,
// owns the loading flags, and is the single entry point for approval edits.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/txn-review/approvals/src/client/pager"
	"github.com/txn-review/approvals/src/client/records"
	"github.com/txn-review/approvals/src/client/transport"
	"github.com/txn-review/approvals/src/client/view"
	"github.com/txn-review/approvals/src/data"
)

var (
	// ErrViewMoreUnavailable indicates "view more" outside the all-employees
	// view, with no further page, or while another load is running.
	ErrViewMoreUnavailable = errors.New("session: view more unavailable")
	// ErrMalformedResponse indicates a payload that does not match its resource.
	ErrMalformedResponse = pager.ErrMalformedResponse
)

// Cache is the request cache the session loads through.
type Cache interface {
	pager.Fetcher
	Invalidate(resources ...string)
}

// Option mutates session configuration.
type Option func(*Session)

// WithLogger injects a logger. The session ID is attached to every record.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// State is a point-in-time snapshot for rendering.
type State struct {
	ID               string
	Selection        view.Selection
	Transactions     []data.Transaction
	Loading          bool
	LoadingMore      bool
	EmployeesLoading bool
	CanViewMore      bool
	// Err is the most recent recoverable failure, cleared by the next
	// successful load.
	Err error
}

// Session is safe for concurrent use. Fetches run outside the session lock;
// their results are merged when they complete, in completion order.
type Session struct {
	id     string
	logger *slog.Logger
	cache  Cache
	pager  *pager.Accumulator
	store  *records.Store

	mu               sync.Mutex
	selection        view.Selection
	employees        []data.Employee
	employeesLoading bool
	loading          bool
	loadingMore      bool
	seq              uint64
	loadingSeq       uint64
	epoch            uint64
	visible          []data.Transaction
	lastErr          error
}

// New creates a session loading through c. The initial selection is all
// employees.
func New(c Cache, options ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		logger:    slog.Default(),
		cache:     c,
		selection: view.All(),
		visible:   []data.Transaction{},
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With("session_id", s.id)
	s.pager = pager.New(c, pager.WithLogger(s.logger))
	s.store = records.NewStore(records.WithLogger(s.logger))
	return s
}

func (s *Session) ID() string { return s.id }

// Mount loads employees when absent and the first transactions page when the
// all-employees view has nothing yet. Both are attempted even if one fails.
func (s *Session) Mount(ctx context.Context) error {
	var errs []error

	s.mu.Lock()
	needEmployees := s.employees == nil && !s.employeesLoading
	s.mu.Unlock()
	if needEmployees {
		if err := s.LoadEmployees(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	needPage := s.selection.IsAll() && !s.pager.HasPages() && !s.loading
	s.mu.Unlock()
	if needPage {
		seq, epoch := s.begin(false)
		err := s.loadFirstPage(ctx, epoch)
		s.finish(seq, err)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SelectEmployee switches the filter from a picker value. An empty ID and the
// all-employees sentinel both select every employee.
func (s *Session) SelectEmployee(ctx context.Context, employeeID string) error {
	return s.Select(ctx, view.FromEmployeeID(employeeID))
}

// Select switches the filter, clears the visible list while loading, and
// loads whatever the new selection needs. Selecting all fetches the first page
// only if none has been accumulated, waiting out a first-page load already in
// progress; selecting one employee fetches that employee's transactions.
func (s *Session) Select(ctx context.Context, sel view.Selection) error {
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "selection changed", "selection", sel.String())

	seq, epoch := s.begin(true)
	var err error
	if sel.IsAll() {
		err = s.loadFirstPage(ctx, epoch)
	} else if id, ok := sel.EmployeeID(); ok {
		err = s.loadByEmployee(ctx, id, epoch)
	}
	s.finish(seq, err)
	return err
}

// ViewMore fetches the next page of the all-employees feed.
func (s *Session) ViewMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.canViewMoreLocked() {
		s.mu.Unlock()
		return ErrViewMoreUnavailable
	}
	s.loadingMore = true
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "loading more transactions")
	page, err := s.pager.FetchNext(ctx)
	if err == nil {
		s.merge(epoch, page)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false
	s.recordErrLocked(err)
	s.refreshLocked()
	return err
}

// SetApproval records a local approval edit. The edit wins over any copy of
// the transaction fetched later.
func (s *Session) SetApproval(id string, approved bool) error {
	if err := s.store.SetApproval(id, approved); err != nil {
		return err
	}
	s.logger.Info("transaction approval changed", "transaction_id", id, "approved", approved)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	return nil
}

// LoadEmployees fetches the employee list.
func (s *Session) LoadEmployees(ctx context.Context) error {
	s.mu.Lock()
	s.employeesLoading = true
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "fetching employees")
	employees, err := fetchList[data.Employee](ctx, s.cache, data.ResourceEmployees, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "no employees data received", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.employeesLoading = false
	if err != nil {
		s.lastErr = err
		return err
	}
	if s.epoch == epoch {
		s.employees = employees
	}
	return nil
}

// Employees returns the picker entries: the all-employees sentinel followed by
// the fetched employees, or nothing before they are loaded.
func (s *Session) Employees() []data.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.employees == nil {
		return []data.Employee{}
	}
	out := make([]data.Employee, 0, len(s.employees)+1)
	out = append(out, data.AllEmployees)
	return append(out, s.employees...)
}

// State returns a snapshot for rendering.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := make([]data.Transaction, len(s.visible))
	copy(visible, s.visible)
	return State{
		ID:               s.id,
		Selection:        s.selection,
		Transactions:     visible,
		Loading:          s.loading,
		LoadingMore:      s.loadingMore,
		EmployeesLoading: s.employeesLoading,
		CanViewMore:      s.canViewMoreLocked(),
		Err:              s.lastErr,
	}
}

// Transaction looks up one transaction in the session's record store.
func (s *Session) Transaction(id string) (data.Transaction, bool) {
	return s.store.Get(id)
}

// Invalidate resets the session to its initial state: records, pages, cached
// responses and employees are dropped and the selection returns to all. Loads
// still in flight complete without touching the reset state.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.seq++
	s.loadingSeq = s.seq
	s.loading = false
	s.loadingMore = false
	s.employees = nil
	s.selection = view.All()
	s.visible = []data.Transaction{}
	s.lastErr = nil

	s.store.Invalidate()
	s.pager.Invalidate()
	s.cache.Invalidate()
	s.logger.Info("session invalidated")
}

// begin starts a user-visible load. The loading flag belongs to the most
// recently begun load; older loads finishing later leave it alone.
func (s *Session) begin(clear bool) (seq, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.loadingSeq = s.seq
	s.loading = true
	if clear {
		s.visible = []data.Transaction{}
	}
	return s.seq, s.epoch
}

func (s *Session) finish(seq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadingSeq != seq {
		// A newer load owns the flag and the visible list.
		if err != nil {
			s.logger.Debug("stale load failed", "error", err)
		}
		s.refreshLocked()
		return
	}
	s.loading = false
	s.recordErrLocked(err)
	s.refreshLocked()
}

func (s *Session) loadFirstPage(ctx context.Context, epoch uint64) error {
	s.logger.InfoContext(ctx, "loading all transactions")
	page, err := s.pager.FetchFirst(ctx)
	if err != nil {
		return err
	}
	s.merge(epoch, page)
	return nil
}

func (s *Session) loadByEmployee(ctx context.Context, employeeID string, epoch uint64) error {
	s.logger.InfoContext(ctx, "loading transactions for employee", "employee_id", employeeID)
	txs, err := fetchList[data.Transaction](ctx, s.cache, data.ResourceTransactionsByEmployee,
		transport.Params(data.EmployeeRequestParams{EmployeeID: employeeID}.Values()))
	if err != nil {
		return err
	}
	s.merge(epoch, txs)
	return nil
}

// merge adds fetched records unless the session was reset after the fetch
// began.
func (s *Session) merge(epoch uint64, txs []data.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.logger.Debug("discarding records fetched before reset", "count", len(txs))
		return
	}
	added := s.store.Merge(txs)
	s.logger.Debug("merged transactions", "received", len(txs), "added", len(added))
}

func (s *Session) canViewMoreLocked() bool {
	if !s.selection.IsAll() || s.loading || s.loadingMore {
		return false
	}
	cursor := s.pager.Cursor()
	return cursor.Fetched() && !cursor.Exhausted()
}

func (s *Session) recordErrLocked(err error) {
	if err != nil {
		s.logger.Warn("load failed", "error", err)
	}
	s.lastErr = err
}

// refreshLocked re-derives the visible list unless a load is pending, in
// which case the list stays cleared until that load finishes.
func (s *Session) refreshLocked() {
	if s.loading {
		return
	}
	s.visible = view.Project(s.store, s.selection)
}

func fetchList[T any](ctx context.Context, c pager.Fetcher, resource string, params transport.Params) ([]T, error) {
	raw, err := c.Fetch(ctx, resource, params)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", resource, err)
	}
	list, err := decodeList[T](raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resource, err)
	}
	return list, nil
}
