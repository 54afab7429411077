// Package pager accumulates the pages of the paginated transactions feed.
package pager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/txn-review/approvals/src/client/transport"
	"github.com/txn-review/approvals/src/data"
)

// ErrMalformedResponse indicates a page payload without a data array or a
// nextPage field. The accumulated state is left untouched.
var ErrMalformedResponse = errors.New("pager: malformed response")

// Fetcher is the cached request path used to load pages.
type Fetcher interface {
	Fetch(ctx context.Context, resource string, params transport.Params) (json.RawMessage, error)
}

type cursorState int

const (
	cursorUnfetched cursorState = iota
	cursorNext
	cursorExhausted
)

// Cursor points at the next page to request.
type Cursor struct {
	state cursorState
	page  int
}

// Page returns the page index to request next. ok is false once exhausted.
func (c Cursor) Page() (page int, ok bool) {
	switch c.state {
	case cursorUnfetched:
		return 0, true
	case cursorNext:
		return c.page, true
	}
	return 0, false
}

// Exhausted reports whether the server signalled there are no more pages.
func (c Cursor) Exhausted() bool { return c.state == cursorExhausted }

// Fetched reports whether at least one page has been accumulated.
func (c Cursor) Fetched() bool { return c.state != cursorUnfetched }

func (c Cursor) String() string {
	switch c.state {
	case cursorUnfetched:
		return "unfetched"
	case cursorExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("page %d", c.page)
}

// Option mutates accumulator configuration.
type Option func(*Accumulator)

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Accumulator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithResource overrides the resource name, data.ResourcePaginatedTransactions by default.
func WithResource(resource string) Option {
	return func(a *Accumulator) {
		if resource != "" {
			a.resource = resource
		}
	}
}

// Accumulator drives "fetch next page" for one paginated resource. Fetches
// are serialised, so a page index is never requested again once the cursor
// has advanced past it.
type Accumulator struct {
	fetcher  Fetcher
	resource string
	logger   *slog.Logger

	// fetching holds one token while a page fetch runs.
	fetching chan struct{}

	mu         sync.RWMutex
	pages      [][]data.Transaction
	cursor     Cursor
	generation uint64
}

// New creates an accumulator fetching pages through f.
func New(f Fetcher, options ...Option) *Accumulator {
	a := &Accumulator{
		fetcher:  f,
		resource: data.ResourcePaginatedTransactions,
		logger:   slog.Default(),
		fetching: make(chan struct{}, 1),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// FetchNext requests the page under the cursor and appends it. It returns the
// records of the newly fetched page, or nil when the feed is already
// exhausted. On error nothing is appended and the cursor does not move.
func (a *Accumulator) FetchNext(ctx context.Context) ([]data.Transaction, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	a.mu.RLock()
	cursor, generation := a.cursor, a.generation
	a.mu.RUnlock()
	return a.fetchLocked(ctx, cursor, generation)
}

// FetchFirst fetches page 0 unless a page has already been accumulated, in
// which case it returns nil. The check runs after any fetch in progress
// completes, so a second trigger arriving while the first page loads never
// advances the cursor.
func (a *Accumulator) FetchFirst(ctx context.Context) ([]data.Transaction, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	a.mu.RLock()
	cursor, generation := a.cursor, a.generation
	a.mu.RUnlock()
	if cursor.Fetched() {
		a.logger.DebugContext(ctx, "first page already fetched", "resource", a.resource, "cursor", cursor.String())
		return nil, nil
	}
	return a.fetchLocked(ctx, cursor, generation)
}

func (a *Accumulator) acquire(ctx context.Context) error {
	select {
	case a.fetching <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting to fetch %s: %w", a.resource, ctx.Err())
	}
}

func (a *Accumulator) release() { <-a.fetching }

// fetchLocked requests the page under cursor. The caller holds the fetch
// token.
func (a *Accumulator) fetchLocked(ctx context.Context, cursor Cursor, generation uint64) ([]data.Transaction, error) {
	page, ok := cursor.Page()
	if !ok {
		a.logger.WarnContext(ctx, "no more pages to fetch", "resource", a.resource)
		return nil, nil
	}

	a.logger.DebugContext(ctx, "fetching page", "resource", a.resource, "page", page)
	raw, err := a.fetcher.Fetch(ctx, a.resource, transport.Params(data.PaginatedRequestParams{Page: page}.Values()))
	if err != nil {
		return nil, fmt.Errorf("fetching %s page %d: %w", a.resource, page, err)
	}

	records, next, err := decodePage(raw)
	if err != nil {
		a.logger.WarnContext(ctx, "received unexpected response structure",
			"resource", a.resource,
			"page", page,
			"error", err,
		)
		return nil, err
	}
	if nextPage, more := next.Page(); more && nextPage <= page {
		err := fmt.Errorf("%w: nextPage %d does not advance past %d", ErrMalformedResponse, nextPage, page)
		a.logger.WarnContext(ctx, "received unexpected response structure", "resource", a.resource, "error", err)
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != generation {
		a.logger.DebugContext(ctx, "discarding page fetched before reset", "resource", a.resource, "page", page)
		return nil, nil
	}
	a.pages = append(a.pages, records)
	a.cursor = next
	return records, nil
}

// decodePage validates the page envelope. The data field must be an array and
// nextPage must be present; an explicit null nextPage means exhausted.
func decodePage(raw json.RawMessage) ([]data.Transaction, Cursor, error) {
	var envelope struct {
		Data     json.RawMessage `json:"data"`
		NextPage json.RawMessage `json:"nextPage"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, Cursor{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	body := bytes.TrimSpace(envelope.Data)
	if len(body) == 0 || body[0] != '[' {
		return nil, Cursor{}, fmt.Errorf("%w: data is not an array", ErrMalformedResponse)
	}
	var records []data.Transaction
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, Cursor{}, fmt.Errorf("%w: decoding data: %v", ErrMalformedResponse, err)
	}

	if len(envelope.NextPage) == 0 {
		return nil, Cursor{}, fmt.Errorf("%w: nextPage missing", ErrMalformedResponse)
	}
	var next *int
	if err := json.Unmarshal(envelope.NextPage, &next); err != nil {
		return nil, Cursor{}, fmt.Errorf("%w: nextPage: %v", ErrMalformedResponse, err)
	}
	if next == nil {
		return records, Cursor{state: cursorExhausted}, nil
	}
	return records, Cursor{state: cursorNext, page: *next}, nil
}

// Cursor returns the current cursor.
func (a *Accumulator) Cursor() Cursor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cursor
}

// HasPages reports whether any page has been accumulated.
func (a *Accumulator) HasPages() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pages) > 0
}

// Pages returns the number of accumulated pages.
func (a *Accumulator) Pages() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pages)
}

// Records returns every accumulated record in page order.
func (a *Accumulator) Records() []data.Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := 0
	for _, p := range a.pages {
		n += len(p)
	}
	out := make([]data.Transaction, 0, n)
	for _, p := range a.pages {
		out = append(out, p...)
	}
	return out
}

// Invalidate clears accumulated pages and resets the cursor. A FetchNext that
// is in flight when Invalidate runs discards its result.
func (a *Accumulator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pages = nil
	a.cursor = Cursor{}
	a.generation++
}
