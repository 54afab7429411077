package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/goleak"

	"github.com/txn-review/approvals/src/client/cache"
	"github.com/txn-review/approvals/src/client/records"
	"github.com/txn-review/approvals/src/client/transport"
	"github.com/txn-review/approvals/src/client/view"
	"github.com/txn-review/approvals/src/data"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	ada   = data.Employee{ID: "e1", FirstName: "Ada", LastName: "Lovelace"}
	grace = data.Employee{ID: "e2", FirstName: "Grace", LastName: "Hopper"}
)

func txn(id string, owner data.Employee, approved bool) data.Transaction {
	return data.Transaction{
		ID:       id,
		Amount:   decimal.RequireFromString("42.00"),
		Employee: owner,
		Merchant: "Merchant " + id,
		Date:     "2024-01-02",
		Approved: approved,
	}
}

// fakeAPI serves canned payloads per call key ("resource" or "resource:param").
// Keys with a gate block until the gate is closed.
type fakeAPI struct {
	mu       sync.Mutex
	payloads map[string]string
	failing  map[string]bool
	gates    map[string]chan struct{}
	calls    map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		payloads: make(map[string]string),
		failing:  make(map[string]bool),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
	api.set(data.ResourceEmployees, []data.Employee{ada, grace})
	api.set(pageKey(0), data.PaginatedResponse{
		Data:     []data.Transaction{txn("t1", ada, false), txn("t2", grace, false)},
		NextPage: intPtr(1),
	})
	api.set(pageKey(1), data.PaginatedResponse{
		Data: []data.Transaction{txn("t3", ada, false)},
	})
	api.set(employeeKey("e1"), []data.Transaction{txn("t1", ada, false), txn("t3", ada, false)})
	api.set(employeeKey("e2"), []data.Transaction{txn("t2", grace, false)})
	return api
}

func intPtr(v int) *int { return &v }

func pageKey(page int) string { return fmt.Sprintf("%s:%d", data.ResourcePaginatedTransactions, page) }

func employeeKey(id string) string { return data.ResourceTransactionsByEmployee + ":" + id }

func (a *fakeAPI) set(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	a.setRaw(key, string(raw))
}

func (a *fakeAPI) setRaw(key, raw string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads[key] = raw
}

func (a *fakeAPI) setFailing(key string, failing bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failing[key] = failing
}

func (a *fakeAPI) gate(key string) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan struct{})
	a.gates[key] = ch
	return ch
}

func (a *fakeAPI) callCount(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

func (a *fakeAPI) Call(_ context.Context, resource string, params transport.Params) (json.RawMessage, error) {
	key := resource
	switch resource {
	case data.ResourcePaginatedTransactions:
		key = pageKey(params["page"].(int))
	case data.ResourceTransactionsByEmployee:
		key = employeeKey(params["employeeId"].(string))
	}

	a.mu.Lock()
	a.calls[key]++
	gate := a.gates[key]
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing[key] {
		return nil, errors.New("service unavailable")
	}
	raw, ok := a.payloads[key]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", key)
	}
	return json.RawMessage(raw), nil
}

func newSession(t *testing.T, api *fakeAPI) *Session {
	t.Helper()
	return New(cache.New(api), WithID("test-session"))
}

func visibleIDs(s *Session) []string {
	out := []string{}
	for _, tx := range s.State().Transactions {
		out = append(out, tx.ID)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMountLoadsEmployeesAndFirstPage(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()

	if got := s.Employees(); len(got) != 0 {
		t.Fatalf("Employees before mount = %v, want none", got)
	}
	if err := s.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if want := []string{"t1", "t2"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("visible = %v, want %v", visibleIDs(s), want)
	}
	employees := s.Employees()
	if len(employees) != 3 || employees[0] != data.AllEmployees || employees[1] != ada {
		t.Errorf("Employees = %v, want sentinel then fetched list", employees)
	}
	st := s.State()
	if st.Loading || !st.CanViewMore || st.Err != nil || st.ID != "test-session" {
		t.Errorf("state = %+v", st)
	}

	// A second mount finds everything loaded.
	if err := s.Mount(ctx); err != nil {
		t.Fatalf("second Mount: %v", err)
	}
	if api.callCount(pageKey(0)) != 1 || api.callCount(data.ResourceEmployees) != 1 {
		t.Errorf("second Mount refetched: page0=%d employees=%d",
			api.callCount(pageKey(0)), api.callCount(data.ResourceEmployees))
	}
}

// TestApproveThenRefilter verifies that an approval made in the all view
// survives the by-employee fetch returning the server's unapproved copy.
func TestApproveThenRefilter(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()

	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.ViewMore(ctx); err != nil {
		t.Fatalf("ViewMore: %v", err)
	}
	if want := []string{"t1", "t2", "t3"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Fatalf("visible = %v, want %v", visibleIDs(s), want)
	}
	if s.State().CanViewMore {
		t.Error("CanViewMore after the last page")
	}

	if err := s.SetApproval("t2", true); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	if err := s.SelectEmployee(ctx, grace.ID); err != nil {
		t.Fatalf("SelectEmployee: %v", err)
	}

	st := s.State()
	if len(st.Transactions) != 1 || st.Transactions[0].ID != "t2" {
		t.Fatalf("visible = %v, want [t2]", visibleIDs(s))
	}
	if !st.Transactions[0].Approved {
		t.Error("t2 approval reverted by the by-employee fetch")
	}
	if id, ok := st.Selection.EmployeeID(); !ok || id != grace.ID {
		t.Errorf("selection = %v, want employee e2", st.Selection)
	}
}

func TestSelectAllReusesAccumulatedPages(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()

	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectEmployee(ctx, ada.ID); err != nil {
		t.Fatal(err)
	}
	if want := []string{"t1", "t3"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("employee view = %v, want %v", visibleIDs(s), want)
	}

	if err := s.SelectEmployee(ctx, data.AllEmployeesID); err != nil {
		t.Fatal(err)
	}
	if api.callCount(pageKey(0)) != 1 || api.callCount(pageKey(1)) != 0 {
		t.Errorf("selecting all refetched pages: page0=%d page1=%d",
			api.callCount(pageKey(0)), api.callCount(pageKey(1)))
	}
	// t3 arrived through the by-employee feed and is part of the store.
	if want := []string{"t1", "t2", "t3"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("all view = %v, want %v", visibleIDs(s), want)
	}
	if !s.State().Selection.IsAll() {
		t.Error("sentinel did not normalise to all")
	}
}

func TestSelectingAllBeforeAnyPageLoadsFirstPage(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)

	if err := s.SelectEmployee(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if api.callCount(pageKey(0)) != 1 {
		t.Errorf("page0 calls = %d, want 1", api.callCount(pageKey(0)))
	}
	if want := []string{"t1", "t2"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("visible = %v, want %v", visibleIDs(s), want)
	}
}

// TestSelectAllDuringFirstPageLoad verifies re-selecting all while the mount's
// first page is still in flight waits for it instead of fetching page 1.
func TestSelectAllDuringFirstPageLoad(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()

	gate := api.gate(pageKey(0))
	mounted := make(chan error, 1)
	go func() { mounted <- s.Mount(ctx) }()
	waitFor(t, func() bool { return s.State().Loading })

	selected := make(chan error, 1)
	go func() { selected <- s.Select(ctx, view.All()) }()
	close(gate)

	if err := <-mounted; err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := <-selected; err != nil {
		t.Fatalf("Select: %v", err)
	}

	if got := api.callCount(pageKey(0)); got != 1 {
		t.Errorf("page0 calls = %d, want 1", got)
	}
	if got := api.callCount(pageKey(1)); got != 0 {
		t.Errorf("page1 calls = %d, want 0 without view more", got)
	}
	st := s.State()
	if want := []string{"t1", "t2"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("visible = %v, want %v", visibleIDs(s), want)
	}
	if st.Loading || !st.CanViewMore {
		t.Errorf("state = loading %v, canViewMore %v; want idle with more available", st.Loading, st.CanViewMore)
	}
}

func TestViewMoreUnavailable(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()

	if err := s.ViewMore(ctx); !errors.Is(err, ErrViewMoreUnavailable) {
		t.Errorf("before mount: err = %v, want ErrViewMoreUnavailable", err)
	}
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectEmployee(ctx, ada.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.ViewMore(ctx); !errors.Is(err, ErrViewMoreUnavailable) {
		t.Errorf("employee view: err = %v, want ErrViewMoreUnavailable", err)
	}
	if err := s.SelectEmployee(ctx, data.AllEmployeesID); err != nil {
		t.Fatal(err)
	}
	if err := s.ViewMore(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.ViewMore(ctx); !errors.Is(err, ErrViewMoreUnavailable) {
		t.Errorf("exhausted: err = %v, want ErrViewMoreUnavailable", err)
	}
}

func TestFailureLeavesStateIntact(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()

	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.SetApproval("t1", true); err != nil {
		t.Fatal(err)
	}

	api.setFailing(employeeKey("e1"), true)
	err := s.SelectEmployee(ctx, ada.ID)
	if !errors.Is(err, cache.ErrFetchFailed) {
		t.Fatalf("err = %v, want ErrFetchFailed", err)
	}
	st := s.State()
	if st.Loading {
		t.Error("loading flag left set after failure")
	}
	if !errors.Is(st.Err, cache.ErrFetchFailed) {
		t.Errorf("state err = %v, want ErrFetchFailed", st.Err)
	}
	// Records already held are still projected for the selected employee.
	if want := []string{"t1"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("visible = %v, want %v", visibleIDs(s), want)
	}
	if tx, _ := s.Transaction("t1"); !tx.Approved {
		t.Error("failure reverted a local edit")
	}

	// The failure was not cached, so retrying reaches the transport again.
	api.setFailing(employeeKey("e1"), false)
	if err := s.SelectEmployee(ctx, ada.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if want := []string{"t1", "t3"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("visible after retry = %v, want %v", visibleIDs(s), want)
	}
	if s.State().Err != nil {
		t.Errorf("state err after success = %v, want nil", s.State().Err)
	}
}

func TestMalformedResponses(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.setRaw(pageKey(0), `{"data":null}`)
	api.setRaw(employeeKey("e2"), `{"unexpected":true}`)
	api.setRaw(data.ResourceEmployees, `null`)
	s := newSession(t, api)
	ctx := context.Background()

	err := s.Mount(ctx)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("Mount err = %v, want ErrMalformedResponse", err)
	}
	if len(s.Employees()) != 0 {
		t.Errorf("Employees = %v, want none after malformed payload", s.Employees())
	}
	if got := visibleIDs(s); len(got) != 0 {
		t.Errorf("visible = %v, want none", got)
	}
	if err := s.SelectEmployee(ctx, grace.ID); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("by-employee err = %v, want ErrMalformedResponse", err)
	}
	if s.State().Loading {
		t.Error("loading flag left set")
	}
}

func TestSetApprovalUnknownTransaction(t *testing.T) {
	t.Parallel()

	s := newSession(t, newFakeAPI(t))
	if err := s.SetApproval("nope", true); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("err = %v, want records.ErrNotFound", err)
	}
}

func TestSelectionClearsVisibleWhileLoading(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}

	gate := api.gate(employeeKey("e1"))
	done := make(chan error, 1)
	go func() { done <- s.SelectEmployee(ctx, ada.ID) }()
	waitFor(t, func() bool { return api.callCount(employeeKey("e1")) == 1 })

	st := s.State()
	if !st.Loading || len(st.Transactions) != 0 || st.CanViewMore {
		t.Errorf("state while loading = %+v, want loading with an empty list", st)
	}
	// A local edit during the load must not repopulate the cleared list.
	if err := s.SetApproval("t1", true); err != nil {
		t.Fatal(err)
	}
	if got := visibleIDs(s); len(got) != 0 {
		t.Errorf("visible while loading = %v, want none", got)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if want := []string{"t1", "t3"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("visible = %v, want %v", visibleIDs(s), want)
	}
}

// TestStaleLoadDoesNotOwnLoadingFlag verifies a slow load finishing after a
// newer one neither resets the newer view nor flips the loading flag.
func TestStaleLoadDoesNotOwnLoadingFlag(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}

	slow := api.gate(employeeKey("e1"))
	slowDone := make(chan error, 1)
	go func() { slowDone <- s.SelectEmployee(ctx, ada.ID) }()
	waitFor(t, func() bool { return api.callCount(employeeKey("e1")) == 1 })

	fast := api.gate(employeeKey("e2"))
	fastDone := make(chan error, 1)
	go func() { fastDone <- s.SelectEmployee(ctx, grace.ID) }()
	waitFor(t, func() bool { return api.callCount(employeeKey("e2")) == 1 })

	// Let the older load finish first: the newer one is still pending.
	close(slow)
	if err := <-slowDone; err != nil {
		t.Fatal(err)
	}
	if st := s.State(); !st.Loading || len(st.Transactions) != 0 {
		t.Errorf("after stale completion state = %+v, want still loading", st)
	}
	// Its records were merged all the same.
	if _, ok := s.Transaction("t3"); !ok {
		t.Error("stale response was not merged")
	}

	close(fast)
	if err := <-fastDone; err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Loading {
		t.Error("loading flag still set")
	}
	if want := []string{"t2"}; !reflect.DeepEqual(visibleIDs(s), want) {
		t.Errorf("visible = %v, want %v", visibleIDs(s), want)
	}
}

func TestInvalidateResetsEverything(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.SetApproval("t1", true); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectEmployee(ctx, ada.ID); err != nil {
		t.Fatal(err)
	}

	s.Invalidate()
	st := s.State()
	if !st.Selection.IsAll() || len(st.Transactions) != 0 || st.Loading || st.CanViewMore {
		t.Errorf("state after Invalidate = %+v", st)
	}
	if len(s.Employees()) != 0 {
		t.Error("employees survived Invalidate")
	}

	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if api.callCount(pageKey(0)) != 2 || api.callCount(data.ResourceEmployees) != 2 {
		t.Errorf("Mount after Invalidate did not refetch: page0=%d employees=%d",
			api.callCount(pageKey(0)), api.callCount(data.ResourceEmployees))
	}
	if tx, _ := s.Transaction("t1"); tx.Approved {
		t.Error("local edit survived Invalidate")
	}
}

func TestInvalidateDiscardsInflightResults(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := newSession(t, api)
	ctx := context.Background()

	gate := api.gate(employeeKey("e2"))
	done := make(chan error, 1)
	go func() { done <- s.Select(ctx, view.Employee(grace.ID)) }()
	waitFor(t, func() bool { return api.callCount(employeeKey("e2")) == 1 })

	s.Invalidate()
	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Transaction("t2"); ok {
		t.Error("records fetched before Invalidate were merged")
	}
	if s.State().Loading {
		t.Error("loading flag set after reset")
	}
}
