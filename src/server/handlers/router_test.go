package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/txn-review/approvals/src/data"
	"github.com/txn-review/approvals/src/server/store"
)

func newTestServer(t *testing.T, n int) *httptest.Server {
	t.Helper()
	st := store.NewMemoryStore()
	st.AddEmployees([]data.Employee{{ID: "e1", FirstName: "Ada"}, {ID: "e2", FirstName: "Alan"}})
	var txs []data.Transaction
	for i := range n {
		owner := data.Employee{ID: "e1", FirstName: "Ada"}
		if i%2 == 1 {
			owner = data.Employee{ID: "e2", FirstName: "Alan"}
		}
		txs = append(txs, data.Transaction{
			ID:       "t" + string(rune('a'+i)),
			Amount:   decimal.NewFromInt(int64(10 * (i + 1))),
			Employee: owner,
		})
	}
	st.AddTransactions(txs)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Store:       st,
		PageSize:    2,
		CORSOrigins: []string{"*"},
		Registry:    prometheus.NewRegistry(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestTransactionsPagination(t *testing.T) {
	srv := newTestServer(t, 5)

	tests := []struct {
		query    string
		wantIDs  []string
		wantNext *int
	}{
		{"", []string{"ta", "tb"}, intPtr(1)},
		{"?page=1", []string{"tc", "td"}, intPtr(2)},
		{"?page=2", []string{"te"}, nil},
	}
	for _, tt := range tests {
		var resp data.PaginatedResponse
		if code := get(t, srv.URL+"/transactions"+tt.query, &resp); code != http.StatusOK {
			t.Fatalf("%s: status %d", tt.query, code)
		}
		var ids []string
		for _, tx := range resp.Data {
			ids = append(ids, tx.ID)
		}
		if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
			t.Errorf("%s: ids = %v, want %v", tt.query, ids, tt.wantIDs)
		}
		switch {
		case tt.wantNext == nil && resp.NextPage != nil:
			t.Errorf("%s: nextPage = %d, want null", tt.query, *resp.NextPage)
		case tt.wantNext != nil && (resp.NextPage == nil || *resp.NextPage != *tt.wantNext):
			t.Errorf("%s: nextPage = %v, want %d", tt.query, resp.NextPage, *tt.wantNext)
		}
	}
}

func TestTransactionsLastPageEncodesNullNextPage(t *testing.T) {
	srv := newTestServer(t, 1)
	resp, err := http.Get(srv.URL + "/transactions?page=0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"nextPage":null`) {
		t.Errorf("body = %s, want explicit null nextPage", body)
	}
}

func TestTransactionsInvalidPage(t *testing.T) {
	srv := newTestServer(t, 3)
	for _, q := range []string{"?page=2", "?page=-1", "?page=abc", "?page=1.5"} {
		var body map[string]string
		if code := get(t, srv.URL+"/transactions"+q, &body); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, code)
		}
		if body["error"] == "" {
			t.Errorf("%s: missing error message", q)
		}
	}
}

func TestEmployeesAndTransactionsByEmployee(t *testing.T) {
	srv := newTestServer(t, 4)

	var emps []data.Employee
	if code := get(t, srv.URL+"/employees", &emps); code != http.StatusOK || len(emps) != 2 {
		t.Fatalf("employees: status %d, %+v", code, emps)
	}

	var txs []data.Transaction
	get(t, srv.URL+"/employees/e2/transactions", &txs)
	if len(txs) != 2 || txs[0].ID != "tb" || txs[1].ID != "td" {
		t.Errorf("e2 transactions = %+v", txs)
	}

	var none []data.Transaction
	if code := get(t, srv.URL+"/employees/nobody/transactions", &none); code != http.StatusOK || none == nil || len(none) != 0 {
		t.Errorf("unknown employee: status %d, %#v", code, none)
	}

	if code := get(t, srv.URL+"/employees/%20/transactions", nil); code != http.StatusBadRequest {
		t.Errorf("blank employee id: status = %d, want 400", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, 1)
	get(t, srv.URL+"/employees", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `approvals_http_requests_total{code="200",route="/employees"} 1`) {
		t.Errorf("metrics body missing request counter:\n%s", body)
	}
}

type failingPinger struct{ store.Store }

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	h := &HealthHandler{Store: store.NewMemoryStore()}
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("memory store health = %d, want 200", rec.Code)
	}

	h = &HealthHandler{Store: failingPinger{store.NewMemoryStore()}}
	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failing database health = %d, want 503", rec.Code)
	}
	var resp healthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "degraded" || !strings.HasPrefix(resp.Checks["database"], "error:") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthReportsFixtures(t *testing.T) {
	srv := newTestServer(t, 5)

	var resp healthResponse
	if code := get(t, srv.URL+"/health", &resp); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	want := fixtureStats{Employees: 2, Transactions: 5, Pages: 3}
	if resp.Fixtures == nil || *resp.Fixtures != want {
		t.Errorf("fixtures = %+v, want %+v", resp.Fixtures, want)
	}
	if resp.Checks["fixtures"] != "ok" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

// unavailableStore fails the paging queries the way a lost database does.
type unavailableStore struct{ *store.MemoryStore }

func (unavailableStore) CountTransactions() (int, error) {
	return 0, errors.New("database is locked")
}

func TestStoreFailureIsNotAnEmptyFeed(t *testing.T) {
	st := unavailableStore{store.NewMemoryStore()}
	srv := httptest.NewServer(NewRouter(RouterConfig{Store: st, PageSize: 2, CORSOrigins: []string{"*"}}))
	t.Cleanup(srv.Close)

	var body map[string]any
	if code := get(t, srv.URL+"/transactions?page=0", &body); code != http.StatusInternalServerError {
		t.Errorf("transactions status = %d, want 500", code)
	}
	if _, ok := body["data"]; ok {
		t.Errorf("failure body carries a page: %v", body)
	}

	var health healthResponse
	if code := get(t, srv.URL+"/health", &health); code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", code)
	}
	if health.Status != "degraded" || !strings.HasPrefix(health.Checks["fixtures"], "error:") {
		t.Errorf("health = %+v", health)
	}
}

func intPtr(n int) *int { return &n }
