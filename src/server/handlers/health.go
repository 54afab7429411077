package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/txn-review/approvals/src/server/storage"
	"github.com/txn-review/approvals/src/server/store"
)

// Pinger is implemented by the SQL fixture stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports backend reachability and how much fixture data the
// dev API is serving. An empty transactions feed is reported but is not
// unhealthy.
type HealthHandler struct {
	Store    store.Store
	Storage  storage.ObjectStorage
	PageSize int
}

type fixtureStats struct {
	Employees    int `json:"employees"`
	Transactions int `json:"transactions"`
	Pages        int `json:"pages,omitempty"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Fixtures *fixtureStats     `json:"fixtures,omitempty"`
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string)}
	fail := func(check string, err error) {
		resp.Checks[check] = "error: " + err.Error()
		resp.Status = "degraded"
	}

	if pinger, ok := h.Store.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			fail("database", err)
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if h.Storage != nil {
		if err := h.Storage.Ping(ctx); err != nil {
			fail("storage", err)
		} else {
			resp.Checks["storage"] = "ok"
		}
	}

	if h.Store != nil {
		if total, err := h.Store.CountTransactions(); err != nil {
			fail("fixtures", err)
		} else {
			stats := &fixtureStats{
				Employees:    len(h.Store.ListEmployees()),
				Transactions: total,
			}
			if h.PageSize > 0 {
				stats.Pages = (total + h.PageSize - 1) / h.PageSize
			}
			resp.Fixtures = stats
			resp.Checks["fixtures"] = "ok"
		}
	}

	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
