package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/txn-review/approvals/src/server/middleware"
	"github.com/txn-review/approvals/src/server/storage"
	"github.com/txn-review/approvals/src/server/store"
)

type RouterConfig struct {
	Store       store.Store
	Storage     storage.ObjectStorage
	PageSize    int
	Latency     time.Duration
	CORSOrigins []string
	Logger      *slog.Logger
	// Registry backs /metrics. A nil Registry disables the endpoint.
	Registry *prometheus.Registry
}

// NewRouter wires the dev API. Artificial latency applies to the data routes
// only.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestLogger(cfg.Logger))
	if cfg.Registry != nil {
		r.Use(middleware.Metrics(cfg.Registry))
	}

	health := &HealthHandler{Store: cfg.Store, Storage: cfg.Storage, PageSize: cfg.PageSize}
	r.Get("/health", health.Check)
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	employees := &EmployeeHandler{Store: cfg.Store}
	transactions := &TransactionHandler{Store: cfg.Store, PageSize: cfg.PageSize}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Latency(cfg.Latency))
		r.Get("/employees", employees.List)
		r.Get("/employees/{id}/transactions", employees.Transactions)
		r.Get("/transactions", transactions.List)
	})
	return r
}
