package cache

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

func newRequestCounter(reg prometheus.Registerer, logger *slog.Logger) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "approvals",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Request cache lookups by resource and result (hit, miss, shared, error).",
	}, []string{"resource", "result"})

	if reg == nil {
		return counter
	}
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		logger.Warn("cache metrics not registered", "error", err)
	}
	return counter
}
