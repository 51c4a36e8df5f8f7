// Package metrics provides Prometheus instrumentation for walletshop.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled  bool
	initOnce sync.Once

	httpRequestsTotal *prometheus.CounterVec

	orderAttemptsTotal *prometheus.CounterVec
	orderOutcomesTotal *prometheus.CounterVec
	signingTotal       *prometheus.CounterVec
	watcherTotal       *prometheus.CounterVec
	searchTotal        *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per process.
func Init(enabledFlag bool) {
	enabled = enabledFlag
	if !enabled {
		return
	}

	initOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)

		// One increment per provider call made by the locator retry loop.
		orderAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_order_attempts_total",
				Help: "Total number of order creation attempts per locator variant",
			},
			[]string{"result"},
		)

		orderOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_order_outcomes_total",
				Help: "Total number of classified order creation outcomes",
			},
			[]string{"outcome"},
		)

		signingTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_signing_total",
				Help: "Total number of signing requests by path and result",
			},
			[]string{"path", "result"},
		)

		watcherTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_order_watch_total",
				Help: "Total number of order status checks by resulting status",
			},
			[]string{"status"},
		)

		searchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "product_search_total",
				Help: "Total number of product searches",
			},
			[]string{"result"},
		)
	})
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}
