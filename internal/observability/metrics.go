// Package observability wires Prometheus metrics for the HTTP surface and
// the financial domain counters.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	simulationsRun  *prometheus.CounterVec
	paymentsPosted  *prometheus.CounterVec
	quoteRefreshes  prometheus.Counter
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	simulations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_simulations_total",
		Help: "Landed-cost simulations computed, by transport modal.",
	}, []string{"modal"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_payments_posted_total",
		Help: "Ledger payments posted, by entry currency.",
	}, []string{"currency"})
	refreshes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_ptax_refresh_total",
		Help: "Background PTAX quote refresh runs.",
	})
	registry.MustRegister(requests, duration, simulations, payments, refreshes)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		simulationsRun:  simulations,
		paymentsPosted:  payments,
		quoteRefreshes:  refreshes,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SimulationRun counts one computed simulation.
func (m *Metrics) SimulationRun(modal string) {
	if m == nil {
		return
	}
	m.simulationsRun.WithLabelValues(modal).Inc()
}

// PaymentPosted counts one posted ledger payment.
func (m *Metrics) PaymentPosted(currency string) {
	if m == nil {
		return
	}
	m.paymentsPosted.WithLabelValues(currency).Inc()
}

// QuoteRefresh counts one background PTAX refresh run.
func (m *Metrics) QuoteRefresh() {
	if m == nil {
		return
	}
	m.quoteRefreshes.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
