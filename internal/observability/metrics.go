package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	evaluationsTotal    prometheus.Counter
	syncWritesTotal     prometheus.Counter
	invariantViolations prometheus.Counter
	listDropsTotal      prometheus.Counter
}

// NewMetrics initialises the registry with the HTTP and engine metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atelier_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	evaluations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atelier_permission_evaluations_total",
		Help: "Effective-permission evaluations performed.",
	})
	syncWrites := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atelier_collaborator_sync_writes_total",
		Help: "Collaborator rows written (inserted, updated or deleted) by syncs.",
	})
	violations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atelier_collaborator_invariant_violations_total",
		Help: "Collaborator rows found with zero or multiple principal references.",
	})
	listDrops := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atelier_list_dropped_resources_total",
		Help: "Resources dropped from listings because a parent lookup failed.",
	})
	registry.MustRegister(requests, duration, evaluations, syncWrites, violations, listDrops)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		evaluationsTotal:    evaluations,
		syncWritesTotal:     syncWrites,
		invariantViolations: violations,
		listDropsTotal:      listDrops,
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

// Middleware records request metrics for every HTTP request.
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

// ObserveEvaluations counts permission evaluations.
func (m *Metrics) ObserveEvaluations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evaluationsTotal.Add(float64(n))
}

// ObserveSyncWrites counts collaborator rows written by syncs.
func (m *Metrics) ObserveSyncWrites(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncWritesTotal.Add(float64(n))
}

// IncInvariantViolations counts malformed collaborator rows.
func (m *Metrics) IncInvariantViolations() {
	if m == nil {
		return
	}
	m.invariantViolations.Inc()
}

// IncListDrops counts resources dropped from listings.
func (m *Metrics) IncListDrops() {
	if m == nil {
		return
	}
	m.listDropsTotal.Inc()
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
