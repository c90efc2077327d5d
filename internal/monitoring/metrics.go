// Package monitoring exposes Prometheus collectors for provider calls,
// audit outcomes, and HTTP traffic.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LLMRequests      *prometheus.CounterVec
	LLMDuration      *prometheus.HistogramVec
	CircuitState     *prometheus.GaugeVec
	ClaimsExtracted  prometheus.Counter
	Verifications    *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_llm_requests_total",
			Help: "Provider calls, by provider, operation and outcome.",
		},
		[]string{"provider", "operation", "outcome"},
	)

	m.LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audit_llm_request_duration_seconds",
			Help:    "Provider call latency in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "operation"},
	)

	m.CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audit_llm_circuit_state",
			Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open).",
		},
		[]string{"provider"},
	)

	m.ClaimsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_claims_extracted_total",
			Help: "Claims extracted from videos.",
		},
	)

	m.Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_verifications_total",
			Help: "Claim verifications, by resulting status.",
		},
		[]string{"status"},
	)

	m.ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_sessions_active",
			Help: "Sessions currently held in memory.",
		},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audit_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	m.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	m.registry.MustRegister(
		m.LLMRequests,
		m.LLMDuration,
		m.CircuitState,
		m.ClaimsExtracted,
		m.Verifications,
		m.ActiveSessions,
		m.RequestDuration,
		m.RequestsInFlight,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLLM records one provider call.
func (m *Metrics) ObserveLLM(provider, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMRequests.WithLabelValues(provider, operation, outcome).Inc()
	m.LLMDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// SetCircuitState records the breaker state for a provider.
func (m *Metrics) SetCircuitState(provider string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(provider).Set(float64(state))
}

// AddClaimsExtracted counts newly extracted claims.
func (m *Metrics) AddClaimsExtracted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ClaimsExtracted.Add(float64(n))
}

// ObserveVerification counts one verification outcome.
func (m *Metrics) ObserveVerification(status string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(status).Inc()
}

// SetActiveSessions records the live session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request duration and in-flight count. Routes are
// labelled by their chi pattern so path parameters do not explode
// cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
