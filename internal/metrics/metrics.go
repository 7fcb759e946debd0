package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the auth counters
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeInactive           = "inactive"
	OutcomeMissingToken       = "missing_token"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeExpired            = "expired"
	OutcomeError              = "error"
)

// Side-write labels for best-effort writes that never affect an auth decision
const (
	SideWriteAudit       = "audit"
	SideWriteLockout     = "lockout"
	SideWriteReset       = "lockout_reset"
	SideWriteLastAccess  = "last_access"
	SideWriteLockoutMail = "lockout_notice"
)

// Metrics owns a private Prometheus registry with the auth and HTTP collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	logins          *prometheus.CounterVec
	authentications *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	logouts         *prometheus.CounterVec
	lockouts        prometheus.Counter
	sideWriteErrors *prometheus.CounterVec
	sessionsSwept   prometheus.Counter

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_gate_checks_total",
			Help: "Bearer token checks on protected requests by outcome",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Refresh token rotations by outcome",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logouts_total",
			Help: "Logouts by scope",
		}, []string{"scope"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Accounts locked after reaching the failed attempt threshold",
		}),
		sideWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_side_write_failures_total",
			Help: "Failed best-effort writes (audit rows, lockout bookkeeping, last access, notices)",
		}, []string{"kind"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_swept_total",
			Help: "Expired or inactive session rows deleted by the cleanup job",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests",
		}),
	}

	registry.MustRegister(
		m.logins, m.authentications, m.refreshes, m.logouts, m.lockouts,
		m.sideWriteErrors, m.sessionsSwept,
		m.requestDuration, m.requestTotal, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GateCheck(outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Logout(scope string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(scope).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// SideWriteFailed counts a best-effort write that failed
func (m *Metrics) SideWriteFailed(kind string) {
	if m == nil {
		return
	}
	m.sideWriteErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionsSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

// Instrument records request count, latency and in-flight requests. The chi
// route pattern is used as the label to keep cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, route, strconv.Itoa(status)}

		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.requestTotal.WithLabelValues(labels...).Inc()
	})
}
