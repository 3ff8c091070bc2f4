package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Security metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	AuthEventsTotal     *prometheus.CounterVec
	RateLimitedTotal    *prometheus.CounterVec

	// Mail metrics
	EmailsSentTotal *prometheus.CounterVec

	// Job metrics
	JobRunsTotal      *prometheus.CounterVec
	TokensPurgedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskhub_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhub_authz_decisions_total",
				Help: "Authorization decisions by action and outcome",
			},
			[]string{"action", "decision"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhub_auth_events_total",
				Help: "Credential lifecycle events by outcome",
			},
			[]string{"event", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhub_rate_limited_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"limiter"},
		),

		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhub_emails_sent_total",
				Help: "Outbound emails by template and outcome",
			},
			[]string{"template", "outcome"},
		),

		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskhub_job_runs_total",
				Help: "Background job runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		TokensPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskhub_tokens_purged_total",
				Help: "Expired one-time tokens cleared by the janitor",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.AuthEventsTotal,
		m.RateLimitedTotal,
		m.EmailsSentTotal,
		m.JobRunsTotal,
		m.TokensPurgedTotal,
	)

	return m
}

// RecordAuthz counts an authorization decision. Safe on a nil receiver.
func (m *Metrics) RecordAuthz(action, decision string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(action, decision).Inc()
}

// RecordAuthEvent counts a credential lifecycle event. Safe on a nil receiver.
func (m *Metrics) RecordAuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordRateLimited counts a rejected request. Safe on a nil receiver.
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// RecordEmail counts an email delivery attempt. Safe on a nil receiver.
func (m *Metrics) RecordEmail(template, outcome string) {
	if m == nil {
		return
	}
	m.EmailsSentTotal.WithLabelValues(template, outcome).Inc()
}

// RecordJobRun counts a background job run. Safe on a nil receiver.
func (m *Metrics) RecordJobRun(job, outcome string) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the matched route template to bound cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
