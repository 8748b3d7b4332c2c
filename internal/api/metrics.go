package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/org/servercatalog/pkg/models"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servercatalog_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "servercatalog_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servercatalog_rate_limited_total",
		Help: "Requests rejected by a rate limiter.",
	}, []string{"limiter"})

	threatsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servercatalog_threats_total",
		Help: "Injection signature findings by request surface.",
	}, []string{"surface"})

	anomaliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servercatalog_anomalies_total",
		Help: "Anomaly events raised for authenticated principals.",
	}, []string{"kind"})

	securityEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servercatalog_security_events_total",
		Help: "Security log events by type and severity.",
	}, []string{"event", "severity"})

	productsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "servercatalog_products",
		Help: "Number of products in the catalog.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, rateLimitedTotal,
		threatsTotal, anomaliesTotal, securityEventsTotal, productsGauge)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// observeSecurityEvent is installed as the audit logger's Observe hook.
func observeSecurityEvent(kind string, severity models.Severity) {
	securityEventsTotal.WithLabelValues(kind, string(severity)).Inc()
}

// metricsMiddleware records request metrics. Routes are labelled by their
// chi pattern so ids do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, route, status).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(dur)
	})
}
