package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/parc-api/internal/models"
)

// Roster row outcomes used as metric labels.
const (
	RosterOutcomeCreated = "created"
	RosterOutcomeReused  = "reused"
	RosterOutcomeSkipped = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and the access lifecycle.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	credentialsIssued    *prometheus.CounterVec
	notificationsSent    prometheus.Counter
	notificationsFailed  prometheus.Counter
	rosterRows           *prometheus.CounterVec
	lifecycleTransitions *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	credentialsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credentials_issued_total",
		Help: "Generated login secrets by account role",
	}, []string{"role"})

	notificationsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Emails handed to the SMTP relay",
	})

	notificationsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Emails dropped after exhausting retries",
	})

	rosterRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_rows_total",
		Help: "Roster rows processed by outcome",
	}, []string{"outcome"})

	lifecycleTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trainer_lifecycle_transitions_total",
		Help: "Trainer lifecycle writes by transition",
	}, []string{"transition"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, credentialsIssued, notificationsSent, notificationsFailed, rosterRows, lifecycleTransitions, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		credentialsIssued:    credentialsIssued,
		notificationsSent:    notificationsSent,
		notificationsFailed:  notificationsFailed,
		rosterRows:           rosterRows,
		lifecycleTransitions: lifecycleTransitions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// CredentialIssued counts a generated secret.
func (m *MetricsService) CredentialIssued(role models.Role) {
	if m == nil {
		return
	}
	m.credentialsIssued.WithLabelValues(string(role)).Inc()
}

// NotificationSent counts a delivered email.
func (m *MetricsService) NotificationSent() {
	if m == nil {
		return
	}
	m.notificationsSent.Inc()
}

// NotificationFailed counts an email dropped after retries.
func (m *MetricsService) NotificationFailed() {
	if m == nil {
		return
	}
	m.notificationsFailed.Inc()
}

// RosterRow counts one processed roster row.
func (m *MetricsService) RosterRow(outcome string) {
	if m == nil {
		return
	}
	m.rosterRows.WithLabelValues(outcome).Inc()
}

// LifecycleTransition counts a persisted trainer state change.
func (m *MetricsService) LifecycleTransition(transition string) {
	if m == nil {
		return
	}
	m.lifecycleTransitions.WithLabelValues(transition).Inc()
}
