// Package metrics holds the Prometheus collectors of the document service
// and the HTTP layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "haste"

// Metrics groups the service collectors.
type Metrics struct {
	DocumentsCreated  prometheus.Counter
	DocumentReads     *prometheus.CounterVec
	DocumentsDeleted  *prometheus.CounterVec
	KeyCollisions     prometheus.Counter
	BackendErrors     *prometheus.CounterVec
	BackendDuration   *prometheus.HistogramVec
	RateLimitRejected prometheus.Counter
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "documents_created_total", Help: "Number of documents created."},
		),
		DocumentReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "document_reads_total", Help: "Number of document reads by result."},
			[]string{"result"},
		),
		DocumentsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "documents_deleted_total", Help: "Number of documents deleted by reason."},
			[]string{"reason"},
		),
		KeyCollisions: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "key_collisions_total", Help: "Number of generated keys that were already taken."},
		),
		BackendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "backend_errors_total", Help: "Number of failed storage operations by operation."},
			[]string{"op"},
		),
		BackendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "backend_duration_seconds", Help: "Latency of storage operations.", Buckets: prometheus.DefBuckets},
			[]string{"op"},
		),
		RateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of requests rejected by the rate limiter."},
		),
	}
}

// Register creates the collectors and registers them on reg.
func Register(reg prometheus.Registerer) *Metrics {
	m := New()
	reg.MustRegister(
		m.DocumentsCreated,
		m.DocumentReads,
		m.DocumentsDeleted,
		m.KeyCollisions,
		m.BackendErrors,
		m.BackendDuration,
		m.RateLimitRejected,
	)
	return m
}

// Created counts a stored document.
func (m *Metrics) Created() {
	if m == nil {
		return
	}
	m.DocumentsCreated.Inc()
}

// Read counts a read with its outcome ("hit", "miss", "error").
func (m *Metrics) Read(result string) {
	if m == nil {
		return
	}
	m.DocumentReads.WithLabelValues(result).Inc()
}

// Deleted counts a removal ("explicit", "burned", "expired").
func (m *Metrics) Deleted(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DocumentsDeleted.WithLabelValues(reason).Add(float64(n))
}

// Collision counts a key collision.
func (m *Metrics) Collision() {
	if m == nil {
		return
	}
	m.KeyCollisions.Inc()
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitRejected.Inc()
}

// ObserveBackend records the latency of a storage call and counts it as an
// error when failed is set.
func (m *Metrics) ObserveBackend(op string, start time.Time, failed bool) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if failed {
		m.BackendErrors.WithLabelValues(op).Inc()
	}
}
