// Package metrics exposes Prometheus collectors for scheduling and HTTP traffic.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors recorded by services and middleware.
type Metrics struct {
	postsScheduled  *prometheus.CounterVec
	postsCancelled  prometheus.Counter
	postsPublished  *prometheus.CounterVec
	postsFailed     *prometheus.CounterVec
	postsClaimed    prometheus.Counter
	publishDuration *prometheus.HistogramVec
	dispatchRuns    *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		postsScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestoner_posts_scheduled_total",
				Help: "Posts accepted for scheduling",
			},
			[]string{"platform", "mode"},
		),
		postsCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "milestoner_posts_cancelled_total",
				Help: "Pending posts cancelled before dispatch",
			},
		),
		postsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestoner_posts_published_total",
				Help: "Posts published successfully",
			},
			[]string{"platform"},
		),
		postsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestoner_posts_failed_total",
				Help: "Posts whose single publish attempt failed",
			},
			[]string{"platform"},
		),
		postsClaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "milestoner_posts_claimed_total",
				Help: "Due posts claimed by a dispatcher",
			},
		),
		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "milestoner_publish_duration_seconds",
				Help:    "Platform publish call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		),
		dispatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestoner_dispatch_runs_total",
				Help: "Dispatch polls by outcome",
			},
			[]string{"outcome"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestoner_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "milestoner_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	reg.MustRegister(
		m.postsScheduled, m.postsCancelled, m.postsPublished, m.postsFailed,
		m.postsClaimed, m.publishDuration, m.dispatchRuns,
		m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

// PostScheduled counts an accepted schedule request.
func (m *Metrics) PostScheduled(platform, mode string) {
	if m == nil {
		return
	}
	m.postsScheduled.WithLabelValues(platform, mode).Inc()
}

// PostCancelled counts a cancellation.
func (m *Metrics) PostCancelled() {
	if m == nil {
		return
	}
	m.postsCancelled.Inc()
}

// PostsClaimed adds n claimed posts.
func (m *Metrics) PostsClaimed(n int) {
	if m == nil {
		return
	}
	m.postsClaimed.Add(float64(n))
}

// Published records one publish attempt and its latency.
func (m *Metrics) Published(platform string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.WithLabelValues(platform).Observe(took.Seconds())
	if ok {
		m.postsPublished.WithLabelValues(platform).Inc()
	} else {
		m.postsFailed.WithLabelValues(platform).Inc()
	}
}

// DispatchRun counts a dispatch poll; outcome is "ok" or "error".
func (m *Metrics) DispatchRun(outcome string) {
	if m == nil {
		return
	}
	m.dispatchRuns.WithLabelValues(outcome).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, status).Inc()
	m.httpRequestDuration.WithLabelValues(method).Observe(took.Seconds())
}
