// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	relayRequests    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	submissions      *prometheus.CounterVec
	countsLogged     prometheus.Counter
}

// New creates the collectors and registers them with registerer when it is non-nil.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "practice_tracker_relay_requests_total",
			Help: "Requests passed through the relay by method and response status",
		}, []string{"method", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "practice_tracker_upstream_duration_seconds",
			Help:    "Latency of calls to the script endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "practice_tracker_submissions_total",
			Help: "Entry submissions by result",
		}, []string{"result"}),
		countsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "practice_tracker_counts_logged_total",
			Help: "Sum of all practice counts accepted",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.relayRequests)
		registerer.MustRegister(m.upstreamDuration)
		registerer.MustRegister(m.submissions)
		registerer.MustRegister(m.countsLogged)
	}
	return m
}

func (m *Metrics) RelayRequest(method string, status int) {
	if m == nil {
		return
	}
	m.relayRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveUpstream(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Submission records one submit attempt; count is added only on success.
func (m *Metrics) Submission(err error, count int) {
	if m == nil {
		return
	}
	if err != nil {
		m.submissions.WithLabelValues("error").Inc()
		return
	}
	m.submissions.WithLabelValues("ok").Inc()
	m.countsLogged.Add(float64(count))
}
