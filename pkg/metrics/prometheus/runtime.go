// Package prometheus implements pkg/metrics.RuntimeMetrics on top of
// client_golang, following the same promauto registration pattern the
// teacher's cache/NFS/S3 metrics used.
package prometheus

import (
	"time"

	"github.com/marmos91/gorpcd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// runtimeMetrics is the Prometheus implementation of metrics.RuntimeMetrics.
type runtimeMetrics struct {
	frameTotal    *prometheus.CounterVec
	frameDuration *prometheus.HistogramVec

	bytesTotal *prometheus.CounterVec

	connectionsActive   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter

	pendingDepth prometheus.Gauge
	workingDepth prometheus.Gauge
	workerUtil   prometheus.Gauge

	clientRoundTrip *prometheus.HistogramVec
	clientTimeouts  *prometheus.CounterVec
}

// NewRuntimeMetrics creates a new Prometheus-backed RuntimeMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), so
// callers can pass the result straight through to server/client options
// and get zero overhead when disabled.
func NewRuntimeMetrics() metrics.RuntimeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &runtimeMetrics{
		frameTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gorpcd_frames_dispatched_total",
				Help: "Total number of dispatched frames by method index and error kind",
			},
			[]string{"method_index", "error_kind"},
		),
		frameDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gorpcd_frame_dispatch_duration_milliseconds",
				Help: "Duration of frame dispatch in milliseconds",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000,
				},
			},
			[]string{"method_index"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gorpcd_connection_bytes_total",
				Help: "Total bytes transferred by direction",
			},
			[]string{"direction"}, // "read", "write"
		),
		connectionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gorpcd_connections_active",
				Help: "Current number of active connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gorpcd_connections_accepted_total",
				Help: "Total number of accepted connections",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gorpcd_connections_closed_total",
				Help: "Total number of closed connections",
			},
		),
		pendingDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gorpcd_pending_list_depth",
				Help: "Current depth of the pending connection list",
			},
		),
		workingDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gorpcd_working_list_depth",
				Help: "Current depth of the working connection list",
			},
		),
		workerUtil: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gorpcd_worker_pool_utilization",
				Help: "Fraction of the worker pool currently busy, in [0, 1]",
			},
		),
		clientRoundTrip: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gorpcd_client_round_trip_milliseconds",
				Help: "Duration a client's Invoke call waited for a reply",
				Buckets: []float64{
					0.5, 1, 5, 10, 50, 100, 500, 1000, 5000,
				},
			},
			[]string{"method_index"},
		),
		clientTimeouts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gorpcd_client_timeouts_total",
				Help: "Total number of client calls that timed out waiting for a reply",
			},
			[]string{"method_index"},
		),
	}
}

func (m *runtimeMetrics) RecordFrame(methodIndex string, duration time.Duration, errKind string) {
	m.frameTotal.WithLabelValues(methodIndex, errKind).Inc()
	m.frameDuration.WithLabelValues(methodIndex).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *runtimeMetrics) RecordBytesTransferred(direction string, bytes uint64) {
	m.bytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

func (m *runtimeMetrics) SetConnectionCount(count int) {
	m.connectionsActive.Set(float64(count))
}

func (m *runtimeMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *runtimeMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *runtimeMetrics) SetPendingListDepth(depth int) {
	m.pendingDepth.Set(float64(depth))
}

func (m *runtimeMetrics) SetWorkingListDepth(depth int) {
	m.workingDepth.Set(float64(depth))
}

func (m *runtimeMetrics) SetWorkerUtilization(fraction float64) {
	m.workerUtil.Set(fraction)
}

func (m *runtimeMetrics) RecordClientRoundTrip(methodIndex string, duration time.Duration, timedOut bool) {
	m.clientRoundTrip.WithLabelValues(methodIndex).Observe(float64(duration.Microseconds()) / 1000.0)
	if timedOut {
		m.clientTimeouts.WithLabelValues(methodIndex).Inc()
	}
}
