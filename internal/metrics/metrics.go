// Package metrics exposes scheduler and storage Prometheus collectors on a
// registry owned by the runtime.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
)

const namespace = "farm"

// Metrics implements scheduler.Observer and pebblestore.MetricsHook.
type Metrics struct {
	registry *prometheus.Registry

	submitted    *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	dispatched   *prometheus.CounterVec
	completed    *prometheus.CounterVec
	cancelled    prometheus.Counter
	laneDepth    *prometheus.GaugeVec
	inflight     prometheus.Gauge
	dispatchWait prometheus.Histogram
	runTime      prometheus.Histogram

	storeRead   prometheus.Histogram
	storeWrite  prometheus.Histogram
	storeCommit prometheus.Histogram
	storeBytes  *prometheus.CounterVec
}

// New builds the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "submitted_total",
			Help: "Requests accepted, by priority lane.",
		}, []string{"lane"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "rejected_total",
			Help: "Submissions rejected, by reason.",
		}, []string{"reason"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "dispatched_total",
			Help: "Requests handed to processors, by priority lane.",
		}, []string{"lane"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "completed_total",
			Help: "Requests completed, by outcome.",
		}, []string{"outcome"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "cancelled_total",
			Help: "Pending requests cancelled.",
		}),
		laneDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "lane_depth",
			Help: "Requests waiting in each priority lane.",
		}, []string{"lane"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "inflight",
			Help: "Requests dispatched and not yet completed.",
		}),
		dispatchWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "dispatch_wait_seconds",
			Help:    "Time from submission to dispatch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		runTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "execution_seconds",
			Help:    "Time from dispatch to completion.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		storeRead: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "read_seconds",
			Help: "Storage read latency.", Buckets: prometheus.DefBuckets,
		}),
		storeWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "write_seconds",
			Help: "Storage point write latency.", Buckets: prometheus.DefBuckets,
		}),
		storeCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "batch_commit_seconds",
			Help: "Storage batch commit latency.", Buckets: prometheus.DefBuckets,
		}),
		storeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "bytes_total",
			Help: "Bytes read and written.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submitted, m.rejected, m.dispatched, m.completed, m.cancelled,
		m.laneDepth, m.inflight, m.dispatchWait, m.runTime,
		m.storeRead, m.storeWrite, m.storeCommit, m.storeBytes,
	)
	return m
}

// Registry returns the registry to serve.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func lane(n int) string { return strconv.Itoa(n) }

func (m *Metrics) ObserveSubmit(_ string, l int) { m.submitted.WithLabelValues(lane(l)).Inc() }

func (m *Metrics) ObserveReject(_ string, err error) {
	m.rejected.WithLabelValues(rejectReason(err)).Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, invocation.ErrDuplicateIdentifier):
		return "duplicate"
	case errors.Is(err, invocation.ErrInvalidArgument):
		return "invalid"
	default:
		return "other"
	}
}

func (m *Metrics) ObserveDispatch(l int, wait time.Duration) {
	m.dispatched.WithLabelValues(lane(l)).Inc()
	m.dispatchWait.Observe(wait.Seconds())
}

func (m *Metrics) ObserveComplete(failed bool, run time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.completed.WithLabelValues(outcome).Inc()
	m.runTime.Observe(run.Seconds())
}

func (m *Metrics) ObserveCancel(n int) { m.cancelled.Add(float64(n)) }

func (m *Metrics) ObserveDepth(lanes []int, inflight int) {
	for i, d := range lanes {
		m.laneDepth.WithLabelValues(lane(i)).Set(float64(d))
	}
	m.inflight.Set(float64(inflight))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storeRead.Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storeWrite.Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.storeCommit.Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("commit").Add(float64(bytes))
}
