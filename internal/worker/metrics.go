package worker

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSource feeds the gauge callbacks from live worker state.
type metricsSource interface {
	Uptime() time.Duration
	LastHeartbeat() time.Time
	ActiveJobs() int
	ConcurrencyLimit() int
}

// Metrics are the worker's prometheus collectors, registered on a private
// registry served by the health server.
type Metrics struct {
	registry *prometheus.Registry

	JobsClaimed   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsCancelled prometheus.Counter

	RendersRescued prometheus.Counter

	RenderDuration prometheus.Histogram
}

// NewMetrics builds and registers the worker collectors. The gauges read
// src on every scrape, so they never go stale between events.
func NewMetrics(src metricsSource) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		JobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_jobs_claimed_total",
			Help: "Jobs claimed from the queue.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Jobs finished successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Jobs that ended in failure.",
		}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_jobs_cancelled_total",
			Help: "Jobs stopped by external cancellation.",
		}),
		RendersRescued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_renders_rescued_total",
			Help: "Stale renders failed by the rescue sweep.",
		}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_render_duration_seconds",
			Help:    "Wall time of completed renders.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}),
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "worker_uptime_seconds",
		Help: "Seconds since the worker started.",
	}, func() float64 {
		return src.Uptime().Seconds()
	})
	lastHeartbeat := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "worker_last_heartbeat_seconds",
		Help: "Unix time of the worker's last loop heartbeat.",
	}, func() float64 {
		return float64(src.LastHeartbeat().Unix())
	})
	memoryUsed := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "worker_memory_used_bytes",
		Help: "Heap bytes currently allocated.",
	}, func() float64 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		return float64(stats.Alloc)
	})
	isProcessing := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "worker_is_processing",
		Help: "1 while at least one render is in flight.",
	}, func() float64 {
		if src.ActiveJobs() > 0 {
			return 1
		}
		return 0
	})
	concurrencyActive := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "worker_concurrency_active",
		Help: "Renders currently in flight on this worker.",
	}, func() float64 {
		return float64(src.ActiveJobs())
	})
	concurrencyLimit := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "worker_concurrency_limit",
		Help: "Effective concurrent-job limit.",
	}, func() float64 {
		return float64(src.ConcurrencyLimit())
	})
	concurrencyAvailable := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "worker_concurrency_available",
		Help: "Free job slots under the effective limit.",
	}, func() float64 {
		free := src.ConcurrencyLimit() - src.ActiveJobs()
		if free < 0 {
			free = 0
		}
		return float64(free)
	})

	registry.MustRegister(
		m.JobsClaimed,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsCancelled,
		m.RendersRescued,
		m.RenderDuration,
		uptime,
		lastHeartbeat,
		memoryUsed,
		isProcessing,
		concurrencyActive,
		concurrencyLimit,
		concurrencyAvailable,
	)
	return m
}

// Registry exposes the private registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
