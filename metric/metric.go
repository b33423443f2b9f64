// Package metric provides prometheus collectors of the scheduler.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "seedling"

const (
	// PoolLabel is the label of per-pool collectors.
	PoolLabel = "pool"
	// PolicyLabel is the completion policy of reclaimed requests.
	PolicyLabel = "policy"
)

// Metrics holds collectors of a single scheduler context.
type Metrics struct {
	// NodesAcquired counts graph nodes added for parameter objects.
	NodesAcquired prometheus.Counter
	// EventsFlushed counts events sent to the graph.
	EventsFlushed prometheus.Counter
	// RemovalFailures counts graph nodes which failed to be removed.
	RemovalFailures prometheus.Counter
	// Queued is the number of requests waiting for a worker.
	Queued prometheus.Gauge
	// Workers is the number of sampler workers per pool.
	Workers *prometheus.GaugeVec
	// Assignments counts requests assigned to workers.
	Assignments *prometheus.CounterVec
	// Steals counts assignments to workers with playback in progress.
	Steals *prometheus.CounterVec
	// Growths counts pool growths.
	Growths *prometheus.CounterVec
	// Completed counts finished requests per completion policy.
	Completed *prometheus.CounterVec
	// UpdateDuration measures duration of a frame update.
	UpdateDuration prometheus.Histogram
}

// New creates collectors and registers them with r. If r is nil,
// collectors are not registered.
func New(r prometheus.Registerer) *Metrics {
	f := promauto.With(r)
	return &Metrics{
		NodesAcquired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes_acquired_total",
			Help:      "Total graph nodes added for parameter objects",
		}),
		EventsFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "events_flushed_total",
			Help:      "Total events sent to the graph",
		}),
		RemovalFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "removal_failures_total",
			Help:      "Total graph nodes which failed to be removed",
		}),
		Queued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queued_requests",
			Help:      "Requests waiting for a sampler worker",
		}),
		Workers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Sampler workers per pool",
		}, []string{PoolLabel}),
		Assignments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "assignments_total",
			Help:      "Total requests assigned to workers",
		}, []string{PoolLabel}),
		Steals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "steals_total",
			Help:      "Total assignments which interrupted playback in progress",
		}, []string{PoolLabel}),
		Growths: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "growths_total",
			Help:      "Total pool growths",
		}, []string{PoolLabel}),
		Completed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "completed_total",
			Help:      "Total finished requests per completion policy",
		}, []string{PoolLabel, PolicyLabel}),
		UpdateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Duration of a frame update",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
	}
}
