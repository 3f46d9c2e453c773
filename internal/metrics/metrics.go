// Package metrics defines the engine's Prometheus instrumentation. Metrics
// register on a caller-supplied registry; the engine has no network surface,
// so exposing them is left to the embedding process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors updated by the storage engine.
type Metrics struct {
	PutsTotal    prometheus.Counter
	GetsTotal    prometheus.Counter
	GetMisses    prometheus.Counter
	FlushesTotal prometheus.Counter

	FlushDuration prometheus.Histogram

	MemtableEntries prometheus.Gauge
	SSTablesOpen    prometheus.Gauge
	PutBytes        prometheus.Counter
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "puts_total",
			Help:      "Total number of put operations",
		}),
		GetsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "gets_total",
			Help:      "Total number of get operations",
		}),
		GetMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "get_misses_total",
			Help:      "Total number of gets that found no value in any tier",
		}),
		FlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "flushes_total",
			Help:      "Total number of memtable flushes",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "flush_duration_seconds",
			Help:      "Histogram of memtable flush durations",
			Buckets:   prometheus.DefBuckets,
		}),
		MemtableEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "memtable_entries",
			Help:      "Number of live keys in the active memtable",
		}),
		SSTablesOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "sstables_open",
			Help:      "Number of SSTables the engine currently reads from",
		}),
		PutBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shaledb",
			Subsystem: "engine",
			Name:      "put_bytes_total",
			Help:      "Total key and value payload bytes written",
		}),
	}
}
