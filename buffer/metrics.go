package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evictions  prometheus.Counter
	writebacks prometheus.Counter
	flushes    prometheus.Counter
}

// newMetrics builds the pool counters. With a nil registerer they still
// count but are not exported anywhere.
func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "basalt",
			Subsystem: "bufferpool",
			Name:      "hits_total",
			Help:      "Page fetches served from a resident frame.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "basalt",
			Subsystem: "bufferpool",
			Name:      "misses_total",
			Help:      "Page fetches that had to read from disk.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "basalt",
			Subsystem: "bufferpool",
			Name:      "evictions_total",
			Help:      "Frames reclaimed through the replacer.",
		}),
		writebacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "basalt",
			Subsystem: "bufferpool",
			Name:      "writebacks_total",
			Help:      "Dirty pages written back to disk.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "basalt",
			Subsystem: "bufferpool",
			Name:      "flushes_total",
			Help:      "Resident pages passed through explicit FlushPage/FlushAllPages calls.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.hits, m.misses, m.evictions, m.writebacks, m.flushes)
	}

	return m
}
