package page

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts buffer pool and disk activity. A nil *Metrics records nothing.
type Metrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	reads       prometheus.Counter
	writes      prometheus.Counter
	evictions   prometheus.Counter
	allocations prometheus.Counter
	disposals   prometheus.Counter
	pinned      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pancake",
			Subsystem: "paged_file",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		hits:        counter("buffer_hits_total", "Page requests served from the buffer."),
		misses:      counter("buffer_misses_total", "Page requests read from disk."),
		reads:       counter("page_reads_total", "Pages read from disk."),
		writes:      counter("page_writes_total", "Pages written to disk."),
		evictions:   counter("buffer_evictions_total", "Unpinned pages evicted from the buffer."),
		allocations: counter("page_allocations_total", "Pages allocated."),
		disposals:   counter("page_disposals_total", "Pages disposed."),
		pinned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pancake",
			Subsystem: "paged_file",
			Name:      "pinned_pages",
			Help:      "Buffered pages currently pinned.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.hits, m.misses, m.reads, m.writes, m.evictions, m.allocations, m.disposals, m.pinned,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register paged file metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) read() {
	if m != nil {
		m.reads.Inc()
	}
}

func (m *Metrics) write() {
	if m != nil {
		m.writes.Inc()
	}
}

func (m *Metrics) evict() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) allocate() {
	if m != nil {
		m.allocations.Inc()
	}
}

func (m *Metrics) dispose() {
	if m != nil {
		m.disposals.Inc()
	}
}

func (m *Metrics) addPinned(delta int) {
	if m != nil {
		m.pinned.Add(float64(delta))
	}
}
