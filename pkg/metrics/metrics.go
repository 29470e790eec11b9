package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "vernemq"
	subsystem = "msgstore"
)

// StoreMetrics implements the storage backend's observation hook with
// Prometheus collectors. Construct with NewStoreMetrics, attach the
// collectors with Register, then pass the instance as the store's
// metrics hook.
type StoreMetrics struct {
	writeDuration  prometheus.Histogram
	writeBytes     prometheus.Counter
	readDuration   prometheus.Histogram
	readBytes      prometheus.Counter
	commitDuration prometheus.Histogram
	commitBytes    prometheus.Counter
	commitOps      prometheus.Counter
}

// NewStoreMetrics creates the collector set. It does not register anything.
func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_duration_seconds",
			Help:      "Latency of single-key backend writes.",
		}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_bytes_total",
			Help:      "Bytes written by single-key backend writes.",
		}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_duration_seconds",
			Help:      "Latency of backend point reads.",
		}),
		readBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_bytes_total",
			Help:      "Bytes returned by backend point reads.",
		}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_commit_duration_seconds",
			Help:      "Latency of backend batch commits.",
		}),
		commitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_commit_bytes_total",
			Help:      "Bytes committed by backend batches.",
		}),
		commitOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_commit_ops_total",
			Help:      "Operations committed by backend batches.",
		}),
	}
}

// Register attaches all collectors to the given registerer.
func (m *StoreMetrics) Register(registerer prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *StoreMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.writeDuration, m.writeBytes,
		m.readDuration, m.readBytes,
		m.commitDuration, m.commitBytes, m.commitOps,
	}
}

func (m *StoreMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writeDuration.Observe(elapsed.Seconds())
	m.writeBytes.Add(float64(bytes))
}

func (m *StoreMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.readDuration.Observe(elapsed.Seconds())
	m.readBytes.Add(float64(bytes))
}

func (m *StoreMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.commitDuration.Observe(elapsed.Seconds())
	m.commitOps.Add(float64(numOps))
	m.commitBytes.Add(float64(bytes))
}
