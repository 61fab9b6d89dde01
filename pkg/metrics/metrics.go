package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InstructionsProcessed counts executed instructions by kind and result code name
var InstructionsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "obmonitor_instructions_total",
		Help: "Total number of instructions executed",
	},
	[]string{"kind", "result"},
)

// RecordsAppended counts records written, by event type and direction
var RecordsAppended = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "obmonitor_records_appended_total",
		Help: "Total number of records appended to monitor accounts",
	},
	[]string{"event_type", "direction"},
)

var InstructionLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "obmonitor_instruction_latency_seconds",
		Help:    "Latency in seconds to execute one instruction",
		Buckets: prometheus.DefBuckets,
	},
)

var (
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "obmonitor_batch_instructions",
			Help:    "Instructions per committed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	BatchHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "obmonitor_batch_height",
			Help: "Height of the last committed batch",
		},
	)

	MempoolPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "obmonitor_mempool_pending",
			Help: "Envelopes waiting in the mempool",
		},
	)
)

// Storage observations
var (
	StorageCommitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "obmonitor_storage_commit_latency_seconds",
			Help:    "Pebble batch commit latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	StorageCommitBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "obmonitor_storage_commit_bytes_total",
			Help: "Bytes written through Pebble batches",
		},
	)

	StorageReadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "obmonitor_storage_read_bytes_total",
			Help: "Bytes read from Pebble",
		},
	)
)

func init() {
	prometheus.MustRegister(InstructionsProcessed, RecordsAppended, InstructionLatency)
	prometheus.MustRegister(BatchSize, BatchHeight, MempoolPending)
	prometheus.MustRegister(StorageCommitLatency, StorageCommitBytes, StorageReadBytes)
}

// StorageHook feeds storage observations into the collectors above.
type StorageHook struct{}

func (StorageHook) ObserveRead(_ time.Duration, bytes int) {
	StorageReadBytes.Add(float64(bytes))
}

func (StorageHook) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	StorageCommitLatency.Observe(elapsed.Seconds())
	StorageCommitBytes.Add(float64(bytes))
}
