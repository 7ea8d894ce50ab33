// Package metrics exposes Prometheus metrics for mnistsql ingestion runs.
//
// # Overview
//
// The metrics package provides:
//   - Pre-defined counters for grouping, writing and reading digit records
//   - Histograms for bulk insert latency and stored payload size
//   - A Timer and a ThroughputTracker for progress reporting
//
// Every metric is registered with the default registry through promauto, so
// serving promhttp.Handler() is enough to expose them.
//
// # Basic Usage
//
//	metrics.RecordsGrouped.WithLabelValues("3").Inc()
//
//	timer := metrics.NewTimer("insert")
//	err := exec(batch)
//	metrics.ObserveBatch("MNISTImages", len(batch), timer.Stop(), err)
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discard reasons used with RecordsDiscarded.
const (
	ReasonOutOfDomain = "out_of_domain"
	ReasonOverLimit   = "over_limit"
)

var (
	// RecordsGrouped counts records placed into a label bucket.
	// Labels: label
	RecordsGrouped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnistsql_records_grouped_total",
			Help: "Records placed into a label bucket",
		},
		[]string{"label"},
	)

	// RecordsDiscarded counts records skipped by the grouper.
	// Labels: reason (out_of_domain/over_limit)
	RecordsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnistsql_records_discarded_total",
			Help: "Records skipped while grouping",
		},
		[]string{"reason"},
	)

	// RecordsWritten counts rows confirmed by completed insert statements.
	// Labels: table, label
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnistsql_records_written_total",
			Help: "Rows written by completed bulk inserts",
		},
		[]string{"table", "label"},
	)

	// BatchesFlushed counts bulk insert statements.
	// Labels: table, status (success/failure)
	BatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnistsql_batches_flushed_total",
			Help: "Bulk insert statements executed",
		},
		[]string{"table", "status"},
	)

	// BatchLatency tracks the duration of one bulk insert in seconds.
	// Labels: table
	BatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mnistsql_batch_latency_seconds",
			Help: "Bulk insert latency in seconds",
			Buckets: []float64{
				0.001, // 1ms - embedded stores
				0.01,  // 10ms
				0.05,  // 50ms - local network
				0.1,   // 100ms
				0.5,   // 500ms - remote servers
				1,     // 1s
				5,     // 5s - large batches
			},
		},
		[]string{"table"},
	)

	// PayloadBytes tracks the size of encoded image payloads.
	// Labels: gzipped (true/false)
	PayloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnistsql_payload_bytes",
			Help:    "Encoded image payload size in bytes",
			Buckets: []float64{64, 128, 256, 512, 784, 1024, 4096},
		},
		[]string{"gzipped"},
	)

	// RowsRead counts reader lookups.
	// Labels: outcome (found/not_found/error)
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnistsql_rows_read_total",
			Help: "Reader lookups by outcome",
		},
		[]string{"outcome"},
	)

	// Throughput tracks records per second of the current stage.
	// Labels: stage (group/write)
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mnistsql_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"stage"},
	)

	// ResidentMemory tracks the process resident set size.
	ResidentMemory = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mnistsql_resident_memory_bytes",
			Help: "Resident set size of the process in bytes",
		},
	)
)

// LabelValue formats a digit label for use as a metric label value.
func LabelValue(label int) string {
	return strconv.Itoa(label)
}

// ObserveBatch records one bulk insert of n rows.
func ObserveBatch(table string, label, n int, d time.Duration, err error) {
	BatchLatency.WithLabelValues(table).Observe(d.Seconds())
	if err != nil {
		BatchesFlushed.WithLabelValues(table, "failure").Inc()
		return
	}
	BatchesFlushed.WithLabelValues(table, "success").Inc()
	RecordsWritten.WithLabelValues(table, LabelValue(label)).Add(float64(n))
}

// ObservePayload records the size of one encoded payload.
func ObservePayload(size int, gzipped bool) {
	PayloadBytes.WithLabelValues(strconv.FormatBool(gzipped)).Observe(float64(size))
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Records processed since last reset
	lastReset time.Time // Time of last reset
	stage     string
}

// NewThroughputTracker creates a tracker reporting under the given stage.
func NewThroughputTracker(stage string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		stage:     stage,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates records/second since the last reset, updates the
// Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.stage).Set(throughput)

	return throughput
}
