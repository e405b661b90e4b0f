// Package metrics exposes Prometheus collectors for the write path.
//
// Every collector is labelled by table; per-sender collectors add a worker
// label holding the sender index.
//
// # Basic Usage
//
//	m := metrics.ForTable("trades")
//	m.RowsAccepted.Add(float64(n))
//	timer := metrics.NewTimer()
//	sendBatch()
//	m.Worker(0).SendLatency.Observe(timer.Stop().Seconds())
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsAccepted counts rows accepted by Insert
	RowsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewriter_rows_accepted_total",
			Help: "Rows accepted by the writer",
		},
		[]string{"table"},
	)

	// RowsSent counts rows acknowledged by the store
	RowsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewriter_rows_sent_total",
			Help: "Rows sent successfully",
		},
		[]string{"table", "worker"},
	)

	// RowsFailed counts rows moved to a failed queue
	RowsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewriter_rows_failed_total",
			Help: "Rows that failed conversion or sending",
		},
		[]string{"table", "worker"},
	)

	// BatchesSent counts bulk insert calls by outcome
	BatchesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewriter_batches_total",
			Help: "Bulk insert calls",
		},
		[]string{"table", "worker", "status"},
	)

	// SendLatency tracks the duration of bulk insert calls
	SendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablewriter_send_latency_seconds",
			Help:    "Bulk insert call latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"table", "worker"},
	)

	// BatchRows tracks how many rows each bulk insert carried
	BatchRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablewriter_batch_rows",
			Help:    "Rows per bulk insert call",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		},
		[]string{"table", "worker"},
	)

	// QueueDepth is the number of rows waiting in a stage queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablewriter_queue_depth",
			Help: "Rows queued per stage",
		},
		[]string{"table", "stage"},
	)
)

// Table holds the collectors of one writer.
type Table struct {
	name         string
	RowsAccepted prometheus.Counter
}

// ForTable returns the collectors labelled with table.
func ForTable(table string) *Table {
	return &Table{
		name:         table,
		RowsAccepted: RowsAccepted.WithLabelValues(table),
	}
}

// Worker holds the collectors of one sender.
type Worker struct {
	RowsSent     prometheus.Counter
	RowsFailed   prometheus.Counter
	BatchesOK    prometheus.Counter
	BatchesError prometheus.Counter
	SendLatency  prometheus.Observer
	BatchRows    prometheus.Observer
	QueueDepth   prometheus.Gauge
}

// Worker returns the collectors of sender i.
func (t *Table) Worker(i int) *Worker {
	w := strconv.Itoa(i)
	return &Worker{
		RowsSent:     RowsSent.WithLabelValues(t.name, w),
		RowsFailed:   RowsFailed.WithLabelValues(t.name, w),
		BatchesOK:    BatchesSent.WithLabelValues(t.name, w, "success"),
		BatchesError: BatchesSent.WithLabelValues(t.name, w, "error"),
		SendLatency:  SendLatency.WithLabelValues(t.name, w),
		BatchRows:    BatchRows.WithLabelValues(t.name, w),
		QueueDepth:   QueueDepth.WithLabelValues(t.name, "worker_"+w),
	}
}

// Stage returns the queue depth gauge and failed-row counter of a
// non-sender stage such as "conversion" or "router".
func (t *Table) Stage(name string) (prometheus.Gauge, prometheus.Counter) {
	return QueueDepth.WithLabelValues(t.name, name), RowsFailed.WithLabelValues(t.name, name)
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
