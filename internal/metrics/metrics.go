// ============================================================================
// Blockpress Metrics - Prometheus Instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collects and exposes compression-layer metrics for Prometheus.
//
// Metric families:
//
//   1. Batch counters (Counter) - cumulative:
//      - compress_batches_sequential_total: batches run on the calling goroutine
//      - compress_batches_parallel_total: batches fanned out over the pool
//      - compress_blocks_total: blocks transformed across all batches
//      - compress_bytes_total: input bytes across all batches
//      - compress_transform_failures_total: batches failed by a transform error
//
//   2. Latency (Histogram):
//      - compress_batch_duration_seconds: wall time of one batch call
//      - compress_schedule_delay_seconds: time between batch creation and
//        the start of execution (transition-lock wait shows up here)
//
//   3. Pool state (Gauge / Counter):
//      - compress_pool_workers: dedicated pool size (0 in shared mode)
//      - compress_pool_shared_mode: 1 when the shared backend is active
//      - compress_pool_transitions_total: backend swaps and resizes
//
// Example queries:
//
//   # parallel share of batches
//   rate(compress_batches_parallel_total[5m]) /
//     (rate(compress_batches_parallel_total[5m]) + rate(compress_batches_sequential_total[5m]))
//
//   # 95th percentile batch duration
//   histogram_quantile(0.95, compress_batch_duration_seconds_bucket)
//
// HTTP endpoint:
//   Exposed on /metrics via StartServer, scraped by Prometheus.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the compression-layer Prometheus metrics.
type Collector struct {
	// batch counters
	batchesSequential prometheus.Counter
	batchesParallel   prometheus.Counter
	blocksTotal       prometheus.Counter
	bytesTotal        prometheus.Counter
	transformFailures prometheus.Counter

	// latency
	batchDuration prometheus.Histogram
	scheduleDelay prometheus.Histogram

	// pool state
	poolWorkers     prometheus.Gauge
	poolSharedMode  prometheus.Gauge
	poolTransitions prometheus.Counter
}

// NewCollector creates and registers the metric set.
func NewCollector() *Collector {
	c := &Collector{
		batchesSequential: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compress_batches_sequential_total",
			Help: "Total number of batches executed sequentially on the caller",
		}),
		batchesParallel: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compress_batches_parallel_total",
			Help: "Total number of batches executed via the worker pool",
		}),
		blocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compress_blocks_total",
			Help: "Total number of blocks transformed",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compress_bytes_total",
			Help: "Total number of input bytes across all batches",
		}),
		transformFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compress_transform_failures_total",
			Help: "Total number of batch calls failed by a transform error",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "compress_batch_duration_seconds",
			Help:    "Wall-clock duration of one batch call in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		scheduleDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "compress_schedule_delay_seconds",
			Help:    "Delay between batch creation and start of execution in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		poolWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "compress_pool_workers",
			Help: "Dedicated pool worker count (0 when the shared pool is active)",
		}),
		poolSharedMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "compress_pool_shared_mode",
			Help: "1 when the shared execution pool is active, 0 otherwise",
		}),
		poolTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compress_pool_transitions_total",
			Help: "Total number of pool backend swaps and resizes",
		}),
	}

	prometheus.MustRegister(c.batchesSequential)
	prometheus.MustRegister(c.batchesParallel)
	prometheus.MustRegister(c.blocksTotal)
	prometheus.MustRegister(c.bytesTotal)
	prometheus.MustRegister(c.transformFailures)
	prometheus.MustRegister(c.batchDuration)
	prometheus.MustRegister(c.scheduleDelay)
	prometheus.MustRegister(c.poolWorkers)
	prometheus.MustRegister(c.poolSharedMode)
	prometheus.MustRegister(c.poolTransitions)

	return c
}

// RecordBatch records one batch call with its block and input byte counts.
func (c *Collector) RecordBatch(parallel bool, blocks, bytes int) {
	if parallel {
		c.batchesParallel.Inc()
	} else {
		c.batchesSequential.Inc()
	}
	c.blocksTotal.Add(float64(blocks))
	c.bytesTotal.Add(float64(bytes))
}

// RecordBatchCompleted records the timing telemetry of a finished batch.
func (c *Collector) RecordBatchCompleted(durationSeconds, scheduleDelaySeconds float64) {
	c.batchDuration.Observe(durationSeconds)
	c.scheduleDelay.Observe(scheduleDelaySeconds)
}

// RecordFailure records a batch call failed by a transform error.
func (c *Collector) RecordFailure() {
	c.transformFailures.Inc()
}

// SetPoolState updates the pool gauges.
func (c *Collector) SetPoolState(workers int, shared bool) {
	c.poolWorkers.Set(float64(workers))
	if shared {
		c.poolSharedMode.Set(1)
	} else {
		c.poolSharedMode.Set(0)
	}
}

// RecordPoolTransition records a backend swap or resize.
func (c *Collector) RecordPoolTransition() {
	c.poolTransitions.Inc()
}

// StartServer starts the Prometheus metrics HTTP server.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
