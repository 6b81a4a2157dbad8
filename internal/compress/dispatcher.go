// ============================================================================
// Blockpress Adaptive Dispatcher
// ============================================================================
//
// Package: internal/compress
// File: dispatcher.go
// Purpose: Decides, per batch call, whether to run the transforms
// sequentially on the calling goroutine or fan them out over the execution
// pool, and executes accordingly.
//
// Decision rules:
//
//   CompressBatch:
//     parallel = (parallelEnabled && highCompression && hcForcesParallel)
//             || (len(blocks) > minItems && len(blocks[0]) > minBytes)
//     The two disjuncts are independent, preserving the original heuristic's
//     operator precedence: a large batch takes the pool path even when the
//     global parallel switch is off. The first block's size stands in for
//     the whole batch; heterogeneous batches may be under- or
//     over-parallelized by this approximation.
//
//   DecompressBatch:
//     parallel = parallelEnabled && len(blocks) > minItems
//     No size check: compressed size is not a reliable proxy for work.
//
//   ForceParallel (benchmark mode) overrides both and always takes the pool.
//
// Execution:
//   - Empty input returns empty output with no pool interaction
//   - Output order always matches input order in both modes
//   - The first transform error (by input index) fails the whole batch;
//     partial success is not representable
//   - Each non-empty batch is tracked as an AsyncRequest (MODIFIER for
//     compression, ACCESSOR for decompression) whose timing feeds the
//     metrics histograms
//
// The dispatcher is stateless per call; settings are read once per call from
// the atomic snapshot and never re-read mid-batch.
//
// ============================================================================

package compress

import (
	"log/slog"

	"github.com/blockpress/blockpress/internal/config"
	"github.com/blockpress/blockpress/internal/metrics"
	"github.com/blockpress/blockpress/internal/pool"
	"github.com/blockpress/blockpress/internal/request"
	"github.com/blockpress/blockpress/pkg/types"
)

// Dispatcher routes batches of block transforms to the right execution mode.
type Dispatcher struct {
	settings *config.Settings
	pools    *pool.Manager
	metrics  *metrics.Collector // optional
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher. The collector may be nil.
func NewDispatcher(settings *config.Settings, pools *pool.Manager, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		settings: settings,
		pools:    pools,
		metrics:  collector,
		log:      slog.With("component", "dispatcher"),
	}
}

// CompressBatch compresses a batch of blocks, choosing HC or fast LZ4 by the
// flag and sequential or parallel execution by the decision rules above.
func (d *Dispatcher) CompressBatch(blocks [][]byte, highCompression bool) ([][]byte, error) {
	if len(blocks) == 0 {
		return [][]byte{}, nil
	}

	fn := pool.Transform(Compress)
	if highCompression {
		fn = CompressHC
	}

	s := d.settings.Snapshot()
	forced := s.ParallelEnabled && highCompression && s.HighCompressionForcesParallel
	large := len(blocks) > s.MinItemsForParallel && len(blocks[0]) > s.MinBytesForParallel
	parallel := s.ForceParallel || forced || large

	return d.execute(types.KindModifier, parallel, fn, blocks)
}

// DecompressBatch decompresses a batch of blocks.
func (d *Dispatcher) DecompressBatch(blocks [][]byte) ([][]byte, error) {
	if len(blocks) == 0 {
		return [][]byte{}, nil
	}

	s := d.settings.Snapshot()
	parallel := s.ForceParallel ||
		(s.ParallelEnabled && len(blocks) > s.MinItemsForParallel)

	return d.execute(types.KindAccessor, parallel, pool.Transform(Decompress), blocks)
}

// execute runs one batch in the chosen mode, tracked as an AsyncRequest.
func (d *Dispatcher) execute(kind types.RequestKind, parallel bool, fn pool.Transform, blocks [][]byte) ([][]byte, error) {
	req := request.New(kind, "", func() (interface{}, error) {
		if parallel {
			return d.pools.Execute(fn, blocks)
		}
		return mapSequential(fn, blocks)
	})
	req.Schedule()

	if d.metrics != nil {
		var bytes int
		for _, block := range blocks {
			bytes += len(block)
		}
		d.metrics.RecordBatch(parallel, len(blocks), bytes)
	}

	// The dispatcher is the request's only execution path; these transitions
	// cannot fail in order.
	_ = req.Start()
	res, err := req.Invoke()
	if err != nil {
		_ = req.Fail(err)
		if d.metrics != nil {
			d.metrics.RecordFailure()
		}
		d.log.Debug("batch failed",
			"kind", req.Kind(), "blocks", len(blocks), "parallel", parallel, "error", err)
		return nil, err
	}
	_ = req.Complete(res)

	if d.metrics != nil {
		d.metrics.RecordBatchCompleted(
			req.ExecutionDuration().Seconds(), req.ScheduleDelay().Seconds())
	}
	return res.([][]byte), nil
}

// mapSequential applies fn to each block in input order on the calling
// goroutine.
func mapSequential(fn pool.Transform, blocks [][]byte) ([][]byte, error) {
	out := make([][]byte, len(blocks))
	for i, block := range blocks {
		res, err := fn(block)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}
