// ============================================================================
// Blockpress CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line surface for the compression layer.
//
// Command structure:
//   blockpress                     # Root command
//   ├── compress                   # Compress a file into a block container
//   │   ├── --file, -f             # Input file
//   │   ├── --out, -o              # Output container
//   │   └── --hc                   # High-compression LZ4
//   ├── decompress                 # Restore a file from a block container
//   │   ├── --file, -f             # Input container
//   │   └── --out, -o              # Output file
//   ├── bench                      # Compare sequential vs parallel execution
//   │   ├── --blocks               # Batch size
//   │   ├── --block-size           # Bytes per block
//   │   └── --hc                   # High-compression LZ4
//   ├── --config, -c               # Config file (all commands)
//   ├── --version                  # Version information
//   └── --help                     # Usage
//
// Configuration:
//   YAML file (default: configs/default.yaml) with pool, dispatch, metrics
//   and block-size sections; see internal/config.
//
// Metrics:
//   When enabled in the config, bench serves /metrics on the configured
//   port for the duration of the run.
//
// ============================================================================

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockpress/blockpress/internal/async"
	"github.com/blockpress/blockpress/internal/compress"
	"github.com/blockpress/blockpress/internal/config"
	"github.com/blockpress/blockpress/internal/metrics"
	"github.com/blockpress/blockpress/internal/pool"
)

var configFile string

// BuildCLI assembles the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blockpress",
		Short: "Blockpress: adaptive parallel LZ4 block compression",
		Long: `Blockpress compresses and decompresses batches of byte blocks,
deciding per call whether to run sequentially or fan out across a
worker pool:
- fast and high-compression LZ4 transforms
- dedicated or shared execution pool, swappable at runtime
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildCompressCommand())
	rootCmd.AddCommand(buildDecompressCommand())
	rootCmd.AddCommand(buildBenchCommand())

	return rootCmd
}

// engine bundles the wired-up compression stack for one command run.
type engine struct {
	cfg        *config.Config
	settings   *config.Settings
	pools      *pool.Manager
	dispatcher *compress.Dispatcher
}

// newEngine loads the config and wires settings, pool manager and
// dispatcher together. The shared process-wide pool is attached as the
// borrowed backend so the config can select it.
func newEngine(withMetrics bool) (*engine, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if withMetrics && cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	settings := config.NewSettings(cfg)
	pools, err := pool.NewManager(pool.Options{
		Size:      cfg.Pool.Workers,
		UseShared: cfg.Pool.UseShared,
		Shared:    async.Default(),
		Metrics:   collector,
	})
	if err != nil {
		return nil, err
	}

	return &engine{
		cfg:        cfg,
		settings:   settings,
		pools:      pools,
		dispatcher: compress.NewDispatcher(settings, pools, collector),
	}, nil
}

// close drains the dedicated pool. The shared pool outlives the engine.
func (e *engine) close() {
	e.pools.Shutdown()
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "configs/default.yaml" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

func buildCompressCommand() *cobra.Command {
	var inFile, outFile string
	var highCompression bool

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Compress a file into a block container",
		Long:  "Split a file into blocks, compress them (in parallel when worthwhile), and write a CRC-checked container.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompress(inFile, outFile, highCompression)
		},
	}

	cmd.Flags().StringVarP(&inFile, "file", "f", "", "input file")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output container file")
	cmd.Flags().BoolVar(&highCompression, "hc", false, "use high-compression LZ4")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("out")

	return cmd
}

func runCompress(inFile, outFile string, highCompression bool) error {
	eng, err := newEngine(false)
	if err != nil {
		return err
	}
	defer eng.close()

	data, err := os.ReadFile(inFile)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	blocks := chunk(data, eng.cfg.BlockSize)
	start := time.Now()
	compressed, err := eng.dispatcher.CompressBatch(blocks, highCompression)
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	out, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	if err := writeContainer(out, compressed); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}

	var compressedBytes int
	for _, b := range compressed {
		compressedBytes += len(b)
	}
	slog.Info("compressed",
		"blocks", len(blocks),
		"in_bytes", len(data),
		"out_bytes", compressedBytes,
		"elapsed", time.Since(start))
	return nil
}

func buildDecompressCommand() *cobra.Command {
	var inFile, outFile string

	cmd := &cobra.Command{
		Use:   "decompress",
		Short: "Restore a file from a block container",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompress(inFile, outFile)
		},
	}

	cmd.Flags().StringVarP(&inFile, "file", "f", "", "input container file")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("out")

	return cmd
}

func runDecompress(inFile, outFile string) error {
	eng, err := newEngine(false)
	if err != nil {
		return err
	}
	defer eng.close()

	in, err := os.Open(inFile)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	blocks, err := readContainer(in)
	if err != nil {
		return fmt.Errorf("failed to read container: %w", err)
	}

	start := time.Now()
	restored, err := eng.dispatcher.DecompressBatch(blocks)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}

	out, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	var total int
	for _, b := range restored {
		if _, err := out.Write(b); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		total += len(b)
	}

	slog.Info("decompressed",
		"blocks", len(blocks),
		"out_bytes", total,
		"elapsed", time.Since(start))
	return nil
}

func buildBenchCommand() *cobra.Command {
	var blockCount, blockSize, workers int
	var highCompression bool

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare sequential and parallel compression",
		Long:  "Generate a synthetic batch and run it sequentially and through the pool, reporting timings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(blockCount, blockSize, workers, highCompression)
		},
	}

	cmd.Flags().IntVar(&blockCount, "blocks", 64, "number of blocks in the batch")
	cmd.Flags().IntVar(&blockSize, "block-size", 1024*1024, "bytes per block")
	cmd.Flags().IntVar(&workers, "workers", 0, "override dedicated pool size")
	cmd.Flags().BoolVar(&highCompression, "hc", false, "use high-compression LZ4")

	return cmd
}

func runBench(blockCount, blockSize, workers int, highCompression bool) error {
	eng, err := newEngine(true)
	if err != nil {
		return err
	}
	defer eng.close()

	if eng.cfg.Metrics.Enabled {
		go func() {
			addr := eng.cfg.Metrics.Port
			slog.Info("starting metrics server", "port", addr)
			if err := metrics.StartServer(addr); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	if workers > 0 {
		if err := eng.pools.Resize(workers); err != nil {
			return err
		}
	}

	blocks := syntheticBatch(blockCount, blockSize)
	slog.Info("benchmarking",
		"blocks", blockCount, "block_bytes", blockSize,
		"hc", highCompression, "workers", eng.pools.WorkerCount())

	// Sequential pass: parallel execution off entirely. The batch-size
	// disjunct ignores the global switch, so the item threshold is raised
	// past the batch as well.
	eng.settings.SetParallelEnabled(false)
	eng.settings.SetHighCompressionForcesParallel(false)
	if err := eng.settings.SetMinItemsForParallel(blockCount); err != nil {
		return err
	}
	seqStart := time.Now()
	seqOut, err := eng.dispatcher.CompressBatch(blocks, highCompression)
	if err != nil {
		return fmt.Errorf("sequential pass failed: %w", err)
	}
	seqElapsed := time.Since(seqStart)

	// Parallel pass: force the pool path regardless of batch shape.
	eng.settings.SetParallelEnabled(true)
	eng.settings.SetForceParallel(true)
	parStart := time.Now()
	if _, err := eng.dispatcher.CompressBatch(blocks, highCompression); err != nil {
		return fmt.Errorf("parallel pass failed: %w", err)
	}
	parElapsed := time.Since(parStart)
	eng.settings.SetForceParallel(false)

	var inBytes, outBytes int
	for _, b := range blocks {
		inBytes += len(b)
	}
	for _, b := range seqOut {
		outBytes += len(b)
	}

	fmt.Printf("sequential: %v\n", seqElapsed)
	fmt.Printf("parallel:   %v (%d workers)\n", parElapsed, eng.pools.WorkerCount())
	fmt.Printf("ratio:      %.3f (%d -> %d bytes)\n",
		float64(outBytes)/float64(inBytes), inBytes, outBytes)
	if parElapsed > 0 {
		fmt.Printf("speedup:    %.2fx\n", float64(seqElapsed)/float64(parElapsed))
	}
	return nil
}

// syntheticBatch builds a compressible pseudo-random batch.
func syntheticBatch(blockCount, blockSize int) [][]byte {
	blocks := make([][]byte, blockCount)
	for i := range blocks {
		block := make([]byte, blockSize)
		for j := range block {
			// Repeating structure keeps the data compressible.
			block[j] = byte((j + i) % 61)
		}
		blocks[i] = block
	}
	return blocks
}
