// ============================================================================
// Blockpress Pool Lifecycle Test Suite
// ============================================================================
//
// Package: test/integration
// File: lifecycle_test.go
// Functionality: Pool resize and backend-switch tests under concurrent
// batch load.
//
// Test Objectives:
//   1. verify resizes land between batches, never inside one
//   2. verify shared/dedicated switches drain the retired backend
//   3. verify no batch is lost or corrupted across transitions
//
// Test Environment:
//   - dedicated pool resized 2 -> 4 -> 1 while batches run
//   - shared pool with one worker per CPU
//   - 8 producer goroutines, forced-parallel batches
//
// ============================================================================

package integration

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockpress/blockpress/internal/async"
	"github.com/blockpress/blockpress/internal/pool"
)

// TestResizeUnderLoad resizes the dedicated pool while producers push
// batches through it and verifies every batch round-trips intact.
func TestResizeUnderLoad(t *testing.T) {
	d, settings, m := buildStack(t, pool.Options{Size: 2})
	settings.SetForceParallel(true)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				blocks := syntheticBatch(20, 4096)
				compressed, err := d.CompressBatch(blocks, false)
				if !assert.NoError(t, err) {
					return
				}
				restored, err := d.DecompressBatch(compressed)
				if !assert.NoError(t, err) {
					return
				}
				for i := range blocks {
					assert.True(t, bytes.Equal(blocks[i], restored[i]))
				}
			}
		}(g)
	}

	require.NoError(t, m.Resize(4))
	require.NoError(t, m.Resize(1))
	require.NoError(t, m.Resize(4))

	wg.Wait()
}

// TestBackendSwitchUnderLoad flips between dedicated and shared backends
// while batches run.
func TestBackendSwitchUnderLoad(t *testing.T) {
	d, settings, m := buildStack(t, pool.Options{
		Size:   2,
		Shared: async.Default(),
	})
	settings.SetForceParallel(true)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				requireRoundTrip(t, d, syntheticBatch(20, 4096), false)
			}
		}()
	}

	require.NoError(t, m.SetUseSharedPool(true))
	require.NoError(t, m.SetUseSharedPool(false))
	require.NoError(t, m.SetUseSharedPool(true))

	wg.Wait()
}

// TestSwitchBackDrainsResidualPool walks dedicated -> shared -> dedicated
// and confirms work still flows after each hop.
func TestSwitchBackDrainsResidualPool(t *testing.T) {
	d, settings, m := buildStack(t, pool.Options{
		Size:   2,
		Shared: async.Default(),
	})
	settings.SetForceParallel(true)

	requireRoundTrip(t, d, syntheticBatch(10, 4096), false)

	require.NoError(t, m.SetUseSharedPool(true))
	requireRoundTrip(t, d, syntheticBatch(10, 4096), false)

	require.NoError(t, m.SetUseSharedPool(false))
	requireRoundTrip(t, d, syntheticBatch(10, 4096), false)
}

// TestDispatcherSurvivesHeuristicChanges toggles every runtime knob while
// batches run; all calls must keep succeeding whatever mode they land in.
func TestDispatcherSurvivesHeuristicChanges(t *testing.T) {
	d, settings, _ := buildStack(t, pool.Options{Size: 2})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for round := 0; round < 10; round++ {
			requireRoundTrip(t, d, syntheticBatch(20, 4096), round%2 == 0)
		}
	}()

	settings.SetForceParallel(true)
	settings.SetParallelEnabled(false)
	require.NoError(t, settings.SetMinItemsForParallel(1))
	settings.SetForceParallel(false)
	settings.SetParallelEnabled(true)
	require.NoError(t, settings.SetMinBytesForParallel(0))

	wg.Wait()

	snap := settings.Snapshot()
	assert.True(t, snap.ParallelEnabled)
	assert.Equal(t, 1, snap.MinItemsForParallel)
}
