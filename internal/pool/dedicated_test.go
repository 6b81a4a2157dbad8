package pool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStartedPool creates and starts a dedicated pool, stopping it when the
// test ends.
func newStartedPool(t *testing.T, size int) *Dedicated {
	t.Helper()
	p := NewDedicated(size)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

// indexedBlocks builds n blocks whose first byte is their index.
func indexedBlocks(n int) [][]byte {
	blocks := make([][]byte, n)
	for i := range blocks {
		blocks[i] = []byte{byte(i), 0xAA, 0xBB}
	}
	return blocks
}

func TestDedicatedStartTwice(t *testing.T) {
	p := newStartedPool(t, 2)
	assert.Error(t, p.Start(), "second Start should fail")
}

func TestDedicatedMapEmpty(t *testing.T) {
	p := newStartedPool(t, 2)

	out, err := p.Map(func(b []byte) ([]byte, error) { return b, nil }, [][]byte{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDedicatedMapPreservesOrder(t *testing.T) {
	p := newStartedPool(t, 4)
	blocks := indexedBlocks(100)

	out, err := p.Map(func(b []byte) ([]byte, error) {
		// Echo the index byte so completion order cannot hide a mixup.
		return []byte{b[0]}, nil
	}, blocks)

	require.NoError(t, err)
	require.Len(t, out, 100)
	for i, b := range out {
		assert.Equal(t, byte(i), b[0], "result %d out of order", i)
	}
}

func TestDedicatedMapFirstErrorByIndex(t *testing.T) {
	p := newStartedPool(t, 4)
	blocks := indexedBlocks(32)

	out, err := p.Map(func(b []byte) ([]byte, error) {
		// Fail several indices; the lowest one must win.
		if b[0] == 7 || b[0] == 3 || b[0] == 21 {
			return nil, fmt.Errorf("transform failed on block %d", b[0])
		}
		return b, nil
	}, blocks)

	require.Error(t, err)
	assert.EqualError(t, err, "transform failed on block 3")
	assert.Nil(t, out, "results must be discarded on error")
}

func TestDedicatedMapBeforeStart(t *testing.T) {
	p := NewDedicated(2)

	_, err := p.Map(func(b []byte) ([]byte, error) { return b, nil }, indexedBlocks(1))
	assert.True(t, errors.Is(err, ErrPoolNotStarted))
}

func TestDedicatedMapAfterStop(t *testing.T) {
	p := NewDedicated(2)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	_, err := p.Map(func(b []byte) ([]byte, error) { return b, nil }, indexedBlocks(1))
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

func TestDedicatedStopIdempotent(t *testing.T) {
	p := NewDedicated(2)
	require.NoError(t, p.Start())

	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop(), "second Stop should be a no-op")
	assert.True(t, p.IsStopped())
	assert.Equal(t, 2, p.stopCalls)
}

func TestDedicatedConcurrentMaps(t *testing.T) {
	p := newStartedPool(t, 4)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blocks := indexedBlocks(50)
			out, err := p.Map(func(b []byte) ([]byte, error) {
				return []byte{b[0]}, nil
			}, blocks)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			for i, b := range out {
				if b[0] != byte(i) {
					t.Errorf("result %d out of order", i)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDedicatedWorkerCount(t *testing.T) {
	p := NewDedicated(7)
	assert.Equal(t, 7, p.WorkerCount())
}

func TestDedicatedMapRacingStop(t *testing.T) {
	// Map racing Stop must end in either a clean result or ErrPoolClosed,
	// never a send on the closed task channel.
	for iter := 0; iter < 300; iter++ {
		p := NewDedicated(1)
		require.NoError(t, p.Start())

		done := make(chan error, 1)
		go func() {
			_, err := p.Map(func(b []byte) ([]byte, error) {
				time.Sleep(time.Microsecond)
				return b, nil
			}, indexedBlocks(64))
			done <- err
		}()

		runtime.Gosched()
		require.NoError(t, p.Stop())

		if err := <-done; err != nil {
			assert.True(t, errors.Is(err, ErrPoolClosed), "unexpected error: %v", err)
		}
	}
}

func TestDedicatedStopDrainTimeout(t *testing.T) {
	p := NewDedicated(1)
	p.drainTimeout = 20 * time.Millisecond
	require.NoError(t, p.Start())

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := p.Map(func(b []byte) ([]byte, error) {
			<-release
			return b, nil
		}, indexedBlocks(8))
		done <- err
	}()

	// Let the worker pick up a block before stopping.
	time.Sleep(10 * time.Millisecond)
	err := p.Stop()
	assert.True(t, errors.Is(err, ErrDrainTimeout), "expected drain timeout, got: %v", err)

	// The parked worker exits once its block finishes.
	close(release)
	assert.True(t, errors.Is(<-done, ErrPoolClosed))
}
