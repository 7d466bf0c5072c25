package locking

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AcquireRelease(t *testing.T) {
	m := NewManager(zerolog.Nop())

	require.NoError(t, m.Acquire("update_tick"))
	assert.True(t, m.IsHeld("update_tick"))

	// Second acquire fails while held
	assert.Error(t, m.Acquire("update_tick"))

	// Different name is independent
	require.NoError(t, m.Acquire("auto_update"))

	m.Release("update_tick")
	assert.False(t, m.IsHeld("update_tick"))
	require.NoError(t, m.Acquire("update_tick"))
}

func TestManager_ReleaseUnheldIsNoop(t *testing.T) {
	m := NewManager(zerolog.Nop())

	m.Release("never_acquired")
	assert.False(t, m.IsHeld("never_acquired"))
	require.NoError(t, m.Acquire("never_acquired"))
}

func TestManager_ConcurrentAcquire(t *testing.T) {
	m := NewManager(zerolog.Nop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("contended") == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one goroutine should win the lock")
}
