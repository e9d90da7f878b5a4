package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtAnchor(t *testing.T) {
	clock := NewClock()
	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, anchor, clock.Current())
	assert.Equal(t, anchor, clock.Now())
}

func TestClock_NowAdvancesByStep(t *testing.T) {
	clock := NewClock()

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	assert.Equal(t, time.Second, second.Sub(first))
	assert.Equal(t, time.Second, third.Sub(second))
}

func TestClock_AdvanceDoesNotConsumeStep(t *testing.T) {
	clock := NewClock()
	before := clock.Current()

	clock.Advance(90 * time.Minute)
	assert.Equal(t, before.Add(90*time.Minute), clock.Current())
}

func TestClock_Reset(t *testing.T) {
	clock := NewClock()
	anchor := clock.Current()

	clock.Now()
	clock.Now()
	clock.Advance(time.Hour)
	require.NotEqual(t, anchor, clock.Current())

	clock.Reset()
	assert.Equal(t, anchor, clock.Current())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock()
	const numGoroutines = 50
	const callsPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}

	wg.Wait()

	seen := make(map[time.Time]bool)
	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < callsPerGoroutine; j++ {
			ts := results[i][j]
			require.False(t, seen[ts], "duplicate timestamp %v", ts)
			seen[ts] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestSequentialIDGenerator(t *testing.T) {
	gen := NewSequentialIDGenerator("cs")
	assert.Equal(t, "cs-0001", gen.NextID())
	assert.Equal(t, "cs-0002", gen.NextID())

	def := NewSequentialIDGenerator("")
	assert.Equal(t, "test-0001", def.NextID())
}
