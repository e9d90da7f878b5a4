package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindlens/mindlens/internal/lens"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(ttl)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t, DefaultTTL)

	require.NoError(t, s.Set("exp-1", "node-a", lens.StateEmphasize))

	state, ok, err := s.Get("exp-1", "node-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, lens.StateEmphasize, state)

	_, ok, err = s.Get("exp-1", "node-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSet_RejectsMalformedState(t *testing.T) {
	s := newTestStore(t, DefaultTTL)

	err := s.Set("exp-1", "node-a", lens.NodeState("boost"))
	assert.True(t, lens.IsInvalidArgument(err))
}

func TestGetAll_UnknownSessionIsEmpty(t *testing.T) {
	s := newTestStore(t, DefaultTTL)

	overrides, err := s.GetAll("never-seen")
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestGetAll_SessionIsolation(t *testing.T) {
	s := newTestStore(t, DefaultTTL)

	require.NoError(t, s.Set("exp-1", "node-a", lens.StateOff))
	require.NoError(t, s.Set("exp-1", "node-b", lens.StateKeep))
	require.NoError(t, s.Set("exp-2", "node-a", lens.StateEmphasize))

	one, err := s.GetAll("exp-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]lens.NodeState{
		"node-a": lens.StateOff,
		"node-b": lens.StateKeep,
	}, one)

	two, err := s.GetAll("exp-2")
	require.NoError(t, err)
	assert.Equal(t, map[string]lens.NodeState{"node-a": lens.StateEmphasize}, two)
}

func TestSet_LastWriteWins(t *testing.T) {
	s := newTestStore(t, DefaultTTL)

	require.NoError(t, s.Set("exp-1", "node-a", lens.StateKeep))
	require.NoError(t, s.Set("exp-1", "node-a", lens.StateOff))

	state, ok, err := s.Get("exp-1", "node-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, lens.StateOff, state)
}

func TestClear(t *testing.T) {
	s := newTestStore(t, DefaultTTL)

	require.NoError(t, s.Set("exp-1", "node-a", lens.StateKeep))
	require.NoError(t, s.Set("exp-1", "node-b", lens.StateOff))
	require.NoError(t, s.Set("exp-2", "node-a", lens.StateKeep))

	require.NoError(t, s.Clear("exp-1"))

	cleared, err := s.GetAll("exp-1")
	require.NoError(t, err)
	assert.Empty(t, cleared)

	// Other sessions untouched.
	kept, err := s.GetAll("exp-2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestTTLExpiry(t *testing.T) {
	s := newTestStore(t, 50*time.Millisecond)

	require.NoError(t, s.Set("exp-1", "node-a", lens.StateKeep))
	time.Sleep(120 * time.Millisecond)

	overrides, err := s.GetAll("exp-1")
	require.NoError(t, err)
	assert.Empty(t, overrides, "entries must expire after the TTL")
}
