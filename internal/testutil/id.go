package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator hands out ids of the form "<prefix>-0001",
// "<prefix>-0002", ... so changeset ids in test output are stable across
// runs and readable in golden files.
//
// Thread-safety: NextID is safe for concurrent use.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequentialIDGenerator creates a generator. An empty prefix defaults to
// "test".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "test"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// NextID returns the next id in the sequence.
func (g *SequentialIDGenerator) NextID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}
