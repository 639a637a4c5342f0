// Package testutil holds deterministic helpers for scenario runs and tests.
package testutil

import (
	"strconv"
	"sync"
)

// SequentialGenerator produces "<prefix>-1", "<prefix>-2", ... for lease
// and transaction IDs, so statement traces are byte-identical across runs.
//
// It can be reset for reuse.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequentialGenerator creates a generator. An empty prefix means "id".
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next ID. Implements store.IDGenerator.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.FormatInt(g.n, 10)
}

// Reset restarts the sequence; the next Generate returns "<prefix>-1".
func (g *SequentialGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
