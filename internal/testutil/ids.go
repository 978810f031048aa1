package testutil

import (
	"fmt"
	"sync"
)

// ScriptedIDGenerator returns a fixed list of ids in order, then falls back
// to "<prefix>-N" numbering where N continues from the script length.
//
// Useful when a test needs to know exact notice ids up front.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedIDGenerator struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	n      int
}

// NewScriptedIDGenerator creates a generator. An empty prefix defaults to
// "test-id".
func NewScriptedIDGenerator(prefix string, ids ...string) *ScriptedIDGenerator {
	if prefix == "" {
		prefix = "test-id"
	}
	return &ScriptedIDGenerator{ids: ids, prefix: prefix}
}

// Generate returns the next id.
func (g *ScriptedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if g.n <= len(g.ids) {
		return g.ids[g.n-1]
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the script.
func (g *ScriptedIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
