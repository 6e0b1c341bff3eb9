package testutil

import (
	"fmt"
	"sync"
)

// SequentialFlowGenerator hands out numbered flow tokens: "flow-0001",
// "flow-0002", ...
//
// Unlike engine.FixedGenerator it never runs out, so a scenario can post
// any number of events and still produce byte-identical golden traces.
//
// Thread-safety: safe for concurrent use.
type SequentialFlowGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialFlowGenerator creates a generator. An empty prefix means
// "flow".
func NewSequentialFlowGenerator(prefix string) *SequentialFlowGenerator {
	if prefix == "" {
		prefix = "flow"
	}
	return &SequentialFlowGenerator{prefix: prefix}
}

// Generate returns the next token.
//
// Implements engine.FlowTokenGenerator interface.
func (g *SequentialFlowGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialFlowGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
