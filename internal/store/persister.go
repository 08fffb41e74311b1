package store

import (
	"fmt"
	"sync"

	"github.com/troupelabs/troupe/internal/plan"
)

// Persister turns graph mutations into durable plan writes. Every call
// rewrites the full document from a fresh snapshot, so a failed write is
// recovered by the next successful one: in-memory state stays authoritative
// and nothing is ever silently dropped.
type Persister struct {
	store PlanStore
	graph *plan.Graph

	mu sync.Mutex
	// dirty is true while the stored document may lag the in-memory plan.
	dirty bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewPersister creates a Persister for one session's graph.
func NewPersister(s PlanStore, g *plan.Graph) *Persister {
	return &Persister{
		store:    s,
		graph:    g,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (p *Persister) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		p.mu.Lock()
		p.debugLog = fn
		p.mu.Unlock()
	}
}

// SavePlan snapshots the graph and writes the document. On failure the
// persister is marked dirty and the error is returned for the caller to log;
// the next SavePlan retries with a fresh snapshot.
func (p *Persister) SavePlan() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.graph.Snapshot()
	if err := p.store.StorePlan(snap); err != nil {
		p.dirty = true
		p.debugLog("[persister] plan write failed, will retry on next mutation: %v", err)
		return fmt.Errorf("persist plan: %w", err)
	}
	if p.dirty {
		p.debugLog("[persister] recovered previously failed plan write")
	}
	p.dirty = false
	return nil
}

// Flush writes the document if a previous save failed. A no-op when clean.
func (p *Persister) Flush() error {
	p.mu.Lock()
	dirty := p.dirty
	p.mu.Unlock()

	if !dirty {
		return nil
	}
	return p.SavePlan()
}

// Dirty reports whether the stored document may lag the in-memory plan.
func (p *Persister) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}
