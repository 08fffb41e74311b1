package tools

import (
	"sync"
	"time"

	"github.com/troupelabs/troupe/pkg/models"
)

// Record is one audited tool invocation, including rejected ones.
type Record struct {
	// Time is when the gateway finished handling the call.
	Time time.Time
	// Call is the invocation as received.
	Call models.ToolCall
	// Result is the outcome returned to the caller.
	Result models.ToolResult
}

// ToolStats aggregates outcomes for one tool name.
type ToolStats struct {
	// Calls counts audited invocations.
	Calls int
	// Failures counts invocations whose result was not OK.
	Failures int
	// TotalDuration sums execution time across calls.
	TotalDuration time.Duration
}

// Audit is a fixed-capacity ring of recent tool invocations. Once full, each
// append evicts the oldest record, so memory stays bounded regardless of
// session length.
type Audit struct {
	mu    sync.Mutex
	buf   []Record
	next  int
	full  bool
	total uint64
}

// NewAudit creates an audit ring. A capacity below 1 is clamped to 1.
func NewAudit(capacity int) *Audit {
	if capacity < 1 {
		capacity = 1
	}
	return &Audit{buf: make([]Record, capacity)}
}

// Append records an invocation, evicting the oldest record when full.
func (a *Audit) Append(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf[a.next] = rec
	a.next = (a.next + 1) % len(a.buf)
	if a.next == 0 {
		a.full = true
	}
	a.total++
}

// Recent returns up to n records, oldest first. n <= 0 returns everything
// retained.
func (a *Audit) Recent(n int) []Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.next
	if a.full {
		size = len(a.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Record, 0, n)
	start := a.next - n
	if start < 0 {
		start += len(a.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, a.buf[(start+i)%len(a.buf)])
	}
	return out
}

// Len reports how many records are currently retained.
func (a *Audit) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.full {
		return len(a.buf)
	}
	return a.next
}

// Total reports how many records have ever been appended, including evicted
// ones.
func (a *Audit) Total() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Stats aggregates the retained records by tool name.
func (a *Audit) Stats() map[string]ToolStats {
	stats := make(map[string]ToolStats)
	for _, rec := range a.Recent(0) {
		s := stats[rec.Call.Tool]
		s.Calls++
		if !rec.Result.OK {
			s.Failures++
		}
		s.TotalDuration += rec.Result.Duration
		stats[rec.Call.Tool] = s
	}
	return stats
}
