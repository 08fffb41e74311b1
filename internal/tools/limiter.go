package tools

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrLimitExceeded indicates the concurrency cap was reached and the call
// was rejected rather than queued.
var ErrLimitExceeded = errors.New("tool concurrency limit exceeded")

// Limiter caps concurrent tool executions across the process. Acquisition
// over the cap fails immediately; callers never queue behind running tools.
type Limiter struct {
	max     int64
	running atomic.Int64
}

// NewLimiter creates a limiter. A max below 1 is clamped to 1.
func NewLimiter(max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{max: int64(max)}
}

// Acquire claims one execution slot or returns an error wrapping
// ErrLimitExceeded. The increment and the bound check act on the same
// atomic value, so concurrent acquirers cannot both observe a free slot.
func (l *Limiter) Acquire() error {
	if n := l.running.Add(1); n > l.max {
		l.running.Add(-1)
		return fmt.Errorf("%w: %d tools already running", ErrLimitExceeded, l.max)
	}
	return nil
}

// Release frees a slot claimed by a successful Acquire.
func (l *Limiter) Release() {
	if n := l.running.Add(-1); n < 0 {
		l.running.Add(1)
	}
}

// Running reports the number of currently held slots.
func (l *Limiter) Running() int {
	return int(l.running.Load())
}

// Max reports the configured cap.
func (l *Limiter) Max() int {
	return int(l.max)
}
