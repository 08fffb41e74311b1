// Package queue serializes inbound messages through an unbounded FIFO with
// a single consumer. The consumer is the only writer of plan state; every
// producer gets a future that resolves with its message's outcome.
package queue

import (
	"errors"
	"sync"
	"time"
)

// ErrMessageTimeout indicates the producer stopped waiting for a result.
// The underlying work is not terminated; its eventual result is discarded.
var ErrMessageTimeout = errors.New("message processing timed out")

// ErrQueueClosed indicates the queue no longer accepts or processes
// messages.
var ErrQueueClosed = errors.New("message queue closed")

// MessageState tracks a message through its lifecycle.
type MessageState string

const (
	// StateQueued means the message is waiting for the consumer.
	StateQueued MessageState = "queued"
	// StateProcessing means the consumer is handling the message.
	StateProcessing MessageState = "processing"
	// StateCompleted means the handler returned a result.
	StateCompleted MessageState = "completed"
	// StateFailed means the handler returned an error.
	StateFailed MessageState = "failed"
	// StateTimedOut means the producer gave up waiting.
	StateTimedOut MessageState = "timed_out"
)

// Valid returns true if the state is a known value.
func (s MessageState) Valid() bool {
	switch s {
	case StateQueued, StateProcessing, StateCompleted, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Terminal returns true once the state can no longer change.
func (s MessageState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Future resolves with the outcome of one enqueued message. Resolution is
// first-wins: once the producer times out or the handler finishes, the
// other side's attempt is a quiet no-op.
type Future struct {
	mu          sync.Mutex
	done        chan struct{}
	result      string
	err         error
	state       MessageState
	waitTimeout time.Duration
}

func newFuture(waitTimeout time.Duration) *Future {
	return &Future{
		done:        make(chan struct{}),
		state:       StateQueued,
		waitTimeout: waitTimeout,
	}
}

// Wait blocks until the future resolves or the queue's configured timeout
// elapses, whichever comes first.
func (f *Future) Wait() (string, error) {
	return f.WaitTimeout(f.waitTimeout)
}

// WaitTimeout is Wait with an explicit bound. A non-positive timeout waits
// forever.
func (f *Future) WaitTimeout(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		<-f.done
		return f.outcome()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.outcome()
	case <-timer.C:
		f.resolveTimeout()
		return f.outcome()
	}
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// State reports the message's current lifecycle state.
func (f *Future) State() MessageState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Future) outcome() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// beginProcessing moves Queued to Processing. It returns false when the
// future already resolved, telling the consumer to skip work nobody will
// observe.
func (f *Future) beginProcessing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateQueued {
		return false
	}
	f.state = StateProcessing
	return true
}

// resolve records the handler outcome unless the future already resolved.
func (f *Future) resolve(result string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Terminal() {
		return
	}
	f.result = result
	f.err = err
	if err != nil {
		f.state = StateFailed
	} else {
		f.state = StateCompleted
	}
	close(f.done)
}

// resolveTimeout marks the future timed out unless it already resolved.
func (f *Future) resolveTimeout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Terminal() {
		return
	}
	f.err = ErrMessageTimeout
	f.state = StateTimedOut
	close(f.done)
}
