package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMessageTimeout bounds how long producers wait for a result by
// default.
const DefaultMessageTimeout = 5 * time.Minute

// message pairs inbound content with the future its producer is awaiting.
type message struct {
	id         string
	content    string
	future     *Future
	enqueuedAt time.Time
}

// Queue is an unbounded FIFO safe for concurrent producers and a single
// consumer. Enqueue never blocks; the consumer blocks on dequeue until work
// arrives or the queue closes.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []*message
	closed      bool
	held        bool
	waitTimeout time.Duration
	debugLog    func(format string, args ...interface{})
}

// New creates a queue. waitTimeout bounds Future.Wait for messages enqueued
// here; non-positive values fall back to DefaultMessageTimeout.
func New(waitTimeout time.Duration) *Queue {
	if waitTimeout <= 0 {
		waitTimeout = DefaultMessageTimeout
	}
	q := &Queue{waitTimeout: waitTimeout}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetDebugLog sets a logging function for queue tracing.
func (q *Queue) SetDebugLog(fn func(format string, args ...interface{})) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.debugLog = fn
}

func (q *Queue) logf(format string, args ...interface{}) {
	if q.debugLog != nil {
		q.debugLog(format, args...)
	}
}

// Enqueue appends a message and returns the future its result arrives on.
func (q *Queue) Enqueue(content string) (*Future, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	msg := &message{
		id:         uuid.NewString()[:8],
		content:    content,
		future:     newFuture(q.waitTimeout),
		enqueuedAt: time.Now(),
	}
	q.items = append(q.items, msg)
	q.logf("enqueued message %s (depth %d)", msg.id, len(q.items))
	q.cond.Signal()
	return msg.future, nil
}

// Send enqueues and waits for the outcome with the queue's configured
// timeout.
func (q *Queue) Send(content string) (string, error) {
	future, err := q.Enqueue(content)
	if err != nil {
		return "", err
	}
	return future.Wait()
}

// Depth reports how many messages are waiting, excluding the one being
// processed.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Interrupted reports whether a new message is waiting or an external hold
// is in effect. The engine checks this at task boundaries to decide whether
// to pause a running step.
func (q *Queue) Interrupted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.held || len(q.items) > 0
}

// SetHold sets or clears an external pause request, such as a pause signal
// file. A held queue still accepts and processes messages; it only makes
// Interrupted report true so runs yield at the next task boundary.
func (q *Queue) SetHold(held bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held = held
}

// Closed reports whether the queue has been closed.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting messages. Messages already queued are still
// processed; the consumer exits once the queue drains.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// pop removes and returns the oldest message, blocking until one arrives,
// the queue closes empty, or the stop channel fires. The boolean is false
// when there is nothing left to process.
func (q *Queue) pop(stop <-chan struct{}) (*message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stopped := false
	if stop != nil {
		// One goroutine to wake the wait loop if the stop channel fires.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-stop:
				q.mu.Lock()
				stopped = true
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()
	}

	for len(q.items) == 0 && !q.closed && !stopped {
		q.cond.Wait()
	}

	if len(q.items) == 0 || stopped {
		return nil, false
	}

	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// failPending resolves every queued future with err. Called when the
// consumer exits before draining.
func (q *Queue) failPending(err error) {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	for _, msg := range pending {
		msg.future.resolve("", err)
	}
}
