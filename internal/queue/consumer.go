package queue

import (
	"context"
	"fmt"
)

// Handler processes one message's content and returns its result.
type Handler func(ctx context.Context, content string) (string, error)

// Consumer drains the queue one message at a time. All plan mutation runs
// inside its handler, which makes the consumer the sole plan writer.
type Consumer struct {
	queue    *Queue
	handler  Handler
	debugLog func(format string, args ...interface{})
}

// NewConsumer creates a consumer for the queue.
func NewConsumer(q *Queue, handler Handler) *Consumer {
	return &Consumer{queue: q, handler: handler}
}

// SetDebugLog sets a logging function for consumer tracing.
func (c *Consumer) SetDebugLog(fn func(format string, args ...interface{})) {
	c.debugLog = fn
}

func (c *Consumer) logf(format string, args ...interface{}) {
	if c.debugLog != nil {
		c.debugLog(format, args...)
	}
}

// Run processes messages until the queue closes and drains, or the context
// ends. On a context end the queue is closed and still-waiting producers
// get ErrQueueClosed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, ok := c.queue.pop(ctx.Done())
		if !ok {
			if err := ctx.Err(); err != nil {
				c.queue.Close()
				c.queue.failPending(ErrQueueClosed)
				return err
			}
			return nil
		}

		if !msg.future.beginProcessing() {
			c.logf("skipping message %s: producer already gave up", msg.id)
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg *message) {
	defer func() {
		if rec := recover(); rec != nil {
			msg.future.resolve("", fmt.Errorf("panic handling message %s: %v", msg.id, rec))
		}
	}()

	result, err := c.handler(ctx, msg.content)
	msg.future.resolve(result, err)
}
