package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/troupelabs/troupe/internal/queue"
	"github.com/troupelabs/troupe/internal/store"
	"github.com/troupelabs/troupe/pkg/models"
)

// SessionConfig carries the dependencies for a session loop.
type SessionConfig struct {
	// Engine executes the plan. Required.
	Engine *Engine
	// Queue is the inbound message queue. Required, and must be the same
	// queue the engine watches for interruptions.
	Queue *queue.Queue
	// SessionID scopes persisted conversation history.
	SessionID string
	// MaxConcurrent caps concurrent tasks per execution batch.
	MaxConcurrent int
	// Messages persists conversation history when non-nil.
	Messages store.MessageStore
	// DebugLog is an optional logging function.
	DebugLog func(format string, args ...interface{})
}

// Session drives one conversation: user messages and execution continuations
// flow through the queue, and the consumer's handler is the sole writer of
// plan state. While the engine runs tasks, a queued message pauses execution
// at the next batch boundary; the message is folded into the plan and a
// continuation resumes the run.
type Session struct {
	engine        *Engine
	queue         *queue.Queue
	consumer      *queue.Consumer
	sessionID     string
	maxConcurrent int
	messages      store.MessageStore
	debugLog      func(format string, args ...interface{})
}

// NewSession wires a session over the engine and queue.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("session requires an engine")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("session requires a queue")
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.DebugLog == nil {
		cfg.DebugLog = func(format string, args ...interface{}) {}
	}

	s := &Session{
		engine:        cfg.Engine,
		queue:         cfg.Queue,
		sessionID:     cfg.SessionID,
		maxConcurrent: cfg.MaxConcurrent,
		messages:      cfg.Messages,
		debugLog:      cfg.DebugLog,
	}
	s.consumer = queue.NewConsumer(cfg.Queue, s.handleMessage)
	s.consumer.SetDebugLog(cfg.DebugLog)
	return s, nil
}

// Queue returns the session's message queue for producers.
func (s *Session) Queue() *queue.Queue {
	return s.queue
}

// Run drains the queue until it closes or the context ends. It blocks; run
// it on its own goroutine when a UI produces messages concurrently.
func (s *Session) Run(ctx context.Context) error {
	return s.consumer.Run(ctx)
}

// Start enqueues an initial execution pass. Use it after building a plan so
// Run has work the moment it starts.
func (s *Session) Start() error {
	_, err := s.queue.Enqueue("")
	return err
}

// handleMessage is the queue consumer's handler. An empty message is an
// execution continuation; anything else is user input folded into the plan.
func (s *Session) handleMessage(ctx context.Context, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return s.continueRun(ctx)
	}

	s.recordMessage(models.RoleUser, content)

	adj, err := s.engine.AdjustPlan(ctx, content)
	if err != nil {
		return "", err
	}

	reply := adj.Ack
	if !adj.Changed {
		// Input that leaves the plan alone deserves a real answer, not
		// just an acknowledgement.
		answer, rerr := s.engine.RouteAndReply(ctx, content)
		if rerr != nil {
			s.debugLog("[session] direct reply failed: %v", rerr)
		} else {
			reply = answer
		}
	}

	s.scheduleContinuation()
	s.recordMessage(models.RoleAssistant, reply)
	return reply, nil
}

// continueRun executes the plan until it finishes, halts, or pauses for a
// queued message. A paused run needs no continuation here: the interrupting
// message's own handler schedules one.
func (s *Session) continueRun(ctx context.Context) (string, error) {
	res, err := s.engine.Run(ctx, s.maxConcurrent)
	if err != nil {
		return "", err
	}
	if !res.Paused {
		s.recordMessage(models.RoleAssistant, res.Summary)
	}
	return res.Summary, nil
}

// scheduleContinuation queues an empty message so execution resumes after
// the current message's reply is delivered. Fire and forget: nobody waits
// on the continuation's future.
func (s *Session) scheduleContinuation() {
	if s.engine.Graph().IsComplete() {
		return
	}
	if _, err := s.queue.Enqueue(""); err != nil {
		s.debugLog("[session] schedule continuation: %v", err)
	}
}

// recordMessage appends to the conversation log. Persistence failures are
// logged and dropped; history is a convenience, not execution state.
func (s *Session) recordMessage(role models.Role, content string) {
	if s.messages == nil || content == "" {
		return
	}
	msg := &models.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.StoreMessage(s.sessionID, msg); err != nil {
		s.debugLog("[session] store %s message: %v", role, err)
	}
}
