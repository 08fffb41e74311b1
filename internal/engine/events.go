package engine

import "time"

// EventType identifies the kind of engine event.
type EventType string

const (
	// EventTaskStarted fires when a task is marked in progress.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted fires when a task finishes successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed fires when an agent invocation fails.
	EventTaskFailed EventType = "task_failed"
	// EventHandoffCreated fires when a completed task spawns follow-up work.
	EventHandoffCreated EventType = "handoff_created"
	// EventPlanAdjusted fires when user input reshapes the plan.
	EventPlanAdjusted EventType = "plan_adjusted"
	// EventToolCalled fires for every tool invocation an agent makes.
	EventToolCalled EventType = "tool_called"
	// EventRunPaused fires when a run yields to new input.
	EventRunPaused EventType = "run_paused"
	// EventRunCompleted fires when a run reaches its end state.
	EventRunCompleted EventType = "run_completed"
)

// Event describes one observable engine occurrence, consumed by the CLI and
// TUI for progress display.
type Event struct {
	// Type identifies what happened.
	Type EventType
	// TaskID is the related task, if applicable.
	TaskID string
	// Agent is the acting agent, if applicable.
	Agent string
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// TokensUsed is the cumulative token total (completion events).
	TokensUsed int64
	// Cost is the estimated cumulative spend in USD (completion events).
	Cost float64
}

// Events returns the engine's event stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// emit sends an event without blocking. A full channel drops the event so a
// slow or absent consumer can never stall execution.
func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case e.events <- ev:
	default:
	}
}
