package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// FailurePolicy controls how the plan reacts when a task fails.
type FailurePolicy string

const (
	// FailureProceed continues scheduling tasks that do not depend on the failure.
	FailureProceed FailurePolicy = "proceed"
	// FailureHalt stops the whole plan on failure.
	FailureHalt FailurePolicy = "halt"
)

// Valid returns true if the policy is a known value.
func (p FailurePolicy) Valid() bool {
	switch p {
	case FailureProceed, FailureHalt:
		return true
	default:
		return false
	}
}

// Task represents a unit of work in a plan.
type Task struct {
	// ID is the unique identifier for this task. Immutable after creation.
	ID string `json:"id"`
	// Name is the short description of the task.
	Name string `json:"name"`
	// Goal provides detailed information about what the task must achieve.
	Goal string `json:"goal,omitempty"`
	// AssignedAgent is the name of the agent responsible for this task.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// Dependencies lists task IDs that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// OnFailure is the plan-level policy applied when this task fails.
	OnFailure FailurePolicy `json:"on_failure,omitempty"`
	// Notes holds the agent's output once the task finishes.
	Notes string `json:"notes,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Actionable returns true if the task itself is eligible to run, ignoring
// dependency state. Dependency checks belong to the plan graph, which knows
// the status of every other task.
func (t *Task) Actionable() bool {
	return t.Status == TaskStatusPending
}

// Terminal returns true if the task reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// HaltsOnFailure returns true if a failure of this task should stop the plan.
func (t *Task) HaltsOnFailure() bool {
	return t.OnFailure == FailureHalt
}
