package models

import "time"

// PlanState is the overall condition of a plan, derived from task statuses.
type PlanState string

const (
	// PlanStateComplete indicates every task completed.
	PlanStateComplete PlanState = "complete"
	// PlanStateBlocked indicates at least one task failed.
	PlanStateBlocked PlanState = "blocked_on_failure"
	// PlanStateRunning indicates work remains.
	PlanStateRunning PlanState = "in_progress"
)

// Plan is the persisted execution state for one session: the user goal and
// its ordered list of tasks. Task order is preserved for display and used as
// the scheduling tie-break; dependencies are ID references into Tasks, never
// pointers.
type Plan struct {
	// SessionID identifies the session this plan belongs to.
	SessionID string `json:"session_id"`
	// Goal is the natural-language objective the plan was built for.
	Goal string `json:"goal"`
	// Tasks is the ordered task list. Append-only except for status edits.
	Tasks []Task `json:"tasks"`
	// CreatedAt is when the plan was first built.
	CreatedAt time.Time `json:"created_at"`
}

// IsComplete returns true if every task completed. An empty plan is complete.
func (p *Plan) IsComplete() bool {
	for i := range p.Tasks {
		if p.Tasks[i].Status != TaskStatusCompleted {
			return false
		}
	}
	return true
}

// HasFailedTasks returns true if any task failed.
func (p *Plan) HasFailedTasks() bool {
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskStatusFailed {
			return true
		}
	}
	return false
}

// State derives the plan-level condition from task statuses alone, so it is
// always recoverable from the persisted document.
func (p *Plan) State() PlanState {
	if p.IsComplete() {
		return PlanStateComplete
	}
	if p.HasFailedTasks() {
		return PlanStateBlocked
	}
	return PlanStateRunning
}

// Clone returns a deep copy of the plan. Dependency slices are copied so the
// clone shares no memory with the original.
func (p *Plan) Clone() *Plan {
	cp := &Plan{
		SessionID: p.SessionID,
		Goal:      p.Goal,
		CreatedAt: p.CreatedAt,
	}
	if p.Tasks != nil {
		cp.Tasks = make([]Task, len(p.Tasks))
		for i := range p.Tasks {
			t := p.Tasks[i]
			if t.Dependencies != nil {
				deps := make([]string, len(t.Dependencies))
				copy(deps, t.Dependencies)
				t.Dependencies = deps
			}
			if t.CompletedAt != nil {
				at := *t.CompletedAt
				t.CompletedAt = &at
			}
			cp.Tasks[i] = t
		}
	}
	return cp
}
