// Package plan owns the task graph for one session: readiness queries,
// status transitions, and append validation.
package plan

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/troupelabs/troupe/pkg/models"
)

// ErrInvalidDependency indicates a task insert referenced an unknown task,
// reused an existing ID, or would create a dependency cycle. The plan is left
// unchanged when it is returned.
var ErrInvalidDependency = errors.New("invalid dependency")

// ErrUnknownTask indicates a task ID that is not part of the plan.
var ErrUnknownTask = errors.New("unknown task")

// Graph wraps a plan with an ID index and answers scheduling queries.
// Tasks live in the plan's flat slice; the index resolves IDs to slice
// positions so dependencies stay plain ID references. All methods are safe
// for concurrent use, though by convention only the queue consumer writes.
type Graph struct {
	mu sync.RWMutex
	// plan is the authoritative in-memory state.
	plan *models.Plan
	// index maps task ID to its position in plan.Tasks.
	index map[string]int
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New builds a graph over the given plan, validating IDs and dependencies.
// Returns ErrInvalidDependency if a task ID repeats, a dependency references
// an unknown task, or the dependencies contain a cycle.
func New(p *models.Plan) (*Graph, error) {
	g := &Graph{
		plan:     p,
		index:    make(map[string]int, len(p.Tasks)),
		debugLog: func(format string, args ...interface{}) {},
	}

	for i := range p.Tasks {
		id := p.Tasks[i].ID
		if id == "" {
			return nil, fmt.Errorf("task at position %d has no ID: %w", i, ErrInvalidDependency)
		}
		if _, dup := g.index[id]; dup {
			return nil, fmt.Errorf("duplicate task ID %s: %w", id, ErrInvalidDependency)
		}
		g.index[id] = i
	}

	for i := range p.Tasks {
		for _, depID := range p.Tasks[i].Dependencies {
			if _, ok := g.index[depID]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s: %w", p.Tasks[i].ID, depID, ErrInvalidDependency)
			}
		}
	}

	if g.hasCycleLocked() {
		return nil, fmt.Errorf("circular dependency detected: %w", ErrInvalidDependency)
	}

	return g, nil
}

// SetDebugLog sets the debug logging function.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.mu.Lock()
		g.debugLog = fn
		g.mu.Unlock()
	}
}

// hasCycleLocked detects cycles with a depth-first walk.
// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
func (g *Graph) hasCycleLocked() bool {
	colors := make(map[string]int, len(g.index))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		i := g.index[id]
		for _, depID := range g.plan.Tasks[i].Dependencies {
			switch colors[depID] {
			case 1:
				// Back edge.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for i := range g.plan.Tasks {
		id := g.plan.Tasks[i].ID
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// actionableLocked reports whether the task at position i is pending with
// every dependency completed.
func (g *Graph) actionableLocked(i int) bool {
	t := &g.plan.Tasks[i]
	if t.Status != models.TaskStatusPending {
		return false
	}
	for _, depID := range t.Dependencies {
		di, ok := g.index[depID]
		if !ok || g.plan.Tasks[di].Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// copyTaskLocked returns a detached copy of the task at position i.
func (g *Graph) copyTaskLocked(i int) *models.Task {
	t := g.plan.Tasks[i]
	if t.Dependencies != nil {
		deps := make([]string, len(t.Dependencies))
		copy(deps, t.Dependencies)
		t.Dependencies = deps
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return &t
}

// GetNextActionableTask returns the first actionable task in plan order, or
// nil if none. Plan order makes the choice deterministic.
func (g *Graph) GetNextActionableTask() *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for i := range g.plan.Tasks {
		if g.actionableLocked(i) {
			g.debugLog("[plan.GetNextActionableTask] selected %s", g.plan.Tasks[i].ID)
			return g.copyTaskLocked(i)
		}
	}
	return nil
}

// GetAllActionableTasks returns up to max actionable tasks in plan order.
// Tasks in the result are never dependency-related: an unfinished dependency
// keeps its dependents non-actionable, so the dependency check alone
// guarantees independence.
func (g *Graph) GetAllActionableTasks(max int) []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if max <= 0 {
		return nil
	}

	var out []*models.Task
	for i := range g.plan.Tasks {
		if len(out) >= max {
			break
		}
		if g.actionableLocked(i) {
			out = append(out, g.copyTaskLocked(i))
		}
	}
	g.debugLog("[plan.GetAllActionableTasks] max=%d returned=%d", max, len(out))
	return out
}

// HasActionableTasks reports whether any task is actionable right now.
func (g *Graph) HasActionableTasks() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for i := range g.plan.Tasks {
		if g.actionableLocked(i) {
			return true
		}
	}
	return false
}

// UpdateTaskStatus sets the status for a task. Returns false if the ID is
// unknown. Setting the same status again is a no-op that still returns true,
// so repeated persists of the same transition write identical documents.
// This is the single mutation path for status: callers never touch task
// fields directly.
func (g *Graph) UpdateTaskStatus(id string, status models.TaskStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.index[id]
	if !ok {
		return false
	}
	t := &g.plan.Tasks[i]
	if t.Status == status {
		return true
	}

	g.debugLog("[plan.UpdateTaskStatus] %s: %s -> %s", id, t.Status, status)
	t.Status = status
	switch status {
	case models.TaskStatusCompleted:
		now := time.Now().UTC()
		t.CompletedAt = &now
	case models.TaskStatusPending:
		// Reset path (retry or rework). Outcome fields from the previous
		// attempt no longer describe the task.
		t.CompletedAt = nil
		t.Error = ""
	}
	return true
}

// SetTaskResult records the outcome text for a task. Returns false if the ID
// is unknown.
func (g *Graph) SetTaskResult(id, notes, errText string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.index[id]
	if !ok {
		return false
	}
	g.plan.Tasks[i].Notes = notes
	g.plan.Tasks[i].Error = errText
	return true
}

// AddTasks appends tasks to the plan after validating the batch as a whole:
// unique new IDs, dependencies resolving to existing or in-batch tasks, and
// no cycles. On any violation the plan is left unchanged and
// ErrInvalidDependency is returned. Completed tasks are never touched.
func (g *Graph) AddTasks(tasks ...models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	next := make(map[string]int, len(g.index)+len(tasks))
	for id, i := range g.index {
		next[id] = i
	}
	for k := range tasks {
		id := tasks[k].ID
		if id == "" {
			return fmt.Errorf("new task at position %d has no ID: %w", k, ErrInvalidDependency)
		}
		if _, dup := next[id]; dup {
			return fmt.Errorf("duplicate task ID %s: %w", id, ErrInvalidDependency)
		}
		next[id] = len(g.plan.Tasks) + k
	}

	for k := range tasks {
		for _, depID := range tasks[k].Dependencies {
			if _, ok := next[depID]; !ok {
				return fmt.Errorf("task %s depends on unknown task %s: %w", tasks[k].ID, depID, ErrInvalidDependency)
			}
		}
	}

	// Tentatively append, run the cycle walk, roll back on failure.
	base := len(g.plan.Tasks)
	g.plan.Tasks = append(g.plan.Tasks, tasks...)
	old := g.index
	g.index = next
	if g.hasCycleLocked() {
		g.plan.Tasks = g.plan.Tasks[:base]
		g.index = old
		return fmt.Errorf("circular dependency detected: %w", ErrInvalidDependency)
	}

	g.debugLog("[plan.AddTasks] appended %d tasks, plan now has %d", len(tasks), len(g.plan.Tasks))
	return nil
}

// ResetTasks sets the named tasks back to pending so they are scheduled
// again. Unknown IDs are skipped. Returns the IDs actually reset.
func (g *Graph) ResetTasks(ids []string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var reset []string
	for _, id := range ids {
		i, ok := g.index[id]
		if !ok {
			continue
		}
		t := &g.plan.Tasks[i]
		if t.Status == models.TaskStatusPending {
			continue
		}
		g.debugLog("[plan.ResetTasks] %s: %s -> pending", id, t.Status)
		t.Status = models.TaskStatusPending
		t.CompletedAt = nil
		t.Error = ""
		reset = append(reset, id)
	}
	return reset
}

// ResetFailedTasks sets every failed task back to pending and returns the
// IDs reset. Used by the explicit retry operation.
func (g *Graph) ResetFailedTasks() []string {
	g.mu.RLock()
	var failed []string
	for i := range g.plan.Tasks {
		if g.plan.Tasks[i].Status == models.TaskStatusFailed {
			failed = append(failed, g.plan.Tasks[i].ID)
		}
	}
	g.mu.RUnlock()
	return g.ResetTasks(failed)
}

// Task returns a detached copy of the task with the given ID.
func (g *Graph) Task(id string) (*models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.copyTaskLocked(i), true
}

// Dependents returns the IDs of tasks that depend on the given task,
// directly only, in plan order.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for i := range g.plan.Tasks {
		for _, depID := range g.plan.Tasks[i].Dependencies {
			if depID == id {
				out = append(out, g.plan.Tasks[i].ID)
				break
			}
		}
	}
	return out
}

// IsComplete returns true if every task completed.
func (g *Graph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.plan.IsComplete()
}

// HasFailedTasks returns true if any task failed.
func (g *Graph) HasFailedTasks() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.plan.HasFailedTasks()
}

// State derives the plan-level condition.
func (g *Graph) State() models.PlanState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.plan.State()
}

// Size returns the number of tasks in the plan.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.plan.Tasks)
}

// Goal returns the plan's goal text.
func (g *Graph) Goal() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.plan.Goal
}

// Snapshot returns a deep copy of the plan for persistence or display.
// The copy shares no memory with the live plan.
func (g *Graph) Snapshot() *models.Plan {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.plan.Clone()
}
