package plan

import (
	"github.com/troupelabs/troupe/pkg/models"
)

// DefaultParallelThreshold is the smallest batch that justifies concurrent
// execution. A single task gains nothing from fan-out overhead.
const DefaultParallelThreshold = 2

// Scheduler applies the batch-selection policy on top of a Graph: how many
// actionable tasks to pull for one step and whether the batch is worth
// running concurrently. Status checks alone prevent double-scheduling
// because a task leaves the actionable set the moment it is marked
// in_progress.
type Scheduler struct {
	graph *Graph
	// parallelThreshold is the minimum batch size worth fanning out.
	// Batches below it degrade to a single sequential task.
	parallelThreshold int
}

// NewScheduler creates a Scheduler over the given graph. Thresholds below 2
// are clamped: a one-task batch is sequential by definition.
func NewScheduler(g *Graph, parallelThreshold int) *Scheduler {
	if parallelThreshold < DefaultParallelThreshold {
		parallelThreshold = DefaultParallelThreshold
	}
	return &Scheduler{
		graph:             g,
		parallelThreshold: parallelThreshold,
	}
}

// NextBatch returns the tasks for the next step and whether they should run
// concurrently. With maxConcurrent <= 1, or with fewer actionable tasks than
// the parallel threshold, at most one task is returned with parallel=false.
// An empty result means nothing is actionable right now.
func (s *Scheduler) NextBatch(maxConcurrent int) ([]*models.Task, bool) {
	if maxConcurrent <= 1 {
		t := s.graph.GetNextActionableTask()
		if t == nil {
			return nil, false
		}
		return []*models.Task{t}, false
	}

	batch := s.graph.GetAllActionableTasks(maxConcurrent)
	if len(batch) == 0 {
		return nil, false
	}
	if len(batch) < s.parallelThreshold {
		return batch[:1], false
	}
	return batch, true
}

// ParallelThreshold returns the configured minimum concurrent batch size.
func (s *Scheduler) ParallelThreshold() int {
	return s.parallelThreshold
}
