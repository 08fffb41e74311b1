package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/troupelabs/troupe/pkg/models"
)

// StepResult describes the outcome of executing one task.
type StepResult struct {
	// Executed is false when no task was actionable.
	Executed bool
	// TaskID is the attempted task.
	TaskID string
	// TaskName is the attempted task's name.
	TaskName string
	// Agent is the agent that executed the task.
	Agent string
	// Status is the task's state after execution.
	Status models.TaskStatus
	// Output is the agent's result text, or the error message on failure.
	Output string
	// Halt is true when the failure policy stops the run.
	Halt bool
	// HandoffID is the ID of a synthesized follow-up task, if any.
	HandoffID string
}

// ParallelResult describes the outcome of one execution step, sequential or
// fanned out.
type ParallelResult struct {
	// Executed is false when no task was actionable.
	Executed bool
	// Results holds one entry per attempted task, in batch order.
	Results []StepResult
	// Summary is the aggregated human-readable outcome, one line per task.
	Summary string
	// Halted is true when a sequential fallback hit a halting failure.
	// Concurrent batches never halt: sibling independence implies proceed.
	Halted bool
}

// RunResult describes the outcome of a full execution loop.
type RunResult struct {
	// State is the plan-level condition when the loop ended.
	State models.PlanState
	// Steps is how many execution steps ran.
	Steps int
	// Paused is true when the loop yielded to a waiting message.
	Paused bool
	// Summary is a plain-language account of where the plan stands.
	Summary string
}

// Step executes the next actionable task sequentially. A nil-task result with
// Executed=false means nothing is ready to run.
func (e *Engine) Step(ctx context.Context) (*StepResult, error) {
	task := e.graph.GetNextActionableTask()
	if task == nil {
		return &StepResult{}, nil
	}
	return e.executeTask(ctx, task)
}

// executeTask runs one task through the completion protocol: mark
// in_progress and persist, invoke the agent, record the outcome, persist
// again, then evaluate hand-off rules.
//
// The start persist is a precondition: if it fails, the task is rolled back
// to pending and the error returned, leaving memory and disk consistent. A
// failed finish persist never discards finished work; it is logged and the
// persister's dirty flag forces a rewrite on the next save.
func (e *Engine) executeTask(ctx context.Context, task *models.Task) (*StepResult, error) {
	e.graph.UpdateTaskStatus(task.ID, models.TaskStatusInProgress)
	if err := e.persister.SavePlan(); err != nil {
		e.graph.UpdateTaskStatus(task.ID, models.TaskStatusPending)
		return nil, fmt.Errorf("persist task start: %w", err)
	}

	agent := e.agentForTask(ctx, task)
	e.emit(Event{
		Type:    EventTaskStarted,
		TaskID:  task.ID,
		Agent:   agent.Name,
		Message: task.Name,
	})

	output, err := e.invokeAgent(ctx, agent, e.buildTaskPrompt(task))

	res := &StepResult{
		Executed: true,
		TaskID:   task.ID,
		TaskName: task.Name,
		Agent:    agent.Name,
	}

	if err != nil {
		e.graph.SetTaskResult(task.ID, "", err.Error())
		e.graph.UpdateTaskStatus(task.ID, models.TaskStatusFailed)
		if perr := e.persister.SavePlan(); perr != nil {
			e.debugLog("[engine] persist after failure of %s: %v", task.ID, perr)
		}
		e.emit(Event{
			Type:    EventTaskFailed,
			TaskID:  task.ID,
			Agent:   agent.Name,
			Message: task.Name,
			Err:     err,
		})
		res.Status = models.TaskStatusFailed
		res.Output = err.Error()
		res.Halt = task.HaltsOnFailure()
		return res, nil
	}

	e.graph.SetTaskResult(task.ID, output, "")
	e.graph.UpdateTaskStatus(task.ID, models.TaskStatusCompleted)
	if perr := e.persister.SavePlan(); perr != nil {
		e.debugLog("[engine] persist after completion of %s: %v", task.ID, perr)
	}
	e.emit(Event{
		Type:    EventTaskCompleted,
		TaskID:  task.ID,
		Agent:   agent.Name,
		Message: task.Name,
	})

	res.Status = models.TaskStatusCompleted
	res.Output = output
	res.HandoffID = e.applyHandoff(task, agent.Name, output)
	return res, nil
}

// StepParallel executes the next batch of actionable tasks. Batches below
// the parallel threshold fall back to a sequential step. Concurrent workers
// never cancel each other: a sibling failure becomes that task's status and
// nothing else.
func (e *Engine) StepParallel(ctx context.Context, maxConcurrent int) (*ParallelResult, error) {
	batch, parallel := e.scheduler.NextBatch(maxConcurrent)
	if len(batch) == 0 {
		return &ParallelResult{}, nil
	}

	if !parallel {
		res, err := e.executeTask(ctx, batch[0])
		if err != nil {
			return nil, err
		}
		return &ParallelResult{
			Executed: true,
			Results:  []StepResult{*res},
			Summary:  summaryLine(res),
			Halted:   res.Halt,
		}, nil
	}

	for _, task := range batch {
		e.graph.UpdateTaskStatus(task.ID, models.TaskStatusInProgress)
	}
	if err := e.persister.SavePlan(); err != nil {
		for _, task := range batch {
			e.graph.UpdateTaskStatus(task.ID, models.TaskStatusPending)
		}
		return nil, fmt.Errorf("persist batch start: %w", err)
	}

	type outcome struct {
		agent  string
		output string
		err    error
	}
	outcomes := make([]outcome, len(batch))

	for _, task := range batch {
		e.emit(Event{
			Type:    EventTaskStarted,
			TaskID:  task.ID,
			Agent:   task.AssignedAgent,
			Message: task.Name,
		})
	}

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrent)
	for i, task := range batch {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					outcomes[i].err = fmt.Errorf("panic executing task %s: %v", task.ID, rec)
				}
			}()
			agent := e.agentForTask(ctx, task)
			outcomes[i].agent = agent.Name
			outcomes[i].output, outcomes[i].err = e.invokeAgent(ctx, agent, e.buildTaskPrompt(task))
			// Worker errors become task state; returning them would cancel
			// siblings.
			return nil
		})
	}
	_ = g.Wait()

	results := make([]StepResult, len(batch))
	lines := make([]string, len(batch))
	for i, task := range batch {
		out := outcomes[i]
		res := StepResult{
			Executed: true,
			TaskID:   task.ID,
			TaskName: task.Name,
			Agent:    out.agent,
		}

		if out.err != nil {
			e.graph.SetTaskResult(task.ID, "", out.err.Error())
			e.graph.UpdateTaskStatus(task.ID, models.TaskStatusFailed)
			e.emit(Event{
				Type:    EventTaskFailed,
				TaskID:  task.ID,
				Agent:   out.agent,
				Message: task.Name,
				Err:     out.err,
			})
			res.Status = models.TaskStatusFailed
			res.Output = out.err.Error()
		} else {
			e.graph.SetTaskResult(task.ID, out.output, "")
			e.graph.UpdateTaskStatus(task.ID, models.TaskStatusCompleted)
			e.emit(Event{
				Type:    EventTaskCompleted,
				TaskID:  task.ID,
				Agent:   out.agent,
				Message: task.Name,
			})
			res.Status = models.TaskStatusCompleted
			res.Output = out.output
			res.HandoffID = e.applyHandoff(task, out.agent, out.output)
		}

		results[i] = res
		lines[i] = summaryLine(&res)
	}

	if perr := e.persister.SavePlan(); perr != nil {
		e.debugLog("[engine] persist after batch: %v", perr)
	}

	return &ParallelResult{
		Executed: true,
		Results:  results,
		Summary:  strings.Join(lines, "\n"),
	}, nil
}

// summaryLine formats one task outcome for the aggregated step summary.
func summaryLine(res *StepResult) string {
	if res.Status == models.TaskStatusFailed {
		return fmt.Sprintf("⚠️ %s (%s): %s", res.TaskName, res.Agent, res.Output)
	}
	return fmt.Sprintf("✅ %s (%s)", res.TaskName, res.Agent)
}

// Run executes steps until the plan has nothing left to schedule, a halting
// failure stops it, or a waiting message interrupts it. Interruption is
// checked only between steps, so at most the in-flight task completes after
// new input arrives.
func (e *Engine) Run(ctx context.Context, maxConcurrent int) (*RunResult, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	steps := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if e.interrupted() {
			res := &RunResult{
				State:   e.graph.State(),
				Steps:   steps,
				Paused:  true,
				Summary: e.planSummary(true),
			}
			e.emit(Event{Type: EventRunPaused, Message: res.Summary})
			return res, nil
		}

		var executed, halted bool
		if maxConcurrent > 1 {
			pres, err := e.StepParallel(ctx, maxConcurrent)
			if err != nil {
				return nil, err
			}
			executed, halted = pres.Executed, pres.Halted
		} else {
			sres, err := e.Step(ctx)
			if err != nil {
				return nil, err
			}
			executed, halted = sres.Executed, sres.Halt
		}

		if !executed {
			break
		}
		steps++
		if halted {
			e.debugLog("[engine] halting failure after %d steps", steps)
			break
		}
	}

	// Final persist. Harmless when clean: the same document bytes are
	// rewritten.
	if err := e.persister.SavePlan(); err != nil {
		e.debugLog("[engine] final persist: %v", err)
	}

	res := &RunResult{
		State:   e.graph.State(),
		Steps:   steps,
		Summary: e.planSummary(false),
	}

	input, output := e.provider.Tracker().Total()
	e.emit(Event{
		Type:       EventRunCompleted,
		Message:    res.Summary,
		TokensUsed: input + output,
		Cost:       e.provider.Tracker().Cost(),
	})
	return res, nil
}

// planSummary describes where the plan stands in plain language.
func (e *Engine) planSummary(paused bool) string {
	snap := e.graph.Snapshot()
	total := len(snap.Tasks)
	var completed, failed int
	var failedNames []string
	for i := range snap.Tasks {
		switch snap.Tasks[i].Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
			failedNames = append(failedNames, snap.Tasks[i].Name)
		}
	}

	switch {
	case paused:
		return fmt.Sprintf("Paused with %d of %d tasks completed.", completed, total)
	case failed > 0:
		return fmt.Sprintf("%d of %d tasks completed, %d failed: %s",
			completed, total, failed, strings.Join(failedNames, ", "))
	case completed == total:
		return fmt.Sprintf("All %d tasks completed.", total)
	default:
		return fmt.Sprintf("%d of %d tasks completed.", completed, total)
	}
}
