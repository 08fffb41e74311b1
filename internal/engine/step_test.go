package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/pkg/models"
)

func TestStepNoActionableTask(t *testing.T) {
	f := newFixture(t, testTeam(), nil)

	res, err := f.engine.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Executed {
		t.Fatal("empty plan should execute nothing")
	}
}

func TestStepCompletesTask(t *testing.T) {
	f := newFixture(t, testTeam(), replyByTask(map[string]string{
		"gather data": "found three sources",
	}, nil), pendingTask("t1", "gather data", "alpha"))

	res, err := f.engine.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	if !res.Executed || res.TaskID != "t1" || res.Agent != "alpha" {
		t.Fatalf("result = %+v, want executed t1 by alpha", res)
	}
	if res.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.Output != "found three sources" {
		t.Fatalf("output = %q", res.Output)
	}

	task, _ := f.graph.Task("t1")
	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("graph status = %s, want completed", task.Status)
	}
	if task.Notes != "found three sources" {
		t.Fatalf("notes = %q", task.Notes)
	}
	if got := storedStatus(t, f.store, "t1"); got != models.TaskStatusCompleted {
		t.Fatalf("persisted status = %s, want completed", got)
	}

	events := drainEvents(f.engine)
	if !hasEvent(events, EventTaskStarted, "t1") || !hasEvent(events, EventTaskCompleted, "t1") {
		t.Fatalf("missing lifecycle events, got %+v", events)
	}
}

func TestStepRecordsFailure(t *testing.T) {
	f := newFixture(t, testTeam(), replyByTask(nil, map[string]error{
		"gather data": errors.New("model overloaded"),
	}), pendingTask("t1", "gather data", "alpha"))

	res, err := f.engine.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	if res.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if res.Halt {
		t.Fatal("proceed policy should not halt")
	}

	task, _ := f.graph.Task("t1")
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("graph status = %s, want failed", task.Status)
	}
	if !strings.Contains(task.Error, "model overloaded") {
		t.Fatalf("task error = %q, want cause recorded", task.Error)
	}
	if got := storedStatus(t, f.store, "t1"); got != models.TaskStatusFailed {
		t.Fatalf("persisted status = %s, want failed", got)
	}
	if !hasEvent(drainEvents(f.engine), EventTaskFailed, "t1") {
		t.Fatal("missing failure event")
	}
}

func TestStepHaltingFailure(t *testing.T) {
	task := pendingTask("t1", "gather data", "alpha")
	task.OnFailure = models.FailureHalt
	f := newFixture(t, testTeam(), replyByTask(nil, map[string]error{
		"gather data": errors.New("model overloaded"),
	}), task)

	res, err := f.engine.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !res.Halt {
		t.Fatal("halt policy failure should stop the run")
	}
}

func TestStepStartPersistFailure(t *testing.T) {
	f := newFixture(t, testTeam(), nil, pendingTask("t1", "gather data", "alpha"))
	f.store.setFailing(true)

	_, err := f.engine.Step(context.Background())
	if err == nil {
		t.Fatal("expected persist error")
	}

	// The task rolls back so memory and disk stay consistent.
	task, _ := f.graph.Task("t1")
	if task.Status != models.TaskStatusPending {
		t.Fatalf("status = %s, want rollback to pending", task.Status)
	}
	if f.provider.callCount() != 0 {
		t.Fatal("agent must not run when the start cannot be recorded")
	}
}

func TestStepParallelSequentialFallback(t *testing.T) {
	f := newFixture(t, testTeam(), nil,
		pendingTask("t1", "gather data", "alpha"),
		pendingTask("t2", "write summary", "beta", "t1"),
	)

	res, err := f.engine.StepParallel(context.Background(), 3)
	if err != nil {
		t.Fatalf("StepParallel: %v", err)
	}

	// Only one task is actionable, so the batch degrades to a single
	// sequential step.
	if len(res.Results) != 1 || res.Results[0].TaskID != "t1" {
		t.Fatalf("results = %+v, want just t1", res.Results)
	}
	if task, _ := f.graph.Task("t2"); task.Status != models.TaskStatusPending {
		t.Fatalf("dependent task status = %s, want pending", task.Status)
	}
}

func TestStepParallelFallbackPropagatesHalt(t *testing.T) {
	task := pendingTask("t1", "gather data", "alpha")
	task.OnFailure = models.FailureHalt
	f := newFixture(t, testTeam(), replyByTask(nil, map[string]error{
		"gather data": errors.New("model overloaded"),
	}), task)

	res, err := f.engine.StepParallel(context.Background(), 3)
	if err != nil {
		t.Fatalf("StepParallel: %v", err)
	}
	if !res.Halted {
		t.Fatal("sequential fallback should carry the halt")
	}
}

func TestStepParallelExecutesBatch(t *testing.T) {
	f := newFixture(t, testTeam(), replyByTask(
		map[string]string{
			"task one":   "one done",
			"task three": "three done",
		},
		map[string]error{
			"task two": errors.New("model overloaded"),
		},
	),
		pendingTask("t1", "task one", "alpha"),
		pendingTask("t2", "task two", "alpha"),
		pendingTask("t3", "task three", "beta"),
	)

	res, err := f.engine.StepParallel(context.Background(), 3)
	if err != nil {
		t.Fatalf("StepParallel: %v", err)
	}

	if len(res.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(res.Results))
	}
	// Results come back in batch order regardless of finish order.
	wantStatus := map[string]models.TaskStatus{
		"t1": models.TaskStatusCompleted,
		"t2": models.TaskStatusFailed,
		"t3": models.TaskStatusCompleted,
	}
	for i, id := range []string{"t1", "t2", "t3"} {
		if res.Results[i].TaskID != id {
			t.Fatalf("result %d = %s, want %s", i, res.Results[i].TaskID, id)
		}
		if res.Results[i].Status != wantStatus[id] {
			t.Errorf("task %s status = %s, want %s", id, res.Results[i].Status, wantStatus[id])
		}
		if got := storedStatus(t, f.store, id); got != wantStatus[id] {
			t.Errorf("task %s persisted status = %s, want %s", id, got, wantStatus[id])
		}
	}

	// A sibling failure never halts a concurrent batch.
	if res.Halted {
		t.Fatal("concurrent batch must not halt")
	}

	lines := strings.Split(res.Summary, "\n")
	if len(lines) != 3 {
		t.Fatalf("summary lines = %d, want 3:\n%s", len(lines), res.Summary)
	}
	if !strings.HasPrefix(lines[0], "✅") || !strings.HasPrefix(lines[1], "⚠️") || !strings.HasPrefix(lines[2], "✅") {
		t.Fatalf("summary markers wrong:\n%s", res.Summary)
	}
	if !strings.Contains(lines[1], "model overloaded") {
		t.Fatalf("failure line should carry the cause:\n%s", lines[1])
	}
}

func TestStepParallelStartPersistFailure(t *testing.T) {
	f := newFixture(t, testTeam(), nil,
		pendingTask("t1", "task one", "alpha"),
		pendingTask("t2", "task two", "beta"),
	)
	f.store.setFailing(true)

	_, err := f.engine.StepParallel(context.Background(), 2)
	if err == nil {
		t.Fatal("expected persist error")
	}
	for _, id := range []string{"t1", "t2"} {
		if task, _ := f.graph.Task(id); task.Status != models.TaskStatusPending {
			t.Fatalf("task %s status = %s, want rollback to pending", id, task.Status)
		}
	}
	if f.provider.callCount() != 0 {
		t.Fatal("no agent should run when the batch start cannot be recorded")
	}
}

func TestRunSequentialCompletesPlan(t *testing.T) {
	f := newFixture(t, testTeam(), nil,
		pendingTask("t1", "task one", "alpha"),
		pendingTask("t2", "task two", "alpha", "t1"),
		pendingTask("t3", "task three", "beta", "t2"),
	)

	res, err := f.engine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.State != models.PlanStateComplete {
		t.Fatalf("state = %s, want complete", res.State)
	}
	if res.Steps != 3 {
		t.Fatalf("steps = %d, want 3", res.Steps)
	}
	if res.Summary != "All 3 tasks completed." {
		t.Fatalf("summary = %q", res.Summary)
	}

	events := drainEvents(f.engine)
	if !hasEvent(events, EventRunCompleted, "") {
		t.Fatal("missing run completion event")
	}
	for _, ev := range events {
		if ev.Type == EventRunCompleted && ev.TokensUsed == 0 {
			t.Fatal("completion event should report token usage")
		}
	}
}

func TestRunParallelThenDependentTask(t *testing.T) {
	f := newFixture(t, testTeam(), nil,
		pendingTask("t1", "task one", "alpha"),
		pendingTask("t2", "task two", "beta"),
		pendingTask("t3", "task three", "alpha", "t1", "t2"),
	)

	res, err := f.engine.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != models.PlanStateComplete {
		t.Fatalf("state = %s, want complete", res.State)
	}
	// Step one fans out t1+t2, step two runs t3 alone.
	if res.Steps != 2 {
		t.Fatalf("steps = %d, want 2", res.Steps)
	}
}

func TestRunProceedPolicyContinuesPastFailure(t *testing.T) {
	f := newFixture(t, testTeam(), replyByTask(nil, map[string]error{
		"task one": errors.New("model overloaded"),
	}),
		pendingTask("t1", "task one", "alpha"),
		pendingTask("t2", "task two", "beta"),
	)

	res, err := f.engine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.State != models.PlanStateBlocked {
		t.Fatalf("state = %s, want blocked", res.State)
	}
	if res.Steps != 2 {
		t.Fatalf("steps = %d, want both tasks attempted", res.Steps)
	}
	if task, _ := f.graph.Task("t2"); task.Status != models.TaskStatusCompleted {
		t.Fatalf("independent task status = %s, want completed", task.Status)
	}
	if !strings.Contains(res.Summary, "1 failed") || !strings.Contains(res.Summary, "task one") {
		t.Fatalf("summary = %q, want failed task named", res.Summary)
	}
}

func TestRunStopsOnHaltingFailure(t *testing.T) {
	first := pendingTask("t1", "task one", "alpha")
	first.OnFailure = models.FailureHalt
	f := newFixture(t, testTeam(), replyByTask(nil, map[string]error{
		"task one": errors.New("model overloaded"),
	}),
		first,
		pendingTask("t2", "task two", "beta"),
	)

	res, err := f.engine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Steps != 1 {
		t.Fatalf("steps = %d, want halt after first", res.Steps)
	}
	if task, _ := f.graph.Task("t2"); task.Status != models.TaskStatusPending {
		t.Fatalf("task after halt = %s, want pending", task.Status)
	}
	if res.State != models.PlanStateBlocked {
		t.Fatalf("state = %s, want blocked", res.State)
	}
}

func TestRunPausesForQueuedMessage(t *testing.T) {
	f := newFixture(t, testTeam(), nil, pendingTask("t1", "task one", "alpha"))

	if _, err := f.queue.Enqueue("change of plans"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res, err := f.engine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Paused {
		t.Fatal("run should pause for the waiting message")
	}
	if res.Steps != 0 {
		t.Fatalf("steps = %d, want none before the message is seen", res.Steps)
	}
	if f.provider.callCount() != 0 {
		t.Fatal("no agent should run past a waiting message")
	}
	if !hasEvent(drainEvents(f.engine), EventRunPaused, "") {
		t.Fatal("missing pause event")
	}
}

func TestRunPausesAfterInFlightTaskOnly(t *testing.T) {
	var once sync.Once
	var f *fixture
	f = newFixture(t, testTeam(), func(req llm.Request) (*llm.Response, error) {
		// A message lands while the first task is mid-flight.
		once.Do(func() {
			if _, err := f.queue.Enqueue("new information"); err != nil {
				t.Errorf("Enqueue: %v", err)
			}
		})
		return textResponse("done"), nil
	},
		pendingTask("t1", "task one", "alpha"),
		pendingTask("t2", "task two", "alpha", "t1"),
		pendingTask("t3", "task three", "alpha", "t2"),
	)

	res, err := f.engine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The in-flight task finishes; nothing new starts.
	if !res.Paused {
		t.Fatal("run should pause after the in-flight task")
	}
	if res.Steps != 1 {
		t.Fatalf("steps = %d, want exactly the in-flight task", res.Steps)
	}
	if task, _ := f.graph.Task("t1"); task.Status != models.TaskStatusCompleted {
		t.Fatalf("in-flight task = %s, want completed", task.Status)
	}
	if task, _ := f.graph.Task("t2"); task.Status != models.TaskStatusPending {
		t.Fatalf("next task = %s, want untouched", task.Status)
	}
	if res.Summary != "Paused with 1 of 3 tasks completed." {
		t.Fatalf("summary = %q", res.Summary)
	}
}
