package engine

import (
	"context"
	"testing"

	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/pkg/models"
)

func TestEvaluate(t *testing.T) {
	rules := []models.HandoffRule{
		{FromAgent: "writer", ToAgent: "reviewer", Condition: "draft complete", Priority: 1},
	}
	h := NewHandoffEvaluator(rules)

	tests := []struct {
		name      string
		fromAgent string
		output    string
		want      string
	}{
		{"keyword hit", "writer", "The draft saved to notes/brief.md.", "reviewer"},
		{"other keyword hit", "writer", "Writing complete, see attachment.", "reviewer"},
		{"case insensitive", "writer", "DRAFT is ready", "reviewer"},
		{"no keyword", "writer", "still working on the outline", ""},
		{"wrong agent", "researcher", "the draft is ready", ""},
		{"empty output", "writer", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := h.Evaluate(tt.fromAgent, tt.output)
			got := ""
			if rule != nil {
				got = rule.ToAgent
			}
			if got != tt.want {
				t.Fatalf("Evaluate(%s, %q) -> %q, want %q", tt.fromAgent, tt.output, got, tt.want)
			}
		})
	}
}

func TestEvaluateIgnoresShortWords(t *testing.T) {
	h := NewHandoffEvaluator([]models.HandoffRule{
		{FromAgent: "writer", ToAgent: "reviewer", Condition: "it is all ok"},
	})

	// Every condition word is too short to be significant, so the rule can
	// never fire, even on output containing those words.
	if rule := h.Evaluate("writer", "it is all ok over here"); rule != nil {
		t.Fatalf("rule fired on stop words only: %+v", rule)
	}
}

func TestEvaluatePriority(t *testing.T) {
	h := NewHandoffEvaluator([]models.HandoffRule{
		{FromAgent: "writer", ToAgent: "reviewer", Condition: "draft complete", Priority: 1},
		{FromAgent: "writer", ToAgent: "analyst", Condition: "draft complete", Priority: 5},
	})

	rule := h.Evaluate("writer", "the draft is done")
	if rule == nil || rule.ToAgent != "analyst" {
		t.Fatalf("rule = %+v, want higher-priority analyst", rule)
	}
}

func TestEvaluatePriorityTieKeepsFirstRule(t *testing.T) {
	h := NewHandoffEvaluator([]models.HandoffRule{
		{FromAgent: "writer", ToAgent: "reviewer", Condition: "draft complete", Priority: 2},
		{FromAgent: "writer", ToAgent: "analyst", Condition: "draft complete", Priority: 2},
	})

	rule := h.Evaluate("writer", "the draft is done")
	if rule == nil || rule.ToAgent != "reviewer" {
		t.Fatalf("rule = %+v, want first rule on tie", rule)
	}
}

func TestApplyHandoffCreatesFollowUpTask(t *testing.T) {
	f := newFixture(t, writerTeam(), nil, pendingTask("t1", "write the brief", "writer"))

	task, _ := f.graph.Task("t1")
	id := f.engine.applyHandoff(task, "writer", "the draft saved to notes/brief.md")
	if id != "handoff_t1_reviewer" {
		t.Fatalf("handoff id = %q", id)
	}

	followUp, ok := f.graph.Task(id)
	if !ok {
		t.Fatal("follow-up task not in graph")
	}
	if followUp.AssignedAgent != "reviewer" {
		t.Fatalf("assigned agent = %s, want reviewer", followUp.AssignedAgent)
	}
	if len(followUp.Dependencies) != 1 || followUp.Dependencies[0] != "t1" {
		t.Fatalf("dependencies = %v, want [t1]", followUp.Dependencies)
	}
	if followUp.Status != models.TaskStatusPending {
		t.Fatalf("status = %s, want pending", followUp.Status)
	}
	if got := storedStatus(t, f.store, id); got != models.TaskStatusPending {
		t.Fatalf("persisted status = %s, want pending", got)
	}
	if !hasEvent(drainEvents(f.engine), EventHandoffCreated, id) {
		t.Fatal("missing handoff event")
	}
}

func TestApplyHandoffIsIdempotent(t *testing.T) {
	f := newFixture(t, writerTeam(), nil, pendingTask("t1", "write the brief", "writer"))

	task, _ := f.graph.Task("t1")
	if id := f.engine.applyHandoff(task, "writer", "draft is ready"); id == "" {
		t.Fatal("first evaluation should create the follow-up")
	}
	// Re-running the source task after a reset must not duplicate it.
	if id := f.engine.applyHandoff(task, "writer", "draft is ready again"); id != "" {
		t.Fatalf("second evaluation created %q, want skip", id)
	}
	if f.graph.Size() != 2 {
		t.Fatalf("task count = %d, want 2", f.graph.Size())
	}
}

func TestApplyHandoffNoMatch(t *testing.T) {
	f := newFixture(t, writerTeam(), nil, pendingTask("t1", "write the brief", "writer"))

	task, _ := f.graph.Task("t1")
	if id := f.engine.applyHandoff(task, "writer", "still outlining"); id != "" {
		t.Fatalf("handoff fired without a matching condition: %q", id)
	}
	if f.graph.Size() != 1 {
		t.Fatalf("task count = %d, want 1", f.graph.Size())
	}
}

func TestRunExecutesHandoffFollowUp(t *testing.T) {
	f := newFixture(t, writerTeam(), func(req llm.Request) (*llm.Response, error) {
		if req.System == "You are the writer." {
			return textResponse("The draft saved to notes/brief.md."), nil
		}
		return textResponse("Reviewed, no issues found."), nil
	}, pendingTask("t1", "write the brief", "writer"))

	res, err := f.engine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The writer's output satisfies the hand-off condition, so a reviewer
	// follow-up is synthesized and executed in the same run.
	if res.State != models.PlanStateComplete {
		t.Fatalf("state = %s, want complete", res.State)
	}
	if res.Steps != 2 {
		t.Fatalf("steps = %d, want writer then reviewer", res.Steps)
	}

	followUp, ok := f.graph.Task("handoff_t1_reviewer")
	if !ok {
		t.Fatal("follow-up task missing")
	}
	if followUp.Status != models.TaskStatusCompleted {
		t.Fatalf("follow-up status = %s, want completed", followUp.Status)
	}
	if followUp.Notes != "Reviewed, no issues found." {
		t.Fatalf("follow-up notes = %q", followUp.Notes)
	}
}
