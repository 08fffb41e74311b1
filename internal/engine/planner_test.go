package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/pkg/models"
)

const planResponse = `Here is the breakdown you asked for:
[
  {"name": "Gather data", "goal": "Collect the Q3 numbers", "agent": "alpha", "depends_on": [], "halt_on_failure": true},
  {"name": "Write summary", "goal": "Summarize the findings", "agent": "beta", "depends_on": ["gather data"]},
  {"name": "Review", "goal": "Check the summary", "agent": "beta", "depends_on": ["Write Summary"]}
]
Let me know if you need anything else.`

func TestBuildPlan(t *testing.T) {
	var seen llm.Request
	provider := newStubProvider(func(req llm.Request) (*llm.Response, error) {
		seen = req
		return textResponse(planResponse), nil
	})

	p, err := NewPlanner(provider, "", testTeam()).BuildPlan(context.Background(), "sess-1", "ship the report")
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	if p.SessionID != "sess-1" || p.Goal != "ship the report" {
		t.Fatalf("plan header = %+v", p)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(p.Tasks))
	}

	ids := make(map[string]bool)
	for _, task := range p.Tasks {
		if task.ID == "" {
			t.Fatalf("task %q has no ID", task.Name)
		}
		if ids[task.ID] {
			t.Fatalf("duplicate task ID %s", task.ID)
		}
		ids[task.ID] = true
		if task.Status != models.TaskStatusPending {
			t.Fatalf("task %q status = %s, want pending", task.Name, task.Status)
		}
	}

	if p.Tasks[0].OnFailure != models.FailureHalt {
		t.Fatalf("first task policy = %s, want halt", p.Tasks[0].OnFailure)
	}
	if p.Tasks[1].OnFailure != models.FailureProceed {
		t.Fatalf("second task policy = %s, want proceed default", p.Tasks[1].OnFailure)
	}

	// Dependencies resolve by name, case-insensitively, to generated IDs.
	if len(p.Tasks[1].Dependencies) != 1 || p.Tasks[1].Dependencies[0] != p.Tasks[0].ID {
		t.Fatalf("summary dependencies = %v, want [%s]", p.Tasks[1].Dependencies, p.Tasks[0].ID)
	}
	if len(p.Tasks[2].Dependencies) != 1 || p.Tasks[2].Dependencies[0] != p.Tasks[1].ID {
		t.Fatalf("review dependencies = %v, want [%s]", p.Tasks[2].Dependencies, p.Tasks[1].ID)
	}

	prompt := seen.Messages[0].Content
	for _, want := range []string{"ship the report", "- alpha: general work", "- beta: detail work"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPlanForwardDependency(t *testing.T) {
	provider := newStubProvider(func(req llm.Request) (*llm.Response, error) {
		return textResponse(`[
			{"name": "Publish", "goal": "publish it", "agent": "alpha", "depends_on": ["Draft"]},
			{"name": "Draft", "goal": "draft it", "agent": "beta", "depends_on": []}
		]`), nil
	})

	p, err := NewPlanner(provider, "", testTeam()).BuildPlan(context.Background(), "s", "publish the post")
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(p.Tasks[0].Dependencies) != 1 || p.Tasks[0].Dependencies[0] != p.Tasks[1].ID {
		t.Fatalf("forward dependency unresolved: %v", p.Tasks[0].Dependencies)
	}
}

func TestBuildPlanUnknownDependency(t *testing.T) {
	provider := newStubProvider(func(req llm.Request) (*llm.Response, error) {
		return textResponse(`[{"name": "A", "goal": "g", "agent": "alpha", "depends_on": ["missing step"]}]`), nil
	})

	_, err := NewPlanner(provider, "", testTeam()).BuildPlan(context.Background(), "s", "goal")
	if err == nil {
		t.Fatal("expected unknown dependency error")
	}
	if !strings.Contains(err.Error(), "missing step") {
		t.Fatalf("error = %v, want offending name", err)
	}
}

func TestBuildPlanUnknownAgentLeftUnassigned(t *testing.T) {
	provider := newStubProvider(func(req llm.Request) (*llm.Response, error) {
		return textResponse(`[{"name": "A", "goal": "g", "agent": "ghost", "depends_on": []}]`), nil
	})

	p, err := NewPlanner(provider, "", testTeam()).BuildPlan(context.Background(), "s", "goal")
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if p.Tasks[0].AssignedAgent != "" {
		t.Fatalf("agent = %q, want unassigned", p.Tasks[0].AssignedAgent)
	}
}

func TestBuildPlanEmptyTaskList(t *testing.T) {
	provider := newStubProvider(func(req llm.Request) (*llm.Response, error) {
		return textResponse("[]"), nil
	})

	if _, err := NewPlanner(provider, "", testTeam()).BuildPlan(context.Background(), "s", "goal"); err == nil {
		t.Fatal("expected error for empty task list")
	}
}

func TestBuildPlanNonJSONResponse(t *testing.T) {
	provider := newStubProvider(func(req llm.Request) (*llm.Response, error) {
		return textResponse("I would rather not."), nil
	})

	if _, err := NewPlanner(provider, "", testTeam()).BuildPlan(context.Background(), "s", "goal"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBuildPlanProviderError(t *testing.T) {
	provider := newStubProvider(func(req llm.Request) (*llm.Response, error) {
		return nil, errors.New("model overloaded")
	})

	if _, err := NewPlanner(provider, "", testTeam()).BuildPlan(context.Background(), "s", "goal"); err == nil {
		t.Fatal("expected provider error")
	}
}
