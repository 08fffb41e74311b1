package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/troupelabs/troupe/internal/config"
	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/internal/plan"
	"github.com/troupelabs/troupe/pkg/models"
)

// planPrompt is the prompt template for breaking a goal into tasks.
const planPrompt = `Break down the following goal into discrete tasks for a team of agents.

Goal: %s

Available agents:
%s

Return ONLY a JSON array of tasks with this exact structure (no other text):
[
  {
    "name": "Short task name",
    "goal": "Detailed description of what the task must achieve",
    "agent": "agent name from the list above, or empty to let the system pick",
    "depends_on": ["name of a task that must finish first"],
    "halt_on_failure": false
  }
]

Guidelines:
- Tasks should be independent when possible so they can run concurrently
- Use dependencies only when one task truly needs another's output
- Each task should be completable by one agent in a single sitting
- Set halt_on_failure only when later tasks are pointless without this one
- Use an empty array for depends_on when a task has no prerequisites`

// plannerSystem is the plan generation call's system prompt.
const plannerSystem = "You are a planning assistant that breaks goals into task lists for a team of specialist agents. Answer with strict JSON only."

// Planner turns a user goal into an executable plan with one model call.
type Planner struct {
	provider llm.Provider
	// model overrides the provider default when non-empty.
	model string
	team  *config.Team
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewPlanner creates a planner for the given team. A nil team gets the
// built-in default roster.
func NewPlanner(provider llm.Provider, model string, team *config.Team) *Planner {
	if team == nil {
		team = config.DefaultTeam()
	}
	return &Planner{
		provider: provider,
		model:    model,
		team:     team,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (p *Planner) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		p.debugLog = fn
	}
}

// BuildPlan asks the model to decompose the goal and returns a validated
// plan. Task IDs are assigned here; the model only names tasks and wires
// dependencies by those names.
func (p *Planner) BuildPlan(ctx context.Context, sessionID, goal string) (*models.Plan, error) {
	prompt := fmt.Sprintf(planPrompt, goal, formatRoster(p.team))

	resp, err := p.provider.GenerateResponse(ctx, llm.Request{
		Model:    p.model,
		System:   plannerSystem,
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("plan generation call: %w", err)
	}

	tasks, err := p.parsePlanResponse(resp.Text)
	if err != nil {
		return nil, err
	}

	built := &models.Plan{
		SessionID: sessionID,
		Goal:      goal,
		Tasks:     tasks,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := plan.New(built); err != nil {
		return nil, fmt.Errorf("generated plan invalid: %w", err)
	}
	return built, nil
}

// parsePlanResponse extracts the task array from the model response and
// converts it into plan tasks. Dependencies are resolved from task names to
// the generated IDs; an unknown dependency name fails the whole plan.
func (p *Planner) parsePlanResponse(response string) ([]models.Task, error) {
	raw, err := llm.ExtractJSONArray(response)
	if err != nil {
		return nil, fmt.Errorf("plan response: %w", err)
	}

	var planned []PlannedTask
	if err := json.Unmarshal([]byte(raw), &planned); err != nil {
		return nil, fmt.Errorf("unmarshal plan response: %w", err)
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("model returned no tasks")
	}

	// First pass assigns IDs so the second pass can resolve dependencies
	// that point forward in the list.
	nameToID := make(map[string]string, len(planned))
	ids := make([]string, len(planned))
	for i, pt := range planned {
		if pt.Name == "" {
			return nil, fmt.Errorf("task %d has no name", i+1)
		}
		ids[i] = uuid.New().String()
		nameToID[strings.ToLower(pt.Name)] = ids[i]
	}

	now := time.Now().UTC()
	tasks := make([]models.Task, 0, len(planned))
	for i, pt := range planned {
		var deps []string
		for _, ref := range pt.DependsOn {
			id, ok := nameToID[strings.ToLower(ref)]
			if !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", pt.Name, ref)
			}
			deps = append(deps, id)
		}

		agent := pt.Agent
		if agent != "" {
			if _, ok := p.team.Get(agent); !ok {
				p.debugLog("[planner] agent %q not on roster, leaving task %q unassigned", agent, pt.Name)
				agent = ""
			}
		}

		onFailure := models.FailureProceed
		if pt.HaltOnFailure {
			onFailure = models.FailureHalt
		}

		tasks = append(tasks, models.Task{
			ID:            ids[i],
			Name:          pt.Name,
			Goal:          pt.Goal,
			AssignedAgent: agent,
			Dependencies:  deps,
			Status:        models.TaskStatusPending,
			OnFailure:     onFailure,
			CreatedAt:     now,
		})
	}
	return tasks, nil
}

// formatRoster renders the team for a planning prompt.
func formatRoster(team *config.Team) string {
	lines := make([]string, len(team.Agents))
	for i, a := range team.Agents {
		lines[i] = fmt.Sprintf("- %s: %s", a.Name, a.Description)
	}
	return strings.Join(lines, "\n")
}
