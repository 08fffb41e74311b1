package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/pkg/models"
)

// impactPrompt is the prompt template for plan-impact classification.
const impactPrompt = `A plan is being executed and the user just sent new input. Decide whether the input changes the plan.

Plan goal:
%s

Current tasks:
%s

New user input:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "alters_plan": true,
  "reason": "one sentence explaining the decision",
  "affected_tasks": ["task id that must be redone"],
  "preserved_tasks": ["task id whose finished work still stands"],
  "new_tasks": [
    {
      "name": "Short task name",
      "goal": "Detailed description of what the task must achieve",
      "agent": "agent name, or empty to let the system pick",
      "depends_on": ["id or name of a prerequisite task"]
    }
  ]
}

Guidelines:
- alters_plan is false for questions, status checks, and chatter
- affected_tasks lists only tasks whose output the input invalidates
- never list a task in both affected_tasks and preserved_tasks
- new_tasks covers requirements no existing task satisfies
- use empty arrays when nothing applies`

// impactSystem is the classification call's system prompt.
const impactSystem = "You classify how new user input affects an in-flight execution plan. Answer with strict JSON only."

// PlanImpact is the classification of one piece of user input against the
// current plan.
type PlanImpact struct {
	// AltersPlan is false for conversational input.
	AltersPlan bool `json:"alters_plan"`
	// Reason is a one-sentence explanation.
	Reason string `json:"reason"`
	// AffectedTasks lists task IDs whose work the input invalidates.
	AffectedTasks []string `json:"affected_tasks"`
	// PreservedTasks lists task IDs whose finished work must not be touched.
	PreservedTasks []string `json:"preserved_tasks"`
	// NewTasks lists work the input adds.
	NewTasks []PlannedTask `json:"new_tasks"`
}

// PlannedTask is the JSON structure the model returns for a single task.
type PlannedTask struct {
	Name          string   `json:"name"`
	Goal          string   `json:"goal"`
	Agent         string   `json:"agent"`
	DependsOn     []string `json:"depends_on"`
	HaltOnFailure bool     `json:"halt_on_failure"`
}

// ImpactAnalyzer classifies user input against a plan with one model call.
type ImpactAnalyzer struct {
	provider llm.Provider
	// model overrides the provider default when non-empty.
	model string
}

// NewImpactAnalyzer creates an analyzer backed by the given provider.
func NewImpactAnalyzer(provider llm.Provider, model string) *ImpactAnalyzer {
	return &ImpactAnalyzer{provider: provider, model: model}
}

// Analyze classifies the input against the plan snapshot.
func (a *ImpactAnalyzer) Analyze(ctx context.Context, p *models.Plan, input string) (*PlanImpact, error) {
	prompt := fmt.Sprintf(impactPrompt, p.Goal, formatTaskTable(p), input)

	resp, err := a.provider.GenerateResponse(ctx, llm.Request{
		Model:    a.model,
		System:   impactSystem,
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("impact analysis call: %w", err)
	}

	raw, err := llm.ExtractJSONObject(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("impact analysis response: %w", err)
	}

	impact := &PlanImpact{}
	if err := json.Unmarshal([]byte(raw), impact); err != nil {
		return nil, fmt.Errorf("unmarshal impact analysis: %w", err)
	}
	return impact, nil
}

// formatTaskTable renders the plan's tasks for a classification prompt.
func formatTaskTable(p *models.Plan) string {
	if len(p.Tasks) == 0 {
		return "(no tasks yet)"
	}
	lines := make([]string, len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]
		lines[i] = fmt.Sprintf("- %s | %s | %s | agent: %s", t.ID, t.Name, t.Status, t.AssignedAgent)
	}
	return strings.Join(lines, "\n")
}

// AdjustResult describes what a piece of user input did to the plan.
type AdjustResult struct {
	// Changed is true when tasks were reset or added.
	Changed bool
	// Reset is how many tasks went back to pending.
	Reset int
	// Added is how many new tasks were appended.
	Added int
	// Ack is the user-facing acknowledgement.
	Ack string
}

// AdjustPlan folds new user input into the plan: input classified as
// altering resets the affected tasks and appends new ones, leaving preserved
// tasks untouched. Analysis failures degrade to "no change" so a flaky
// classification call never blocks the conversation.
func (e *Engine) AdjustPlan(ctx context.Context, input string) (*AdjustResult, error) {
	impact, err := e.impact.Analyze(ctx, e.graph.Snapshot(), input)
	if err != nil {
		e.debugLog("[engine] impact analysis failed, plan unchanged: %v", err)
		return &AdjustResult{Ack: "Noted. The plan is unchanged."}, nil
	}

	if !impact.AltersPlan {
		ack := "This does not change the plan."
		if impact.Reason != "" {
			ack = fmt.Sprintf("This does not change the plan: %s", impact.Reason)
		}
		return &AdjustResult{Ack: ack}, nil
	}

	// Preservation wins over resetting when the model lists a task as both.
	preserved := make(map[string]bool, len(impact.PreservedTasks))
	for _, id := range impact.PreservedTasks {
		preserved[id] = true
	}
	var toReset []string
	for _, id := range impact.AffectedTasks {
		if !preserved[id] {
			toReset = append(toReset, id)
		}
	}

	reset := e.graph.ResetTasks(toReset)
	added := e.appendPlannedTasks(impact.NewTasks)

	if len(reset) == 0 && added == 0 {
		return &AdjustResult{Ack: "The plan already covers this."}, nil
	}

	if err := e.persister.SavePlan(); err != nil {
		e.debugLog("[engine] persist after plan adjustment: %v", err)
	}

	ack := fmt.Sprintf("Plan updated: %d task(s) reset, %d added.", len(reset), added)
	if impact.Reason != "" {
		ack += " " + impact.Reason
	}
	e.emit(Event{Type: EventPlanAdjusted, Message: ack})
	e.debugLog("[engine] plan adjusted: reset=%v added=%d", reset, added)

	return &AdjustResult{
		Changed: true,
		Reset:   len(reset),
		Added:   added,
		Ack:     ack,
	}, nil
}

// appendPlannedTasks converts model-proposed tasks into plan tasks and
// appends them. Dependencies resolve against existing task IDs and names as
// well as earlier tasks in the same batch; a task with an unresolvable
// dependency is skipped rather than appended half-wired.
func (e *Engine) appendPlannedTasks(planned []PlannedTask) int {
	if len(planned) == 0 {
		return 0
	}

	snap := e.graph.Snapshot()
	byName := make(map[string]string, len(snap.Tasks))
	known := make(map[string]bool, len(snap.Tasks))
	for i := range snap.Tasks {
		byName[strings.ToLower(snap.Tasks[i].Name)] = snap.Tasks[i].ID
		known[snap.Tasks[i].ID] = true
	}

	now := time.Now().UTC()
	var batch []models.Task
	for _, pt := range planned {
		if pt.Name == "" {
			continue
		}

		id := uuid.New().String()
		deps, ok := resolveDeps(pt.DependsOn, known, byName)
		if !ok {
			e.debugLog("[engine] skipping new task %q: unresolvable dependency", pt.Name)
			continue
		}

		onFailure := models.FailureProceed
		if pt.HaltOnFailure {
			onFailure = models.FailureHalt
		}

		batch = append(batch, models.Task{
			ID:            id,
			Name:          pt.Name,
			Goal:          pt.Goal,
			AssignedAgent: e.normalizeAgent(pt.Agent),
			Dependencies:  deps,
			Status:        models.TaskStatusPending,
			OnFailure:     onFailure,
			CreatedAt:     now,
		})
		byName[strings.ToLower(pt.Name)] = id
		known[id] = true
	}

	if len(batch) == 0 {
		return 0
	}
	if err := e.graph.AddTasks(batch...); err != nil {
		e.debugLog("[engine] rejected proposed tasks: %v", err)
		return 0
	}
	return len(batch)
}

// resolveDeps maps dependency references (IDs or names) to task IDs.
func resolveDeps(refs []string, known map[string]bool, byName map[string]string) ([]string, bool) {
	if len(refs) == 0 {
		return nil, true
	}
	deps := make([]string, 0, len(refs))
	for _, ref := range refs {
		if known[ref] {
			deps = append(deps, ref)
			continue
		}
		if id, ok := byName[strings.ToLower(ref)]; ok {
			deps = append(deps, id)
			continue
		}
		return nil, false
	}
	return deps, true
}

// normalizeAgent blanks agent names that are not on the roster so routing
// assigns them at execution time.
func (e *Engine) normalizeAgent(name string) string {
	if name == "" {
		return ""
	}
	if _, ok := e.team.Get(name); ok {
		return name
	}
	e.debugLog("[engine] proposed agent %q not on roster, leaving unassigned", name)
	return ""
}
