package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/troupelabs/troupe/pkg/models"
)

// minKeywordLen filters short filler words out of hand-off conditions.
// Anything shorter is treated as a stop word.
const minKeywordLen = 4

// HandoffEvaluator decides whether a completed task's output should spawn
// follow-up work for another agent. Matching is keyword based: a rule fires
// when any significant word of its condition appears in the output.
type HandoffEvaluator struct {
	rules []models.HandoffRule
}

// NewHandoffEvaluator creates an evaluator over the given rule set. Rule
// order matters: it breaks priority ties.
func NewHandoffEvaluator(rules []models.HandoffRule) *HandoffEvaluator {
	return &HandoffEvaluator{rules: rules}
}

// Evaluate returns the winning rule for the given agent's output, or nil
// when nothing matches. Highest priority wins; the earlier rule wins ties.
func (h *HandoffEvaluator) Evaluate(fromAgent, output string) *models.HandoffRule {
	lowered := strings.ToLower(output)

	var best *models.HandoffRule
	for i := range h.rules {
		rule := &h.rules[i]
		if rule.FromAgent != fromAgent {
			continue
		}
		if !conditionMatches(rule.Condition, lowered) {
			continue
		}
		if best == nil || rule.Priority > best.Priority {
			best = rule
		}
	}
	return best
}

// conditionMatches reports whether any significant keyword of the condition
// appears in the lowercased output.
func conditionMatches(condition, loweredOutput string) bool {
	for _, word := range strings.Fields(strings.ToLower(condition)) {
		word = strings.Trim(word, `.,!?;:"'()`)
		if len(word) < minKeywordLen {
			continue
		}
		if strings.Contains(loweredOutput, word) {
			return true
		}
	}
	return false
}

// applyHandoff evaluates hand-off rules for a completed task and appends at
// most one synthesized follow-up task. Returns the new task's ID, or empty.
// The deterministic ID makes the evaluation idempotent: re-running a task
// after a reset never duplicates its hand-off.
func (e *Engine) applyHandoff(task *models.Task, fromAgent, output string) string {
	rule := e.handoffs.Evaluate(fromAgent, output)
	if rule == nil {
		return ""
	}

	id := "handoff_" + task.ID + "_" + rule.ToAgent
	if _, exists := e.graph.Task(id); exists {
		e.debugLog("[engine] handoff %s already exists, skipping", id)
		return ""
	}

	followUp := models.Task{
		ID:            id,
		Name:          fmt.Sprintf("Follow up on %s", task.Name),
		Goal:          fmt.Sprintf("The %s agent finished %q with condition %q. Continue that work.", fromAgent, task.Name, rule.Condition),
		AssignedAgent: rule.ToAgent,
		Dependencies:  []string{task.ID},
		Status:        models.TaskStatusPending,
		OnFailure:     models.FailureProceed,
		CreatedAt:     time.Now().UTC(),
	}

	if err := e.graph.AddTasks(followUp); err != nil {
		e.debugLog("[engine] handoff append rejected: %v", err)
		return ""
	}
	if err := e.persister.SavePlan(); err != nil {
		e.debugLog("[engine] persist after handoff %s: %v", id, err)
	}

	e.emit(Event{
		Type:    EventHandoffCreated,
		TaskID:  id,
		Agent:   rule.ToAgent,
		Message: fmt.Sprintf("%s -> %s after %s", fromAgent, rule.ToAgent, task.Name),
	})
	e.debugLog("[engine] handoff %s created (%s -> %s)", id, fromAgent, rule.ToAgent)
	return id
}
