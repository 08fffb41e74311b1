// Package engine drives plan execution: it pulls actionable tasks from the
// graph, turns them into agent invocations, applies hand-off rules to
// completed work, and folds new user input back into the plan. All mutation
// runs on the queue consumer goroutine; the engine itself never spawns
// long-lived workers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/troupelabs/troupe/internal/config"
	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/internal/plan"
	"github.com/troupelabs/troupe/internal/queue"
	"github.com/troupelabs/troupe/internal/router"
	"github.com/troupelabs/troupe/internal/store"
	"github.com/troupelabs/troupe/internal/tools"
	"github.com/troupelabs/troupe/pkg/models"
)

// DefaultMaxToolIterations bounds tool round-trips within one agent turn.
const DefaultMaxToolIterations = 25

// noteContextLimit caps how much of a dependency's output is replayed into a
// downstream task's prompt.
const noteContextLimit = 2000

// EngineConfig contains configuration options for the Engine.
type EngineConfig struct {
	// Graph is the task graph for this session. Required.
	Graph *plan.Graph
	// Persister writes graph snapshots to the plan store. Required.
	Persister *store.Persister
	// Provider is the model backend. Required.
	Provider llm.Provider
	// Gateway executes tool calls on behalf of agents. Required.
	Gateway *tools.Gateway
	// Team is the agent roster. If nil, the built-in default team is used.
	Team *config.Team
	// Router assigns agents to unassigned tasks and chat messages.
	// If nil, a keyword router chained with a model router is used.
	Router router.Router
	// ParallelThreshold is the smallest batch worth fanning out.
	// Values below 2 use the default.
	ParallelThreshold int
	// MaxToolIterations caps tool round-trips per agent turn.
	// If 0, DefaultMaxToolIterations is used.
	MaxToolIterations int
	// WorkspaceNotes is optional context about the workspace appended to
	// every task prompt.
	WorkspaceNotes string
	// Queue, when set, is consulted at task boundaries: a waiting message
	// pauses the current run.
	Queue *queue.Queue
	// DebugLog receives trace output. If nil, tracing is disabled.
	DebugLog func(format string, args ...interface{})
}

// Engine executes one session's plan.
type Engine struct {
	graph     *plan.Graph
	scheduler *plan.Scheduler
	persister *store.Persister
	provider  llm.Provider
	gateway   *tools.Gateway
	team      *config.Team
	router    router.Router
	handoffs  *HandoffEvaluator
	impact    *ImpactAnalyzer

	maxToolIterations int
	workspaceNotes    string
	queue             *queue.Queue

	events   chan Event
	debugLog func(format string, args ...interface{})
}

// NewEngine creates an Engine from the given configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Graph == nil {
		return nil, errors.New("engine requires a task graph")
	}
	if cfg.Persister == nil {
		return nil, errors.New("engine requires a persister")
	}
	if cfg.Provider == nil {
		return nil, errors.New("engine requires a model provider")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("engine requires a tool gateway")
	}

	team := cfg.Team
	if team == nil {
		team = config.DefaultTeam()
	}
	if len(team.Agents) == 0 {
		return nil, errors.New("engine requires at least one agent")
	}

	rt := cfg.Router
	if rt == nil {
		rt = router.NewChain(
			router.NewKeywordRouter(),
			router.NewModelRouter(cfg.Provider, ""),
		)
	}

	maxIter := cfg.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}

	e := &Engine{
		graph:             cfg.Graph,
		scheduler:         plan.NewScheduler(cfg.Graph, cfg.ParallelThreshold),
		persister:         cfg.Persister,
		provider:          cfg.Provider,
		gateway:           cfg.Gateway,
		team:              team,
		router:            rt,
		handoffs:          NewHandoffEvaluator(team.HandoffRules()),
		maxToolIterations: maxIter,
		workspaceNotes:    cfg.WorkspaceNotes,
		queue:             cfg.Queue,
		events:            make(chan Event, 100),
		debugLog:          cfg.DebugLog,
	}
	if e.debugLog == nil {
		e.debugLog = func(format string, args ...interface{}) {}
	}
	e.impact = NewImpactAnalyzer(cfg.Provider, "")
	return e, nil
}

// Graph returns the engine's task graph for read accessors.
func (e *Engine) Graph() *plan.Graph {
	return e.graph
}

// Team returns the agent roster.
func (e *Engine) Team() *config.Team {
	return e.team
}

// Provider returns the model backend, for usage reporting.
func (e *Engine) Provider() llm.Provider {
	return e.provider
}

// interrupted reports whether a queued message is waiting for the engine.
func (e *Engine) interrupted() bool {
	return e.queue != nil && e.queue.Interrupted()
}

// agentForTask resolves the agent that should execute a task. A known
// assigned agent is used as-is; an empty or unknown assignment is routed,
// falling back to the first roster agent when no route matches.
func (e *Engine) agentForTask(ctx context.Context, task *models.Task) config.Agent {
	if agent, ok := e.team.Get(task.AssignedAgent); ok {
		return agent
	}
	if task.AssignedAgent != "" {
		e.debugLog("[engine] task %s assigned to unknown agent %q, routing", task.ID, task.AssignedAgent)
	}

	message := task.Name
	if task.Goal != "" {
		message += ": " + task.Goal
	}
	name, err := e.router.Route(ctx, message, e.routerInfos())
	if err != nil {
		if !errors.Is(err, router.ErrNoRoute) {
			e.debugLog("[engine] routing task %s failed: %v", task.ID, err)
		}
		return e.team.Agents[0]
	}
	agent, ok := e.team.Get(name)
	if !ok {
		return e.team.Agents[0]
	}
	return agent
}

// routerInfos converts the roster into routing descriptors.
func (e *Engine) routerInfos() []router.AgentInfo {
	infos := make([]router.AgentInfo, len(e.team.Agents))
	for i, a := range e.team.Agents {
		infos[i] = router.AgentInfo{
			Name:        a.Name,
			Description: a.Description,
			Keywords:    a.Keywords,
		}
	}
	return infos
}

// buildSystemPrompt assembles the persona prompt for an agent.
func (e *Engine) buildSystemPrompt(agent config.Agent) string {
	if agent.SystemPrompt != "" {
		return agent.SystemPrompt
	}
	return fmt.Sprintf("You are %s, an agent on a small team working toward a shared goal. %s",
		agent.Name, agent.Description)
}

// buildTaskPrompt assembles the contextual prompt for one task: the overall
// goal, the task itself, the outputs of completed dependencies, and any
// workspace notes.
func (e *Engine) buildTaskPrompt(task *models.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Overall goal: %s\n\n", e.graph.Goal())
	fmt.Fprintf(&b, "Your task: %s\n", task.Name)
	if task.Goal != "" {
		fmt.Fprintf(&b, "Details: %s\n", task.Goal)
	}

	var deps []string
	for _, depID := range task.Dependencies {
		dep, ok := e.graph.Task(depID)
		if !ok || dep.Status != models.TaskStatusCompleted || dep.Notes == "" {
			continue
		}
		notes := dep.Notes
		if len(notes) > noteContextLimit {
			notes = notes[:noteContextLimit] + "\n... (truncated)"
		}
		deps = append(deps, fmt.Sprintf("- %s:\n%s", dep.Name, notes))
	}
	if len(deps) > 0 {
		fmt.Fprintf(&b, "\nCompleted prerequisite work:\n%s\n", strings.Join(deps, "\n"))
	}

	if e.workspaceNotes != "" {
		fmt.Fprintf(&b, "\nWorkspace notes: %s\n", e.workspaceNotes)
	}

	b.WriteString("\nDo the task now and reply with its outcome in plain text.")
	return b.String()
}

// invokeAgent runs one agent turn to completion: model call, requested tool
// calls through the gateway, results fed back, repeated until the model stops
// asking for tools. Returns the agent's final text.
func (e *Engine) invokeAgent(ctx context.Context, agent config.Agent, prompt string) (string, error) {
	system := e.buildSystemPrompt(agent)
	toolset := e.gateway.ToolsFor(agent.Name)
	messages := []models.Message{{Role: models.RoleUser, Content: prompt}}

	for iter := 0; iter < e.maxToolIterations; iter++ {
		resp, err := e.provider.GenerateResponse(ctx, llm.Request{
			Model:    agent.Model,
			System:   system,
			Messages: messages,
			Tools:    toolset,
		})
		if err != nil {
			return "", fmt.Errorf("agent %s: %w", agent.Name, err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		calls := make([]models.ToolCall, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			call.Agent = agent.Name
			calls[i] = call
		}

		results, err := e.gateway.ExecuteBatch(ctx, calls)
		if err != nil {
			return "", fmt.Errorf("agent %s tool batch: %w", agent.Name, err)
		}
		for i := range results {
			outcome := "ok"
			if !results[i].OK {
				outcome = results[i].Error
			}
			e.emit(Event{
				Type:    EventToolCalled,
				Agent:   agent.Name,
				Message: fmt.Sprintf("%s: %s", results[i].Tool, outcome),
			})
		}

		assistant := models.Message{Role: models.RoleAssistant}
		if resp.Text != "" {
			assistant.Parts = append(assistant.Parts, models.MessagePart{
				Type: models.PartText,
				Text: resp.Text,
			})
		}
		for i := range calls {
			assistant.Parts = append(assistant.Parts, models.MessagePart{
				Type:     models.PartToolCall,
				ToolCall: &calls[i],
			})
		}

		feedback := models.Message{Role: models.RoleUser}
		for i := range results {
			feedback.Parts = append(feedback.Parts, models.MessagePart{
				Type:       models.PartToolResult,
				ToolResult: &results[i],
			})
		}

		messages = append(messages, assistant, feedback)
	}

	return "", fmt.Errorf("agent %s: no final answer after %d tool iterations", agent.Name, e.maxToolIterations)
}

// RouteAndReply answers a conversational message directly: the message is
// routed to the best-suited agent, which replies with full tool access. Used
// for chat input that does not alter the plan.
func (e *Engine) RouteAndReply(ctx context.Context, message string) (string, error) {
	name, err := e.router.Route(ctx, message, e.routerInfos())
	if err != nil {
		if !errors.Is(err, router.ErrNoRoute) {
			return "", err
		}
		name = e.team.Agents[0].Name
	}
	agent, ok := e.team.Get(name)
	if !ok {
		agent = e.team.Agents[0]
	}
	e.debugLog("[engine] chat routed to %s", agent.Name)
	return e.invokeAgent(ctx, agent, message)
}
