package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/troupelabs/troupe/pkg/models"
)

// Agent describes one member of the team roster.
type Agent struct {
	// Name is the unique agent identifier used in task assignment.
	Name string `yaml:"name"`
	// Description says what the agent is for. Shown to the routing model.
	Description string `yaml:"description"`
	// Model overrides the backend default model for this agent.
	Model string `yaml:"model"`
	// SystemPrompt is the persona prompt prepended to every turn.
	SystemPrompt string `yaml:"system_prompt"`
	// Keywords route messages to this agent without a model call.
	Keywords []string `yaml:"keywords"`
	// Tools is the allow-list of tool names this agent may invoke.
	Tools []string `yaml:"tools"`
}

// Handoff is one follow-up rule from the roster file.
type Handoff struct {
	// From is the agent whose completed work is watched.
	From string `yaml:"from"`
	// To is the agent that receives the follow-up task.
	To string `yaml:"to"`
	// Condition describes the trigger in natural language.
	Condition string `yaml:"condition"`
	// Priority orders rules when several match. Higher wins.
	Priority int `yaml:"priority"`
}

// Team is the parsed roster: agents plus their hand-off rules.
type Team struct {
	Agents   []Agent   `yaml:"agents"`
	Handoffs []Handoff `yaml:"handoffs"`
}

// LoadTeam loads the team roster. With an explicit path the file must exist.
// With an empty path it searches for agents.yaml in the current directory and
// parents, falling back to the built-in default team.
func LoadTeam(path string) (*Team, error) {
	if path == "" {
		path = findTeamFile()
		if path == "" {
			return DefaultTeam(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading team file %s: %w", path, err)
	}

	team := &Team{}
	if err := yaml.Unmarshal(data, team); err != nil {
		return nil, fmt.Errorf("parsing team file %s: %w", path, err)
	}

	if err := team.validate(); err != nil {
		return nil, fmt.Errorf("invalid team file %s: %w", path, err)
	}
	return team, nil
}

// findTeamFile searches for agents.yaml in the current directory and parents.
func findTeamFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		p := filepath.Join(cwd, "agents.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// validate checks roster integrity: non-empty unique agent names and hand-off
// rules that reference roster members.
func (t *Team) validate() error {
	if len(t.Agents) == 0 {
		return fmt.Errorf("no agents defined")
	}

	seen := make(map[string]bool, len(t.Agents))
	for i, a := range t.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent at position %d has no name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}

	for i, h := range t.Handoffs {
		if !seen[h.From] {
			return fmt.Errorf("handoff %d references unknown agent %q", i, h.From)
		}
		if !seen[h.To] {
			return fmt.Errorf("handoff %d references unknown agent %q", i, h.To)
		}
		if h.Condition == "" {
			return fmt.Errorf("handoff %d (%s -> %s) has no condition", i, h.From, h.To)
		}
	}
	return nil
}

// Get returns the agent with the given name.
func (t *Team) Get(name string) (Agent, bool) {
	for _, a := range t.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// Names returns the agent names in roster order.
func (t *Team) Names() []string {
	names := make([]string, len(t.Agents))
	for i, a := range t.Agents {
		names[i] = a.Name
	}
	return names
}

// HandoffRules converts the roster's hand-off entries to model rules.
func (t *Team) HandoffRules() []models.HandoffRule {
	if len(t.Handoffs) == 0 {
		return nil
	}
	rules := make([]models.HandoffRule, len(t.Handoffs))
	for i, h := range t.Handoffs {
		rules[i] = models.HandoffRule{
			FromAgent: h.From,
			ToAgent:   h.To,
			Condition: h.Condition,
			Priority:  h.Priority,
		}
	}
	return rules
}

// DefaultTeam returns the built-in roster used when no agents.yaml exists.
func DefaultTeam() *Team {
	return &Team{
		Agents: []Agent{
			{
				Name:        "researcher",
				Description: "Gathers background information and surveys existing material before others act on it.",
				SystemPrompt: "You are the team researcher. Collect the facts, files, and context the " +
					"task needs and summarize them plainly. Cite which tool output each finding " +
					"came from. Do not draw up deliverables yourself.",
				Keywords: []string{"research", "find", "investigate", "gather", "look up"},
				Tools:    []string{"read_file", "list_dir", "current_time"},
			},
			{
				Name:        "writer",
				Description: "Drafts and revises written deliverables from gathered material.",
				SystemPrompt: "You are the team writer. Produce clear, complete drafts from the goal and " +
					"any notes from earlier tasks. When a draft is finished, say so explicitly " +
					"and include the full text in your answer.",
				Keywords: []string{"write", "draft", "compose", "document", "summarize"},
				Tools:    []string{"read_file", "list_dir"},
			},
			{
				Name:        "reviewer",
				Description: "Reviews finished drafts for correctness, clarity, and gaps.",
				SystemPrompt: "You are the team reviewer. Check the work handed to you against the " +
					"original goal. List concrete problems with suggested fixes, or state that " +
					"the work passes review.",
				Keywords: []string{"review", "critique", "check", "verify", "feedback"},
				Tools:    []string{"read_file"},
			},
			{
				Name:        "analyst",
				Description: "Handles calculations, comparisons, and structured numeric analysis.",
				SystemPrompt: "You are the team analyst. Work through numeric and comparative questions " +
					"step by step, using the calculator tool for arithmetic instead of doing it " +
					"in your head.",
				Keywords: []string{"calculate", "analyze", "compare", "estimate", "numbers"},
				Tools:    []string{"calculate", "current_time"},
			},
		},
		Handoffs: []Handoff{
			{
				From:      "writer",
				To:        "reviewer",
				Condition: "draft complete",
				Priority:  1,
			},
		},
	}
}
