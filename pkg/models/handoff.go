package models

// HandoffRule describes when a finished task should spawn follow-up work for
// another agent. Rules are evaluated against the output of every completed
// task; the highest-priority matching rule wins.
type HandoffRule struct {
	// FromAgent is the agent whose completed tasks this rule watches.
	FromAgent string `json:"from_agent"`
	// ToAgent is the agent the synthesized follow-up task is assigned to.
	ToAgent string `json:"to_agent"`
	// Condition is a natural-language description of the trigger. Matching is
	// keyword based: any significant word from the condition appearing in the
	// task output satisfies it.
	Condition string `json:"condition"`
	// Priority orders rules when several match. Higher wins.
	Priority int `json:"priority,omitempty"`
}
