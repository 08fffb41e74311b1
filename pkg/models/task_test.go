package models

import (
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
		{"typo status is invalid", TaskStatus("completedd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestFailurePolicy_Valid(t *testing.T) {
	tests := []struct {
		name   string
		policy FailurePolicy
		want   bool
	}{
		{"proceed is valid", FailureProceed, true},
		{"halt is valid", FailureHalt, true},
		{"empty string is invalid", FailurePolicy(""), false},
		{"unknown policy is invalid", FailurePolicy("retry"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Valid(); got != tt.want {
				t.Errorf("FailurePolicy(%q).Valid() = %v, want %v", tt.policy, got, tt.want)
			}
		})
	}
}

func TestTask_Actionable(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is actionable", TaskStatusPending, true},
		{"in_progress is not", TaskStatusInProgress, false},
		{"completed is not", TaskStatusCompleted, false},
		{"failed is not", TaskStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := Task{ID: "t1", Status: tt.status}
			if got := task.Actionable(); got != tt.want {
				t.Errorf("Task{Status: %q}.Actionable() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTask_Terminal(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is not terminal", TaskStatusPending, false},
		{"in_progress is not terminal", TaskStatusInProgress, false},
		{"completed is terminal", TaskStatusCompleted, true},
		{"failed is terminal", TaskStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := Task{ID: "t1", Status: tt.status}
			if got := task.Terminal(); got != tt.want {
				t.Errorf("Task{Status: %q}.Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTask_HaltsOnFailure(t *testing.T) {
	halting := Task{ID: "t1", OnFailure: FailureHalt}
	if !halting.HaltsOnFailure() {
		t.Error("Task{OnFailure: halt}.HaltsOnFailure() = false, want true")
	}

	proceeding := Task{ID: "t2", OnFailure: FailureProceed}
	if proceeding.HaltsOnFailure() {
		t.Error("Task{OnFailure: proceed}.HaltsOnFailure() = true, want false")
	}

	// Zero value defaults to proceed behavior.
	unset := Task{ID: "t3"}
	if unset.HaltsOnFailure() {
		t.Error("Task{}.HaltsOnFailure() = true, want false")
	}
}

func TestTask_Fields(t *testing.T) {
	now := time.Now()
	completedAt := now.Add(time.Hour)

	task := Task{
		ID:            "task-123",
		Name:          "Write draft",
		Goal:          "Write the first draft of the report",
		AssignedAgent: "writer",
		Dependencies:  []string{"task-100", "task-101"},
		Status:        TaskStatusInProgress,
		OnFailure:     FailureHalt,
		Notes:         "draft saved to workspace",
		CreatedAt:     now,
		CompletedAt:   &completedAt,
	}

	if task.ID != "task-123" {
		t.Errorf("Task.ID = %q, want %q", task.ID, "task-123")
	}
	if task.Name != "Write draft" {
		t.Errorf("Task.Name = %q, want %q", task.Name, "Write draft")
	}
	if task.AssignedAgent != "writer" {
		t.Errorf("Task.AssignedAgent = %q, want %q", task.AssignedAgent, "writer")
	}
	if len(task.Dependencies) != 2 {
		t.Errorf("Task.Dependencies length = %d, want 2", len(task.Dependencies))
	}
	if task.Status != TaskStatusInProgress {
		t.Errorf("Task.Status = %q, want %q", task.Status, TaskStatusInProgress)
	}
	if task.OnFailure != FailureHalt {
		t.Errorf("Task.OnFailure = %q, want %q", task.OnFailure, FailureHalt)
	}
	if !task.CreatedAt.Equal(now) {
		t.Errorf("Task.CreatedAt = %v, want %v", task.CreatedAt, now)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(completedAt) {
		t.Errorf("Task.CompletedAt = %v, want %v", task.CompletedAt, completedAt)
	}
}

func TestTask_DefaultValues(t *testing.T) {
	task := Task{}

	if task.ID != "" {
		t.Errorf("Task.ID default should be empty string, got %q", task.ID)
	}
	if task.Status != "" {
		t.Errorf("Task.Status default should be empty string, got %q", task.Status)
	}
	if task.Dependencies != nil {
		t.Errorf("Task.Dependencies default should be nil, got %v", task.Dependencies)
	}
	if task.CompletedAt != nil {
		t.Errorf("Task.CompletedAt default should be nil, got %v", task.CompletedAt)
	}
	if !task.CreatedAt.IsZero() {
		t.Errorf("Task.CreatedAt default should be zero time, got %v", task.CreatedAt)
	}
}
