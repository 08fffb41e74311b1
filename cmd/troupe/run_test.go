package main

import (
	"testing"
	"time"

	"github.com/troupelabs/troupe/internal/plan"
	"github.com/troupelabs/troupe/pkg/models"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name     string
		n        int64
		expected string
	}{
		{name: "small number unchanged", n: 42, expected: "42"},
		{name: "three digits unchanged", n: 999, expected: "999"},
		{name: "four digits get one separator", n: 1000, expected: "1,000"},
		{name: "seven digits get two separators", n: 1234567, expected: "1,234,567"},
		{name: "zero", n: 0, expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatNumber(tt.n)
			if result != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.n, result, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{name: "seconds", d: 42 * time.Second, expected: "42s"},
		{name: "minutes", d: 5 * time.Minute, expected: "5m"},
		{name: "hours", d: 90 * time.Minute, expected: "1.5h"},
		{name: "days", d: 49 * time.Hour, expected: "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.d)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.d, result, tt.expected)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("model overloaded\ndetails follow"); got != "model overloaded" {
		t.Errorf("firstLine() = %q, want first line only", got)
	}
	if got := firstLine("single line"); got != "single line" {
		t.Errorf("firstLine() = %q, want unchanged", got)
	}
}

func TestChatTitle(t *testing.T) {
	withGoal, err := plan.New(&models.Plan{
		SessionID: "sess",
		Goal:      "ship the quarterly report",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	if got := chatTitle(withGoal); got != "ship the quarterly report" {
		t.Errorf("chatTitle() = %q, want the goal", got)
	}

	empty, err := plan.New(&models.Plan{SessionID: "sess", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	if got := chatTitle(empty); got == "" {
		t.Error("chatTitle() should fall back to the session label")
	}
}
