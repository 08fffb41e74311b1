package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/troupelabs/troupe/internal/store"
	"github.com/troupelabs/troupe/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session's plan state",
	Long: `Display the stored plan for the current session.

Shows:
  - The goal and overall plan state
  - Every task with its status, agent, and any error
  - Recent sessions in the same database`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.GetPlan(flagSession)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			fmt.Printf("No plan for session %q. Run 'troupe run <goal>' to start.\n", flagSession)
			return displayRecentSessions(db)
		}
		return err
	}

	displayPlan(db, p)
	fmt.Println()
	return displayRecentSessions(db)
}

func displayPlan(db *store.DB, p *models.Plan) {
	fmt.Printf("Session: %s\n", p.SessionID)
	if p.Goal != "" {
		fmt.Printf("Goal: %s\n", p.Goal)
	}
	fmt.Printf("State: %s\n", coloredState(p.State()))
	fmt.Printf("Created: %s ago\n", formatDuration(time.Since(p.CreatedAt)))
	if n, err := db.MessageCount(p.SessionID); err == nil && n > 0 {
		fmt.Printf("Messages: %d\n", n)
	}

	if len(p.Tasks) == 0 {
		fmt.Println("\nNo tasks yet.")
		return
	}

	fmt.Printf("\nTasks (%d):\n", len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]

		line := fmt.Sprintf("  %s %s", statusSymbol(t.Status), t.Name)
		if t.AssignedAgent != "" {
			line += " " + color.New(color.Faint).Sprintf("[%s]", t.AssignedAgent)
		}
		fmt.Println(line)

		if t.Status == models.TaskStatusFailed && t.Error != "" {
			fmt.Printf("      %s\n", color.RedString(firstLine(t.Error)))
		}
	}
}

func displayRecentSessions(db *store.DB) error {
	plans, err := db.ListPlans()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	// Everything except the session already shown above.
	var others []store.PlanSummary
	for _, s := range plans {
		if s.SessionID != flagSession {
			others = append(others, s)
		}
	}
	if len(others) == 0 {
		return nil
	}

	fmt.Println("Other sessions:")
	for _, s := range others {
		goal := s.Goal
		if goal == "" {
			goal = "(no goal)"
		}
		fmt.Printf("  %s %s %s\n",
			coloredState(s.State), s.SessionID, color.New(color.Faint).Sprint(goal))
	}
	return nil
}

func coloredState(state models.PlanState) string {
	switch state {
	case models.PlanStateComplete:
		return color.GreenString(string(state))
	case models.PlanStateBlocked:
		return color.RedString(string(state))
	default:
		return color.YellowString(string(state))
	}
}

func statusSymbol(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusInProgress:
		return color.CyanString("▶")
	default:
		return color.New(color.Faint).Sprint("·")
	}
}

// firstLine truncates multi-line error text for the task listing.
func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// formatDuration renders d in the largest sensible unit.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
