package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/troupelabs/troupe/internal/config"
	"github.com/troupelabs/troupe/internal/engine"
	"github.com/troupelabs/troupe/pkg/models"
)

var planSave bool

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Preview the task plan for a goal",
	Long: `Plan decomposes the goal into tasks without executing anything,
showing which agent each task goes to and what it depends on.

With --save the plan is stored for this session, ready for
'troupe run --resume'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlanPreview,
}

func init() {
	planCmd.Flags().BoolVar(&planSave, "save", false, "Store the plan for this session instead of discarding it")
}

func runPlanPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	team, err := config.LoadTeam(flagTeam)
	if err != nil {
		return err
	}
	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	goal := strings.Join(args, " ")
	planner := engine.NewPlanner(provider, "", team)
	if fn := debugLog(); fn != nil {
		planner.SetDebugLog(fn)
	}

	p, err := planner.BuildPlan(ctx, flagSession, goal)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	fmt.Printf("Goal: %s\n\n", goal)
	printPlanTasks(p)

	if planSave {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if has, err := db.HasPlan(flagSession); err != nil {
			return err
		} else if has {
			return fmt.Errorf("session %q already has a plan; use a new --session", flagSession)
		}
		if err := db.StorePlan(p); err != nil {
			return fmt.Errorf("storing plan: %w", err)
		}
		fmt.Printf("\nSaved for session %q. Execute with: troupe run --resume\n", flagSession)
	}
	return nil
}

// printPlanTasks lists the plan's tasks in order with their agents and
// dependencies. Dependency IDs are shown as task names.
func printPlanTasks(p *models.Plan) {
	byID := make(map[string]string, len(p.Tasks))
	for i := range p.Tasks {
		byID[p.Tasks[i].ID] = p.Tasks[i].Name
	}

	for i := range p.Tasks {
		t := &p.Tasks[i]

		agent := t.AssignedAgent
		if agent == "" {
			agent = "routed at runtime"
		}
		fmt.Printf("%2d. %s %s\n", i+1, color.CyanString(t.Name), color.New(color.Faint).Sprintf("[%s]", agent))

		if t.Goal != "" && t.Goal != t.Name {
			fmt.Printf("    %s\n", t.Goal)
		}
		if len(t.Dependencies) > 0 {
			names := make([]string, 0, len(t.Dependencies))
			for _, dep := range t.Dependencies {
				if name, ok := byID[dep]; ok {
					names = append(names, name)
				} else {
					names = append(names, dep)
				}
			}
			fmt.Printf("    after: %s\n", strings.Join(names, ", "))
		}
		if t.OnFailure == models.FailureHalt {
			fmt.Printf("    %s\n", color.YellowString("halts the run on failure"))
		}
	}
}
