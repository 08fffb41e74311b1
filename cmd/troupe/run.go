package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/troupelabs/troupe/internal/engine"
	"github.com/troupelabs/troupe/internal/plan"
	"github.com/troupelabs/troupe/pkg/models"
)

var (
	runParallel    int
	runResume      bool
	runRetryFailed bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Plan a goal and execute it to completion",
	Long: `Run decomposes the goal into a task plan and executes it with the
agent team, streaming progress to stdout.

Independent tasks run in parallel up to --parallel. Completed tasks can
hand follow-up work to other agents. The plan persists after every task,
so an interrupted run picks up where it left off:

  troupe run --resume          continue the stored plan
  troupe run --retry-failed    reset failed tasks first, then continue

Out-of-band control while a run is active:

  touch .troupe/signals/pause  yield after the in-flight task
  touch .troupe/signals/stop   stop the run

Each session holds one plan. Start a different goal under a new --session,
or use 'troupe chat' to reshape the current plan conversationally.`,
	Args: cobra.ArbitraryArgs,
	RunE: runGoal,
}

func init() {
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Max tasks executed concurrently (default from config)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Continue the plan stored for this session")
	runCmd.Flags().BoolVar(&runRetryFailed, "retry-failed", false, "Reset failed tasks to pending, then continue")
}

func runGoal(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := resolveRunGraph(ctx, rt, args)
	if err != nil {
		return err
	}

	q := newMessageQueue(rt)
	defer q.Close()

	eng, persister, err := buildEngine(rt, g, q)
	if err != nil {
		return err
	}

	// A stale signal file from an earlier session must not stop this run.
	rt.watcher.ClearSignals()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchSignals(runCtx, rt, q, cancel)

	done := make(chan struct{})
	go printEvents(eng.Events(), done)

	res, runErr := eng.Run(runCtx, parallelism(rt))
	close(done)

	if flushErr := persister.Flush(); flushErr != nil && rt.debug != nil {
		rt.debug("[cmd] final flush: %v", flushErr)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Println()
			color.Yellow("Run stopped. Resume with: troupe run --resume")
			return nil
		}
		return runErr
	}

	fmt.Println()
	printRunOutcome(rt, res)
	return nil
}

// resolveRunGraph picks the plan to execute: the stored one for --resume and
// --retry-failed, a freshly planned one otherwise.
func resolveRunGraph(ctx context.Context, rt *runtime, args []string) (*plan.Graph, error) {
	if runResume || runRetryFailed {
		g, found, err := loadGraph(rt)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("no plan stored for session %q", flagSession)
		}
		if runRetryFailed {
			if reset := g.ResetFailedTasks(); len(reset) > 0 {
				fmt.Printf("Retrying %d failed task(s).\n", len(reset))
				if err := rt.db.StorePlan(g.Snapshot()); err != nil {
					return nil, fmt.Errorf("storing plan: %w", err)
				}
			}
		}
		return g, nil
	}

	if len(args) == 0 {
		return nil, errors.New("provide a goal, or use --resume / --retry-failed")
	}
	goal := strings.Join(args, " ")

	if _, found, err := loadGraph(rt); err != nil {
		return nil, err
	} else if found {
		return nil, fmt.Errorf("session %q already has a plan; use --resume, --retry-failed, or a new --session", flagSession)
	}

	fmt.Printf("Planning: %s\n", goal)
	g, err := createGraph(ctx, rt, goal)
	if err != nil {
		return nil, err
	}
	printPlanTasks(g.Snapshot())
	fmt.Println()
	return g, nil
}

// parallelism resolves the effective concurrency for this run.
func parallelism(rt *runtime) int {
	if runParallel > 0 {
		return runParallel
	}
	if rt.cfg.Defaults.Parallel > 0 {
		return rt.cfg.Defaults.Parallel
	}
	return 1
}

// printEvents streams engine events to stdout until done closes.
func printEvents(events <-chan engine.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			printEvent(ev)
		}
	}
}

func printEvent(ev engine.Event) {
	ts := ev.Timestamp.Format("15:04:05")

	switch ev.Type {
	case engine.EventTaskStarted:
		fmt.Printf("%s %s %s: %s\n", ts, color.CyanString("▶"), ev.Agent, ev.Message)
	case engine.EventTaskCompleted:
		fmt.Printf("%s %s %s: %s\n", ts, color.GreenString("✓"), ev.Agent, ev.Message)
	case engine.EventTaskFailed:
		msg := ev.Message
		if ev.Err != nil {
			msg += ": " + ev.Err.Error()
		}
		fmt.Printf("%s %s %s: %s\n", ts, color.RedString("✗"), ev.Agent, msg)
	case engine.EventToolCalled:
		fmt.Printf("%s %s %s %s\n", ts, color.YellowString("⚙"), ev.Agent, ev.Message)
	case engine.EventHandoffCreated:
		fmt.Printf("%s %s handoff: %s\n", ts, color.MagentaString("+"), ev.Message)
	case engine.EventPlanAdjusted:
		fmt.Printf("%s %s %s\n", ts, color.YellowString("~"), ev.Message)
	case engine.EventRunPaused:
		fmt.Printf("%s %s %s\n", ts, color.YellowString("⏸"), ev.Message)
	case engine.EventRunCompleted:
		// The outcome is printed after Run returns.
	}
}

// printRunOutcome reports where the plan ended up and what it cost.
func printRunOutcome(rt *runtime, res *engine.RunResult) {
	switch {
	case res.Paused:
		color.Yellow("%s", res.Summary)
		rt.watcher.ClearPause()
		fmt.Println("Resume with: troupe run --resume")
	case res.State == models.PlanStateComplete:
		color.Green("%s", res.Summary)
	case res.State == models.PlanStateBlocked:
		color.Red("%s", res.Summary)
		fmt.Println("Retry with: troupe run --retry-failed")
	default:
		color.Yellow("%s", res.Summary)
	}

	input, output := rt.provider.Tracker().Total()
	if input+output > 0 {
		fmt.Printf("Tokens: %s in / %s out ($%.4f)\n",
			formatNumber(input), formatNumber(output), rt.provider.Tracker().Cost())
	}
}

// formatNumber renders n with thousands separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
