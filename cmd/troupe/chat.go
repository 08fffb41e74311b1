package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/troupelabs/troupe/internal/engine"
	"github.com/troupelabs/troupe/internal/plan"
	"github.com/troupelabs/troupe/internal/tui"
	"github.com/troupelabs/troupe/pkg/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat [goal]",
	Short: "Drive the agent team conversationally",
	Long: `Chat opens an interactive view of the session: a transcript of
messages and engine activity over an input field.

With a goal argument or a stored plan, execution starts immediately and
streams into the transcript. Typing while agents work interrupts the run
at the next task boundary: the message is analyzed for plan impact, folded
in, answered, and execution continues on its own.

Messages that do not change the plan are routed to the best-suited agent
and answered in place. The conversation persists with the session, so a
reopened chat picks up its history.`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := resolveChatGraph(ctx, rt, args)
	if err != nil {
		return err
	}

	q := newMessageQueue(rt)
	eng, persister, err := buildEngine(rt, g, q)
	if err != nil {
		return err
	}

	session, err := engine.NewSession(engine.SessionConfig{
		Engine:        eng,
		Queue:         q,
		SessionID:     flagSession,
		MaxConcurrent: parallelism(rt),
		Messages:      rt.db,
		DebugLog:      rt.debug,
	})
	if err != nil {
		return err
	}

	rt.watcher.ClearSignals()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchSignals(runCtx, rt, q, cancel)

	program, _ := tui.NewChatProgram(tui.ChatConfig{
		Queue: q,
		Title: chatTitle(g),
	})

	// The consumer loop is the sole writer of plan state. A reopened chat
	// shows the conversation so far; sending history before the consumer
	// starts keeps it above any engine output in the transcript.
	go func() {
		if history, herr := rt.db.GetConversationHistory(flagSession); herr == nil && len(history) > 0 {
			program.Send(tui.HistoryMsg{Messages: history})
		}
		program.Send(tui.SessionDoneMsg{Err: session.Run(runCtx)})
	}()

	// Event pump. Acknowledging a pause here keeps the next continuation
	// from yielding immediately.
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-eng.Events():
				program.Send(tui.EngineEventMsg{Event: ev})
				if ev.Type == engine.EventRunPaused {
					q.SetHold(false)
					rt.watcher.ClearPause()
				}
			}
		}
	}()

	if !g.IsComplete() {
		if err := session.Start(); err != nil {
			return err
		}
	}

	_, uiErr := program.Run()

	cancel()
	q.Close()
	if ferr := persister.Flush(); ferr != nil && rt.debug != nil {
		rt.debug("[cmd] final flush: %v", ferr)
	}
	return uiErr
}

// resolveChatGraph loads the session's plan, builds one from the goal
// argument, or starts empty so the first message can introduce work.
func resolveChatGraph(ctx context.Context, rt *runtime, args []string) (*plan.Graph, error) {
	g, found, err := loadGraph(rt)
	if err != nil {
		return nil, err
	}
	if found {
		if len(args) > 0 {
			return nil, fmt.Errorf("session %q already has a plan; open chat without a goal, or use a new --session", flagSession)
		}
		return g, nil
	}

	if len(args) > 0 {
		return createGraph(ctx, rt, strings.Join(args, " "))
	}

	// Impact analysis can add tasks to an empty plan, so chat works before
	// any goal exists.
	p := &models.Plan{
		SessionID: flagSession,
		CreatedAt: time.Now(),
	}
	g, err = plan.New(p)
	if err != nil {
		return nil, err
	}
	if err := rt.db.StorePlan(p); err != nil {
		return nil, fmt.Errorf("storing plan: %w", err)
	}
	return g, nil
}

// chatTitle picks the header line for the chat view.
func chatTitle(g *plan.Graph) string {
	if goal := g.Goal(); goal != "" {
		return goal
	}
	return "session " + flagSession
}
