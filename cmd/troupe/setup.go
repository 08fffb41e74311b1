package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/troupelabs/troupe/internal/config"
	"github.com/troupelabs/troupe/internal/engine"
	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/internal/plan"
	"github.com/troupelabs/troupe/internal/queue"
	"github.com/troupelabs/troupe/internal/signal"
	"github.com/troupelabs/troupe/internal/store"
	"github.com/troupelabs/troupe/internal/tools"
)

// signalPollInterval is how often the signal files are checked while a
// command runs. The fsnotify path usually reacts faster; this bounds the
// stat fallback.
const signalPollInterval = 500 * time.Millisecond

// runtime bundles everything an execution command needs: configuration,
// storage, the model backend, the tool gateway, the team, and the signal
// watcher for the working directory.
type runtime struct {
	cfg      *config.Config
	db       *store.DB
	provider llm.Provider
	team     *config.Team
	gateway  *tools.Gateway
	watcher  *signal.Watcher
	workDir  string
	debug    func(format string, args ...interface{})
}

// newRuntime wires the shared pieces. The caller owns Close.
func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	team, err := config.LoadTeam(flagTeam)
	if err != nil {
		return nil, err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	gateway, err := buildGateway(cfg, team, workDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	watcher, err := signal.NewWatcher(workDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up signal watcher: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		db:       db,
		provider: provider,
		team:     team,
		gateway:  gateway,
		watcher:  watcher,
		workDir:  workDir,
		debug:    debugLog(),
	}
	return rt, nil
}

// Close releases the runtime's resources.
func (rt *runtime) Close() {
	rt.watcher.Close()
	rt.db.Close()
}

// openStore opens the SQLite database and applies migrations. Precedence:
// --db, then storage.path from config, then the XDG default.
func openStore(cfg *config.Config) (*store.DB, error) {
	path := flagDB
	if path == "" {
		path = cfg.Storage.Path
	}
	if path == "" {
		path = config.DefaultDBPath()
	}

	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}

// buildProvider constructs the configured model backend.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	// A missing key is fine for backends that don't need one; the provider
	// rejects it when it actually matters.
	apiKey, _ := config.GetAPIKey(cfg)

	return llm.NewProvider(llm.Config{
		Backend:       cfg.LLM.Backend,
		Model:         cfg.LLM.Model,
		APIKey:        apiKey,
		UseAWSBedrock: cfg.LLM.UseAWSBedrock,
		AWSRegion:     cfg.LLM.AWSRegion,
		AWSProfile:    cfg.LLM.AWSProfile,
		OllamaHost:    cfg.LLM.OllamaHost,
	})
}

// buildGateway registers the built-in tools and applies each agent's
// allow-list. File tools are scoped to workDir.
func buildGateway(cfg *config.Config, team *config.Team, workDir string) (*tools.Gateway, error) {
	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, workDir); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	policy := tools.NewPolicy(tools.BuiltinNames())
	for _, agent := range team.Agents {
		if len(agent.Tools) > 0 {
			policy.SetAgentTools(agent.Name, agent.Tools)
		}
	}

	return tools.NewGateway(tools.GatewayConfig{
		Registry:      reg,
		Policy:        policy,
		MaxConcurrent: cfg.Tools.MaxConcurrent,
		Timeout:       cfg.Tools.Timeout,
		BatchLimit:    cfg.Tools.BatchLimit,
		AuditSize:     cfg.Tools.AuditSize,
	}), nil
}

// buildEngine assembles an engine over the graph, persisting through the
// runtime's store. The queue makes runs yield to waiting messages and pause
// signals.
func buildEngine(rt *runtime, g *plan.Graph, q *queue.Queue) (*engine.Engine, *store.Persister, error) {
	persister := store.NewPersister(rt.db, g)
	persister.SetDebugLog(rt.debug)

	eng, err := engine.NewEngine(engine.EngineConfig{
		Graph:             g,
		Persister:         persister,
		Provider:          rt.provider,
		Gateway:           rt.gateway,
		Team:              rt.team,
		ParallelThreshold: rt.cfg.Defaults.ParallelThreshold,
		MaxToolIterations: rt.cfg.Defaults.MaxToolIterations,
		WorkspaceNotes:    rt.watcher.ReadNotes(),
		Queue:             q,
		DebugLog:          rt.debug,
	})
	if err != nil {
		return nil, nil, err
	}
	return eng, persister, nil
}

// loadGraph restores the stored plan for the session. found is false when no
// plan exists yet.
func loadGraph(rt *runtime) (g *plan.Graph, found bool, err error) {
	p, err := rt.db.GetPlan(flagSession)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	g, err = plan.New(p)
	if err != nil {
		return nil, false, fmt.Errorf("restoring plan: %w", err)
	}
	return g, true, nil
}

// createGraph asks the planner to decompose the goal, persists the new plan,
// and returns its graph.
func createGraph(ctx context.Context, rt *runtime, goal string) (*plan.Graph, error) {
	planner := engine.NewPlanner(rt.provider, "", rt.team)
	if rt.debug != nil {
		planner.SetDebugLog(rt.debug)
	}

	p, err := planner.BuildPlan(ctx, flagSession, goal)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	if err := rt.db.StorePlan(p); err != nil {
		return nil, fmt.Errorf("storing plan: %w", err)
	}
	return plan.New(p)
}

// watchSignals mirrors the signal files into run control until ctx ends:
// stop cancels the run, pause holds the queue so the engine yields at the
// next task boundary.
func watchSignals(ctx context.Context, rt *runtime, q *queue.Queue, cancel context.CancelFunc) {
	ticker := time.NewTicker(signalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.watcher.ShouldStop() {
				if rt.debug != nil {
					rt.debug("[cmd] stop signal received")
				}
				cancel()
				return
			}
			if rt.watcher.ShouldPause() {
				q.SetHold(true)
			}
		}
	}
}

// newMessageQueue builds the session queue with the configured producer
// timeout.
func newMessageQueue(rt *runtime) *queue.Queue {
	q := queue.New(rt.cfg.Defaults.MessageTimeout)
	q.SetDebugLog(rt.debug)
	return q
}
