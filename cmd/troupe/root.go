package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/troupelabs/troupe/internal/config"
)

var (
	flagConfig  string
	flagDB      string
	flagSession string
	flagTeam    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "troupe",
	Short: "Plan-driven multi-agent task execution",
	Long: `Troupe turns a goal into a task plan and executes it with a team of
specialist LLM agents.

A goal is decomposed into a dependency-ordered task list. Each task is
dispatched to the agent suited for it, independent tasks run in parallel,
and completed work can hand off follow-up tasks to other agents. New input
mid-run reshapes the plan without discarding finished work: execution
pauses at the next task boundary, the message is folded in, and the run
continues.

With no arguments, launches the chat interface for the current session.

Sessions are keyed by --session; the plan and conversation history persist
in a local SQLite database, so a stopped run can be resumed later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() {
	// A .env in the working directory may supply API keys.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: user config plus .troupe.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: storage.path or the XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&flagSession, "session", "default", "Session ID scoping the plan and conversation")
	rootCmd.PersistentFlags().StringVar(&flagTeam, "team", "", "Team roster file (default: agents.yaml in this directory or a parent)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Write debug traces to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFromPath(flagConfig)
	}
	return config.Load()
}

// debugLog returns a stderr trace function when --verbose is set, nil
// otherwise.
func debugLog() func(format string, args ...interface{}) {
	if !flagVerbose {
		return nil
	}
	return func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
