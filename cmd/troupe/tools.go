package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/troupelabs/troupe/internal/config"
	"github.com/troupelabs/troupe/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools agents can call",
	Long: `List every registered tool with its parameters, plus which tools
each agent on the team is allowed to call.

Agent access comes from the tools allow-list in the team roster
(agents.yaml); agents without one get the default set.`,
	RunE: runToolsList,
}

func runToolsList(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, workDir); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	for _, t := range reg.List() {
		fmt.Println(color.CyanString(t.Name))
		fmt.Printf("  %s\n", t.Description)
		printToolParams(t.Parameters)
		fmt.Println()
	}

	team, err := config.LoadTeam(flagTeam)
	if err != nil {
		return err
	}

	fmt.Println("Agent access:")
	for _, agent := range team.Agents {
		allowed := agent.Tools
		if len(allowed) == 0 {
			allowed = tools.BuiltinNames()
		}
		fmt.Printf("  %s: %s\n", color.CyanString(agent.Name), strings.Join(allowed, ", "))
	}
	return nil
}

func printToolParams(schema tools.Schema) {
	if len(schema.Properties) == 0 {
		return
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop := schema.Properties[name]
		marker := ""
		if required[name] {
			marker = color.YellowString(" (required)")
		}
		fmt.Printf("  - %s <%s>%s: %s\n", name, prop.Type, marker, prop.Description)
	}
}
