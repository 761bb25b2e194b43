package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fiberline/switchyard/internal/saga/definition"
)

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Inspect workflow definitions",
}

var definitionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active workflow definitions",
	Long: `List the active workflow definitions: the built-ins, with any overrides
from the configured user definitions directory applied.

Output is JSON, one entry per definition, for piping:
  switchyard definitions list | jq '.[].name'`,
	RunE: runDefinitionsList,
}

// definitionSummary is the list view of one definition.
type definitionSummary struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Source      string           `json:"source"`
	FilePath    string           `json:"file_path,omitempty"`
	Steps       []definitionStep `json:"steps"`
}

type definitionStep struct {
	Name         string `json:"name"`
	Handler      string `json:"handler"`
	Compensation string `json:"compensation,omitempty"`
	TargetSystem string `json:"target_system,omitempty"`
	MaxRetries   int    `json:"max_retries"`
}

func runDefinitionsList(_ *cobra.Command, _ []string) error {
	defs, err := definition.NewStore()
	if err != nil {
		return err
	}
	if dir := cfg.Definitions.UserDir; dir != "" {
		if _, statErr := os.Stat(dir); statErr == nil {
			if err := defs.ApplyUserDir(dir); err != nil {
				return err
			}
		}
	}

	out := make([]definitionSummary, 0)
	for _, def := range defs.List() {
		summary := definitionSummary{
			Name:        def.Name,
			Description: def.Description,
			Source:      def.Source.String(),
			FilePath:    def.FilePath,
		}
		for _, step := range def.Steps {
			summary.Steps = append(summary.Steps, definitionStep{
				Name:         step.Name,
				Handler:      step.Handler,
				Compensation: step.CompensationHandler,
				TargetSystem: step.TargetSystem,
				MaxRetries:   step.MaxRetries,
			})
		}
		out = append(out, summary)
	}
	return printJSON(out)
}

func init() {
	rootCmd.AddCommand(definitionsCmd)
	definitionsCmd.AddCommand(definitionsListCmd)
}
