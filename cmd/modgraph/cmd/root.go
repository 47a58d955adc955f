// Package cmd implements the modgraph command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the modgraph root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modgraph",
		Short: "modgraph - build and run configuration-driven module graphs",
		Long: `modgraph builds a tree of modules, layers and submodules from a
configuration document and drives their lifecycle.`,
		Version:       fmt.Sprintf("%s (commit: %s, built on: %s)", Version, Commit, Date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewInspectCommand())
	cmd.AddCommand(NewPhasesCommand())
	return cmd
}
