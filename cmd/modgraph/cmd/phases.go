package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modgraph/phase"
)

// NewPhasesCommand creates the phases command.
func NewPhasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "List the well-known execution phases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range phase.Known() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
