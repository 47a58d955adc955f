package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modgraph/feeders"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the parsed configuration tree of a file",
		Long: `Print the parsed configuration tree of a file.

Examples:
  modgraph inspect app.yaml
  modgraph inspect app.yaml --path scheduler.jobs.heartbeat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := feeders.Load(args[0])
			if err != nil {
				return err
			}
			node := root
			if path != "" {
				if node, err = root.Lookup(path); err != nil {
					return err
				}
				if node == nil {
					return fmt.Errorf("no value at %q", path)
				}
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), node.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Key path to print, for example servers[0].addr")
	return cmd
}
