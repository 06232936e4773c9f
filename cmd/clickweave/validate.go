package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clickweave-dev/clickweave/internal/workflow"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workflow.json]",
		Short: "Check a workflow file's graph shape without executing it",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			path := workflowPathFromArgs(cfg, args)

			w, err := workflow.LoadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				os.Exit(1)
			}
			if err := workflow.Validate(w); err != nil {
				fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("%s: valid (%d nodes, %d edges)\n", path, len(w.Nodes), len(w.Edges))
		},
	}
}
