package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clickweave-dev/clickweave/internal/decisioncache"
	"github.com/clickweave-dev/clickweave/internal/resolver"
	"github.com/clickweave-dev/clickweave/internal/workflow"
)

// replayCmd re-executes a workflow in Run mode against an existing
// decisions.json, so a previously recorded Test-mode disambiguation run can
// be replayed deterministically without re-querying the agent for every
// resolver decision.
func replayCmd() *cobra.Command {
	var decisionsPath string

	cmd := &cobra.Command{
		Use:   "replay [workflow.json]",
		Short: "Re-execute a workflow in Run mode against a recorded decisions.json",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			cfg.Mode = resolver.ModeRun
			path := workflowPathFromArgs(cfg, args)
			if decisionsPath == "" {
				decisionsPath = cfg.DecisionCachePath
			}
			if decisionsPath == "" {
				fmt.Fprintln(os.Stderr, "replay: no decisions.json given (--decisions or config decision_cache_path)")
				os.Exit(1)
			}

			w, err := workflow.LoadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				os.Exit(1)
			}
			workflowID := w.Name
			if workflowID == "" {
				workflowID = w.ID
			}

			cache, err := decisioncache.Load(decisionsPath, workflowID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", decisionsPath, err)
				os.Exit(1)
			}

			if ok := runOnce(cmd.Context(), cfg, path, cache); !ok {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&decisionsPath, "decisions", "", "path to decisions.json (default: config decision_cache_path)")
	return cmd
}
