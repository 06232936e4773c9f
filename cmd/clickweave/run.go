package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/clickweave-dev/clickweave/internal/config"
	"github.com/clickweave-dev/clickweave/internal/decisioncache"
	"github.com/clickweave-dev/clickweave/internal/llm"
	"github.com/clickweave-dev/clickweave/internal/obs"
	"github.com/clickweave-dev/clickweave/internal/runloop"
	"github.com/clickweave-dev/clickweave/internal/trace"
	"github.com/clickweave-dev/clickweave/internal/workflow"
	"github.com/clickweave-dev/clickweave/pkg/protocol"
)

func runCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run [workflow.json]",
		Short: "Execute a workflow file once",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			workflowPath := workflowPathFromArgs(cfg, args)

			if !watch {
				if ok := runOnce(cmd.Context(), cfg, workflowPath, nil); !ok {
					os.Exit(1)
				}
				return
			}
			watchAndRerun(cmd.Context(), cfg, workflowPath)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "rerun the workflow whenever the workflow file changes")
	return cmd
}

func workflowPathFromArgs(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.WorkflowPath
}

// runOnce loads, validates, and executes a workflow file once. cache, if
// non-nil, preloads decision-cache entries (used by the replay command);
// nil lets the run loop start one fresh.
func runOnce(ctx context.Context, cfg *config.Config, workflowPath string, cache *decisioncache.Cache) bool {
	w, err := workflow.LoadFile(workflowPath)
	if err != nil {
		slog.Error("workflow.load_failed", "path", workflowPath, "error", err)
		return false
	}
	if err := workflow.Validate(w); err != nil {
		slog.Error("workflow.validate_failed", "path", workflowPath, "error", err)
		return false
	}

	agent := llm.NewHTTPProvider("agent", cfg.Agent.BaseURL, cfg.Agent.APIKey, cfg.Agent.Model)
	var vlm llm.Provider
	if cfg.VLM != nil {
		vlm = llm.NewHTTPProvider("vlm", cfg.VLM.BaseURL, cfg.VLM.APIKey, cfg.VLM.Model)
	}
	var supervisionBackend llm.Provider
	if cfg.Supervision != nil {
		supervisionBackend = llm.NewHTTPProvider("supervision", cfg.Supervision.BaseURL, cfg.Supervision.APIKey, cfg.Supervision.Model)
	}

	tracer, shutdownObs, err := obs.Init(ctx, obsConfigFrom(cfg.Obs))
	if err != nil {
		slog.Error("obs.init_failed", "error", err)
		return false
	}
	defer func() {
		if err := shutdownObs(ctx); err != nil {
			slog.Error("obs.shutdown_failed", "error", err)
		}
	}()

	traceRoot := cfg.Trace.Root
	if traceRoot == "" {
		traceRoot = trace.ProjectRoot(cfg.ProjectPath)
	}

	events := make(chan protocol.Event, protocol.EventSinkCapacity)
	stop := make(chan protocol.Command, protocol.StopChannelCapacity)
	done := make(chan struct{})
	go drainEvents(events, done)

	ex := &runloop.Executor{
		Workflow:          w,
		Mode:              cfg.Mode,
		MCPCommand:        cfg.MCP.ToDescriptor(),
		Agent:             agent,
		VLM:               vlm,
		SupervisionBackend: supervisionBackend,
		ProjectPath:       cfg.ProjectPath,
		TraceRoot:         traceRoot,
		DecisionCache:     cache,
		DecisionCachePath: cfg.DecisionCachePath,
		Events:            events,
		Stop:              stop,
		Logger:            func(msg string) { slog.Info(msg) },
		Obs:               tracer,
	}

	ex.Run(ctx)
	close(done)
	return true
}

func drainEvents(events <-chan protocol.Event, done <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			printEvent(ev)
		case <-done:
			for {
				select {
				case ev := <-events:
					printEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func printEvent(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventLog:
		fmt.Println(ev.Message)
	case protocol.EventError:
		fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
	case protocol.EventStateChanged:
		fmt.Printf("state: %s\n", ev.State)
	case protocol.EventNodeStarted:
		fmt.Printf("node started: %s\n", ev.NodeID)
	case protocol.EventNodeCompleted:
		fmt.Printf("node completed: %s\n", ev.NodeID)
	case protocol.EventNodeFailed:
		fmt.Fprintf(os.Stderr, "node failed: %s: %s\n", ev.NodeID, ev.Error)
	case protocol.EventWorkflowCompleted:
		fmt.Println("workflow completed")
	}
}

func obsConfigFrom(c config.ObsConfig) obs.Config {
	return obs.Config{
		Enabled:     c.Enabled,
		Endpoint:    c.Endpoint,
		Protocol:    c.Protocol,
		Insecure:    c.Insecure,
		ServiceName: c.ServiceName,
	}
}

// watchAndRerun reruns the workflow every time its file changes on disk, a
// CLI convenience over run()'s existing entry point — the editor-driven
// live-rerun behavior of the original GUI app, without any engine changes.
func watchAndRerun(ctx context.Context, cfg *config.Config, workflowPath string) {
	runOnce(ctx, cfg, workflowPath, nil)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("watch.init_failed", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()

	dir := filepath.Dir(workflowPath)
	if err := watcher.Add(dir); err != nil {
		slog.Error("watch.add_failed", "dir", dir, "error", err)
		os.Exit(1)
	}

	slog.Info("watch.started", "path", workflowPath)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(workflowPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			slog.Info("watch.file_changed", "path", workflowPath)
			runOnce(ctx, cfg, workflowPath, nil)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("watch.error", "error", err)
		}
	}
}

