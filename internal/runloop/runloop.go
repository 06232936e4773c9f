// Package runloop implements the Run Loop (spec §4.1): the single
// asynchronous task that walks a workflow graph edge by edge, dispatching
// each node to the deterministic or agentic executor, retrying on
// transient tool failure, and bracketing the whole walk with lifecycle
// events a UI drains from a bounded event sink.
//
// Traversal is edge-directed, not topological: the driver never
// precomputes a node order. At every step it asks the graph "what's the
// next node from here", which is what makes Loop/If branches genuinely
// dynamic rather than a fixed unrolling. The original engine's own run()
// walks a precomputed linear execution_order with no visible per-iteration
// condition check, which cannot express that — this package's graph walk
// is written from the specification's literal traversal rules instead,
// while the surrounding lifecycle (state events, model-info logging, MCP
// spawn handling, node retry/finalize, stop polling) follows the
// original's run_loop.rs/lib.rs shape.
package runloop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clickweave-dev/clickweave/internal/agentstep"
	"github.com/clickweave-dev/clickweave/internal/decisioncache"
	"github.com/clickweave-dev/clickweave/internal/detstep"
	"github.com/clickweave-dev/clickweave/internal/llm"
	"github.com/clickweave-dev/clickweave/internal/mcpclient"
	"github.com/clickweave-dev/clickweave/internal/obs"
	"github.com/clickweave-dev/clickweave/internal/resolver"
	"github.com/clickweave-dev/clickweave/internal/runtime"
	"github.com/clickweave-dev/clickweave/internal/supervision"
	"github.com/clickweave-dev/clickweave/internal/trace"
	"github.com/clickweave-dev/clickweave/internal/workflow"
	"github.com/clickweave-dev/clickweave/pkg/protocol"
)

// MCPClient is the narrow surface the run loop needs from a dialed MCP
// connection; *mcpclient.Client satisfies it.
type MCPClient interface {
	ListTools(ctx context.Context) ([]mcpclient.ToolSchema, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error)
	Close() error
}

// Dialer spawns (or, in tests, fakes) the MCP connection the run owns.
type Dialer func(ctx context.Context, desc mcpclient.CommandDescriptor) (MCPClient, error)

func defaultDialer(ctx context.Context, desc mcpclient.CommandDescriptor) (MCPClient, error) {
	return mcpclient.Dial(ctx, desc)
}

// pathArgKeys mirrors detstep's own list: argument keys whose string value
// is resolved against the project directory when relative. Kept in sync by
// hand since agentstep's tool-call arguments go through this same rewrite,
// not through detstep.Execute.
var pathArgKeys = []string{"image_path", "imagePath", "path", "file", "template_path"}

// Executor runs one workflow from entry to WorkflowCompleted, Stop, or a
// fatal node failure.
type Executor struct {
	Workflow *workflow.Workflow
	Mode     resolver.Mode

	MCPCommand mcpclient.CommandDescriptor
	Dial       Dialer // nil uses mcpclient.Dial

	Agent              llm.Provider // required
	VLM                llm.Provider // optional
	SupervisionBackend llm.Provider // optional, preferred over VLM/Agent for verdicts

	ProjectPath string // "" if no project is open
	TraceRoot   string // <root> from spec §4.6; typically trace.ProjectRoot(ProjectPath)

	DecisionCache     *decisioncache.Cache // nil disables cross-run replay; always usable within one run
	DecisionCachePath string                // where to persist it; "" disables persistence

	// Events is the bounded UI event sink (spec §5): capacity
	// protocol.EventSinkCapacity, drop-newest-with-a-warning when full.
	// nil is valid — events are simply discarded.
	Events chan protocol.Event

	// Stop is polled (non-blocking) at the checkpoints spec §5 names:
	// start of each node, each agentic turn, each tool call within a
	// turn. nil means the run can never be stopped.
	Stop <-chan protocol.Command

	// Logger receives every human-readable progress line emitted; nil-safe.
	Logger func(string)

	// Obs exports one span per node execution when non-nil; nil runs with
	// no tracing overhead beyond a no-op Tracer.
	Obs *obs.Tracer

	// Now is the wall clock used for the execution directory's timestamp
	// segment; swappable for tests.
	Now func() time.Time

	store      *trace.Store
	tools      MCPClient
	runtimeCtx *runtime.Context
	focusedApp string

	appCache      *resolver.AppCache
	elementCache  *resolver.ElementCache
	appResolver   *resolver.AppResolver
	elemResolver  *resolver.ElementResolver
	clickResolver *resolver.ClickDisambiguator

	sup *supervision.Supervisor
}

func (e *Executor) log(msg string) {
	if e.Logger != nil {
		e.Logger(msg)
	}
	e.emit(protocol.Log(msg))
}

func (e *Executor) emit(ev protocol.Event) {
	if e.Events == nil {
		return
	}
	select {
	case e.Events <- ev:
	default:
		if e.Logger != nil {
			e.Logger(fmt.Sprintf("event sink full, dropping %s event", ev.Kind))
		}
	}
}

func (e *Executor) tracer() *obs.Tracer {
	if e.Obs != nil {
		return e.Obs
	}
	return obs.Noop()
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) stopRequested() bool {
	if e.Stop == nil {
		return false
	}
	select {
	case <-e.Stop:
		return true
	default:
		return false
	}
}

// Run walks the graph once, start to finish. It always brackets the walk
// with StateChanged(Running) then StateChanged(Idle), regardless of which
// path it exits by (spec §5's ordering guarantee).
func (e *Executor) Run(ctx context.Context) {
	e.emit(protocol.StateChangedEvent(protocol.StateRunning))
	e.log("Starting workflow execution")

	e.logModelInfo(ctx, "Agent", e.Agent)
	if e.VLM != nil {
		e.log(fmt.Sprintf("VLM enabled: %s", e.VLM.DefaultModel()))
		e.logModelInfo(ctx, "VLM", e.VLM)
	} else {
		e.log("VLM not configured — images sent directly to agent")
	}

	dial := e.Dial
	if dial == nil {
		dial = defaultDialer
	}
	tools, err := dial(ctx, e.MCPCommand)
	if err != nil {
		e.emit(protocol.ErrorEvent(fmt.Sprintf("Failed to spawn MCP server: %v", err)))
		e.emit(protocol.StateChangedEvent(protocol.StateIdle))
		return
	}
	defer tools.Close()
	e.tools = tools

	schemas, err := tools.ListTools(ctx)
	if err != nil {
		e.emit(protocol.ErrorEvent(fmt.Sprintf("Failed to list MCP tools: %v", err)))
		e.emit(protocol.StateChangedEvent(protocol.StateIdle))
		return
	}
	e.log(fmt.Sprintf("MCP server ready with %d tools", len(schemas)))
	toolSchema := toLLMToolDefinitions(schemas)

	execTimestamp := e.now().UTC().Format("2006-01-02T15-04-05Z")
	e.store = trace.NewStore(e.TraceRoot, workflowIDOrName(e.Workflow), execTimestamp)
	execDir, err := e.store.BeginExecution()
	if err != nil {
		e.emit(protocol.ErrorEvent(fmt.Sprintf("Failed to create execution directory: %v", err)))
		e.emit(protocol.StateChangedEvent(protocol.StateIdle))
		return
	}
	e.log(fmt.Sprintf("Execution dir: %s", execDir))

	e.runtimeCtx = runtime.New()
	e.appCache = resolver.NewAppCache()
	e.elementCache = resolver.NewElementCache()
	e.appResolver = resolver.NewAppResolver(e.appCache, e.tools, e.Agent)
	if e.DecisionCache == nil {
		e.DecisionCache = decisioncache.New(workflowIDOrName(e.Workflow))
	}
	e.elemResolver = resolver.NewElementResolver(e.elementCache, e.DecisionCache, e.Agent, e.Mode)
	e.clickResolver = resolver.NewClickDisambiguator(e.DecisionCache, e.Agent, e.Mode)

	e.walk(ctx, toolSchema)
}

func (e *Executor) logModelInfo(ctx context.Context, label string, p llm.Provider) {
	info, err := p.ModelInfo(ctx)
	if err != nil {
		e.log(fmt.Sprintf("%s model info unavailable: %v", label, err))
		return
	}
	if info == nil {
		e.log(fmt.Sprintf("%s model info unavailable", label))
		return
	}
	e.log(fmt.Sprintf("%s model: %s (context=%d, owner=%s)", label, info.ID, info.ContextLength, info.Owner))
}

func workflowIDOrName(w *workflow.Workflow) string {
	if w.Name != "" {
		return w.Name
	}
	return w.ID
}

func toLLMToolDefinitions(schemas []mcpclient.ToolSchema) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, llm.ToolDefinition{
			Type: "function",
			Function: llm.ToolFunctionSchema{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// walk drives the edge-directed traversal from the workflow's single entry
// node until it runs off the graph (no outgoing edge), a node fails after
// exhausting retries, or a stop is requested.
func (e *Executor) walk(ctx context.Context, toolSchema []llm.ToolDefinition) {
	currentID, ok := entryNode(e.Workflow)
	if !ok {
		e.emit(protocol.ErrorEvent("workflow has no entry node"))
		e.emit(protocol.StateChangedEvent(protocol.StateIdle))
		return
	}

	for {
		if e.stopRequested() {
			e.log("Workflow stopped by user")
			e.persistDecisionCache()
			e.emit(protocol.StateChangedEvent(protocol.StateIdle))
			return
		}

		node, ok := e.Workflow.NodeByID(currentID)
		if !ok {
			break
		}

		next, stop := e.step(ctx, node, toolSchema)
		if stop {
			return
		}
		if next == "" {
			break
		}
		currentID = next
	}

	e.log("Workflow execution completed")
	e.persistDecisionCache()
	e.emit(protocol.WorkflowCompletedEvent())
	e.emit(protocol.StateChangedEvent(protocol.StateIdle))
}

// entryNode returns the id of the node with no incoming edges — Validate
// guarantees exactly one exists.
func entryNode(w *workflow.Workflow) (string, bool) {
	hasIncoming := make(map[string]bool, len(w.Nodes))
	for _, e := range w.Edges {
		hasIncoming[e.To] = true
	}
	for _, n := range w.Nodes {
		if !hasIncoming[n.ID] {
			return n.ID, true
		}
	}
	return "", false
}

// step executes one node (or evaluates one control-flow node) and
// determines the next node id. stop is true when the run loop must return
// immediately (a node failed after exhausting retries, or was stopped).
func (e *Executor) step(ctx context.Context, n workflow.Node, toolSchema []llm.ToolDefinition) (nextID string, stop bool) {
	switch n.Kind {
	case workflow.KindIf:
		return e.stepIf(n)
	case workflow.KindLoop:
		return e.stepLoop(n)
	case workflow.KindEndLoop:
		return e.stepEndLoop(n)
	default:
		return e.stepAction(ctx, n, toolSchema)
	}
}

// stepIf evaluates the branch condition and follows IfTrue or IfFalse. It
// never creates a NodeRun: branching has no observable side effect of its
// own to trace.
func (e *Executor) stepIf(n workflow.Node) (string, bool) {
	cond, err := runtime.Evaluate(e.runtimeCtx, n.If.Condition)
	if err != nil {
		e.log(fmt.Sprintf("If node %q: condition error: %v — treating as false", n.Name, err))
	}
	output := workflow.OutputIfFalse
	if cond {
		output = workflow.OutputIfTrue
	}
	edge, ok := e.Workflow.EdgeByOutput(n.ID, output)
	if !ok {
		return "", false
	}
	return edge.To, false
}

// stepLoop implements do-while semantics: the first entry always takes
// LoopBody; thereafter the exit condition decides, bounded by
// max_iterations.
func (e *Executor) stepLoop(n workflow.Node) (string, bool) {
	count := e.runtimeCtx.IncrementLoopCounter(n.ID)

	takeBody := count == 1
	if !takeBody {
		exitMet, err := runtime.Evaluate(e.runtimeCtx, n.Loop.Exit)
		if err != nil {
			e.log(fmt.Sprintf("Loop node %q: exit condition error: %v — treating as met", n.Name, err))
			exitMet = true
		}
		takeBody = !exitMet && count <= n.Loop.MaxIterations
	}

	output := workflow.OutputLoopDone
	if takeBody {
		output = workflow.OutputLoopBody
	} else if e.SupervisionBackend != nil || e.VLM != nil {
		// count includes this exiting entry; the body ran count-1 times.
		e.verifyLoopExit(n, count-1)
	}

	edge, ok := e.Workflow.EdgeByOutput(n.ID, output)
	if !ok {
		return "", false
	}
	return edge.To, false
}

// verifyLoopExit asks the supervisor whether the loop achieved its goal.
// Loop nodes never get a NodeRun of their own (they're control flow, not a
// step with a tool-call effect to trace), so the verdict is logged rather
// than appended to a run's events.
func (e *Executor) verifyLoopExit(n workflow.Node, iterations int) {
	reason := supervision.LoopExitConditionMet
	if iterations >= n.Loop.MaxIterations {
		reason = supervision.LoopExitMaxIterations
	}
	result := e.supervisor().VerifyLoopExit(context.Background(), supervision.LoopExit{
		LoopName: n.Name, Reason: reason, Iterations: iterations,
	}, e.tools)
	e.log(fmt.Sprintf("Loop %q supervision verdict: passed=%v reasoning=%s", n.Name, result.Passed, result.Reasoning))
}

// stepEndLoop follows the single back-edge to the paired Loop node.
func (e *Executor) stepEndLoop(n workflow.Node) (string, bool) {
	edge, ok := e.Workflow.EdgeByOutput(n.ID, workflow.OutputNone)
	if !ok {
		return "", false
	}
	return edge.To, false
}

// stepAction executes one action node end to end: NodeStarted, run
// creation, retry loop, supervision, NodeCompleted/NodeFailed, then
// determines the single outgoing edge (spec §4.1, §5's ordering
// guarantee).
func (e *Executor) stepAction(ctx context.Context, n workflow.Node, toolSchema []llm.ToolDefinition) (string, bool) {
	if !n.Enabled {
		e.log(fmt.Sprintf("Skipping disabled node: %s", n.Name))
		return e.singleOutgoing(n.ID), false
	}

	e.emit(protocol.NodeStartedEvent(n.ID))
	e.log(fmt.Sprintf("Executing node: %s (%s)", n.Name, n.Kind))

	runID := uuid.NewString()
	run, err := e.store.CreateRun(n.ID, runID, n.TraceLevel)
	if err != nil {
		e.log(fmt.Sprintf("Failed to create run record for %s: %v", n.Name, err))
	}
	if run != nil {
		e.emit(protocol.RunCreatedEvent(n.ID, run))
		e.store.AppendEvent(run, "node_started", map[string]interface{}{"name": n.Name, "type": string(n.Kind)})
	}

	attempt := 0
	for {
		nodeCtx, nodeSpan := e.tracer().NodeSpan(ctx, n.ID, n.Name, string(n.Kind))
		execErr := e.execute(nodeCtx, n, toolSchema, run)
		obs.EndWithError(nodeSpan, execErr)
		if execErr == nil {
			break
		}
		if execErr == agentstep.ErrStopped {
			e.log(fmt.Sprintf("Node %s stopped by user", n.Name))
			if run != nil {
				e.store.FinalizeRun(run, trace.StatusFailed)
			}
			e.persistDecisionCache()
			e.emit(protocol.StateChangedEvent(protocol.StateIdle))
			return "", true
		}

		if attempt < n.Retries {
			attempt++
			e.log(fmt.Sprintf("Node %s failed (attempt %d/%d): %v. Retrying...", n.Name, attempt, n.Retries+1, execErr))
			e.evictAppCacheForNode(n)
			if run != nil {
				e.store.AppendEvent(run, "retry", map[string]interface{}{"attempt": attempt, "error": execErr.Error()})
			}
			continue
		}

		e.emit(protocol.ErrorEvent(fmt.Sprintf("Node %s failed: %v", n.Name, execErr)))
		if run != nil {
			e.store.FinalizeRun(run, trace.StatusFailed)
		}
		e.emit(protocol.NodeFailedEvent(n.ID, execErr.Error()))
		e.persistDecisionCache()
		e.emit(protocol.StateChangedEvent(protocol.StateIdle))
		return "", true
	}

	if run != nil {
		e.store.FinalizeRun(run, trace.StatusOk)
	}
	if e.verifiable(n) {
		e.verifyStep(n, run)
	}
	e.emit(protocol.NodeCompletedEvent(n.ID))

	return e.singleOutgoing(n.ID), false
}

func (e *Executor) singleOutgoing(id string) string {
	edges := e.Workflow.OutgoingEdges(id)
	if len(edges) == 0 {
		return ""
	}
	return edges[0].To
}

// verifiable reports whether a node kind gets a post-step supervision pass.
// Control-flow nodes (If/Loop/EndLoop) aren't steps with an observable
// effect of their own; AppDebugKitOp is an inert placeholder. TakeScreenshot
// is also excluded inside Supervisor.VerifyStep itself, but skipping the
// call entirely here avoids the screenshot-capture-for-verification
// round-trip when it can't apply anyway.
func (e *Executor) verifiable(n workflow.Node) bool {
	if e.SupervisionBackend == nil && e.VLM == nil {
		return false
	}
	switch n.Kind {
	case workflow.KindIf, workflow.KindLoop, workflow.KindEndLoop, workflow.KindAppDebugKitOp, workflow.KindTakeScreenshot:
		return false
	default:
		return true
	}
}

func (e *Executor) verifyStep(n workflow.Node, run *trace.NodeRun) {
	result := e.supervisor().VerifyStep(context.Background(), n.Name, n.Kind, actionDescription(n), e.tools)
	if run != nil {
		e.store.AppendEvent(run, "supervision_verdict", map[string]interface{}{
			"passed": result.Passed, "reasoning": result.Reasoning, "scope": "step",
		})
	}
}

func actionDescription(n workflow.Node) string {
	switch n.Kind {
	case workflow.KindClick:
		if n.Click != nil && n.Click.Target != "" {
			return fmt.Sprintf("click %q", n.Click.Target)
		}
		return "click"
	case workflow.KindTypeText:
		if n.TypeText != nil {
			return fmt.Sprintf("type %q", n.TypeText.Text)
		}
		return "type text"
	case workflow.KindFocusWindow:
		if n.FocusWindow != nil {
			return fmt.Sprintf("focus %q", n.FocusWindow.Value)
		}
		return "focus window"
	case workflow.KindAiStep:
		if n.AiStep != nil {
			return n.AiStep.Prompt
		}
		return "agentic step"
	default:
		return string(n.Kind)
	}
}

// supervisor lazily builds this run's Supervisor. It is cached on the
// Executor rather than constructed per call: the conversation history it
// accumulates must persist across nodes within one run (spec §9).
func (e *Executor) supervisor() *supervision.Supervisor {
	if e.sup == nil {
		e.sup = supervision.New(e.SupervisionBackend, e.VLM, e.Agent)
		e.sup.FocusedApp = func() string { return e.focusedApp }
		e.sup.Logger = e.Logger
	}
	return e.sup
}

// execute dispatches one node to its executor, resolving any symbolic
// target strings against the app/element/click resolvers first. If/Loop/
// EndLoop never reach here — walk/step handle them directly.
func (e *Executor) execute(ctx context.Context, n workflow.Node, toolSchema []llm.ToolDefinition, run *trace.NodeRun) error {
	if n.Kind == workflow.KindAiStep {
		ex := &agentstep.Executor{
			Agent:             e.Agent,
			VLM:               e.VLM,
			Tools:             e.tools,
			ResolveImagePaths: e.resolveImagePaths,
			StopRequested:     e.stopRequested,
			Logger:            e.Logger,
			Obs:               e.Obs,
		}
		allowed := toolSchema
		if n.AiStep.AllowedTools != nil {
			allowed = filterAllowed(toolSchema, n.AiStep.AllowedTools)
		}
		_, err := ex.Execute(ctx, *n.AiStep, allowed, run, e.store)
		return err
	}

	resolved, err := e.resolveNode(ctx, n, run)
	if err != nil {
		return err
	}

	ex := &detstep.Executor{Tools: e.tools, ProjectPath: e.ProjectPath, Logger: e.Logger}
	_, err = ex.Execute(ctx, resolved, run, e.store)
	return err
}

func filterAllowed(tools []llm.ToolDefinition, allowed []string) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		for _, a := range allowed {
			if t.Function.Name == a {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// resolveImagePaths rewrites pathArgKeys in a tool-call's arguments to an
// absolute path under ProjectPath, mirroring detstep's own handling — the
// agentic step takes the same seam via Executor.ResolveImagePaths since it
// issues tool calls directly rather than through detstep.Execute.
func (e *Executor) resolveImagePaths(args map[string]interface{}) map[string]interface{} {
	if args == nil || e.ProjectPath == "" {
		return args
	}
	for key, raw := range args {
		if !isPathArgKey(key) {
			continue
		}
		s, ok := raw.(string)
		if !ok || (len(s) > 0 && s[0] == '/') {
			continue
		}
		args[key] = e.ProjectPath + "/" + s
	}
	return args
}

func isPathArgKey(key string) bool {
	for _, k := range pathArgKeys {
		if k == key {
			return true
		}
	}
	return false
}

// resolveNode builds a copy of n with any symbolic FocusWindow/
// TakeScreenshot/Click target replaced by its resolved value, per spec
// §4.4: the original engine never wires these resolver calls into its
// deterministic executor at all, so the run loop does it here, upstream of
// the otherwise-unchanged detstep.Execute contract.
func (e *Executor) resolveNode(ctx context.Context, n workflow.Node, run *trace.NodeRun) (workflow.Node, error) {
	switch n.Kind {
	case workflow.KindFocusWindow:
		return e.resolveFocusWindow(ctx, n, run)
	case workflow.KindTakeScreenshot:
		return e.resolveTakeScreenshot(ctx, n, run)
	case workflow.KindClick:
		return e.resolveClick(ctx, n, run)
	default:
		return n, nil
	}
}

func (e *Executor) resolveFocusWindow(ctx context.Context, n workflow.Node, run *trace.NodeRun) (workflow.Node, error) {
	p := *n.FocusWindow
	if p.Method != workflow.FocusByAppName {
		e.focusedApp = ""
		return n, nil
	}

	resolution, err := e.appResolver.Resolve(ctx, p.Value)
	if err != nil {
		return workflow.Node{}, fmt.Errorf("runloop: resolving app %q: %w", p.Value, err)
	}
	if run != nil {
		e.store.AppendEvent(run, "app_resolved", map[string]interface{}{"input": p.Value, "name": resolution.Name, "pid": resolution.PID})
	}

	e.focusedApp = resolution.Name
	resolved := n
	resolvedParams := p
	resolvedParams.Value = resolution.Name
	resolved.FocusWindow = &resolvedParams
	return resolved, nil
}

func (e *Executor) resolveTakeScreenshot(ctx context.Context, n workflow.Node, run *trace.NodeRun) (workflow.Node, error) {
	p := *n.TakeScreenshot
	if p.TargetApp == "" {
		return n, nil
	}

	resolution, err := e.appResolver.Resolve(ctx, p.TargetApp)
	if err != nil {
		return workflow.Node{}, fmt.Errorf("runloop: resolving app %q: %w", p.TargetApp, err)
	}
	if run != nil {
		e.store.AppendEvent(run, "app_resolved", map[string]interface{}{"input": p.TargetApp, "name": resolution.Name, "pid": resolution.PID})
	}

	resolved := n
	resolvedParams := p
	resolvedParams.TargetApp = resolution.Name
	resolved.TakeScreenshot = &resolvedParams
	return resolved, nil
}

// resolveClick turns a symbolic Click target into concrete coordinates: it
// calls find_text itself (detstep has no path that would do this for a
// Click node, since toolmap.Forward maps Click straight through), narrows
// the candidate matches to the requested element when the tool reported a
// list of available element names, then disambiguates among whatever
// candidates remain.
func (e *Executor) resolveClick(ctx context.Context, n workflow.Node, run *trace.NodeRun) (workflow.Node, error) {
	p := *n.Click
	if p.Target == "" || (p.X != nil && p.Y != nil) {
		return n, nil
	}

	if run != nil {
		e.store.AppendEvent(run, "tool_call", map[string]interface{}{"name": "find_text"})
	}
	blocks, err := e.tools.CallTool(ctx, "find_text", map[string]interface{}{"text": p.Target})
	if err != nil {
		return workflow.Node{}, fmt.Errorf("runloop: find_text for click target %q: %w", p.Target, err)
	}
	resultText := mcpclient.JoinText(blocks)

	matches, ok := resolver.ParseClickMatches(resultText)
	if !ok || len(matches) == 0 {
		return workflow.Node{}, fmt.Errorf("runloop: click target %q: no candidate matches found", p.Target)
	}

	appName := e.focusedApp
	if available, hasList := resolver.ParseAvailableElements(resultText); hasList {
		resolvedName, err := e.elemResolver.Resolve(ctx, n.ID, p.Target, appName, available)
		if err != nil {
			return workflow.Node{}, fmt.Errorf("runloop: resolving element %q: %w", p.Target, err)
		}
		matches = filterMatchesByText(matches, resolvedName)
		if len(matches) == 0 {
			return workflow.Node{}, fmt.Errorf("runloop: no candidate matches named %q", resolvedName)
		}
	}

	chosen, err := e.clickResolver.Disambiguate(ctx, n.ID, p.Target, appName, matches)
	if err != nil {
		return workflow.Node{}, fmt.Errorf("runloop: disambiguating click target %q: %w", p.Target, err)
	}
	if run != nil {
		e.store.AppendEvent(run, "click_resolved", map[string]interface{}{"target": p.Target, "text": chosen.Text, "role": chosen.Role})
	}

	resolved := n
	resolvedParams := p
	x, y := int(chosen.X), int(chosen.Y)
	resolvedParams.X = &x
	resolvedParams.Y = &y
	resolvedParams.Target = ""
	resolved.Click = &resolvedParams
	return resolved, nil
}

func filterMatchesByText(matches []resolver.ClickMatch, text string) []resolver.ClickMatch {
	var out []resolver.ClickMatch
	for _, m := range matches {
		if m.Text == text {
			out = append(out, m)
		}
	}
	return out
}

// evictAppCacheForNode implements the automatic cache-eviction rule a
// failing, about-to-be-retried node triggers (spec §4.4): a FocusWindow
// retry evicts the app-name cache entry it used and clears the focused-app
// pointer; a TakeScreenshot retry evicts the entry keyed by its target app.
func (e *Executor) evictAppCacheForNode(n workflow.Node) {
	switch n.Kind {
	case workflow.KindFocusWindow:
		if n.FocusWindow.Method == workflow.FocusByAppName {
			e.appResolver.EvictForNodeRetry(n.FocusWindow.Value)
		}
		e.focusedApp = ""
	case workflow.KindTakeScreenshot:
		if n.TakeScreenshot.TargetApp != "" {
			e.appResolver.EvictForNodeRetry(n.TakeScreenshot.TargetApp)
		}
	}
}

// persistDecisionCache writes decisions.json when running in Test mode, so
// a later Run-mode execution can replay the same disambiguation and
// resolution verdicts. The filtered original sources never call
// Cache.Save from any run path; this call site is this package's addition,
// fired once at the natural end of a run (success, node failure, or user
// stop) rather than after every individual resolver decision.
func (e *Executor) persistDecisionCache() {
	if e.Mode != resolver.ModeTest || e.DecisionCachePath == "" || e.DecisionCache == nil {
		return
	}
	if err := e.DecisionCache.Save(e.DecisionCachePath); err != nil {
		e.log(fmt.Sprintf("Failed to save decision cache: %v", err))
	}
}
