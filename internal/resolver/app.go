package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clickweave-dev/clickweave/internal/jsonextract"
	"github.com/clickweave-dev/clickweave/internal/llm"
	"github.com/clickweave-dev/clickweave/internal/mcpclient"
)

// ErrNoAppsRunning is returned when list_apps comes back empty — resolving
// against an empty list would only invite the LLM to hallucinate a name.
var ErrNoAppsRunning = errors.New("resolver: no apps are running")

// AppResolver translates a user-facing app string into a concrete
// (name, pid) pair.
type AppResolver struct {
	cache    *AppCache
	tools    ToolCaller
	provider llm.Provider

	// EventRecorder is called with "app_resolved" events; nil-safe.
	EventRecorder func(appName string, pid int)
}

// NewAppResolver constructs a resolver bound to one run's in-memory cache.
func NewAppResolver(cache *AppCache, tools ToolCaller, provider llm.Provider) *AppResolver {
	return &AppResolver{cache: cache, tools: tools, provider: provider}
}

type appNamePidResponse struct {
	Name *string `json:"name"`
	PID  *int    `json:"pid"`
}

// Resolve performs the full pipeline: cache check, list_apps/list_windows,
// empty-list short-circuit, LLM pick, post-validation, cache insert.
func (r *AppResolver) Resolve(ctx context.Context, userInput string) (AppResolution, error) {
	if cached, ok := r.cache.Get(userInput); ok {
		slog.Debug("resolver.app.cache_hit", "input", userInput)
		return cached, nil
	}

	appsBlocks, err := r.tools.CallTool(ctx, "list_apps", nil)
	if err != nil {
		return AppResolution{}, fmt.Errorf("resolver: list_apps: %w", err)
	}
	windowsBlocks, err := r.tools.CallTool(ctx, "list_windows", nil)
	if err != nil {
		return AppResolution{}, fmt.Errorf("resolver: list_windows: %w", err)
	}
	appsText := mcpclient.JoinText(appsBlocks)
	windowsText := mcpclient.JoinText(windowsBlocks)

	if appsText == "" {
		return AppResolution{}, ErrNoAppsRunning
	}

	prompt := fmt.Sprintf(
		"The user wants to interact with an application described as: %q\n\n"+
			"Here is the list of currently running applications:\n%s\n\n"+
			"Here is the list of currently open windows:\n%s\n\n"+
			"Pick the application from the list above that best matches the user's description. "+
			"Respond with strictly JSON: {\"name\": \"<exact name from the list>\", \"pid\": <int>} "+
			"or {\"name\": null, \"pid\": null} if nothing matches. No other text.",
		userInput, appsText, windowsText,
	)

	resp, err := r.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return AppResolution{}, fmt.Errorf("resolver: app resolution LLM call: %w", err)
	}

	raw, ok := jsonextract.FromProse(resp.Content)
	if !ok {
		return AppResolution{}, fmt.Errorf("resolver: app resolution: no JSON object in LLM response")
	}
	var parsed appNamePidResponse
	if err := decodeJSON(raw, &parsed); err != nil {
		return AppResolution{}, fmt.Errorf("resolver: app resolution: malformed JSON: %w", err)
	}
	if parsed.Name == nil {
		return AppResolution{}, fmt.Errorf("resolver: app %q not found among running apps", userInput)
	}

	// Post-validate: never trust the LLM to echo accurately.
	if !containsLine(appsText, *parsed.Name) {
		return AppResolution{}, fmt.Errorf("resolver: LLM returned app name %q not present in app list", *parsed.Name)
	}

	pid := 0
	if parsed.PID != nil {
		pid = *parsed.PID
	}
	result := AppResolution{Name: *parsed.Name, PID: pid}
	r.cache.Put(userInput, result)
	if r.EventRecorder != nil {
		r.EventRecorder(result.Name, result.PID)
	}
	return result, nil
}

// EvictForNodeRetry clears the app cache entry a failing node's parameters
// would have used, per the automatic eviction rule in spec §4.4/§4.1: only
// FocusWindow(AppName) and TakeScreenshot(target) trigger eviction.
func (r *AppResolver) EvictForNodeRetry(userInput string) {
	r.cache.Evict(userInput)
}
