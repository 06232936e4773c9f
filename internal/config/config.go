// Package config aggregates every sub-configuration a Clickweave run needs:
// where the workflow file lives, how to spawn the MCP server, which backend
// serves the agent/VLM/supervision roles, the project directory, trace
// defaults, and the execution mode (spec §4.4's Test vs Run distinction).
package config

import (
	"github.com/clickweave-dev/clickweave/internal/mcpclient"
	"github.com/clickweave-dev/clickweave/internal/resolver"
)

// ProviderConfig describes one OpenAI-shaped backend. APIKey is never
// serialized — it is populated only from an environment variable, so a
// provider key never round-trips through a config file on disk.
type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"-"`
}

// MCPConfig describes the child process the run loop dials at the start of
// every run.
type MCPConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ToDescriptor converts MCPConfig to the mcpclient dial descriptor.
func (m MCPConfig) ToDescriptor() mcpclient.CommandDescriptor {
	return mcpclient.CommandDescriptor{Command: m.Command, Args: m.Args, Env: m.Env}
}

// TraceConfig configures where execution trace directories land.
type TraceConfig struct {
	Root string `json:"root,omitempty"` // default: ProjectRoot(ProjectPath)
}

// ObsConfig configures optional OpenTelemetry span export, independent of
// the JSONL event trace every run always writes.
type ObsConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// Config is the root configuration for a Clickweave run.
type Config struct {
	WorkflowPath string `json:"workflow_path"`
	ProjectPath  string `json:"project_path,omitempty"`

	MCP MCPConfig `json:"mcp"`

	Agent       ProviderConfig  `json:"agent"`
	VLM         *ProviderConfig `json:"vlm,omitempty"`
	Supervision *ProviderConfig `json:"supervision,omitempty"`

	Mode              resolver.Mode `json:"mode,omitempty"` // "Run" (default) or "Test"
	DecisionCachePath string        `json:"decision_cache_path,omitempty"`

	Trace TraceConfig `json:"trace,omitempty"`
	Obs   ObsConfig   `json:"obs,omitempty"`
}
