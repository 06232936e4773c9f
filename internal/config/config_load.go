package config

import (
	"encoding/json"
	"fmt"
	"os"

	json5 "github.com/titanous/json5"

	"github.com/clickweave-dev/clickweave/internal/resolver"
)

// DefaultConfigFile is the filename Load falls back to when neither a flag
// nor CLICKWEAVE_CONFIG names one.
const DefaultConfigFile = "clickweave.json"

// Default returns a Config with sensible defaults: Run mode, the stock MCP
// server command, and no VLM/supervision backend configured.
func Default() *Config {
	return &Config{
		MCP: MCPConfig{
			Command: "clickweave-mcp-server",
		},
		Agent: ProviderConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Mode: resolver.ModeRun,
		Obs: ObsConfig{
			Protocol:    "grpc",
			ServiceName: "clickweave",
		},
	}
}

// ResolveConfigPath picks the config file path: an explicit flag value wins,
// then CLICKWEAVE_CONFIG, then DefaultConfigFile.
func ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("CLICKWEAVE_CONFIG"); v != "" {
		return v
	}
	return DefaultConfigFile
}

// Load reads config from a JSON (or JSON5) file, applies env-var secret
// overrides, and falls back to Default() plus env overrides if the file
// does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		cfg5 := Default()
		if err5 := json5.Unmarshal(data, cfg5); err5 != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = cfg5
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays the handful of secrets this config carries.
// API keys are never read from the file (no json field accepts them); they
// come from the environment only, and env always wins over any stray value
// a hand-edited file might carry.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLICKWEAVE_AGENT_API_KEY"); v != "" {
		c.Agent.APIKey = v
	}
	if v := os.Getenv("CLICKWEAVE_VLM_API_KEY"); v != "" {
		if c.VLM == nil {
			c.VLM = &ProviderConfig{}
		}
		c.VLM.APIKey = v
	}
	if v := os.Getenv("CLICKWEAVE_SUPERVISION_API_KEY"); v != "" {
		if c.Supervision == nil {
			c.Supervision = &ProviderConfig{}
		}
		c.Supervision.APIKey = v
	}
	if v := os.Getenv("CLICKWEAVE_WORKFLOW"); v != "" {
		c.WorkflowPath = v
	}
	if v := os.Getenv("CLICKWEAVE_PROJECT_PATH"); v != "" {
		c.ProjectPath = v
	}
	if v := os.Getenv("CLICKWEAVE_MODE"); v != "" {
		c.Mode = resolver.Mode(v)
	}
}
