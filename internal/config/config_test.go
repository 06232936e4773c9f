package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clickweave-dev/clickweave/internal/resolver"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != resolver.ModeRun {
		t.Fatalf("expected default mode Run, got %s", cfg.Mode)
	}
	if cfg.MCP.Command == "" {
		t.Fatal("expected a default MCP command")
	}
}

func TestLoad_ParsesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clickweave.json")
	data := `{
		"workflow_path": "workflow.json",
		"mcp": {"command": "my-mcp-server", "args": ["--foo"]},
		"agent": {"base_url": "https://example.test/v1", "model": "gpt-test"},
		"mode": "Test"
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkflowPath != "workflow.json" {
		t.Fatalf("got workflow path %q", cfg.WorkflowPath)
	}
	if cfg.MCP.Command != "my-mcp-server" || len(cfg.MCP.Args) != 1 || cfg.MCP.Args[0] != "--foo" {
		t.Fatalf("got MCP config %+v", cfg.MCP)
	}
	if cfg.Agent.BaseURL != "https://example.test/v1" || cfg.Agent.Model != "gpt-test" {
		t.Fatalf("got agent config %+v", cfg.Agent)
	}
	if cfg.Mode != resolver.ModeTest {
		t.Fatalf("expected Test mode, got %s", cfg.Mode)
	}
}

func TestLoad_ParsesJSON5TrailingComma(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clickweave.json5")
	data := "{\n  \"workflow_path\": \"workflow.json\",\n  // a comment\n  \"mcp\": {\"command\": \"my-mcp-server\",},\n}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MCP.Command != "my-mcp-server" {
		t.Fatalf("got MCP command %q", cfg.MCP.Command)
	}
}

func TestApplyEnvOverrides_APIKeysNeverComeFromFile(t *testing.T) {
	t.Setenv("CLICKWEAVE_AGENT_API_KEY", "secret-agent-key")
	t.Setenv("CLICKWEAVE_VLM_API_KEY", "secret-vlm-key")

	cfg := Default()
	cfg.applyEnvOverrides()

	if cfg.Agent.APIKey != "secret-agent-key" {
		t.Fatalf("got agent API key %q", cfg.Agent.APIKey)
	}
	if cfg.VLM == nil || cfg.VLM.APIKey != "secret-vlm-key" {
		t.Fatalf("got VLM config %+v", cfg.VLM)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CLICKWEAVE_CONFIG", "")
	if got := ResolveConfigPath("flag.json"); got != "flag.json" {
		t.Fatalf("flag should win, got %q", got)
	}

	t.Setenv("CLICKWEAVE_CONFIG", "env.json")
	if got := ResolveConfigPath(""); got != "env.json" {
		t.Fatalf("env var should be used when no flag, got %q", got)
	}

	t.Setenv("CLICKWEAVE_CONFIG", "")
	if got := ResolveConfigPath(""); got != DefaultConfigFile {
		t.Fatalf("expected default %q, got %q", DefaultConfigFile, got)
	}
}

func TestToDescriptor(t *testing.T) {
	m := MCPConfig{Command: "cmd", Args: []string{"-a"}, Env: map[string]string{"K": "V"}}
	d := m.ToDescriptor()
	if d.Command != "cmd" || len(d.Args) != 1 || d.Env["K"] != "V" {
		t.Fatalf("got %+v", d)
	}
}
