package resolver

import (
	"context"

	"github.com/clickweave-dev/clickweave/internal/mcpclient"
)

// ToolCaller is the narrow MCP surface resolvers need: invoking a named
// tool and getting back content blocks. Satisfied by *mcpclient.Client;
// defined here as an interface so resolver tests can stub it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error)
}
