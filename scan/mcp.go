package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/prowl/kit"
)

// SubmitArgs is the scan_submit tool input.
type SubmitArgs struct {
	Username  string   `json:"username"`
	Providers []string `json:"providers,omitempty"`
}

// StatusArgs is the scan_status tool input.
type StatusArgs struct {
	JobID string `json:"job_id"`
	Limit *int   `json:"limit,omitempty"`
}

// CancelArgs is the scan_cancel tool input.
type CancelArgs struct {
	JobID string `json:"job_id"`
}

// RegisterMCPTools exposes scan_submit, scan_status, and scan_cancel on the
// MCP server. Face references are not accepted over MCP; the HTTP surface
// carries those.
func RegisterMCPTools(srv *mcp.Server, engine *Engine) {
	kit.RegisterMCPTool(srv,
		&mcp.Tool{
			Name:        "scan_submit",
			Description: "Start a username scan across the registered providers. Returns a job_id to poll.",
		},
		func(ctx context.Context, req any) (any, error) {
			args := req.(*SubmitArgs)
			id, err := engine.Submit(Request{Username: args.Username, Providers: args.Providers})
			if err != nil {
				return nil, err
			}
			return map[string]string{"job_id": id}, nil
		},
		decodeInto[SubmitArgs],
	)

	kit.RegisterMCPTool(srv,
		&mcp.Tool{
			Name:        "scan_status",
			Description: "Poll a scan job: state, counts, and results so far. limit caps returned results; 0 returns counts only.",
		},
		func(ctx context.Context, req any) (any, error) {
			args := req.(*StatusArgs)
			limit := -1
			if args.Limit != nil {
				limit = *args.Limit
			}
			view, ok := engine.Get(args.JobID, limit)
			if !ok {
				return nil, fmt.Errorf("job %s not found", args.JobID)
			}
			return view, nil
		},
		decodeInto[StatusArgs],
	)

	kit.RegisterMCPTool(srv,
		&mcp.Tool{
			Name:        "scan_cancel",
			Description: "Cancel a running scan job. Already-collected results stay available.",
		},
		func(ctx context.Context, req any) (any, error) {
			args := req.(*CancelArgs)
			if !engine.Cancel(args.JobID) {
				return nil, fmt.Errorf("job %s not found", args.JobID)
			}
			return map[string]string{"job_id": args.JobID, "state": "cancelling"}, nil
		},
		decodeInto[CancelArgs],
	)
}

func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var args T
	raw := req.Params.Arguments
	if len(raw) == 0 {
		return nil, errors.New("missing arguments")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &args}, nil
}
