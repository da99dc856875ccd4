// Package kit carries the transport-agnostic endpoint plumbing: an Endpoint
// is one logical operation, middlewares wrap it, and transport adapters
// (HTTP handlers, MCP tools) decode into it.
package kit

import "context"

// Endpoint is a single request/response operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares so the first listed runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
