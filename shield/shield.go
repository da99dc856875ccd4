// Package shield provides the HTTP middleware stack for the prowl API:
// security headers, request body caps, per-request trace IDs, and
// per-IP rate limiting.
//
// The pieces compose with chi:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack() {
//		r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey carries a request-scoped logger through the middleware chain.
const LoggerKey contextKey = "shield_logger"

// APIStack returns the default middleware chain for the prowl HTTP API,
// outermost first.
func APIStack() []func(http.Handler) http.Handler {
	limiter := NewIPRateLimiter(IPRateConfig{})
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(8 << 20),
		TraceID,
		limiter.Middleware,
	}
}

// GetLogger returns the request-scoped logger, or slog.Default when the
// chain did not install one.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
