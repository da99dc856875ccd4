package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/prowl/idgen"
	"github.com/hazyhaar/prowl/kit"
)

var newTraceID = idgen.Prefixed("req_", idgen.Default)

// TraceID assigns each request a trace ID, stores it in the context,
// echoes it in the X-Trace-ID response header, and installs a
// trace-scoped logger under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-ID")
		if id == "" {
			id = newTraceID()
		}
		ctx := kit.WithTraceID(r.Context(), id)
		logger := slog.Default().With("trace_id", id)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		w.Header().Set("X-Trace-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
