package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/codescope-api/internal/api/shared"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
)

// TraceIDHeader carries the trace ID in both directions.
const TraceIDHeader = "X-Trace-ID"

// NewTraceMiddleware tags each request with a trace ID and installs a logger
// carrying it. A well-formed inbound X-Trace-ID is kept so a client can
// correlate a submission with worker logs; anything else is replaced.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if inbound := r.Header.Get(TraceIDHeader); shared.ValidTraceID(inbound) {
				ctx = shared.WithTraceID(ctx, inbound)
			} else {
				ctx = shared.SetTraceID(ctx)
			}
			traceID := shared.GetTraceID(ctx)

			reqLog := base.With("trace_id", traceID)
			reqLog.Debug("request received", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

			w.Header().Set(TraceIDHeader, traceID)
			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, reqLog)))
		})
	}
}
