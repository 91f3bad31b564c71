package api

import (
	"net/http"

	"github.com/signalsfoundry/fabric-planner/internal/logging"
)

const requestIDHeader = "X-Request-Id"

// RequestID ensures every request carries a request_id: inbound
// headers are honoured, otherwise one is generated. The ID is attached
// to the request context, to a per-request logger, and echoed back on
// the response.
func RequestID(base logging.Logger, next http.Handler) http.Handler {
	if base == nil {
		base = logging.Noop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
