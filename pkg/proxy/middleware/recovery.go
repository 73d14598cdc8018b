package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/relay/pkg/faults"
	"mercator-hq/relay/pkg/proxy"
)

// RecoveryMiddleware recovers from handler panics and answers with a 500
// in the OpenAI error format. The stack is logged but never sent to the
// client. http.ErrAbortHandler is re-panicked so net/http can abort the
// connection as it intends.
//
// A panic inside a request that already has a lifecycle coordinator is
// handled by the coordinator's error boundary; this middleware catches
// everything outside it.
//
// Example usage:
//
//	handler = RecoveryMiddleware(logger)(handler)
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				f := faults.Internal("An internal error occurred. Please try again later.",
					fmt.Errorf("panic: %v", rec))
				proxy.WriteError(w, f, GetRequestID(r.Context()))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
