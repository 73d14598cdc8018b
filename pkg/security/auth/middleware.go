package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/faults"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/telemetry/logging"
)

type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const apiKeyInfoKey contextKey = "api_key_info"

// Middleware rejects requests without a valid key with a 401 in the
// OpenAI error format and stores the key's info in the context of those
// it admits.
//
// header names where the key is read from. For Authorization the Bearer
// scheme is required; any other header carries the bare key.
func Middleware(validator *APIKeyValidator, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = proxy.AuthorizationHeader
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r, header)
			info, err := validator.Validate(key)
			if err != nil {
				logger.WarnContext(r.Context(), "authentication failed",
					"error", err,
					"key", logging.RedactAPIKey(key),
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				proxy.WriteError(w, faults.Unauthorized(unauthorizedMessage(err)), logging.RequestIDFrom(r.Context()))
				return
			}

			logger.DebugContext(r.Context(), "API key authenticated", "user_id", info.UserID)
			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request, header string) string {
	if strings.EqualFold(header, proxy.AuthorizationHeader) {
		return proxy.ExtractAPIKey(r)
	}
	return strings.TrimSpace(r.Header.Get(header))
}

func unauthorizedMessage(err error) string {
	if errors.Is(err, ErrMissingKey) {
		return "Missing API key. Provide it as a Bearer token in the Authorization header."
	}
	return "Invalid API key provided."
}

// GetAPIKeyInfo returns the authenticated key's info.
func GetAPIKeyInfo(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyInfoKey).(*APIKeyInfo)
	return info, ok
}
