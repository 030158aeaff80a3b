package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/observability"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// Middleware creates HTTP middleware from an AuthChain and optional
// RateLimiter. Requests to bypass paths pass through untouched.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				logger.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				writeError(w, http.StatusUnauthorized, api.NewAuthError("authentication required"))
				return
			}

			if result.Identity.Subject == "" {
				logger.Error("authenticator returned identity with empty subject", "method", result.Identity.Method)
				writeError(w, http.StatusInternalServerError, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					logger.Warn("rate limit exceeded", "subject", result.Identity.Subject)
					observability.RateLimitRejectedTotal.WithLabelValues(result.Identity.Method).Inc()
					writeError(w, http.StatusTooManyRequests, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			logger.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"method", result.Identity.Method,
				"path", r.URL.Path,
			)
			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, apiErr *api.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}
