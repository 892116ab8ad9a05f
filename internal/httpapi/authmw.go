package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const apiKeyHeader = "X-Engine-Api-Key"

// RequireAPIKey rejects any request that doesn't present apiKey in the
// X-Engine-Api-Key header with an {"ok":false,"error":...} envelope. The
// engine is a service-to-service API with no browser session to maintain,
// so a single static shared secret is the whole auth model.
func RequireAPIKey(apiKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				logger.Warn("rejected request with missing or invalid api key", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
