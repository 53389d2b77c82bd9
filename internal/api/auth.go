package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled bool
	Token   string
}

// AuthMiddleware enforces bearer-token authentication when enabled.
// Requests must carry "Authorization: Bearer <token>"; the X-API-Key header
// is accepted as an equivalent for non-browser clients. The root and health
// endpoints always bypass authentication.
func AuthMiddleware(authCfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r.URL.Path) || !authCfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		// WebSocket handshakes authenticate in the upgrade handler, where
		// a query-parameter token is also accepted: browsers cannot set
		// headers on the handshake request.
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			logging.SecurityEvent("unauthorized_request", "auth",
				"path", r.URL.Path,
				"reason", "missing token")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}

		if !constantTimeCompare(token, authCfg.Token) {
			logging.SecurityEvent("unauthorized_request", "auth",
				"path", r.URL.Path,
				"reason", "invalid token")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bearer token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the credential from the Authorization header or the
// X-API-Key fallback.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// isPublicEndpoint reports whether the path is accessible without
// authentication.
func isPublicEndpoint(path string) bool {
	return path == "/" || path == "/health"
}

// ValidateAuthConfig validates the authentication configuration.
func ValidateAuthConfig(cfg AuthConfig) error {
	if cfg.Enabled && cfg.Token == "" {
		return fmt.Errorf("auth token is required when authentication is enabled")
	}
	if cfg.Enabled && len(cfg.Token) < 16 {
		return fmt.Errorf("auth token must be at least 16 characters (got %d)", len(cfg.Token))
	}
	return nil
}

// constantTimeCompare compares two strings in constant time so the
// comparison duration leaks nothing about where they differ.
func constantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
