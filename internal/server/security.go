package server

import (
	"net/http"
	"regexp"
	"strings"
)

// CSPConfig holds Content-Security-Policy configuration. The API serves
// JSON only, so the usable directive set is small.
type CSPConfig struct {
	// DefaultSrc is the fallback source list for all directives.
	DefaultSrc []string

	// ConnectSrc lists valid targets for fetch and WebSocket connections.
	ConnectSrc []string

	// FrameAncestors lists parents allowed to embed responses.
	FrameAncestors []string

	// BaseURI restricts URLs usable in a <base> element.
	BaseURI []string

	// FormAction restricts form submission targets.
	FormAction []string

	// UpgradeInsecureRequests forces HTTPS for subresources.
	UpgradeInsecureRequests bool
}

// APICSPConfig returns the strict policy for REST endpoints: nothing may be
// loaded, embedded, or submitted.
func APICSPConfig() CSPConfig {
	return CSPConfig{
		DefaultSrc:     []string{"'none'"},
		FrameAncestors: []string{"'none'"},
		BaseURI:        []string{"'none'"},
		FormAction:     []string{"'none'"},
	}
}

// BuildCSPHeader renders the policy as a Content-Security-Policy header
// value. An empty config renders to an empty string.
func (cfg CSPConfig) BuildCSPHeader() string {
	var directives []string
	if len(cfg.DefaultSrc) > 0 {
		directives = append(directives, "default-src "+strings.Join(cfg.DefaultSrc, " "))
	}
	if len(cfg.ConnectSrc) > 0 {
		directives = append(directives, "connect-src "+strings.Join(cfg.ConnectSrc, " "))
	}
	if len(cfg.FrameAncestors) > 0 {
		directives = append(directives, "frame-ancestors "+strings.Join(cfg.FrameAncestors, " "))
	}
	if len(cfg.BaseURI) > 0 {
		directives = append(directives, "base-uri "+strings.Join(cfg.BaseURI, " "))
	}
	if len(cfg.FormAction) > 0 {
		directives = append(directives, "form-action "+strings.Join(cfg.FormAction, " "))
	}
	if cfg.UpgradeInsecureRequests {
		directives = append(directives, "upgrade-insecure-requests")
	}
	return strings.Join(directives, "; ")
}

// SecurityHeadersWithCSP adds the standard security headers plus the
// configured Content-Security-Policy to every response.
func SecurityHeadersWithCSP(cfg CSPConfig, next http.Handler) http.Handler {
	cspHeader := cfg.BuildCSPHeader()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if cspHeader != "" {
			w.Header().Set("Content-Security-Policy", cspHeader)
		}
		next.ServeHTTP(w, r)
	})
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_:.-]*$`)

// ValidateIdentifier reports whether a string is usable as a book, record,
// or Strong's identifier in a URL path or query: it must start with an
// alphanumeric or underscore, continue with alphanumerics, underscore,
// colon, dot, or hyphen, and stay within 64 characters. Compound Strong's
// codes like "G2962:G2316" pass; path traversal and injection inputs do
// not.
func ValidateIdentifier(input string) bool {
	if len(input) == 0 || len(input) > 64 {
		return false
	}
	return identifierPattern.MatchString(input)
}

// SanitizeUserInput trims whitespace and strips control characters (except
// newline and tab) from free-form user input such as search terms.
func SanitizeUserInput(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 0x20 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// LimitStringLength truncates a string to at most maxLength bytes.
func LimitStringLength(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	return input[:maxLength]
}

// ValidateContentType checks a Content-Type header against an allowed
// list, ignoring media-type parameters.
func ValidateContentType(contentType string, allowed []string) bool {
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	for _, a := range allowed {
		if strings.EqualFold(mediaType, a) {
			return true
		}
	}
	return false
}
