package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPICSPConfig(t *testing.T) {
	cfg := APICSPConfig()

	if len(cfg.DefaultSrc) != 1 || cfg.DefaultSrc[0] != "'none'" {
		t.Errorf("DefaultSrc = %v, want ['none']", cfg.DefaultSrc)
	}
	if len(cfg.FrameAncestors) != 1 || cfg.FrameAncestors[0] != "'none'" {
		t.Errorf("FrameAncestors = %v, want ['none']", cfg.FrameAncestors)
	}
}

func TestBuildCSPHeader(t *testing.T) {
	tests := []struct {
		name string
		cfg  CSPConfig
		want string
	}{
		{
			name: "empty config",
			cfg:  CSPConfig{},
			want: "",
		},
		{
			name: "api config",
			cfg:  APICSPConfig(),
			want: "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'",
		},
		{
			name: "upgrade insecure",
			cfg: CSPConfig{
				DefaultSrc:              []string{"'self'"},
				UpgradeInsecureRequests: true,
			},
			want: "default-src 'self'; upgrade-insecure-requests",
		},
		{
			name: "connect sources",
			cfg: CSPConfig{
				ConnectSrc: []string{"'self'", "wss://example.org"},
			},
			want: "connect-src 'self' wss://example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BuildCSPHeader(); got != tt.want {
				t.Errorf("BuildCSPHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeadersWithCSP(t *testing.T) {
	handler := SecurityHeadersWithCSP(APICSPConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("Content-Security-Policy = %q, want default-src 'none'", csp)
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"TIT", true},
		{"1TI", true},
		{"G2316", true},
		{"G2962:G2316", true},
		{"tit01-abc4", true},
		{"rc.bible.kt.god", true},
		{"", false},
		{"-leading-hyphen", false},
		{":leading-colon", false},
		{"has space", false},
		{"../etc/passwd", false},
		{"a;drop table", false},
		{strings.Repeat("x", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidateIdentifier(tt.input); got != tt.want {
				t.Errorf("ValidateIdentifier(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeUserInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trims whitespace", "  λόγος  ", "λόγος"},
		{"strips null bytes", "the\x00word", "theword"},
		{"strips control chars", "the\x01\x02word", "theword"},
		{"keeps newline and tab", "line1\n\tline2", "line1\n\tline2"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUserInput(tt.input); got != tt.want {
				t.Errorf("SanitizeUserInput(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLimitStringLength(t *testing.T) {
	if got := LimitStringLength("short", 10); got != "short" {
		t.Errorf("LimitStringLength = %q, want %q", got, "short")
	}
	if got := LimitStringLength("0123456789abc", 10); got != "0123456789" {
		t.Errorf("LimitStringLength = %q, want %q", got, "0123456789")
	}
}

func TestValidateContentType(t *testing.T) {
	allowed := []string{"application/json"}

	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"text/html", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidateContentType(tt.contentType, allowed); got != tt.want {
			t.Errorf("ValidateContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
