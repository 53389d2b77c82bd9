package api

import "time"

// Config holds server configuration.
type Config struct {
	Port           int
	DBPath         string        // SQLite index database; empty keeps the index in memory only
	SourcesDir     string        // directory index-build jobs may read source documents from
	NotesPath      string        // explanatory-notes resource (file, directory, or bundle)
	WordLinksPath  string        // glossary-link resource
	QuestionsPath  string        // comprehension-questions resource
	ResolveTimeout time.Duration // per-collaborator timeout during resolution (0 = resolver default)

	RateLimitRequests int        // requests per minute (0 = disabled)
	RateLimitBurst    int        // burst size
	Auth              AuthConfig // authentication configuration
	TLS               TLSConfig  // TLS configuration
	AllowedOrigins    []string   // CORS and WebSocket allowed origins (empty = allow all)
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}
