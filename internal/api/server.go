// Package api provides the JuniperInterlinear REST and WebSocket API
// server: token listings per verse, alignment lookups, Strong's and lemma
// search, word-interaction resolution, and asynchronous index-build jobs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xref"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/resources"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/server"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/store"
)

// Server serves the alignment index and word-interaction resolver over
// HTTP and WebSocket.
type Server struct {
	cfg      Config
	index    *alignment.Index
	resolver *xref.Resolver
	store    *store.Store
	hub      *Hub
	jobs     *JobStore
	started  time.Time
}

// New builds a server from configuration: it opens the index database when
// one is configured (loading the persisted index), wires the annotation
// collaborators, and prepares the resolver.
func New(cfg Config) (*Server, error) {
	idx := alignment.NewIndex()

	var st *store.Store
	if cfg.DBPath != "" {
		var err error
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open index database: %w", err)
		}
		loaded, err := st.LoadIndex(context.Background())
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("load persisted index: %w", err)
		}
		idx.Merge(loaded)
	}

	s := NewWithIndex(cfg, idx)
	s.store = st
	return s, nil
}

// NewWithIndex builds a server over an existing in-memory index. Tests and
// the CLI's ad-hoc serve path use this directly.
func NewWithIndex(cfg Config, idx *alignment.Index) *Server {
	// Anchor the sources directory now so job path containment does not
	// shift if the working directory changes later.
	if cfg.SourcesDir != "" {
		cfg.SourcesDir = server.AbsPath(cfg.SourcesDir)
	}

	var collaborators []xref.Collaborator
	if cfg.NotesPath != "" {
		collaborators = append(collaborators, resources.NewNotes(cfg.NotesPath))
	}
	if cfg.WordLinksPath != "" {
		collaborators = append(collaborators, resources.NewWordLinks(cfg.WordLinksPath))
	}
	if cfg.QuestionsPath != "" {
		collaborators = append(collaborators, resources.NewQuestions(cfg.QuestionsPath))
	}

	opts := []xref.Option{xref.WithCollaborators(collaborators...)}
	if cfg.ResolveTimeout > 0 {
		opts = append(opts, xref.WithTimeout(cfg.ResolveTimeout))
	}

	s := &Server{
		cfg:      cfg,
		index:    idx,
		resolver: xref.NewResolver(idx, opts...),
		jobs:     NewJobStore(),
		started:  time.Now(),
	}
	s.hub = NewHub(s)
	return s
}

// Close releases the server's resources.
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Start validates the configuration, starts the WebSocket hub, and serves
// until the listener fails.
func (s *Server) Start() error {
	cfg := s.cfg

	if err := ValidateAuthConfig(cfg.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}

	go s.hub.Run()

	protocol := "http"
	wsProtocol := "ws"
	if cfg.TLS.Enabled {
		protocol = "https"
		wsProtocol = "wss"
		logging.Info("TLS enabled", "cert_file", cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	logging.ServerStartup("rest_api", protocol, cfg.Port,
		"websocket_protocol", wsProtocol,
		"database", cfg.DBPath,
		"index_verses", s.index.Stats().Verses)

	addr := fmt.Sprintf(":%d", cfg.Port)
	if cfg.TLS.Enabled {
		return http.ListenAndServeTLS(addr, cfg.TLS.CertFile, cfg.TLS.KeyFile, s.Handler())
	}
	return http.ListenAndServe(addr, s.Handler())
}

// Handler builds the middleware chain around the route table: security
// headers innermost, then auth, rate limiting, CORS, and request logging
// outermost.
func (s *Server) Handler() http.Handler {
	cfg := s.cfg

	var handler http.Handler = server.SecurityHeadersWithCSP(server.APICSPConfig(), s.routes())

	if cfg.Auth.Enabled {
		handler = AuthMiddleware(cfg.Auth, handler)
		logging.SecurityEvent("authentication_configured", "api", "enabled", true)
	} else {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", false,
			"note", "all requests allowed")
	}

	if cfg.RateLimitRequests > 0 {
		rlCfg := RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		}
		if rlCfg.BurstSize == 0 {
			rlCfg.BurstSize = 10
		}
		handler = NewRateLimiter(rlCfg).Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", rlCfg.RequestsPerMinute,
			"burst_size", rlCfg.BurstSize)
	}

	handler = server.CORSMiddlewareWithConfig(server.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}, handler)
	if len(cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}

	return logging.CombinedMiddleware(handler)
}

// routes configures all HTTP routes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/books", s.handleBooks)
	mux.HandleFunc("/verses", s.handleVerse)
	mux.HandleFunc("/alignment", s.handleAlignment)
	mux.HandleFunc("/search/strong", s.handleStrong)
	mux.HandleFunc("/search/lemma", s.handleLemma)
	mux.HandleFunc("/resolve", s.handleResolve)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)

	return mux
}
