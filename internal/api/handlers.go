package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/token"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xref"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/server"
)

// Version is stamped by the CLI at startup.
var Version = "dev"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Uptime  string          `json:"uptime"`
	Index   alignment.Stats `json:"index"`
}

// BookSummary describes one indexed book.
type BookSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Verses      int    `json:"verses"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// VerseView is the token listing for one verse.
type VerseView struct {
	Ref       string         `json:"ref"`
	PlainText string         `json:"plain_text"`
	Tokens    []*token.Token `json:"tokens"`
	Groups    []*token.Group `json:"groups"`
}

// AlignmentView is the alignment lookup response. Alignment is null for an
// untagged position or an unindexed verse; neither is an error.
type AlignmentView struct {
	Ref       string            `json:"ref"`
	Position  int               `json:"position"`
	Alignment *token.Attachment `json:"alignment"`
	Group     *token.Group      `json:"group,omitempty"`
}

// ResolveRequest is the request body for POST /resolve.
type ResolveRequest struct {
	Ref      string `json:"ref"`
	Position int    `json:"position"`
	Text     string `json:"text,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"name":    "JuniperInterlinear API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /books",
			"GET /verses?ref=TIT+1:1",
			"GET /alignment?ref=TIT+1:1&position=0",
			"GET /search/strong?id=G2316",
			"GET /search/lemma?q=θεός",
			"POST /resolve",
			"GET /jobs",
			"POST /jobs",
			"GET /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Index:   s.index.Stats(),
	})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	verseCounts := make(map[string]int)
	var order []string
	for _, rec := range s.index.Records() {
		if _, seen := verseCounts[rec.Ref.Book]; !seen {
			order = append(order, rec.Ref.Book)
		}
		verseCounts[rec.Ref.Book]++
	}

	titles := make(map[string]string)
	prints := make(map[string]string)
	if s.store != nil {
		if infos, err := s.store.Books(r.Context()); err == nil {
			for _, info := range infos {
				titles[info.ID] = info.Title
				prints[info.ID] = info.Fingerprint
			}
		} else {
			logging.WarnContext(r.Context(), "listing stored books failed", "error", err)
		}
	}

	books := make([]BookSummary, 0, len(order))
	for _, id := range order {
		books = append(books, BookSummary{
			ID:          id,
			Title:       titles[id],
			Verses:      verseCounts[id],
			Fingerprint: prints[id],
		})
	}
	respondTotal(w, http.StatusOK, books, len(books))
}

func (s *Server) handleVerse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	vref, ok := verseRefParam(w, r)
	if !ok {
		return
	}

	rec, found := s.index.Verse(vref)
	if !found {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Verse not indexed: "+vref.String())
		return
	}

	respond(w, http.StatusOK, VerseView{
		Ref:       rec.Ref.String(),
		PlainText: rec.PlainText,
		Tokens:    rec.Tokens,
		Groups:    rec.Groups,
	})
}

func (s *Server) handleAlignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	vref, ok := verseRefParam(w, r)
	if !ok {
		return
	}
	position, err := strconv.Atoi(r.URL.Query().Get("position"))
	if err != nil || position < 0 {
		respondError(w, http.StatusBadRequest, "INVALID_POSITION", "position must be a non-negative integer")
		return
	}

	view := AlignmentView{Ref: vref.String(), Position: position}
	if att, found := s.index.Alignment(vref, position); found {
		view.Alignment = att
		if rec, known := s.index.Verse(vref); known {
			view.Group = rec.Group(att.GroupID)
		}
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleStrong(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !server.ValidateIdentifier(id) {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "id must be a Strong's identifier")
		return
	}

	locs := s.index.FindByStrong(id)
	respondTotal(w, http.StatusOK, locs, len(locs))
}

func (s *Server) handleLemma(w http.ResponseWriter, r *http.Request) {
	q := server.SanitizeUserInput(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "INVALID_QUERY", "q must be a lemma")
		return
	}

	locs := s.index.FindByLemma(q)
	respondTotal(w, http.StatusOK, locs, len(locs))
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	vref, err := ref.ParseRef(req.Ref)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REF", err.Error())
		return
	}

	result, err := s.resolver.Resolve(r.Context(), xref.Request{
		Ref:      vref,
		Position: req.Position,
		Text:     server.SanitizeUserInput(req.Text),
		Limit:    req.Limit,
	})
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// verseRefParam parses and validates the ref query parameter down to a
// single verse.
func verseRefParam(w http.ResponseWriter, r *http.Request) (*ref.Ref, bool) {
	raw := server.SanitizeUserInput(r.URL.Query().Get("ref"))
	if raw == "" {
		respondError(w, http.StatusBadRequest, "MISSING_REF", "ref query parameter is required")
		return nil, false
	}

	vref, err := ref.ParseRef(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REF", err.Error())
		return nil, false
	}
	if vref.Chapter == 0 || vref.Verse == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REF", "ref must name a single verse, e.g. TIT 1:1")
		return nil, false
	}
	return vref, true
}

// respondCoreError maps core error types onto HTTP statuses. Validation
// failures are the caller's bug (400); missing resources are 404;
// everything else is a 500 with the detail kept out of the response.
func respondCoreError(w http.ResponseWriter, err error) {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, "VALIDATION_FAILED", verr.Error())
		return
	}
	var nferr *errors.NotFoundError
	if errors.As(err, &nferr) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", nferr.Error())
		return
	}
	logging.Error("request failed", "error", err)
	respondError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
}

func respond(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondTotal(w http.ResponseWriter, status int, data any, total int) {
	writeResponse(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeResponse(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}
