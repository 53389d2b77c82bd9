package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xref"
)

func word(text string) *markup.Word {
	return &markup.Word{Text: text}
}

func text(value string) *markup.Text {
	return &markup.Text{Value: value}
}

func milestone(strong, lemma, content string, children ...markup.Node) *markup.Milestone {
	return &markup.Milestone{
		Strong:      strong,
		Lemma:       lemma,
		Content:     content,
		Occurrence:  "1",
		Occurrences: "1",
		Children:    children,
	}
}

// testIndex builds a one-verse index: TIT 1:1 "Paul, a servant of God."
// with three aligned words (positions 0, 3 and 5).
func testIndex(t *testing.T) *alignment.Index {
	t.Helper()

	nodes := []markup.Node{
		milestone("G39720", "Παῦλος", "Παῦλος", word("Paul")),
		text(", "),
		milestone("G14010", "δοῦλος", "δοῦλος",
			text("a "),
			word("servant"),
		),
		text(" "),
		milestone("G23160", "θεός", "Θεοῦ",
			text("of "),
			word("God"),
		),
		text("."),
	}

	idx := alignment.NewIndex()
	if err := idx.AddVerse(nodes, ref.MustParse("TIT 1:1")); err != nil {
		t.Fatalf("AddVerse() error = %v", err)
	}
	return idx
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

// doJSON runs one request through the handler and decodes the response
// envelope.
func doJSON(t *testing.T, h http.Handler, method, target string, body any) (int, envelope) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return rr.Code, env
}

func unmarshalData(t *testing.T, env envelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v (data %q)", err, string(env.Data))
	}
}

func TestHandleRoot(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))
	h := s.Handler()

	status, env := doJSON(t, h, http.MethodGet, "/", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("GET / = %d success=%v, want 200 success", status, env.Success)
	}

	var info map[string]any
	unmarshalData(t, env, &info)
	if info["name"] != "JuniperInterlinear API" {
		t.Errorf("name = %v, want JuniperInterlinear API", info["name"])
	}

	status, env = doJSON(t, h, http.MethodGet, "/no-such-endpoint", nil)
	if status != http.StatusNotFound {
		t.Errorf("GET /no-such-endpoint = %d, want 404", status)
	}
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestHandleHealth(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))

	status, env := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", status)
	}

	var health HealthInfo
	unmarshalData(t, env, &health)
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.Index.Verses != 1 {
		t.Errorf("index verses = %d, want 1", health.Index.Verses)
	}
	if health.Index.Attachments != 3 {
		t.Errorf("index attachments = %d, want 3", health.Index.Attachments)
	}
}

func TestHandleBooks(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))
	h := s.Handler()

	status, env := doJSON(t, h, http.MethodGet, "/books", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /books = %d, want 200", status)
	}

	var books []BookSummary
	unmarshalData(t, env, &books)
	if len(books) != 1 {
		t.Fatalf("len(books) = %d, want 1", len(books))
	}
	if books[0].ID != "TIT" || books[0].Verses != 1 {
		t.Errorf("books[0] = %+v, want TIT with 1 verse", books[0])
	}
	if env.Meta == nil || env.Meta.Total != 1 {
		t.Errorf("meta = %+v, want total 1", env.Meta)
	}

	status, _ = doJSON(t, h, http.MethodPost, "/books", nil)
	if status != http.StatusMethodNotAllowed {
		t.Errorf("POST /books = %d, want 405", status)
	}
}

func TestHandleVerse(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))
	h := s.Handler()

	status, env := doJSON(t, h, http.MethodGet, "/verses?ref=TIT+1:1", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /verses = %d, want 200", status)
	}

	var view VerseView
	unmarshalData(t, env, &view)
	if view.PlainText != "Paul, a servant of God." {
		t.Errorf("plain text = %q, want %q", view.PlainText, "Paul, a servant of God.")
	}
	if len(view.Tokens) != 7 {
		t.Errorf("len(tokens) = %d, want 7", len(view.Tokens))
	}
	if len(view.Groups) != 3 {
		t.Errorf("len(groups) = %d, want 3", len(view.Groups))
	}

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"missing ref", "/verses", http.StatusBadRequest, "MISSING_REF"},
		{"malformed ref", "/verses?ref=%25%25", http.StatusBadRequest, "INVALID_REF"},
		{"book-only ref", "/verses?ref=TIT", http.StatusBadRequest, "INVALID_REF"},
		{"unindexed verse", "/verses?ref=TIT+3:1", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := doJSON(t, h, http.MethodGet, tt.target, nil)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestHandleAlignment(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))
	h := s.Handler()

	status, env := doJSON(t, h, http.MethodGet, "/alignment?ref=TIT+1:1&position=5", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /alignment = %d, want 200", status)
	}

	var view AlignmentView
	unmarshalData(t, env, &view)
	if view.Alignment == nil {
		t.Fatal("alignment = nil, want attachment for position 5")
	}
	if view.Alignment.Strong != "G23160" {
		t.Errorf("strong = %q, want G23160", view.Alignment.Strong)
	}
	if view.Group == nil || view.Group.ID != view.Alignment.GroupID {
		t.Errorf("group = %+v, want group %s", view.Group, view.Alignment.GroupID)
	}

	// Punctuation position: a valid lookup with a null alignment.
	status, env = doJSON(t, h, http.MethodGet, "/alignment?ref=TIT+1:1&position=1", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /alignment position 1 = %d, want 200", status)
	}
	view = AlignmentView{}
	unmarshalData(t, env, &view)
	if view.Alignment != nil {
		t.Errorf("alignment = %+v, want nil for punctuation", view.Alignment)
	}

	status, env = doJSON(t, h, http.MethodGet, "/alignment?ref=TIT+1:1&position=-1", nil)
	if status != http.StatusBadRequest {
		t.Errorf("negative position = %d, want 400", status)
	}
	if env.Error == nil || env.Error.Code != "INVALID_POSITION" {
		t.Errorf("error = %+v, want INVALID_POSITION", env.Error)
	}
}

func TestHandleStrong(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))
	h := s.Handler()

	status, env := doJSON(t, h, http.MethodGet, "/search/strong?id=G23160", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /search/strong = %d, want 200", status)
	}

	var locs []*alignment.Location
	unmarshalData(t, env, &locs)
	if len(locs) != 1 {
		t.Fatalf("len(locs) = %d, want 1", len(locs))
	}
	if locs[0].Text != "God" {
		t.Errorf("locs[0].Text = %q, want God", locs[0].Text)
	}

	status, env = doJSON(t, h, http.MethodGet, "/search/strong?id=G2316%3B+DROP+TABLE", nil)
	if status != http.StatusBadRequest {
		t.Errorf("hostile id = %d, want 400", status)
	}
	if env.Error == nil || env.Error.Code != "INVALID_ID" {
		t.Errorf("error = %+v, want INVALID_ID", env.Error)
	}
}

func TestHandleLemma(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))
	h := s.Handler()

	status, env := doJSON(t, h, http.MethodGet, "/search/lemma?q="+"%CE%B8%CE%B5%CF%8C%CF%82", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /search/lemma = %d, want 200", status)
	}

	var locs []*alignment.Location
	unmarshalData(t, env, &locs)
	if len(locs) != 1 {
		t.Fatalf("len(locs) = %d, want 1", len(locs))
	}
	if locs[0].Attachment == nil || locs[0].Attachment.Lemma != "θεός" {
		t.Errorf("locs[0].Attachment = %+v, want lemma θεός", locs[0].Attachment)
	}

	status, env = doJSON(t, h, http.MethodGet, "/search/lemma", nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", status)
	}
	if env.Error == nil || env.Error.Code != "INVALID_QUERY" {
		t.Errorf("error = %+v, want INVALID_QUERY", env.Error)
	}
}

func TestHandleResolve(t *testing.T) {
	notesDir := t.TempDir()
	notes := "Reference\tID\tTags\tSupportReference\tQuote\tOccurrence\tNote\n" +
		"1:1\tabc1\t\t\tΘεοῦ\t1\tThe creator, not a pagan deity.\n" +
		"1:1\tabc2\t\t\t\t0\tGeneral verse note.\n"
	if err := os.WriteFile(filepath.Join(notesDir, "tn_TIT.tsv"), []byte(notes), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewWithIndex(Config{NotesPath: notesDir}, testIndex(t))
	h := s.Handler()

	status, env := doJSON(t, h, http.MethodPost, "/resolve", ResolveRequest{
		Ref:      "TIT 1:1",
		Position: 5,
	})
	if status != http.StatusOK {
		t.Fatalf("POST /resolve = %d, want 200", status)
	}

	var result xref.Result
	unmarshalData(t, env, &result)
	if result.Alignment == nil || result.Alignment.Strong != "G23160" {
		t.Fatalf("alignment = %+v, want G23160", result.Alignment)
	}
	if len(result.CrossReferences) != 2 {
		t.Fatalf("len(cross_references) = %d, want 2", len(result.CrossReferences))
	}
	// The quote-matching note outranks the verse-level note.
	if result.CrossReferences[0].RecordID != "abc1" {
		t.Errorf("top record = %q, want abc1", result.CrossReferences[0].RecordID)
	}
	if result.CrossReferences[0].Score <= result.CrossReferences[1].Score {
		t.Errorf("scores = %v >= %v, want descending",
			result.CrossReferences[1].Score, result.CrossReferences[0].Score)
	}

	tests := []struct {
		name   string
		method string
		body   any
		status int
		code   string
	}{
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"bad ref", http.MethodPost, ResolveRequest{Ref: "NOPE 1:1"}, http.StatusBadRequest, "INVALID_REF"},
		{"out-of-range position", http.MethodPost, ResolveRequest{Ref: "TIT 1:1", Position: 99},
			http.StatusBadRequest, "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := doJSON(t, h, tt.method, "/resolve", tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestHandleResolveInvalidJSON(t *testing.T) {
	s := NewWithIndex(Config{}, testIndex(t))

	req := httptest.NewRequest(http.MethodPost, "/resolve", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
