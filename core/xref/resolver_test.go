package xref

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/tokenizer"
)

type fakeCollaborator struct {
	kind    Kind
	records []*Record
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeCollaborator) Kind() Kind { return f.kind }

func (f *fakeCollaborator) RecordsForVerse(ctx context.Context, vref *ref.Ref) ([]*Record, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

// testIndex indexes TIT 1:1 with tokens 0="for" (κατά), 1="faith"
// (πίστις), 2="untagged" (no alignment).
func testIndex(t *testing.T) *alignment.Index {
	t.Helper()
	nodes := []markup.Node{
		&markup.Milestone{
			Strong: "G25960", Lemma: "κατά", Content: "κατὰ",
			Occurrence: "1", Occurrences: "1",
			Children: []markup.Node{&markup.Word{Text: "for"}},
		},
		&markup.Text{Value: " "},
		&markup.Milestone{
			Strong: "G41020", Lemma: "πίστις", Content: "πίστιν",
			Occurrence: "1", Occurrences: "1",
			Children: []markup.Node{&markup.Word{Text: "faith"}},
		},
		&markup.Text{Value: " "},
		&markup.Word{Text: "untagged"},
	}
	v, err := tokenizer.TokenizeVerse(nodes, ref.MustParse("TIT 1:1"))
	if err != nil {
		t.Fatalf("TokenizeVerse() error = %v", err)
	}
	idx := alignment.NewIndex()
	if err := idx.PutVerse(v); err != nil {
		t.Fatalf("PutVerse() error = %v", err)
	}
	return idx
}

func TestResolveScoring(t *testing.T) {
	notes := &fakeCollaborator{kind: KindNote, records: []*Record{
		{ID: "n1", Ref: ref.MustParse("TIT 1:1"), Quote: "κατὰ πίστιν", Occurrence: 1, Body: "faith here is a body of belief"},
		{ID: "n2", Ref: ref.MustParse("TIT 1:1"), Quote: "ἀλήθεια", Body: "unrelated"},
	}}
	links := &fakeCollaborator{kind: KindGlossaryLink, records: []*Record{
		{ID: "l1", Ref: ref.MustParse("TIT 1:1"), Strong: "G41020", Link: "bible/kt/faith"},
	}}
	questions := &fakeCollaborator{kind: KindQuestion, records: []*Record{
		{ID: "q1", Ref: ref.MustParse("TIT 1:1"), Body: "What is required of believers?"},
	}}

	r := NewResolver(testIndex(t), WithCollaborators(notes, links, questions))
	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 1:1"), Position: 1})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if res.Alignment == nil || res.Alignment.Lemma != "πίστις" {
		t.Fatalf("alignment = %+v, want lemma πίστις", res.Alignment)
	}
	if res.Text != "faith" {
		t.Errorf("text = %q, want %q", res.Text, "faith")
	}
	if res.Group == nil || res.Group.ID != res.Alignment.GroupID {
		t.Errorf("group = %+v, want id %q", res.Group, res.Alignment.GroupID)
	}

	wantIDs := []string{"n1", "l1", "n2", "q1"}
	wantScores := []float64{ScoreQuoteMatch, ScoreRootMatch, ScoreVerseMatch, ScoreVerseMatch}
	if len(res.CrossReferences) != len(wantIDs) {
		t.Fatalf("cross-reference count = %d, want %d", len(res.CrossReferences), len(wantIDs))
	}
	for i, xr := range res.CrossReferences {
		if xr.RecordID != wantIDs[i] {
			t.Errorf("rank %d = %q, want %q", i, xr.RecordID, wantIDs[i])
		}
		if xr.Score != wantScores[i] {
			t.Errorf("rank %d score = %v, want %v", i, xr.Score, wantScores[i])
		}
	}

	if res.CrossReferences[0].Excerpt != "κατὰ πίστιν" {
		t.Errorf("excerpt = %q, want the quote", res.CrossReferences[0].Excerpt)
	}
	if got := res.Meta.Counts[KindNote]; got != 2 {
		t.Errorf("note count = %d, want 2", got)
	}
	if _, err := uuid.Parse(res.Meta.RequestID); err != nil {
		t.Errorf("request id %q is not a uuid: %v", res.Meta.RequestID, err)
	}
	if len(res.Meta.Failures) != 0 {
		t.Errorf("failures = %v, want none", res.Meta.Failures)
	}
}

func TestResolveOccurrenceMismatchDowngrades(t *testing.T) {
	notes := &fakeCollaborator{kind: KindNote, records: []*Record{
		{ID: "n1", Ref: ref.MustParse("TIT 1:1"), Quote: "πίστιν", Occurrence: 2},
	}}
	r := NewResolver(testIndex(t), WithCollaborators(notes))
	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 1:1"), Position: 1})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := res.CrossReferences[0].Score; got != ScoreRootMatch {
		t.Errorf("score = %v, want %v for wrong occurrence", got, ScoreRootMatch)
	}
}

func TestResolveUnalignedToken(t *testing.T) {
	notes := &fakeCollaborator{kind: KindNote, records: []*Record{
		{ID: "n1", Ref: ref.MustParse("TIT 1:1"), Quote: "κατὰ"},
	}}
	r := NewResolver(testIndex(t), WithCollaborators(notes))
	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 1:1"), Position: 2})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Alignment != nil {
		t.Errorf("alignment = %+v, want nil", res.Alignment)
	}
	if len(res.CrossReferences) != 0 {
		t.Errorf("cross-reference count = %d, want 0", len(res.CrossReferences))
	}
	if got := notes.calls.Load(); got != 0 {
		t.Errorf("collaborator called %d times for unaligned token, want 0", got)
	}
	if res.Text != "untagged" {
		t.Errorf("text = %q, want %q", res.Text, "untagged")
	}
}

func TestResolveUnindexedVerse(t *testing.T) {
	notes := &fakeCollaborator{kind: KindNote}
	r := NewResolver(testIndex(t), WithCollaborators(notes))

	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 3:9"), Position: 0})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Alignment != nil || len(res.CrossReferences) != 0 {
		t.Errorf("unindexed verse resolved to %+v, want empty result", res)
	}
	if got := notes.calls.Load(); got != 0 {
		t.Errorf("collaborator called %d times for unindexed verse, want 0", got)
	}
}

func TestResolveValidation(t *testing.T) {
	r := NewResolver(testIndex(t))

	tests := []struct {
		name string
		req  Request
	}{
		{name: "nil ref", req: Request{Position: 0}},
		{name: "negative position", req: Request{Ref: ref.MustParse("TIT 1:1"), Position: -1}},
		{name: "position past verse end", req: Request{Ref: ref.MustParse("TIT 1:1"), Position: 99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Resolve() error = nil, want validation error")
			}
			var verr *errors.ValidationError
			if !stderrors.As(err, &verr) {
				t.Errorf("error type = %T, want *errors.ValidationError", err)
			}
		})
	}
}

func TestResolvePartialFailure(t *testing.T) {
	notes := &fakeCollaborator{kind: KindNote, err: stderrors.New("fetch failed")}
	questions := &fakeCollaborator{kind: KindQuestion, records: []*Record{
		{ID: "q1", Ref: ref.MustParse("TIT 1:1"), Body: "Why?"},
	}}
	r := NewResolver(testIndex(t), WithCollaborators(notes, questions))

	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 1:1"), Position: 0})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(res.CrossReferences) != 1 || res.CrossReferences[0].RecordID != "q1" {
		t.Fatalf("cross-references = %+v, want just q1", res.CrossReferences)
	}
	note, ok := res.Meta.Failures[KindNote]
	if !ok {
		t.Fatal("missing failure note for the notes collaborator")
	}
	if !strings.Contains(note, "fetch failed") {
		t.Errorf("failure note = %q, want the underlying error", note)
	}
	if _, ok := res.Meta.Failures[KindQuestion]; ok {
		t.Error("healthy collaborator wrongly noted as failed")
	}
}

func TestResolveTimeout(t *testing.T) {
	slow := &fakeCollaborator{kind: KindNote, delay: time.Second, records: []*Record{
		{ID: "n1", Ref: ref.MustParse("TIT 1:1")},
	}}
	fast := &fakeCollaborator{kind: KindQuestion, records: []*Record{
		{ID: "q1", Ref: ref.MustParse("TIT 1:1"), Body: "Why?"},
	}}
	r := NewResolver(testIndex(t), WithCollaborators(slow, fast), WithTimeout(25*time.Millisecond))

	start := time.Now()
	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 1:1"), Position: 0})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("resolution took %v, want well under the slow collaborator's delay", elapsed)
	}

	if len(res.CrossReferences) != 1 || res.CrossReferences[0].RecordID != "q1" {
		t.Fatalf("cross-references = %+v, want just q1", res.CrossReferences)
	}
	note, ok := res.Meta.Failures[KindNote]
	if !ok {
		t.Fatal("missing failure note for the timed-out collaborator")
	}
	if !strings.Contains(note, "timed out") {
		t.Errorf("failure note = %q, want a timeout note", note)
	}
}

func TestResolveLimit(t *testing.T) {
	notes := &fakeCollaborator{kind: KindNote, records: []*Record{
		{ID: "n1", Ref: ref.MustParse("TIT 1:1"), Quote: "κατὰ", Occurrence: 1},
		{ID: "n2", Ref: ref.MustParse("TIT 1:1")},
		{ID: "n3", Ref: ref.MustParse("TIT 1:1")},
	}}
	r := NewResolver(testIndex(t), WithCollaborators(notes))

	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 1:1"), Position: 0, Limit: 1})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(res.CrossReferences) != 1 {
		t.Fatalf("cross-reference count = %d, want 1", len(res.CrossReferences))
	}
	if res.CrossReferences[0].RecordID != "n1" {
		t.Errorf("kept %q, want the best-scored n1", res.CrossReferences[0].RecordID)
	}
	// The limit trims the list, not the retrieval counts.
	if got := res.Meta.Counts[KindNote]; got != 3 {
		t.Errorf("note count = %d, want 3", got)
	}
}

func TestResolveRecordOutsideVerseSkipped(t *testing.T) {
	notes := &fakeCollaborator{kind: KindNote, records: []*Record{
		{ID: "range", Ref: ref.MustParse("TIT 1:1-3"), Quote: "κατὰ", Occurrence: 1},
		{ID: "other", Ref: ref.MustParse("TIT 2:1")},
		nil,
	}}
	r := NewResolver(testIndex(t), WithCollaborators(notes))

	res, err := r.Resolve(context.Background(), Request{Ref: ref.MustParse("TIT 1:1"), Position: 0})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(res.CrossReferences) != 1 || res.CrossReferences[0].RecordID != "range" {
		t.Fatalf("cross-references = %+v, want just the in-range record", res.CrossReferences)
	}
}

func TestQuoteMatches(t *testing.T) {
	tests := []struct {
		name   string
		quote  string
		source string
		want   bool
	}{
		{name: "exact", quote: "πίστιν", source: "πίστιν", want: true},
		{name: "within phrase", quote: "κατὰ πίστιν", source: "πίστιν", want: true},
		{name: "discontinuous part", quote: "ἐλθεῖν & πρός", source: "πρός", want: true},
		{name: "no match", quote: "ἀλήθεια", source: "πίστιν", want: false},
		{name: "empty quote", quote: "", source: "πίστιν", want: false},
		{name: "empty source", quote: "πίστιν", source: "", want: false},
		{name: "case sensitive", quote: "Παῦλος", source: "παῦλος", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteMatches(tt.quote, tt.source); got != tt.want {
				t.Errorf("quoteMatches(%q, %q) = %v, want %v", tt.quote, tt.source, got, tt.want)
			}
		})
	}
}

func TestExcerptOf(t *testing.T) {
	long := strings.Repeat("α", 100)
	tests := []struct {
		name string
		rec  *Record
		want string
	}{
		{name: "quote wins", rec: &Record{Quote: "κατὰ", Body: "body"}, want: "κατὰ"},
		{name: "short body", rec: &Record{Body: " trimmed "}, want: "trimmed"},
		{name: "long body cut on rune boundary", rec: &Record{Body: long}, want: long[:120]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := excerptOf(tt.rec); got != tt.want {
				t.Errorf("excerptOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
