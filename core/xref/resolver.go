package xref

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/token"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

// DefaultTimeout bounds each collaborator call during resolution.
const DefaultTimeout = 3 * time.Second

// Relevance tiers. A record quoting the selected word's source text
// outranks one that only names its root, which outranks plain verse-level
// relevance.
const (
	ScoreQuoteMatch = 1.0
	ScoreRootMatch  = 0.6
	ScoreVerseMatch = 0.2
)

// Resolver answers word selections against an alignment index and a set of
// annotation collaborators.
type Resolver struct {
	index         *alignment.Index
	collaborators []Collaborator
	timeout       time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCollaborators registers annotation collaborators. Registration order
// is the tie-break order for equally scored records.
func WithCollaborators(cs ...Collaborator) Option {
	return func(r *Resolver) {
		r.collaborators = append(r.collaborators, cs...)
	}
}

// WithTimeout sets the per-collaborator call timeout. Zero disables the
// deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// NewResolver builds a resolver over the given index.
func NewResolver(index *alignment.Index, opts ...Option) *Resolver {
	r := &Resolver{index: index, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request identifies one selected token.
type Request struct {
	// Ref is the verse containing the selection.
	Ref *ref.Ref `json:"ref"`

	// Position is the selected token's 0-based index within the verse.
	Position int `json:"position"`

	// Text is the selected surface text as the caller saw it. Optional;
	// filled from the index when empty.
	Text string `json:"text,omitempty"`

	// Limit caps the returned cross-references. Zero keeps all.
	Limit int `json:"limit,omitempty"`
}

// CrossReference is one scored link from the selection into an annotation
// record.
type CrossReference struct {
	// Kind classifies the record.
	Kind Kind `json:"kind"`

	// RecordID is the record's identifier within its resource.
	RecordID string `json:"record_id"`

	// Ref is the verse the record annotates.
	Ref *ref.Ref `json:"ref"`

	// Score is the relevance tier.
	Score float64 `json:"score"`

	// Excerpt is a short quoted text from the record, when present.
	Excerpt string `json:"excerpt,omitempty"`

	// Record is the full annotation record.
	Record *Record `json:"record"`
}

// Meta describes how a resolution went.
type Meta struct {
	// RequestID tags the resolution for tracing.
	RequestID string `json:"request_id"`

	// Elapsed is the wall-clock resolution time.
	Elapsed time.Duration `json:"elapsed"`

	// Counts is the number of candidate records retrieved per kind.
	Counts map[Kind]int `json:"counts"`

	// Failures notes collaborators that errored or timed out, by kind.
	// Their kinds contribute zero cross-references.
	Failures map[Kind]string `json:"failures,omitempty"`
}

// Result is the resolver's answer for one selection.
type Result struct {
	// Ref is the selection's verse.
	Ref *ref.Ref `json:"ref"`

	// Position is the selected token index.
	Position int `json:"position"`

	// Text is the selected surface text.
	Text string `json:"text,omitempty"`

	// Alignment is the selection's attachment, nil when the word is
	// untagged or the verse is not indexed.
	Alignment *token.Attachment `json:"alignment,omitempty"`

	// Group is the alignment group the attachment belongs to, when known.
	Group *token.Group `json:"group,omitempty"`

	// CrossReferences is the ranked link list, best first.
	CrossReferences []*CrossReference `json:"cross_references"`

	// Meta carries resolution metadata.
	Meta Meta `json:"meta"`
}

// Resolve looks up the selection's alignment and gathers ranked
// cross-references for it. An unaligned selection or an unindexed verse
// resolves to an empty result, not an error; only an invalid reference or
// an out-of-range position for a known verse fails.
//
// Collaborators are queried in parallel under the per-call timeout. A
// failing collaborator is noted in the metadata and contributes nothing;
// the remaining kinds still return.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.Ref == nil {
		return nil, errors.NewValidation("ref", "verse reference is required")
	}
	if req.Position < 0 {
		return nil, &errors.ValidationError{
			Field:   "position",
			Value:   fmt.Sprintf("%d", req.Position),
			Message: "token position must not be negative",
		}
	}

	res := &Result{
		Ref:      req.Ref,
		Position: req.Position,
		Text:     req.Text,
		Meta: Meta{
			RequestID: uuid.NewString(),
			Counts:    make(map[Kind]int),
		},
	}

	rec, known := r.index.Verse(req.Ref)
	if known {
		if req.Position >= len(rec.Tokens) {
			return nil, &errors.ValidationError{
				Field:   "position",
				Value:   fmt.Sprintf("%d", req.Position),
				Message: fmt.Sprintf("verse %s has %d tokens", req.Ref, len(rec.Tokens)),
			}
		}
		if res.Text == "" {
			res.Text = rec.Tokens[req.Position].Content
		}
	}

	att, ok := r.index.Alignment(req.Ref, req.Position)
	if !ok {
		res.Meta.Elapsed = time.Since(start)
		return res, nil
	}
	res.Alignment = att
	if known {
		res.Group = rec.Group(att.GroupID)
	}

	for _, f := range r.fanOut(ctx, req) {
		if f.err != nil {
			timedOut := stderrors.Is(f.err, context.DeadlineExceeded)
			if res.Meta.Failures == nil {
				res.Meta.Failures = make(map[Kind]string)
			}
			res.Meta.Failures[f.kind] = errors.NewCollaborator(string(f.kind), timedOut, f.err).Error()
			logging.CollaboratorFailure(string(f.kind), f.err, "ref", req.Ref.String())
			continue
		}
		for _, record := range f.records {
			if record == nil || record.Ref == nil || !record.Ref.ContainsVerse(req.Ref) {
				continue
			}
			kind := record.Kind
			if kind == "" {
				kind = f.kind
			}
			res.Meta.Counts[kind]++
			res.CrossReferences = append(res.CrossReferences, &CrossReference{
				Kind:     kind,
				RecordID: record.ID,
				Ref:      record.Ref,
				Score:    scoreRecord(att, record),
				Excerpt:  excerptOf(record),
				Record:   record,
			})
		}
	}

	// Stable sort keeps registration and declaration order for equal
	// scores.
	slices.SortStableFunc(res.CrossReferences, func(a, b *CrossReference) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if req.Limit > 0 && len(res.CrossReferences) > req.Limit {
		res.CrossReferences = res.CrossReferences[:req.Limit]
	}

	res.Meta.Elapsed = time.Since(start)
	return res, nil
}

type fetched struct {
	kind    Kind
	records []*Record
	err     error
}

// fanOut queries every collaborator in parallel. Failures stay local to
// their slot; a slow collaborator cannot block the others beyond its own
// timeout.
func (r *Resolver) fanOut(ctx context.Context, req Request) []fetched {
	out := make([]fetched, len(r.collaborators))
	var wg sync.WaitGroup
	for i, c := range r.collaborators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx := ctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}
			records, err := c.RecordsForVerse(cctx, req.Ref)
			if err == nil && cctx.Err() != nil {
				err = cctx.Err()
			}
			out[i] = fetched{kind: c.Kind(), records: records, err: err}
		}()
	}
	wg.Wait()
	return out
}

// scoreRecord ranks a record against the selection's attachment. A quote
// matching the source content (with a compatible occurrence) wins; naming
// the same root comes second; sharing only the verse comes last.
func scoreRecord(att *token.Attachment, rec *Record) float64 {
	if quoteMatches(rec.Quote, att.SourceContent) {
		if rec.Occurrence == 0 || rec.Occurrence == att.SourceOccurrence {
			return ScoreQuoteMatch
		}
		return ScoreRootMatch
	}
	if att.Strong != "" && rec.Strong == att.Strong {
		return ScoreRootMatch
	}
	return ScoreVerseMatch
}

// quoteMatches reports whether the record's quoted excerpt names the source
// content, either as the whole quote or as one word of it. Discontinuous
// quotes join parts with "&", which field-splitting already isolates.
func quoteMatches(quote, source string) bool {
	quote = strings.TrimSpace(quote)
	source = strings.TrimSpace(source)
	if quote == "" || source == "" {
		return false
	}
	if quote == source {
		return true
	}
	for _, w := range strings.Fields(quote) {
		if w == source {
			return true
		}
	}
	return false
}

// excerptLimit caps how much record body an excerpt carries.
const excerptLimit = 120

func excerptOf(rec *Record) string {
	if rec.Quote != "" {
		return rec.Quote
	}
	body := strings.TrimSpace(rec.Body)
	if len(body) <= excerptLimit {
		return body
	}
	cut := excerptLimit
	for cut > 0 && body[cut]&0xC0 == 0x80 {
		cut--
	}
	return body[:cut]
}
