// Package xref resolves word selections into ranked cross-references: given
// an aligned token it queries companion annotation collaborators (notes,
// glossary links, comprehension questions) and scores their records for
// relevance to that word.
package xref

import (
	"context"

	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
)

// Kind classifies an annotation collaborator and its records.
type Kind string

const (
	// KindNote marks explanatory translation notes.
	KindNote Kind = "note"

	// KindGlossaryLink marks links into glossary articles.
	KindGlossaryLink Kind = "glossary-link"

	// KindQuestion marks comprehension questions.
	KindQuestion Kind = "question"

	// KindOther marks records from collaborators outside the built-in kinds.
	KindOther Kind = "other"
)

// Record is one annotation record as returned by a collaborator. Only ID
// and Ref are required; the rest is filled as the source provides it.
type Record struct {
	// ID is the record's opaque identifier within its resource.
	ID string `json:"id"`

	// Kind classifies the record.
	Kind Kind `json:"kind"`

	// Ref is the verse the record annotates.
	Ref *ref.Ref `json:"ref"`

	// Quote is the record's source-language excerpt, when present. A
	// discontinuous quote joins its parts with " & ".
	Quote string `json:"quote,omitempty"`

	// Occurrence selects which occurrence of Quote the record targets;
	// zero means unspecified.
	Occurrence int `json:"occurrence,omitempty"`

	// Strong is the root identifier the record names, when present.
	Strong string `json:"strong,omitempty"`

	// Body is the record's display text: the note itself, the question, or
	// a glossary article title.
	Body string `json:"body,omitempty"`

	// Link is a support-reference or glossary hyperlink, unresolved.
	Link string `json:"link,omitempty"`
}

// Collaborator is an annotation source queried during word interaction
// resolution. Implementations must honor context cancellation; a call that
// overruns its deadline is abandoned and noted in result metadata.
type Collaborator interface {
	// Kind reports the collaborator's record kind.
	Kind() Kind

	// RecordsForVerse returns every record annotating the verse, in the
	// resource's own declaration order.
	RecordsForVerse(ctx context.Context, vref *ref.Ref) ([]*Record, error)
}
