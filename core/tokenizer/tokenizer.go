// Package tokenizer converts parsed verse trees into ordered token
// sequences with alignment attachments and resolved alignment groups.
//
// Tokenization is a pure function of one verse's input: occurrence counters
// and group keys live in maps created per call, so verses tokenize
// independently and books can fan out across workers without locking.
package tokenizer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/token"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

// Verse is the result of tokenizing one verse: the ordered tokens, the
// reconstructed plain text, and the alignment groups in creation order.
// Once returned it is never mutated.
type Verse struct {
	// Ref is the verse reference.
	Ref *ref.Ref `json:"ref"`

	// Tokens is the ordered token sequence.
	Tokens []*token.Token `json:"tokens"`

	// PlainText is the verse text with markup stripped. Concatenating token
	// contents in order with the whitespace between them reproduces it
	// byte-for-byte.
	PlainText string `json:"plain_text"`

	// Groups holds the verse's alignment groups in creation order.
	Groups []*token.Group `json:"groups"`
}

// groupKey identifies one alignment group within a verse. Groups sharing a
// lemma but differing in source content stay distinct.
type groupKey struct {
	strong  string
	lemma   string
	content string
}

// run is the per-verse tokenization state. A fresh run is built for every
// call; nothing is shared across verses.
type run struct {
	vref   *ref.Ref
	counts map[string]int // word content -> total occurrences (first pass)
	seen   map[string]int // word content -> occurrences emitted so far
	buf    strings.Builder
	tokens []*token.Token
	groups []*token.Group
	byKey  map[groupKey]*token.Group
}

// TokenizeVerse tokenizes one verse tree. Malformed markup is recovered
// silently (logged at debug); the only error returned is a ValidationError
// for an unusable verse reference, which is a caller bug.
//
// An empty or nil node list yields an empty token list and no error.
func TokenizeVerse(nodes []markup.Node, vref *ref.Ref) (*Verse, error) {
	if vref == nil {
		return nil, errors.NewValidation("ref", "verse reference is required")
	}
	if vref.Book == "" || vref.Chapter <= 0 || vref.Verse <= 0 {
		return nil, &errors.ValidationError{
			Field:   "ref",
			Value:   vref.String(),
			Message: "tokenization requires a full book chapter:verse reference",
		}
	}

	r := &run{
		vref:   vref,
		counts: make(map[string]int),
		seen:   make(map[string]int),
		byKey:  make(map[groupKey]*token.Group),
	}

	r.countWords(nodes)
	r.emit(nodes, nil)

	return &Verse{
		Ref:       vref,
		Tokens:    r.tokens,
		PlainText: r.buf.String(),
		Groups:    r.groups,
	}, nil
}

// countWords is the first pass: it tallies every content that will be
// emitted as a word token, so the second pass can stamp each with its total
// up front. The classification here must mirror emit exactly.
func (r *run) countWords(nodes []markup.Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *markup.Word:
			r.counts[n.Text]++
		case *markup.Text:
			core := strings.TrimSpace(n.Value)
			if core != "" && isAlphabetic(core) {
				r.counts[core]++
			}
		case *markup.Milestone:
			r.countWords(n.Children)
		}
	}
}

// emit is the second pass: a depth-first, left-to-right traversal that
// appends to the plain-text buffer and emits tokens. active is the innermost
// enclosing milestone; recursing into a nested milestone replaces it.
func (r *run) emit(nodes []markup.Node, active *markup.Milestone) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *markup.Text:
			r.emitText(n)
		case *markup.Word:
			r.emitWord(n, active)
		case *markup.Milestone:
			if len(n.Children) == 0 {
				logging.MarkupRecovery(r.vref.String(), "milestone without children skipped",
					"strong", n.Strong)
				continue
			}
			if !n.HasAlignment() {
				logging.MarkupRecovery(r.vref.String(), "milestone carries no alignment attributes",
					"children", len(n.Children))
			}
			r.emit(n.Children, n)
		}
	}
}

// emitText appends an untagged run to the buffer. Surrounding whitespace
// lands in the buffer only; the trimmed core becomes a token, classified
// word when purely alphabetic and punctuation otherwise. Whitespace-only
// runs produce no token.
func (r *run) emitText(n *markup.Text) {
	core := strings.TrimSpace(n.Value)
	if core == "" {
		r.buf.WriteString(n.Value)
		return
	}

	lead := strings.Index(n.Value, core)
	r.buf.WriteString(n.Value[:lead])

	start := r.buf.Len()
	r.buf.WriteString(core)
	end := r.buf.Len()

	r.buf.WriteString(n.Value[lead+len(core):])

	pos := token.Position{Start: start, End: end, Index: len(r.tokens)}

	if isAlphabetic(core) {
		r.seen[core]++
		r.tokens = append(r.tokens, &token.Token{
			ID:               token.WordID(r.vref, core, r.seen[core]),
			Content:          core,
			Kind:             token.KindWord,
			Occurrence:       r.seen[core],
			TotalOccurrences: r.counts[core],
			Ref:              r.vref,
			Position:         pos,
		})
		return
	}

	r.tokens = append(r.tokens, &token.Token{
		ID:               token.TextID(r.vref, pos.Index),
		Content:          core,
		Kind:             token.KindPunctuation,
		Occurrence:       1,
		TotalOccurrences: 1,
		Ref:              r.vref,
		Position:         pos,
	})
}

// emitWord emits a token for dedicated word markup. Only these tokens carry
// alignment attachments; an untagged alphabetic run inside a milestone
// stays unattached.
func (r *run) emitWord(n *markup.Word, active *markup.Milestone) {
	start := r.buf.Len()
	r.buf.WriteString(n.Text)
	end := r.buf.Len()

	r.seen[n.Text]++
	tok := &token.Token{
		ID:               token.WordID(r.vref, n.Text, r.seen[n.Text]),
		Content:          n.Text,
		Kind:             token.KindWord,
		Occurrence:       r.seen[n.Text],
		TotalOccurrences: r.counts[n.Text],
		Ref:              r.vref,
		Position:         token.Position{Start: start, End: end, Index: len(r.tokens)},
	}

	if active != nil {
		tok.Alignment = r.attach(tok, active)
	}

	r.tokens = append(r.tokens, tok)
}

// attach builds the token's alignment attachment from the active milestone
// and enrolls the token in its group, creating the group on first sight of
// the (strong, lemma, source content) key.
func (r *run) attach(tok *token.Token, m *markup.Milestone) *token.Attachment {
	att := &token.Attachment{
		Strong:            m.Strong,
		Lemma:             m.Lemma,
		Morph:             m.Morph,
		SourceOccurrence:  r.parseOccurrence(m.Occurrence),
		SourceOccurrences: r.parseOccurrence(m.Occurrences),
		SourceContent:     m.Content,
	}

	key := groupKey{strong: att.Strong, lemma: att.Lemma, content: att.SourceContent}
	grp, ok := r.byKey[key]
	if !ok {
		grp = &token.Group{
			ID:         token.GroupID(r.vref, att.Strong, len(r.groups)+1),
			Strong:     att.Strong,
			Lemma:      att.Lemma,
			SourceWord: att.SourceContent,
			Ref:        r.vref,
		}
		r.byKey[key] = grp
		r.groups = append(r.groups, grp)
	}
	grp.Append(tok.ID, tok.Content, tok.Position)

	att.GroupID = grp.ID
	return att
}

// parseOccurrence reads a milestone occurrence attribute, defaulting to 1
// when absent or unparseable.
func (r *run) parseOccurrence(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		logging.MarkupRecovery(r.vref.String(), "occurrence attribute unreadable, defaulting to 1",
			"value", s)
		return 1
	}
	return n
}

// isAlphabetic reports whether every rune is a letter or combining mark.
// Decomposed accents count; digits and punctuation do not.
func isAlphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsMark(r) {
			return false
		}
	}
	return true
}
