// Package token defines the lexical units produced by verse tokenization and
// the alignment records attached to them.
package token

import (
	"fmt"

	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
)

// Kind classifies a token.
type Kind string

// Token kind constants.
const (
	// KindWord marks a selectable word: either dedicated word markup, or
	// untagged text that is purely alphabetic.
	KindWord Kind = "word"

	// KindText marks untagged plain text that is neither selectable nor
	// punctuation. Emitted rarely; most untagged runs classify as word or
	// punctuation.
	KindText Kind = "text"

	// KindPunctuation marks punctuation and any untagged run that is not
	// purely alphabetic.
	KindPunctuation Kind = "punctuation"
)

// Position locates a token within its verse.
type Position struct {
	// Start is the UTF-8 byte offset into the verse plain text where the
	// token content begins.
	Start int `json:"start"`

	// End is the UTF-8 byte offset just past the token content.
	End int `json:"end"`

	// Index is the token's 0-based position in the verse token sequence.
	Index int `json:"index"`
}

// Token is one lexical unit inside a verse.
type Token struct {
	// ID is the deterministic verse-scoped identifier. See WordID and TextID.
	ID string `json:"id"`

	// Content is the exact surface text.
	Content string `json:"content"`

	// Kind classifies the token (word, text, punctuation).
	Kind Kind `json:"kind"`

	// Occurrence is the 1-based rank of this content among identical word
	// contents in the verse, in document order. 1 for non-word tokens.
	Occurrence int `json:"occurrence"`

	// TotalOccurrences is the count of identical word contents in the verse.
	// 1 for non-word tokens.
	TotalOccurrences int `json:"total_occurrences"`

	// Ref is the verse reference.
	Ref *ref.Ref `json:"ref"`

	// Position locates the token in the verse plain text.
	Position Position `json:"position"`

	// Alignment is the attached alignment record, nil for untagged tokens.
	Alignment *Attachment `json:"alignment,omitempty"`
}

// IsWord returns true if this token is selectable.
func (t *Token) IsWord() bool {
	return t.Kind == KindWord
}

// Attachment is the original-language alignment record attached to one word
// token.
type Attachment struct {
	// Strong is the root identifier of the aligned original word.
	Strong string `json:"strong"`

	// Lemma is the dictionary form of the aligned original word.
	Lemma string `json:"lemma"`

	// Morph is the morphological code (optional).
	Morph string `json:"morph,omitempty"`

	// SourceOccurrence and SourceOccurrences rank the original word among
	// identical originals within the verse. Default to 1 when the markup
	// omits them.
	SourceOccurrence  int `json:"source_occurrence"`
	SourceOccurrences int `json:"source_occurrences"`

	// SourceContent is the original-language surface text.
	SourceContent string `json:"source_content"`

	// GroupID references the Group this attachment belongs to.
	GroupID string `json:"group_id"`
}

// Instance is one target-language token's membership in a Group.
type Instance struct {
	// TokenID is the owning token's ID.
	TokenID string `json:"token_id"`

	// Text is the token's surface text.
	Text string `json:"text"`

	// Position is the token's position in the verse.
	Position Position `json:"position"`

	// Rank is the 1-based insertion order within the group.
	Rank int `json:"rank"`
}

// Group is the set of target-language tokens realizing one original-language
// word occurrence within a verse. Instances keep token document order and are
// never removed or reordered; non-adjacent instances mark a discontinuous
// alignment.
type Group struct {
	// ID is the deterministic verse-scoped group identifier. See GroupID.
	ID string `json:"id"`

	// Strong, Lemma, and SourceWord identify the original word. Two groups
	// in a verse may share a lemma but differ in SourceWord; they stay
	// distinct.
	Strong     string `json:"strong"`
	Lemma      string `json:"lemma"`
	SourceWord string `json:"source_word"`

	// Ref is the verse the group belongs to.
	Ref *ref.Ref `json:"ref"`

	// Instances is the ordered member list.
	Instances []Instance `json:"instances"`

	// TotalInstances is len(Instances), kept explicit for serialized forms.
	TotalInstances int `json:"total_instances"`
}

// IsDiscontinuous returns true if the group's original word is realized by
// more than one target token.
func (g *Group) IsDiscontinuous() bool {
	return g.TotalInstances > 1
}

// Append adds a token to the group, assigning the next rank.
func (g *Group) Append(tokenID, text string, pos Position) {
	g.TotalInstances++
	g.Instances = append(g.Instances, Instance{
		TokenID:  tokenID,
		Text:     text,
		Position: pos,
		Rank:     g.TotalInstances,
	})
}

// WordID derives the deterministic identifier for a word token. Identical
// input always yields the same ID: the verse key, the content, and the
// occurrence rank pin it down.
func WordID(vref *ref.Ref, content string, occurrence int) string {
	return fmt.Sprintf("w:%s:%s:%d", vref.Key(), content, occurrence)
}

// TextID derives the deterministic identifier for a non-word token from the
// verse key and the token index.
func TextID(vref *ref.Ref, index int) string {
	return fmt.Sprintf("t:%s:%d", vref.Key(), index)
}

// GroupID derives the deterministic identifier for an alignment group from
// the verse key, the root identifier, and the group's 1-based creation
// ordinal within the verse.
func GroupID(vref *ref.Ref, strong string, ordinal int) string {
	return fmt.Sprintf("g:%s:%s:%d", vref.Key(), strong, ordinal)
}
