// Package markup defines the parsed verse node tree produced by document
// sources. Each verse is an ordered list of nodes drawn from a closed set:
// plain text, word, and alignment milestone. Milestones nest; words and text
// do not.
package markup

import (
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
)

// Node is one element of a verse tree. The implementations are Text, Word,
// and Milestone; the set is closed so traversals can switch exhaustively.
type Node interface {
	node()
}

// Text is an untagged run of characters: punctuation, whitespace, or words
// the source never wrapped in word markup.
type Text struct {
	// Value is the raw text, whitespace included.
	Value string
}

// Word is a single target-language word from dedicated word markup.
type Word struct {
	// Text is the surface form of the word.
	Text string

	// Occurrence and Occurrences carry the source's own occurrence
	// attributes when present. Tokenization recounts; these are kept for
	// diagnostics only.
	Occurrence  int
	Occurrences int
}

// Milestone is an alignment wrapper spanning zero or more child nodes, all of
// which translate the original-language word it describes. Attributes are
// kept as strings exactly as the source carries them.
type Milestone struct {
	// Strong is the root identifier (e.g., "G35880", "H0430", "G2962:G2316").
	Strong string

	// Lemma is the dictionary form of the original word.
	Lemma string

	// Morph is the morphological code (optional).
	Morph string

	// Occurrence and Occurrences rank the original word among identical
	// originals within the verse. Absent attributes default to "1".
	Occurrence  string
	Occurrences string

	// Content is the original-language surface text being translated.
	Content string

	// Children are the wrapped nodes, possibly including nested milestones.
	Children []Node
}

func (*Text) node()      {}
func (*Word) node()      {}
func (*Milestone) node() {}

// HasAlignment reports whether the milestone carries any original-language
// identity at all. Milestones without it still wrap children but describe
// nothing.
func (m *Milestone) HasAlignment() bool {
	return m.Strong != "" || m.Lemma != "" || m.Content != ""
}

// Verse is one verse's parsed tree plus its reference.
type Verse struct {
	// Ref locates the verse.
	Ref *ref.Ref

	// Nodes is the ordered node list for the verse.
	Nodes []Node
}

// Book is a parsed document source result: every verse of one book in
// document order.
type Book struct {
	// ID is the USFM book code (e.g., "TIT").
	ID string

	// Title is the human-readable book title, when the source provides one.
	Title string

	// Verses holds every verse in document order.
	Verses []*Verse
}

// Verse returns the tree for a chapter and verse, or nil when absent.
func (b *Book) Verse(chapter, verse int) *Verse {
	for _, v := range b.Verses {
		if v.Ref != nil && v.Ref.Chapter == chapter && v.Ref.Verse == verse {
			return v
		}
	}
	return nil
}

// Chapters groups the book's verses by chapter, preserving document order
// within each chapter. The second return lists chapter numbers in document
// order.
func (b *Book) Chapters() (map[int][]*Verse, []int) {
	byChapter := make(map[int][]*Verse)
	var order []int
	for _, v := range b.Verses {
		if v.Ref == nil {
			continue
		}
		c := v.Ref.Chapter
		if _, seen := byChapter[c]; !seen {
			order = append(order, c)
		}
		byChapter[c] = append(byChapter[c], v)
	}
	return byChapter, order
}
