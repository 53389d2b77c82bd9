// Package ref provides canonical verse references for aligned scripture text.
package ref

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
)

// Ref represents a canonical verse reference.
type Ref struct {
	// Book is the USFM book code (e.g., "GEN", "TIT", "1TI").
	Book string `json:"book"`

	// Chapter is the chapter number (1-indexed, 0 for whole-book references).
	Chapter int `json:"chapter,omitempty"`

	// Verse is the verse number (1-indexed, 0 for whole-chapter references).
	Verse int `json:"verse,omitempty"`

	// VerseEnd is the ending verse for ranges and bridged verses (optional).
	VerseEnd int `json:"verse_end,omitempty"`
}

// refGrammar is the participle grammar for human-readable references.
// Examples: "TIT", "TIT 1", "TIT 1:1", "TIT 1:1-3", "1TI 2:5"
type refGrammar struct {
	BookPrefix string       `parser:"@Int?"`
	BookName   string       `parser:"@Ident"`
	ChapterRef *chapterPart `parser:"@@?"`
}

type chapterPart struct {
	Chapter  int        `parser:"@Int"`
	VerseRef *versePart `parser:"( \":\" @@ )?"`
}

type versePart struct {
	Verse int  `parser:"@Int"`
	Range *int `parser:"( \"-\" @Int )?"`
}

// refLexer defines the lexer for human-readable references.
var refLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z]+`},
	{Name: "Punct", Pattern: `[:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// refParser is the participle parser for human-readable references.
var refParser = participle.MustBuild[refGrammar](
	participle.Lexer(refLexer),
	participle.Elide("Whitespace"),
)

// cvGrammar parses a bare chapter:verse pair as found in annotation tables.
// Examples: "1:1", "2:11-14"
type cvGrammar struct {
	Chapter int    `parser:"@Int"`
	Colon   string `parser:"\":\""`
	Verse   int    `parser:"@Int"`
	Range   *int   `parser:"( \"-\" @Int )?"`
}

var cvParser = participle.MustBuild[cvGrammar](
	participle.Lexer(refLexer),
	participle.Elide("Whitespace"),
)

// ParseRef parses a human-readable reference string.
// Supported formats:
//   - "TIT" (book only)
//   - "TIT 1" (book and chapter)
//   - "TIT 1:1" (book, chapter, and verse)
//   - "TIT 1:1-3" (verse range)
//   - "1TI 2:5" (numbered book)
//
// The book is normalized to its USFM code; unknown books are kept verbatim
// in upper case so references into uncommon corpora still round-trip.
func ParseRef(s string) (*Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &errors.ValidationError{Field: "reference", Message: "empty reference string"}
	}

	parsed, err := refParser.ParseString("", s)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "reference",
			Value:   s,
			Message: "unrecognized reference format",
			Err:     err,
		}
	}

	ref := &Ref{
		Book: NormalizeBook(parsed.BookPrefix + parsed.BookName),
	}

	if parsed.ChapterRef != nil {
		ref.Chapter = parsed.ChapterRef.Chapter

		if parsed.ChapterRef.VerseRef != nil {
			ref.Verse = parsed.ChapterRef.VerseRef.Verse

			if parsed.ChapterRef.VerseRef.Range != nil {
				ref.VerseEnd = *parsed.ChapterRef.VerseRef.Range
			}
		}
	}

	if err := ref.validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

// ParseChapterVerse parses a bare "chapter:verse" pair against a known book.
// Annotation tables carry references this way, one book per file. Rows whose
// reference column holds "front:intro" or similar non-verse anchors fail here
// and are skipped by callers.
func ParseChapterVerse(book, s string) (*Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &errors.ValidationError{Field: "reference", Message: "empty chapter:verse string"}
	}

	parsed, err := cvParser.ParseString("", s)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "reference",
			Value:   s,
			Message: "unrecognized chapter:verse format",
			Err:     err,
		}
	}

	ref := &Ref{
		Book:    NormalizeBook(book),
		Chapter: parsed.Chapter,
		Verse:   parsed.Verse,
	}
	if parsed.Range != nil {
		ref.VerseEnd = *parsed.Range
	}

	if err := ref.validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

// MustParse parses a reference string and panics on failure. For tests and
// static tables only.
func MustParse(s string) *Ref {
	r, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Ref) validate() error {
	if r.Book == "" {
		return &errors.ValidationError{Field: "reference", Message: "missing book"}
	}
	if r.Verse > 0 && r.Chapter == 0 {
		return &errors.ValidationError{Field: "reference", Message: "verse without chapter"}
	}
	if r.VerseEnd > 0 && r.VerseEnd < r.Verse {
		return &errors.ValidationError{
			Field:   "reference",
			Message: "range end precedes range start",
		}
	}
	return nil
}

// String returns the human-readable representation, e.g. "TIT 1:1".
func (r *Ref) String() string {
	var sb strings.Builder
	sb.WriteString(r.Book)

	if r.Chapter > 0 {
		sb.WriteString(" ")
		sb.WriteString(strconv.Itoa(r.Chapter))

		if r.Verse > 0 {
			sb.WriteString(":")
			sb.WriteString(strconv.Itoa(r.Verse))

			if r.VerseEnd > 0 {
				sb.WriteString("-")
				sb.WriteString(strconv.Itoa(r.VerseEnd))
			}
		}
	}

	return sb.String()
}

// Key returns the canonical map key for a single verse, e.g. "TIT 1:1".
// Range references key on their starting verse.
func (r *Ref) Key() string {
	start := Ref{Book: r.Book, Chapter: r.Chapter, Verse: r.Verse}
	return start.String()
}

// IsRange returns true if this reference spans multiple verses.
func (r *Ref) IsRange() bool {
	return r.VerseEnd > 0 && r.VerseEnd > r.Verse
}

// Verses expands a reference to the individual verses it covers.
// A single-verse reference yields itself.
func (r *Ref) Verses() []*Ref {
	if !r.IsRange() {
		return []*Ref{{Book: r.Book, Chapter: r.Chapter, Verse: r.Verse}}
	}
	out := make([]*Ref, 0, r.VerseEnd-r.Verse+1)
	for v := r.Verse; v <= r.VerseEnd; v++ {
		out = append(out, &Ref{Book: r.Book, Chapter: r.Chapter, Verse: v})
	}
	return out
}

// ContainsVerse returns true if this reference covers the other's verse.
func (r *Ref) ContainsVerse(other *Ref) bool {
	if r.Book != other.Book {
		return false
	}

	// Book-only reference contains all chapters
	if r.Chapter == 0 {
		return true
	}

	if r.Chapter != other.Chapter {
		return false
	}

	// Chapter-only reference contains all verses in that chapter
	if r.Verse == 0 {
		return true
	}

	if r.IsRange() {
		return other.Verse >= r.Verse && other.Verse <= r.VerseEnd
	}

	return r.Verse == other.Verse
}

// Compare orders references canonically: book order, then chapter, then
// verse. Unknown books sort after known ones, alphabetically. Suitable for
// slices.SortFunc.
func Compare(a, b *Ref) int {
	if c := compareBooks(a.Book, b.Book); c != 0 {
		return c
	}
	if a.Chapter != b.Chapter {
		return a.Chapter - b.Chapter
	}
	return a.Verse - b.Verse
}

func compareBooks(a, b string) int {
	an, aok := BookNumber(a)
	bn, bok := BookNumber(b)
	switch {
	case aok && bok:
		return an - bn
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
