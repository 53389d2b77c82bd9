// Package resources implements the annotation collaborators queried during
// word interaction resolution: explanatory translation notes, original-word
// glossary links, and comprehension questions.
//
// Each resource is a set of per-book TSV tables (tn_TIT.tsv, twl_TIT.tsv,
// tq_TIT.tsv) shipped either as loose files in a directory, as a single
// file, or inside a .tar.xz/.tar.gz bundle. Tables parse lazily on first
// use and stay cached for a bounded time.
package resources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xref"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/archive"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/cache"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

// DefaultCacheTTL bounds how long a parsed table is served before the
// source is re-read.
const DefaultCacheTTL = 15 * time.Minute

// rowMapper converts one TSV row into a record. Returning a nil record
// skips the row (non-verse anchors like "front:intro").
type rowMapper func(book string, row map[string]string) (*xref.Record, error)

// Source is one annotation resource. It implements xref.Collaborator for
// every book its files cover.
type Source struct {
	kind   xref.Kind
	prefix string
	path   string
	mapRow rowMapper
	tables *cache.TTLCache[string, map[string][]*xref.Record]
}

// NewNotes opens an explanatory-notes resource (tn_* tables: Reference,
// ID, SupportReference, Quote, Occurrence, Note).
func NewNotes(path string) *Source {
	return newSource(xref.KindNote, "tn", path, noteRow)
}

// NewWordLinks opens a glossary-link resource (twl_* tables: Reference,
// ID, OrigWords, Occurrence, TWLink).
func NewWordLinks(path string) *Source {
	return newSource(xref.KindGlossaryLink, "twl", path, wordLinkRow)
}

// NewQuestions opens a comprehension-questions resource (tq_* tables:
// Reference, ID, Quote, Occurrence, Question, Response).
func NewQuestions(path string) *Source {
	return newSource(xref.KindQuestion, "tq", path, questionRow)
}

func newSource(kind xref.Kind, prefix, path string, mapRow rowMapper) *Source {
	return &Source{
		kind:   kind,
		prefix: prefix,
		path:   path,
		mapRow: mapRow,
		tables: cache.New[string, map[string][]*xref.Record](DefaultCacheTTL),
	}
}

// Kind reports the collaborator's record kind.
func (s *Source) Kind() xref.Kind {
	return s.kind
}

// RecordsForVerse returns the resource's records annotating the verse, in
// table declaration order.
func (s *Source) RecordsForVerse(ctx context.Context, vref *ref.Ref) ([]*xref.Record, error) {
	if vref == nil || vref.Book == "" {
		return nil, errors.NewValidation("ref", "verse reference with book is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byVerse, err := s.table(vref.Book)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return byVerse[vref.Key()], nil
}

// table returns the parsed table for a book, loading it when the cache
// misses or has expired.
func (s *Source) table(book string) (map[string][]*xref.Record, error) {
	if t, ok := s.tables.Get(book); ok {
		return t, nil
	}

	data, err := s.read(book)
	if err != nil {
		return nil, err
	}
	byVerse, err := s.parse(book, data)
	if err != nil {
		return nil, err
	}
	s.tables.Set(book, byVerse)
	return byVerse, nil
}

// read locates the book's TSV bytes: a loose file in a directory, the
// source path itself, or a member of a tar bundle.
func (s *Source) read(book string) ([]byte, error) {
	name := fmt.Sprintf("%s_%s.tsv", s.prefix, book)

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, errors.NewIO("stat", s.path, err)
	}

	switch {
	case info.IsDir():
		data, err := os.ReadFile(filepath.Join(s.path, name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &errors.NotFoundError{Resource: string(s.kind) + " table", ID: name}
			}
			return nil, errors.NewIO("read", name, err)
		}
		return data, nil

	case strings.HasSuffix(s.path, ".tar.xz") || strings.HasSuffix(s.path, ".tar.gz"):
		data, _, err := archive.FindFile(s.path, func(member string) bool {
			return filepath.Base(member) == name
		})
		if err != nil {
			return nil, &errors.NotFoundError{Resource: string(s.kind) + " table", ID: name, Err: err}
		}
		return data, nil

	default:
		return os.ReadFile(s.path)
	}
}

// parse reads a TSV table into per-verse record lists. Defective rows are
// skipped, never fatal: annotation tables are hand-edited content.
func (s *Source) parse(book string, data []byte) (map[string][]*xref.Record, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return map[string][]*xref.Record{}, nil
	}

	header := strings.Split(lines[0], "\t")
	byVerse := make(map[string][]*xref.Record)

	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		row := make(map[string]string, len(header))
		for j, col := range header {
			if j < len(fields) {
				row[col] = fields[j]
			}
		}

		rec, err := s.mapRow(book, row)
		if err != nil {
			logging.Debug("annotation row skipped",
				"resource", s.prefix, "book", book, "line", i+2, "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		rec.Kind = s.kind
		// A ranged Reference ("1:1-3") annotates every verse it covers;
		// register the record under each so mid-range lookups find it.
		for _, v := range rec.Ref.Verses() {
			key := v.Key()
			byVerse[key] = append(byVerse[key], rec)
		}
	}
	return byVerse, nil
}

// noteRow maps a translation-notes row.
func noteRow(book string, row map[string]string) (*xref.Record, error) {
	vref, err := rowRef(book, row["Reference"])
	if err != nil || vref == nil {
		return nil, err
	}
	return &xref.Record{
		ID:         row["ID"],
		Ref:        vref,
		Quote:      row["Quote"],
		Occurrence: rowOccurrence(row["Occurrence"]),
		Body:       row["Note"],
		Link:       row["SupportReference"],
	}, nil
}

// wordLinkRow maps a word-links row. OrigWords is the quoted original text;
// TWLink points into the glossary.
func wordLinkRow(book string, row map[string]string) (*xref.Record, error) {
	vref, err := rowRef(book, row["Reference"])
	if err != nil || vref == nil {
		return nil, err
	}
	return &xref.Record{
		ID:         row["ID"],
		Ref:        vref,
		Quote:      row["OrigWords"],
		Occurrence: rowOccurrence(row["Occurrence"]),
		Body:       linkTitle(row["TWLink"]),
		Link:       row["TWLink"],
	}, nil
}

// questionRow maps a study-questions row.
func questionRow(book string, row map[string]string) (*xref.Record, error) {
	vref, err := rowRef(book, row["Reference"])
	if err != nil || vref == nil {
		return nil, err
	}
	return &xref.Record{
		ID:         row["ID"],
		Ref:        vref,
		Quote:      row["Quote"],
		Occurrence: rowOccurrence(row["Occurrence"]),
		Body:       row["Question"],
	}, nil
}

// rowRef parses a table's Reference column. Non-verse anchors such as
// "front:intro" or "1:intro" return (nil, nil) and the row is skipped.
func rowRef(book, reference string) (*ref.Ref, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, errors.NewValidation("Reference", "empty reference column")
	}
	vref, err := ref.ParseChapterVerse(book, reference)
	if err != nil {
		// Intro and front-matter anchors are expected, not defects.
		if strings.Contains(reference, "intro") || strings.HasPrefix(reference, "front") {
			return nil, nil
		}
		return nil, err
	}
	return vref, nil
}

func rowOccurrence(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// linkTitle derives a display title from a glossary link like
// "rc://*/tw/dict/bible/kt/god": the final path element.
func linkTitle(link string) string {
	link = strings.TrimRight(strings.TrimSpace(link), "/")
	if link == "" {
		return ""
	}
	if i := strings.LastIndexByte(link, '/'); i >= 0 {
		return link[i+1:]
	}
	return link
}
