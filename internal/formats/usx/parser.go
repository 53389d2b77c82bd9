// Package usx parses USX 3 documents carrying word-alignment markup into
// the verse node trees the tokenizer consumes.
//
// USX encodes alignment wrappers as paired empty milestone elements
// (<ms style="zaln-s" .../> ... <ms style="zaln-e" .../>) rather than
// nesting, so the parser re-pairs them by document order with a stack.
// Words are <char style="w"> elements; verse boundaries are <verse> start
// (sid/number) and end (eid) elements.
package usx

import (
	"os"
	"strings"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xml"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

// titleStyles are para styles whose text names the book.
var titleStyles = map[string]bool{"h": true, "mt": true, "mt1": true}

// skipStyles are para styles that never contain verse text.
var skipStyles = map[string]bool{
	"ide": true, "toc1": true, "toc2": true, "toc3": true,
	"s": true, "s1": true, "s2": true, "r": true, "d": true,
	"rem": true, "mr": true, "ms": true, "ms1": true, "cl": true,
}

// ParseFile parses a USX book from a file.
func ParseFile(path string) (*markup.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return Parse(data)
}

// Parse parses a USX 3 book document.
func Parse(data []byte) (*markup.Book, error) {
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, &errors.ParseError{Format: "USX", Message: "malformed XML", Err: err}
	}

	root := doc.Root()
	if root == nil || root.Name() != "usx" {
		return nil, errors.NewParse("USX", "", "document root is not <usx>")
	}

	p := &parser{book: &markup.Book{}}
	for _, child := range root.Children() {
		switch child.Name() {
		case "book":
			p.book.ID = ref.NormalizeBook(child.Attr("code"))
		case "chapter":
			if child.Attr("number") != "" {
				p.flushVerse()
				p.chapter = atoi(child.Attr("number"))
			}
		case "para":
			p.para(child)
		}
	}
	p.flushVerse()

	if p.book.ID == "" {
		return nil, errors.NewParse("USX", "", "document has no <book> element")
	}
	return p.book, nil
}

// parser carries the walk state: the current chapter and verse, the node
// list under construction, and the open milestone stack.
type parser struct {
	book    *markup.Book
	chapter int
	verse   int
	end     int
	nodes   []markup.Node
	stack   []*markup.Milestone
}

func (p *parser) para(n *xml.Node) {
	style := n.Attr("style")
	if titleStyles[style] {
		if p.book.Title == "" {
			if title := strings.TrimSpace(n.Text()); title != "" {
				p.book.Title = title
			}
		}
		return
	}
	if skipStyles[style] {
		return
	}
	p.walk(n)
}

// walk visits a content element's children in document order.
func (p *parser) walk(n *xml.Node) {
	for _, child := range n.Nodes() {
		switch {
		case child.IsText():
			if p.verse > 0 {
				p.appendNode(&markup.Text{Value: child.Text()})
			}

		case child.Name() == "verse":
			if child.HasAttr("eid") {
				p.flushVerse()
				continue
			}
			p.flushVerse()
			p.startVerse(child)

		case child.Name() == "ms":
			p.milestone(child)

		case child.Name() == "char" && child.Attr("style") == "w",
			child.Name() == "w":
			if p.verse > 0 {
				p.appendNode(wordFromElement(child))
			}

		case child.Name() == "note":
			// Footnotes and cross-reference notes are not verse text.

		default:
			// Transparent character markup: keep the wrapped content.
			p.walk(child)
		}
	}
}

func (p *parser) startVerse(n *xml.Node) {
	num := n.Attr("number")
	if num == "" {
		if sid := n.Attr("sid"); sid != "" {
			if r, err := ref.ParseRef(sid); err == nil {
				p.chapter = r.Chapter
				p.verse = r.Verse
				p.end = r.VerseEnd
				return
			}
		}
		logging.MarkupRecovery(p.book.ID, "verse element without number or sid skipped")
		return
	}
	start, end := num, ""
	if dash := strings.IndexByte(num, '-'); dash >= 0 {
		start, end = num[:dash], num[dash+1:]
	}
	p.verse = atoi(start)
	p.end = atoi(end)
}

// milestone handles paired zaln markers. A start marker opens a wrapper on
// the stack; an end marker closes the innermost one and attaches it.
func (p *parser) milestone(n *xml.Node) {
	switch n.Attr("style") {
	case "zaln-s":
		if p.verse == 0 {
			logging.MarkupRecovery(p.book.ID, "zaln-s outside a verse ignored")
			return
		}
		p.stack = append(p.stack, &markup.Milestone{
			Strong:      pick(n, "strong", "x-strong"),
			Lemma:       pick(n, "lemma", "x-lemma"),
			Morph:       pick(n, "morph", "x-morph"),
			Occurrence:  pick(n, "occurrence", "x-occurrence"),
			Occurrences: pick(n, "occurrences", "x-occurrences"),
			Content:     pick(n, "content", "x-content"),
		})
	case "zaln-e":
		if len(p.stack) == 0 {
			logging.MarkupRecovery(p.verseRef().String(), "zaln-e without matching zaln-s ignored")
			return
		}
		ms := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		p.appendNode(ms)
	}
}

func (p *parser) appendNode(n markup.Node) {
	if len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		top.Children = append(top.Children, n)
		return
	}
	p.nodes = append(p.nodes, n)
}

// flushVerse closes the current verse, recovering any wrapper still open by
// dropping it and keeping its contents.
func (p *parser) flushVerse() {
	for len(p.stack) > 0 {
		ms := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		logging.MarkupRecovery(p.verseRef().String(), "unclosed zaln-s dropped, contents kept",
			"strong", ms.Strong, "children", len(ms.Children))
		for _, child := range ms.Children {
			p.appendNode(child)
		}
	}
	if p.verse == 0 {
		p.nodes = nil
		return
	}
	p.book.Verses = append(p.book.Verses, &markup.Verse{
		Ref:   p.verseRef(),
		Nodes: p.nodes,
	})
	p.verse = 0
	p.end = 0
	p.nodes = nil
}

func (p *parser) verseRef() *ref.Ref {
	return &ref.Ref{Book: p.book.ID, Chapter: p.chapter, Verse: p.verse, VerseEnd: p.end}
}

func wordFromElement(n *xml.Node) *markup.Word {
	return &markup.Word{
		Text:        n.Text(),
		Occurrence:  atoi(pick(n, "occurrence", "x-occurrence")),
		Occurrences: atoi(pick(n, "occurrences", "x-occurrences")),
	}
}

// pick returns the first present attribute from the candidates. Aligned USX
// exports vary between bare and x- prefixed attribute names.
func pick(n *xml.Node, names ...string) string {
	for _, name := range names {
		if v := n.Attr(name); v != "" {
			return v
		}
	}
	return ""
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
