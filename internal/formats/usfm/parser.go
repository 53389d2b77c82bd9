// Package usfm parses USFM 3 books carrying word-alignment markup into the
// verse node trees the tokenizer consumes.
//
// The format interleaves three marker families inside verse text:
//
//	\zaln-s |x-strong="G39720" x-lemma="Παῦλος" ... x-content="Παῦλος"\*
//	  ...wrapped words...
//	\zaln-e\*
//	\w Paul|x-occurrence="1" x-occurrences="1"\w*
//
// Alignment wrappers nest when one target phrase realizes several original
// words. Malformed wrappers (unopened \zaln-e, unclosed \zaln-s at verse
// end) are recovered by dropping the wrapper and keeping its contents.
package usfm

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

// USFM parsing helpers
var (
	attrRegex     = regexp.MustCompile(`([0-9A-Za-z][0-9A-Za-z_-]*)="([^"]*)"`)
	verseNumRegex = regexp.MustCompile(`^(\d+)(?:-(\d+))?`)
	chapterRegex  = regexp.MustCompile(`^(\d+)`)
)

// paragraphMarkers are the markers whose trailing text continues the open
// verse. The paragraph break itself is not verse content.
var paragraphMarkers = map[string]bool{
	"p": true, "m": true, "pi": true, "mi": true, "nb": true, "b": true,
	"q": true, "q1": true, "q2": true, "q3": true, "qr": true, "qc": true,
	"qm": true, "li": true, "li1": true, "li2": true, "pc": true,
}

// ParseFile parses a USFM book from a file.
func ParseFile(path string) (*markup.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return Parse(data)
}

// Parse parses a USFM book. The only fatal condition is a document with no
// \id marker; defects inside verse text are recovered per verse.
func Parse(data []byte) (*markup.Book, error) {
	book := &markup.Book{}

	var (
		chapter   int
		verse     int
		verseEnd  int
		verseText strings.Builder
	)

	flush := func() {
		if verse == 0 {
			return
		}
		vref := &ref.Ref{Book: book.ID, Chapter: chapter, Verse: verse, VerseEnd: verseEnd}
		book.Verses = append(book.Verses, &markup.Verse{
			Ref:   vref,
			Nodes: parseInline(verseText.String(), vref),
		})
		verse = 0
		verseEnd = 0
		verseText.Reset()
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "\\") {
			// Bare continuation line, part of the open verse.
			if verse > 0 {
				appendVerseText(&verseText, line)
			}
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		marker := strings.TrimPrefix(parts[0], "\\")
		var value string
		if len(parts) > 1 {
			value = parts[1]
		}

		switch {
		case marker == "id":
			flush()
			if fields := strings.Fields(value); len(fields) > 0 {
				book.ID = ref.NormalizeBook(fields[0])
			}

		case marker == "h":
			if book.Title == "" && value != "" {
				book.Title = value
			}

		case marker == "mt" || marker == "mt1":
			if book.Title == "" && value != "" {
				book.Title = value
			}

		case marker == "c":
			flush()
			if m := chapterRegex.FindStringSubmatch(value); m != nil {
				chapter, _ = strconv.Atoi(m[1])
			}

		case marker == "v":
			flush()
			m := verseNumRegex.FindStringSubmatch(value)
			if m == nil {
				logging.MarkupRecovery(book.ID, "verse marker without number skipped", "line", line)
				continue
			}
			verse, _ = strconv.Atoi(m[1])
			if m[2] != "" {
				verseEnd, _ = strconv.Atoi(m[2])
			}
			appendVerseText(&verseText, strings.TrimSpace(value[len(m[0]):]))

		case paragraphMarkers[marker]:
			if verse > 0 {
				appendVerseText(&verseText, value)
			}

		default:
			// Headings, TOC entries, section references and the like are
			// not verse content.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &errors.ParseError{Format: "USFM", Message: "reading input", Err: err}
	}
	flush()

	if book.ID == "" {
		return nil, errors.NewParse("USFM", "", "document has no \\id marker")
	}
	return book, nil
}

// appendVerseText joins verse fragments from successive lines with a single
// space so tokenization sees one continuous text.
func appendVerseText(buf *strings.Builder, text string) {
	if text == "" {
		return
	}
	if buf.Len() > 0 {
		buf.WriteString(" ")
	}
	buf.WriteString(text)
}

// parseInline parses one verse's marker stream into a node tree,
// reconstructing alignment nesting with a stack. An unopened \zaln-e is
// ignored; a wrapper still open at verse end is dropped and its children
// spliced into the enclosing level.
func parseInline(text string, vref *ref.Ref) []markup.Node {
	var root []markup.Node
	var stack []*markup.Milestone

	appendNode := func(n markup.Node) {
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			top.Children = append(top.Children, n)
		} else {
			root = append(root, n)
		}
	}

	for i := 0; i < len(text); {
		next := strings.IndexByte(text[i:], '\\')
		if next < 0 {
			if i < len(text) {
				appendNode(&markup.Text{Value: text[i:]})
			}
			break
		}
		if next > 0 {
			appendNode(&markup.Text{Value: text[i : i+next]})
			i += next
		}
		rest := text[i:]

		switch {
		case strings.HasPrefix(rest, "\\zaln-s"):
			end := strings.Index(rest, "\\*")
			if end < 0 {
				logging.MarkupRecovery(vref.String(), "unterminated zaln-s marker dropped")
				i = len(text)
				continue
			}
			stack = append(stack, milestoneFromAttrs(rest[:end]))
			i += end + 2

		case strings.HasPrefix(rest, "\\zaln-e\\*"):
			if len(stack) == 0 {
				logging.MarkupRecovery(vref.String(), "zaln-e without matching zaln-s ignored")
			} else {
				ms := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				appendNode(ms)
			}
			i += len("\\zaln-e\\*")

		case strings.HasPrefix(rest, "\\w "):
			end := strings.Index(rest, "\\w*")
			if end < 0 {
				logging.MarkupRecovery(vref.String(), "unterminated word marker, kept as text")
				appendNode(&markup.Text{Value: rest[len("\\w "):]})
				i = len(text)
				continue
			}
			appendNode(wordFromMarker(rest[len("\\w "):end]))
			i += end + len("\\w*")

		case strings.HasPrefix(rest, "\\f ") || strings.HasPrefix(rest, "\\x "):
			// Footnotes and cross-reference notes are not verse text.
			closer := "\\f*"
			if strings.HasPrefix(rest, "\\x ") {
				closer = "\\x*"
			}
			end := strings.Index(rest, closer)
			if end < 0 {
				i = len(text)
				continue
			}
			i += end + len(closer)

		default:
			// Transparent character markers (\add, \nd, \it, ...): drop the
			// marker, keep the wrapped text.
			i += markerLen(rest)
		}
	}

	// Unclosed wrappers: drop the wrapper, keep the contents.
	for len(stack) > 0 {
		ms := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		logging.MarkupRecovery(vref.String(), "unclosed zaln-s dropped, contents kept",
			"strong", ms.Strong, "children", len(ms.Children))
		for _, child := range ms.Children {
			appendNode(child)
		}
	}
	return root
}

// markerLen returns the length of the marker token at the start of rest:
// the backslash, the marker name, and an optional trailing '*' or '\*'.
func markerLen(rest string) int {
	n := 1
	for n < len(rest) {
		c := rest[n]
		if c == '+' || c == '-' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			n++
			continue
		}
		break
	}
	if n < len(rest) && rest[n] == '*' {
		n++
	}
	if n < len(rest) && rest[n] == ' ' {
		n++
	}
	return n
}

// milestoneFromAttrs builds a Milestone from a zaln-s marker body,
// e.g. `\zaln-s |x-strong="G23160" x-lemma="θεός" x-content="Θεοῦ"`.
func milestoneFromAttrs(marker string) *markup.Milestone {
	ms := &markup.Milestone{}
	for _, m := range attrRegex.FindAllStringSubmatch(marker, -1) {
		switch m[1] {
		case "x-strong", "strong":
			ms.Strong = m[2]
		case "x-lemma", "lemma":
			ms.Lemma = m[2]
		case "x-morph", "morph":
			ms.Morph = m[2]
		case "x-occurrence", "occurrence":
			ms.Occurrence = m[2]
		case "x-occurrences", "occurrences":
			ms.Occurrences = m[2]
		case "x-content", "content":
			ms.Content = m[2]
		}
	}
	return ms
}

// wordFromMarker builds a Word from a \w marker body, e.g.
// `Paul|x-occurrence="1" x-occurrences="1"`. The attribute block is
// optional.
func wordFromMarker(body string) *markup.Word {
	text := body
	var attrs string
	if bar := strings.IndexByte(body, '|'); bar >= 0 {
		text = body[:bar]
		attrs = body[bar+1:]
	}
	w := &markup.Word{Text: text}
	for _, m := range attrRegex.FindAllStringSubmatch(attrs, -1) {
		switch m[1] {
		case "x-occurrence", "occurrence":
			w.Occurrence, _ = strconv.Atoi(m[2])
		case "x-occurrences", "occurrences":
			w.Occurrences, _ = strconv.Atoi(m[2])
		}
	}
	return w
}
