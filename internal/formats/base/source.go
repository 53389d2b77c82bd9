// Package base defines the source-format contract and the registry the
// format packages register into. A source format turns a raw document into
// parsed verse trees; everything downstream works on those trees and never
// sees format-specific markup.
package base

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
)

// DetectResult reports whether a format matched a file and why.
type DetectResult struct {
	// Detected reports a match.
	Detected bool `json:"detected"`

	// Format names the matched format.
	Format string `json:"format,omitempty"`

	// Reason explains the decision.
	Reason string `json:"reason,omitempty"`
}

// Source is one document format: it can recognize files and parse them into
// verse trees.
type Source interface {
	// Name is the registry key, lower case.
	Name() string

	// Extensions lists the file extensions the format claims, with dots.
	Extensions() []string

	// Detect inspects a file on disk. Inability to read the file is a
	// non-match, not an error.
	Detect(path string) (*DetectResult, error)

	// ParseBook parses one book document. name labels the input in errors
	// and logs, usually the file path.
	ParseBook(r io.Reader, name string) (*markup.Book, error)
}

var (
	mu      sync.RWMutex
	sources = make(map[string]Source)
)

// Register adds a source to the registry. Format packages call this from
// init; a duplicate name panics since it is a wiring bug.
func Register(s Source) {
	mu.Lock()
	defer mu.Unlock()
	name := s.Name()
	if _, dup := sources[name]; dup {
		panic(fmt.Sprintf("formats: duplicate source %q", name))
	}
	sources[name] = s
}

// Get returns the source registered under name.
func Get(name string) (Source, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := sources[name]
	return s, ok
}

// Names returns the registered source names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ForPath finds the source whose Detect claims the file. Sources are tried
// in name order so detection is deterministic.
func ForPath(path string) (Source, error) {
	for _, name := range Names() {
		s, _ := Get(name)
		res, err := s.Detect(path)
		if err != nil {
			return nil, err
		}
		if res != nil && res.Detected {
			return s, nil
		}
	}
	return nil, errors.NewUnsupported("format", fmt.Sprintf("no registered format recognizes %s", path))
}

// ParseFile detects the file's format and parses it into a book.
func ParseFile(path string) (*markup.Book, error) {
	s, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return ParseFileAs(s, path)
}

// ParseFileAs parses the file with an explicitly chosen source.
func ParseFileAs(s Source, path string) (*markup.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()
	return s.ParseBook(f, path)
}
