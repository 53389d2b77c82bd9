package base

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
)

type fakeSource struct {
	name string
	exts []string
	book *markup.Book
}

func (f *fakeSource) Name() string         { return f.name }
func (f *fakeSource) Extensions() []string { return f.exts }

func (f *fakeSource) Detect(path string) (*DetectResult, error) {
	for _, ext := range f.exts {
		if strings.HasSuffix(path, ext) {
			return &DetectResult{Detected: true, Format: f.name, Reason: "extension"}, nil
		}
	}
	return &DetectResult{Detected: false, Reason: "extension mismatch"}, nil
}

func (f *fakeSource) ParseBook(r io.Reader, name string) (*markup.Book, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return f.book, nil
}

func TestRegisterAndGet(t *testing.T) {
	Register(&fakeSource{name: "fake-alpha", exts: []string{".alpha"}})

	s, ok := Get("fake-alpha")
	if !ok {
		t.Fatal("Get() did not find the registered source")
	}
	if s.Name() != "fake-alpha" {
		t.Errorf("name = %q, want %q", s.Name(), "fake-alpha")
	}
	if _, ok := Get("never-registered"); ok {
		t.Error("Get() found an unregistered source")
	}

	names := Names()
	found := false
	for _, n := range names {
		if n == "fake-alpha" {
			found = true
		}
	}
	if !found {
		t.Errorf("Names() = %v, missing fake-alpha", names)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register(&fakeSource{name: "fake-dup"})
	defer func() {
		if recover() == nil {
			t.Error("Register() of a duplicate name did not panic")
		}
	}()
	Register(&fakeSource{name: "fake-dup"})
}

func TestForPath(t *testing.T) {
	Register(&fakeSource{name: "fake-beta", exts: []string{".beta"}})

	s, err := ForPath("books/57-TIT.beta")
	if err != nil {
		t.Fatalf("ForPath() error = %v", err)
	}
	if s.Name() != "fake-beta" {
		t.Errorf("ForPath() picked %q, want %q", s.Name(), "fake-beta")
	}

	_, err = ForPath("books/57-TIT.unknown-ext")
	if err == nil {
		t.Fatal("ForPath() error = nil for unrecognized file")
	}
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestParseFile(t *testing.T) {
	book := &markup.Book{ID: "TIT", Title: "Titus"}
	Register(&fakeSource{name: "fake-gamma", exts: []string{".gamma"}, book: book})

	path := filepath.Join(t.TempDir(), "57-TIT.gamma")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if got.ID != "TIT" {
		t.Errorf("book id = %q, want %q", got.ID, "TIT")
	}
}

func TestParseFileAsMissingFile(t *testing.T) {
	s := &fakeSource{name: "fake-delta"}
	_, err := ParseFileAs(s, filepath.Join(t.TempDir(), "absent.delta"))
	if err == nil {
		t.Fatal("ParseFileAs() error = nil for missing file")
	}
	var ioErr *errors.IOError
	if !stderrors.As(err, &ioErr) {
		t.Errorf("error type = %T, want *errors.IOError", err)
	}
}
