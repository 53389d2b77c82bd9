package usfm

import (
	"bytes"
	"io"
	"os"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/formats/base"
)

// source implements base.Source for USFM documents.
type source struct{}

func init() {
	base.Register(source{})
}

func (source) Name() string { return "usfm" }

func (source) Extensions() []string { return []string{".usfm", ".sfm"} }

// Detect claims files whose leading bytes carry the \id marker. USFM has
// no magic number; the \id line is mandatory and always first in practice.
func (source) Detect(path string) (*base.DetectResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return &base.DetectResult{Detected: false, Reason: "unreadable"}, nil
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	head = head[:n]

	if bytes.Contains(head, []byte(`\id `)) {
		return &base.DetectResult{Detected: true, Format: "usfm", Reason: `found \id marker`}, nil
	}
	return &base.DetectResult{Detected: false, Reason: `no \id marker in leading bytes`}, nil
}

func (source) ParseBook(r io.Reader, name string) (*markup.Book, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return Parse(data)
}
