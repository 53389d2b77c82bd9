package usx

import (
	"bytes"
	"io"
	"os"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/formats/base"
)

// source implements base.Source for USX documents.
type source struct{}

func init() {
	base.Register(source{})
}

func (source) Name() string { return "usx" }

func (source) Extensions() []string { return []string{".usx"} }

// Detect claims files whose leading bytes contain a <usx element, with or
// without an XML declaration before it.
func (source) Detect(path string) (*base.DetectResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return &base.DetectResult{Detected: false, Reason: "unreadable"}, nil
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	head = head[:n]

	if bytes.Contains(head, []byte("<usx")) {
		return &base.DetectResult{Detected: true, Format: "usx", Reason: "found <usx> root"}, nil
	}
	return &base.DetectResult{Detected: false, Reason: "no <usx> root in leading bytes"}, nil
}

func (source) ParseBook(r io.Reader, name string) (*markup.Book, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return Parse(data)
}
