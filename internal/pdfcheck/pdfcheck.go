// Package pdfcheck inspects PDF bytes before they are offered for upload.
package pdfcheck

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when the data does not start with a PDF header
var ErrNotPDF = errors.New("not a PDF file")

// Info describes a parsed PDF
type Info struct {
	Pages int
}

// HasHeader reports whether data starts with the %PDF- magic
func HasHeader(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Inspect parses data as a PDF and returns its page count
func Inspect(data []byte) (info Info, err error) {
	if !HasHeader(data) {
		return Info{}, ErrNotPDF
	}

	// the parser panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			info, err = Info{}, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("open PDF: %w", err)
	}
	pages := reader.NumPage()
	if pages < 1 {
		return Info{}, fmt.Errorf("PDF has no pages")
	}
	return Info{Pages: pages}, nil
}

// Valid reports whether data parses as a PDF with at least one page
func Valid(data []byte) bool {
	_, err := Inspect(data)
	return err == nil
}
