package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"vectorbid/internal/bid"
)

// pdfFormat extracts plain text from a PDF bid package, then parses it
// with the airline dialect like any other pairing text.
type pdfFormat struct{}

func init() {
	Register(&pdfFormat{})
}

func (f *pdfFormat) Name() string  { return FormatPDF }
func (f *pdfFormat) Priority() int { return 5 }

func (f *pdfFormat) Sniff(head []byte, filename string) bool {
	return bytes.HasPrefix(head, []byte("%PDF-"))
}

func (f *pdfFormat) Parse(meta Meta, data []byte) ([]bid.Pairing, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	text, err := extractText(r)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return parseDialectText(meta, text)
}

func extractText(r *pdf.Reader) (string, error) {
	var sb strings.Builder
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", err
	}
	return sb.String(), nil
}
