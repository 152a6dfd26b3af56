// Package ingest converts uploaded bid-package files (PDF, CSV, JSONL,
// TXT) into normalized bid.BidPackage records and stores them
// content-addressed by the SHA-256 of the raw bytes.
package ingest

import (
	"errors"
	"fmt"
)

// ParserVersion changes whenever parse output for the same bytes could
// change. Sidecar parse results are keyed by it; bumping it forces a
// re-parse of previously ingested files.
const ParserVersion = "ingest/1"

// Source formats.
const (
	FormatPDF   = "pdf"
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
	FormatTXT   = "txt"
)

// ErrIngest marks any parse failure. No package is stored on failure.
var ErrIngest = errors.New("ingest failed")

// Meta identifies the slice of the bid system a file belongs to.
type Meta struct {
	Airline string `json:"airline"`
	Month   string `json:"month"` // YYYY-MM
	Base    string `json:"base"`
	Fleet   string `json:"fleet"`
	Seat    string `json:"seat"`
	PilotID string `json:"pilot_id,omitempty"`
}

// ParseError carries the file hash for support correlation and the line
// range the failure was observed in (0 when unknown).
type ParseError struct {
	Format    string
	FileHash  string
	StartLine int
	EndLine   int
	Err       error
}

func (e *ParseError) Error() string {
	if e.StartLine > 0 {
		return fmt.Sprintf("%s parse failed (lines %d-%d, file %s): %v",
			e.Format, e.StartLine, e.EndLine, e.FileHash, e.Err)
	}
	return fmt.Sprintf("%s parse failed (file %s): %v", e.Format, e.FileHash, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIngest) match any ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrIngest }
