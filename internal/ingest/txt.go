package ingest

import (
	"errors"
	"fmt"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest/dialect"
)

// txtFormat hands raw pairing text to the airline dialect registry.
// It is the catch-all format: anything the structured sniffers reject
// lands here.
type txtFormat struct{}

func init() {
	Register(&txtFormat{})
}

func (f *txtFormat) Name() string  { return FormatTXT }
func (f *txtFormat) Priority() int { return 90 }

func (f *txtFormat) Sniff(head []byte, filename string) bool {
	return true
}

func (f *txtFormat) Parse(meta Meta, data []byte) ([]bid.Pairing, error) {
	return parseDialectText(meta, string(data))
}

// parseDialectText resolves the airline dialect and normalizes its
// output. Shared with the PDF format, which extracts text first.
func parseDialectText(meta Meta, text string) ([]bid.Pairing, error) {
	d := dialect.Lookup(meta.Airline)
	if d == nil {
		return nil, fmt.Errorf("no pairing dialect registered for airline %q", meta.Airline)
	}
	pairings, err := d.ParsePairings(text)
	if err != nil {
		return nil, err
	}
	for i := range pairings {
		if err := Normalize(&pairings[i], meta); err != nil {
			return nil, err
		}
	}
	if len(pairings) == 0 {
		return nil, errors.New("dialect produced no pairings")
	}
	return pairings, nil
}
