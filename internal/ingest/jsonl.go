package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"vectorbid/internal/bid"
)

// jsonlFormat parses one JSON pairing object per line, matching the
// bid.Pairing field names.
type jsonlFormat struct{}

func init() {
	Register(&jsonlFormat{})
}

func (f *jsonlFormat) Name() string  { return FormatJSONL }
func (f *jsonlFormat) Priority() int { return 10 }

func (f *jsonlFormat) Sniff(head []byte, filename string) bool {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".jsonl") || strings.HasSuffix(lower, ".ndjson") {
		return true
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (f *jsonlFormat) Parse(meta Meta, data []byte) ([]bid.Pairing, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pairings []bid.Pairing
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var pr bid.Pairing
		if err := json.Unmarshal([]byte(text), &pr); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if pr.Raw == "" {
			pr.Raw = text
		}
		if err := Normalize(&pr, meta); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pairings = append(pairings, pr)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(pairings) == 0 {
		return nil, fmt.Errorf("no pairing objects")
	}
	return pairings, nil
}
