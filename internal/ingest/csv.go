package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"vectorbid/internal/bid"
)

// csvFormat parses comma-separated packages. The header row names the
// columns; pairing_id, credit_minutes, and dates are required. Multi-
// valued cells (routing, dates) use | separators.
type csvFormat struct{}

func init() {
	Register(&csvFormat{})
}

func (f *csvFormat) Name() string  { return FormatCSV }
func (f *csvFormat) Priority() int { return 20 }

func (f *csvFormat) Sniff(head []byte, filename string) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return true
	}
	line := head
	if idx := bytes.IndexByte(head, '\n'); idx >= 0 {
		line = head[:idx]
	}
	return bytes.Contains(line, []byte("pairing_id")) && bytes.Contains(line, []byte(","))
}

func (f *csvFormat) Parse(meta Meta, data []byte) ([]bid.Pairing, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, required := range []string{"pairing_id", "credit_minutes", "dates"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var pairings []bid.Pairing
	line := 1
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		pr := bid.Pairing{
			PairingID: cell(row, "pairing_id"),
			Equipment: cell(row, "equipment"),
			Raw:       strings.Join(row, ","),
		}
		if pr.PairingID == "" {
			return nil, fmt.Errorf("line %d: empty pairing_id", line)
		}
		if v := cell(row, "days"); v != "" {
			pr.Days, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad days %q", line, v)
			}
		}
		pr.CreditMinutes, err = strconv.Atoi(cell(row, "credit_minutes"))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad credit_minutes", line)
		}
		if v := cell(row, "block_minutes"); v != "" {
			pr.BlockMinutes, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad block_minutes", line)
			}
		}
		if v := cell(row, "routing"); v != "" {
			pr.Routing = strings.Split(v, "|")
		}
		pr.Dates = strings.Split(cell(row, "dates"), "|")
		if v := cell(row, "layovers"); v != "" {
			// airport:minutes pairs, | separated.
			for _, part := range strings.Split(v, "|") {
				ap, min, ok := strings.Cut(part, ":")
				if !ok {
					return nil, fmt.Errorf("line %d: bad layover %q", line, part)
				}
				mins, err := strconv.Atoi(min)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad layover minutes %q", line, min)
				}
				pr.Layovers = append(pr.Layovers, bid.Layover{Airport: ap, Minutes: mins})
			}
		}

		if err := Normalize(&pr, meta); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pairings = append(pairings, pr)
	}

	if len(pairings) == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	return pairings, nil
}
