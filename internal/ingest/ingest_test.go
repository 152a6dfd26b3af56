package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"vectorbid/internal/bid"

	_ "vectorbid/internal/ingest/dialect/ual"
)

const ualText = `PAIRING C1001 EQP 73G
DATES 2025-09-02 2025-09-03 2025-09-04
CREDIT 18:20 BLOCK 16:40
RPT 0900 RLS 1715
ROUTE DEN-SFO-SEA-DEN
LAYOVER SFO 15:00
LAYOVER SEA 14:00
END

PAIRING C1002
DATES 2025-09-06 2025-09-07
CREDIT 11:10 BLOCK 10:05
RPT 2130 RLS 0540
ROUTE DEN-EWR-DEN
LAYOVER EWR 13:30
END
`

const csvText = `pairing_id,days,credit_minutes,block_minutes,routing,dates,equipment,layovers
C2001,2,1130,1010,DEN|ORD|DEN,2025-09-10|2025-09-11,7M8,ORD:840
C2002,3,1710,1480,DEN|LHR|DEN,2025-09-15|2025-09-16|2025-09-17,789,LHR:1440
`

const jsonlText = `{"pairing_id":"C3001","days":1,"credit_minutes":380,"block_minutes":310,"routing":["DEN","LAS","DEN"],"dates":["2025-09-20"]}
{"pairing_id":"C3002","credit_minutes":900,"block_minutes":820,"routing":["DEN","SEA","DEN"],"dates":["2025-09-22","2025-09-23"]}
`

func testMeta() Meta {
	return Meta{Airline: "UAL", Month: "2025-09", Base: "DEN", Fleet: "737", Seat: "FO"}
}

func TestDetect(t *testing.T) {
	r := Default()
	tests := []struct {
		name     string
		data     string
		filename string
		want     string
	}{
		{"pdf magic", "%PDF-1.7 rest", "pack.pdf", FormatPDF},
		{"jsonl brace", jsonlText, "upload", FormatJSONL},
		{"jsonl ext", "whatever", "pack.jsonl", FormatJSONL},
		{"csv header", csvText, "upload", FormatCSV},
		{"csv ext", "a,b,c", "pack.csv", FormatCSV},
		{"txt fallback", ualText, "pack.txt", FormatTXT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := r.Detect([]byte(tt.data), tt.filename)
			if f == nil {
				t.Fatal("no format detected")
			}
			if f.Name() != tt.want {
				t.Errorf("Detect = %s, want %s", f.Name(), tt.want)
			}
		})
	}
}

func TestParseUALText(t *testing.T) {
	f := &txtFormat{}
	pairings, err := f.Parse(testMeta(), []byte(ualText))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pairings) != 2 {
		t.Fatalf("pairings = %d, want 2", len(pairings))
	}

	p := pairings[0]
	if p.PairingID != "C1001" || p.Days != 3 || p.CreditMinutes != 1100 || p.BlockMinutes != 1000 {
		t.Errorf("C1001 header = %+v", p)
	}
	if p.Equipment != "73G" {
		t.Errorf("equipment = %q, want 73G", p.Equipment)
	}
	if len(p.DutyPeriods) != 3 {
		t.Fatalf("duty periods = %d, want 3", len(p.DutyPeriods))
	}
	if h, _ := p.ReportHour(); h != 9 {
		t.Errorf("report hour = %d, want 9", h)
	}
	if p.HasRedEye {
		t.Error("C1001 should not be a red-eye")
	}
	if p.IncludesWeekend {
		t.Error("C1001 (Tue-Thu) should not touch a weekend")
	}

	q := pairings[1]
	if !q.HasRedEye {
		t.Error("C1002 (2130 report, 0540 release) should be a red-eye")
	}
	if !q.IncludesWeekend {
		t.Error("C1002 (Sat-Sun) should touch a weekend")
	}
	if rest, ok := q.MinRestMinutes(); !ok || rest <= 0 {
		t.Errorf("C1002 rest = %d,%v", rest, ok)
	}
}

func TestParseCSV(t *testing.T) {
	f := &csvFormat{}
	pairings, err := f.Parse(testMeta(), []byte(csvText))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pairings) != 2 {
		t.Fatalf("pairings = %d, want 2", len(pairings))
	}
	p := pairings[0]
	if p.PairingID != "C2001" || p.CreditMinutes != 1130 {
		t.Errorf("C2001 = %+v", p)
	}
	if len(p.DutyPeriods) == 0 {
		t.Error("CSV pairings should get synthesized duty periods")
	}
	if len(p.Layovers) != 1 || p.Layovers[0].Airport != "ORD" || p.Layovers[0].Minutes != 840 {
		t.Errorf("layovers = %+v", p.Layovers)
	}
	if !pairings[1].International() {
		t.Error("LHR pairing should be international")
	}
}

func TestParseCSVMissingColumn(t *testing.T) {
	f := &csvFormat{}
	_, err := f.Parse(testMeta(), []byte("pairing_id,days\nC1,2\n"))
	if err == nil || !strings.Contains(err.Error(), "required column") {
		t.Errorf("err = %v, want missing required column", err)
	}
}

func TestParseJSONL(t *testing.T) {
	f := &jsonlFormat{}
	pairings, err := f.Parse(testMeta(), []byte(jsonlText))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pairings) != 2 {
		t.Fatalf("pairings = %d, want 2", len(pairings))
	}
	if pairings[1].Days != 2 {
		t.Errorf("days should default to len(dates): %d", pairings[1].Days)
	}
	if pairings[0].Equipment != "737" {
		t.Errorf("equipment should default to fleet: %q", pairings[0].Equipment)
	}
}

// countingFormat wraps the txt format and counts Parse calls, proving
// the at-most-once parse guarantee.
type countingFormat struct {
	inner  Format
	parses int
}

func (c *countingFormat) Name() string                   { return c.inner.Name() }
func (c *countingFormat) Priority() int                  { return c.inner.Priority() }
func (c *countingFormat) Sniff(h []byte, fn string) bool { return c.inner.Sniff(h, fn) }
func (c *countingFormat) Parse(meta Meta, data []byte) ([]bid.Pairing, error) {
	c.parses++
	return c.inner.Parse(meta, data)
}

func TestIngestContentAddressed(t *testing.T) {
	reg := NewRegistry()
	cf := &countingFormat{inner: &txtFormat{}}
	reg.Register(cf)

	store := NewStore(t.TempDir(), reg, nil)
	ctx := context.Background()

	p1, existed, err := store.Ingest(ctx, testMeta(), []byte(ualText), "pack.txt")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if existed {
		t.Error("first ingest should not report existing content")
	}
	if p1.PackageID != bid.PackageID([]byte(ualText)) {
		t.Error("package id must be the content hash")
	}

	p2, existed, err := store.Ingest(ctx, testMeta(), []byte(ualText), "pack.txt")
	if err != nil {
		t.Fatalf("Ingest (dup): %v", err)
	}
	if !existed {
		t.Error("duplicate content should report existing")
	}
	if p1.PackageID != p2.PackageID {
		t.Error("same bytes must produce the same package id")
	}
	if cf.parses != 1 {
		t.Errorf("parse ran %d times, want exactly 1", cf.parses)
	}
}

func TestStoreSidecarSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry()
	cf := &countingFormat{inner: &txtFormat{}}
	reg.Register(cf)
	ctx := context.Background()

	s1 := NewStore(dir, reg, nil)
	p1, _, err := s1.Ingest(ctx, testMeta(), []byte(ualText), "pack.txt")
	if err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same directory serves the sidecar without
	// re-parsing.
	s2 := NewStore(dir, reg, nil)
	p2, existed, err := s2.Ingest(ctx, testMeta(), []byte(ualText), "pack.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !existed || p2.PackageID != p1.PackageID {
		t.Error("restarted store should recognize stored content")
	}
	if cf.parses != 1 {
		t.Errorf("parse ran %d times across restarts, want 1", cf.parses)
	}

	got, err := s2.Get(ctx, p1.PackageID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Pairings) != len(p1.Pairings) {
		t.Error("sidecar round-trip lost pairings")
	}
}

func TestIngestFailureStoresNothing(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil, nil)

	bad := "PAIRING C9\nDATES 2025-09-02\nEND\n" // missing CREDIT
	_, _, err := store.Ingest(context.Background(), testMeta(), []byte(bad), "pack.txt")
	if !errors.Is(err, ErrIngest) {
		t.Fatalf("err = %v, want ErrIngest", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T, want *ParseError", err)
	}
	if pe.FileHash == "" {
		t.Error("parse error must carry the file hash")
	}
	if pe.StartLine == 0 {
		t.Error("dialect failures should carry a line range")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed parse left %d files in the store", len(entries))
	}
}

func TestLookupByKey(t *testing.T) {
	store := NewStore(t.TempDir(), nil, nil)
	ctx := context.Background()

	p, _, err := store.Ingest(ctx, testMeta(), []byte(ualText), "pack.txt")
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.Lookup(ctx, "UAL", "2025-09", "DEN", "737", "FO")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.PackageID != p.PackageID {
		t.Error("lookup returned the wrong package")
	}

	if _, err := store.Lookup(ctx, "UAL", "2030-01", "DEN", "737", "FO"); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("missing key err = %v, want ErrPackageNotFound", err)
	}
}

func TestNormalizeDerivedFlags(t *testing.T) {
	pr := bid.Pairing{
		PairingID:     "C500",
		BlockMinutes:  900,
		CreditMinutes: 1000,
		Routing:       []string{"den", "sfo", "den"},
		Dates:         []string{"2025-09-06", "2025-09-06", "2025-09-07"},
	}
	if err := Normalize(&pr, testMeta()); err != nil {
		t.Fatal(err)
	}
	if pr.Routing[0] != "DEN" {
		t.Error("airports should be uppercased")
	}
	if len(pr.Dates) != 2 {
		t.Errorf("dates should be deduplicated: %v", pr.Dates)
	}
	if !pr.IncludesWeekend {
		t.Error("Sep 6-7 2025 is a weekend")
	}
	if pr.Days != 2 {
		t.Errorf("days = %d, want 2", pr.Days)
	}
	if len(pr.DutyPeriods) != 2 {
		t.Fatalf("synthesized duty periods = %d, want 2", len(pr.DutyPeriods))
	}
	if pr.DutyPeriods[0].DutyMinutes > 840 {
		t.Error("synthesized duty must not violate the FAR-117 daily cap for this block time")
	}
	if pr.DutyPeriods[1].RestBeforeMinutes < 600 {
		t.Error("synthesized rest must clear the FAR-117 floor")
	}
}
