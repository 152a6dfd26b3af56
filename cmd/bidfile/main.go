// Package main provides bidfile, an offline bid-package inspection tool.
//
// bidfile parses a package file with the same format detection and
// dialect parsers the service uses, then prints either a summary or the
// normalized package JSON. Useful when developing a new airline dialect:
// iterate on the parser against a real file without running the service.
//
// Usage:
//
//	bidfile -airline UAL -month 2025-09 -base DEN [options] FILE
//
// Options:
//
//	-airline CODE   airline dialect (required)
//	-month YYYY-MM  bid month (required)
//	-base IATA      base airport (required)
//	-fleet NAME     fleet (optional)
//	-seat SEAT      FO or CA (optional)
//	-json           print the full normalized package as JSON
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest"

	_ "vectorbid/internal/ingest/dialect/ual"
)

func main() {
	airline := flag.String("airline", "", "airline dialect (required)")
	month := flag.String("month", "", "bid month YYYY-MM (required)")
	base := flag.String("base", "", "base airport (required)")
	fleet := flag.String("fleet", "", "fleet")
	seat := flag.String("seat", "", "seat (FO or CA)")
	asJSON := flag.Bool("json", false, "print the normalized package as JSON")
	flag.Parse()

	if *airline == "" || !bid.ValidMonth(*month) || *base == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bidfile -airline UAL -month 2025-09 -base DEN [options] FILE")
		os.Exit(2)
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}

	meta := ingest.Meta{
		Airline: *airline,
		Month:   *month,
		Base:    *base,
		Fleet:   *fleet,
		Seat:    *seat,
	}

	registry := ingest.Default()
	format := registry.Detect(data, path)
	if format == nil {
		fmt.Fprintf(os.Stderr, "no parser recognizes %s (formats: %v)\n", path, registry.Names())
		os.Exit(1)
	}

	pairings, err := format.Parse(meta, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse (%s): %v\n", format.Name(), err)
		os.Exit(1)
	}

	pkg := &bid.BidPackage{
		PackageID:    bid.PackageID(data),
		Airline:      meta.Airline,
		Month:        meta.Month,
		Base:         meta.Base,
		Fleet:        meta.Fleet,
		Seat:         meta.Seat,
		SourceFormat: format.Name(),
		Pairings:     pairings,
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pkg); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
		return
	}

	s := pkg.Summary()
	fmt.Printf("package:  %s\n", pkg.PackageID[:12])
	fmt.Printf("format:   %s\n", pkg.SourceFormat)
	fmt.Printf("trips:    %d\n", s.Trips)
	fmt.Printf("legs:     %d\n", s.Legs)
	fmt.Printf("dates:    %s\n", s.DateSpan)
	fmt.Printf("credit:   %dh%02dm total\n", s.CreditTotal/60, s.CreditTotal%60)

	redEyes, weekends := 0, 0
	for i := range pkg.Pairings {
		if pkg.Pairings[i].HasRedEye {
			redEyes++
		}
		if pkg.Pairings[i].IncludesWeekend {
			weekends++
		}
	}
	fmt.Printf("red-eyes: %d trips\n", redEyes)
	fmt.Printf("weekend:  %d trips\n", weekends)
}
