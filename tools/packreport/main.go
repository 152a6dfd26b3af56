// Package main provides a corpus reporter for ingested bid packages.
// It reads the package store's JSON sidecars (and optionally the service
// SQLite database) and reports pairing distributions, credit histograms,
// dialect coverage, and index health.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	packagesDir := flag.String("packages", "./packages", "Package store directory (hash.json sidecars)")
	dbPath := flag.String("db", "", "Service SQLite database (adds index and export coverage)")
	outputFormat := flag.String("format", "text", "Output format: text, json")
	airline := flag.String("airline", "", "Report on one airline only")
	month := flag.String("month", "", "Report on one bid month only (YYYY-MM)")
	topN := flag.Int("top", 15, "Show top N items in each category")
	flag.Parse()

	fmt.Fprintf(os.Stderr, "Scanning %s...\n", *packagesDir)
	packages, skipped, err := scanSidecars(*packagesDir, *airline, *month)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning packages: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "  - %d packages loaded, %d sidecars skipped\n", len(packages), skipped)

	report := &CorpusReport{}
	report.Summary = analyzeSummary(packages, skipped)
	report.FormatCoverage = analyzeFormatCoverage(packages)
	report.TripLengths = analyzeTripLengths(packages)
	report.CreditHistogram = analyzeCreditHistogram(packages)
	report.Equipment = analyzeEquipment(packages, *topN)
	report.Layovers = analyzeLayovers(packages, *topN)
	report.Packages = analyzePackages(packages)

	if *dbPath != "" {
		db, err := sql.Open("sqlite3", *dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		report.Index = analyzeIndex(db, packages, *airline, *month)
		fmt.Fprintf(os.Stderr, "  - Index coverage complete\n")
	}

	if *outputFormat == "json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		printTextReport(report, *topN)
	}
}

// CorpusReport contains all analysis results.
type CorpusReport struct {
	Summary         SummaryStats    `json:"summary"`
	FormatCoverage  []FormatCount   `json:"format_coverage"`
	TripLengths     []DayCount      `json:"trip_lengths"`
	CreditHistogram []CreditBucket  `json:"credit_histogram"`
	Equipment       []EquipCount    `json:"equipment"`
	Layovers        []LayoverCount  `json:"layovers"`
	Packages        []PackageStats  `json:"packages"`
	Index           *IndexCoverage  `json:"index,omitempty"`
}

type SummaryStats struct {
	Packages        int      `json:"packages"`
	SkippedSidecars int      `json:"skipped_sidecars"`
	Trips           int      `json:"trips"`
	Legs            int      `json:"legs"`
	CreditMinutes   int      `json:"credit_minutes"`
	RedEyeTrips     int      `json:"red_eye_trips"`
	WeekendTrips    int      `json:"weekend_trips"`
	Airlines        []string `json:"airlines"`
	Months          []string `json:"months"`
	Bases           []string `json:"bases"`
	ParserVersions  []string `json:"parser_versions"`
}

type FormatCount struct {
	Format string  `json:"format"`
	Count  int     `json:"count"`
	Pct    float64 `json:"percentage"`
}

type DayCount struct {
	Days  int     `json:"days"`
	Count int     `json:"count"`
	Pct   float64 `json:"percentage"`
}

// CreditBucket is one 5-hour slice of the per-trip credit distribution.
type CreditBucket struct {
	LowHours  int     `json:"low_hours"`
	HighHours int     `json:"high_hours"`
	Count     int     `json:"count"`
	Pct       float64 `json:"percentage"`
}

type EquipCount struct {
	Equipment string  `json:"equipment"`
	Count     int     `json:"count"`
	Pct       float64 `json:"percentage"`
}

type LayoverCount struct {
	Airport    string  `json:"airport"`
	Count      int     `json:"count"`
	AvgMinutes float64 `json:"avg_minutes"`
}

type PackageStats struct {
	PackageID    string  `json:"package_id"`
	Airline      string  `json:"airline"`
	Month        string  `json:"month"`
	Base         string  `json:"base"`
	Fleet        string  `json:"fleet,omitempty"`
	Seat         string  `json:"seat,omitempty"`
	Format       string  `json:"format"`
	Trips        int     `json:"trips"`
	CreditHours  float64 `json:"credit_hours"`
	RedEyePct    float64 `json:"red_eye_pct"`
	WeekendPct   float64 `json:"weekend_pct"`
}

type IndexCoverage struct {
	IndexedKeys   int             `json:"indexed_keys"`
	OrphanedKeys  int             `json:"orphaned_keys"`
	MonthCoverage []MonthKeyCount `json:"month_coverage"`
	Exports       int             `json:"exports"`
	ExportsByCtx  int             `json:"export_contexts"`
}

type MonthKeyCount struct {
	Airline string `json:"airline"`
	Month   string `json:"month"`
	Keys    int    `json:"keys"`
}

func analyzeSummary(packages []*sidecarPackage, skipped int) SummaryStats {
	stats := SummaryStats{SkippedSidecars: skipped, Packages: len(packages)}
	airlines := map[string]bool{}
	months := map[string]bool{}
	bases := map[string]bool{}
	versions := map[string]bool{}

	for _, p := range packages {
		airlines[p.Pkg.Airline] = true
		months[p.Pkg.Month] = true
		bases[p.Pkg.Base] = true
		versions[p.ParserVersion] = true
		stats.Trips += len(p.Pkg.Pairings)
		for i := range p.Pkg.Pairings {
			pr := &p.Pkg.Pairings[i]
			stats.CreditMinutes += pr.CreditMinutes
			if n := len(pr.Routing); n > 1 {
				stats.Legs += n - 1
			}
			if pr.HasRedEye {
				stats.RedEyeTrips++
			}
			if pr.IncludesWeekend {
				stats.WeekendTrips++
			}
		}
	}
	stats.Airlines = sortedKeys(airlines)
	stats.Months = sortedKeys(months)
	stats.Bases = sortedKeys(bases)
	stats.ParserVersions = sortedKeys(versions)
	return stats
}

func analyzeFormatCoverage(packages []*sidecarPackage) []FormatCount {
	counts := map[string]int{}
	for _, p := range packages {
		counts[p.Pkg.SourceFormat]++
	}
	var out []FormatCount
	for f, c := range counts {
		fc := FormatCount{Format: f, Count: c}
		if len(packages) > 0 {
			fc.Pct = float64(c) / float64(len(packages)) * 100
		}
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func analyzeTripLengths(packages []*sidecarPackage) []DayCount {
	counts := map[int]int{}
	total := 0
	for _, p := range packages {
		for i := range p.Pkg.Pairings {
			counts[p.Pkg.Pairings[i].Days]++
			total++
		}
	}
	var out []DayCount
	for d, c := range counts {
		dc := DayCount{Days: d, Count: c}
		if total > 0 {
			dc.Pct = float64(c) / float64(total) * 100
		}
		out = append(out, dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out
}

const creditBucketHours = 5

func analyzeCreditHistogram(packages []*sidecarPackage) []CreditBucket {
	counts := map[int]int{}
	total := 0
	for _, p := range packages {
		for i := range p.Pkg.Pairings {
			bucket := p.Pkg.Pairings[i].CreditMinutes / 60 / creditBucketHours
			counts[bucket]++
			total++
		}
	}
	var out []CreditBucket
	for b, c := range counts {
		cb := CreditBucket{
			LowHours:  b * creditBucketHours,
			HighHours: (b + 1) * creditBucketHours,
			Count:     c,
		}
		if total > 0 {
			cb.Pct = float64(c) / float64(total) * 100
		}
		out = append(out, cb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LowHours < out[j].LowHours })
	return out
}

func analyzeEquipment(packages []*sidecarPackage, topN int) []EquipCount {
	counts := map[string]int{}
	total := 0
	for _, p := range packages {
		for i := range p.Pkg.Pairings {
			eq := p.Pkg.Pairings[i].Equipment
			if eq == "" {
				eq = "(unknown)"
			}
			counts[eq]++
			total++
		}
	}
	var out []EquipCount
	for eq, c := range counts {
		ec := EquipCount{Equipment: eq, Count: c}
		if total > 0 {
			ec.Pct = float64(c) / float64(total) * 100
		}
		out = append(out, ec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func analyzeLayovers(packages []*sidecarPackage, topN int) []LayoverCount {
	counts := map[string]int{}
	minutes := map[string]int{}
	for _, p := range packages {
		for i := range p.Pkg.Pairings {
			for _, lo := range p.Pkg.Pairings[i].Layovers {
				counts[lo.Airport]++
				minutes[lo.Airport] += lo.Minutes
			}
		}
	}
	var out []LayoverCount
	for ap, c := range counts {
		out = append(out, LayoverCount{
			Airport:    ap,
			Count:      c,
			AvgMinutes: float64(minutes[ap]) / float64(c),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func analyzePackages(packages []*sidecarPackage) []PackageStats {
	var out []PackageStats
	for _, p := range packages {
		ps := PackageStats{
			PackageID: shortHash(p.Pkg.PackageID),
			Airline:   p.Pkg.Airline,
			Month:     p.Pkg.Month,
			Base:      p.Pkg.Base,
			Fleet:     p.Pkg.Fleet,
			Seat:      p.Pkg.Seat,
			Format:    p.Pkg.SourceFormat,
			Trips:     len(p.Pkg.Pairings),
		}
		credit, redEyes, weekends := 0, 0, 0
		for i := range p.Pkg.Pairings {
			pr := &p.Pkg.Pairings[i]
			credit += pr.CreditMinutes
			if pr.HasRedEye {
				redEyes++
			}
			if pr.IncludesWeekend {
				weekends++
			}
		}
		ps.CreditHours = float64(credit) / 60
		if ps.Trips > 0 {
			ps.RedEyePct = float64(redEyes) / float64(ps.Trips) * 100
			ps.WeekendPct = float64(weekends) / float64(ps.Trips) * 100
		}
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Airline != out[j].Airline {
			return out[i].Airline < out[j].Airline
		}
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Base < out[j].Base
	})
	return out
}

func analyzeIndex(db *sql.DB, packages []*sidecarPackage, airline, month string) *IndexCoverage {
	cov := &IndexCoverage{}
	onDisk := map[string]bool{}
	for _, p := range packages {
		onDisk[p.Pkg.PackageID] = true
	}

	query := `SELECT airline, month, COUNT(*) FROM packages`
	var args []interface{}
	var where []string
	if airline != "" {
		where = append(where, "airline = ?")
		args = append(args, airline)
	}
	if month != "" {
		where = append(where, "month = ?")
		args = append(args, month)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY airline, month ORDER BY airline, month"

	rows, err := db.Query(query, args...)
	if err == nil {
		for rows.Next() {
			var mc MonthKeyCount
			rows.Scan(&mc.Airline, &mc.Month, &mc.Keys)
			cov.MonthCoverage = append(cov.MonthCoverage, mc)
			cov.IndexedKeys += mc.Keys
		}
		rows.Close()
	}

	// Orphans: indexed keys whose sidecar is missing from the store.
	hashQuery := `SELECT package_id FROM packages`
	if len(where) > 0 {
		hashQuery += " WHERE " + strings.Join(where, " AND ")
	}
	if hrows, err := db.Query(hashQuery, args...); err == nil {
		for hrows.Next() {
			var hash string
			hrows.Scan(&hash)
			if !onDisk[hash] {
				cov.OrphanedKeys++
			}
		}
		hrows.Close()
	}

	db.QueryRow("SELECT COUNT(*) FROM exports").Scan(&cov.Exports)
	db.QueryRow("SELECT COUNT(DISTINCT ctx_id) FROM exports").Scan(&cov.ExportsByCtx)
	return cov
}

func printTextReport(report *CorpusReport, topN int) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                   BID PACKAGE CORPUS REPORT")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	s := report.Summary
	fmt.Println("SUMMARY")
	fmt.Println("───────")
	fmt.Printf("Packages:         %d\n", s.Packages)
	if s.SkippedSidecars > 0 {
		fmt.Printf("Skipped Sidecars: %d\n", s.SkippedSidecars)
	}
	fmt.Printf("Trips:            %d\n", s.Trips)
	fmt.Printf("Legs:             %d\n", s.Legs)
	fmt.Printf("Total Credit:     %dh%02dm\n", s.CreditMinutes/60, s.CreditMinutes%60)
	if s.Trips > 0 {
		fmt.Printf("Red-Eye Trips:    %d (%.1f%%)\n", s.RedEyeTrips, float64(s.RedEyeTrips)/float64(s.Trips)*100)
		fmt.Printf("Weekend Trips:    %d (%.1f%%)\n", s.WeekendTrips, float64(s.WeekendTrips)/float64(s.Trips)*100)
	}
	fmt.Printf("Airlines:         %s\n", strings.Join(s.Airlines, ", "))
	fmt.Printf("Months:           %s\n", strings.Join(s.Months, ", "))
	fmt.Printf("Bases:            %s\n", strings.Join(s.Bases, ", "))
	fmt.Printf("Parser Versions:  %s\n", strings.Join(s.ParserVersions, ", "))
	fmt.Println()

	fmt.Println("FORMAT COVERAGE (Packages by source format)")
	fmt.Println("───────────────")
	fmt.Printf("%-10s %8s %8s\n", "Format", "Count", "Pct")
	for _, fc := range report.FormatCoverage {
		fmt.Printf("%-10s %8d %7.1f%%\n", fc.Format, fc.Count, fc.Pct)
	}
	fmt.Println()

	fmt.Println("TRIP LENGTHS (Trips by days)")
	fmt.Println("────────────")
	for _, dc := range report.TripLengths {
		bar := strings.Repeat("█", int(dc.Pct/2))
		fmt.Printf("%2d-day %8d %6.1f%% %s\n", dc.Days, dc.Count, dc.Pct, bar)
	}
	fmt.Println()

	fmt.Println("CREDIT DISTRIBUTION (Trips by credit hours)")
	fmt.Println("───────────────────")
	for _, cb := range report.CreditHistogram {
		bar := strings.Repeat("█", int(cb.Pct/2))
		fmt.Printf("%3d-%3dh %8d %6.1f%% %s\n", cb.LowHours, cb.HighHours, cb.Count, cb.Pct, bar)
	}
	fmt.Println()

	if len(report.Equipment) > 0 {
		fmt.Println("EQUIPMENT (Trips by fleet type)")
		fmt.Println("─────────")
		for _, ec := range report.Equipment {
			fmt.Printf("%-10s %8d %7.1f%%\n", ec.Equipment, ec.Count, ec.Pct)
		}
		fmt.Println()
	}

	if len(report.Layovers) > 0 {
		fmt.Println("LAYOVERS (Top layover airports)")
		fmt.Println("────────")
		fmt.Printf("%-8s %8s %12s\n", "Airport", "Count", "Avg Layover")
		for _, lc := range report.Layovers {
			fmt.Printf("%-8s %8d %9.0f min\n", lc.Airport, lc.Count, lc.AvgMinutes)
		}
		fmt.Println()
	}

	fmt.Println("PACKAGES")
	fmt.Println("────────")
	fmt.Printf("%-13s %-4s %-8s %-4s %-6s %6s %9s %8s %8s\n",
		"Package", "Air", "Month", "Base", "Format", "Trips", "Credit", "RedEye", "Weekend")
	for _, ps := range report.Packages {
		fmt.Printf("%-13s %-4s %-8s %-4s %-6s %6d %8.1fh %7.1f%% %7.1f%%\n",
			ps.PackageID, ps.Airline, ps.Month, ps.Base, ps.Format,
			ps.Trips, ps.CreditHours, ps.RedEyePct, ps.WeekendPct)
	}
	fmt.Println()

	if report.Index != nil {
		fmt.Println("INDEX COVERAGE (Service database)")
		fmt.Println("──────────────")
		fmt.Printf("Indexed Keys:     %d\n", report.Index.IndexedKeys)
		fmt.Printf("Orphaned Keys:    %d\n", report.Index.OrphanedKeys)
		fmt.Printf("Exports Issued:   %d (%d contexts)\n", report.Index.Exports, report.Index.ExportsByCtx)
		for _, mc := range report.Index.MonthCoverage {
			fmt.Printf("  %s %s: %d keys\n", mc.Airline, mc.Month, mc.Keys)
		}
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
