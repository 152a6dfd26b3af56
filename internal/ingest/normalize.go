package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vectorbid/internal/bid"
)

// Synthesized duty-period shape for formats that carry no report/release
// data. One period per calendar date, reporting mid-morning.
const (
	synthReportHour    = 9
	synthRestMinutes   = 780
	synthDutyPadding   = 120
	synthMinDutyMinute = 240
)

// Normalize brings a freshly parsed pairing into the canonical form the
// rest of the pipeline relies on: uppercase airport codes, sorted
// deduplicated dates, derived weekend/red-eye flags, and duty periods
// present (synthesized when the source format has none).
func Normalize(pr *bid.Pairing, meta Meta) error {
	if pr.PairingID == "" {
		return fmt.Errorf("pairing without id")
	}

	for i, a := range pr.Routing {
		pr.Routing[i] = strings.ToUpper(strings.TrimSpace(a))
	}
	for i := range pr.Layovers {
		pr.Layovers[i].Airport = strings.ToUpper(strings.TrimSpace(pr.Layovers[i].Airport))
	}

	seen := make(map[string]bool, len(pr.Dates))
	dates := pr.Dates[:0]
	for _, d := range pr.Dates {
		d = strings.TrimSpace(d)
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("pairing %s: bad date %q", pr.PairingID, d)
		}
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	pr.Dates = dates
	if len(pr.Dates) == 0 {
		return fmt.Errorf("pairing %s: no dates", pr.PairingID)
	}
	if pr.Days == 0 {
		pr.Days = len(pr.Dates)
	}
	if pr.Equipment == "" {
		pr.Equipment = meta.Fleet
	}

	pr.IncludesWeekend = touchesWeekend(pr.Dates)

	if len(pr.DutyPeriods) == 0 {
		pr.DutyPeriods = synthDutyPeriods(pr)
	}
	pr.HasRedEye = hasRedEye(pr.DutyPeriods)
	return nil
}

func touchesWeekend(dates []string) bool {
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return true
		}
	}
	return false
}

// hasRedEye reports whether any duty period looks like overnight flying:
// a late-evening report, or a release in the early hours of a later
// calendar day.
func hasRedEye(dps []bid.DutyPeriod) bool {
	for _, dp := range dps {
		if dp.Report.Hour() >= 21 {
			return true
		}
		if dp.Release.Hour() <= 5 && dp.Release.YearDay() != dp.Report.YearDay() {
			return true
		}
	}
	return false
}

// synthDutyPeriods fabricates one duty period per date for formats that
// carry no report/release data, spreading the block time evenly. The
// shape is conservative so it cannot introduce spurious FAR-117
// violations.
func synthDutyPeriods(pr *bid.Pairing) []bid.DutyPeriod {
	perDay := synthMinDutyMinute
	if pr.Days > 0 {
		if d := pr.BlockMinutes/pr.Days + synthDutyPadding; d > perDay {
			perDay = d
		}
	}

	dps := make([]bid.DutyPeriod, 0, len(pr.Dates))
	var prev time.Time
	for _, d := range pr.Dates {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		report := day.Add(synthReportHour * time.Hour)
		dp := bid.DutyPeriod{
			Report:      report,
			Release:     report.Add(time.Duration(perDay) * time.Minute),
			DutyMinutes: perDay,
		}
		if !prev.IsZero() {
			rest := int(report.Sub(prev).Minutes())
			if rest <= 0 {
				rest = synthRestMinutes
			}
			dp.RestBeforeMinutes = rest
		}
		prev = dp.Release
		dps = append(dps, dp)
	}
	return dps
}
