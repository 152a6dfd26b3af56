package enrich

import (
	"strconv"
	"strings"

	"vectorbid/internal/bid"
)

// PairingFeatures are the derived per-pairing analytics attributes.
type PairingFeatures struct {
	LayoverQuality float64 `json:"layover_quality"` // [0,1]
	WeekendTouch   bool    `json:"weekend_touch"`
	ReportHour     int     `json:"report_hour"`   // -1 when unknown
	ReleaseHour    int     `json:"release_hour"`  // -1 when unknown
	Commutable     bool    `json:"commutable"`    // report late + release early enough to commute
	International  bool    `json:"international"`
}

// Layover quality saturates: anything under 9h scores 0, a full day or
// more scores 1.
const (
	layoverFloorMinutes = 540
	layoverCeilMinutes  = 1440
)

// Commute window defaults, overridable via the commuting profile.
const (
	defaultEarliestCommuteReport = 10
	defaultLatestCommuteRelease  = 20
)

// computeAnalytics derives features for every pairing in the package.
func computeAnalytics(pkg *bid.BidPackage, profile map[string]string) map[string]PairingFeatures {
	earliest := profileHour(profile, "earliest_report", defaultEarliestCommuteReport)
	latest := profileHour(profile, "latest_release", defaultLatestCommuteRelease)

	out := make(map[string]PairingFeatures, len(pkg.Pairings))
	for i := range pkg.Pairings {
		p := &pkg.Pairings[i]
		f := PairingFeatures{
			LayoverQuality: layoverQuality(p),
			WeekendTouch:   p.IncludesWeekend,
			ReportHour:     -1,
			ReleaseHour:    -1,
			International:  p.International(),
		}
		if h, ok := p.ReportHour(); ok {
			f.ReportHour = h
		}
		if h, ok := p.ReleaseHour(); ok {
			f.ReleaseHour = h
		}
		f.Commutable = f.ReportHour >= earliest && f.ReleaseHour >= 0 && f.ReleaseHour <= latest
		out[p.PairingID] = f
	}
	return out
}

// layoverQuality maps the average layover length onto [0,1].
func layoverQuality(p *bid.Pairing) float64 {
	if len(p.Layovers) == 0 {
		return 0
	}
	avg := float64(p.LayoverMinutes()) / float64(len(p.Layovers))
	q := (avg - layoverFloorMinutes) / (layoverCeilMinutes - layoverFloorMinutes)
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// profileHour reads an HH or HH:MM value from the commuting profile.
func profileHour(profile map[string]string, key string, def int) int {
	v, ok := profile[key]
	if !ok {
		return def
	}
	hh, _, _ := strings.Cut(v, ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return def
	}
	return h
}
