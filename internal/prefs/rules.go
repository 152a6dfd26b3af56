package prefs

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"vectorbid/internal/bid"
)

// phrase is one rule in the prefilter corpus. apply mutates the schema
// for each regexp match.
type phrase struct {
	name  string
	re    *regexp.Regexp
	apply func(m []string, s *bid.PreferenceSchema, month string)
}

var corpus = []phrase{
	{
		name: "weekends_off",
		re:   regexp.MustCompile(`(?i)\bweekends?\s+off\b|\boff\s+(?:on\s+)?weekends?\b|\bprotect\s+(?:my\s+)?weekends?\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, month string) {
			setPref(s, "weekend_priority", bid.DirectionPrefer, 0.9)
			addDaysOff(s, weekendDates(month)...)
		},
	},
	{
		name: "no_red_eyes",
		re:   regexp.MustCompile(`(?i)\b(?:no|avoid|hate|without)\s+red[-\s]?eyes?\b|\bno\s+overnight\s+flying\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			s.HardConstraints.NoRedEyes = true
		},
	},
	{
		name: "morning_departures",
		re:   regexp.MustCompile(`(?i)\bmorning\s+(?:departures?|flights?|reports?)\b|\bearly\s+(?:starts?|departures?|reports?)\b|\bam\s+departures?\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "morning_departures", bid.DirectionPrefer, 0.7)
		},
	},
	{
		name: "international",
		re:   regexp.MustCompile(`(?i)\binternational\b|\boverseas\b|\bwidebody\s+flying\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "international", bid.DirectionPrefer, 0.7)
		},
	},
	{
		name: "commuter",
		re:   regexp.MustCompile(`(?i)\bcommut(?:e|er|ing|able)\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "commutable_report", bid.DirectionPrefer, 0.8)
		},
	},
	{
		name: "max_credit",
		re:   regexp.MustCompile(`(?i)\bmax(?:imum|imize)?\s+(?:the\s+)?credit\b|\bhigh\s+credit\b|\bas\s+much\s+credit\b|\bmoney\b|\bpay\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "credit", bid.DirectionPrefer, 0.9)
		},
	},
	{
		name: "short_pairings",
		re:   regexp.MustCompile(`(?i)\bshort\s+(?:trips?|pairings?)\b|\bday\s+trips?\b|\bturns?\s+only\b|\b(?:1|one)[-\s]days?\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "pairing_length", bid.DirectionAvoid, 0.7)
		},
	},
	{
		name: "long_pairings",
		re:   regexp.MustCompile(`(?i)\blong\s+(?:trips?|pairings?)\b|\b(?:3|4|three|four)[-\s]days?\s+trips?\b|\befficient\s+trips?\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "pairing_length", bid.DirectionPrefer, 0.7)
		},
	},
	{
		name: "long_layovers",
		re:   regexp.MustCompile(`(?i)\blong\s+layovers?\b|\bgood\s+layovers?\b|\bnice\s+layovers?\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "layovers", bid.DirectionPrefer, 0.6)
		},
	},
	{
		name: "days_off_count",
		re:   regexp.MustCompile(`(?i)\b(?:more|maximize|lots\s+of)\s+days\s+off\b|\btime\s+off\b|\bfamily\s+time\b`),
		apply: func(_ []string, s *bid.PreferenceSchema, _ string) {
			setPref(s, "days_off", bid.DirectionPrefer, 0.8)
		},
	},
	{
		name: "report_after",
		re:   regexp.MustCompile(`(?i)\b(?:reports?|check[-\s]?in)\s+after\s+(\d{1,2})(?::(\d{2}))?\b|\bno\s+reports?\s+before\s+(\d{1,2})(?::(\d{2}))?\b`),
		apply: func(m []string, s *bid.PreferenceSchema, _ string) {
			hh, mm := m[1], m[2]
			if hh == "" {
				hh, mm = m[3], m[4]
			}
			if mm == "" {
				mm = "00"
			}
			if h, err := strconv.Atoi(hh); err == nil && h <= 23 {
				p := s.SoftPrefs["commutable_report"]
				p.Direction = bid.DirectionPrefer
				p.Target = fmt.Sprintf("%02d:%s", h, mm)
				if p.Weight == 0 {
					p.Weight = 0.8
				}
				s.SoftPrefs["commutable_report"] = p
			}
		},
	},
	{
		name: "specific_days_off",
		re:   regexp.MustCompile(`(?i)\b(?:off|avoid|free)\b[^.!?]*?(\d{4}-\d{2}-\d{2}(?:[,\s]+(?:and\s+)?\d{4}-\d{2}-\d{2})*)`),
		apply: func(m []string, s *bid.PreferenceSchema, _ string) {
			addDaysOff(s, isoDateRe.FindAllString(m[1], -1)...)
		},
	},
}

var isoDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

func setPref(s *bid.PreferenceSchema, name, direction string, weight float64) {
	if cur, ok := s.SoftPrefs[name]; ok && cur.Weight >= weight {
		return
	}
	s.SoftPrefs[name] = bid.SoftPref{Direction: direction, Weight: weight}
}

func addDaysOff(s *bid.PreferenceSchema, dates ...string) {
	seen := make(map[string]bool, len(s.HardConstraints.DaysOff))
	for _, d := range s.HardConstraints.DaysOff {
		seen[d] = true
	}
	for _, d := range dates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			continue
		}
		if !seen[d] {
			seen[d] = true
			s.HardConstraints.DaysOff = append(s.HardConstraints.DaysOff, d)
		}
	}
	sort.Strings(s.HardConstraints.DaysOff)
}

// weekendDates lists every Saturday and Sunday of a YYYY-MM month.
func weekendDates(month string) []string {
	n, err := bid.DaysInMonth(month)
	if err != nil {
		return nil
	}
	first, err := time.Parse("2006-01-02", month+"-01")
	if err != nil {
		return nil
	}
	var out []string
	for i := 0; i < n; i++ {
		d := first.AddDate(0, 0, i)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			out = append(out, d.Format("2006-01-02"))
		}
	}
	return out
}
