// Package ual parses United Airlines bid-package pairing text. Blocks
// look like:
//
//	PAIRING C1234 EQP 73G
//	DATES 2025-09-02 2025-09-03 2025-09-04
//	CREDIT 18:20 BLOCK 16:40
//	RPT 0900 RLS 1715
//	ROUTE DEN-SFO-SEA-DEN
//	LAYOVER SFO 15:00
//	LAYOVER SEA 14:00
//	END
//
// RPT/RLS are daily report and release local-as-UTC times; a release
// earlier than the report rolls over to the next day.
package ual

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest/dialect"
)

var (
	pairingRe = regexp.MustCompile(`^PAIRING\s+([A-Z]\d{3,5})(?:\s+EQP\s+(\S+))?\s*$`)
	datesRe   = regexp.MustCompile(`^DATES\s+(\d{4}-\d{2}-\d{2}(?:\s+\d{4}-\d{2}-\d{2})*)\s*$`)
	creditRe  = regexp.MustCompile(`^CREDIT\s+(\d+):(\d{2})\s+BLOCK\s+(\d+):(\d{2})\s*$`)
	rptRlsRe  = regexp.MustCompile(`^RPT\s+(\d{4})\s+RLS\s+(\d{4})\s*$`)
	routeRe   = regexp.MustCompile(`^ROUTE\s+([A-Z]{3}(?:-[A-Z]{3})+)\s*$`)
	layoverRe = regexp.MustCompile(`^LAYOVER\s+([A-Z]{3})\s+(\d+):(\d{2})\s*$`)
)

// Parser implements the UAL dialect.
type Parser struct{}

func init() {
	dialect.Register(&Parser{})
}

func (p *Parser) Airline() string { return "UAL" }

// ParsePairings cuts the text into PAIRING..END blocks and parses each.
func (p *Parser) ParsePairings(text string) ([]bid.Pairing, error) {
	lines := strings.Split(text, "\n")
	var pairings []bid.Pairing

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || !strings.HasPrefix(line, "PAIRING") {
			i++
			continue
		}

		start := i
		end := -1
		for j := i; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "END" {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, &dialect.BlockError{
				StartLine: start + 1, EndLine: len(lines),
				Err: errors.New("pairing block missing END"),
			}
		}

		pr, err := parseBlock(lines[start : end+1])
		if err != nil {
			return nil, &dialect.BlockError{StartLine: start + 1, EndLine: end + 1, Err: err}
		}
		pairings = append(pairings, *pr)
		i = end + 1
	}

	if len(pairings) == 0 {
		return nil, &dialect.BlockError{StartLine: 1, EndLine: len(lines),
			Err: errors.New("no pairing blocks found")}
	}
	return pairings, nil
}

func parseBlock(block []string) (*bid.Pairing, error) {
	pr := &bid.Pairing{Raw: strings.Join(block, "\n")}
	var rptHHMM, rlsHHMM string

	for _, raw := range block {
		line := strings.TrimSpace(raw)
		switch {
		case pairingRe.MatchString(line):
			m := pairingRe.FindStringSubmatch(line)
			pr.PairingID = m[1]
			pr.Equipment = m[2]
		case datesRe.MatchString(line):
			pr.Dates = strings.Fields(datesRe.FindStringSubmatch(line)[1])
		case creditRe.MatchString(line):
			m := creditRe.FindStringSubmatch(line)
			pr.CreditMinutes = hhmmMinutes(m[1], m[2])
			pr.BlockMinutes = hhmmMinutes(m[3], m[4])
		case rptRlsRe.MatchString(line):
			m := rptRlsRe.FindStringSubmatch(line)
			rptHHMM, rlsHHMM = m[1], m[2]
		case routeRe.MatchString(line):
			pr.Routing = strings.Split(routeRe.FindStringSubmatch(line)[1], "-")
		case layoverRe.MatchString(line):
			m := layoverRe.FindStringSubmatch(line)
			pr.Layovers = append(pr.Layovers, bid.Layover{
				Airport: m[1],
				Minutes: hhmmMinutes(m[2], m[3]),
			})
		}
	}

	if pr.PairingID == "" {
		return nil, errors.New("missing PAIRING header")
	}
	if len(pr.Dates) == 0 {
		return nil, fmt.Errorf("pairing %s: missing DATES", pr.PairingID)
	}
	if pr.CreditMinutes == 0 {
		return nil, fmt.Errorf("pairing %s: missing CREDIT", pr.PairingID)
	}
	pr.Days = len(pr.Dates)

	if rptHHMM != "" {
		dps, err := dutyPeriods(pr.Dates, rptHHMM, rlsHHMM)
		if err != nil {
			return nil, fmt.Errorf("pairing %s: %w", pr.PairingID, err)
		}
		pr.DutyPeriods = dps
	}
	return pr, nil
}

// dutyPeriods builds one duty period per date from the daily RPT/RLS
// times. A release at or before the report rolls to the next day.
func dutyPeriods(dates []string, rpt, rls string) ([]bid.DutyPeriod, error) {
	rptMin, err := hhmm(rpt)
	if err != nil {
		return nil, err
	}
	rlsMin, err := hhmm(rls)
	if err != nil {
		return nil, err
	}

	dps := make([]bid.DutyPeriod, 0, len(dates))
	var prevRelease time.Time
	for _, d := range dates {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("bad date %q", d)
		}
		report := day.Add(time.Duration(rptMin) * time.Minute)
		release := day.Add(time.Duration(rlsMin) * time.Minute)
		if !release.After(report) {
			release = release.AddDate(0, 0, 1)
		}
		dp := bid.DutyPeriod{
			Report:      report,
			Release:     release,
			DutyMinutes: int(release.Sub(report).Minutes()),
		}
		if !prevRelease.IsZero() {
			dp.RestBeforeMinutes = int(report.Sub(prevRelease).Minutes())
		}
		prevRelease = release
		dps = append(dps, dp)
	}
	return dps, nil
}

func hhmm(s string) (int, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err1 := strconv.Atoi(s[:2])
	m, err2 := strconv.Atoi(s[2:])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return h*60 + m, nil
}

func hhmmMinutes(h, m string) int {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	return hh*60 + mm
}
