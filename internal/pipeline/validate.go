package pipeline

import (
	"fmt"
	"sort"
	"time"

	"vectorbid/internal/bid"
	"vectorbid/internal/rulepack"
)

// ValidateSnapshot checks the request context shape.
func ValidateSnapshot(snap *bid.ContextSnapshot) *Error {
	if snap.Airline == "" {
		return BadInput("missing airline")
	}
	if !bid.ValidMonth(snap.Month) {
		return BadInput("bad month %q, want YYYY-MM", snap.Month)
	}
	if snap.Base == "" {
		return BadInput("missing base")
	}
	if snap.Seat != "" && !bid.ValidSeat(snap.Seat) {
		return BadInput("bad seat %q, want FO or CA", snap.Seat)
	}
	if snap.SeniorityPercentile < 0 || snap.SeniorityPercentile > 1 {
		return BadInput("seniority percentile %v out of [0,1]", snap.SeniorityPercentile)
	}
	return nil
}

// ConstraintReport is the validate_constraints response.
type ConstraintReport struct {
	OK             bool            `json:"ok"`
	HardViolations []bid.Violation `json:"hard_violations"`
	Warnings       []bid.Violation `json:"warnings"`
}

// far117MaxDutyHours is the ceiling a per-day duty cap can meaningfully
// request; above it the legality rules bind first.
const far117MaxDutyHours = 14

// ValidateConstraints checks a preference schema against the snapshot
// and the optionally supplied rule pack. Structural problems are hard
// violations; suspicious but legal content is a warning.
func ValidateConstraints(schema *bid.PreferenceSchema, snap *bid.ContextSnapshot, pack *rulepack.RulePack) ConstraintReport {
	rep := ConstraintReport{
		HardViolations: []bid.Violation{},
		Warnings:       []bid.Violation{},
	}
	hard := func(id, detail string) {
		rep.HardViolations = append(rep.HardViolations, bid.Violation{
			RuleID: id, Severity: bid.SeverityError, Detail: detail,
		})
	}
	warn := func(id, detail string) {
		rep.Warnings = append(rep.Warnings, bid.Violation{
			RuleID: id, Severity: bid.SeverityWarn, Detail: detail,
		})
	}

	if schema.Confidence < 0 || schema.Confidence > 1 {
		hard("confidence_range", fmt.Sprintf("confidence %v out of [0,1]", schema.Confidence))
	}

	names := make([]string, 0, len(schema.SoftPrefs))
	for name := range schema.SoftPrefs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := schema.SoftPrefs[name]
		if p.Weight < 0 || p.Weight > 1 {
			hard("weight_range", fmt.Sprintf("soft pref %s weight %v out of [0,1]", name, p.Weight))
		}
		if p.Direction != bid.DirectionPrefer && p.Direction != bid.DirectionAvoid {
			hard("direction", fmt.Sprintf("soft pref %s has direction %q", name, p.Direction))
		}
		if !bid.ReservedSoftPrefs[name] && (pack == nil || !pack.HasSoftRule(name)) {
			warn("unknown_soft_pref", fmt.Sprintf("soft pref %s is not recognized and will be ignored", name))
		}
	}

	for _, d := range schema.HardConstraints.DaysOff {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			hard("days_off_format", fmt.Sprintf("day off %q is not an ISO date", d))
			continue
		}
		if snap != nil && snap.Month != "" && t.Format("2006-01") != snap.Month {
			warn("days_off_month", fmt.Sprintf("day off %s falls outside bid month %s", d, snap.Month))
		}
	}

	if h := schema.HardConstraints.MaxDutyHoursPerDay; h != 0 {
		if h < 0 || h > 24 {
			hard("max_duty_range", fmt.Sprintf("max duty hours per day %d out of range", h))
		} else if h > far117MaxDutyHours {
			warn("max_duty_moot", fmt.Sprintf("max duty %dh exceeds the %dh legality ceiling; legality rules bind first", h, far117MaxDutyHours))
		}
	}

	rep.OK = len(rep.HardViolations) == 0
	return rep
}
