package rulepack

import (
	"errors"
	"strings"
	"testing"
	"time"

	"vectorbid/internal/bid"
)

const testPackYAML = `
version: "2025.09-r2"
airline: UAL
month: 2025-09
meta:
  expression_dialect: vectorbid/v1
  max_layers: 20
constants:
  min_credit_minutes: 3900
  max_credit_minutes: 5700
hard_rules:
  - id: far117_max_duty
    description: duty period exceeds FAR-117 daily limit
    severity: error
    check: pairing.max_duty_minutes <= far117.max_duty_minutes
  - id: credit_window
    description: credit outside contractual window
    severity: error
    check: between(candidate.credit_minutes, contract.min_credit_minutes, contract.max_credit_minutes)
  - id: stats_guard
    description: award rate sanity check
    severity: warn
    check: stats.avg_award_rate >= 0
soft_rules:
  - name: credit
    description: higher credit is better
    score: candidate.credit_minutes
    weight: 1.5
    bounds: [3900, 5700]
  - name: weekend_priority
    description: weekend pairings are penalized
    score: candidate.weekend_pairings
    weight: 1.0
    direction: avoid
    bounds: [0, 4]
  - name: short_pairings
    description: per-pairing day count
    score: pairing.days
    weight: 0.5
    direction: avoid
    bounds: [1, 5]
`

func testPack(t *testing.T) *RulePack {
	t.Helper()
	p, err := Parse([]byte(testPackYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func dp(day string, reportHour, dutyMin, restBefore int) bid.DutyPeriod {
	report, _ := time.Parse("2006-01-02", day)
	report = report.Add(time.Duration(reportHour) * time.Hour)
	return bid.DutyPeriod{
		Report:            report,
		Release:           report.Add(time.Duration(dutyMin) * time.Minute),
		DutyMinutes:       dutyMin,
		RestBeforeMinutes: restBefore,
	}
}

func legalPairings() []bid.Pairing {
	return []bid.Pairing{
		{
			PairingID: "C100", Days: 3, CreditMinutes: 2200, BlockMinutes: 1700,
			Routing: []string{"DEN", "SFO", "SEA", "DEN"},
			Dates:   []string{"2025-09-02", "2025-09-03", "2025-09-04"},
			DutyPeriods: []bid.DutyPeriod{
				dp("2025-09-02", 9, 600, 0),
				dp("2025-09-03", 10, 540, 700),
				dp("2025-09-04", 9, 480, 720),
			},
			Layovers: []bid.Layover{{Airport: "SFO", Minutes: 900}, {Airport: "SEA", Minutes: 840}},
		},
		{
			PairingID: "C200", Days: 2, CreditMinutes: 1900, BlockMinutes: 1500,
			Routing: []string{"DEN", "ORD", "DEN"},
			Dates:   []string{"2025-09-10", "2025-09-11"},
			DutyPeriods: []bid.DutyPeriod{
				dp("2025-09-10", 8, 620, 0),
				dp("2025-09-11", 9, 560, 680),
			},
			Layovers: []bid.Layover{{Airport: "ORD", Minutes: 820}},
		},
	}
}

func testCtx() *bid.ContextSnapshot {
	return &bid.ContextSnapshot{
		CtxID: "ctx-test", Airline: "UAL", Month: "2025-09",
		Base: "DEN", Seat: bid.SeatFO, SeniorityPercentile: 0.55,
	}
}

func TestParsePack(t *testing.T) {
	p := testPack(t)
	if p.Version != "2025.09-r2" || p.Airline != "UAL" || p.Month != "2025-09" {
		t.Errorf("pack header = %s/%s/%s", p.Version, p.Airline, p.Month)
	}
	if len(p.HardRules) != 3 || len(p.SoftRules) != 3 {
		t.Fatalf("rules = %d hard, %d soft", len(p.HardRules), len(p.SoftRules))
	}
	if !p.HardRules[0].perPairing {
		t.Error("far117_max_duty should be per-pairing scope")
	}
	if p.HardRules[1].perPairing {
		t.Error("credit_window should be candidate scope")
	}
	if p.Meta.MaxLayers != 20 {
		t.Errorf("MaxLayers = %d, want 20", p.Meta.MaxLayers)
	}
	if p.Constants["min_credit_minutes"] != 3900 {
		t.Errorf("constants not loaded: %v", p.Constants)
	}
	if !p.HasSoftRule("credit") || p.HasSoftRule("nope") {
		t.Error("HasSoftRule misbehaves")
	}
}

func TestParseRejectsBadPacks(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing version", "airline: UAL\nmonth: 2025-09\n"},
		{"bad month", "version: v1\nairline: UAL\nmonth: september\n"},
		{"bad dialect", "version: v1\nairline: UAL\nmonth: 2025-09\nmeta:\n  expression_dialect: python\n"},
		{"duplicate id", `
version: v1
airline: UAL
month: 2025-09
hard_rules:
  - {id: a, severity: error, check: "1 < 2"}
  - {id: a, severity: error, check: "2 < 3"}
`},
		{"bad severity", `
version: v1
airline: UAL
month: 2025-09
hard_rules:
  - {id: a, severity: fatal, check: "1 < 2"}
`},
		{"bad expression", `
version: v1
airline: UAL
month: 2025-09
hard_rules:
  - {id: a, severity: error, check: "1 << 2"}
`},
		{"unknown function", `
version: v1
airline: UAL
month: 2025-09
soft_rules:
  - {name: s, score: "eval(1)"}
`},
		{"bad bounds", `
version: v1
airline: UAL
month: 2025-09
soft_rules:
  - {name: s, score: "candidate.count", bounds: [5, 1]}
`},
		{"negative weight", `
version: v1
airline: UAL
month: 2025-09
soft_rules:
  - {name: s, score: "candidate.count", weight: -2}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrPackInvalid) {
				t.Errorf("Parse error = %v, want ErrPackInvalid", err)
			}
		})
	}
}

func TestEvaluateHardLegal(t *testing.T) {
	p := testPack(t)
	res := p.EvaluateHard(EvalInput{
		Ctx:      testCtx(),
		Pairings: legalPairings(),
		Stats:    map[string]float64{"avg_award_rate": 0.4},
	})
	if !res.OK() {
		t.Fatalf("expected legal candidate, got violations %+v", res.Violations)
	}
	if len(res.Hits) != 3 {
		t.Errorf("hits = %d, want 3: %+v", len(res.Hits), res.Hits)
	}
}

func TestEvaluateHardViolations(t *testing.T) {
	p := testPack(t)
	prs := legalPairings()
	prs[0].DutyPeriods[0].DutyMinutes = 900 // over the 840 limit

	res := p.EvaluateHard(EvalInput{Ctx: testCtx(), Pairings: prs,
		Stats: map[string]float64{"avg_award_rate": 0.4}})
	if res.OK() {
		t.Fatal("expected an error violation")
	}
	found := false
	for _, v := range res.Violations {
		if v.RuleID == "far117_max_duty" && v.Severity == bid.SeverityError {
			found = true
			if !strings.Contains(v.Detail, "C100") {
				t.Errorf("violation detail should name the pairing: %q", v.Detail)
			}
		}
	}
	if !found {
		t.Errorf("no far117_max_duty violation in %+v", res.Violations)
	}
}

func TestEvaluateHardExpressionError(t *testing.T) {
	p := testPack(t)
	// No stats binding: stats_guard dereferences an undefined identifier.
	res := p.EvaluateHard(EvalInput{Ctx: testCtx(), Pairings: legalPairings()})

	var exprViol *bid.Violation
	for i, v := range res.Violations {
		if v.RuleID == "stats_guard" {
			exprViol = &res.Violations[i]
		}
	}
	if exprViol == nil {
		t.Fatalf("expected stats_guard expression violation, got %+v", res.Violations)
	}
	if exprViol.Severity != bid.SeverityWarn {
		t.Errorf("expression errors must be warn, got %q", exprViol.Severity)
	}
	if !strings.Contains(exprViol.Detail, ExpressionErrorTag) {
		t.Errorf("detail should carry the expression_error tag: %q", exprViol.Detail)
	}
	// Expression errors never make the candidate illegal.
	if !res.OK() {
		t.Error("warn-only violations must leave the candidate legal")
	}
}

func TestScoreSoft(t *testing.T) {
	p := testPack(t)
	res := p.ScoreSoft(EvalInput{Ctx: testCtx(), Pairings: legalPairings()})

	// credit: 4100 raw in bounds [3900,5700] -> 2*(200/1800)-1.
	want := 2*(4100.0-3900)/(5700-3900) - 1
	got, ok := res.Contributions["credit"]
	if !ok {
		t.Fatalf("no credit contribution: %+v", res)
	}
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("credit contribution = %g, want %g", got, want)
	}

	// weekend_priority: 0 weekend pairings, avoid direction -> +1.
	if got := res.Contributions["weekend_priority"]; got != 1 {
		t.Errorf("weekend_priority = %g, want 1", got)
	}

	// short_pairings: avg days 2.5 in [1,5], avoided -> -(2*(1.5/4)-1) = 0.25.
	if got := res.Contributions["short_pairings"]; got < 0.2499 || got > 0.2501 {
		t.Errorf("short_pairings = %g, want 0.25", got)
	}

	for _, c := range res.Contributions {
		if c < -1 || c > 1 {
			t.Errorf("contribution %g outside [-1,1]", c)
		}
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", res.Warnings)
	}
}

func TestScoreSoftExpressionWarning(t *testing.T) {
	yaml := `
version: v1
airline: UAL
month: 2025-09
soft_rules:
  - {name: broken, score: "candidate.credit_minutes / candidate.nope"}
`
	p, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	res := p.ScoreSoft(EvalInput{Ctx: testCtx(), Pairings: legalPairings()})
	if _, ok := res.Contributions["broken"]; ok {
		t.Error("broken rule must not contribute")
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected an expression warning")
	}
	if res.Warnings[0].RuleID != ExpressionErrorTag {
		t.Errorf("warning rule id = %q", res.Warnings[0].RuleID)
	}
}

func TestBaselinePack(t *testing.T) {
	p := Baseline()
	if p != Baseline() {
		t.Error("Baseline must return the shared instance")
	}
	res := p.EvaluateHard(EvalInput{Ctx: testCtx(), Pairings: legalPairings()})
	if !res.OK() {
		t.Errorf("legal fixture fails baseline: %+v", res.Violations)
	}
	soft := p.ScoreSoft(EvalInput{Ctx: testCtx(), Pairings: legalPairings()})
	for _, name := range []string{"credit", "weekend_priority", "days_off"} {
		if _, ok := soft.Contributions[name]; !ok {
			t.Errorf("baseline missing %s contribution", name)
		}
	}
}
