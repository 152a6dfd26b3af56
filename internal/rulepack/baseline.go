package rulepack

import "sync"

// baselineYAML is the built-in pack used when no airline pack exists for
// the requested month (legacy mode). It carries the FAR-117 floor plus
// the reserved soft-rule namespace with neutral weights, so preference
// parsing and optimization keep working without airline-specific rules.
const baselineYAML = `
version: baseline-1
airline: ANY
month: 2000-01
meta:
  expression_dialect: vectorbid/v1
constants:
  min_credit_minutes: 3900
  max_credit_minutes: 5700
hard_rules:
  - id: far117_max_duty
    description: no duty period may exceed the FAR-117 14h limit
    severity: error
    check: pairing.max_duty_minutes <= far117.max_duty_minutes
  - id: far117_min_rest
    description: rest between duty periods must meet the FAR-117 10h floor
    severity: error
    check: pairing.days < 2 or pairing.min_rest_minutes >= far117.min_rest_minutes
  - id: credit_window
    description: total credit must land inside the contractual window
    severity: error
    check: between(candidate.credit_minutes, contract.min_credit_minutes, contract.max_credit_minutes)
soft_rules:
  - name: credit
    description: higher total credit
    score: candidate.credit_minutes
    weight: 1.0
    bounds: [3900, 5700]
  - name: weekend_priority
    description: fewer pairings touching weekend days
    score: candidate.weekend_pairings
    weight: 1.0
    direction: avoid
    bounds: [0, 4]
  - name: days_off
    description: more calendar days free of flying
    score: candidate.days_off
    weight: 1.0
    bounds: [8, 18]
  - name: layovers
    description: longer average layovers
    score: candidate.avg_layover_minutes
    weight: 0.5
    bounds: [600, 1500]
  - name: pairing_length
    description: average pairing length in days
    score: candidate.days / candidate.count
    weight: 0.5
    bounds: [1, 5]
  - name: commutable_report
    description: later first reports that a same-day commute can make
    score: candidate.earliest_report_hour
    weight: 0.5
    bounds: [5, 12]
  - name: morning_departures
    description: earlier first reports
    score: candidate.earliest_report_hour
    weight: 0.5
    direction: avoid
    bounds: [5, 12]
  - name: international
    description: more pairings touching international destinations
    score: candidate.international_pairings
    weight: 0.5
    bounds: [0, 3]
`

var (
	baselineOnce sync.Once
	baselinePack *RulePack
)

// Baseline returns the built-in legacy-mode pack. The result is shared
// and read-only, like any loaded pack.
func Baseline() *RulePack {
	baselineOnce.Do(func() {
		p, err := Parse([]byte(baselineYAML))
		if err != nil {
			panic("rulepack: baseline pack does not parse: " + err.Error())
		}
		baselinePack = p
	})
	return baselinePack
}
