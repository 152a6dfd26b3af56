// Package bid provides the core VectorBid domain types: pilot context,
// preference schemas, pairings, bid packages, candidate schedules, and
// bid layer artifacts.
package bid

import (
	"fmt"
	"time"
)

// Seat positions.
const (
	SeatFO = "FO"
	SeatCA = "CA"
)

// Preference directions.
const (
	DirectionPrefer = "prefer"
	DirectionAvoid  = "avoid"
)

// Violation severities.
const (
	SeverityError = "error"
	SeverityWarn  = "warn"
)

// Parser methods recorded in PreferenceSchema.Source.
const (
	MethodLLM         = "llm"
	MethodLLMFallback = "llm_fallback"
	MethodRuleBased   = "rule_based"
)

// ContextSnapshot is the ephemeral per-request pilot context. It is created
// once by the context enricher and never mutated afterwards.
type ContextSnapshot struct {
	CtxID               string             `json:"ctx_id"`
	PilotID             string             `json:"pilot_id"`
	Airline             string             `json:"airline"`
	Month               string             `json:"month"` // YYYY-MM
	Base                string             `json:"base"`
	Fleet               string             `json:"fleet,omitempty"`
	Seat                string             `json:"seat"` // FO or CA
	Equip               []string           `json:"equip,omitempty"`
	SeniorityPercentile float64            `json:"seniority_percentile"` // [0,1], 1 = most senior
	CommutingProfile    map[string]string  `json:"commuting_profile,omitempty"`
	DefaultWeights      map[string]float64 `json:"default_weights,omitempty"`
}

// HardConstraints are the non-negotiable constraints extracted from
// preference text. A zero MaxDutyHoursPerDay means unset.
type HardConstraints struct {
	DaysOff            []string `json:"days_off,omitempty"` // sorted ISO dates
	NoRedEyes          bool     `json:"no_red_eyes,omitempty"`
	MaxDutyHoursPerDay int      `json:"max_duty_hours_per_day,omitempty"`
	Legalities         []string `json:"legalities,omitempty"` // rule-family tags, e.g. FAR117
}

// SoftPref is a single named soft preference.
type SoftPref struct {
	Direction string  `json:"direction"` // prefer or avoid
	Target    string  `json:"target,omitempty"`
	Weight    float64 `json:"weight"` // [0,1]
}

// ReservedSoftPrefs is the namespace of soft-pref names the pipeline
// understands even when the active rule pack does not declare them.
// Names outside this set and outside the pack's soft rules are warnings.
var ReservedSoftPrefs = map[string]bool{
	"pairing_length":     true,
	"layovers":           true,
	"credit":             true,
	"weekend_priority":   true,
	"days_off":           true,
	"commutable_report":  true,
	"international":      true,
	"morning_departures": true,
}

// PreferenceSchema is the structured form of a pilot's natural-language
// preferences.
type PreferenceSchema struct {
	PilotID         string              `json:"pilot_id,omitempty"`
	Airline         string              `json:"airline,omitempty"`
	Base            string              `json:"base,omitempty"`
	Seat            string              `json:"seat,omitempty"`
	Equip           []string            `json:"equip,omitempty"`
	HardConstraints HardConstraints     `json:"hard_constraints"`
	SoftPrefs       map[string]SoftPref `json:"soft_prefs,omitempty"`
	WeightsVersion  string              `json:"weights_version,omitempty"`
	Confidence      float64             `json:"confidence"` // [0,1]
	Source          map[string]string   `json:"source,omitempty"`
}

// Method returns the parser method recorded in Source, or rule_based if
// none was recorded.
func (p *PreferenceSchema) Method() string {
	if m := p.Source["parser_method"]; m != "" {
		return m
	}
	return MethodRuleBased
}

// DutyPeriod is one report-to-release stretch inside a pairing.
// Report and Release are UTC instants.
type DutyPeriod struct {
	Report            time.Time `json:"report"`
	Release           time.Time `json:"release"`
	DutyMinutes       int       `json:"duty_minutes"`
	RestBeforeMinutes int       `json:"rest_before_minutes"` // 0 for the first duty period
}

// Layover is a rest stop between duty periods.
type Layover struct {
	Airport string `json:"airport"`
	Minutes int    `json:"minutes"`
}

// Pairing is a parsed multi-day trip, the unit a pilot bids on.
// Pairings are produced by ingestion and immutable afterwards.
type Pairing struct {
	PairingID       string       `json:"pairing_id"`
	Days            int          `json:"days"`
	CreditMinutes   int          `json:"credit_minutes"`
	BlockMinutes    int          `json:"block_minutes"`
	Routing         []string     `json:"routing"`
	Dates           []string     `json:"dates"` // ordered ISO dates
	IncludesWeekend bool         `json:"includes_weekend"`
	HasRedEye       bool         `json:"has_red_eye"`
	DutyPeriods     []DutyPeriod `json:"duty_periods,omitempty"`
	Layovers        []Layover    `json:"layovers,omitempty"`
	Equipment       string       `json:"equipment,omitempty"`
	Raw             string       `json:"raw,omitempty"`
}

// BidPackage is a parsed, content-addressed bid package. Candidates
// reference pairings by index into Pairings; the slice is never mutated
// after ingestion.
type BidPackage struct {
	PackageID    string    `json:"package_id"` // hex SHA-256 of the raw file bytes
	Airline      string    `json:"airline"`
	Month        string    `json:"month"`
	Base         string    `json:"base"`
	Fleet        string    `json:"fleet"`
	Seat         string    `json:"seat"`
	UploadedAt   time.Time `json:"uploaded_at"`
	SourceFormat string    `json:"source_format"` // pdf, csv, jsonl, txt
	Pairings     []Pairing `json:"pairings"`
}

// PackageSummary is the ingest response summary.
type PackageSummary struct {
	Trips       int    `json:"trips"`
	Legs        int    `json:"legs"`
	DateSpan    string `json:"date_span"`    // "first..last" ISO dates
	CreditTotal int    `json:"credit_total"` // minutes
}

// Summary computes the ingest summary for the package.
func (b *BidPackage) Summary() PackageSummary {
	s := PackageSummary{Trips: len(b.Pairings)}
	var first, last string
	for i := range b.Pairings {
		p := &b.Pairings[i]
		s.CreditTotal += p.CreditMinutes
		if n := len(p.Routing); n > 1 {
			s.Legs += n - 1
		}
		for _, d := range p.Dates {
			if first == "" || d < first {
				first = d
			}
			if d > last {
				last = d
			}
		}
	}
	if first != "" {
		s.DateSpan = first + ".." + last
	}
	return s
}

// PairingByID returns the index of the pairing with the given id, or -1.
func (b *BidPackage) PairingByID(id string) int {
	for i := range b.Pairings {
		if b.Pairings[i].PairingID == id {
			return i
		}
	}
	return -1
}

// Violation is a hard-rule violation attached to a candidate.
type Violation struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"` // error or warn
	Detail   string `json:"detail"`
}

// LegalNote explains one hard rule that applied cleanly to a candidate.
type LegalNote struct {
	RuleID         string `json:"rule_id"`
	Detail         string `json:"detail"`
	SourceCitation string `json:"source_citation,omitempty"`
}

// CandidateSchedule is a proposed set of pairings for the month.
type CandidateSchedule struct {
	CandidateID      string             `json:"candidate_id"`
	Pairings         []string           `json:"pairings"` // ordered pairing ids
	PairingIndexes   []int              `json:"pairing_indexes,omitempty"`
	Score            float64            `json:"score"`
	HardOK           bool               `json:"hard_ok"`
	SoftBreakdown    map[string]float64 `json:"soft_breakdown,omitempty"` // weighted contributions
	SoftWeights      map[string]float64 `json:"soft_weights,omitempty"`   // normalized weights used
	Violations       []Violation        `json:"violations,omitempty"`
	Rationale        []string           `json:"rationale,omitempty"`
	LegalExplanation []LegalNote        `json:"legal_explanation,omitempty"`
}

// StrategyDirectives steers a follow-up optimization or layer pass.
type StrategyDirectives struct {
	WeightDeltas   map[string]float64  `json:"weight_deltas,omitempty"`
	FocusHints     map[string][]string `json:"focus_hints,omitempty"`
	LayerTemplates []Layer             `json:"layer_templates,omitempty"`
	Rationale      []string            `json:"rationale,omitempty"`
}

// Filter operators.
const (
	OpEq      = "="
	OpNe      = "!="
	OpLt      = "<"
	OpLe      = "<="
	OpGt      = ">"
	OpGe      = ">="
	OpIn      = "in"
	OpNotIn   = "not_in"
	OpBetween = "between"
)

// Filter types. The set is closed; rule packs may further restrict it via
// meta.allowed_filter_types.
const (
	FilterPairingID       = "pairing_id"
	FilterDays            = "days"
	FilterCreditMinutes   = "credit_minutes"
	FilterBlockMinutes    = "block_minutes"
	FilterReportHour      = "report_hour"
	FilterReleaseHour     = "release_hour"
	FilterDestAirport     = "dest_airport"
	FilterLayoverAirport  = "layover_airport"
	FilterEquipment       = "equipment"
	FilterIncludesWeekend = "includes_weekend"
	FilterHasRedEye       = "has_red_eye"
	FilterDate            = "date"
)

// Filter is one predicate inside a bid layer.
type Filter struct {
	Type   string   `json:"type"`
	Op     string   `json:"op"`
	Values []string `json:"values"`
}

// Prefer directives for a layer.
const (
	PreferYes = "YES"
	PreferNo  = "NO"
)

// Layer is one row of a bid: a filter set plus a prefer/avoid directive.
type Layer struct {
	N                int      `json:"n"`
	Filters          []Filter `json:"filters"`
	Prefer           string   `json:"prefer"` // YES or NO
	AwardProbability float64  `json:"award_probability,omitempty"`
	Rationale        string   `json:"rationale,omitempty"`
}

// Lint finding kinds.
const (
	LintShadow          = "SHADOW"
	LintContradiction   = "CONTRADICTION"
	LintRedundantFilter = "REDUNDANT_FILTER"
	LintAirlineSpecific = "AIRLINE_SPECIFIC"
	LintEmptyLayer      = "EMPTY_LAYER"
)

// LintFinding is one linter observation about an artifact.
type LintFinding struct {
	Kind   string `json:"kind"`
	Layers []int  `json:"layers,omitempty"` // layer numbers involved, ascending
	Detail string `json:"detail"`
}

// LintReport groups findings by severity. Slices are non-nil so the JSON
// form always carries all three arrays.
type LintReport struct {
	Errors   []LintFinding `json:"errors"`
	Warnings []LintFinding `json:"warnings"`
	Info     []LintFinding `json:"info"`
}

// NewLintReport returns an empty report with allocated slices.
func NewLintReport() *LintReport {
	return &LintReport{
		Errors:   []LintFinding{},
		Warnings: []LintFinding{},
		Info:     []LintFinding{},
	}
}

// BidLayerArtifact is an ordered list of PBS layers ready for export.
type BidLayerArtifact struct {
	Airline    string      `json:"airline"`
	Format     string      `json:"format"` // always PBS2
	Month      string      `json:"month"`
	Layers     []Layer     `json:"layers"`
	Lint       *LintReport `json:"lint,omitempty"`
	ExportHash string      `json:"export_hash,omitempty"`
}

// FormatPBS2 is the only supported artifact format.
const FormatPBS2 = "PBS2"

// ExportRecord is the signed, append-only audit record for one export.
type ExportRecord struct {
	ExportID     string    `json:"export_id"`
	ArtifactHash string    `json:"artifact_hash"`
	Signature    string    `json:"signature"` // hex HMAC-SHA256 of canonical bytes
	IssuedAt     time.Time `json:"issued_at"`
	CtxID        string    `json:"ctx_id"`
	PilotHash    string    `json:"pilot_hash"` // pseudonymized pilot id
}

// ValidSeat reports whether s is a known seat position.
func ValidSeat(s string) bool {
	return s == SeatFO || s == SeatCA
}

// ValidMonth reports whether m is a YYYY-MM month string.
func ValidMonth(m string) bool {
	_, err := time.Parse("2006-01", m)
	return err == nil && len(m) == 7
}

// DaysInMonth returns the number of days in a YYYY-MM month, or an error
// for malformed input.
func DaysInMonth(month string) (int, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return 0, fmt.Errorf("parse month %q: %w", month, err)
	}
	return t.AddDate(0, 1, -1).Day(), nil
}
