// Package rulepack loads versioned YAML rule packs, compiles their
// expressions once, caches compiled packs, and evaluates hard and soft
// rules against candidate schedules.
package rulepack

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"vectorbid/internal/bid"
	"vectorbid/internal/expr"
)

// Dialect is the only expression grammar this evaluator accepts.
const Dialect = "vectorbid/v1"

// FAR-117 regulatory constants exposed as the far117.* namespace.
const (
	FAR117MaxDutyMinutes       = 840  // 14h daily duty limit
	FAR117MinRestMinutes       = 600  // 10h rest between duty periods
	FAR117MaxFlightMinutes672h = 6000 // 100h flight time in 672h
)

var (
	// ErrPackNotFound means no pack exists for the (airline, month) key.
	ErrPackNotFound = errors.New("rule pack not found")
	// ErrPackInvalid means the pack failed schema or expression checks.
	ErrPackInvalid = errors.New("rule pack invalid")
)

// HardRule is a legality check. Check must evaluate truthy for the
// candidate to be legal; rules whose expression references the pairing
// namespace are evaluated once per pairing and must hold for all of them.
type HardRule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // error or warn
	Check       string `json:"check"`

	checkIdx   int
	perPairing bool
}

// SoftRule scores one preference dimension. The raw score is clamped to
// Bounds and rescaled into [-1,1]; direction "avoid" negates the result.
type SoftRule struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Score       string     `json:"score"`
	Weight      float64    `json:"weight"`
	Direction   string     `json:"direction,omitempty"`
	Bounds      [2]float64 `json:"bounds"`

	scoreIdx   int
	perPairing bool
}

// Meta carries airline-dialect constraints consumed by the linter.
type Meta struct {
	ExpressionDialect  string   `json:"expression_dialect" yaml:"expression_dialect"`
	MaxLayers          int      `json:"max_layers,omitempty" yaml:"max_layers"`
	AllowedFilterTypes []string `json:"allowed_filter_types,omitempty" yaml:"allowed_filter_types"`
}

// RulePack is a compiled, immutable rule pack. Compiled expressions live
// in a single slice; rules reference them by index.
type RulePack struct {
	Version   string             `json:"version"`
	Airline   string             `json:"airline"`
	Month     string             `json:"month"`
	HardRules []HardRule         `json:"hard_rules"`
	SoftRules []SoftRule         `json:"soft_rules"`
	Constants map[string]float64 `json:"constants,omitempty"`
	Meta      Meta               `json:"meta"`

	exprs []*expr.Compiled
}

// YAML file shapes. Weight is a pointer so an absent weight can default
// to 1 while an explicit 0 stays 0.
type packFile struct {
	Version   string             `yaml:"version"`
	Airline   string             `yaml:"airline"`
	Month     string             `yaml:"month"`
	Constants map[string]float64 `yaml:"constants"`
	HardRules []fileHardRule     `yaml:"hard_rules"`
	SoftRules []fileSoftRule     `yaml:"soft_rules"`
	Meta      Meta               `yaml:"meta"`
}

type fileHardRule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"`
	Check       string `yaml:"check"`
}

type fileSoftRule struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Score       string    `yaml:"score"`
	Weight      *float64  `yaml:"weight"`
	Direction   string    `yaml:"direction"`
	Bounds      []float64 `yaml:"bounds"`
}

// Parse decodes and compiles a rule pack from YAML. Packs that do not
// type-check are rejected with ErrPackInvalid; nothing is partially
// loaded.
func Parse(data []byte) (*RulePack, error) {
	var f packFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackInvalid, err)
	}

	if f.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrPackInvalid)
	}
	if f.Airline == "" {
		return nil, fmt.Errorf("%w: missing airline", ErrPackInvalid)
	}
	if !bid.ValidMonth(f.Month) {
		return nil, fmt.Errorf("%w: bad month %q", ErrPackInvalid, f.Month)
	}
	if f.Meta.ExpressionDialect != "" && f.Meta.ExpressionDialect != Dialect {
		return nil, fmt.Errorf("%w: unsupported expression dialect %q", ErrPackInvalid, f.Meta.ExpressionDialect)
	}

	p := &RulePack{
		Version:   f.Version,
		Airline:   f.Airline,
		Month:     f.Month,
		Constants: f.Constants,
		Meta:      f.Meta,
	}
	if p.Meta.ExpressionDialect == "" {
		p.Meta.ExpressionDialect = Dialect
	}

	seenIDs := make(map[string]bool)
	for _, hr := range f.HardRules {
		if hr.ID == "" {
			return nil, fmt.Errorf("%w: hard rule with empty id", ErrPackInvalid)
		}
		if seenIDs[hr.ID] {
			return nil, fmt.Errorf("%w: duplicate hard rule id %q", ErrPackInvalid, hr.ID)
		}
		seenIDs[hr.ID] = true

		sev := hr.Severity
		if sev == "" {
			sev = bid.SeverityError
		}
		if sev != bid.SeverityError && sev != bid.SeverityWarn {
			return nil, fmt.Errorf("%w: hard rule %q: bad severity %q", ErrPackInvalid, hr.ID, hr.Severity)
		}
		if hr.Check == "" {
			return nil, fmt.Errorf("%w: hard rule %q: missing check", ErrPackInvalid, hr.ID)
		}

		c, err := expr.Compile(hr.Check)
		if err != nil {
			return nil, fmt.Errorf("%w: hard rule %q: %v", ErrPackInvalid, hr.ID, err)
		}
		p.HardRules = append(p.HardRules, HardRule{
			ID:          hr.ID,
			Description: hr.Description,
			Severity:    sev,
			Check:       hr.Check,
			checkIdx:    len(p.exprs),
			perPairing:  c.Uses(expr.NSPairing),
		})
		p.exprs = append(p.exprs, c)
	}

	seenNames := make(map[string]bool)
	for _, sr := range f.SoftRules {
		if sr.Name == "" {
			return nil, fmt.Errorf("%w: soft rule with empty name", ErrPackInvalid)
		}
		if seenNames[sr.Name] {
			return nil, fmt.Errorf("%w: duplicate soft rule name %q", ErrPackInvalid, sr.Name)
		}
		seenNames[sr.Name] = true

		if sr.Direction != "" && sr.Direction != bid.DirectionPrefer && sr.Direction != bid.DirectionAvoid {
			return nil, fmt.Errorf("%w: soft rule %q: bad direction %q", ErrPackInvalid, sr.Name, sr.Direction)
		}
		if sr.Score == "" {
			return nil, fmt.Errorf("%w: soft rule %q: missing score", ErrPackInvalid, sr.Name)
		}

		weight := 1.0
		if sr.Weight != nil {
			if *sr.Weight < 0 {
				return nil, fmt.Errorf("%w: soft rule %q: negative weight", ErrPackInvalid, sr.Name)
			}
			weight = *sr.Weight
		}

		bounds := [2]float64{-1, 1}
		if len(sr.Bounds) != 0 {
			if len(sr.Bounds) != 2 || sr.Bounds[0] >= sr.Bounds[1] {
				return nil, fmt.Errorf("%w: soft rule %q: bounds must be [lo, hi] with lo < hi", ErrPackInvalid, sr.Name)
			}
			bounds = [2]float64{sr.Bounds[0], sr.Bounds[1]}
		}

		c, err := expr.Compile(sr.Score)
		if err != nil {
			return nil, fmt.Errorf("%w: soft rule %q: %v", ErrPackInvalid, sr.Name, err)
		}
		p.SoftRules = append(p.SoftRules, SoftRule{
			Name:        sr.Name,
			Description: sr.Description,
			Score:       sr.Score,
			Weight:      weight,
			Direction:   sr.Direction,
			Bounds:      bounds,
			scoreIdx:    len(p.exprs),
			perPairing:  c.Uses(expr.NSPairing),
		})
		p.exprs = append(p.exprs, c)
	}

	return p, nil
}

// SoftRuleNames returns the declared soft rule names, sorted.
func (p *RulePack) SoftRuleNames() []string {
	names := make([]string, len(p.SoftRules))
	for i, sr := range p.SoftRules {
		names[i] = sr.Name
	}
	sort.Strings(names)
	return names
}

// HasSoftRule reports whether the pack declares the named soft rule.
func (p *RulePack) HasSoftRule(name string) bool {
	for _, sr := range p.SoftRules {
		if sr.Name == name {
			return true
		}
	}
	return false
}
