package rulepack

import (
	"fmt"
	"strings"

	"vectorbid/internal/bid"
	"vectorbid/internal/expr"
)

// ExpressionErrorTag marks violations produced by in-dialect evaluation
// problems (division by zero, undefined identifiers, bad arguments).
// They are always severity warn and never abort an evaluation.
const ExpressionErrorTag = "expression_error"

// HardResult is the outcome of evaluating all hard rules for one
// candidate.
type HardResult struct {
	Hits       []bid.LegalNote // rules that applied and held
	Violations []bid.Violation
}

// OK reports whether the candidate is legal: no severity-error
// violations. Warn violations (including expression errors) do not make
// a candidate illegal.
func (r HardResult) OK() bool {
	for _, v := range r.Violations {
		if v.Severity == bid.SeverityError {
			return false
		}
	}
	return true
}

// EvaluateHard runs every hard rule against the candidate described by
// in. Rules that reference the pairing namespace are evaluated once per
// pairing and must hold for all of them. Evaluation is total: expression
// problems become warn violations tagged expression_error.
func (p *RulePack) EvaluateHard(in EvalInput) HardResult {
	env := p.NewEnv(in)
	var res HardResult

	for i := range p.HardRules {
		r := &p.HardRules[i]
		c := p.exprs[r.checkIdx]

		if !r.perPairing {
			held, viol := evalCheck(env, r, c, "")
			if viol != nil {
				res.Violations = append(res.Violations, *viol)
			} else if held {
				res.Hits = append(res.Hits, bid.LegalNote{RuleID: r.ID, Detail: r.Description})
			}
			continue
		}

		clean := true
		for j := range in.Pairings {
			pr := &in.Pairings[j]
			bindPairing(env, pr)
			held, viol := evalCheck(env, r, c, pr.PairingID)
			if viol != nil {
				res.Violations = append(res.Violations, *viol)
				clean = false
			} else if !held {
				clean = false
			}
		}
		env.NS[expr.NSPairing] = map[string]expr.Value{}
		if clean && len(in.Pairings) > 0 {
			res.Hits = append(res.Hits, bid.LegalNote{RuleID: r.ID, Detail: r.Description})
		}
	}
	return res
}

// EvaluatePairing runs only the pairing-scoped hard rules against a
// single pairing. The optimizer uses it to prune pairings before beam
// search; candidate-scoped rules are skipped because they need the full
// selection.
func (p *RulePack) EvaluatePairing(in EvalInput, pr *bid.Pairing) HardResult {
	env := p.NewEnv(in)
	bindPairing(env, pr)
	var res HardResult

	for i := range p.HardRules {
		r := &p.HardRules[i]
		if !r.perPairing {
			continue
		}
		held, viol := evalCheck(env, r, p.exprs[r.checkIdx], pr.PairingID)
		if viol != nil {
			res.Violations = append(res.Violations, *viol)
		} else if held {
			res.Hits = append(res.Hits, bid.LegalNote{RuleID: r.ID, Detail: r.Description})
		}
	}
	return res
}

// evalCheck evaluates one check in the current environment. It returns
// the check outcome and, when the check failed or errored, the violation
// to record.
func evalCheck(env *expr.Env, r *HardRule, c *expr.Compiled, pairingID string) (bool, *bid.Violation) {
	env.ResetNotes()
	v := c.Eval(env)

	if notes := env.Notes(); len(notes) > 0 || !v.Defined() {
		detail := fmt.Sprintf("%s: %s", ExpressionErrorTag, strings.Join(notes, "; "))
		if pairingID != "" {
			detail += " (pairing " + pairingID + ")"
		}
		return false, &bid.Violation{RuleID: r.ID, Severity: bid.SeverityWarn, Detail: detail}
	}
	if v.Truthy() {
		return true, nil
	}
	detail := r.Description
	if detail == "" {
		detail = "check failed: " + r.Check
	}
	if pairingID != "" {
		detail += " (pairing " + pairingID + ")"
	}
	return false, &bid.Violation{RuleID: r.ID, Severity: r.Severity, Detail: detail}
}

// SoftResult carries per-rule contributions in [-1,1] plus any
// expression warnings hit along the way.
type SoftResult struct {
	Contributions map[string]float64
	Warnings      []bid.Violation
}

// ScoreSoft evaluates every soft rule. Raw scores are clamped to the
// rule's bounds, rescaled into [-1,1], and negated for direction avoid.
// Per-pairing scores average across the candidate's pairings. Rules that
// hit an expression error contribute nothing and record a warning.
func (p *RulePack) ScoreSoft(in EvalInput) SoftResult {
	env := p.NewEnv(in)
	res := SoftResult{Contributions: make(map[string]float64, len(p.SoftRules))}

	for i := range p.SoftRules {
		r := &p.SoftRules[i]
		c := p.exprs[r.scoreIdx]

		var raw float64
		var errored bool

		if r.perPairing {
			if len(in.Pairings) == 0 {
				continue
			}
			sum := 0.0
			for j := range in.Pairings {
				bindPairing(env, &in.Pairings[j])
				env.ResetNotes()
				v := c.Eval(env)
				if len(env.Notes()) > 0 || v.Kind != expr.KindNum {
					res.Warnings = append(res.Warnings, softWarning(r.Name, env.Notes()))
					errored = true
					break
				}
				sum += v.N
			}
			env.NS[expr.NSPairing] = map[string]expr.Value{}
			raw = sum / float64(len(in.Pairings))
		} else {
			env.ResetNotes()
			v := c.Eval(env)
			if len(env.Notes()) > 0 || v.Kind != expr.KindNum {
				res.Warnings = append(res.Warnings, softWarning(r.Name, env.Notes()))
				errored = true
			} else {
				raw = v.N
			}
		}
		if errored {
			continue
		}
		res.Contributions[r.Name] = r.contribution(raw)
	}
	return res
}

// contribution clamps raw to the rule's bounds, rescales into [-1,1],
// and applies direction.
func (r *SoftRule) contribution(raw float64) float64 {
	lo, hi := r.Bounds[0], r.Bounds[1]
	if raw < lo {
		raw = lo
	}
	if raw > hi {
		raw = hi
	}
	c := 2*(raw-lo)/(hi-lo) - 1
	if r.Direction == bid.DirectionAvoid {
		c = -c
	}
	return c
}

func softWarning(name string, notes []string) bid.Violation {
	return bid.Violation{
		RuleID:   ExpressionErrorTag,
		Severity: bid.SeverityWarn,
		Detail:   fmt.Sprintf("soft rule %s: %s", name, strings.Join(notes, "; ")),
	}
}
