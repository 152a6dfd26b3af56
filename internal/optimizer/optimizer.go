// Package optimizer selects candidate schedules: legal under the active
// rule pack's hard rules, maximizing the preference-weighted soft score.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"vectorbid/internal/bid"
	"vectorbid/internal/enrich"
	"vectorbid/internal/rulepack"
)

// OptimizerVersion participates in candidate identity; bump it when
// scoring or search semantics change.
const OptimizerVersion = "optimizer/1"

// ErrOptimizer marks a whole-optimizer failure. It surfaces as a warning
// with an empty candidate list, never as a request failure.
var ErrOptimizer = errors.New("optimizer failed")

// Search and output bounds.
const (
	DefaultTopK        = 10
	DefaultBeamWidth   = 50
	DefaultMaxComplete = 200

	defaultMinCredit = 3900
	defaultMaxCredit = 5700
)

// Options tune the search. Zero values take the defaults.
type Options struct {
	TopK        int
	BeamWidth   int
	MaxComplete int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.BeamWidth <= 0 {
		o.BeamWidth = DefaultBeamWidth
	}
	if o.MaxComplete <= 0 {
		o.MaxComplete = DefaultMaxComplete
	}
	return o
}

// Result is the optimizer output: ranked candidates, the weights used,
// and any warnings collected along the way.
type Result struct {
	Candidates []bid.CandidateSchedule `json:"candidates"`
	Weights    map[string]float64      `json:"weights"`
	Warnings   []bid.Violation         `json:"warnings,omitempty"`
}

// Optimize runs pruning, beam search, and scoring over the bundle's
// package. It never fails hard: panics and empty searches degrade to an
// empty candidate list with a warning.
func Optimize(ctx context.Context, b *enrich.FeatureBundle, opts Options, log *zap.Logger) (res Result) {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()

	defer func() {
		if r := recover(); r != nil {
			log.Error("optimizer panic", zap.Any("panic", r))
			res = Result{Warnings: []bid.Violation{{
				RuleID:   "optimizer_error",
				Severity: bid.SeverityWarn,
				Detail:   fmt.Sprintf("%v: %v", ErrOptimizer, r),
			}}}
		}
	}()

	weights := ExtractWeights(b.Pack, &b.Prefs)
	res.Weights = weights
	res.Warnings = append(res.Warnings, unknownPrefWarnings(b.Pack, &b.Prefs)...)

	eligible, origIdx := prunePairings(b)
	if len(eligible) == 0 {
		res.Warnings = append(res.Warnings, bid.Violation{
			RuleID:   "optimizer_error",
			Severity: bid.SeverityWarn,
			Detail:   "no pairings survive hard-constraint pruning",
		})
		return res
	}

	minCredit, maxCredit := creditWindow(b.Pack)
	selections := beamSearch(ctx, eligible, minCredit, maxCredit, opts.BeamWidth, opts.MaxComplete)

	var candidates []bid.CandidateSchedule
	for _, sel := range selections {
		if ctx.Err() != nil {
			break
		}
		c, warns, ok := scoreSelection(b, weights, eligible, origIdx, sel)
		res.Warnings = append(res.Warnings, warns...)
		if ok {
			candidates = append(candidates, c)
		}
	}

	rankCandidates(candidates, b.Ctx.Base, b.Package)
	if len(candidates) > opts.TopK {
		candidates = candidates[:opts.TopK]
	}
	res.Candidates = candidates
	return res
}

// prunePairings applies the up-front per-pairing gates: preference hard
// constraints and pairing-scoped pack rules.
func prunePairings(b *enrich.FeatureBundle) ([]*bid.Pairing, map[string]int) {
	hc := b.Prefs.HardConstraints
	origIdx := make(map[string]int, len(b.Package.Pairings))

	daysOff := make(map[string]bool, len(hc.DaysOff))
	for _, d := range hc.DaysOff {
		daysOff[d] = true
	}

	var out []*bid.Pairing
	for i := range b.Package.Pairings {
		p := &b.Package.Pairings[i]
		if hc.NoRedEyes && p.HasRedEye {
			continue
		}
		if len(daysOff) > 0 && p.TouchesAny(daysOff) {
			continue
		}
		if hc.MaxDutyHoursPerDay > 0 {
			if d, ok := p.MaxDutyMinutes(); ok && d > hc.MaxDutyHoursPerDay*60 {
				continue
			}
		}

		hard := b.Pack.EvaluatePairing(b.EvalInput([]bid.Pairing{*p}), p)
		if !hard.OK() {
			continue
		}

		origIdx[p.PairingID] = i
		out = append(out, p)
	}

	sort.Slice(out, func(a, b int) bool { return out[a].PairingID < out[b].PairingID })
	return out, origIdx
}

// scoreSelection turns one beam-search selection into a scored candidate.
// A candidate failing the full hard evaluation, or hitting a soft
// expression error, is dropped.
func scoreSelection(b *enrich.FeatureBundle, weights map[string]float64, eligible []*bid.Pairing, origIdx map[string]int, sel []int) (bid.CandidateSchedule, []bid.Violation, bool) {
	pairings := make([]bid.Pairing, len(sel))
	ids := make([]string, len(sel))
	indexes := make([]int, len(sel))
	for i, idx := range sel {
		pairings[i] = *eligible[idx]
		ids[i] = eligible[idx].PairingID
		indexes[i] = origIdx[ids[i]]
	}

	in := b.EvalInput(pairings)
	hard := b.Pack.EvaluateHard(in)
	if !hard.OK() {
		return bid.CandidateSchedule{}, nil, false
	}

	soft := b.Pack.ScoreSoft(in)
	if len(soft.Warnings) > 0 {
		warns := append([]bid.Violation(nil), soft.Warnings...)
		warns = append(warns, bid.Violation{
			RuleID:   rulepack.ExpressionErrorTag,
			Severity: bid.SeverityWarn,
			Detail:   fmt.Sprintf("candidate %v dropped after scoring error", ids),
		})
		return bid.CandidateSchedule{}, warns, false
	}

	score := weightedScore(weights, soft.Contributions)

	c := bid.CandidateSchedule{
		CandidateID:      bid.CandidateID(b.Ctx.CtxID, ids, weightsVersion(b), b.Pack.Version),
		Pairings:         ids,
		PairingIndexes:   indexes,
		Score:            score,
		HardOK:           true,
		SoftBreakdown:    soft.Contributions,
		SoftWeights:      weights,
		Violations:       hard.Violations,
		Rationale:        rationale(weights, soft.Contributions),
		LegalExplanation: hard.Hits,
	}
	return c, nil, true
}

// weightedScore sums weighted contributions in sorted name order. Float
// addition is order-sensitive, so the map must never be ranged directly:
// identical inputs have to produce bit-identical scores.
func weightedScore(weights, contributions map[string]float64) float64 {
	names := make([]string, 0, len(contributions))
	for name := range contributions {
		names = append(names, name)
	}
	sort.Strings(names)

	score := 0.0
	for _, name := range names {
		score += weights[name] * contributions[name]
	}
	return score
}

func weightsVersion(b *enrich.FeatureBundle) string {
	if b.Prefs.WeightsVersion != "" {
		return b.Prefs.WeightsVersion
	}
	return OptimizerVersion
}

// rationale lists the top weighted contributions, at most five positive
// and five negative.
func rationale(weights, contributions map[string]float64) []string {
	type entry struct {
		name string
		v    float64
	}
	var pos, neg []entry
	for name, c := range contributions {
		wv := weights[name] * c
		if wv > 0 {
			pos = append(pos, entry{name, wv})
		} else if wv < 0 {
			neg = append(neg, entry{name, wv})
		}
	}
	sort.Slice(pos, func(a, b int) bool {
		if pos[a].v != pos[b].v {
			return pos[a].v > pos[b].v
		}
		return pos[a].name < pos[b].name
	})
	sort.Slice(neg, func(a, b int) bool {
		if neg[a].v != neg[b].v {
			return neg[a].v < neg[b].v
		}
		return neg[a].name < neg[b].name
	})
	if len(pos) > 5 {
		pos = pos[:5]
	}
	if len(neg) > 5 {
		neg = neg[:5]
	}

	out := make([]string, 0, len(pos)+len(neg))
	for _, e := range pos {
		out = append(out, fmt.Sprintf("%s %+.3f", e.name, e.v))
	}
	for _, e := range neg {
		out = append(out, fmt.Sprintf("%s %+.3f", e.name, e.v))
	}
	return out
}

// rankCandidates orders by score, then fewer soft penalties, then base
// affinity, then candidate id.
func rankCandidates(cs []bid.CandidateSchedule, base string, pkg *bid.BidPackage) {
	affinity := func(c *bid.CandidateSchedule) float64 {
		if pkg == nil || len(c.PairingIndexes) == 0 {
			return 0
		}
		n := 0
		for _, idx := range c.PairingIndexes {
			if idx >= 0 && idx < len(pkg.Pairings) {
				r := pkg.Pairings[idx].Routing
				if len(r) > 0 && r[0] == base {
					n++
				}
			}
		}
		return float64(n) / float64(len(c.PairingIndexes))
	}
	negatives := func(c *bid.CandidateSchedule) int {
		n := 0
		for _, v := range c.SoftBreakdown {
			if v < 0 {
				n++
			}
		}
		return n
	}

	sort.Slice(cs, func(a, b int) bool {
		if cs[a].Score != cs[b].Score {
			return cs[a].Score > cs[b].Score
		}
		na, nb := negatives(&cs[a]), negatives(&cs[b])
		if na != nb {
			return na < nb
		}
		fa, fb := affinity(&cs[a]), affinity(&cs[b])
		if fa != fb {
			return fa > fb
		}
		return cs[a].CandidateID < cs[b].CandidateID
	})
}

func creditWindow(pack *rulepack.RulePack) (int, int) {
	min, max := defaultMinCredit, defaultMaxCredit
	if v, ok := pack.Constants["min_credit_minutes"]; ok {
		min = int(v)
	}
	if v, ok := pack.Constants["max_credit_minutes"]; ok {
		max = int(v)
	}
	return min, max
}

// unknownPrefWarnings flags preference names outside both the pack's
// soft rules and the reserved namespace.
func unknownPrefWarnings(pack *rulepack.RulePack, prefs *bid.PreferenceSchema) []bid.Violation {
	var out []bid.Violation
	names := make([]string, 0, len(prefs.SoftPrefs))
	for name := range prefs.SoftPrefs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if bid.ReservedSoftPrefs[name] || pack.HasSoftRule(name) {
			continue
		}
		out = append(out, bid.Violation{
			RuleID:   "unknown_soft_pref",
			Severity: bid.SeverityWarn,
			Detail:   fmt.Sprintf("preference %q is not declared by the rule pack", name),
		})
	}
	return out
}

// Retune rescores an existing candidate set with adjusted weights. No
// re-search happens; candidates that failed hard checks stay excluded.
// Empty deltas reproduce identical scores and ordering.
func Retune(candidates []bid.CandidateSchedule, deltas map[string]float64, base string, pkg *bid.BidPackage) []bid.CandidateSchedule {
	out := make([]bid.CandidateSchedule, 0, len(candidates))
	for _, c := range candidates {
		if !c.HardOK {
			continue
		}
		w := ApplyDeltas(c.SoftWeights, deltas)
		c.SoftWeights = w
		c.Score = weightedScore(w, c.SoftBreakdown)
		c.Rationale = rationale(w, c.SoftBreakdown)
		out = append(out, c)
	}
	rankCandidates(out, base, pkg)
	return out
}
