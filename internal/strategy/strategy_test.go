package strategy

import (
	"math"
	"testing"

	"vectorbid/internal/bid"
	"vectorbid/internal/enrich"
	"vectorbid/internal/rulepack"
)

func testBundle(prefs bid.PreferenceSchema) *enrich.FeatureBundle {
	pkg := &bid.BidPackage{
		PackageID: "pkg-1",
		Airline:   "UAL",
		Month:     "2025-09",
		Base:      "DEN",
		Pairings: []bid.Pairing{
			{PairingID: "C100", Days: 3, CreditMinutes: 2200, Layovers: []bid.Layover{{Airport: "SFO", Minutes: 900}}},
			{PairingID: "C200", Days: 2, CreditMinutes: 1900, Layovers: []bid.Layover{{Airport: "ORD", Minutes: 840}}},
			{PairingID: "C300", Days: 2, CreditMinutes: 1500},
		},
	}
	return &enrich.FeatureBundle{
		Ctx: &bid.ContextSnapshot{
			CtxID:               "ctx-1",
			Airline:             "UAL",
			Month:               "2025-09",
			Base:                "DEN",
			SeniorityPercentile: 0.5,
		},
		Prefs:   prefs,
		Package: pkg,
		Pack:    rulepack.Baseline(),
	}
}

func testCandidates() []bid.CandidateSchedule {
	return []bid.CandidateSchedule{
		{CandidateID: "a", Pairings: []string{"C100", "C200"}, PairingIndexes: []int{0, 1}, Score: 0.6, HardOK: true},
		{CandidateID: "b", Pairings: []string{"C100", "C300"}, PairingIndexes: []int{0, 2}, Score: 0.5, HardOK: true},
		{CandidateID: "c", Pairings: []string{"C200", "C300"}, PairingIndexes: []int{1, 2}, Score: 0.4, HardOK: true},
	}
}

func TestGenerateLayersShape(t *testing.T) {
	prefs := bid.PreferenceSchema{
		HardConstraints: bid.HardConstraints{NoRedEyes: true},
		SoftPrefs: map[string]bid.SoftPref{
			"weekend_priority": {Direction: bid.DirectionPrefer, Weight: 0.9},
		},
	}
	in := Input{Bundle: testBundle(prefs), Candidates: testCandidates()}
	art := GenerateLayers(in)

	if art.Airline != "UAL" || art.Month != "2025-09" || art.Format != bid.FormatPBS2 {
		t.Errorf("artifact header = %+v", art)
	}
	if len(art.Layers) < 3 {
		t.Fatalf("layers = %d, want at least 3", len(art.Layers))
	}

	// Layer numbering is 1-based and contiguous.
	for i, l := range art.Layers {
		if l.N != i+1 {
			t.Errorf("layer %d numbered %d", i, l.N)
		}
		if len(l.Filters) == 0 {
			t.Errorf("layer %d has no filters", l.N)
		}
	}

	// First layer targets exactly the top candidate's pairings.
	first := art.Layers[0]
	if first.Prefer != bid.PreferYes {
		t.Error("first layer must prefer YES")
	}
	if len(first.Filters) != 1 || first.Filters[0].Type != bid.FilterPairingID {
		t.Errorf("first layer filters = %+v", first.Filters)
	}
	if got := first.Filters[0].Values; len(got) != 2 || got[0] != "C100" || got[1] != "C200" {
		t.Errorf("first layer ids = %v", got)
	}

	// Trailing exclusions carry prefer NO.
	last := art.Layers[len(art.Layers)-1]
	if last.Prefer != bid.PreferNo {
		t.Errorf("final layer prefer = %s, want NO", last.Prefer)
	}

	// Award probability never decreases down the list.
	for i := 1; i < len(art.Layers); i++ {
		if art.Layers[i].AwardProbability < art.Layers[i-1].AwardProbability {
			t.Errorf("award probability decreased at layer %d", i+1)
		}
	}
	// Prior for 0.5 seniority: p1 = 0.15 + 0.35 = 0.5.
	if p := art.Layers[0].AwardProbability; math.Abs(p-0.5) > 1e-9 {
		t.Errorf("layer 1 probability = %v, want 0.5", p)
	}
}

func TestGenerateLayersRespectsMaxLayers(t *testing.T) {
	b := testBundle(bid.PreferenceSchema{HardConstraints: bid.HardConstraints{NoRedEyes: true}})
	b.Pack = mustPackWithMaxLayers(t, 2)

	art := GenerateLayers(Input{Bundle: b, Candidates: testCandidates()})
	if len(art.Layers) != 2 {
		t.Errorf("layers = %d, want capped at 2", len(art.Layers))
	}
}

func mustPackWithMaxLayers(t *testing.T, n int) *rulepack.RulePack {
	t.Helper()
	yaml := `version: t-1
airline: UAL
month: 2025-09
hard_rules:
  - id: noop
    description: always holds
    check: 1 <= 2
soft_rules:
  - name: credit
    description: credit
    score: candidate.credit_minutes
    bounds: [3900, 5700]
meta:
  expression_dialect: vectorbid/v1
  max_layers: ` + string(rune('0'+n)) + `
`
	pack, err := rulepack.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse pack: %v", err)
	}
	return pack
}

func TestHistoricalRatesOverridePrior(t *testing.T) {
	in := Input{
		Bundle:     testBundle(bid.PreferenceSchema{}),
		Candidates: testCandidates(),
		LayerRates: map[int]float64{1: 0.22},
	}
	art := GenerateLayers(in)
	if len(art.Layers) == 0 {
		t.Fatal("no layers")
	}
	if art.Layers[0].AwardProbability != 0.22 {
		t.Errorf("layer 1 probability = %v, want historical 0.22", art.Layers[0].AwardProbability)
	}
}

func TestCanonicalize(t *testing.T) {
	in := []bid.Filter{
		{Type: bid.FilterDestAirport, Op: bid.OpEq, Values: []string{"SFO"}},
		{Type: bid.FilterDestAirport, Op: bid.OpEq, Values: []string{"ORD"}},
		{Type: bid.FilterCreditMinutes, Op: bid.OpBetween, Values: []string{"1000", "2000"}},
		{Type: bid.FilterCreditMinutes, Op: bid.OpBetween, Values: []string{"1500", "2500"}},
		{Type: bid.FilterHasRedEye, Op: bid.OpEq, Values: []string{"true"}},
		{Type: bid.FilterHasRedEye, Op: bid.OpEq, Values: []string{"true"}},
	}
	out := Canonicalize(in)

	var dest, credit, redeye *bid.Filter
	for i := range out {
		switch out[i].Type {
		case bid.FilterDestAirport:
			dest = &out[i]
		case bid.FilterCreditMinutes:
			credit = &out[i]
		case bid.FilterHasRedEye:
			redeye = &out[i]
		}
	}

	if dest == nil || dest.Op != bid.OpIn || len(dest.Values) != 2 {
		t.Errorf("dest filter = %+v, want collapsed in [ORD SFO]", dest)
	}
	if credit == nil || credit.Op != bid.OpBetween ||
		credit.Values[0] != "1000" || credit.Values[1] != "2500" {
		t.Errorf("credit filter = %+v, want merged range 1000..2500", credit)
	}
	if redeye == nil || redeye.Op != bid.OpEq {
		t.Errorf("redeye filter = %+v, want single equality", redeye)
	}
	count := 0
	for _, f := range out {
		if f.Type == bid.FilterHasRedEye {
			count++
		}
	}
	if count != 1 {
		t.Errorf("duplicate has_red_eye filters survived: %d", count)
	}

	// Stable sort by type.
	for i := 1; i < len(out); i++ {
		if out[i].Type < out[i-1].Type {
			t.Error("filters not sorted by type")
		}
	}
}

func TestDirectives(t *testing.T) {
	prefs := bid.PreferenceSchema{
		SoftPrefs: map[string]bid.SoftPref{
			"credit":   {Direction: bid.DirectionPrefer, Weight: 0.9},
			"layovers": {Direction: bid.DirectionPrefer, Weight: 0.4},
		},
	}
	d := Directives(Input{Bundle: testBundle(prefs), Candidates: testCandidates()})

	if d.WeightDeltas["credit"] != 0.1 {
		t.Errorf("weight deltas = %v, want credit nudge", d.WeightDeltas)
	}
	if _, ok := d.WeightDeltas["layovers"]; ok {
		t.Error("weak preferences should not get deltas")
	}
	if got := d.FocusHints["layover_airports"]; len(got) != 2 || got[0] != "ORD" || got[1] != "SFO" {
		t.Errorf("layover hints = %v", got)
	}
	if len(d.LayerTemplates) == 0 {
		t.Error("missing layer templates")
	}
	if len(d.Rationale) == 0 || d.Rationale[0] == "" {
		t.Errorf("rationale = %v, want at least one line", d.Rationale)
	}
}
