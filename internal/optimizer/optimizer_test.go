package optimizer

import (
	"context"
	"math"
	"testing"
	"time"

	"vectorbid/internal/bid"
	"vectorbid/internal/enrich"
	"vectorbid/internal/rulepack"
)

func dutyFor(dates []string) []bid.DutyPeriod {
	dps := make([]bid.DutyPeriod, 0, len(dates))
	for i, d := range dates {
		day, _ := time.Parse("2006-01-02", d)
		report := day.Add(9 * time.Hour)
		dp := bid.DutyPeriod{
			Report:      report,
			Release:     report.Add(10 * time.Hour),
			DutyMinutes: 600,
		}
		if i > 0 {
			dp.RestBeforeMinutes = 840
		}
		dps = append(dps, dp)
	}
	return dps
}

func mkPairing(id string, credit int, redEye bool, dates ...string) bid.Pairing {
	return bid.Pairing{
		PairingID:     id,
		Days:          len(dates),
		CreditMinutes: credit,
		BlockMinutes:  credit - 100,
		Routing:       []string{"DEN", "ORD", "DEN"},
		Dates:         dates,
		HasRedEye:     redEye,
		DutyPeriods:   dutyFor(dates),
		Layovers:      []bid.Layover{{Airport: "ORD", Minutes: 840}},
	}
}

func testBundle(prefs bid.PreferenceSchema, pairings ...bid.Pairing) *enrich.FeatureBundle {
	pkg := &bid.BidPackage{
		PackageID: "pkg-1",
		Airline:   "UAL",
		Month:     "2025-09",
		Base:      "DEN",
		Pairings:  pairings,
	}
	return &enrich.FeatureBundle{
		Ctx: &bid.ContextSnapshot{
			CtxID:   "ctx-1",
			PilotID: "P100",
			Airline: "UAL",
			Month:   "2025-09",
			Base:    "DEN",
			Seat:    bid.SeatFO,
		},
		Prefs:      prefs,
		PackageID:  pkg.PackageID,
		Package:    pkg,
		Pack:       rulepack.Baseline(),
		LegacyMode: true,
	}
}

func standardPairings() []bid.Pairing {
	return []bid.Pairing{
		mkPairing("C100", 2200, false, "2025-09-01", "2025-09-02", "2025-09-03"),
		mkPairing("C200", 1900, false, "2025-09-05", "2025-09-06"),
		mkPairing("C300", 1500, false, "2025-09-08", "2025-09-09"),
		mkPairing("C400", 2000, true, "2025-09-11", "2025-09-12"),
		mkPairing("C500", 2000, false, "2025-09-02", "2025-09-03", "2025-09-04"), // overlaps C100
	}
}

func TestOptimizeProducesLegalCandidates(t *testing.T) {
	b := testBundle(bid.PreferenceSchema{}, standardPairings()...)
	res := Optimize(context.Background(), b, Options{}, nil)

	if len(res.Candidates) == 0 {
		t.Fatalf("no candidates; warnings: %+v", res.Warnings)
	}
	for _, c := range res.Candidates {
		if !c.HardOK {
			t.Errorf("candidate %s not hard-ok", c.CandidateID)
		}
		credit := 0
		for _, idx := range c.PairingIndexes {
			credit += b.Package.Pairings[idx].CreditMinutes
		}
		if credit < 3900 || credit > 5700 {
			t.Errorf("candidate %v credit %d outside window", c.Pairings, credit)
		}
		for i, a := range c.PairingIndexes {
			for _, o := range c.PairingIndexes[i+1:] {
				if b.Package.Pairings[a].DatesOverlap(&b.Package.Pairings[o]) {
					t.Errorf("candidate %v has overlapping pairings", c.Pairings)
				}
			}
		}
		if len(c.LegalExplanation) == 0 {
			t.Errorf("candidate %v missing legal explanation", c.Pairings)
		}
		if len(c.Rationale) == 0 {
			t.Errorf("candidate %v missing rationale", c.Pairings)
		}
	}
	for i := 1; i < len(res.Candidates); i++ {
		if res.Candidates[i].Score > res.Candidates[i-1].Score {
			t.Error("candidates not sorted by score desc")
		}
	}
}

func TestNoRedEyePruning(t *testing.T) {
	prefs := bid.PreferenceSchema{HardConstraints: bid.HardConstraints{NoRedEyes: true}}
	b := testBundle(prefs, standardPairings()...)
	res := Optimize(context.Background(), b, Options{}, nil)

	for _, c := range res.Candidates {
		for _, id := range c.Pairings {
			if id == "C400" {
				t.Fatalf("red-eye pairing survived pruning in %v", c.Pairings)
			}
		}
	}
}

func TestDaysOffPruning(t *testing.T) {
	prefs := bid.PreferenceSchema{HardConstraints: bid.HardConstraints{
		DaysOff: []string{"2025-09-05", "2025-09-06"},
	}}
	b := testBundle(prefs, standardPairings()...)
	res := Optimize(context.Background(), b, Options{}, nil)

	for _, c := range res.Candidates {
		for _, id := range c.Pairings {
			if id == "C200" {
				t.Fatalf("pairing touching a day off survived pruning in %v", c.Pairings)
			}
		}
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	b := testBundle(bid.PreferenceSchema{}, standardPairings()...)
	r1 := Optimize(context.Background(), b, Options{}, nil)
	r2 := Optimize(context.Background(), b, Options{}, nil)

	if len(r1.Candidates) != len(r2.Candidates) {
		t.Fatalf("candidate counts differ: %d vs %d", len(r1.Candidates), len(r2.Candidates))
	}
	for i := range r1.Candidates {
		if r1.Candidates[i].CandidateID != r2.Candidates[i].CandidateID {
			t.Errorf("rank %d differs: %s vs %s", i, r1.Candidates[i].CandidateID, r2.Candidates[i].CandidateID)
		}
		if r1.Candidates[i].Score != r2.Candidates[i].Score {
			t.Errorf("rank %d score differs", i)
		}
	}
}

func TestOptimizeEmptyPackage(t *testing.T) {
	b := testBundle(bid.PreferenceSchema{})
	res := Optimize(context.Background(), b, Options{}, nil)
	if len(res.Candidates) != 0 {
		t.Error("empty package should produce no candidates")
	}
	if len(res.Warnings) == 0 {
		t.Error("empty search should warn")
	}
}

func TestExtractWeights(t *testing.T) {
	pack := rulepack.Baseline()
	prefs := &bid.PreferenceSchema{
		SoftPrefs: map[string]bid.SoftPref{
			"credit": {Direction: bid.DirectionPrefer, Weight: 0.5},
		},
		Source: map[string]string{"persona": "family_first"},
	}

	w := ExtractWeights(pack, prefs)
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum = %v, want 1", sum)
	}
	if w["weekend_priority"] <= w["credit"] {
		t.Errorf("family_first should rank weekend_priority (%v) above credit (%v)",
			w["weekend_priority"], w["credit"])
	}
}

func retuneFixture() []bid.CandidateSchedule {
	weights := map[string]float64{"credit": 0.5, "weekend_priority": 0.5}
	return []bid.CandidateSchedule{
		{
			CandidateID:   "cand-a",
			HardOK:        true,
			Score:         0.35,
			SoftWeights:   weights,
			SoftBreakdown: map[string]float64{"credit": 0.9, "weekend_priority": -0.2},
		},
		{
			CandidateID:   "cand-b",
			HardOK:        true,
			Score:         0.3,
			SoftWeights:   weights,
			SoftBreakdown: map[string]float64{"credit": -0.2, "weekend_priority": 0.8},
		},
		{
			CandidateID: "cand-dropped",
			HardOK:      false,
			SoftWeights: weights,
		},
	}
}

func TestRetuneEmptyDeltasIsIdentity(t *testing.T) {
	out := Retune(retuneFixture(), nil, "DEN", nil)
	if len(out) != 2 {
		t.Fatalf("retune kept %d candidates, want 2 (hard-failed dropped)", len(out))
	}
	if out[0].CandidateID != "cand-a" || out[1].CandidateID != "cand-b" {
		t.Errorf("order changed without deltas: %s, %s", out[0].CandidateID, out[1].CandidateID)
	}
	if math.Abs(out[0].Score-0.35) > 1e-9 {
		t.Errorf("score changed without deltas: %v", out[0].Score)
	}
}

func TestRetuneReordersCandidates(t *testing.T) {
	out := Retune(retuneFixture(), map[string]float64{"weekend_priority": 1.0}, "DEN", nil)
	if len(out) != 2 {
		t.Fatal("unexpected candidate count")
	}
	if out[0].CandidateID != "cand-b" {
		t.Errorf("boosting weekend_priority should promote cand-b, got %s", out[0].CandidateID)
	}
}
