// Package strategy turns ranked candidate schedules into ordered PBS
// bid layers: specific high-value layers first, relaxations after,
// broad exclusions last. Filter sets are canonicalized and each layer
// carries an award-probability estimate.
package strategy

import (
	"fmt"
	"sort"
	"strconv"

	"vectorbid/internal/bid"
	"vectorbid/internal/enrich"
)

// Input names everything layer generation reads.
type Input struct {
	Bundle     *enrich.FeatureBundle
	Candidates []bid.CandidateSchedule
	// LayerRates optionally carries historical award rates per layer
	// position; absent positions fall back to the seniority prior.
	LayerRates map[int]float64
}

// GenerateLayers builds the bid-layer artifact from the ranked
// candidates. Deterministic for fixed input.
func GenerateLayers(in Input) bid.BidLayerArtifact {
	b := in.Bundle
	art := bid.BidLayerArtifact{
		Airline: b.Ctx.Airline,
		Month:   b.Ctx.Month,
		Format:  bid.FormatPBS2,
	}

	var layers []bid.Layer
	if len(in.Candidates) > 0 {
		layers = append(layers, preferredLayers(in)...)
	}
	layers = append(layers, exclusionLayers(b)...)

	if max := b.Pack.Meta.MaxLayers; max > 0 && len(layers) > max {
		layers = layers[:max]
	}

	rates := awardProbabilities(len(layers), b.Ctx.SeniorityPercentile, in.LayerRates)
	for i := range layers {
		layers[i].N = i + 1
		layers[i].Filters = Canonicalize(layers[i].Filters)
		layers[i].AwardProbability = rates[i]
	}
	art.Layers = layers
	return art
}

// preferredLayers emits the prefer=YES ladder in descending specificity:
// the top candidate, then the top half's union, then a broad attribute
// relaxation covering every candidate.
func preferredLayers(in Input) []bid.Layer {
	cands := in.Candidates

	var layers []bid.Layer
	topIDs := uniqueSorted(cands[0].Pairings)
	layers = append(layers, bid.Layer{
		Prefer:    bid.PreferYes,
		Filters:   idFilters(topIDs),
		Rationale: "top-ranked schedule",
	})

	half := (len(cands) + 1) / 2
	if half > 1 {
		var union []string
		for _, c := range cands[:half] {
			union = append(union, c.Pairings...)
		}
		union = uniqueSorted(union)
		if len(union) > len(topIDs) {
			layers = append(layers, bid.Layer{
				Prefer:    bid.PreferYes,
				Filters:   idFilters(union),
				Rationale: fmt.Sprintf("union of top %d schedules", half),
			})
		}
	}

	if relaxed := relaxationLayer(in); relaxed != nil {
		layers = append(layers, *relaxed)
	}
	return layers
}

// relaxationLayer describes every candidate's pairings by shared
// attributes instead of ids.
func relaxationLayer(in Input) *bid.Layer {
	pkg := in.Bundle.Package
	seen := make(map[int]bool)
	var pairings []*bid.Pairing
	for _, c := range in.Candidates {
		for _, idx := range c.PairingIndexes {
			if idx < 0 || idx >= len(pkg.Pairings) || seen[idx] {
				continue
			}
			seen[idx] = true
			pairings = append(pairings, &pkg.Pairings[idx])
		}
	}
	if len(pairings) == 0 {
		return nil
	}

	minCredit, maxCredit := pairings[0].CreditMinutes, pairings[0].CreditMinutes
	minDays, maxDays := pairings[0].Days, pairings[0].Days
	for _, p := range pairings[1:] {
		if p.CreditMinutes < minCredit {
			minCredit = p.CreditMinutes
		}
		if p.CreditMinutes > maxCredit {
			maxCredit = p.CreditMinutes
		}
		if p.Days < minDays {
			minDays = p.Days
		}
		if p.Days > maxDays {
			maxDays = p.Days
		}
	}

	filters := []bid.Filter{
		{Type: bid.FilterCreditMinutes, Op: bid.OpBetween,
			Values: []string{strconv.Itoa(minCredit), strconv.Itoa(maxCredit)}},
		{Type: bid.FilterDays, Op: bid.OpBetween,
			Values: []string{strconv.Itoa(minDays), strconv.Itoa(maxDays)}},
	}

	prefs := in.Bundle.Prefs
	if prefs.HardConstraints.NoRedEyes {
		filters = append(filters, bid.Filter{
			Type: bid.FilterHasRedEye, Op: bid.OpEq, Values: []string{"false"}})
	}
	if p, ok := prefs.SoftPrefs["weekend_priority"]; ok && p.Direction == bid.DirectionPrefer {
		filters = append(filters, bid.Filter{
			Type: bid.FilterIncludesWeekend, Op: bid.OpEq, Values: []string{"false"}})
	}
	if p, ok := prefs.SoftPrefs["commutable_report"]; ok && p.Target != "" {
		if h := hourOf(p.Target); h >= 0 {
			filters = append(filters, bid.Filter{
				Type: bid.FilterReportHour, Op: bid.OpGe, Values: []string{strconv.Itoa(h)}})
		}
	}

	return &bid.Layer{
		Prefer:    bid.PreferYes,
		Filters:   filters,
		Rationale: "attribute relaxation over all ranked schedules",
	}
}

// exclusionLayers emits trailing prefer=NO layers when the preferences
// demand hard avoidance.
func exclusionLayers(b *enrich.FeatureBundle) []bid.Layer {
	var layers []bid.Layer
	prefs := b.Prefs

	if prefs.HardConstraints.NoRedEyes {
		layers = append(layers, bid.Layer{
			Prefer: bid.PreferNo,
			Filters: []bid.Filter{
				{Type: bid.FilterHasRedEye, Op: bid.OpEq, Values: []string{"true"}},
			},
			Rationale: "red-eye flying excluded",
		})
	}
	if p, ok := prefs.SoftPrefs["weekend_priority"]; ok && p.Direction == bid.DirectionPrefer && p.Weight >= 0.8 {
		layers = append(layers, bid.Layer{
			Prefer: bid.PreferNo,
			Filters: []bid.Filter{
				{Type: bid.FilterIncludesWeekend, Op: bid.OpEq, Values: []string{"true"}},
			},
			Rationale: "weekend-touching trips excluded",
		})
	}
	return layers
}

// awardProbabilities computes per-layer award probabilities. Historical
// rates win where available; the seniority prior fills the rest. The
// sequence never decreases down the list.
func awardProbabilities(n int, seniority float64, rates map[int]float64) []float64 {
	if n == 0 {
		return nil
	}
	p1 := 0.15 + 0.7*seniority
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		p := p1
		if n > 1 {
			p = p1 + (0.95-p1)*float64(i)/float64(n-1)
		}
		if r, ok := rates[i+1]; ok && r > 0 && r <= 1 {
			p = r
		}
		if i > 0 && p < out[i-1] {
			p = out[i-1]
		}
		out[i] = p
	}
	return out
}

func idFilters(ids []string) []bid.Filter {
	op := bid.OpIn
	if len(ids) == 1 {
		return []bid.Filter{{Type: bid.FilterPairingID, Op: bid.OpEq, Values: ids}}
	}
	return []bid.Filter{{Type: bid.FilterPairingID, Op: op, Values: ids}}
}

func hourOf(target string) int {
	var h, m int
	if _, err := fmt.Sscanf(target, "%d:%d", &h, &m); err == nil && h >= 0 && h <= 23 {
		return h
	}
	if v, err := strconv.Atoi(target); err == nil && v >= 0 && v <= 23 {
		return v
	}
	return -1
}

// Directives proposes weight adjustments and layer templates for a
// follow-up optimize round.
func Directives(in Input) bid.StrategyDirectives {
	d := bid.StrategyDirectives{
		WeightDeltas: map[string]float64{},
		FocusHints:   map[string][]string{},
	}
	prefs := in.Bundle.Prefs

	// Nudge weights toward the strongest stated preferences.
	names := make([]string, 0, len(prefs.SoftPrefs))
	for name := range prefs.SoftPrefs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := prefs.SoftPrefs[name]
		if p.Weight >= 0.8 {
			d.WeightDeltas[name] = 0.1
		}
	}

	// Surface the layover airports the ranked schedules visit.
	if pkg := in.Bundle.Package; pkg != nil {
		var airports []string
		for _, c := range in.Candidates {
			for _, idx := range c.PairingIndexes {
				if idx < 0 || idx >= len(pkg.Pairings) {
					continue
				}
				for _, l := range pkg.Pairings[idx].Layovers {
					airports = append(airports, l.Airport)
				}
			}
		}
		if len(airports) > 0 {
			d.FocusHints["layover_airports"] = uniqueSorted(airports)
		}
	}

	art := GenerateLayers(in)
	if len(art.Layers) > 2 {
		d.LayerTemplates = art.Layers[:2]
	} else {
		d.LayerTemplates = art.Layers
	}
	d.Rationale = []string{fmt.Sprintf("derived from %d ranked schedules", len(in.Candidates))}
	return d
}
