package optimizer

import (
	"vectorbid/internal/bid"
	"vectorbid/internal/rulepack"
)

// personaMultipliers scale soft-rule weights per bidding persona.
// Unknown personas and unlisted rule names pass through unchanged.
var personaMultipliers = map[string]map[string]float64{
	"family_first": {
		"weekend_priority": 1.8,
		"days_off":         1.5,
		"layovers":         1.2,
		"pairing_length":   1.1,
		"credit":           0.6,
	},
	"money_maker": {
		"credit":           1.9,
		"international":    1.4,
		"pairing_length":   1.2,
		"weekend_priority": 0.5,
		"days_off":         0.6,
	},
	"commuter": {
		"commutable_report":  1.9,
		"layovers":           1.3,
		"morning_departures": 0.7,
		"weekend_priority":   0.8,
		"credit":             0.9,
	},
}

// ExtractWeights resolves the final soft-rule weights: pack base weights,
// overridden by explicit preference weights, scaled by the persona
// multipliers, normalized to sum 1.
func ExtractWeights(pack *rulepack.RulePack, prefs *bid.PreferenceSchema) map[string]float64 {
	w := make(map[string]float64, len(pack.SoftRules))
	for _, r := range pack.SoftRules {
		w[r.Name] = r.Weight
	}

	if prefs != nil {
		for name, p := range prefs.SoftPrefs {
			if _, ok := w[name]; ok && p.Weight > 0 {
				w[name] = p.Weight
			}
		}
		if mult, ok := personaMultipliers[prefs.Source["persona"]]; ok {
			for name, m := range mult {
				if _, ok := w[name]; ok {
					w[name] *= m
				}
			}
		}
	}

	normalize(w)
	return w
}

// normalize scales weights to sum 1, dropping non-positive entries.
func normalize(w map[string]float64) {
	var sum float64
	for name, v := range w {
		if v <= 0 {
			delete(w, name)
			continue
		}
		sum += v
	}
	if sum == 0 {
		return
	}
	for name := range w {
		w[name] /= sum
	}
}

// ApplyDeltas returns a copy of weights with the deltas added, negatives
// floored at zero, renormalized. An empty delta map returns an untouched
// copy.
func ApplyDeltas(weights, deltas map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for name, v := range weights {
		out[name] = v
	}
	if len(deltas) == 0 {
		return out
	}
	for name, d := range deltas {
		if _, ok := out[name]; ok {
			out[name] += d
		}
	}
	normalize(out)
	return out
}
