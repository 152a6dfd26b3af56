// Package lint checks bid-layer artifacts for self-defeating structure:
// shadowed layers, contradictions, redundant filters, airline dialect
// violations, and layers that can never match. Linting annotates; it
// never mutates the artifact.
package lint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"vectorbid/internal/bid"
	"vectorbid/internal/rulepack"
)

// Options carry the optional semantic inputs. With Pairings set the
// linter also checks real match sets; with Pack set it enforces the
// pack's dialect constraints.
type Options struct {
	Pairings []bid.Pairing
	Pack     *rulepack.RulePack
}

// Lint analyzes the artifact and returns the findings report.
func Lint(art *bid.BidLayerArtifact, opts Options) *bid.LintReport {
	rep := bid.NewLintReport()
	layers := art.Layers

	var matches [][]int
	if len(opts.Pairings) > 0 {
		matches = make([][]int, len(layers))
		for i := range layers {
			for j := range opts.Pairings {
				if matchLayer(&opts.Pairings[j], &layers[i]) {
					matches[i] = append(matches[i], j)
				}
			}
		}
	}

	for i := range layers {
		lintSingleLayer(rep, &layers[i], matches, i)
	}
	lintLayerPairs(rep, layers, matches)
	if opts.Pack != nil {
		lintPackMeta(rep, layers, opts.Pack)
	}
	return rep
}

func lintSingleLayer(rep *bid.LintReport, l *bid.Layer, matches [][]int, idx int) {
	for _, f := range l.Filters {
		if (f.Op == bid.OpIn || f.Op == bid.OpNotIn) && len(f.Values) == 0 {
			rep.Errors = append(rep.Errors, bid.LintFinding{
				Kind:   bid.LintEmptyLayer,
				Layers: []int{l.N},
				Detail: fmt.Sprintf("filter %s %s has an empty value list", f.Type, f.Op),
			})
		}
		if f.Op == bid.OpBetween && len(f.Values) == 2 {
			lo, err1 := strconv.ParseFloat(f.Values[0], 64)
			hi, err2 := strconv.ParseFloat(f.Values[1], 64)
			if err1 == nil && err2 == nil && lo > hi {
				rep.Errors = append(rep.Errors, bid.LintFinding{
					Kind:   bid.LintEmptyLayer,
					Layers: []int{l.N},
					Detail: fmt.Sprintf("filter %s between %s and %s is inverted", f.Type, f.Values[0], f.Values[1]),
				})
			}
		}
	}

	for i := 0; i < len(l.Filters); i++ {
		for j := i + 1; j < len(l.Filters); j++ {
			a, b := l.Filters[i], l.Filters[j]
			if contradicts(a, b) {
				rep.Errors = append(rep.Errors, bid.LintFinding{
					Kind:   bid.LintContradiction,
					Layers: []int{l.N},
					Detail: fmt.Sprintf("filters %s and %s cannot hold together", describe(a), describe(b)),
				})
				continue
			}
			if filterImplies(a, b) {
				rep.Info = append(rep.Info, bid.LintFinding{
					Kind:   bid.LintRedundantFilter,
					Layers: []int{l.N},
					Detail: fmt.Sprintf("filter %s is implied by %s", describe(b), describe(a)),
				})
			} else if filterImplies(b, a) {
				rep.Info = append(rep.Info, bid.LintFinding{
					Kind:   bid.LintRedundantFilter,
					Layers: []int{l.N},
					Detail: fmt.Sprintf("filter %s is implied by %s", describe(a), describe(b)),
				})
			}
		}
	}

	if matches != nil && len(matches[idx]) == 0 {
		rep.Errors = append(rep.Errors, bid.LintFinding{
			Kind:   bid.LintEmptyLayer,
			Layers: []int{l.N},
			Detail: "no pairing in the package matches this layer",
		})
	}
}

func lintLayerPairs(rep *bid.LintReport, layers []bid.Layer, matches [][]int) {
	for i := 0; i < len(layers); i++ {
		for j := i + 1; j < len(layers); j++ {
			earlier, later := &layers[i], &layers[j]

			if earlier.Prefer != later.Prefer {
				if sameFilterSet(earlier.Filters, later.Filters) {
					rep.Errors = append(rep.Errors, bid.LintFinding{
						Kind:   bid.LintContradiction,
						Layers: []int{earlier.N, later.N},
						Detail: "identical filter sets with opposite prefer",
					})
				}
				continue
			}

			shadowed := layerImplies(later, earlier)
			if !shadowed && matches != nil && len(matches[j]) > 0 {
				shadowed = intSubset(matches[j], matches[i])
			}
			if shadowed {
				rep.Warnings = append(rep.Warnings, bid.LintFinding{
					Kind:   bid.LintShadow,
					Layers: []int{earlier.N, later.N},
					Detail: fmt.Sprintf("layer %d can only match pairings layer %d already matches", later.N, earlier.N),
				})
			}
		}
	}
}

func lintPackMeta(rep *bid.LintReport, layers []bid.Layer, pack *rulepack.RulePack) {
	if max := pack.Meta.MaxLayers; max > 0 && len(layers) > max {
		rep.Errors = append(rep.Errors, bid.LintFinding{
			Kind:   bid.LintAirlineSpecific,
			Detail: fmt.Sprintf("%d layers exceed the %s dialect limit of %d", len(layers), pack.Airline, max),
		})
	}
	if len(pack.Meta.AllowedFilterTypes) == 0 {
		return
	}
	allowed := make(map[string]bool, len(pack.Meta.AllowedFilterTypes))
	for _, t := range pack.Meta.AllowedFilterTypes {
		allowed[t] = true
	}
	for _, l := range layers {
		for _, f := range l.Filters {
			if !allowed[f.Type] {
				rep.Warnings = append(rep.Warnings, bid.LintFinding{
					Kind:   bid.LintAirlineSpecific,
					Layers: []int{l.N},
					Detail: fmt.Sprintf("filter type %s is not in the %s dialect", f.Type, pack.Airline),
				})
			}
		}
	}
}

func sameFilterSet(a, b []bid.Filter) bool {
	if len(a) != len(b) {
		return false
	}
	ka := filterSetKey(a)
	kb := filterSetKey(b)
	return ka == kb
}

func filterSetKey(filters []bid.Filter) string {
	keys := make([]string, len(filters))
	for i, f := range filters {
		keys[i] = describe(f)
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

func describe(f bid.Filter) string {
	return fmt.Sprintf("%s %s %s", f.Type, f.Op, strings.Join(f.Values, ","))
}

// intSubset reports a ⊆ b for sorted int slices.
func intSubset(a, b []int) bool {
	set := make(map[int]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	for _, v := range a {
		if !set[v] {
			return false
		}
	}
	return true
}
