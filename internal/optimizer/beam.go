package optimizer

import (
	"context"
	"sort"
	"strings"

	"vectorbid/internal/bid"
)

// beamState is one partial selection. Indexes are positions into the
// sorted eligible list, strictly increasing, so every pairing set is
// generated at most once.
type beamState struct {
	idxs   []int
	credit int
}

// beamSearch enumerates complete selections: no date overlaps, total
// credit inside [minCredit, maxCredit]. It explores breadth-first with a
// bounded frontier and stops once maxComplete selections exist or the
// context is cancelled.
func beamSearch(ctx context.Context, pairings []*bid.Pairing, minCredit, maxCredit, beamWidth, maxComplete int) [][]int {
	var complete [][]int
	seen := make(map[string]bool)

	frontier := []beamState{{}}
	for len(frontier) > 0 && len(complete) < maxComplete {
		if ctx.Err() != nil {
			break
		}

		var next []beamState
		for _, st := range frontier {
			start := 0
			if n := len(st.idxs); n > 0 {
				start = st.idxs[n-1] + 1
			}
			for i := start; i < len(pairings); i++ {
				p := pairings[i]
				if st.credit+p.CreditMinutes > maxCredit {
					continue
				}
				if overlapsAny(p, st.idxs, pairings) {
					continue
				}

				child := beamState{
					idxs:   append(append([]int(nil), st.idxs...), i),
					credit: st.credit + p.CreditMinutes,
				}
				key := stateKey(child.idxs, pairings)
				if seen[key] {
					continue
				}
				seen[key] = true

				if child.credit >= minCredit {
					complete = append(complete, child.idxs)
					if len(complete) >= maxComplete {
						return complete
					}
				}
				next = append(next, child)
			}
		}

		// Keep the states closest to the credit window.
		sort.Slice(next, func(a, b int) bool {
			if next[a].credit != next[b].credit {
				return next[a].credit > next[b].credit
			}
			return stateKey(next[a].idxs, pairings) < stateKey(next[b].idxs, pairings)
		})
		if len(next) > beamWidth {
			next = next[:beamWidth]
		}
		frontier = next
	}
	return complete
}

func overlapsAny(p *bid.Pairing, idxs []int, pairings []*bid.Pairing) bool {
	for _, i := range idxs {
		if p.DatesOverlap(pairings[i]) {
			return true
		}
	}
	return false
}

// stateKey memoizes on the sorted pairing-id set.
func stateKey(idxs []int, pairings []*bid.Pairing) string {
	ids := make([]string, len(idxs))
	for i, idx := range idxs {
		ids[i] = pairings[idx].PairingID
	}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}
