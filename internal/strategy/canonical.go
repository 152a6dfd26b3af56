package strategy

import (
	"sort"
	"strconv"
	"strings"

	"vectorbid/internal/bid"
)

// maxMembershipList is the largest value set collapsed into a single
// in/not_in filter.
const maxMembershipList = 6

// Canonicalize normalizes one layer's filter set: duplicates removed,
// equality filters on the same field collapsed into membership lists,
// overlapping between-ranges merged, and the result stably sorted by
// (type, op, values).
func Canonicalize(filters []bid.Filter) []bid.Filter {
	filters = collapseEqualities(filters)
	filters = mergeRanges(filters)
	filters = dedupe(filters)

	sort.SliceStable(filters, func(a, b int) bool {
		if filters[a].Type != filters[b].Type {
			return filters[a].Type < filters[b].Type
		}
		if filters[a].Op != filters[b].Op {
			return filters[a].Op < filters[b].Op
		}
		return strings.Join(filters[a].Values, ",") < strings.Join(filters[b].Values, ",")
	})
	return filters
}

// collapseEqualities turns multiple = filters on one field into a single
// in filter (and != into not_in) when the value list stays small.
func collapseEqualities(filters []bid.Filter) []bid.Filter {
	type key struct{ typ, op string }
	groups := make(map[key][]string)
	var order []key
	var rest []bid.Filter

	for _, f := range filters {
		switch f.Op {
		case bid.OpEq, bid.OpNe, bid.OpIn, bid.OpNotIn:
			k := key{f.Type, membershipOp(f.Op)}
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], f.Values...)
		default:
			rest = append(rest, f)
		}
	}

	out := rest
	for _, k := range order {
		values := uniqueSorted(groups[k])
		f := bid.Filter{Type: k.typ, Op: k.op, Values: values}
		if len(values) == 1 {
			// A single value stays an equality.
			if k.op == bid.OpIn {
				f.Op = bid.OpEq
			} else {
				f.Op = bid.OpNe
			}
		} else if len(values) > maxMembershipList {
			// Too broad to enumerate; keep as-is anyway, the linter
			// flags oversized lists per pack meta.
			f.Op = k.op
		}
		out = append(out, f)
	}
	return out
}

func membershipOp(op string) string {
	if op == bid.OpEq || op == bid.OpIn {
		return bid.OpIn
	}
	return bid.OpNotIn
}

// mergeRanges merges overlapping or adjacent between filters per field.
func mergeRanges(filters []bid.Filter) []bid.Filter {
	type span struct{ lo, hi float64 }
	spans := make(map[string][]span)
	var rest []bid.Filter

	for _, f := range filters {
		if f.Op != bid.OpBetween || len(f.Values) != 2 {
			rest = append(rest, f)
			continue
		}
		lo, err1 := strconv.ParseFloat(f.Values[0], 64)
		hi, err2 := strconv.ParseFloat(f.Values[1], 64)
		if err1 != nil || err2 != nil {
			rest = append(rest, f)
			continue
		}
		spans[f.Type] = append(spans[f.Type], span{lo, hi})
	}

	types := make([]string, 0, len(spans))
	for t := range spans {
		types = append(types, t)
	}
	sort.Strings(types)

	out := rest
	for _, t := range types {
		ss := spans[t]
		sort.Slice(ss, func(a, b int) bool { return ss[a].lo < ss[b].lo })
		merged := []span{ss[0]}
		for _, s := range ss[1:] {
			last := &merged[len(merged)-1]
			if s.lo <= last.hi {
				if s.hi > last.hi {
					last.hi = s.hi
				}
				continue
			}
			merged = append(merged, s)
		}
		for _, s := range merged {
			out = append(out, bid.Filter{
				Type:   t,
				Op:     bid.OpBetween,
				Values: []string{formatNum(s.lo), formatNum(s.hi)},
			})
		}
	}
	return out
}

func dedupe(filters []bid.Filter) []bid.Filter {
	seen := make(map[string]bool, len(filters))
	out := filters[:0]
	for _, f := range filters {
		k := f.Type + "\x00" + f.Op + "\x00" + strings.Join(f.Values, ",")
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
