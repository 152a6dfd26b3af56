package lint

import (
	"strconv"

	"vectorbid/internal/bid"
)

// filterImplies reports whether satisfying a guarantees satisfying b.
// Conservative: unknown combinations return false.
func filterImplies(a, b bid.Filter) bool {
	if a.Type != b.Type {
		return false
	}
	if sameFilter(a, b) {
		return true
	}

	aiv, aok := rangeOf(a)
	biv, bok := rangeOf(b)
	if aok && bok {
		return biv.contains(aiv)
	}

	// Membership containment: eq/in ⇒ eq/in with a superset value list.
	if isMembership(a.Op) && isMembership(b.Op) {
		return subset(a.Values, b.Values)
	}
	// eq/in values all inside b's numeric range.
	if isMembership(a.Op) && bok {
		for _, v := range a.Values {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil || !biv.containsPoint(n) {
				return false
			}
		}
		return true
	}
	// not_in ⇒ not_in with a subset list (excluding less).
	if a.Op == bid.OpNotIn && b.Op == bid.OpNotIn {
		return subset(b.Values, a.Values)
	}
	if a.Op == bid.OpNe && b.Op == bid.OpNe {
		return sameValues(a.Values, b.Values)
	}
	return false
}

// interval is a numeric interval with independently open or closed
// endpoints, so > and >= stay distinguishable for fractional thresholds.
type interval struct {
	lo, hi         float64
	loOpen, hiOpen bool
}

// contains reports whether other lies entirely within iv.
func (iv interval) contains(other interval) bool {
	if other.lo < iv.lo || (other.lo == iv.lo && iv.loOpen && !other.loOpen) {
		return false
	}
	if other.hi > iv.hi || (other.hi == iv.hi && iv.hiOpen && !other.hiOpen) {
		return false
	}
	return true
}

// containsPoint reports whether v lies within iv.
func (iv interval) containsPoint(v float64) bool {
	if v < iv.lo || (v == iv.lo && iv.loOpen) {
		return false
	}
	if v > iv.hi || (v == iv.hi && iv.hiOpen) {
		return false
	}
	return true
}

// disjoint reports whether the two intervals share no point.
func (iv interval) disjoint(other interval) bool {
	if iv.hi < other.lo || (iv.hi == other.lo && (iv.hiOpen || other.loOpen)) {
		return true
	}
	if other.hi < iv.lo || (other.hi == iv.lo && (other.hiOpen || iv.loOpen)) {
		return true
	}
	return false
}

// rangeOf views numeric constraint filters as an interval.
func rangeOf(f bid.Filter) (interval, bool) {
	const inf = 1e308
	switch f.Op {
	case bid.OpBetween:
		if len(f.Values) != 2 {
			return interval{}, false
		}
		l, err1 := strconv.ParseFloat(f.Values[0], 64)
		h, err2 := strconv.ParseFloat(f.Values[1], 64)
		if err1 != nil || err2 != nil {
			return interval{}, false
		}
		return interval{lo: l, hi: h}, true
	case bid.OpEq:
		if len(f.Values) != 1 {
			return interval{}, false
		}
		v, err := strconv.ParseFloat(f.Values[0], 64)
		if err != nil {
			return interval{}, false
		}
		return interval{lo: v, hi: v}, true
	case bid.OpGe, bid.OpGt:
		if len(f.Values) != 1 {
			return interval{}, false
		}
		v, err := strconv.ParseFloat(f.Values[0], 64)
		if err != nil {
			return interval{}, false
		}
		return interval{lo: v, hi: inf, loOpen: f.Op == bid.OpGt}, true
	case bid.OpLe, bid.OpLt:
		if len(f.Values) != 1 {
			return interval{}, false
		}
		v, err := strconv.ParseFloat(f.Values[0], 64)
		if err != nil {
			return interval{}, false
		}
		return interval{lo: -inf, hi: v, hiOpen: f.Op == bid.OpLt}, true
	}
	return interval{}, false
}

func isMembership(op string) bool {
	return op == bid.OpEq || op == bid.OpIn
}

func sameFilter(a, b bid.Filter) bool {
	return a.Type == b.Type && a.Op == b.Op && sameValues(a.Values, b.Values)
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func subset(a, b []string) bool {
	set := make(map[string]bool, len(b))
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

// layerImplies reports whether every pairing matching stricter also
// matches looser: each of looser's filters must be implied by one of
// stricter's.
func layerImplies(stricter, looser *bid.Layer) bool {
	for _, lf := range looser.Filters {
		implied := false
		for _, sf := range stricter.Filters {
			if filterImplies(sf, lf) {
				implied = true
				break
			}
		}
		if !implied {
			return false
		}
	}
	return true
}

// contradicts reports whether two filters on the same single-valued
// field cannot hold together.
func contradicts(a, b bid.Filter) bool {
	if a.Type != b.Type || !singleValued(a.Type) {
		return false
	}

	aiv, aok := rangeOf(a)
	biv, bok := rangeOf(b)
	if aok && bok {
		return aiv.disjoint(biv)
	}

	if isMembership(a.Op) && isMembership(b.Op) {
		return !intersects(a.Values, b.Values)
	}
	if isMembership(a.Op) && b.Op == bid.OpNotIn {
		return subset(a.Values, b.Values)
	}
	if a.Op == bid.OpNotIn && isMembership(b.Op) {
		return subset(b.Values, a.Values)
	}
	if isMembership(a.Op) && bok {
		return !anyInRange(a.Values, biv)
	}
	if aok && isMembership(b.Op) {
		return !anyInRange(b.Values, aiv)
	}
	return false
}

// singleValued filter types hold exactly one value per pairing, so two
// disjoint constraints on them can never co-hold.
func singleValued(typ string) bool {
	switch typ {
	case bid.FilterPairingID, bid.FilterDays, bid.FilterCreditMinutes,
		bid.FilterBlockMinutes, bid.FilterReportHour, bid.FilterReleaseHour,
		bid.FilterEquipment, bid.FilterIncludesWeekend, bid.FilterHasRedEye:
		return true
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func anyInRange(values []string, iv interval) bool {
	for _, v := range values {
		if n, err := strconv.ParseFloat(v, 64); err == nil && iv.containsPoint(n) {
			return true
		}
	}
	return false
}
