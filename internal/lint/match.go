package lint

import (
	"strconv"

	"vectorbid/internal/bid"
)

// fieldValues extracts the comparable values a filter type sees on a
// pairing. Multi-valued fields (airports, dates) match when any value
// satisfies the filter. ok=false means the field is unknown for this
// pairing and the filter cannot match.
func fieldValues(p *bid.Pairing, typ string) ([]string, bool) {
	switch typ {
	case bid.FilterPairingID:
		return []string{p.PairingID}, true
	case bid.FilterDays:
		return []string{strconv.Itoa(p.Days)}, true
	case bid.FilterCreditMinutes:
		return []string{strconv.Itoa(p.CreditMinutes)}, true
	case bid.FilterBlockMinutes:
		return []string{strconv.Itoa(p.BlockMinutes)}, true
	case bid.FilterReportHour:
		h, ok := p.ReportHour()
		if !ok {
			return nil, false
		}
		return []string{strconv.Itoa(h)}, true
	case bid.FilterReleaseHour:
		h, ok := p.ReleaseHour()
		if !ok {
			return nil, false
		}
		return []string{strconv.Itoa(h)}, true
	case bid.FilterDestAirport:
		if len(p.Routing) < 2 {
			return nil, false
		}
		return p.Routing[1:], true
	case bid.FilterLayoverAirport:
		if len(p.Layovers) == 0 {
			return nil, false
		}
		out := make([]string, len(p.Layovers))
		for i, l := range p.Layovers {
			out[i] = l.Airport
		}
		return out, true
	case bid.FilterEquipment:
		return []string{p.Equipment}, true
	case bid.FilterIncludesWeekend:
		return []string{strconv.FormatBool(p.IncludesWeekend)}, true
	case bid.FilterHasRedEye:
		return []string{strconv.FormatBool(p.HasRedEye)}, true
	case bid.FilterDate:
		return p.Dates, true
	default:
		return nil, false
	}
}

// matchFilter reports whether a pairing satisfies one filter.
func matchFilter(p *bid.Pairing, f bid.Filter) bool {
	values, ok := fieldValues(p, f.Type)
	if !ok {
		return false
	}
	for _, v := range values {
		if matchValue(v, f) {
			return true
		}
	}
	return false
}

func matchValue(v string, f bid.Filter) bool {
	switch f.Op {
	case bid.OpEq:
		return len(f.Values) == 1 && compareEq(v, f.Values[0])
	case bid.OpNe:
		return len(f.Values) == 1 && !compareEq(v, f.Values[0])
	case bid.OpIn:
		for _, fv := range f.Values {
			if compareEq(v, fv) {
				return true
			}
		}
		return false
	case bid.OpNotIn:
		for _, fv := range f.Values {
			if compareEq(v, fv) {
				return false
			}
		}
		return true
	case bid.OpLt, bid.OpLe, bid.OpGt, bid.OpGe:
		if len(f.Values) != 1 {
			return false
		}
		return compareOrd(v, f.Op, f.Values[0])
	case bid.OpBetween:
		if len(f.Values) != 2 {
			return false
		}
		return compareOrd(v, bid.OpGe, f.Values[0]) && compareOrd(v, bid.OpLe, f.Values[1])
	default:
		return false
	}
}

// compareEq compares numerically when both sides parse, else as strings.
func compareEq(a, b string) bool {
	na, erra := strconv.ParseFloat(a, 64)
	nb, errb := strconv.ParseFloat(b, 64)
	if erra == nil && errb == nil {
		return na == nb
	}
	return a == b
}

func compareOrd(a, op, b string) bool {
	na, erra := strconv.ParseFloat(a, 64)
	nb, errb := strconv.ParseFloat(b, 64)
	var lt, eq bool
	if erra == nil && errb == nil {
		lt, eq = na < nb, na == nb
	} else {
		lt, eq = a < b, a == b
	}
	switch op {
	case bid.OpLt:
		return lt
	case bid.OpLe:
		return lt || eq
	case bid.OpGt:
		return !lt && !eq
	case bid.OpGe:
		return !lt
	}
	return false
}

// matchLayer reports whether a pairing satisfies every filter in the
// layer.
func matchLayer(p *bid.Pairing, l *bid.Layer) bool {
	for _, f := range l.Filters {
		if !matchFilter(p, f) {
			return false
		}
	}
	return true
}
