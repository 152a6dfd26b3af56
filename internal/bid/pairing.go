package bid

// Derived pairing attributes used by the rule evaluator, the optimizer,
// and the analytics pass. All of these are cheap recomputations; nothing
// here mutates the pairing.

// ReportHour returns the UTC hour of the first duty-period report.
// ok is false when the pairing has no duty periods.
func (p *Pairing) ReportHour() (int, bool) {
	if len(p.DutyPeriods) == 0 {
		return 0, false
	}
	return p.DutyPeriods[0].Report.Hour(), true
}

// ReleaseHour returns the UTC hour of the last duty-period release.
func (p *Pairing) ReleaseHour() (int, bool) {
	if len(p.DutyPeriods) == 0 {
		return 0, false
	}
	return p.DutyPeriods[len(p.DutyPeriods)-1].Release.Hour(), true
}

// MaxDutyMinutes returns the longest duty period in the pairing.
func (p *Pairing) MaxDutyMinutes() (int, bool) {
	if len(p.DutyPeriods) == 0 {
		return 0, false
	}
	max := 0
	for _, dp := range p.DutyPeriods {
		if dp.DutyMinutes > max {
			max = dp.DutyMinutes
		}
	}
	return max, true
}

// MinRestMinutes returns the shortest rest between consecutive duty
// periods. ok is false for single-period pairings, which have no
// intra-pairing rest to measure.
func (p *Pairing) MinRestMinutes() (int, bool) {
	if len(p.DutyPeriods) < 2 {
		return 0, false
	}
	min := -1
	for _, dp := range p.DutyPeriods[1:] {
		if min == -1 || dp.RestBeforeMinutes < min {
			min = dp.RestBeforeMinutes
		}
	}
	return min, true
}

// LayoverMinutes returns the total layover time in the pairing.
func (p *Pairing) LayoverMinutes() int {
	total := 0
	for _, l := range p.Layovers {
		total += l.Minutes
	}
	return total
}

// DateSet returns the set of ISO dates the pairing touches.
func (p *Pairing) DateSet() map[string]bool {
	set := make(map[string]bool, len(p.Dates))
	for _, d := range p.Dates {
		set[d] = true
	}
	return set
}

// TouchesAny reports whether the pairing touches any date in the set.
func (p *Pairing) TouchesAny(dates map[string]bool) bool {
	for _, d := range p.Dates {
		if dates[d] {
			return true
		}
	}
	return false
}

// DatesOverlap reports whether two pairings share at least one date.
func (p *Pairing) DatesOverlap(other *Pairing) bool {
	a, b := p.Dates, other.Dates
	if len(b) < len(a) {
		a, b = b, a
	}
	set := make(map[string]bool, len(a))
	for _, d := range a {
		set[d] = true
	}
	for _, d := range b {
		if set[d] {
			return true
		}
	}
	return false
}
