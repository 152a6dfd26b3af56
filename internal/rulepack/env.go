package rulepack

import (
	"sort"

	"vectorbid/internal/bid"
	"vectorbid/internal/expr"
)

// EvalInput bundles everything an evaluation binds into namespaces.
// Stats is optional; absent keys evaluate as undefined with a note.
type EvalInput struct {
	Ctx      *bid.ContextSnapshot
	Pairings []bid.Pairing
	Stats    map[string]float64
}

// NewEnv builds a fully populated evaluation environment for one
// candidate. The pairing namespace is left empty; per-pairing rules bind
// it via bindPairing before each evaluation.
func (p *RulePack) NewEnv(in EvalInput) *expr.Env {
	ns := map[string]map[string]expr.Value{
		expr.NSContext:   contextNS(in.Ctx),
		expr.NSCandidate: candidateNS(in.Ctx, in.Pairings),
		expr.NSPairing:   {},
		expr.NSFar117: {
			"max_duty_minutes":        expr.Num(FAR117MaxDutyMinutes),
			"min_rest_minutes":        expr.Num(FAR117MinRestMinutes),
			"max_flight_minutes_672h": expr.Num(FAR117MaxFlightMinutes672h),
		},
		expr.NSContract: numberNS(p.Constants),
		expr.NSStats:    numberNS(in.Stats),
	}
	return expr.NewEnv(ns)
}

func numberNS(m map[string]float64) map[string]expr.Value {
	ns := make(map[string]expr.Value, len(m))
	for k, v := range m {
		ns[k] = expr.Num(v)
	}
	return ns
}

func contextNS(ctx *bid.ContextSnapshot) map[string]expr.Value {
	ns := map[string]expr.Value{}
	if ctx == nil {
		return ns
	}
	ns["airline"] = expr.Str(ctx.Airline)
	ns["base"] = expr.Str(ctx.Base)
	ns["fleet"] = expr.Str(ctx.Fleet)
	ns["seat"] = expr.Str(ctx.Seat)
	ns["month"] = expr.Str(ctx.Month)
	ns["seniority_percentile"] = expr.Num(ctx.SeniorityPercentile)
	if home := ctx.CommutingProfile["home"]; home != "" {
		ns["commuting_home"] = expr.Str(home)
	}
	return ns
}

// candidateNS computes the aggregate view of the candidate's pairings.
// Aggregates that need data the ingested package lacks (duty periods,
// layovers) are left unbound so guarded expressions can detect them.
func candidateNS(ctx *bid.ContextSnapshot, pairings []bid.Pairing) map[string]expr.Value {
	ns := map[string]expr.Value{}
	ns["count"] = expr.Num(float64(len(pairings)))

	var creditMin, blockMin, days int
	var weekend, redeyes, international int
	var layoverSum, layoverN int
	minRest, maxDuty := -1, -1
	earliestReport, latestRelease := -1, -1
	ids := make([]string, 0, len(pairings))
	dates := map[string]bool{}

	for i := range pairings {
		pr := &pairings[i]
		ids = append(ids, pr.PairingID)
		creditMin += pr.CreditMinutes
		blockMin += pr.BlockMinutes
		days += pr.Days
		if pr.IncludesWeekend {
			weekend++
		}
		if pr.HasRedEye {
			redeyes++
		}
		if pr.International() {
			international++
		}
		for _, d := range pr.Dates {
			dates[d] = true
		}
		for _, lo := range pr.Layovers {
			layoverSum += lo.Minutes
			layoverN++
		}
		if h, ok := pr.ReportHour(); ok {
			if earliestReport < 0 || h < earliestReport {
				earliestReport = h
			}
		}
		if h, ok := pr.ReleaseHour(); ok {
			if latestRelease < 0 || h > latestRelease {
				latestRelease = h
			}
		}
		if m, ok := pr.MinRestMinutes(); ok {
			if minRest < 0 || m < minRest {
				minRest = m
			}
		}
		if m, ok := pr.MaxDutyMinutes(); ok {
			if m > maxDuty {
				maxDuty = m
			}
		}
	}

	ns["credit_minutes"] = expr.Num(float64(creditMin))
	ns["block_minutes"] = expr.Num(float64(blockMin))
	ns["days"] = expr.Num(float64(days))
	ns["weekend_pairings"] = expr.Num(float64(weekend))
	ns["red_eyes"] = expr.Num(float64(redeyes))
	ns["international_pairings"] = expr.Num(float64(international))
	ns["pairing_ids"] = expr.Strings(ids)
	ns["dates"] = expr.Strings(sortedKeys(dates))

	if ctx != nil {
		if dim, err := bid.DaysInMonth(ctx.Month); err == nil {
			ns["days_off"] = expr.Num(float64(dim - len(dates)))
		}
	}
	if layoverN > 0 {
		ns["avg_layover_minutes"] = expr.Num(float64(layoverSum) / float64(layoverN))
	}
	if minRest >= 0 {
		ns["min_rest_minutes"] = expr.Num(float64(minRest))
	}
	if maxDuty >= 0 {
		ns["max_duty_minutes"] = expr.Num(float64(maxDuty))
	}
	if earliestReport >= 0 {
		ns["earliest_report_hour"] = expr.Num(float64(earliestReport))
	}
	if latestRelease >= 0 {
		ns["latest_release_hour"] = expr.Num(float64(latestRelease))
	}
	return ns
}

// BindPairing overlays one pairing onto the environment's pairing
// namespace. The evaluator does this before each per-pairing rule;
// rulecheck uses it to probe expressions against fixture pairings.
func BindPairing(env *expr.Env, pr *bid.Pairing) {
	bindPairing(env, pr)
}

// bindPairing swaps one pairing into the pairing namespace. Fields the
// source data lacks stay unbound.
func bindPairing(env *expr.Env, pr *bid.Pairing) {
	legs := 0
	if n := len(pr.Routing); n > 1 {
		legs = n - 1
	}
	ns := map[string]expr.Value{
		"id":               expr.Str(pr.PairingID),
		"days":             expr.Num(float64(pr.Days)),
		"credit_minutes":   expr.Num(float64(pr.CreditMinutes)),
		"block_minutes":    expr.Num(float64(pr.BlockMinutes)),
		"legs":             expr.Num(float64(legs)),
		"has_red_eye":      expr.Bool(pr.HasRedEye),
		"includes_weekend": expr.Bool(pr.IncludesWeekend),
		"international":    expr.Bool(pr.International()),
		"equipment":        expr.Str(pr.Equipment),
		"routing":          expr.Strings(pr.Routing),
		"dates":            expr.Strings(pr.Dates),
		"layover_minutes":  expr.Num(float64(pr.LayoverMinutes())),
	}
	layovers := make([]string, 0, len(pr.Layovers))
	for _, lo := range pr.Layovers {
		layovers = append(layovers, lo.Airport)
	}
	ns["layover_airports"] = expr.Strings(layovers)
	if len(pr.Dates) > 0 {
		ns["first_date"] = expr.Str(pr.Dates[0])
		ns["last_date"] = expr.Str(pr.Dates[len(pr.Dates)-1])
	}
	if h, ok := pr.ReportHour(); ok {
		ns["report_hour"] = expr.Num(float64(h))
	}
	if h, ok := pr.ReleaseHour(); ok {
		ns["release_hour"] = expr.Num(float64(h))
	}
	if m, ok := pr.MinRestMinutes(); ok {
		ns["min_rest_minutes"] = expr.Num(float64(m))
	}
	if m, ok := pr.MaxDutyMinutes(); ok {
		ns["max_duty_minutes"] = expr.Num(float64(m))
	}
	env.NS[expr.NSPairing] = ns
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
