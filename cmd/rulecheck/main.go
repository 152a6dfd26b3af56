// Package main provides rulecheck, a rule-pack validation tool.
//
// rulecheck parses a rule-pack YAML with the same strict loader the
// service uses and reports whether it type-checks. With -expr it also
// evaluates one expression against a small fixture environment, which
// makes iterating on pack expressions quick:
//
//	rulecheck packs/UAL/2025-09.yaml
//	rulecheck -expr "pairing.max_duty_minutes <= far117.max_duty_minutes" packs/UAL/2025-09.yaml
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"vectorbid/internal/bid"
	"vectorbid/internal/expr"
	"vectorbid/internal/rulepack"
)

func main() {
	exprSrc := flag.String("expr", "", "evaluate one expression against a fixture environment")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rulecheck [-expr EXPR] PACK.yaml")
		os.Exit(2)
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}

	pack, err := rulepack.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: %s %s version %s\n", pack.Airline, pack.Month, pack.Version)
	fmt.Printf("  hard rules: %d\n", len(pack.HardRules))
	fmt.Printf("  soft rules: %d (%v)\n", len(pack.SoftRules), pack.SoftRuleNames())
	if len(pack.Constants) > 0 {
		fmt.Printf("  constants:  %d\n", len(pack.Constants))
	}

	if *exprSrc == "" {
		return
	}

	c, err := expr.Compile(*exprSrc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "expression: %v\n", err)
		os.Exit(1)
	}

	in := fixtureInput()
	env := pack.NewEnv(in)
	fmt.Printf("  expr:       %s\n", *exprSrc)
	if c.Uses(expr.NSPairing) {
		for i := range in.Pairings {
			pr := &in.Pairings[i]
			rulepack.BindPairing(env, pr)
			fmt.Printf("  %-10s  %s\n", pr.PairingID+":", c.Eval(env))
		}
	} else {
		fmt.Printf("  value:      %s\n", c.Eval(env))
	}
	for _, note := range env.Notes() {
		fmt.Printf("  note:       %s\n", note)
	}
}

// fixtureInput builds a representative two-pairing evaluation context so
// pack expressions have real values to chew on.
func fixtureInput() rulepack.EvalInput {
	day := func(d int, hour int) time.Time {
		return time.Date(2025, 9, d, hour, 0, 0, 0, time.UTC)
	}
	pairings := []bid.Pairing{
		{
			PairingID:     "C100",
			Days:          3,
			CreditMinutes: 1100,
			BlockMinutes:  1000,
			Routing:       []string{"DEN", "SFO", "DEN"},
			Dates:         []string{"2025-09-02", "2025-09-03", "2025-09-04"},
			DutyPeriods: []bid.DutyPeriod{
				{Report: day(2, 9), Release: day(2, 19), DutyMinutes: 600},
				{Report: day(3, 10), Release: day(3, 20), DutyMinutes: 600, RestBeforeMinutes: 840},
			},
			Layovers:  []bid.Layover{{Airport: "SFO", Minutes: 840}},
			Equipment: "73G",
		},
		{
			PairingID:       "C200",
			Days:            2,
			CreditMinutes:   900,
			BlockMinutes:    800,
			Routing:         []string{"DEN", "ORD", "DEN"},
			Dates:           []string{"2025-09-06", "2025-09-07"},
			IncludesWeekend: true,
			DutyPeriods: []bid.DutyPeriod{
				{Report: day(6, 8), Release: day(6, 18), DutyMinutes: 600},
			},
			Equipment: "73G",
		},
	}
	return rulepack.EvalInput{
		Ctx: &bid.ContextSnapshot{
			CtxID:               "fixture",
			Airline:             "UAL",
			Month:               "2025-09",
			Base:                "DEN",
			Seat:                bid.SeatFO,
			SeniorityPercentile: 0.5,
		},
		Pairings: pairings,
	}
}
