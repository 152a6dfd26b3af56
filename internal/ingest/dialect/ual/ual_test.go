package ual

import (
	"errors"
	"testing"

	"vectorbid/internal/ingest/dialect"
)

func TestParsePairingsBlocks(t *testing.T) {
	text := "garbage header line\n" +
		"PAIRING C4410 EQP 756\n" +
		"DATES 2025-09-08 2025-09-09\n" +
		"CREDIT 12:00 BLOCK 10:30\n" +
		"RPT 0630 RLS 1945\n" +
		"ROUTE DEN-IAH-DEN\n" +
		"LAYOVER IAH 11:15\n" +
		"END\n"

	p := &Parser{}
	pairings, err := p.ParsePairings(text)
	if err != nil {
		t.Fatalf("ParsePairings: %v", err)
	}
	if len(pairings) != 1 {
		t.Fatalf("pairings = %d, want 1", len(pairings))
	}
	pr := pairings[0]
	if pr.PairingID != "C4410" || pr.Equipment != "756" {
		t.Errorf("header = %s/%s", pr.PairingID, pr.Equipment)
	}
	if pr.CreditMinutes != 720 || pr.BlockMinutes != 630 {
		t.Errorf("credit/block = %d/%d", pr.CreditMinutes, pr.BlockMinutes)
	}
	if len(pr.DutyPeriods) != 2 {
		t.Fatalf("duty periods = %d, want 2", len(pr.DutyPeriods))
	}
	dp := pr.DutyPeriods[0]
	if dp.Report.Hour() != 6 || dp.Report.Minute() != 30 {
		t.Errorf("report = %v", dp.Report)
	}
	if dp.DutyMinutes != 795 {
		t.Errorf("duty minutes = %d, want 795", dp.DutyMinutes)
	}
	// 1945 release to 0630 next-day report.
	if pr.DutyPeriods[1].RestBeforeMinutes != 645 {
		t.Errorf("rest = %d, want 645", pr.DutyPeriods[1].RestBeforeMinutes)
	}
	if len(pr.Layovers) != 1 || pr.Layovers[0].Minutes != 675 {
		t.Errorf("layovers = %+v", pr.Layovers)
	}
}

func TestParsePairingsReleaseRollsOver(t *testing.T) {
	text := "PAIRING C7001\n" +
		"DATES 2025-09-12\n" +
		"CREDIT 06:00 BLOCK 05:10\n" +
		"RPT 2200 RLS 0405\n" +
		"END\n"

	pairings, err := (&Parser{}).ParsePairings(text)
	if err != nil {
		t.Fatal(err)
	}
	dp := pairings[0].DutyPeriods[0]
	if !dp.Release.After(dp.Report) {
		t.Error("release must roll to the next day")
	}
	if dp.DutyMinutes != 365 {
		t.Errorf("duty minutes = %d, want 365", dp.DutyMinutes)
	}
}

func TestParsePairingsErrors(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		start, end int
	}{
		{
			"missing END",
			"PAIRING C1000\nDATES 2025-09-01\nCREDIT 05:00 BLOCK 04:00\n",
			1, 4,
		},
		{
			"missing CREDIT",
			"noise\nPAIRING C1000\nDATES 2025-09-01\nEND\n",
			2, 4,
		},
		{
			"no blocks",
			"nothing pairing shaped here\n",
			1, 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Parser{}).ParsePairings(tt.text)
			var be *dialect.BlockError
			if !errors.As(err, &be) {
				t.Fatalf("err = %v, want *dialect.BlockError", err)
			}
			if be.StartLine != tt.start || be.EndLine != tt.end {
				t.Errorf("lines = %d-%d, want %d-%d", be.StartLine, be.EndLine, tt.start, tt.end)
			}
		})
	}
}
