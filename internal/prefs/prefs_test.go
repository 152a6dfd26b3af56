package prefs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vectorbid/internal/bid"
	"vectorbid/internal/llm"
)

func testCtx() *bid.ContextSnapshot {
	return &bid.ContextSnapshot{
		CtxID:   "ctx-1",
		PilotID: "P100",
		Airline: "UAL",
		Month:   "2025-09",
		Base:    "DEN",
		Seat:    bid.SeatFO,
	}
}

func TestRuleBasedPhrases(t *testing.T) {
	p := NewParser(nil, nil)
	tests := []struct {
		name      string
		text      string
		wantPref  string
		direction string
	}{
		{"weekends", "I want weekends off this month", "weekend_priority", bid.DirectionPrefer},
		{"credit", "maximize credit, I need the money", "credit", bid.DirectionPrefer},
		{"commuter", "I commute from PHX", "commutable_report", bid.DirectionPrefer},
		{"international", "give me international flying", "international", bid.DirectionPrefer},
		{"mornings", "morning departures only please", "morning_departures", bid.DirectionPrefer},
		{"short trips", "short trips, day trips if possible", "pairing_length", bid.DirectionAvoid},
		{"layovers", "long layovers in nice cities", "layovers", bid.DirectionPrefer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := p.Parse(context.Background(), tt.text, testCtx())
			pref, ok := s.SoftPrefs[tt.wantPref]
			if !ok {
				t.Fatalf("missing soft pref %s in %v", tt.wantPref, s.SoftPrefs)
			}
			if pref.Direction != tt.direction {
				t.Errorf("direction = %s, want %s", pref.Direction, tt.direction)
			}
			if s.Method() != bid.MethodRuleBased {
				t.Errorf("method = %s, want rule_based", s.Method())
			}
		})
	}
}

func TestWeekendsOffExpandsDates(t *testing.T) {
	p := NewParser(nil, nil)
	s := p.Parse(context.Background(), "weekends off", testCtx())

	// September 2025: Saturdays 6,13,20,27; Sundays 7,14,21,28.
	want := []string{
		"2025-09-06", "2025-09-07", "2025-09-13", "2025-09-14",
		"2025-09-20", "2025-09-21", "2025-09-27", "2025-09-28",
	}
	got := make(map[string]bool, len(s.HardConstraints.DaysOff))
	for _, d := range s.HardConstraints.DaysOff {
		got[d] = true
	}
	for _, d := range want {
		if !got[d] {
			t.Errorf("days_off missing weekend date %s", d)
		}
	}
}

func TestNoRedEyesAndSpecificDates(t *testing.T) {
	p := NewParser(nil, nil)
	s := p.Parse(context.Background(),
		"No red-eyes. I need off 2025-09-12 and 2025-09-13 for a wedding.", testCtx())

	if !s.HardConstraints.NoRedEyes {
		t.Error("no_red_eyes should be set")
	}
	joined := strings.Join(s.HardConstraints.DaysOff, ",")
	if !strings.Contains(joined, "2025-09-12") || !strings.Contains(joined, "2025-09-13") {
		t.Errorf("days_off = %v", s.HardConstraints.DaysOff)
	}
}

func TestReportAfterTarget(t *testing.T) {
	p := NewParser(nil, nil)
	s := p.Parse(context.Background(), "I commute, no reports before 11:00 please", testCtx())

	pref, ok := s.SoftPrefs["commutable_report"]
	if !ok {
		t.Fatal("missing commutable_report pref")
	}
	if pref.Target != "11:00" {
		t.Errorf("target = %q, want 11:00", pref.Target)
	}
}

func TestConfidenceCap(t *testing.T) {
	p := NewParser(nil, nil)
	s := p.Parse(context.Background(),
		"weekends off, no red-eyes, morning departures, international, I commute, max credit, short trips, long layovers",
		testCtx())
	if s.Confidence != 0.6 {
		t.Errorf("confidence = %v, want capped at 0.6", s.Confidence)
	}

	s = p.Parse(context.Background(), "nothing matches here at all", testCtx())
	if s.Confidence != 0.3 {
		t.Errorf("zero-match confidence = %v, want 0.3", s.Confidence)
	}
}

func llmServer(t *testing.T, reply any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, _ := json.Marshal(reply)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": string(content)}},
			},
		})
	}))
}

func TestLLMMergeRecognizedKeysOnly(t *testing.T) {
	srv := llmServer(t, map[string]any{
		"hard_constraints": map[string]any{"no_red_eyes": true},
		"soft_prefs": map[string]any{
			"credit":        map[string]any{"direction": "prefer", "weight": 0.95},
			"made_up_knob":  map[string]any{"direction": "prefer", "weight": 1.0},
			"another_fancy": map[string]any{"direction": "avoid", "weight": 0.5},
		},
		"confidence": 0.88,
	})
	defer srv.Close()

	cfg := llm.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.PrimaryModel = "alpha"
	p := NewParser(llm.NewAdapter(cfg, nil), nil)

	s := p.Parse(context.Background(), "lots of credit please", testCtx())
	if s.Method() != bid.MethodLLM {
		t.Errorf("method = %s, want llm", s.Method())
	}
	if s.Confidence != 0.88 {
		t.Errorf("confidence = %v, want 0.88", s.Confidence)
	}
	if pref := s.SoftPrefs["credit"]; pref.Weight != 0.95 {
		t.Errorf("credit weight = %v, want llm override 0.95", pref.Weight)
	}
	if _, ok := s.SoftPrefs["made_up_knob"]; ok {
		t.Error("unknown soft-pref names must not enter the schema")
	}
	if got := s.Source["unrecognized"]; got != "another_fancy,made_up_knob" {
		t.Errorf("unrecognized = %q", got)
	}
	if !s.HardConstraints.NoRedEyes {
		t.Error("llm hard constraint should merge")
	}
}

func TestLLMDownFallsBackToRuleBased(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := llm.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.PrimaryModel = "alpha"
	p := NewParser(llm.NewAdapter(cfg, nil), nil)

	s := p.Parse(context.Background(), "weekends off", testCtx())
	if s.Method() != bid.MethodRuleBased {
		t.Errorf("method = %s, want rule_based", s.Method())
	}
	if _, ok := s.SoftPrefs["weekend_priority"]; !ok {
		t.Error("rule-based baseline should survive llm failure")
	}
}

func TestLLMGarbageReplyKeepsBaseline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "sorry, I cannot help with that"}},
			},
		})
	}))
	defer srv.Close()

	cfg := llm.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.PrimaryModel = "alpha"
	p := NewParser(llm.NewAdapter(cfg, nil), nil)

	s := p.Parse(context.Background(), "weekends off", testCtx())
	if s.Method() != bid.MethodRuleBased {
		t.Errorf("method = %s, want rule_based on unusable reply", s.Method())
	}
}
