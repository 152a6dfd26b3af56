// Package prefs turns natural-language bid preferences into a structured
// PreferenceSchema. A rule-based phrase corpus always produces a
// baseline; an LLM refines it when available. The parser never fails
// hard: with every model down the rule-based result ships as-is.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"vectorbid/internal/bid"
	"vectorbid/internal/llm"
)

const (
	baseConfidence     = 0.3
	perPhrase          = 0.05
	maxRuleConfidence  = 0.6
	systemPrompt       = "You convert an airline pilot's natural-language bid preferences into JSON. Respond with only a JSON object matching the schema; no prose."
	responseSchemaHint = `{"hard_constraints":{"days_off":["YYYY-MM-DD"],"no_red_eyes":false,"max_duty_hours_per_day":0},"soft_prefs":{"<name>":{"direction":"prefer|avoid","target":"","weight":0.0}},"confidence":0.0}`
)

// Parser resolves preference text through the LLM ladder with a
// rule-based floor.
type Parser struct {
	adapter *llm.Adapter
	log     *zap.Logger
}

// NewParser builds a parser. A nil adapter (or one with no models) makes
// every parse rule-based.
func NewParser(adapter *llm.Adapter, log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{adapter: adapter, log: log}
}

// Parse extracts a PreferenceSchema from free text. The returned schema
// always carries source.text, source.parser_method, and (when set on the
// context) source.persona.
func (p *Parser) Parse(ctx context.Context, text string, pilotCtx *bid.ContextSnapshot) bid.PreferenceSchema {
	s := p.ruleBased(text, pilotCtx)

	if p.adapter != nil && p.adapter.Enabled() {
		if res, err := p.adapter.Complete(ctx, systemPrompt, llmUserPrompt(text, pilotCtx)); err == nil {
			method := bid.MethodLLMFallback
			if res.Model == p.adapter.PrimaryModel() {
				method = bid.MethodLLM
			}
			if merged := p.mergeLLM(&s, res.Text); merged {
				s.Source["parser_method"] = method
				return s
			}
			p.log.Warn("llm preference reply unusable, keeping rule-based result",
				zap.String("model", res.Model))
		} else {
			p.log.Warn("llm preference parse unavailable", zap.Error(err))
		}
	}

	s.Source["parser_method"] = bid.MethodRuleBased
	return s
}

// ruleBased runs the phrase corpus and seeds the schema.
func (p *Parser) ruleBased(text string, pilotCtx *bid.ContextSnapshot) bid.PreferenceSchema {
	s := bid.PreferenceSchema{
		SoftPrefs: make(map[string]bid.SoftPref),
		Source:    map[string]string{"text": text},
	}
	if pilotCtx != nil {
		s.PilotID = pilotCtx.PilotID
		s.Airline = pilotCtx.Airline
		s.Base = pilotCtx.Base
		s.Seat = pilotCtx.Seat
		s.Equip = append([]string(nil), pilotCtx.Equip...)
		if persona := pilotCtx.CommutingProfile["persona"]; persona != "" {
			s.Source["persona"] = persona
		}
	}

	month := ""
	if pilotCtx != nil {
		month = pilotCtx.Month
	}
	matched := 0
	for _, ph := range corpus {
		m := ph.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		ph.apply(m, &s, month)
		matched++
	}

	conf := baseConfidence + perPhrase*float64(matched)
	if conf > maxRuleConfidence {
		conf = maxRuleConfidence
	}
	s.Confidence = conf
	return s
}

// llmReply is the constrained JSON shape the model is asked to produce.
type llmReply struct {
	HardConstraints struct {
		DaysOff            []string `json:"days_off"`
		NoRedEyes          bool     `json:"no_red_eyes"`
		MaxDutyHoursPerDay int      `json:"max_duty_hours_per_day"`
	} `json:"hard_constraints"`
	SoftPrefs  map[string]bid.SoftPref `json:"soft_prefs"`
	Confidence float64                 `json:"confidence"`
}

// mergeLLM overlays the model's reply on the rule-based baseline.
// Recognized soft-pref names override; unknown names are dropped and
// recorded under source.unrecognized. Returns false when the reply is
// not usable JSON.
func (p *Parser) mergeLLM(s *bid.PreferenceSchema, reply string) bool {
	var r llmReply
	if err := json.Unmarshal([]byte(extractJSON(reply)), &r); err != nil {
		return false
	}

	addDaysOff(s, r.HardConstraints.DaysOff...)
	if r.HardConstraints.NoRedEyes {
		s.HardConstraints.NoRedEyes = true
	}
	if r.HardConstraints.MaxDutyHoursPerDay > 0 {
		s.HardConstraints.MaxDutyHoursPerDay = r.HardConstraints.MaxDutyHoursPerDay
	}

	var unrecognized []string
	for name, pref := range r.SoftPrefs {
		if !bid.ReservedSoftPrefs[name] {
			unrecognized = append(unrecognized, name)
			continue
		}
		if pref.Direction != bid.DirectionPrefer && pref.Direction != bid.DirectionAvoid {
			pref.Direction = bid.DirectionPrefer
		}
		pref.Weight = clamp01(pref.Weight)
		s.SoftPrefs[name] = pref
	}
	if len(unrecognized) > 0 {
		sort.Strings(unrecognized)
		s.Source["unrecognized"] = strings.Join(unrecognized, ",")
	}

	if r.Confidence > 0 {
		s.Confidence = clamp01(r.Confidence)
	}
	return true
}

func llmUserPrompt(text string, pilotCtx *bid.ContextSnapshot) string {
	var sb strings.Builder
	sb.WriteString("Schema: ")
	sb.WriteString(responseSchemaHint)
	sb.WriteString("\nRecognized soft_pref names: ")
	names := make([]string, 0, len(bid.ReservedSoftPrefs))
	for n := range bid.ReservedSoftPrefs {
		names = append(names, n)
	}
	sort.Strings(names)
	sb.WriteString(strings.Join(names, ", "))
	if pilotCtx != nil {
		fmt.Fprintf(&sb, "\nBid month: %s. Base: %s. Seat: %s.",
			pilotCtx.Month, pilotCtx.Base, pilotCtx.Seat)
	}
	sb.WriteString("\nPreferences: ")
	sb.WriteString(text)
	return sb.String()
}

// extractJSON tolerates models that wrap the object in markdown fences
// or prose.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
