// Package pipeline orchestrates the bid workflow: enrich, optimize,
// strategize, generate layers, lint, export. It owns the error taxonomy
// the HTTP layer maps to status codes and the service counters behind
// /api/stats.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vectorbid/internal/bid"
	"vectorbid/internal/enrich"
	"vectorbid/internal/events"
	"vectorbid/internal/export"
	"vectorbid/internal/ingest"
	"vectorbid/internal/lint"
	"vectorbid/internal/llm"
	"vectorbid/internal/optimizer"
	"vectorbid/internal/prefs"
	"vectorbid/internal/rulepack"
	"vectorbid/internal/storage"
	"vectorbid/internal/strategy"
)

// DefaultDeadline bounds one request end to end.
const DefaultDeadline = 30 * time.Second

// App bundles every component the handlers need. Built once at startup.
type App struct {
	Prefs    *prefs.Parser
	Enricher *enrich.Enricher
	Packs    *rulepack.Loader
	Packages *ingest.Store
	Audit    storage.AuditStore
	Stats    storage.StatsProvider // nil when disabled
	Exporter *export.Exporter
	Events   *events.Publisher
	LLM      *llm.Adapter // nil when disabled
	Log      *zap.Logger
	Deadline time.Duration

	counters counters
}

type counters struct {
	ingests      atomic.Int64
	pipelineRuns atomic.Int64
	optimizeRuns atomic.Int64
	exports      atomic.Int64
	prefsLLM     atomic.Int64
	prefsFallbck atomic.Int64
	prefsRule    atomic.Int64
}

// Normalize fills zero-valued fields with safe defaults.
func (a *App) Normalize() {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	if a.Deadline <= 0 {
		a.Deadline = DefaultDeadline
	}
}

// WithDeadline derives the per-request context.
func (a *App) WithDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.Deadline)
}

// CountIngest records one accepted package upload.
func (a *App) CountIngest() { a.counters.ingests.Add(1) }

// Counters snapshots the service counters for /api/stats.
func (a *App) Counters() map[string]int64 {
	return map[string]int64{
		"packages_ingested":  a.counters.ingests.Load(),
		"pipeline_runs":      a.counters.pipelineRuns.Load(),
		"optimize_runs":      a.counters.optimizeRuns.Load(),
		"exports_issued":     a.counters.exports.Load(),
		"prefs_llm":          a.counters.prefsLLM.Load(),
		"prefs_llm_fallback": a.counters.prefsFallbck.Load(),
		"prefs_rule_based":   a.counters.prefsRule.Load(),
	}
}

func (a *App) countPrefs(method string) {
	switch method {
	case bid.MethodLLM:
		a.counters.prefsLLM.Add(1)
	case bid.MethodLLMFallback:
		a.counters.prefsFallbck.Add(1)
	default:
		a.counters.prefsRule.Add(1)
	}
}

// Request is one orchestrated run.
type Request struct {
	Ctx       *bid.ContextSnapshot
	Text      string
	Persona   string
	PackageID string
	TopK      int
}

// RunResult is the one-shot pipeline response.
type RunResult struct {
	Prefs      bid.PreferenceSchema    `json:"preference_schema"`
	Method     string                  `json:"method"`
	Candidates []bid.CandidateSchedule `json:"candidates"`
	Weights    map[string]float64      `json:"weights,omitempty"`
	Directives bid.StrategyDirectives  `json:"directives"`
	Artifact   bid.BidLayerArtifact    `json:"artifact"`
	Lint       *bid.LintReport         `json:"lint"`
	PackageID  string                  `json:"package_id"`
	LegacyMode bool                    `json:"legacy_mode,omitempty"`
	Warnings   []bid.Violation         `json:"warnings,omitempty"`
}

// prepare normalizes the snapshot and validates the request shape.
func (a *App) prepare(req *Request) *Error {
	if req.Ctx == nil {
		return BadInput("missing context")
	}
	if err := ValidateSnapshot(req.Ctx); err != nil {
		return err
	}
	if req.Ctx.CtxID == "" {
		req.Ctx.CtxID = uuid.NewString()
	}
	if req.Persona != "" {
		if req.Ctx.CommutingProfile == nil {
			req.Ctx.CommutingProfile = map[string]string{}
		}
		req.Ctx.CommutingProfile["persona"] = req.Persona
	}
	if a.LLM != nil && req.Ctx.PilotID != "" {
		a.LLM.AddRedactValue(req.Ctx.PilotID)
	}
	return nil
}

// ParsePreferences runs only the preference-parsing stage.
func (a *App) ParsePreferences(ctx context.Context, req Request) (bid.PreferenceSchema, error) {
	if err := a.prepare(&req); err != nil {
		return bid.PreferenceSchema{}, err
	}
	schema := a.Prefs.Parse(ctx, req.Text, req.Ctx)
	a.countPrefs(schema.Method())
	return schema, nil
}

// Enrich builds the feature bundle for one request.
func (a *App) Enrich(ctx context.Context, req Request) (*enrich.FeatureBundle, error) {
	if err := a.prepare(&req); err != nil {
		return nil, err
	}
	b, err := a.Enricher.Build(ctx, enrich.Request{
		Ctx:       req.Ctx,
		Text:      req.Text,
		PackageID: req.PackageID,
	})
	if err != nil {
		return nil, Classify(err)
	}
	a.countPrefs(b.Prefs.Method())
	return b, nil
}

// Optimize builds the bundle and runs the search.
func (a *App) Optimize(ctx context.Context, req Request) (*enrich.FeatureBundle, optimizer.Result, error) {
	b, err := a.Enrich(ctx, req)
	if err != nil {
		return nil, optimizer.Result{}, err
	}
	a.counters.optimizeRuns.Add(1)
	res := optimizer.Optimize(ctx, b, optimizer.Options{TopK: req.TopK}, a.Log)
	return b, res, nil
}

// Retune rescores candidates under adjusted weights without re-searching.
func (a *App) Retune(candidates []bid.CandidateSchedule, deltas map[string]float64, base string, pkg *bid.BidPackage) []bid.CandidateSchedule {
	return optimizer.Retune(candidates, deltas, base, pkg)
}

// layerRateProvider is the optional historical-rate slice of the stats
// store.
type layerRateProvider interface {
	LayerAwardRates(ctx context.Context, airline, month, base string, seniorityDecile int) (map[int]float64, error)
}

// layerRates fetches historical per-layer award rates when available.
func (a *App) layerRates(ctx context.Context, snap *bid.ContextSnapshot) map[int]float64 {
	lp, ok := a.Stats.(layerRateProvider)
	if !ok {
		return nil
	}
	decile := int(snap.SeniorityPercentile * 10)
	if decile < 0 {
		decile = 0
	}
	if decile > 9 {
		decile = 9
	}
	rates, err := lp.LayerAwardRates(ctx, snap.Airline, snap.Month, snap.Base, decile)
	if err != nil {
		a.Log.Warn("layer award rates unavailable", zap.Error(err))
		return nil
	}
	return rates
}

// GenerateLayers turns ranked candidates into the bid-layer artifact.
func (a *App) GenerateLayers(ctx context.Context, b *enrich.FeatureBundle, candidates []bid.CandidateSchedule) bid.BidLayerArtifact {
	return strategy.GenerateLayers(strategy.Input{
		Bundle:     b,
		Candidates: candidates,
		LayerRates: a.layerRates(ctx, b.Ctx),
	})
}

// Strategize derives weight and layer directives from ranked candidates.
func (a *App) Strategize(ctx context.Context, b *enrich.FeatureBundle, candidates []bid.CandidateSchedule) bid.StrategyDirectives {
	return strategy.Directives(strategy.Input{
		Bundle:     b,
		Candidates: candidates,
		LayerRates: a.layerRates(ctx, b.Ctx),
	})
}

// LintArtifact checks an artifact, optionally against a stored package
// and the artifact's rule pack.
func (a *App) LintArtifact(ctx context.Context, art *bid.BidLayerArtifact, packageID string) (*bid.LintReport, error) {
	opts := lint.Options{}
	if packageID != "" {
		pkg, err := a.Packages.Get(ctx, packageID)
		if err != nil {
			return nil, Classify(err)
		}
		opts.Pairings = pkg.Pairings
	}
	if pack, err := a.Packs.Load(ctx, art.Airline, art.Month); err == nil {
		opts.Pack = pack
	}
	return lint.Lint(art, opts), nil
}

// Export signs the artifact and appends the audit record.
func (a *App) Export(ctx context.Context, art *bid.BidLayerArtifact, snap *bid.ContextSnapshot) (export.Result, error) {
	if snap == nil {
		return export.Result{}, BadInput("missing context")
	}
	if snap.CtxID == "" {
		snap.CtxID = uuid.NewString()
	}
	res, err := a.Exporter.Export(ctx, art, snap)
	if err != nil {
		return export.Result{}, Classify(err)
	}
	a.counters.exports.Add(1)
	return res, nil
}

// Run executes the full workflow: enrich, optimize, strategize, generate
// layers, lint. Export stays a separate explicit call.
func (a *App) Run(ctx context.Context, req Request) (*RunResult, error) {
	b, err := a.Enrich(ctx, req)
	if err != nil {
		return nil, err
	}
	a.counters.pipelineRuns.Add(1)

	opt := optimizer.Optimize(ctx, b, optimizer.Options{TopK: req.TopK}, a.Log)
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}

	in := strategy.Input{
		Bundle:     b,
		Candidates: opt.Candidates,
		LayerRates: a.layerRates(ctx, b.Ctx),
	}
	directives := strategy.Directives(in)
	art := strategy.GenerateLayers(in)
	report := lint.Lint(&art, lint.Options{Pairings: b.Package.Pairings, Pack: b.Pack})
	art.Lint = report

	warnings := append([]bid.Violation{}, b.Warnings...)
	warnings = append(warnings, opt.Warnings...)

	return &RunResult{
		Prefs:      b.Prefs,
		Method:     b.Prefs.Method(),
		Candidates: opt.Candidates,
		Weights:    opt.Weights,
		Directives: directives,
		Artifact:   art,
		Lint:       report,
		PackageID:  b.PackageID,
		LegacyMode: b.LegacyMode,
		Warnings:   warnings,
	}, nil
}

// Health reports component status for /health.
type Health struct {
	Status   string `json:"status"`
	DB       string `json:"db"`
	Storage  string `json:"storage"`
	RulePack string `json:"rulepack_version"`
	LLM      string `json:"llm"`
}

// CheckHealth probes the audit store, the package store, the rule-pack
// directory, and the LLM rungs.
func (a *App) CheckHealth(ctx context.Context) Health {
	h := Health{Status: "ok", DB: "ok", Storage: "ok", RulePack: "none", LLM: "disabled"}

	if _, err := a.Audit.ListExports(ctx, "", 1); err != nil {
		h.DB = "error"
		h.Status = "degraded"
	}
	if _, err := a.Packages.List(ctx, "", ""); err != nil {
		h.Storage = "error"
		h.Status = "degraded"
	}
	if packs, err := a.Packs.List(ctx); err == nil && len(packs) > 0 {
		h.RulePack = packs[0].Version
	}
	if a.LLM != nil && a.LLM.Enabled() {
		h.LLM = "ok"
	}
	return h
}
