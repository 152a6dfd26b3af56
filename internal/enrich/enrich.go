// Package enrich assembles the per-request FeatureBundle: parsed
// preferences, the resolved bid package, the active rule pack, derived
// per-pairing analytics, and award stats. The independent loads run
// concurrently under one errgroup with the request deadline.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest"
	"vectorbid/internal/prefs"
	"vectorbid/internal/rulepack"
	"vectorbid/internal/storage"
)

// Per-stage timeouts inside the request deadline.
const (
	packageReadTimeout  = 3 * time.Second
	rulePackReadTimeout = 500 * time.Millisecond
)

// Warning codes attached to the bundle.
const (
	WarnRulePackMissing = "rule_pack_missing"
	WarnStatsMissing    = "stats_unavailable"
)

// FeatureBundle is everything downstream stages need for one request.
// Immutable once built.
type FeatureBundle struct {
	Ctx        *bid.ContextSnapshot
	Prefs      bid.PreferenceSchema
	PackageID  string
	Package    *bid.BidPackage
	Pack       *rulepack.RulePack
	LegacyMode bool
	Analytics  map[string]PairingFeatures
	Stats      map[string]float64
	Warnings   []bid.Violation
}

// Enricher owns the loaders the bundle is built from.
type Enricher struct {
	prefs    *prefs.Parser
	packs    *rulepack.Loader
	packages *ingest.Store
	stats    storage.StatsProvider
	log      *zap.Logger
}

// New builds an enricher. stats may be nil; the stats.* namespace then
// stays undefined.
func New(p *prefs.Parser, packs *rulepack.Loader, packages *ingest.Store, stats storage.StatsProvider, log *zap.Logger) *Enricher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{prefs: p, packs: packs, packages: packages, stats: stats, log: log}
}

// Request names the inputs for one bundle.
type Request struct {
	Ctx       *bid.ContextSnapshot
	Text      string // natural-language preferences
	PackageID string // optional; empty resolves via the package index
}

// Build fans the loads out and fuses the results. A missing rule pack
// flips legacy mode instead of failing; a missing package fails.
func (e *Enricher) Build(ctx context.Context, req Request) (*FeatureBundle, error) {
	if req.Ctx == nil {
		return nil, errors.New("enrich: nil context snapshot")
	}
	b := &FeatureBundle{Ctx: req.Ctx}

	var warnMu sync.Mutex
	warn := func(v bid.Violation) {
		warnMu.Lock()
		b.Warnings = append(b.Warnings, v)
		warnMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.Prefs = e.prefs.Parse(gctx, req.Text, req.Ctx)
		return nil
	})

	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, rulePackReadTimeout)
		defer cancel()
		pack, err := e.packs.Load(pctx, req.Ctx.Airline, req.Ctx.Month)
		if err != nil {
			if errors.Is(err, rulepack.ErrPackNotFound) || errors.Is(err, context.DeadlineExceeded) {
				b.LegacyMode = true
				b.Pack = rulepack.Baseline()
				warn(bid.Violation{
					RuleID:   WarnRulePackMissing,
					Severity: bid.SeverityWarn,
					Detail:   fmt.Sprintf("no rule pack for %s %s, using built-in baseline", req.Ctx.Airline, req.Ctx.Month),
				})
				return nil
			}
			return fmt.Errorf("load rule pack: %w", err)
		}
		b.Pack = pack
		return nil
	})

	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, packageReadTimeout)
		defer cancel()
		var pkg *bid.BidPackage
		var err error
		if req.PackageID != "" {
			pkg, err = e.packages.Get(pctx, req.PackageID)
		} else {
			pkg, err = e.packages.Lookup(pctx, req.Ctx.Airline, req.Ctx.Month, req.Ctx.Base, req.Ctx.Fleet, req.Ctx.Seat)
		}
		if err != nil {
			return fmt.Errorf("load bid package: %w", err)
		}
		b.Package = pkg
		b.PackageID = pkg.PackageID
		b.Analytics = computeAnalytics(pkg, req.Ctx.CommutingProfile)
		return nil
	})

	if e.stats != nil {
		g.Go(func() error {
			decile := seniorityDecile(req.Ctx.SeniorityPercentile)
			stats, err := e.stats.AwardStats(gctx, req.Ctx.Airline, req.Ctx.Month, req.Ctx.Base, decile)
			if err != nil {
				e.log.Warn("award stats unavailable", zap.Error(err))
				warn(bid.Violation{
					RuleID:   WarnStatsMissing,
					Severity: bid.SeverityWarn,
					Detail:   "award stats store unavailable",
				})
				return nil
			}
			b.Stats = stats
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

// EvalInput converts the bundle's candidate selection into rule-pack
// evaluator input.
func (b *FeatureBundle) EvalInput(pairings []bid.Pairing) rulepack.EvalInput {
	return rulepack.EvalInput{
		Ctx:      b.Ctx,
		Pairings: pairings,
		Stats:    b.Stats,
	}
}

func seniorityDecile(pct float64) int {
	d := int(pct * 10)
	if d < 0 {
		return 0
	}
	if d > 9 {
		return 9
	}
	return d
}
