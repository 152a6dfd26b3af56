// Package main runs the VectorBid HTTP service.
//
// VectorBid turns a pilot's natural-language bidding preferences into
// validated, ranked PBS 2.0 bid layers: ingest a bid package, parse
// preferences, optimize candidate schedules under the airline's rule
// pack, generate and lint bid layers, and export a signed artifact.
//
// Usage:
//
//	vectorbid [options]
//
// Options (each with an env-var fallback):
//
//	-addr ADDR              listen address (default :8080, env: VECTORBID_ADDR)
//	-rule-packs DIR         rule pack directory (default ./rulepacks, env: RULE_PACKS_DIR)
//	-packages DIR           package store directory (default ./packages, env: PACKAGES_DIR)
//	-audit-backend NAME     sqlite or postgres (default sqlite, env: AUDIT_BACKEND)
//	-audit-db PATH          SQLite path (default vectorbid.db, env: AUDIT_DB)
//	-log-level LEVEL        debug|info|warn|error (default info, env: LOG_LEVEL)
//
// The LLM ladder, PostgreSQL, ClickHouse award stats, and NATS events
// are configured purely by environment (LLM_*, POSTGRES_*, CLICKHOUSE_*,
// NATS_URL); each subsystem stays disabled until its variables are set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vectorbid/internal/api"
	"vectorbid/internal/enrich"
	"vectorbid/internal/events"
	"vectorbid/internal/export"
	"vectorbid/internal/ingest"
	"vectorbid/internal/llm"
	"vectorbid/internal/pipeline"
	"vectorbid/internal/prefs"
	"vectorbid/internal/rulepack"
	"vectorbid/internal/storage"

	_ "vectorbid/internal/ingest/dialect/ual"
)

func main() {
	addr := flag.String("addr", envOrDefault("VECTORBID_ADDR", ":8080"), "listen address")
	packsDir := flag.String("rule-packs", envOrDefault("RULE_PACKS_DIR", "./rulepacks"), "rule pack directory")
	packagesDir := flag.String("packages", envOrDefault("PACKAGES_DIR", "./packages"), "package store directory")
	auditBackend := flag.String("audit-backend", envOrDefault("AUDIT_BACKEND", "sqlite"), "audit backend: sqlite or postgres")
	auditDB := flag.String("audit-db", envOrDefault("AUDIT_DB", "vectorbid.db"), "SQLite database path")
	logLevel := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	log, err := buildLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeCfg := storage.DefaultConfig()
	storeCfg.Backend = *auditBackend
	storeCfg.SQLitePath = *auditDB
	storeCfg.Postgres = storage.PostgresConfig{
		Host:     envOrDefault("POSTGRES_HOST", storeCfg.Postgres.Host),
		Port:     envOrDefaultInt("POSTGRES_PORT", storeCfg.Postgres.Port),
		Database: envOrDefault("POSTGRES_DB", storeCfg.Postgres.Database),
		User:     envOrDefault("POSTGRES_USER", storeCfg.Postgres.User),
		Password: envOrDefault("POSTGRES_PASSWORD", storeCfg.Postgres.Password),
	}
	storeCfg.ClickHouse = storage.ClickHouseConfig{
		Host:     os.Getenv("CLICKHOUSE_HOST"),
		Port:     envOrDefaultInt("CLICKHOUSE_PORT", storeCfg.ClickHouse.Port),
		Database: envOrDefault("CLICKHOUSE_DB", storeCfg.ClickHouse.Database),
		User:     envOrDefault("CLICKHOUSE_USER", storeCfg.ClickHouse.User),
		Password: envOrDefault("CLICKHOUSE_PASSWORD", ""),
	}

	db, err := storage.Open(ctx, storeCfg)
	if err != nil {
		log.Fatal("open storage", zap.Error(err))
	}
	defer db.Close()

	if err := os.MkdirAll(*packagesDir, 0o755); err != nil {
		log.Fatal("create package dir", zap.Error(err))
	}
	packages := ingest.NewStore(*packagesDir, nil, db.Index)
	packs := rulepack.NewLoader(*packsDir, envOrDefaultInt("RULE_PACK_CACHE_SIZE", rulepack.DefaultCacheSize))

	llmCfg := llm.DefaultConfig()
	llmCfg.BaseURL = os.Getenv("LLM_BASE_URL")
	llmCfg.SecondaryBaseURL = os.Getenv("LLM_SECONDARY_BASE_URL")
	llmCfg.PrimaryModel = os.Getenv("LLM_PRIMARY_MODEL")
	llmCfg.SecondaryModel = os.Getenv("LLM_SECONDARY_MODEL")
	llmCfg.PrimaryKey = os.Getenv("LLM_PRIMARY_KEY")
	llmCfg.SecondaryKey = os.Getenv("LLM_SECONDARY_KEY")
	if ms := envOrDefaultInt("LLM_CACHE_TTL_MS", 0); ms > 0 {
		llmCfg.CacheTTL = time.Duration(ms) * time.Millisecond
	}
	adapter := llm.NewAdapter(llmCfg, log)

	var pub *events.Publisher
	if url := os.Getenv("NATS_URL"); url != "" {
		pub, err = events.Connect(url, log)
		if err != nil {
			log.Warn("nats unavailable, events disabled", zap.Error(err))
		} else {
			defer pub.Close()
		}
	}

	parser := prefs.NewParser(adapter, log)
	app := &pipeline.App{
		Prefs:    parser,
		Enricher: enrich.New(parser, packs, packages, db.Stats, log),
		Packs:    packs,
		Packages: packages,
		Audit:    db.Audit,
		Stats:    db.Stats,
		Exporter: export.New(os.Getenv("EXPORT_SIGNING_SECRET"), db.Audit, pub, log),
		Events:   pub,
		LLM:      adapter,
		Log:      log,
		Deadline: time.Duration(envOrDefaultInt("REQUEST_DEADLINE_MS", 30000)) * time.Millisecond,
	}

	server := api.New(app, os.Getenv("API_KEY_EXPORT"), log)
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("vectorbid listening",
			zap.String("addr", *addr),
			zap.String("rule_packs", *packsDir),
			zap.String("packages", *packagesDir),
			zap.Bool("llm", adapter != nil && adapter.Enabled()),
			zap.Bool("stats", db.Stats != nil),
			zap.Bool("events", pub.Enabled()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
