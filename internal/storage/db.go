package storage

import (
	"context"
	"fmt"

	"vectorbid/internal/ingest"
)

// Backend names for Config.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects the audit/index backend and the optional stats store.
type Config struct {
	Backend    string // sqlite or postgres
	SQLitePath string
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig // empty Host disables award stats
}

// DefaultConfig returns single-node defaults: SQLite audit and index,
// no ClickHouse.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendSQLite,
		SQLitePath: "vectorbid.db",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "vectorbid",
			User:     "vectorbid",
			Password: "vectorbid",
		},
		ClickHouse: ClickHouseConfig{
			Port:     9000,
			Database: "vectorbid",
			User:     "default",
		},
	}
}

// Store bundles the opened backends behind their interfaces.
type Store struct {
	Audit AuditStore
	Index ingest.Index
	Stats StatsProvider // nil when ClickHouse is disabled

	closers []func() error
}

// Open opens the configured backends. The stats store is optional and
// only opened when a ClickHouse host is set.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	s := &Store{}

	switch cfg.Backend {
	case BackendSQLite, "":
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		s.Audit, s.Index = db, db
		s.closers = append(s.closers, db.Close)
	case BackendPostgres:
		db, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.Audit, s.Index = db, db
		s.closers = append(s.closers, func() error { db.Close(); return nil })
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.ClickHouse.Host != "" {
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.Stats = ch
		s.closers = append(s.closers, ch.Close)
	}
	return s, nil
}

// Close closes every opened backend.
func (s *Store) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
