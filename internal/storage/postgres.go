package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB implements AuditStore and ingest.Index on a pgx pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL and ensures the
// schema exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	d := &PostgresDB{pool: pool}
	if err := d.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return d, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

func (d *PostgresDB) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS exports (
		export_id     TEXT PRIMARY KEY,
		ctx_id        TEXT NOT NULL,
		artifact_hash TEXT NOT NULL,
		signature     TEXT NOT NULL,
		pilot_hash    TEXT NOT NULL,
		issued_at     TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exports_ctx ON exports(ctx_id);
	CREATE INDEX IF NOT EXISTS idx_exports_issued ON exports(issued_at);

	CREATE TABLE IF NOT EXISTS packages (
		airline     TEXT NOT NULL,
		month       TEXT NOT NULL,
		base        TEXT NOT NULL,
		fleet       TEXT NOT NULL,
		seat        TEXT NOT NULL,
		package_id  TEXT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (airline, month, base, fleet, seat)
	);

	CREATE INDEX IF NOT EXISTS idx_packages_month ON packages(airline, month);
	`
	_, err := d.pool.Exec(ctx, schema)
	return err
}

// AppendExport records one issued export.
func (d *PostgresDB) AppendExport(ctx context.Context, rec bid.ExportRecord) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO exports (export_id, ctx_id, artifact_hash, signature, pilot_hash, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ExportID, rec.CtxID, rec.ArtifactHash, rec.Signature, rec.PilotHash, rec.IssuedAt.UTC())
	if err != nil {
		return fmt.Errorf("append export: %w", err)
	}
	return nil
}

// GetExport fetches one audit record by export id.
func (d *PostgresDB) GetExport(ctx context.Context, exportID string) (bid.ExportRecord, error) {
	var rec bid.ExportRecord
	err := d.pool.QueryRow(ctx, `
		SELECT export_id, ctx_id, artifact_hash, signature, pilot_hash, issued_at
		FROM exports WHERE export_id = $1`, exportID).
		Scan(&rec.ExportID, &rec.CtxID, &rec.ArtifactHash, &rec.Signature, &rec.PilotHash, &rec.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("get export: %w", err)
	}
	return rec, nil
}

// ListExports returns recent exports, optionally filtered by ctx id.
func (d *PostgresDB) ListExports(ctx context.Context, ctxID string, limit int) ([]bid.ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT export_id, ctx_id, artifact_hash, signature, pilot_hash, issued_at FROM exports`
	args := []interface{}{}
	if ctxID != "" {
		query += ` WHERE ctx_id = $1 ORDER BY issued_at DESC LIMIT $2`
		args = append(args, ctxID, limit)
	} else {
		query += ` ORDER BY issued_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var out []bid.ExportRecord
	for rows.Next() {
		var rec bid.ExportRecord
		if err := rows.Scan(&rec.ExportID, &rec.CtxID, &rec.ArtifactHash, &rec.Signature, &rec.PilotHash, &rec.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutPackage upserts the logical key → package hash mapping.
func (d *PostgresDB) PutPackage(ctx context.Context, meta ingest.Meta, hash string) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO packages (airline, month, base, fleet, seat, package_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (airline, month, base, fleet, seat)
		DO UPDATE SET package_id = EXCLUDED.package_id, updated_at = NOW()`,
		meta.Airline, meta.Month, meta.Base, meta.Fleet, meta.Seat, hash)
	if err != nil {
		return fmt.Errorf("put package: %w", err)
	}
	return nil
}

// LookupPackage resolves a logical key; "" means no package is indexed.
func (d *PostgresDB) LookupPackage(ctx context.Context, airline, month, base, fleet, seat string) (string, error) {
	var hash string
	err := d.pool.QueryRow(ctx, `
		SELECT package_id FROM packages
		WHERE airline = $1 AND month = $2 AND base = $3 AND fleet = $4 AND seat = $5`,
		airline, month, base, fleet, seat).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup package: %w", err)
	}
	return hash, nil
}

// ListPackages returns indexed packages, optionally filtered.
func (d *PostgresDB) ListPackages(ctx context.Context, airline, month string) ([]ingest.IndexEntry, error) {
	query := `SELECT airline, month, base, fleet, seat, package_id FROM packages`
	var args []interface{}
	switch {
	case airline != "" && month != "":
		query += ` WHERE airline = $1 AND month = $2`
		args = append(args, airline, month)
	case airline != "":
		query += ` WHERE airline = $1`
		args = append(args, airline)
	case month != "":
		query += ` WHERE month = $1`
		args = append(args, month)
	}
	query += ` ORDER BY airline, month, base, fleet, seat`

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var out []ingest.IndexEntry
	for rows.Next() {
		var e ingest.IndexEntry
		if err := rows.Scan(&e.Meta.Airline, &e.Meta.Month, &e.Meta.Base, &e.Meta.Fleet, &e.Meta.Seat, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
