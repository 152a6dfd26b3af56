// Package storage persists export audit records and the bid-package
// index, and serves award statistics. SQLite is the default single-node
// backend; PostgreSQL is the shared-deployment alternative; ClickHouse
// holds the historical award stats.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest"
)

// ErrNotFound is returned for lookups that match nothing.
var ErrNotFound = errors.New("storage: not found")

// AuditStore is the append-only export audit log.
type AuditStore interface {
	AppendExport(ctx context.Context, rec bid.ExportRecord) error
	GetExport(ctx context.Context, exportID string) (bid.ExportRecord, error)
	ListExports(ctx context.Context, ctxID string, limit int) ([]bid.ExportRecord, error)
}

// SQLiteDB implements AuditStore and ingest.Index on one SQLite file.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" works for
// tests.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS exports (
		export_id     TEXT PRIMARY KEY,
		ctx_id        TEXT NOT NULL,
		artifact_hash TEXT NOT NULL,
		signature     TEXT NOT NULL,
		pilot_hash    TEXT NOT NULL,
		issued_at     TEXT NOT NULL
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
		updated_at  TEXT DEFAULT (datetime('now')),
		PRIMARY KEY (airline, month, base, fleet, seat)
	);

	CREATE INDEX IF NOT EXISTS idx_packages_month ON packages(airline, month);
	`
	_, err := db.Exec(schema)
	return err
}

// AppendExport records one issued export. Export ids never repeat, so a
// conflict is an error.
func (d *SQLiteDB) AppendExport(ctx context.Context, rec bid.ExportRecord) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO exports (export_id, ctx_id, artifact_hash, signature, pilot_hash, issued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ExportID, rec.CtxID, rec.ArtifactHash, rec.Signature, rec.PilotHash,
		rec.IssuedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append export: %w", err)
	}
	return nil
}

// GetExport fetches one audit record by export id.
func (d *SQLiteDB) GetExport(ctx context.Context, exportID string) (bid.ExportRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT export_id, ctx_id, artifact_hash, signature, pilot_hash, issued_at
		FROM exports WHERE export_id = ?`, exportID)
	return scanExport(row)
}

// ListExports returns recent exports, optionally filtered by ctx id.
func (d *SQLiteDB) ListExports(ctx context.Context, ctxID string, limit int) ([]bid.ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT export_id, ctx_id, artifact_hash, signature, pilot_hash, issued_at
		FROM exports`
	args := []interface{}{}
	if ctxID != "" {
		query += ` WHERE ctx_id = ?`
		args = append(args, ctxID)
	}
	query += ` ORDER BY issued_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var out []bid.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExport(row rowScanner) (bid.ExportRecord, error) {
	var rec bid.ExportRecord
	var issued string
	err := row.Scan(&rec.ExportID, &rec.CtxID, &rec.ArtifactHash, &rec.Signature, &rec.PilotHash, &issued)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scan export: %w", err)
	}
	rec.IssuedAt, err = time.Parse(time.RFC3339Nano, issued)
	if err != nil {
		return rec, fmt.Errorf("parse issued_at: %w", err)
	}
	return rec, nil
}

// PutPackage upserts the logical key → package hash mapping.
func (d *SQLiteDB) PutPackage(ctx context.Context, meta ingest.Meta, hash string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO packages (airline, month, base, fleet, seat, package_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (airline, month, base, fleet, seat)
		DO UPDATE SET package_id = excluded.package_id, updated_at = datetime('now')`,
		meta.Airline, meta.Month, meta.Base, meta.Fleet, meta.Seat, hash)
	if err != nil {
		return fmt.Errorf("put package: %w", err)
	}
	return nil
}

// LookupPackage resolves a logical key; "" means no package is indexed.
func (d *SQLiteDB) LookupPackage(ctx context.Context, airline, month, base, fleet, seat string) (string, error) {
	var hash string
	err := d.db.QueryRowContext(ctx, `
		SELECT package_id FROM packages
		WHERE airline = ? AND month = ? AND base = ? AND fleet = ? AND seat = ?`,
		airline, month, base, fleet, seat).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup package: %w", err)
	}
	return hash, nil
}

// ListPackages returns indexed packages, optionally filtered.
func (d *SQLiteDB) ListPackages(ctx context.Context, airline, month string) ([]ingest.IndexEntry, error) {
	query := `SELECT airline, month, base, fleet, seat, package_id FROM packages`
	var args []interface{}
	var where []string
	if airline != "" {
		where = append(where, "airline = ?")
		args = append(args, airline)
	}
	if month != "" {
		where = append(where, "month = ?")
		args = append(args, month)
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY airline, month, base, fleet, seat"

	rows, err := d.db.QueryContext(ctx, query, args...)
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
