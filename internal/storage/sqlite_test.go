package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"vectorbid/internal/bid"
	"vectorbid/internal/ingest"
)

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExportAuditRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := bid.ExportRecord{
		ExportID:     "exp-1",
		CtxID:        "ctx-1",
		ArtifactHash: "abc123",
		Signature:    "deadbeef",
		PilotHash:    "p-hash",
		IssuedAt:     time.Date(2025, 8, 1, 12, 30, 0, 0, time.UTC),
	}
	if err := db.AppendExport(ctx, rec); err != nil {
		t.Fatalf("AppendExport: %v", err)
	}

	got, err := db.GetExport(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExport: %v", err)
	}
	if got != rec {
		t.Errorf("got %+v, want %+v", got, rec)
	}

	if _, err := db.GetExport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	// Append-only: a second record with the same id must fail.
	if err := db.AppendExport(ctx, rec); err == nil {
		t.Error("duplicate export_id should be rejected")
	}
}

func TestListExportsFiltered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, ctxID := range []string{"ctx-a", "ctx-b", "ctx-a"} {
		rec := bid.ExportRecord{
			ExportID:     fmt.Sprintf("exp-%d", i),
			CtxID:        ctxID,
			ArtifactHash: "h",
			Signature:    "s",
			PilotHash:    "p",
			IssuedAt:     base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.AppendExport(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListExports(ctx, "ctx-a", 10)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("filtered exports = %d, want 2", len(got))
	}
	if !got[0].IssuedAt.After(got[1].IssuedAt) {
		t.Error("exports should be newest-first")
	}

	all, err := db.ListExports(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all exports = %d, want 3", len(all))
	}
}

func TestPackageIndexUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	meta := ingest.Meta{Airline: "UAL", Month: "2025-09", Base: "DEN", Fleet: "737", Seat: "FO"}

	if err := db.PutPackage(ctx, meta, "hash-1"); err != nil {
		t.Fatalf("PutPackage: %v", err)
	}
	if err := db.PutPackage(ctx, meta, "hash-2"); err != nil {
		t.Fatalf("PutPackage upsert: %v", err)
	}

	hash, err := db.LookupPackage(ctx, "UAL", "2025-09", "DEN", "737", "FO")
	if err != nil {
		t.Fatalf("LookupPackage: %v", err)
	}
	if hash != "hash-2" {
		t.Errorf("hash = %q, want the upserted hash-2", hash)
	}

	hash, err = db.LookupPackage(ctx, "UAL", "2025-10", "DEN", "737", "FO")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Errorf("missing key should return empty hash, got %q", hash)
	}

	other := ingest.Meta{Airline: "DAL", Month: "2025-09", Base: "ATL", Fleet: "320", Seat: "CA"}
	if err := db.PutPackage(ctx, other, "hash-3"); err != nil {
		t.Fatal(err)
	}
	entries, err := db.ListPackages(ctx, "UAL", "")
	if err != nil {
		t.Fatalf("ListPackages: %v", err)
	}
	if len(entries) != 1 || entries[0].Hash != "hash-2" {
		t.Errorf("entries = %+v", entries)
	}
}

// The SQLite backend must satisfy the interfaces the pipeline wires it
// into.
var (
	_ AuditStore   = (*SQLiteDB)(nil)
	_ ingest.Index = (*SQLiteDB)(nil)
	_ AuditStore   = (*PostgresDB)(nil)
	_ ingest.Index = (*PostgresDB)(nil)
)
