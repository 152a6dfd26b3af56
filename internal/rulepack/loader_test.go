package rulepack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePack(t *testing.T, dir, airline, month, yaml string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, airline), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, airline, month+".yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoaderCacheHit(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "UAL", "2025-09", testPackYAML)

	l := NewLoader(dir, 4)
	ctx := context.Background()

	p1, err := l.Load(ctx, "UAL", "2025-09")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p2, err := l.Load(ctx, "UAL", "2025-09")
	if err != nil {
		t.Fatalf("Load (cached): %v", err)
	}
	if p1 != p2 {
		t.Error("second load should return the cached pack instance")
	}
}

func TestLoaderReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "UAL", "2025-09", testPackYAML)

	l := NewLoader(dir, 4)
	ctx := context.Background()

	p1, err := l.Load(ctx, "UAL", "2025-09")
	if err != nil {
		t.Fatal(err)
	}

	// Change the version on disk and bump the mtime past filesystem
	// timestamp granularity.
	changed := []byte(testPackYAML)
	changed = append(changed, '\n')
	if err := os.WriteFile(path, changed, 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	p2, err := l.Load(ctx, "UAL", "2025-09")
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Error("changed fingerprint should force a reload")
	}
}

func TestLoaderNotFound(t *testing.T) {
	l := NewLoader(t.TempDir(), 4)
	_, err := l.Load(context.Background(), "XYZ", "2030-01")
	if !errors.Is(err, ErrPackNotFound) {
		t.Errorf("Load error = %v, want ErrPackNotFound", err)
	}
}

func TestLoaderRejectsKeyMismatch(t *testing.T) {
	dir := t.TempDir()
	// Pack declares UAL/2025-09 but is filed under DAL.
	writePack(t, dir, "DAL", "2025-09", testPackYAML)

	l := NewLoader(dir, 4)
	_, err := l.Load(context.Background(), "DAL", "2025-09")
	if !errors.Is(err, ErrPackInvalid) {
		t.Errorf("Load error = %v, want ErrPackInvalid", err)
	}
}

func TestLoaderEviction(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "UAL", "2025-09", testPackYAML)
	other := `
version: v1
airline: UAL
month: 2025-10
hard_rules:
  - {id: a, severity: error, check: "candidate.count >= 0"}
`
	writePack(t, dir, "UAL", "2025-10", other)

	l := NewLoader(dir, 1)
	ctx := context.Background()

	p1, _ := l.Load(ctx, "UAL", "2025-09")
	if _, err := l.Load(ctx, "UAL", "2025-10"); err != nil {
		t.Fatal(err)
	}
	// 2025-09 was evicted; loading it again builds a fresh instance.
	p3, err := l.Load(ctx, "UAL", "2025-09")
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p3 {
		t.Error("evicted entry should not be served from cache")
	}
}

func TestLoaderList(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "UAL", "2025-09", testPackYAML)
	writePack(t, dir, "UAL", "2025-08", `
version: v0
airline: UAL
month: 2025-08
`)
	writePack(t, dir, "DAL", "2025-09", "not: [valid") // skipped

	l := NewLoader(dir, 8)
	infos, err := l.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("List = %+v, want 2 entries", infos)
	}
	if infos[0].Month != "2025-08" || infos[1].Month != "2025-09" {
		t.Errorf("List not sorted: %+v", infos)
	}
	if infos[1].Version != "2025.09-r2" {
		t.Errorf("version = %q", infos[1].Version)
	}
}

func TestLoaderCancelledContext(t *testing.T) {
	l := NewLoader(t.TempDir(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, "UAL", "2025-09"); err == nil {
		t.Error("cancelled context should fail the load")
	}
}
