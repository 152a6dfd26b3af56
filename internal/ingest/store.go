package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"vectorbid/internal/bid"
)

// ErrPackageNotFound means no package exists for the requested hash or
// lookup key.
var ErrPackageNotFound = errors.New("bid package not found")

// Index maps (airline, month, base, fleet, seat) keys to package hashes.
// The storage backends implement it; MemIndex serves tests and
// single-node setups without a database.
type Index interface {
	PutPackage(ctx context.Context, meta Meta, hash string) error
	// LookupPackage returns "" when no package is indexed for the key.
	LookupPackage(ctx context.Context, airline, month, base, fleet, seat string) (string, error)
	ListPackages(ctx context.Context, airline, month string) ([]IndexEntry, error)
}

// IndexEntry is one row of the package index.
type IndexEntry struct {
	Meta Meta   `json:"meta"`
	Hash string `json:"package_id"`
}

// MemIndex is an in-memory Index.
type MemIndex struct {
	mu      sync.RWMutex
	entries map[string]IndexEntry
}

// NewMemIndex creates an empty in-memory index.
func NewMemIndex() *MemIndex {
	return &MemIndex{entries: make(map[string]IndexEntry)}
}

func indexKey(airline, month, base, fleet, seat string) string {
	return airline + "|" + month + "|" + base + "|" + fleet + "|" + seat
}

func (m *MemIndex) PutPackage(_ context.Context, meta Meta, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[indexKey(meta.Airline, meta.Month, meta.Base, meta.Fleet, meta.Seat)] = IndexEntry{Meta: meta, Hash: hash}
	return nil
}

func (m *MemIndex) LookupPackage(_ context.Context, airline, month, base, fleet, seat string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[indexKey(airline, month, base, fleet, seat)].Hash, nil
}

func (m *MemIndex) ListPackages(_ context.Context, airline, month string) ([]IndexEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []IndexEntry
	for _, e := range m.entries {
		if airline != "" && e.Meta.Airline != airline {
			continue
		}
		if month != "" && e.Meta.Month != month {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// sidecar is the on-disk envelope for a parsed package. A parser-version
// bump invalidates old sidecars without touching the raw bytes.
type sidecar struct {
	ParserVersion string          `json:"parser_version"`
	Package       *bid.BidPackage `json:"package"`
}

// Store owns the content-addressed package files under dir
// ({hash}.bin + {hash}.json) plus the in-process parse cache. For a
// given content hash at most one parse ever runs; concurrent callers
// share the in-flight load.
type Store struct {
	dir      string
	registry *Registry
	index    Index

	sf singleflight.Group

	mu    sync.RWMutex
	cache map[string]*bid.BidPackage
}

// NewStore creates a store rooted at dir. A nil registry uses the
// default format registry; a nil index uses an in-memory one.
func NewStore(dir string, registry *Registry, index Index) *Store {
	if registry == nil {
		registry = Default()
	}
	if index == nil {
		index = NewMemIndex()
	}
	return &Store{
		dir:      dir,
		registry: registry,
		index:    index,
		cache:    make(map[string]*bid.BidPackage),
	}
}

// Ingest parses and stores a package file. Duplicate content returns the
// existing package without re-parsing; failed parses store nothing.
// existed reports whether the content hash was already known.
func (s *Store) Ingest(ctx context.Context, meta Meta, data []byte, filename string) (pkg *bid.BidPackage, existed bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	hash := bid.PackageID(data)

	type ingestResult struct {
		pkg     *bid.BidPackage
		existed bool
	}
	v, err, _ := s.sf.Do(hash, func() (interface{}, error) {
		if p := s.cached(hash); p != nil {
			return ingestResult{p, true}, nil
		}
		if p, err := s.loadSidecar(hash); err == nil {
			s.put(hash, p)
			return ingestResult{p, true}, nil
		}

		f := s.registry.Detect(data, filename)
		if f == nil {
			return nil, &ParseError{Format: "unknown", FileHash: hash,
				Err: errors.New("unrecognized file format")}
		}
		pairings, err := f.Parse(meta, data)
		if err != nil {
			return nil, wrapParseError(f.Name(), hash, err)
		}

		p := &bid.BidPackage{
			PackageID:    hash,
			Airline:      meta.Airline,
			Month:        meta.Month,
			Base:         meta.Base,
			Fleet:        meta.Fleet,
			Seat:         meta.Seat,
			UploadedAt:   time.Now().UTC(),
			SourceFormat: f.Name(),
			Pairings:     pairings,
		}
		if err := s.persist(hash, data, p); err != nil {
			return nil, err
		}
		s.put(hash, p)
		return ingestResult{p, false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(ingestResult)

	// Index the key → hash mapping even for duplicate content; a new
	// logical key may point at an already-stored file.
	if err := s.index.PutPackage(ctx, meta, hash); err != nil {
		return nil, false, fmt.Errorf("index package: %w", err)
	}
	return res.pkg, res.existed, nil
}

// Get returns the parsed package for a content hash.
func (s *Store) Get(ctx context.Context, hash string) (*bid.BidPackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p := s.cached(hash); p != nil {
		return p, nil
	}
	v, err, _ := s.sf.Do("get:"+hash, func() (interface{}, error) {
		if p := s.cached(hash); p != nil {
			return p, nil
		}
		p, err := s.loadSidecar(hash)
		if err != nil {
			return nil, err
		}
		s.put(hash, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bid.BidPackage), nil
}

// Lookup resolves a logical package key to its parsed package.
func (s *Store) Lookup(ctx context.Context, airline, month, base, fleet, seat string) (*bid.BidPackage, error) {
	hash, err := s.index.LookupPackage(ctx, airline, month, base, fleet, seat)
	if err != nil {
		return nil, fmt.Errorf("lookup package: %w", err)
	}
	if hash == "" {
		return nil, fmt.Errorf("%w: %s/%s/%s/%s/%s", ErrPackageNotFound, airline, month, base, fleet, seat)
	}
	return s.Get(ctx, hash)
}

// List returns index entries, optionally filtered by airline and month.
func (s *Store) List(ctx context.Context, airline, month string) ([]IndexEntry, error) {
	return s.index.ListPackages(ctx, airline, month)
}

func (s *Store) cached(hash string) *bid.BidPackage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[hash]
}

func (s *Store) put(hash string, p *bid.BidPackage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[hash] = p
}

func (s *Store) binPath(hash string) string  { return filepath.Join(s.dir, hash+".bin") }
func (s *Store) jsonPath(hash string) string { return filepath.Join(s.dir, hash+".json") }

// loadSidecar reads a previously parsed package. Sidecars written by an
// older parser version are ignored, forcing a re-parse.
func (s *Store) loadSidecar(hash string) (*bid.BidPackage, error) {
	data, err := os.ReadFile(s.jsonPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, hash)
		}
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode sidecar %s: %w", hash, err)
	}
	if sc.ParserVersion != ParserVersion || sc.Package == nil {
		return nil, fmt.Errorf("%w: %s (stale sidecar)", ErrPackageNotFound, hash)
	}
	return sc.Package, nil
}

// persist writes the raw bytes and the parsed sidecar. Writes go through
// a temp file + rename so a crash never leaves a torn sidecar.
func (s *Store) persist(hash string, raw []byte, p *bid.BidPackage) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create package dir: %w", err)
	}
	if err := atomicWrite(s.binPath(hash), raw); err != nil {
		return fmt.Errorf("write package bytes: %w", err)
	}
	data, err := json.Marshal(sidecar{ParserVersion: ParserVersion, Package: p})
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := atomicWrite(s.jsonPath(hash), data); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func wrapParseError(format, hash string, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	out := &ParseError{Format: format, FileHash: hash, Err: err}
	type liner interface{ Lines() (int, int) }
	var l liner
	if errors.As(err, &l) {
		out.StartLine, out.EndLine = l.Lines()
	}
	return out
}
