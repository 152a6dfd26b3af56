package rulepack

import (
	"container/list"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the default LRU capacity of the loader.
const DefaultCacheSize = 64

// Loader reads packs from RULE_PACKS_DIR/{airline}/{month}.yaml, compiles
// them once, and serves them from an LRU keyed by (airline, month,
// file fingerprint). A changed file fingerprint (mtime+size) invalidates
// the cached entry; in-flight evaluations keep the pack they loaded.
// Concurrent misses for one key share a single load.
type Loader struct {
	dir string
	cap int

	sf singleflight.Group

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element
}

type cacheEntry struct {
	key         string
	fingerprint string
	pack        *RulePack
}

// NewLoader returns a loader over dir with the given LRU capacity.
// A capacity below 1 falls back to DefaultCacheSize.
func NewLoader(dir string, capacity int) *Loader {
	if capacity < 1 {
		capacity = DefaultCacheSize
	}
	return &Loader{
		dir:   dir,
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

// Path returns the on-disk location of a pack.
func (l *Loader) Path(airline, month string) string {
	return filepath.Join(l.dir, airline, month+".yaml")
}

// Load returns the compiled pack for (airline, month). Cache hits are
// O(1); misses read, parse, and validate the file under singleflight.
// A missing file is ErrPackNotFound; a file that does not type-check is
// ErrPackInvalid.
func (l *Loader) Load(ctx context.Context, airline, month string) (*RulePack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.Path(airline, month)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrPackNotFound, airline, month)
		}
		return nil, fmt.Errorf("stat rule pack: %w", err)
	}
	fp := fmt.Sprintf("%d-%d", fi.ModTime().UnixNano(), fi.Size())
	key := airline + "/" + month

	if p := l.get(key, fp); p != nil {
		return p, nil
	}

	v, err, _ := l.sf.Do(key+"@"+fp, func() (interface{}, error) {
		if p := l.get(key, fp); p != nil {
			return p, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rule pack: %w", err)
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", airline, month, err)
		}
		if p.Airline != airline || p.Month != month {
			return nil, fmt.Errorf("%w: pack declares %s/%s but lives at %s/%s",
				ErrPackInvalid, p.Airline, p.Month, airline, month)
		}
		l.put(key, fp, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RulePack), nil
}

// get returns the cached pack when key exists with a matching
// fingerprint, promoting it to most recently used.
func (l *Loader) get(key, fingerprint string) *RulePack {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[key]
	if !ok {
		return nil
	}
	ent := el.Value.(*cacheEntry)
	if ent.fingerprint != fingerprint {
		// Stale: the file changed on disk. Drop it; the caller reloads.
		l.ll.Remove(el)
		delete(l.items, key)
		return nil
	}
	l.ll.MoveToFront(el)
	return ent.pack
}

func (l *Loader) put(key, fingerprint string, p *RulePack) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[key]; ok {
		el.Value.(*cacheEntry).fingerprint = fingerprint
		el.Value.(*cacheEntry).pack = p
		l.ll.MoveToFront(el)
		return
	}
	l.items[key] = l.ll.PushFront(&cacheEntry{key: key, fingerprint: fingerprint, pack: p})
	for l.ll.Len() > l.cap {
		oldest := l.ll.Back()
		l.ll.Remove(oldest)
		delete(l.items, oldest.Value.(*cacheEntry).key)
	}
}

// PackInfo identifies one pack on disk.
type PackInfo struct {
	Airline string `json:"airline"`
	Month   string `json:"month"`
	Version string `json:"version"`
}

// List walks the pack directory and returns every pack that parses,
// sorted by airline then month. Files that do not type-check are
// skipped.
func (l *Loader) List(ctx context.Context) ([]PackInfo, error) {
	airlines, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rule pack dir: %w", err)
	}

	var infos []PackInfo
	for _, a := range airlines {
		if !a.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(l.dir, a.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, ".yaml") {
				continue
			}
			month := strings.TrimSuffix(name, ".yaml")
			p, err := l.Load(ctx, a.Name(), month)
			if err != nil {
				continue
			}
			infos = append(infos, PackInfo{Airline: p.Airline, Month: p.Month, Version: p.Version})
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Airline != infos[j].Airline {
			return infos[i].Airline < infos[j].Airline
		}
		return infos[i].Month < infos[j].Month
	})
	return infos, nil
}
