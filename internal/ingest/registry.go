package ingest

import (
	"sort"
	"sync"

	"vectorbid/internal/bid"
)

// Format is implemented by each file-format parser.
type Format interface {
	// Name returns the source-format tag (pdf, csv, jsonl, txt).
	Name() string

	// Sniff performs a fast check on the leading bytes and declared
	// filename. True means the format MIGHT apply (false = definitely
	// skip). Sniff must not allocate per-call state.
	Sniff(head []byte, filename string) bool

	// Priority determines sniffing order. Lower = checked first;
	// cheaper, more specific checks go first.
	Priority() int

	// Parse converts the full file into pairings.
	Parse(meta Meta, data []byte) ([]bid.Pairing, error)
}

// Registry holds registered formats sorted by priority.
type Registry struct {
	mu      sync.RWMutex
	formats []Format
	sorted  bool
}

// NewRegistry creates an empty format registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = NewRegistry()

// Default returns the global registry instance. Format packages register
// themselves into it during init.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a format to the default registry.
func Register(f Format) {
	defaultRegistry.Register(f)
}

// Register adds a format to the registry.
func (r *Registry) Register(f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats = append(r.formats, f)
	r.sorted = false
}

// Detect returns the first format whose Sniff accepts the file, or nil.
func (r *Registry) Detect(data []byte, filename string) Format {
	r.mu.Lock()
	if !r.sorted {
		sort.SliceStable(r.formats, func(i, j int) bool {
			return r.formats[i].Priority() < r.formats[j].Priority()
		})
		r.sorted = true
	}
	formats := r.formats
	r.mu.Unlock()

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	for _, f := range formats {
		if f.Sniff(head, filename) {
			return f
		}
	}
	return nil
}

// Names lists the registered format names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.formats))
	for _, f := range r.formats {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}
