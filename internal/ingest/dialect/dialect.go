// Package dialect provides the airline dialect registry for textual
// pairing formats. Each airline's bid-package text looks different; a
// Dialect knows how to cut one airline's text into pairing blocks and
// parse each block.
package dialect

import (
	"fmt"
	"sort"
	"sync"

	"vectorbid/internal/bid"
)

// Dialect parses one airline's textual pairing format.
type Dialect interface {
	// Airline returns the airline code this dialect handles (e.g. UAL).
	Airline() string

	// ParsePairings converts the full text into pairings. Errors carry
	// a *BlockError naming the offending line range when possible.
	ParsePairings(text string) ([]bid.Pairing, error)
}

// BlockError locates a parse failure inside the text.
type BlockError struct {
	StartLine int
	EndLine   int
	Err       error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("lines %d-%d: %v", e.StartLine, e.EndLine, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// Lines returns the 1-based line range the failure was observed in.
func (e *BlockError) Lines() (int, int) { return e.StartLine, e.EndLine }

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// Register adds a dialect. Called during init in each dialect package;
// registering the same airline twice panics.
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := dialects[d.Airline()]; dup {
		panic("dialect: duplicate registration for " + d.Airline())
	}
	dialects[d.Airline()] = d
}

// Lookup returns the dialect for an airline code, or nil.
func Lookup(airline string) Dialect {
	mu.RLock()
	defer mu.RUnlock()
	return dialects[airline]
}

// Airlines lists the registered airline codes, sorted.
func Airlines() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(dialects))
	for a := range dialects {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
