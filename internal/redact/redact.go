// Package redact scrubs personally identifying information from text
// bound for LLM providers and from structured log fields. Redacted values
// are replaced by short content hashes so correlated records stay
// correlatable without exposing the original value.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// sensitiveFields are log field names whose values are hashed before
// emission, regardless of content.
var sensitiveFields = map[string]bool{
	"email":    true,
	"name":     true,
	"pilot_id": true,
}

// emailRe matches RFC-casual email addresses.
var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// employeeIDRe matches airline employee/pilot identifiers of the common
// "one-to-three letters + five-to-seven digits" shape (e.g. U123456).
var employeeIDRe = regexp.MustCompile(`\b[A-Z]{1,3}\d{5,7}\b`)

// Hash returns a short stable digest for a sensitive value.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// Scrubber replaces PII in free text. The zero value scrubs pattern-based
// PII (emails, employee ids); AddValue registers exact strings such as the
// pilot id and profile name from the request context. A Scrubber is shared
// across concurrent requests, so the value set is mutex-guarded.
type Scrubber struct {
	mu     sync.RWMutex
	seen   map[string]bool
	values []string
}

// NewScrubber returns a scrubber seeded with the given exact values.
// Empty and very short values are ignored to avoid shredding ordinary
// words.
func NewScrubber(values ...string) *Scrubber {
	s := &Scrubber{}
	for _, v := range values {
		s.AddValue(v)
	}
	return s
}

// AddValue registers an exact string to scrub. Duplicates are ignored.
func (s *Scrubber) AddValue(v string) {
	if len(v) < 3 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[v] {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	s.seen[v] = true
	s.values = append(s.values, v)
}

// Scrub replaces PII in text with hashed placeholders.
func (s *Scrubber) Scrub(text string) string {
	out := emailRe.ReplaceAllStringFunc(text, func(m string) string {
		return "[email:" + Hash(m) + "]"
	})
	out = employeeIDRe.ReplaceAllStringFunc(out, func(m string) string {
		return "[id:" + Hash(m) + "]"
	})
	s.mu.RLock()
	values := s.values
	s.mu.RUnlock()
	for _, v := range values {
		out = strings.ReplaceAll(out, v, "[redacted:"+Hash(v)+"]")
	}
	return out
}

// Field returns a zap field, hashing the value when the key names a
// sensitive field. Use this instead of zap.String for any field that may
// carry identity data.
func Field(key, value string) zap.Field {
	if sensitiveFields[key] {
		return zap.String(key, Hash(value))
	}
	return zap.String(key, value)
}

// SensitiveField reports whether values under this key must be hashed.
func SensitiveField(key string) bool {
	return sensitiveFields[key]
}
