// Package match narrows walked object keys down to the concrete file
// list a fetch operates on: glob selection, file/directory separation,
// and filename date-range classification.
package match

import (
	"errors"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates include/exclude glob patterns against object keys.
//
// A key matches when it matches at least one include pattern (or when no
// includes are configured) and matches no exclude pattern. Safe for
// concurrent use after creation.
type Matcher struct {
	includes []string
	excludes []string
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns keys must match (at least one).
	// Empty means every key is included.
	Includes []string

	// Excludes are glob patterns keys must not match (any).
	Excludes []string
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher from the given configuration.
func New(cfg Config) (*Matcher, error) {
	for _, raw := range append(append([]string{}, cfg.Includes...), cfg.Excludes...) {
		if !doublestar.ValidatePattern(raw) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
	}
	return &Matcher{includes: cfg.Includes, excludes: cfg.Excludes}, nil
}

// Match returns true if the key passes the include/exclude patterns.
// Keys are matched as-is: object keys are opaque strings.
func (m *Matcher) Match(key string) bool {
	included := len(m.includes) == 0
	for _, p := range m.includes {
		if ok, _ := doublestar.Match(p, key); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, p := range m.excludes {
		if ok, _ := doublestar.Match(p, key); ok {
			return false
		}
	}
	return true
}

// Select returns the keys passing the matcher, preserving input order.
func (m *Matcher) Select(keys []string) []string {
	var out []string
	for _, k := range keys {
		if m.Match(k) {
			out = append(out, k)
		}
	}
	return out
}

// Files returns only concrete file keys: not directory prefixes, and
// with a file extension in the basename. This mirrors how walked keys
// are narrowed before date filtering and download.
func Files(keys []string) []string {
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(k, "/") {
			continue
		}
		if path.Ext(path.Base(k)) == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}
