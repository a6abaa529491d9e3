package match

import (
	"sort"
	"strings"
)

// DerivePrefix extracts the longest static prefix of a glob pattern,
// usable as the listing prefix for a walk. Escaped metacharacters
// (\*, \?, \[, \{) are literals and stay in the prefix.
//
// Examples:
//
//	"data/spot/**/*.zip"  → "data/spot/"
//	"*.zip"               → ""
//	"data/exact/file.zip" → "data/exact/file.zip"
func DerivePrefix(pattern string) string {
	if pattern == "" {
		return ""
	}

	metaIdx := firstUnescapedMeta(pattern)
	if metaIdx == -1 {
		return unescape(pattern)
	}
	if metaIdx == 0 {
		return ""
	}

	// Truncate to the last complete path segment so a partial segment
	// like "data/BTC" never over-narrows the listing.
	prefix := pattern[:metaIdx]
	lastSlash := strings.LastIndex(prefix, "/")
	if lastSlash < 0 {
		return ""
	}
	return unescape(prefix[:lastSlash+1])
}

// DerivePrefixes derives one prefix per pattern, drops prefixes
// subsumed by a shorter one, and sorts the survivors. An empty derived
// prefix means a full listing and subsumes everything.
func DerivePrefixes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	prefixes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		prefix := DerivePrefix(p)
		if prefix == "" {
			return []string{""}
		}
		prefixes = append(prefixes, prefix)
	}

	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) < len(prefixes[j])
	})

	kept := make([]string, 0, len(prefixes))
	for _, candidate := range prefixes {
		subsumed := false
		for _, existing := range kept {
			if strings.HasPrefix(candidate, existing) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			kept = append(kept, candidate)
		}
	}
	sort.Strings(kept)
	return kept
}

// Prefixes returns the walk prefixes derived from the include
// patterns. Empty includes mean a full listing: a single "" prefix.
func (m *Matcher) Prefixes() []string {
	if len(m.includes) == 0 {
		return []string{""}
	}
	return DerivePrefixes(m.includes)
}

func firstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			switch pattern[i+1] {
			case '*', '?', '[', '{', '\\':
				i++
				continue
			}
			continue
		}
		switch c {
		case '*', '?', '[', '{':
			return i
		}
	}
	return -1
}

func unescape(prefix string) string {
	if !strings.ContainsRune(prefix, '\\') {
		return prefix
	}

	var b strings.Builder
	b.Grow(len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '\\' && i+1 < len(prefix) {
			switch next := prefix[i+1]; next {
			case '*', '?', '[', ']', '{', '}', '\\':
				b.WriteByte(next)
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
