package match

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// Filename date encodings, tried in priority order. The full-date
// pattern is checked first so "2020-01-03" is never mistaken for the
// month "2020-01".
var (
	fullDatePattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	yearMonthPattern = regexp.MustCompile(`\d{4}-\d{2}`)
)

// ErrInvalidDate is returned when a range bound cannot be parsed.
var ErrInvalidDate = errors.New("invalid date value")

// ParseDate parses an ISO 8601 date or datetime range bound.
// All times are normalized to UTC for comparison.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FilterByDate returns the files whose filename date lies inside
// [start, end], preserving input order. A zero start or end leaves that
// bound open. Pure function: no hidden state, idempotent.
//
// Classification per filename, first hit wins:
//  1. A full YYYY-MM-DD date anywhere in the basename. Excluded only
//     when the date falls before start or after end (both inclusive).
//  2. A YYYY-MM year-month, interpreted as the closed interval
//     [first day, last day] of that month. Excluded only when the whole
//     interval ends before start or begins after end; any overlap with
//     the query range includes the file.
//  3. No recognizable token: unconditionally included. Un-dated entries
//     are never silently dropped.
//
// A token that matches a pattern but fails calendar validation also
// includes the file; parse failure is not grounds for exclusion.
func FilterByDate(files []string, start, end time.Time) []string {
	if start.IsZero() && end.IsZero() {
		return files
	}

	var out []string
	for _, f := range files {
		if includeByDate(path.Base(f), start, end) {
			out = append(out, f)
		}
	}
	return out
}

func includeByDate(name string, start, end time.Time) bool {
	if m := fullDatePattern.FindString(name); m != "" {
		d, err := time.Parse("2006-01-02", m)
		if err != nil {
			return true
		}
		if !start.IsZero() && d.Before(start) {
			return false
		}
		if !end.IsZero() && d.After(end) {
			return false
		}
		return true
	}

	if m := yearMonthPattern.FindString(name); m != "" {
		first, err := time.Parse("2006-01-02", m+"-01")
		if err != nil {
			return true
		}
		last := first.AddDate(0, 1, -1)

		if !start.IsZero() && last.Before(start) {
			return false
		}
		if !end.IsZero() && first.After(end) {
			return false
		}
		return true
	}

	return true
}
