// Package manifest defines fetch job manifests.
//
// A manifest describes one retrieval job: the listing prefix to walk,
// selection patterns, the date range, and download behavior. Manifests
// are YAML or JSON files validated on load.
package manifest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datahaul/histvision/pkg/match"
)

// Manifest is a fetch job definition.
type Manifest struct {
	// Prefix is the listing prefix to walk (e.g.
	// "data/spot/daily/klines/BTCUSDT/1d/"). When empty, walk
	// prefixes derive from the include patterns.
	Prefix string `yaml:"prefix" json:"prefix"`

	// Match narrows walked keys to the file list to download.
	Match MatchSpec `yaml:"match,omitempty" json:"match,omitempty"`

	// Range filters files by filename date.
	Range RangeSpec `yaml:"range,omitempty" json:"range,omitempty"`

	// Download configures fetch behavior.
	Download DownloadSpec `yaml:"download,omitempty" json:"download,omitempty"`

	// Extract optionally unpacks fetched archives.
	Extract ExtractSpec `yaml:"extract,omitempty" json:"extract,omitempty"`

	// Provider overrides the listing endpoint configuration.
	Provider ProviderSpec `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// MatchSpec holds include/exclude glob patterns.
type MatchSpec struct {
	Includes []string `yaml:"includes,omitempty" json:"includes,omitempty"`
	Excludes []string `yaml:"excludes,omitempty" json:"excludes,omitempty"`
}

// RangeSpec holds optional inclusive date bounds (ISO 8601 dates).
type RangeSpec struct {
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`
}

// DownloadSpec configures the download manager.
type DownloadSpec struct {
	// Destination is the local directory payloads land in.
	Destination string `yaml:"destination,omitempty" json:"destination,omitempty"`

	// Concurrency bounds in-flight fetches. Default: 5.
	Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`

	// Retries is the per-file retry budget. Default: 3.
	// Explicit zero disables retries, so the field is a pointer.
	Retries *int `yaml:"retries,omitempty" json:"retries,omitempty"`

	// VerifyChecksum enables companion digest verification.
	// Default: true.
	VerifyChecksum *bool `yaml:"verify_checksum,omitempty" json:"verify_checksum,omitempty"`

	// RateLimit is the maximum requests per second. Zero: unlimited.
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
}

// ExtractSpec configures post-download extraction.
type ExtractSpec struct {
	Enabled bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// ProviderSpec overrides listing endpoint configuration.
type ProviderSpec struct {
	BaseURL        string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	DownloadPrefix string `yaml:"download_prefix,omitempty" json:"download_prefix,omitempty"`
}

// Validation errors.
var (
	ErrMissingScope = errors.New("manifest: prefix or include patterns required")
	ErrInvalidRange = errors.New("manifest: invalid date range")
)

// ApplyDefaults fills optional fields with their defaults.
func (m *Manifest) ApplyDefaults() {
	if m.Download.Destination == "" {
		m.Download.Destination = "downloads"
	}
	if m.Download.Concurrency <= 0 {
		m.Download.Concurrency = 5
	}
	if m.Download.Retries == nil {
		retries := 3
		m.Download.Retries = &retries
	}
	if m.Download.VerifyChecksum == nil {
		verify := true
		m.Download.VerifyChecksum = &verify
	}
}

// Validate checks the manifest for structural problems. A manifest
// needs a walk scope: an explicit prefix, or include patterns the
// prefix can be derived from.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Prefix) == "" && len(m.Match.Includes) == 0 {
		return ErrMissingScope
	}

	start, err := m.StartDate()
	if err != nil {
		return err
	}
	end, err := m.EndDate()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, m.Range.End, m.Range.Start)
	}

	if _, err := match.New(match.Config{Includes: m.Match.Includes, Excludes: m.Match.Excludes}); err != nil {
		return err
	}
	return nil
}

// StartDate returns the parsed start bound; zero when unset.
func (m *Manifest) StartDate() (time.Time, error) {
	return parseBound(m.Range.Start, "start")
}

// EndDate returns the parsed end bound; zero when unset.
func (m *Manifest) EndDate() (time.Time, error) {
	return parseBound(m.Range.End, "end")
}

func parseBound(s, name string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := match.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidRange, name, err)
	}
	return t, nil
}
