package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults, and validates a manifest file. YAML and JSON
// are accepted; unknown fields are rejected.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}

	m, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Parse decodes manifest bytes, applies defaults, and validates.
// JSON input decodes through the YAML path since YAML is a superset.
func Parse(raw []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// SupportedExtension reports whether the path looks like a manifest
// file by extension.
func SupportedExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
