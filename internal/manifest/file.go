// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk manifest layout shared by YAML and JSON.
type fileFormat struct {
	Build   string   `yaml:"build" json:"build"`
	Stamp   string   `yaml:"stamp" json:"stamp"`
	Shell   string   `yaml:"shell" json:"shell"`
	Offline string   `yaml:"offline" json:"offline"`
	Assets  []string `yaml:"assets" json:"assets"`
}

// Load reads a manifest file. The format is chosen by extension:
// .yaml/.yml or .json. Unknown fields are rejected.
func Load(path string) (*Manifest, error) {
	path = filepath.Clean(path)
	// #nosec G304 -- manifest path is provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var ff fileFormat
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&ff); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ff); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s (yaml or json)", ext)
	}

	return ff.toManifest()
}

func (ff fileFormat) toManifest() (*Manifest, error) {
	var stamp time.Time
	if ff.Stamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ff.Stamp)
		if err != nil {
			return nil, fmt.Errorf("parse manifest stamp: %w", err)
		}
		stamp = parsed
	}
	return New(ff.Build, stamp, ff.Shell, ff.Offline, ff.Assets)
}

// MarshalJSON encodes the manifest in the same layout Load accepts.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileFormat{
		Build:   m.build,
		Stamp:   m.stamp.Format(time.RFC3339Nano),
		Shell:   m.shell,
		Offline: m.offline,
		Assets:  m.assets,
	})
}

// Parse decodes a JSON manifest produced by MarshalJSON.
func Parse(data []byte) (*Manifest, error) {
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return ff.toManifest()
}
