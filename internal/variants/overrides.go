package variants

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cochaviz/mbrlab/internal/models"
)

// Overrides replaces individual test parameters. Nil fields keep the
// variant's default.
type Overrides struct {
	TimeoutSeconds *int  `yaml:"timeout_seconds,omitempty"`
	MemoryMB       *int  `yaml:"memory_mb,omitempty"`
	DiskSizeMB     *int  `yaml:"disk_size_mb,omitempty"`
	Snapshot       *bool `yaml:"snapshot,omitempty"`
	Isolated       *bool `yaml:"isolated,omitempty"`
}

// Apply returns params with every set field of o applied.
func (o Overrides) Apply(params models.TestParameters) models.TestParameters {
	if o.TimeoutSeconds != nil {
		params.TimeoutSeconds = *o.TimeoutSeconds
	}
	if o.MemoryMB != nil {
		params.MemoryMB = *o.MemoryMB
	}
	if o.DiskSizeMB != nil {
		params.DiskSizeMB = *o.DiskSizeMB
	}
	if o.Snapshot != nil {
		params.Snapshot = *o.Snapshot
	}
	if o.Isolated != nil {
		params.Isolated = *o.Isolated
	}
	return params
}

// Merge returns o with every set field of next applied on top.
func (o Overrides) Merge(next Overrides) Overrides {
	if next.TimeoutSeconds != nil {
		o.TimeoutSeconds = next.TimeoutSeconds
	}
	if next.MemoryMB != nil {
		o.MemoryMB = next.MemoryMB
	}
	if next.DiskSizeMB != nil {
		o.DiskSizeMB = next.DiskSizeMB
	}
	if next.Snapshot != nil {
		o.Snapshot = next.Snapshot
	}
	if next.Isolated != nil {
		o.Isolated = next.Isolated
	}
	return o
}

// Validate rejects values the emulator cannot run with.
func (o Overrides) Validate() error {
	if o.TimeoutSeconds != nil && *o.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative (got %d)", *o.TimeoutSeconds)
	}
	if o.MemoryMB != nil && *o.MemoryMB <= 0 {
		return fmt.Errorf("memory_mb must be positive (got %d)", *o.MemoryMB)
	}
	if o.DiskSizeMB != nil && *o.DiskSizeMB <= 0 {
		return fmt.Errorf("disk_size_mb must be positive (got %d)", *o.DiskSizeMB)
	}
	return nil
}

// Profile holds test parameter overrides for all variants and for
// individual variants. Per-variant entries win over the defaults entry.
type Profile struct {
	Defaults Overrides            `yaml:"defaults"`
	Variants map[string]Overrides `yaml:"variants"`
}

// For returns the overrides that apply to id.
func (p Profile) For(id string) Overrides {
	return p.Defaults.Merge(p.Variants[id])
}

// LoadProfile reads a YAML test profile. Variant keys must exist in catalog.
func LoadProfile(path string, catalog *Catalog) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read test profile: %w", err)
	}
	return ParseProfile(data, catalog)
}

// ParseProfile decodes a YAML test profile.
func ParseProfile(data []byte, catalog *Catalog) (Profile, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var profile Profile
	if err := decoder.Decode(&profile); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("decode test profile: %w", err)
	}
	if err := profile.Defaults.Validate(); err != nil {
		return Profile{}, fmt.Errorf("test profile defaults: %w", err)
	}
	for id, overrides := range profile.Variants {
		if catalog != nil {
			if _, err := catalog.Get(id); err != nil {
				return Profile{}, fmt.Errorf("test profile: %w", err)
			}
		}
		if err := overrides.Validate(); err != nil {
			return Profile{}, fmt.Errorf("test profile variant %s: %w", id, err)
		}
	}
	return profile, nil
}

// For returns o for every variant, so a single set of overrides can be
// used wherever a Profile is accepted.
func (o Overrides) For(string) Overrides {
	return o
}
