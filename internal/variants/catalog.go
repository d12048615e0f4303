package variants

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cochaviz/mbrlab/internal/models"
)

//go:embed assets/catalog.yaml
var embeddedCatalog []byte

type catalogDocument struct {
	Variants []variantEntry `yaml:"variants"`
}

type variantEntry struct {
	ID          string    `yaml:"id"`
	DisplayName string    `yaml:"display_name"`
	Description string    `yaml:"description"`
	Safety      string    `yaml:"safety"`
	Category    string    `yaml:"category"`
	Source      string    `yaml:"source"`
	Features    []string  `yaml:"features"`
	Test        testEntry `yaml:"test"`
	Warning     string    `yaml:"warning"`
}

type testEntry struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	MemoryMB       int  `yaml:"memory_mb"`
	DiskSizeMB     int  `yaml:"disk_size_mb"`
	Snapshot       bool `yaml:"snapshot"`
	Isolated       bool `yaml:"isolated"`
}

// UnknownVariantError reports an identifier that is not in the catalog.
type UnknownVariantError struct {
	ID    string
	Known []string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown variant %q (available: %s)", e.ID, strings.Join(e.Known, ", "))
}

func (e *UnknownVariantError) FailureKind() models.FailureKind { return models.UnknownVariant }

// Catalog is the read-only registry of known variants.
type Catalog struct {
	byID  map[string]models.Variant
	order []string
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	catalog, err := Parse(embeddedCatalog)
	if err != nil {
		panic(fmt.Sprintf("variants: embedded catalog is invalid: %v", err))
	}
	return catalog
}

// Parse builds a Catalog from a YAML document.
func Parse(data []byte) (*Catalog, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc catalogDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Variants) == 0 {
		return nil, errors.New("catalog has no variants")
	}

	catalog := &Catalog{byID: make(map[string]models.Variant, len(doc.Variants))}
	for _, entry := range doc.Variants {
		variant, err := entry.toVariant()
		if err != nil {
			return nil, err
		}
		if _, exists := catalog.byID[variant.ID]; exists {
			return nil, fmt.Errorf("duplicate variant id %q", variant.ID)
		}
		catalog.byID[variant.ID] = variant
		catalog.order = append(catalog.order, variant.ID)
	}
	return catalog, nil
}

func (e variantEntry) toVariant() (models.Variant, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return models.Variant{}, errors.New("variant id is required")
	}
	safety, err := models.ParseSafetyClass(e.Safety)
	if err != nil {
		return models.Variant{}, fmt.Errorf("variant %s: %w", id, err)
	}
	source := strings.TrimSpace(e.Source)
	if source == "" {
		source = filepath.ToSlash(filepath.Join(id, "boot.asm"))
	}

	diskSize := e.Test.DiskSizeMB
	if diskSize <= 0 {
		diskSize = models.DefaultDiskSizeMB
	}

	return models.Variant{
		ID:          id,
		DisplayName: e.DisplayName,
		Description: e.Description,
		Safety:      safety,
		Category:    e.Category,
		SourceFile:  source,
		Features:    append([]string(nil), e.Features...),
		Warning:     strings.TrimSpace(e.Warning),
		Test: models.TestParameters{
			TimeoutSeconds: e.Test.TimeoutSeconds,
			MemoryMB:       e.Test.MemoryMB,
			DiskSizeMB:     diskSize,
			Snapshot:       e.Test.Snapshot,
			Isolated:       e.Test.Isolated,
		},
	}, nil
}

// Get returns the variant registered under id.
func (c *Catalog) Get(id string) (models.Variant, error) {
	variant, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return models.Variant{}, &UnknownVariantError{ID: id, Known: c.IDs()}
	}
	variant.Features = append([]string(nil), variant.Features...)
	return variant, nil
}

// List returns every variant in catalog order.
func (c *Catalog) List() []models.Variant {
	out := make([]models.Variant, 0, len(c.order))
	for _, id := range c.order {
		variant, _ := c.Get(id)
		out = append(out, variant)
	}
	return out
}

// IDs returns the known identifiers, sorted.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// SourcePath resolves a variant's source file against root.
func SourcePath(root string, variant models.Variant) string {
	return filepath.Join(root, filepath.FromSlash(variant.SourceFile))
}
