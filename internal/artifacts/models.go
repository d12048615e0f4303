package artifacts

import "time"

// Kind classifies a published artifact.
type Kind string

const (
	BootImageArtifact Kind = "boot-image" // Raw 512-byte boot sector
	InstallerArtifact Kind = "installer"  // Native installer executable
	ManifestArtifact  Kind = "manifest"   // Side-by-side elevation manifest
	DiskArtifact      Kind = "disk"       // Standalone raw test disk
)

// Artifact describes a file written under the distribution layout.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	VariantID string    `json:"variant_id,omitempty"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`

	Metadata map[string]any `json:"metadata,omitempty"`
}
