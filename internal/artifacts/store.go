package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store records metadata for artifacts already written under a Layout.
// Each artifact gets a sibling <file>.json document.
type Store struct {
	Layout Layout
	// Now defaults to time.Now.
	Now func() time.Time
}

// Record hashes the file at path and writes its metadata document.
func (s *Store) Record(path string, kind Kind, variantID string, metadata map[string]any) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("artifact path is required")
	}

	file, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return Artifact{}, fmt.Errorf("hash artifact %s: %w", path, err)
	}

	artifact := Artifact{
		ID:        uuid.NewString(),
		Kind:      kind,
		VariantID: variantID,
		Path:      path,
		Size:      size,
		Checksum:  hex.EncodeToString(hash.Sum(nil)),
		CreatedAt: s.now(),
		Metadata:  cloneMetadata(metadata),
	}

	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return Artifact{}, err
	}
	if err := os.WriteFile(metadataPath(path), payload, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write artifact metadata: %w", err)
	}
	return artifact, nil
}

// List returns every recorded artifact below the layout, sorted by path.
func (s *Store) List() ([]Artifact, error) {
	var out []Artifact
	for _, dir := range []string{s.Layout.BinaryDir(), s.Layout.ExecutableDir(), s.Layout.ImageDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, err
			}
			var artifact Artifact
			if err := json.Unmarshal(data, &artifact); err != nil {
				return nil, fmt.Errorf("decode %s: %w", entry.Name(), err)
			}
			out = append(out, artifact)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Remove deletes the artifact file and its metadata document.
func (s *Store) Remove(artifact Artifact) error {
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(metadataPath(artifact.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func metadataPath(path string) string {
	return path + ".json"
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
