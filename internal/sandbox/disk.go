package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/toolchain"
)

// DiskImager creates raw, header-less disk images with qemu-img.
type DiskImager struct {
	Runner toolchain.Runner
	// Path is the resolved qemu-img executable.
	Path string
}

// Create makes a raw disk of sizeMB mebibytes at path.
func (d *DiskImager) Create(ctx context.Context, path string, sizeMB int) error {
	if d.Path == "" {
		return errors.New("image utility not found")
	}
	if sizeMB <= 0 {
		sizeMB = models.DefaultDiskSizeMB
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create disk directory for %q: %w", path, err)
	}

	inv := toolchain.Invocation{
		Path: d.Path,
		Args: []string{"create", "-f", "raw", path, fmt.Sprintf("%dM", sizeMB)},
	}
	result, err := d.Runner.Run(ctx, inv)
	if err != nil {
		return fmt.Errorf("create disk with qemu-img: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("create disk with qemu-img: exit status %d (output: %s)", result.ExitCode, result.Diagnostic())
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("qemu-img reported success but %q is missing: %w", path, err)
	}
	return nil
}

// WriteSector0 overwrites the first sector of the disk at path with image.
// The rest of the disk is left untouched.
func WriteSector0(path string, image models.BootImage) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open disk %q: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close disk %q: %w", path, closeErr))
		}
	}()

	n, err := file.WriteAt(image[:], 0)
	if err != nil {
		return fmt.Errorf("write sector 0 of %q: %w", path, err)
	}
	if n != models.SectorSize {
		return fmt.Errorf("write sector 0 of %q: wrote %d of %d bytes", path, n, models.SectorSize)
	}
	return nil
}

// ReadSector0 returns the first sector of the disk at path.
func ReadSector0(path string) (models.BootImage, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.BootImage{}, fmt.Errorf("open disk %q: %w", path, err)
	}
	defer file.Close()

	var image models.BootImage
	if _, err := io.ReadFull(file, image[:]); err != nil {
		return models.BootImage{}, fmt.Errorf("read sector 0 of %q: %w", path, err)
	}
	return image, nil
}
