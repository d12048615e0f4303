package installer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/safety"
)

// ErrCancelled is returned when the operator declines a write.
var ErrCancelled = errors.New("write cancelled by operator")

// WriteError reports a failed or cancelled direct write.
type WriteError struct {
	Kind   models.FailureKind
	Target string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Kind == models.SafetyCancelled {
		return fmt.Sprintf("write to %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("write boot sector to %s: %v", e.Target, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) FailureKind() models.FailureKind { return e.Kind }

// Confirmer decides whether a target may be overwritten.
type Confirmer interface {
	Confirm(target string, tier safety.Tier) bool
}

// DirectWriter writes a boot image to sector 0 of a file or device without
// going through a generated installer.
type DirectWriter struct {
	Gate   Confirmer
	Logger *slog.Logger
}

// Write asks the gate for confirmation and then writes image at offset 0
// of target. Existing contents past the first sector are preserved.
func (w *DirectWriter) Write(image models.BootImage, target string, tier safety.Tier) error {
	logger := logging.Ensure(w.Logger).With("component", "direct-writer", "target", target)

	if w.Gate == nil || !w.Gate.Confirm(target, tier) {
		logger.Info("write declined", "tier", tier.String())
		return &WriteError{Kind: models.SafetyCancelled, Target: target, Err: ErrCancelled}
	}

	// Device paths must already exist.
	flags := os.O_WRONLY
	if !safety.IsPhysicalDrive(target) {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return &WriteError{Kind: models.IOFailure, Target: target, Err: err}
		}
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		return &WriteError{Kind: models.IOFailure, Target: target, Err: err}
	}

	n, writeErr := file.WriteAt(image[:], 0)
	closeErr := file.Close()
	if writeErr != nil || closeErr != nil {
		return &WriteError{Kind: models.IOFailure, Target: target, Err: errors.Join(writeErr, closeErr)}
	}
	if n != models.SectorSize {
		return &WriteError{Kind: models.IOFailure, Target: target, Err: fmt.Errorf("wrote %d of %d bytes", n, models.SectorSize)}
	}

	logger.Info("boot sector written", "sha256", image.Checksum())
	return nil
}
