package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/toolchain"
)

// CompileError reports why an assembly source did not produce a boot image.
type CompileError struct {
	Kind       models.FailureKind
	Path       string
	Diagnostic string
	Err        error
}

func (e *CompileError) Error() string {
	switch e.Kind {
	case models.ToolMissing:
		return "assembler not found"
	case models.ToolFailure:
		if e.Diagnostic != "" {
			return fmt.Sprintf("assembler failed for %s: %s", e.Path, e.Diagnostic)
		}
		return fmt.Sprintf("assembler failed for %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("compile %s: %v", e.Path, e.Err)
	}
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) FailureKind() models.FailureKind { return e.Kind }

// Compiler assembles boot sector sources in flat binary mode.
type Compiler struct {
	Runner toolchain.Runner
	Tools  toolchain.Availability
	Logger *slog.Logger
}

// Compile assembles source into output and returns the resulting image.
// Output files that are not exactly one sector long are removed.
func (c *Compiler) Compile(ctx context.Context, source, output string) (models.BootImage, error) {
	logger := logging.Ensure(c.Logger).With("component", "compiler", "source", source)

	if !c.Tools.Available(toolchain.Assembler) {
		return models.BootImage{}, &CompileError{Kind: models.ToolMissing, Path: source}
	}
	if _, err := os.Stat(source); err != nil {
		return models.BootImage{}, &CompileError{Kind: models.IOFailure, Path: source, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return models.BootImage{}, &CompileError{Kind: models.IOFailure, Path: output, Err: fmt.Errorf("create output directory: %w", err)}
	}

	inv := toolchain.Invocation{
		Path: c.Tools.Path(toolchain.Assembler),
		Args: []string{source, "-f", "bin", "-o", output},
	}
	logger.Debug("assembling", "command", inv.String())

	result, err := c.Runner.Run(ctx, inv)
	if err != nil {
		return models.BootImage{}, &CompileError{Kind: models.ToolFailure, Path: source, Err: err}
	}
	if result.ExitCode != 0 {
		return models.BootImage{}, &CompileError{
			Kind:       models.ToolFailure,
			Path:       source,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("exit status %d", result.ExitCode),
		}
	}

	data, err := os.ReadFile(output)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("assembler produced no output: %w", err)
		}
		return models.BootImage{}, &CompileError{Kind: models.IOFailure, Path: output, Err: err}
	}

	image, err := models.NewBootImage(data)
	if err != nil {
		err = &models.ImageSizeError{Path: output, Size: len(data)}
		if removeErr := os.Remove(output); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove unusable output: %w", removeErr))
		}
		return models.BootImage{}, &CompileError{Kind: models.SizeMismatch, Path: output, Err: err}
	}

	logger.Debug("assembled boot image", "output", output, "sha256", image.Checksum())
	return image, nil
}
