package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/toolchain"
)

// TestOutcome is the result of one bounded emulator run.
type TestOutcome struct {
	VariantID string
	RunID     string
	Success   bool
	Message   string

	// Unavailable is set when the emulator or image utility is missing.
	Unavailable bool
	Missing     []toolchain.Name

	SignatureMissing bool
	TimedOut         bool
	ExitCode         int
	Elapsed          time.Duration
	Parameters       models.TestParameters
}

// Harness boots a boot image in a throwaway emulator disk.
type Harness struct {
	Runner toolchain.Runner
	Tools  toolchain.Availability
	// TempRoot is the parent of per-run directories. Empty means os.TempDir.
	TempRoot string
	Logger   *slog.Logger

	// EmulatorStdout and EmulatorStderr receive the emulator's output.
	EmulatorStdout io.Writer
	EmulatorStderr io.Writer
}

// RunTest writes image to sector 0 of a fresh raw disk and boots it. A
// timeout ends the observation window and counts as success. The run
// directory is removed on every return path.
func (h *Harness) RunTest(ctx context.Context, image models.BootImage, variantID string, params models.TestParameters) TestOutcome {
	outcome := TestOutcome{VariantID: variantID, RunID: uuid.NewString(), Parameters: params}
	logger := logging.Ensure(h.Logger).With("component", "harness", "variant", variantID, "run_id", outcome.RunID)

	if !image.HasSignature() {
		outcome.SignatureMissing = true
		logger.Warn("boot signature missing, continuing", "sha256", image.Checksum())
	}

	if missing := h.Tools.Missing(toolchain.Emulator, toolchain.ImageUtility); len(missing) > 0 {
		outcome.Unavailable = true
		outcome.Missing = missing
		outcome.Message = fmt.Sprintf("test unavailable: %s not found", joinNames(missing))
		logger.Warn("test unavailable", "missing", joinNames(missing))
		return outcome
	}

	runDir, err := os.MkdirTemp(h.TempRoot, "mbrlab-"+variantID+"-*")
	if err != nil {
		return failed(outcome, fmt.Sprintf("create run directory: %v", err))
	}
	defer func() {
		if removeErr := os.RemoveAll(runDir); removeErr != nil {
			logger.Warn("failed to remove run directory", "dir", runDir, "error", removeErr)
		}
	}()

	diskPath := filepath.Join(runDir, variantID+"_test.img")
	disks := &DiskImager{Runner: h.Runner, Path: h.Tools.Path(toolchain.ImageUtility)}
	if err := disks.Create(ctx, diskPath, params.DiskSizeMB); err != nil {
		return failed(outcome, err.Error())
	}
	if err := WriteSector0(diskPath, image); err != nil {
		return failed(outcome, err.Error())
	}

	timeout := time.Duration(params.TimeoutSeconds) * time.Second
	inv := toolchain.Invocation{
		Path:    h.Tools.Path(toolchain.Emulator),
		Args:    EmulatorArgs(diskPath, variantID, params),
		Dir:     runDir,
		Timeout: timeout,
		Stdout:  h.EmulatorStdout,
		Stderr:  h.EmulatorStderr,
	}
	logger.Info("starting emulator",
		"disk", diskPath,
		"memory_mb", params.MemoryMB,
		"snapshot", params.Snapshot,
		"isolated", params.Isolated,
		"timeout", timeout,
	)

	result, err := h.Runner.Run(ctx, inv)
	outcome.Elapsed = result.Elapsed
	outcome.ExitCode = result.ExitCode
	if err != nil {
		var startErr *toolchain.StartError
		if errors.As(err, &startErr) {
			return failed(outcome, fmt.Sprintf("could not launch emulator: %v", err))
		}
		return failed(outcome, fmt.Sprintf("emulator run interrupted: %v", err))
	}

	outcome.Success = true
	switch {
	case result.TimedOut:
		outcome.TimedOut = true
		outcome.Message = fmt.Sprintf("test window of %s completed, emulator terminated", timeout)
	case result.ExitCode != 0:
		outcome.Message = fmt.Sprintf("emulator exited with code %d after %s", result.ExitCode, result.Elapsed.Round(time.Millisecond))
	default:
		outcome.Message = fmt.Sprintf("emulator closed after %s", result.Elapsed.Round(time.Millisecond))
	}
	logger.Info("test completed", "timed_out", outcome.TimedOut, "exit_code", outcome.ExitCode, "elapsed", outcome.Elapsed)
	return outcome
}

// EmulatorArgs builds the emulator command line for a raw boot disk.
func EmulatorArgs(diskPath, variantID string, params models.TestParameters) []string {
	memory := params.MemoryMB
	if memory <= 0 {
		memory = 32
	}
	args := []string{
		"-drive", fmt.Sprintf("file=%s,format=raw,index=0,media=disk", escapeDriveOption(diskPath)),
		"-m", fmt.Sprintf("%dM", memory),
	}
	if params.Snapshot {
		args = append(args, "-snapshot")
	}
	if params.Isolated {
		args = append(args, "-nic", "none")
	}
	return append(args, "-vga", "std", "-name", "MBR Test - "+variantID)
}

// escapeDriveOption doubles commas, which separate -drive suboptions.
func escapeDriveOption(value string) string {
	return strings.ReplaceAll(value, ",", ",,")
}

func failed(outcome TestOutcome, message string) TestOutcome {
	outcome.Success = false
	outcome.Message = message
	return outcome
}

func joinNames(names []toolchain.Name) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, string(name))
	}
	return strings.Join(parts, ", ")
}
