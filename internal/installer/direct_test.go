package installer

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/safety"
)

func TestDirectWriteAfterConfirmation(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "disk.img")
	existing := bytes.Repeat([]byte{0xCC}, 2*models.SectorSize)
	if err := os.WriteFile(target, existing, 0o644); err != nil {
		t.Fatalf("write target: %v", err)
	}

	gate := &safety.Gate{Prompter: &safety.Scripted{Responses: []string{safety.HighTierPhrase}}}
	writer := &DirectWriter{Gate: gate, Logger: logging.Discard()}
	image := signedImage(t)

	if err := writer.Write(image, target, safety.TierHigh); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if len(data) != 2*models.SectorSize {
		t.Fatalf("target length = %d, want %d", len(data), 2*models.SectorSize)
	}
	if !bytes.Equal(data[:models.SectorSize], image[:]) {
		t.Fatal("sector 0 does not match the image")
	}
	if !bytes.Equal(data[models.SectorSize:], existing[models.SectorSize:]) {
		t.Fatal("data after sector 0 was modified")
	}
}

func TestDirectWriteDeclined(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "disk.img")
	gate := &safety.Gate{Prompter: &safety.Scripted{Responses: []string{"yes"}}}
	writer := &DirectWriter{Gate: gate, Logger: logging.Discard()}

	err := writer.Write(signedImage(t), target, safety.TierHigh)
	if models.KindOf(err) != models.SafetyCancelled {
		t.Fatalf("Write() error = %v, want SafetyCancelled", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatalf("target created despite cancellation (stat error = %v)", statErr)
	}
}

func TestDirectWriteCreatesMissingFile(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "nested", "out.img")
	writer := &DirectWriter{Gate: &safety.Gate{}, Logger: logging.Discard()}

	if err := writer.Write(signedImage(t), target, safety.TierNone); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	info, err := os.Stat(target)
	if err != nil || info.Size() != models.SectorSize {
		t.Fatalf("stat target = %v, %v", info, err)
	}
}

func TestDirectWriteNeverCreatesDevicePaths(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("device path fragments are unix paths")
	}

	// The path matches the /dev/sd fragment but does not exist.
	root := t.TempDir()
	target := root + "/dev/sdz"
	if !safety.IsPhysicalDrive(target) {
		t.Fatalf("IsPhysicalDrive(%q) = false", target)
	}

	gate := &safety.Gate{Prompter: &safety.Scripted{Responses: []string{safety.HighTierPhrase}}}
	writer := &DirectWriter{Gate: gate, Logger: logging.Discard()}

	err := writer.Write(signedImage(t), target, safety.TierHigh)
	if models.KindOf(err) != models.IOFailure {
		t.Fatalf("Write() error = %v, want IOFailure", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "dev")); !os.IsNotExist(statErr) {
		t.Fatalf("device directory created (stat error = %v)", statErr)
	}
}
