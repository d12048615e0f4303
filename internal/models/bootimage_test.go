package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewBootImageRejectsOtherLengths(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 511, 513, 1024} {
		_, err := NewBootImage(make([]byte, size))
		var sizeErr *ImageSizeError
		if !errors.As(err, &sizeErr) || sizeErr.Size != size {
			t.Fatalf("NewBootImage(%d bytes) error = %v, want ImageSizeError", size, err)
		}
		if KindOf(err) != SizeMismatch {
			t.Fatalf("KindOf() = %q, want %q", KindOf(err), SizeMismatch)
		}
	}
}

func TestBootImageSignature(t *testing.T) {
	t.Parallel()

	data := make([]byte, SectorSize)
	data[510], data[511] = 0x55, 0xAA
	image, err := NewBootImage(data)
	if err != nil {
		t.Fatalf("NewBootImage() error = %v", err)
	}
	if !image.HasSignature() {
		t.Fatal("expected signature")
	}

	image[510], image[511] = 0, 0
	if image.HasSignature() {
		t.Fatal("zeroed trailing bytes reported as signed")
	}
}

func TestBootImageCopiesInput(t *testing.T) {
	t.Parallel()

	data := make([]byte, SectorSize)
	image, _ := NewBootImage(data)
	data[0] = 0xFF
	if image[0] != 0 {
		t.Fatal("image aliases the input slice")
	}

	out := image.Bytes()
	out[1] = 0xFF
	if image[1] != 0 {
		t.Fatal("Bytes() aliases the image")
	}
}

func TestLoadBootImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.bin")
	if err := os.WriteFile(good, make([]byte, SectorSize), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadBootImage(good); err != nil {
		t.Fatalf("LoadBootImage() error = %v", err)
	}

	short := filepath.Join(dir, "short.bin")
	if err := os.WriteFile(short, make([]byte, 200), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadBootImage(short)
	var sizeErr *ImageSizeError
	if !errors.As(err, &sizeErr) || sizeErr.Path != short {
		t.Fatalf("LoadBootImage(short) error = %v", err)
	}

	_, err = LoadBootImage(filepath.Join(dir, "absent.bin"))
	if !IsKind(err, IOFailure) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadBootImage(absent) error = %v", err)
	}
}

func TestChecksumIsStable(t *testing.T) {
	t.Parallel()

	var a, b BootImage
	if a.Checksum() != b.Checksum() || len(a.Checksum()) != 64 {
		t.Fatalf("Checksum() = %q", a.Checksum())
	}
	b[0] = 1
	if a.Checksum() == b.Checksum() {
		t.Fatal("different images share a checksum")
	}
}

func TestParseSafetyClass(t *testing.T) {
	t.Parallel()

	if got, err := ParseSafetyClass(" Destructive "); err != nil || got != SafetyDestructive {
		t.Fatalf("ParseSafetyClass() = %q, %v", got, err)
	}
	if _, err := ParseSafetyClass("harmless"); err == nil {
		t.Fatal("ParseSafetyClass(harmless) error = nil")
	}
	if KindOf(errors.New("plain")) != "" || IsKind(nil, IOFailure) {
		t.Fatal("unclassified errors must have no kind")
	}
}
