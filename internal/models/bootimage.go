package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// SectorSize is the fixed size of a boot sector image.
const SectorSize = 512

// BootSignature is the two-byte marker expected at the end of a boot sector.
var BootSignature = [2]byte{0x55, 0xAA}

// BootImage holds exactly one boot sector. The length invariant is carried
// by the type; construct values through NewBootImage or LoadBootImage.
type BootImage [SectorSize]byte

// ImageSizeError reports a payload whose length is not SectorSize.
type ImageSizeError struct {
	Path string
	Size int
}

func (e *ImageSizeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("boot image %s is %d bytes, expected %d", e.Path, e.Size, SectorSize)
	}
	return fmt.Sprintf("boot image is %d bytes, expected %d", e.Size, SectorSize)
}

func (e *ImageSizeError) FailureKind() FailureKind { return SizeMismatch }

// ImageIOError reports a boot image file that could not be read.
type ImageIOError struct {
	Path string
	Err  error
}

func (e *ImageIOError) Error() string {
	return fmt.Sprintf("read boot image %s: %v", e.Path, e.Err)
}

func (e *ImageIOError) Unwrap() error { return e.Err }

func (e *ImageIOError) FailureKind() FailureKind { return IOFailure }

// NewBootImage copies data into a BootImage. Payloads of any other length
// are rejected, never truncated or padded.
func NewBootImage(data []byte) (BootImage, error) {
	var image BootImage
	if len(data) != SectorSize {
		return image, &ImageSizeError{Size: len(data)}
	}
	copy(image[:], data)
	return image, nil
}

// LoadBootImage reads and validates a boot image file.
func LoadBootImage(path string) (BootImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BootImage{}, &ImageIOError{Path: path, Err: err}
	}
	image, err := NewBootImage(data)
	if err != nil {
		return BootImage{}, &ImageSizeError{Path: path, Size: len(data)}
	}
	return image, nil
}

// HasSignature reports whether bytes 510-511 hold the boot signature.
func (b BootImage) HasSignature() bool {
	return b[SectorSize-2] == BootSignature[0] && b[SectorSize-1] == BootSignature[1]
}

// Bytes returns a copy of the image contents.
func (b BootImage) Bytes() []byte {
	out := make([]byte, SectorSize)
	copy(out, b[:])
	return out
}

// Checksum returns the hex encoded SHA-256 of the image.
func (b BootImage) Checksum() string {
	sum := sha256.Sum256(b[:])
	return hex.EncodeToString(sum[:])
}
