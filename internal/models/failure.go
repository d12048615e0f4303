package models

import "errors"

// FailureKind classifies why an operation did not produce its result. The
// operator-facing remediation differs per kind, so kinds are never merged.
type FailureKind string

const (
	// ToolMissing means a required external tool was not located.
	ToolMissing FailureKind = "tool_missing"
	// SizeMismatch means a boot image was not exactly SectorSize bytes.
	SizeMismatch FailureKind = "size_mismatch"
	// ToolFailure means an external tool exited with a non-zero status.
	ToolFailure FailureKind = "tool_failure"
	// IOFailure means a file could not be created, read or written.
	IOFailure FailureKind = "io_failure"
	// SafetyCancelled means the operator declined a confirmation prompt.
	SafetyCancelled FailureKind = "safety_cancelled"
	// UnknownVariant means the identifier is not in the catalog.
	UnknownVariant FailureKind = "unknown_variant"
	// CompilerMissing means no native compiler was located for the installer.
	CompilerMissing FailureKind = "compiler_missing"
	// CompileFailed means the native compiler rejected the generated installer.
	CompileFailed FailureKind = "compile_failed"
)

// Classified is implemented by errors that carry a FailureKind.
type Classified interface {
	error
	FailureKind() FailureKind
}

// KindOf returns the FailureKind of the first classified error in err's
// chain, or "" when none is present.
func KindOf(err error) FailureKind {
	var classified Classified
	if errors.As(err, &classified) {
		return classified.FailureKind()
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind FailureKind) bool {
	return err != nil && KindOf(err) == kind
}
