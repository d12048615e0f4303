package arch

import (
	"fmt"
	"sort"
	"strings"
)

// Architecture names a QEMU system emulator target able to boot a BIOS
// boot sector.
type Architecture string

const (
	I686   Architecture = "i686"
	X86_64 Architecture = "x86_64"
)

// Default is the architecture boot sectors are tested on. Real-mode code
// runs on both, but the i386 machine is the smaller emulator.
const Default = I686

// Supported returns the full list of supported architectures.
func Supported() []Architecture {
	return []Architecture{I686, X86_64}
}

// IsValid reports whether a matches a supported architecture value.
func (a Architecture) IsValid() bool {
	switch a {
	case I686, X86_64:
		return true
	default:
		return false
	}
}

// String returns the architecture as string.
func (a Architecture) String() string {
	return string(a)
}

// Parse returns the canonical Architecture for the provided string or an error if unsupported.
func Parse(value string) (Architecture, error) {
	if arch := Normalize(value); arch != "" {
		return arch, nil
	}
	return "", fmt.Errorf("unsupported architecture %q (supported: %s)", value, strings.Join(supportedStrings(), ", "))
}

// Normalize maps a possibly ambiguous string into a canonical Architecture. Returns ""
// when the string cannot be normalized.
func Normalize(value string) Architecture {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "x86", "i386", "i486", "i586", string(I686), "386", "80386":
		return I686
	case string(X86_64), "x86-64", "amd64":
		return X86_64
	default:
		return ""
	}
}

// QEMUSystem returns the qemu-system binary suffix for the architecture.
func (a Architecture) QEMUSystem() string {
	switch a {
	case X86_64:
		return "x86_64"
	default:
		return "i386"
	}
}

// Fallback returns the other architecture able to run the same boot sector.
func (a Architecture) Fallback() Architecture {
	if a == X86_64 {
		return I686
	}
	return X86_64
}

// EmulatorCandidates returns the emulator command names probed for a, in
// order, followed by the fallback architecture's names and the absolute
// install locations used on goos.
func (a Architecture) EmulatorCandidates(goos string) []string {
	if !a.IsValid() {
		a = Default
	}
	primary := "qemu-system-" + a.QEMUSystem()
	secondary := "qemu-system-" + a.Fallback().QEMUSystem()

	if goos == "windows" {
		return []string{
			primary + ".exe",
			secondary + ".exe",
			`C:\Program Files\qemu\` + primary + ".exe",
			`C:\Program Files\qemu\` + secondary + ".exe",
		}
	}
	return []string{
		primary,
		secondary,
		"/usr/bin/" + primary,
		"/usr/local/bin/" + primary,
		"/opt/homebrew/bin/" + primary,
	}
}

func supportedStrings() []string {
	all := Supported()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}
