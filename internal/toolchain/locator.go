package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/cochaviz/mbrlab/arch"
)

// Name identifies a tool the pipeline depends on.
type Name string

// Tools located on the host.
const (
	Assembler        Name = "assembler"
	Compiler         Name = "compiler"
	ResourceCompiler Name = "resource-compiler"
	Emulator         Name = "emulator"
	ImageUtility     Name = "image-utility"
)

// Tool is the lookup result for a single tool.
type Tool struct {
	Name       Name
	Found      bool
	Path       string
	Candidates []string
	// Required is false for tools only some platforms need.
	Required bool
}

// Availability is a snapshot of tool lookups. It is recomputed by every
// Locate call and never cached.
type Availability map[Name]Tool

// Available reports whether name was found.
func (a Availability) Available(name Name) bool {
	return a[name].Found
}

// Path returns the resolved path for name, or "" when it was not found.
func (a Availability) Path(name Name) string {
	return a[name].Path
}

// Missing returns the required tools that were not found, sorted by name.
func (a Availability) Missing(names ...Name) []Name {
	if len(names) == 0 {
		for name := range a {
			names = append(names, name)
		}
	}
	var missing []Name
	for _, name := range names {
		tool, ok := a[name]
		if !ok || (tool.Required && !tool.Found) {
			missing = append(missing, name)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Locator finds the assembler, native compiler, resource compiler,
// emulator and image utility on the host.
type Locator struct {
	GOOS string
	Arch arch.Architecture

	// LookPath resolves bare command names. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// Stat checks absolute fallback paths. Defaults to os.Stat.
	Stat func(name string) (os.FileInfo, error)
}

// NewLocator returns a Locator for the running platform.
func NewLocator() *Locator {
	return &Locator{GOOS: runtime.GOOS, Arch: arch.Default}
}

// Locate searches every tool's candidate list. It never installs or
// modifies anything and never fails; absence is part of the result.
func (l *Locator) Locate() Availability {
	result := Availability{}
	for _, name := range []Name{Assembler, Compiler, ResourceCompiler, Emulator, ImageUtility} {
		candidates := l.Candidates(name)
		tool := Tool{
			Name:       name,
			Candidates: candidates,
			Required:   l.required(name),
		}
		if path, ok := l.first(candidates); ok {
			tool.Found = true
			tool.Path = path
		}
		result[name] = tool
	}
	return result
}

// Candidates returns the ordered command names and fallback paths probed
// for name on the locator's platform.
func (l *Locator) Candidates(name Name) []string {
	windows := l.goos() == "windows"

	switch name {
	case Assembler:
		if windows {
			return []string{"nasm.exe", "nasm", `C:\Program Files\NASM\nasm.exe`}
		}
		return []string{"nasm", "/usr/bin/nasm", "/usr/local/bin/nasm", "/opt/homebrew/bin/nasm"}
	case Compiler:
		if windows {
			return []string{"g++.exe", "clang++.exe", "cl.exe"}
		}
		return []string{"g++", "clang++"}
	case ResourceCompiler:
		if windows {
			return []string{"windres.exe", "windres"}
		}
		return nil
	case Emulator:
		return l.Arch.EmulatorCandidates(l.goos())
	case ImageUtility:
		if windows {
			return []string{"qemu-img.exe", `C:\Program Files\qemu\qemu-img.exe`}
		}
		return []string{"qemu-img", "/usr/bin/qemu-img", "/usr/local/bin/qemu-img", "/opt/homebrew/bin/qemu-img"}
	default:
		return nil
	}
}

func (l *Locator) required(name Name) bool {
	if name == ResourceCompiler {
		return l.goos() == "windows"
	}
	return true
}

func (l *Locator) first(candidates []string) (string, bool) {
	for _, candidate := range candidates {
		if isAbsolute(candidate) {
			info, err := l.stat(candidate)
			if err == nil && !info.IsDir() {
				return candidate, true
			}
			continue
		}
		if path, err := l.lookPath(candidate); err == nil {
			return path, true
		}
	}
	return "", false
}

// isAbsolute treats drive-letter paths as absolute on every host so that
// windows candidate lists can be exercised from other platforms.
func isAbsolute(path string) bool {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return true
	}
	return len(path) >= 3 && path[1] == ':' && (path[2] == '\\' || path[2] == '/')
}

func (l *Locator) goos() string {
	if l != nil && l.GOOS != "" {
		return l.GOOS
	}
	return runtime.GOOS
}

func (l *Locator) lookPath(file string) (string, error) {
	if l.LookPath != nil {
		return l.LookPath(file)
	}
	return exec.LookPath(file)
}

func (l *Locator) stat(name string) (os.FileInfo, error) {
	if l.Stat != nil {
		return l.Stat(name)
	}
	return os.Stat(name)
}
