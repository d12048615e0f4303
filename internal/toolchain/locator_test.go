package toolchain

import (
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/cochaviz/mbrlab/arch"
)

type fakeFileInfo struct {
	name string
	dir  bool
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0o755 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

func fakeLocator(goos string, onPath map[string]string, files map[string]bool) *Locator {
	return &Locator{
		GOOS: goos,
		Arch: arch.I686,
		LookPath: func(file string) (string, error) {
			if path, ok := onPath[file]; ok {
				return path, nil
			}
			return "", errors.New("not found")
		},
		Stat: func(name string) (os.FileInfo, error) {
			if dir, ok := files[name]; ok {
				return fakeFileInfo{name: name, dir: dir}, nil
			}
			return nil, os.ErrNotExist
		},
	}
}

func TestLocatePrefersFirstCandidate(t *testing.T) {
	t.Parallel()

	locator := fakeLocator("linux", map[string]string{
		"nasm":               "/usr/bin/nasm",
		"clang++":            "/usr/bin/clang++",
		"qemu-system-x86_64": "/usr/bin/qemu-system-x86_64",
		"qemu-system-i386":   "/usr/bin/qemu-system-i386",
		"qemu-img":           "/usr/bin/qemu-img",
	}, nil)

	tools := locator.Locate()

	if got := tools.Path(Emulator); got != "/usr/bin/qemu-system-i386" {
		t.Fatalf("emulator path = %q, want i386 emulator", got)
	}
	if got := tools.Path(Compiler); got != "/usr/bin/clang++" {
		t.Fatalf("compiler path = %q, want clang++", got)
	}
	if !tools.Available(Assembler) || !tools.Available(ImageUtility) {
		t.Fatalf("expected assembler and image utility to be available: %#v", tools)
	}
	if missing := tools.Missing(); len(missing) != 0 {
		t.Fatalf("Missing() = %v, want none", missing)
	}
}

func TestLocateReportsAbsenceWithoutError(t *testing.T) {
	t.Parallel()

	tools := fakeLocator("linux", nil, nil).Locate()

	for _, name := range []Name{Assembler, Compiler, Emulator, ImageUtility} {
		if tools.Available(name) {
			t.Fatalf("%s unexpectedly available", name)
		}
		if len(tools[name].Candidates) == 0 {
			t.Fatalf("%s has no candidates", name)
		}
	}
	if tools[ResourceCompiler].Required {
		t.Fatal("resource compiler must not be required outside windows")
	}

	missing := tools.Missing(Assembler, ResourceCompiler)
	if len(missing) != 1 || missing[0] != Assembler {
		t.Fatalf("Missing() = %v, want [assembler]", missing)
	}
}

func TestLocateUsesAbsoluteFallbacks(t *testing.T) {
	t.Parallel()

	locator := fakeLocator("windows", nil, map[string]bool{
		`C:\Program Files\qemu\qemu-system-i386.exe`: false,
		`C:\Program Files\qemu\qemu-img.exe`:         false,
		`C:\Program Files\NASM\nasm.exe`:             true,
	})

	tools := locator.Locate()

	if got := tools.Path(Emulator); got != `C:\Program Files\qemu\qemu-system-i386.exe` {
		t.Fatalf("emulator path = %q", got)
	}
	if !tools.Available(ImageUtility) {
		t.Fatal("expected image utility from fallback path")
	}
	if tools.Available(Assembler) {
		t.Fatal("a directory must not satisfy a tool lookup")
	}
	if !tools[ResourceCompiler].Required {
		t.Fatal("resource compiler is required on windows")
	}
}

func TestInstallHintsArePlatformSpecific(t *testing.T) {
	t.Parallel()

	darwin := InstallHints("darwin", []Name{Emulator, ImageUtility})
	if len(darwin) != 1 || darwin[0] != "QEMU: brew install qemu" {
		t.Fatalf("darwin hints = %v", darwin)
	}
	if hints := InstallHints("linux", nil); len(hints) != 0 {
		t.Fatalf("hints for nothing missing = %v", hints)
	}
}
