package arch

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]Architecture{
		"x86":     I686,
		"I386":    I686,
		" i686 ":  I686,
		"amd64":   X86_64,
		"x86-64":  X86_64,
		"arm64":   "",
		"":        "",
		"i386-pc": "",
	}
	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseRejectsUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := Parse("riscv64"); err == nil {
		t.Fatal("Parse(riscv64) error = nil, want error")
	}
	got, err := Parse("x86_64")
	if err != nil || got != X86_64 {
		t.Fatalf("Parse(x86_64) = %q, %v", got, err)
	}
}

func TestEmulatorCandidatesPrimaryFirst(t *testing.T) {
	t.Parallel()

	linux := I686.EmulatorCandidates("linux")
	if linux[0] != "qemu-system-i386" || linux[1] != "qemu-system-x86_64" {
		t.Fatalf("linux candidates = %v", linux)
	}

	windows := X86_64.EmulatorCandidates("windows")
	if windows[0] != "qemu-system-x86_64.exe" || windows[1] != "qemu-system-i386.exe" {
		t.Fatalf("windows candidates = %v", windows)
	}
	last := windows[len(windows)-1]
	if last != `C:\Program Files\qemu\qemu-system-i386.exe` {
		t.Fatalf("last windows candidate = %q", last)
	}

	invalid := Architecture("sparc").EmulatorCandidates("linux")
	if invalid[0] != "qemu-system-i386" {
		t.Fatalf("invalid architecture candidates = %v", invalid)
	}
}
