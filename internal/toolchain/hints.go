package toolchain

// InstallHints returns platform-specific installation instructions for
// each missing tool.
func InstallHints(goos string, missing []Name) []string {
	var hints []string
	for _, name := range missing {
		switch name {
		case Assembler:
			hints = append(hints, "NASM: install from https://www.nasm.us/ or your package manager")
		case Compiler:
			if goos == "windows" {
				hints = append(hints, "C++ compiler: install MinGW-w64 (g++) or Visual Studio Build Tools (cl.exe)")
			} else {
				hints = append(hints, "C++ compiler: install g++ or clang++")
			}
		case ResourceCompiler:
			hints = append(hints, "windres: install MinGW-w64 binutils")
		case Emulator, ImageUtility:
			switch goos {
			case "windows":
				hints = append(hints, "QEMU: download from https://qemu.weilnetz.de/w64/ and add it to PATH")
			case "darwin":
				hints = append(hints, "QEMU: brew install qemu")
			default:
				hints = append(hints,
					"QEMU (Debian/Ubuntu): sudo apt install qemu-system-x86 qemu-utils",
					"QEMU (RHEL/Fedora): sudo dnf install qemu-kvm qemu-img",
					"QEMU (Arch Linux): sudo pacman -S qemu-full",
				)
			}
		}
	}
	return dedupe(hints)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
