package artifacts

import (
	"os"
	"path/filepath"
)

// Layout resolves output locations below a distribution directory.
//
//	<base>/binaries/<variant>.bin
//	<base>/executables/<variant>[.exe]
//	<base>/images/<name>.img
type Layout struct {
	BaseDir string
}

func (l Layout) BinaryDir() string     { return filepath.Join(l.BaseDir, "binaries") }
func (l Layout) ExecutableDir() string { return filepath.Join(l.BaseDir, "executables") }
func (l Layout) ImageDir() string      { return filepath.Join(l.BaseDir, "images") }

// BinaryPath is where the compiled boot image for variantID is written.
func (l Layout) BinaryPath(variantID string) string {
	return filepath.Join(l.BinaryDir(), variantID+".bin")
}

// ExecutablePath is where the installer for variantID is written.
func (l Layout) ExecutablePath(variantID string, goos string) string {
	name := variantID
	if goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(l.ExecutableDir(), name)
}

// Ensure creates the binary, executable and image directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.BinaryDir(), l.ExecutableDir(), l.ImageDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
