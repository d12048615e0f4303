package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cochaviz/mbrlab/internal/artifacts"
	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/toolchain"
)

// GenerationError reports why an installer could not be produced.
type GenerationError struct {
	Kind       models.FailureKind
	VariantID  string
	Path       string
	Diagnostic string
	Err        error
}

func (e *GenerationError) Error() string {
	switch e.Kind {
	case models.CompilerMissing:
		return fmt.Sprintf("installer %s: native compiler not found (install g++, clang++ or MSVC)", e.VariantID)
	case models.CompileFailed:
		if e.Diagnostic != "" {
			return fmt.Sprintf("installer %s: compilation failed: %s", e.VariantID, e.Diagnostic)
		}
		return fmt.Sprintf("installer %s: compilation failed: %v", e.VariantID, e.Err)
	default:
		return fmt.Sprintf("installer %s: %s: %v", e.VariantID, e.Path, e.Err)
	}
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) FailureKind() models.FailureKind { return e.Kind }

// Artifacts lists the files a generation run leaves in the output directory.
type Artifacts struct {
	Source     string
	Executable string
	// Manifest is set on windows only.
	Manifest string
	// ManifestLinked reports whether the manifest was compiled into the
	// executable rather than left beside it.
	ManifestLinked bool
}

// Generator turns a boot image into a native installer program written
// to the executable directory of Layout.
type Generator struct {
	Runner toolchain.Runner
	Tools  toolchain.Availability
	Layout artifacts.Layout
	// GOOS selects the platform specialization. Empty means the host.
	GOOS   string
	Logger *slog.Logger
}

// Generate writes and compiles the installer for variantID. Intermediate
// resource and object files are removed on every return path.
func (g *Generator) Generate(ctx context.Context, variantID string, image models.BootImage) (out Artifacts, err error) {
	logger := logging.Ensure(g.Logger).With("component", "installer", "variant", variantID)

	if !g.Tools.Available(toolchain.Compiler) {
		return Artifacts{}, &GenerationError{Kind: models.CompilerMissing, VariantID: variantID}
	}
	compiler := g.Tools.Path(toolchain.Compiler)

	outputDir := g.Layout.ExecutableDir()
	if err := g.Layout.Ensure(); err != nil {
		return Artifacts{}, g.ioError(variantID, outputDir, err)
	}

	source, err := renderSource(variantID, image)
	if err != nil {
		return Artifacts{}, g.ioError(variantID, outputDir, err)
	}
	out.Source = filepath.Join(outputDir, variantID+".cpp")
	if err := os.WriteFile(out.Source, source, 0o644); err != nil {
		return Artifacts{}, g.ioError(variantID, out.Source, err)
	}

	var intermediates []string
	defer func() {
		for _, path := range intermediates {
			if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("remove intermediate %s: %w", path, removeErr))
			}
		}
	}()

	out.Executable = g.Layout.ExecutablePath(variantID, g.goos())
	var objects []string
	if isMSVC(compiler) {
		intermediates = append(intermediates, filepath.Join(outputDir, variantID+".obj"))
	}
	if g.goos() == "windows" {
		manifestName := variantID + ".exe.manifest"
		manifest, renderErr := renderManifest(variantID)
		if renderErr != nil {
			return Artifacts{}, g.ioError(variantID, outputDir, renderErr)
		}
		out.Manifest = filepath.Join(outputDir, manifestName)
		if err := os.WriteFile(out.Manifest, manifest, 0o644); err != nil {
			return Artifacts{}, g.ioError(variantID, out.Manifest, err)
		}

		if isMSVC(compiler) {
			logger.Warn("resource linking is not supported with cl.exe, manifest left beside the executable", "manifest", manifestName)
		} else {
			object, linkErr := g.compileResource(ctx, logger, variantID, manifestName, outputDir, &intermediates)
			if linkErr != nil {
				return Artifacts{}, linkErr
			}
			if object != "" {
				objects = append(objects, object)
				out.ManifestLinked = true
			}
		}
	}

	inv := toolchain.Invocation{
		Path: compiler,
		Args: compilerArgs(compiler, g.goos(), out.Source, objects, out.Executable),
		Dir:  outputDir,
	}
	logger.Debug("compiling installer", "command", inv.String())

	result, runErr := g.Runner.Run(ctx, inv)
	if runErr != nil {
		return Artifacts{}, &GenerationError{Kind: models.CompileFailed, VariantID: variantID, Path: out.Source, Err: runErr}
	}
	if result.ExitCode != 0 {
		return Artifacts{}, &GenerationError{
			Kind:       models.CompileFailed,
			VariantID:  variantID,
			Path:       out.Source,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("exit status %d", result.ExitCode),
		}
	}
	if _, statErr := os.Stat(out.Executable); statErr != nil {
		return Artifacts{}, g.ioError(variantID, out.Executable, statErr)
	}

	logger.Info("installer created", "executable", out.Executable, "manifest_linked", out.ManifestLinked)
	return out, nil
}

// compileResource produces the resource object that embeds the manifest.
// It returns "" when the resource compiler is absent or fails, leaving the
// side-by-side manifest as the only elevation request.
func (g *Generator) compileResource(ctx context.Context, logger *slog.Logger, variantID, manifestName, outputDir string, intermediates *[]string) (string, error) {
	if !g.Tools.Available(toolchain.ResourceCompiler) {
		logger.Warn("resource compiler not found, manifest left beside the executable", "manifest", manifestName)
		return "", nil
	}

	rcPath := filepath.Join(outputDir, variantID+".rc")
	objPath := filepath.Join(outputDir, variantID+".o")
	*intermediates = append(*intermediates, rcPath, objPath)

	if err := os.WriteFile(rcPath, resourceScript(manifestName), 0o644); err != nil {
		return "", g.ioError(variantID, rcPath, err)
	}

	inv := toolchain.Invocation{
		Path: g.Tools.Path(toolchain.ResourceCompiler),
		Args: []string{rcPath, objPath},
		Dir:  outputDir,
	}
	result, err := g.Runner.Run(ctx, inv)
	if err != nil || result.ExitCode != 0 {
		logger.Warn("resource compilation failed, manifest left beside the executable",
			"error", err,
			"exit_code", result.ExitCode,
			"output", result.Diagnostic(),
		)
		return "", nil
	}
	return objPath, nil
}

func compilerArgs(compiler, goos, source string, objects []string, executable string) []string {
	if isMSVC(compiler) {
		return []string{"/nologo", "/EHsc", "/O1", source, "/Fe:" + executable}
	}
	args := []string{"-Os", "-s", source}
	args = append(args, objects...)
	args = append(args, "-o", executable)
	if goos == "windows" && isGNU(compiler) {
		args = append(args, "-static", "-static-libgcc", "-static-libstdc++")
	}
	return args
}

func isMSVC(compiler string) bool {
	return compilerBase(compiler) == "cl"
}

// isGNU matches g++ and cross or versioned g++ drivers such as
// x86_64-w64-mingw32-g++ and g++-13. clang++ is not GNU.
func isGNU(compiler string) bool {
	base := compilerBase(compiler)
	if strings.Contains(base, "clang") {
		return false
	}
	return base == "g++" || strings.HasSuffix(base, "-g++") || strings.HasPrefix(base, "g++-")
}

func compilerBase(compiler string) string {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(compiler, `\`, "/")))
	return strings.TrimSuffix(base, ".exe")
}

func (g *Generator) ioError(variantID, path string, err error) error {
	return &GenerationError{Kind: models.IOFailure, VariantID: variantID, Path: path, Err: err}
}

func (g *Generator) goos() string {
	if g.GOOS != "" {
		return g.GOOS
	}
	return runtime.GOOS
}
