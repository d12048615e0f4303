package simple

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cochaviz/mbrlab/arch"
	"github.com/cochaviz/mbrlab/internal/artifacts"
	"github.com/cochaviz/mbrlab/internal/build"
	"github.com/cochaviz/mbrlab/internal/installer"
	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/safety"
	"github.com/cochaviz/mbrlab/internal/sandbox"
	"github.com/cochaviz/mbrlab/internal/toolchain"
	"github.com/cochaviz/mbrlab/internal/variants"
)

var DefaultDistDir = "dist"
var DefaultSourceDir = filepath.Join("src", "variants")

// Options configures the facade. Zero values resolve to the defaults and
// the host toolchain.
type Options struct {
	DistDir   string
	SourceDir string
	// TempRoot is the parent directory of per-test run directories.
	TempRoot string
	Logger   *slog.Logger

	// Arch selects the emulator. Empty keeps the locator's architecture.
	Arch    arch.Architecture
	Locator *toolchain.Locator
	Runner  toolchain.Runner
	GOOS    string

	// EmulatorOutput receives the emulator's stdout and stderr.
	EmulatorOutput io.Writer
}

// DependencyReport describes the host toolchain.
type DependencyReport struct {
	GOOS    string
	Tools   toolchain.Availability
	Missing []toolchain.Name
	Hints   []string
}

// Ready reports whether every required tool was found.
func (r DependencyReport) Ready() bool {
	return len(r.Missing) == 0
}

// ImageResult is the outcome of creating one persistent test disk.
type ImageResult struct {
	VariantID string
	Path      string
	Err       error
}

// CheckDependencies locates every tool and returns install hints for the
// missing ones.
func CheckDependencies(opts Options) DependencyReport {
	opts = opts.withDefaults()
	tools := opts.Locator.Locate()
	missing := tools.Missing()
	return DependencyReport{
		GOOS:    opts.GOOS,
		Tools:   tools,
		Missing: missing,
		Hints:   toolchain.InstallHints(opts.GOOS, missing),
	}
}

// ListVariants returns the built-in catalog in order.
func ListVariants() []models.Variant {
	return variants.NewCatalog().List()
}

// LoadProfile reads a YAML test profile validated against the catalog.
func LoadProfile(path string) (variants.Profile, error) {
	return variants.LoadProfile(path, variants.NewCatalog())
}

// BuildVariant compiles one variant into the distribution directory.
func BuildVariant(ctx context.Context, variantID string, withInstaller bool, opts Options) build.BuildOutcome {
	return newPipeline(opts).build.BuildVariant(ctx, build.BuildRequest{VariantID: variantID, Installer: withInstaller})
}

// BuildAll compiles every variant, continuing past failures.
func BuildAll(ctx context.Context, withInstaller bool, opts Options) build.BuildReport {
	return newPipeline(opts).build.BuildAll(ctx, withInstaller)
}

// TestVariant boots one variant in the emulator, building it first when
// no compiled image exists.
func TestVariant(ctx context.Context, variantID string, overrides variants.Overrides, opts Options) sandbox.TestOutcome {
	return newPipeline(opts).test.TestVariant(ctx, sandbox.TestRequest{VariantID: variantID, Overrides: overrides})
}

// TestAll boots every variant, continuing past failures.
func TestAll(ctx context.Context, overrides sandbox.OverrideSource, opts Options) sandbox.TestReport {
	return newPipeline(opts).test.TestAll(ctx, overrides)
}

// CreateImages writes a persistent raw test disk for every variant into
// dir, or into the image directory of the distribution layout when dir is
// empty. Only disks under the distribution directory are listed by
// ListArtifacts.
func CreateImages(ctx context.Context, dir string, opts Options) []ImageResult {
	p := newPipeline(opts)
	if dir == "" {
		dir = p.layout.ImageDir()
	}
	results := make([]ImageResult, 0, len(p.catalog.List()))
	for _, variant := range p.catalog.List() {
		path, err := p.test.CreateImage(ctx, variant.ID, dir)
		results = append(results, ImageResult{VariantID: variant.ID, Path: path, Err: err})
	}
	return results
}

// WriteVariant writes the compiled image of variantID to sector 0 of target
// after the gate approves it at the given tier.
func WriteVariant(ctx context.Context, variantID, target string, tier safety.Tier, gate *safety.Gate, opts Options) error {
	p := newPipeline(opts)
	image, err := p.test.Image(ctx, variantID)
	if err != nil {
		return err
	}
	if gate == nil {
		gate = safety.NewGate()
	}
	writer := &installer.DirectWriter{Gate: gate, Logger: p.logger}
	return writer.Write(image, target, tier)
}

// ListArtifacts returns the recorded artifacts under the distribution
// directory.
func ListArtifacts(opts Options) ([]artifacts.Artifact, error) {
	return newPipeline(opts).store.List()
}

// Clean removes every recorded artifact and then the distribution
// directory. It returns the artifacts that were removed.
func Clean(opts Options) ([]artifacts.Artifact, error) {
	opts = opts.withDefaults()
	if opts.DistDir == "" || opts.DistDir == "." || opts.DistDir == string(filepath.Separator) {
		return nil, fmt.Errorf("refusing to remove %q", opts.DistDir)
	}
	logger := logging.Ensure(opts.Logger).With("component", "clean")
	store := &artifacts.Store{Layout: artifacts.Layout{BaseDir: opts.DistDir}}

	recorded, err := store.List()
	if err != nil {
		logger.Warn("artifact metadata unreadable, removing the directory anyway", "error", err)
	}
	removed := make([]artifacts.Artifact, 0, len(recorded))
	for _, artifact := range recorded {
		if err := store.Remove(artifact); err != nil {
			return removed, fmt.Errorf("remove artifact %s: %w", artifact.Path, err)
		}
		logger.Debug("artifact removed", "path", artifact.Path, "kind", artifact.Kind)
		removed = append(removed, artifact)
	}

	if err := os.RemoveAll(opts.DistDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return removed, fmt.Errorf("remove %s: %w", opts.DistDir, err)
	}
	return removed, nil
}

type pipeline struct {
	logger  *slog.Logger
	catalog *variants.Catalog
	layout  artifacts.Layout
	store   *artifacts.Store
	build   *build.BuildService
	test    *sandbox.TestService
}

// newPipeline wires the services against a fresh toolchain snapshot.
func newPipeline(opts Options) pipeline {
	opts = opts.withDefaults()
	base := logging.Ensure(opts.Logger)

	tools := opts.Locator.Locate()
	catalog := variants.NewCatalog()
	layout := artifacts.Layout{BaseDir: opts.DistDir}
	store := &artifacts.Store{Layout: layout}

	buildService := &build.BuildService{
		Logger:  base,
		Catalog: catalog,
		Compiler: &build.Compiler{
			Runner: opts.Runner,
			Tools:  tools,
			Logger: base,
		},
		Installer: &installer.Generator{
			Runner: opts.Runner,
			Tools:  tools,
			Layout: layout,
			GOOS:   opts.GOOS,
			Logger: base,
		},
		Layout:    layout,
		Store:     store,
		SourceDir: opts.SourceDir,
	}

	testService := &sandbox.TestService{
		Logger:  base,
		Catalog: catalog,
		Harness: &sandbox.Harness{
			Runner:         opts.Runner,
			Tools:          tools,
			TempRoot:       opts.TempRoot,
			Logger:         base,
			EmulatorStdout: opts.EmulatorOutput,
			EmulatorStderr: opts.EmulatorOutput,
		},
		Builder: buildService,
		Layout:  layout,
		Disks:   &sandbox.DiskImager{Runner: opts.Runner, Path: tools.Path(toolchain.ImageUtility)},
		Store:   store,
	}

	return pipeline{
		logger:  base,
		catalog: catalog,
		layout:  layout,
		store:   store,
		build:   buildService,
		test:    testService,
	}
}

func (o Options) withDefaults() Options {
	if o.DistDir == "" {
		o.DistDir = DefaultDistDir
	}
	if o.SourceDir == "" {
		o.SourceDir = DefaultSourceDir
	}
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	if o.Locator == nil {
		o.Locator = toolchain.NewLocator()
		o.Locator.GOOS = o.GOOS
	}
	if o.Arch != "" && o.Arch != o.Locator.Arch {
		locator := *o.Locator
		locator.Arch = o.Arch
		o.Locator = &locator
	}
	if o.Runner == nil {
		o.Runner = &toolchain.ExecRunner{Logger: logging.Ensure(o.Logger)}
	}
	return o
}
