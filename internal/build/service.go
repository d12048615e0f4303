package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cochaviz/mbrlab/internal/artifacts"
	"github.com/cochaviz/mbrlab/internal/installer"
	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/variants"
)

// ImageCompiler assembles a source file into a boot image.
type ImageCompiler interface {
	Compile(ctx context.Context, source, output string) (models.BootImage, error)
}

// InstallerGenerator produces an installer program for a boot image.
type InstallerGenerator interface {
	Generate(ctx context.Context, variantID string, image models.BootImage) (installer.Artifacts, error)
}

var (
	_ ImageCompiler      = (*Compiler)(nil)
	_ InstallerGenerator = (*installer.Generator)(nil)
)

// BuildService compiles catalog variants into the distribution layout.
type BuildService struct {
	Logger    *slog.Logger
	Catalog   *variants.Catalog
	Compiler  ImageCompiler
	Installer InstallerGenerator
	Layout    artifacts.Layout
	// Store records artifact metadata when set.
	Store     *artifacts.Store
	SourceDir string
}

// BuildVariant compiles one variant and optionally its installer. Failures
// are reported in the outcome, never returned.
func (s *BuildService) BuildVariant(ctx context.Context, request BuildRequest) BuildOutcome {
	outcome := BuildOutcome{VariantID: request.VariantID}
	logger := s.logger().With("variant", request.VariantID)

	if s.Catalog == nil || s.Compiler == nil {
		return fail(outcome, errors.New("build service is not configured"))
	}

	variant, err := s.Catalog.Get(request.VariantID)
	if err != nil {
		return fail(outcome, err)
	}
	if variant.Warning != "" {
		logger.Warn("variant safety warning", "safety", variant.Safety, "warning", variant.Warning)
	}

	source := variants.SourcePath(s.SourceDir, variant)
	outcome.ImagePath = s.Layout.BinaryPath(variant.ID)
	logger.Info("building boot image", "source", source, "output", outcome.ImagePath)

	image, err := s.Compiler.Compile(ctx, source, outcome.ImagePath)
	if err != nil {
		outcome.ImagePath = ""
		logger.Error("boot image build failed", "kind", models.KindOf(err), "error", err)
		return fail(outcome, err)
	}

	outcome.Checksum = image.Checksum()
	outcome.Signature = image.HasSignature()
	if !outcome.Signature {
		logger.Warn("boot signature missing", "expected", fmt.Sprintf("%#x %#x", models.BootSignature[0], models.BootSignature[1]))
	}
	logger.Info("boot image built", "output", outcome.ImagePath, "sha256", outcome.Checksum, "signature", outcome.Signature)
	s.record(logger, outcome.ImagePath, artifacts.BootImageArtifact, variant.ID, map[string]any{"signature": outcome.Signature})

	outcome.Success = true
	outcome.Message = fmt.Sprintf("built %s", outcome.ImagePath)

	if request.Installer {
		outcome = s.buildInstaller(ctx, logger, outcome, image)
	}
	return outcome
}

// BuildAll builds every catalog variant in catalog order. One variant's
// failure never stops the batch.
func (s *BuildService) BuildAll(ctx context.Context, withInstaller bool) BuildReport {
	report := BuildReport{Success: true}
	if s.Catalog == nil {
		report.Success = false
		report.Outcomes = append(report.Outcomes, fail(BuildOutcome{}, errors.New("build service is not configured")))
		return report
	}

	for _, variant := range s.Catalog.List() {
		if err := ctx.Err(); err != nil {
			report.Success = false
			report.Outcomes = append(report.Outcomes, fail(BuildOutcome{VariantID: variant.ID}, err))
			continue
		}
		outcome := s.BuildVariant(ctx, BuildRequest{VariantID: variant.ID, Installer: withInstaller})
		if !outcome.Success {
			report.Success = false
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	s.logger().Info("build finished", "variants", len(report.Outcomes), "failed", len(report.Failed()))
	return report
}

func (s *BuildService) buildInstaller(ctx context.Context, logger *slog.Logger, outcome BuildOutcome, image models.BootImage) BuildOutcome {
	if s.Installer == nil {
		return failInstaller(outcome, errors.New("installer generator is not configured"))
	}

	generated, err := s.Installer.Generate(ctx, outcome.VariantID, image)
	if err != nil {
		logger.Error("installer generation failed", "kind", models.KindOf(err), "error", err)
		return failInstaller(outcome, err)
	}

	outcome.InstallerPath = generated.Executable
	outcome.ManifestPath = generated.Manifest
	s.record(logger, generated.Executable, artifacts.InstallerArtifact, outcome.VariantID, map[string]any{
		"image_sha256":    outcome.Checksum,
		"manifest_linked": generated.ManifestLinked,
	})
	if generated.Manifest != "" {
		s.record(logger, generated.Manifest, artifacts.ManifestArtifact, outcome.VariantID, nil)
	}
	outcome.Message = fmt.Sprintf("built %s and %s", outcome.ImagePath, outcome.InstallerPath)
	return outcome
}

func (s *BuildService) record(logger *slog.Logger, path string, kind artifacts.Kind, variantID string, metadata map[string]any) {
	if s.Store == nil {
		return
	}
	if _, err := s.Store.Record(path, kind, variantID, metadata); err != nil {
		logger.Warn("failed to record artifact metadata", "path", path, "error", err)
	}
}

func fail(outcome BuildOutcome, err error) BuildOutcome {
	outcome.Success = false
	outcome.Err = err
	outcome.Kind = models.KindOf(err)
	outcome.Message = err.Error()
	return outcome
}

// failInstaller keeps the image fields of outcome so callers can still
// test the compiled image.
func failInstaller(outcome BuildOutcome, err error) BuildOutcome {
	outcome = fail(outcome, err)
	outcome.InstallerErr = err
	return outcome
}

func (s *BuildService) logger() *slog.Logger {
	return logging.Ensure(s.Logger).With("component", "build")
}
