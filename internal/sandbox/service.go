package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/cochaviz/mbrlab/internal/artifacts"
	"github.com/cochaviz/mbrlab/internal/build"
	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/variants"
)

// TestRunner runs one bounded emulator test.
type TestRunner interface {
	RunTest(ctx context.Context, image models.BootImage, variantID string, params models.TestParameters) TestOutcome
}

// ImageBuilder builds a variant that has no compiled image yet.
type ImageBuilder interface {
	BuildVariant(ctx context.Context, request build.BuildRequest) build.BuildOutcome
}

// OverrideSource returns test parameter overrides per variant.
// variants.Profile and variants.Overrides both satisfy it.
type OverrideSource interface {
	For(variantID string) variants.Overrides
}

var (
	_ TestRunner     = (*Harness)(nil)
	_ ImageBuilder   = (*build.BuildService)(nil)
	_ OverrideSource = variants.Profile{}
	_ OverrideSource = variants.Overrides{}
)

// TestRequest asks for one variant to be tested.
type TestRequest struct {
	VariantID string
	Overrides variants.Overrides
}

// TestReport aggregates the outcomes of a batch test.
type TestReport struct {
	Success  bool
	Outcomes []TestOutcome
}

// TestService loads or builds images and runs them through the harness.
type TestService struct {
	Logger  *slog.Logger
	Catalog *variants.Catalog
	Harness TestRunner
	Builder ImageBuilder
	Layout  artifacts.Layout
	// Disks creates persistent test images. Optional.
	Disks *DiskImager
	Store *artifacts.Store
}

// TestVariant tests one variant with its default parameters merged with
// the request's overrides.
func (s *TestService) TestVariant(ctx context.Context, request TestRequest) TestOutcome {
	outcome := TestOutcome{VariantID: request.VariantID}
	if s.Catalog == nil || s.Harness == nil {
		return failed(outcome, "test service is not configured")
	}

	variant, err := s.Catalog.Get(request.VariantID)
	if err != nil {
		return failed(outcome, err.Error())
	}
	if err := request.Overrides.Validate(); err != nil {
		return failed(outcome, fmt.Sprintf("invalid test parameters: %v", err))
	}
	params := request.Overrides.Apply(variant.Test)
	outcome.Parameters = params

	image, err := s.Image(ctx, variant.ID)
	if err != nil {
		return failed(outcome, err.Error())
	}
	return s.Harness.RunTest(ctx, image, variant.ID, params)
}

// TestAll tests every catalog variant in order. One variant's failure never
// stops the batch. Unavailable tests count as failures in the aggregate.
func (s *TestService) TestAll(ctx context.Context, overrides OverrideSource) TestReport {
	report := TestReport{Success: true}
	if s.Catalog == nil {
		report.Success = false
		report.Outcomes = append(report.Outcomes, failed(TestOutcome{}, "test service is not configured"))
		return report
	}
	if overrides == nil {
		overrides = variants.Overrides{}
	}

	for _, variant := range s.Catalog.List() {
		if err := ctx.Err(); err != nil {
			report.Success = false
			report.Outcomes = append(report.Outcomes, failed(TestOutcome{VariantID: variant.ID}, err.Error()))
			continue
		}
		outcome := s.TestVariant(ctx, TestRequest{VariantID: variant.ID, Overrides: overrides.For(variant.ID)})
		if !outcome.Success {
			report.Success = false
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report
}

// CreateImage writes a persistent raw test disk for variantID into dir and
// returns its path.
func (s *TestService) CreateImage(ctx context.Context, variantID, dir string) (string, error) {
	if s.Catalog == nil {
		return "", errors.New("test service is not configured")
	}
	if s.Disks == nil || s.Disks.Path == "" {
		return "", errors.New("image utility not found")
	}
	variant, err := s.Catalog.Get(variantID)
	if err != nil {
		return "", err
	}
	image, err := s.Image(ctx, variant.ID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, variant.ID+"_test.img")
	if err := s.Disks.Create(ctx, path, variant.Test.DiskSizeMB); err != nil {
		return "", err
	}
	if err := WriteSector0(path, image); err != nil {
		return "", err
	}
	if s.Store != nil {
		if _, err := s.Store.Record(path, artifacts.DiskArtifact, variant.ID, map[string]any{"size_mb": variant.Test.DiskSizeMB}); err != nil {
			s.logger().Warn("failed to record disk metadata", "path", path, "error", err)
		}
	}
	s.logger().Info("test image created", "variant", variant.ID, "path", path)
	return path, nil
}

// Image loads the compiled image for variantID from the layout, building it
// first when no file exists. Files of the wrong size are an error.
func (s *TestService) Image(ctx context.Context, variantID string) (models.BootImage, error) {
	if _, err := s.Catalog.Get(variantID); err != nil {
		return models.BootImage{}, err
	}
	path := s.Layout.BinaryPath(variantID)
	image, err := models.LoadBootImage(path)
	if err == nil {
		return image, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return models.BootImage{}, err
	}
	if s.Builder == nil {
		return models.BootImage{}, fmt.Errorf("no compiled image at %s", path)
	}

	s.logger().Info("compiled image not found, building", "variant", variantID, "path", path)
	built := s.Builder.BuildVariant(ctx, build.BuildRequest{VariantID: variantID})
	if !built.Success {
		if built.Err != nil {
			return models.BootImage{}, fmt.Errorf("build %s: %w", variantID, built.Err)
		}
		return models.BootImage{}, fmt.Errorf("build %s: %s", variantID, built.Message)
	}
	return models.LoadBootImage(built.ImagePath)
}

func (s *TestService) logger() *slog.Logger {
	return logging.Ensure(s.Logger).With("component", "test")
}
