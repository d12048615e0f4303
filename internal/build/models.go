package build

import "github.com/cochaviz/mbrlab/internal/models"

// BuildRequest asks for one variant to be compiled.
type BuildRequest struct {
	VariantID string
	// Installer also generates the native installer program.
	Installer bool
}

// BuildOutcome is the result of building one variant.
type BuildOutcome struct {
	VariantID string
	Success   bool
	Message   string
	Kind      models.FailureKind
	Err       error

	ImagePath string
	Checksum  string
	Signature bool

	InstallerPath string
	ManifestPath  string
	// InstallerErr is set when the image built but the installer did not.
	InstallerErr error
}

// BuildReport aggregates the outcomes of a batch build.
type BuildReport struct {
	Success  bool
	Outcomes []BuildOutcome
}

// Failed returns the outcomes that did not succeed.
func (r BuildReport) Failed() []BuildOutcome {
	var failed []BuildOutcome
	for _, outcome := range r.Outcomes {
		if !outcome.Success {
			failed = append(failed, outcome)
		}
	}
	return failed
}
