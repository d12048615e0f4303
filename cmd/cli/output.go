package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	simple "github.com/cochaviz/mbrlab/config"
	"github.com/cochaviz/mbrlab/internal/artifacts"
	"github.com/cochaviz/mbrlab/internal/build"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/sandbox"
	"github.com/cochaviz/mbrlab/internal/toolchain"
)

var allTools = []toolchain.Name{
	toolchain.Assembler,
	toolchain.Compiler,
	toolchain.ResourceCompiler,
	toolchain.Emulator,
	toolchain.ImageUtility,
}

var testTools = []toolchain.Name{toolchain.Emulator, toolchain.ImageUtility}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
}

func printDependencies(out io.Writer, report simple.DependencyReport, only []toolchain.Name) {
	if only == nil {
		only = allTools
	}

	table := newTable(out)
	fmt.Fprintln(table, "TOOL\tSTATUS\tPATH")
	for _, name := range only {
		tool := report.Tools[name]
		status := "found"
		path := tool.Path
		switch {
		case !tool.Found && !tool.Required:
			status = "not needed"
			path = "-"
		case !tool.Found:
			status = "missing"
			path = strings.Join(tool.Candidates, ", ")
		}
		fmt.Fprintf(table, "%s\t%s\t%s\n", name, status, path)
	}
	table.Flush()

	missing := report.Tools.Missing(only...)
	if len(missing) == 0 {
		fmt.Fprintln(out, "\nAll dependencies found.")
		return
	}
	fmt.Fprintln(out, "\nInstall the missing tools:")
	for _, hint := range toolchain.InstallHints(report.GOOS, missing) {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

func printVariants(out io.Writer, list []models.Variant) {
	table := newTable(out)
	fmt.Fprintln(table, "VARIANT\tSAFETY\tCATEGORY\tDESCRIPTION")
	for _, variant := range list {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", variant.ID, variant.Safety, variant.Category, variant.Description)
	}
	table.Flush()

	for _, variant := range list {
		if len(variant.Features) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s (%s)\n", variant.DisplayName, variant.ID)
		for _, feature := range variant.Features {
			fmt.Fprintf(out, "  - %s\n", feature)
		}
	}
}

func printTestParameters(out io.Writer, list []models.Variant) {
	table := newTable(out)
	fmt.Fprintln(table, "VARIANT\tSAFETY\tTIMEOUT\tMEMORY\tDISK\tSNAPSHOT\tISOLATED")
	for _, variant := range list {
		p := variant.Test
		fmt.Fprintf(table, "%s\t%s\t%ds\t%dM\t%dM\t%t\t%t\n",
			variant.ID, variant.Safety, p.TimeoutSeconds, p.MemoryMB, p.DiskSizeMB, p.Snapshot, p.Isolated)
	}
	table.Flush()
}

func printBuildOutcome(out io.Writer, outcome build.BuildOutcome) {
	if !outcome.Success {
		fmt.Fprintf(out, "FAIL  %s: %s\n", outcome.VariantID, outcome.Message)
		if outcome.ImagePath != "" {
			fmt.Fprintf(out, "      image %s was built (sha256 %s)\n", outcome.ImagePath, outcome.Checksum)
		}
		return
	}
	fmt.Fprintf(out, "OK    %s: %s (sha256 %s)\n", outcome.VariantID, outcome.ImagePath, outcome.Checksum)
	if !outcome.Signature {
		fmt.Fprintf(out, "      warning: boot signature 0x55 0xAA missing\n")
	}
	if outcome.InstallerPath != "" {
		fmt.Fprintf(out, "      installer %s\n", outcome.InstallerPath)
	}
	if outcome.ManifestPath != "" {
		fmt.Fprintf(out, "      manifest %s\n", outcome.ManifestPath)
	}
}

func printBuildReport(out io.Writer, report build.BuildReport) {
	for _, outcome := range report.Outcomes {
		printBuildOutcome(out, outcome)
	}
	failed := len(report.Failed())
	fmt.Fprintf(out, "\n%d of %d variants built\n", len(report.Outcomes)-failed, len(report.Outcomes))
}

func printTestOutcome(out io.Writer, outcome sandbox.TestOutcome) {
	switch {
	case outcome.Unavailable:
		fmt.Fprintf(out, "SKIP  %s: %s (run 'mbrlab test check')\n", outcome.VariantID, outcome.Message)
	case outcome.Success:
		fmt.Fprintf(out, "OK    %s: %s\n", outcome.VariantID, outcome.Message)
	default:
		fmt.Fprintf(out, "FAIL  %s: %s\n", outcome.VariantID, outcome.Message)
	}
	if outcome.SignatureMissing {
		fmt.Fprintf(out, "      warning: boot signature 0x55 0xAA missing\n")
	}
}

func printTestReport(out io.Writer, report sandbox.TestReport) {
	passed := 0
	for _, outcome := range report.Outcomes {
		printTestOutcome(out, outcome)
		if outcome.Success {
			passed++
		}
	}
	fmt.Fprintf(out, "\n%d of %d variants tested successfully\n", passed, len(report.Outcomes))
}

func printImages(out io.Writer, results []simple.ImageResult) {
	for _, result := range results {
		if result.Err != nil {
			fmt.Fprintf(out, "FAIL  %s: %v\n", result.VariantID, result.Err)
			continue
		}
		fmt.Fprintf(out, "OK    %s: %s\n", result.VariantID, result.Path)
	}
}

func printArtifacts(out io.Writer, recorded []artifacts.Artifact) {
	if len(recorded) == 0 {
		fmt.Fprintln(out, "no artifacts")
		return
	}
	table := newTable(out)
	fmt.Fprintln(table, "VARIANT\tKIND\tSIZE\tSHA256\tCREATED\tPATH")
	for _, artifact := range recorded {
		fmt.Fprintf(table, "%s\t%s\t%d\t%s\t%s\t%s\n",
			artifact.VariantID, artifact.Kind, artifact.Size, shortChecksum(artifact.Checksum),
			artifact.CreatedAt.Local().Format(time.DateTime), artifact.Path)
	}
	table.Flush()
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
