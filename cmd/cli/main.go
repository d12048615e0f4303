package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cochaviz/mbrlab/arch"
	simple "github.com/cochaviz/mbrlab/config"
	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/safety"
	"github.com/cochaviz/mbrlab/internal/sandbox"
	"github.com/cochaviz/mbrlab/internal/variants"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// app carries state shared by every command. The logger is rebuilt once
// the persistent flags are parsed.
type app struct {
	levelVar  slog.LevelVar
	logger    *slog.Logger
	distDir   string
	sourceDir string
	arch      arch.Architecture
}

func (a *app) options() simple.Options {
	return simple.Options{
		DistDir:   a.distDir,
		SourceDir: a.sourceDir,
		Arch:      a.arch,
		Logger:    a.logger,
	}
}

func main() {
	a := &app{}
	a.levelVar.Set(slog.LevelInfo)
	a.logger = logging.NewCLI(os.Stderr, &a.levelVar)
	slog.SetDefault(a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(a)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		a.logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	logLevel := defaultLogLevel
	logFormat := defaultLogFormat
	archName := arch.Default.String()

	root := &cobra.Command{
		Use:           "mbrlab",
		Short:         "Build, install and emulator-test 512-byte boot sectors",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", defaultLogFormat, "Log format (auto, cli, json)")
	root.PersistentFlags().StringVar(&a.distDir, "dist-dir", simple.DefaultDistDir, "Directory for compiled images and installers")
	root.PersistentFlags().StringVar(&a.sourceDir, "source-dir", simple.DefaultSourceDir, "Directory holding <variant>/boot.asm sources")
	root.PersistentFlags().StringVar(&archName, "arch", arch.Default.String(), fmt.Sprintf("Emulated architecture (%s)", supportedArchitectures()))

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		mode, err := logging.ParseMode(logFormat)
		if err != nil {
			return err
		}
		a.arch, err = arch.Parse(archName)
		if err != nil {
			return err
		}
		a.levelVar.Set(level)
		a.logger = logging.New(mode, os.Stderr, &a.levelVar)
		slog.SetDefault(a.logger)
		return nil
	}

	root.AddCommand(
		newCheckCommand(a),
		newListCommand(a),
		newBuildCommand(a),
		newTestCommand(a),
		newImagesCommand(a),
		newWriteCommand(a),
		newArtifactsCommand(a),
		newCleanCommand(a),
	)
	return root
}

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the assembler, compiler and emulator are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printDependencies(cmd.OutOrStdout(), simple.CheckDependencies(a.options()), nil)
			return nil
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available boot sector variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printVariants(cmd.OutOrStdout(), simple.ListVariants())
			return nil
		},
	}
}

func newBuildCommand(a *app) *cobra.Command {
	var (
		all           bool
		withInstaller bool
		andTest       bool
	)

	cmd := &cobra.Command{
		Use:   "build [variant]",
		Short: "Compile a variant (or all of them) into dist/binaries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variantID, err := variantArg(args, all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts := a.options()
			cmdLogger := a.logger.With("command", "build")

			if all {
				cmdLogger.Info("building all variants", "dist_dir", opts.DistDir, "installer", withInstaller)
				report := simple.BuildAll(cmd.Context(), withInstaller, opts)
				printBuildReport(out, report)
				if andTest {
					for _, outcome := range report.Outcomes {
						if outcome.ImagePath == "" {
							continue
						}
						printTestOutcome(out, simple.TestVariant(cmd.Context(), outcome.VariantID, variants.Overrides{}, opts))
					}
				}
				return cmd.Context().Err()
			}

			cmdLogger.Info("building variant", "variant", variantID, "dist_dir", opts.DistDir, "installer", withInstaller)
			outcome := simple.BuildVariant(cmd.Context(), variantID, withInstaller, opts)
			printBuildOutcome(out, outcome)
			if andTest && outcome.ImagePath != "" {
				printTestOutcome(out, simple.TestVariant(cmd.Context(), variantID, variants.Overrides{}, opts))
			}
			return cmd.Context().Err()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Build every variant")
	cmd.Flags().BoolVar(&withInstaller, "installer", false, "Also generate the native installer program")
	cmd.Flags().BoolVar(&andTest, "test", false, "Boot the built image in the emulator afterwards")
	return cmd
}

func newTestCommand(a *app) *cobra.Command {
	var (
		all         bool
		noSnapshot  bool
		noIsolation bool
		timeout     int
		memory      int
		diskSize    int
		profilePath string
		showOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "test [variant]",
		Short: "Boot a variant (or all of them) in an isolated emulator",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variantID, err := variantArg(args, all)
			if err != nil {
				return err
			}

			var profile variants.Profile
			if profilePath != "" {
				profile, err = simple.LoadProfile(profilePath)
				if err != nil {
					return err
				}
			}

			flags := variants.Overrides{}
			if noSnapshot {
				flags.Snapshot = boolPtr(false)
			}
			if noIsolation {
				flags.Isolated = boolPtr(false)
			}
			if cmd.Flags().Changed("timeout") {
				flags.TimeoutSeconds = &timeout
			}
			if cmd.Flags().Changed("memory") {
				flags.MemoryMB = &memory
			}
			if cmd.Flags().Changed("disk-size") {
				flags.DiskSizeMB = &diskSize
			}
			if err := flags.Validate(); err != nil {
				return err
			}

			opts := a.options()
			if showOutput {
				opts.EmulatorOutput = cmd.ErrOrStderr()
			}
			out := cmd.OutOrStdout()
			overrides := layeredOverrides{profile: profile, flags: flags}

			if all {
				printTestReport(out, simple.TestAll(cmd.Context(), overrides, opts))
				return cmd.Context().Err()
			}
			printTestOutcome(out, simple.TestVariant(cmd.Context(), variantID, overrides.For(variantID), opts))
			return cmd.Context().Err()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Test every variant")
	cmd.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "Let writes inside the VM persist to the temporary disk")
	cmd.Flags().BoolVar(&noIsolation, "no-isolation", false, "Leave the emulator's default networking enabled")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Observation window in seconds (0 waits for the emulator to exit)")
	cmd.Flags().IntVar(&memory, "memory", 0, "Guest memory in MiB")
	cmd.Flags().IntVar(&diskSize, "disk-size", models.DefaultDiskSizeMB, "Temporary disk size in MiB")
	cmd.Flags().StringVar(&profilePath, "profile", "", "YAML file with per-variant test parameter overrides")
	cmd.Flags().BoolVar(&showOutput, "show-output", false, "Forward emulator output to stderr")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Check that the emulator and image utility are installed",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				printDependencies(cmd.OutOrStdout(), simple.CheckDependencies(a.options()), testTools)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List variants with their default test parameters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				printTestParameters(cmd.OutOrStdout(), simple.ListVariants())
				return nil
			},
		},
	)
	return cmd
}

func newImagesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "images [dir]",
		Short: "Create persistent raw test disks for every variant",
		Long: "Create persistent raw test disks for every variant in dir, or in <dist-dir>/images by default.\n" +
			"Only disks written under the distribution directory are shown by the artifacts command.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			results := simple.CreateImages(cmd.Context(), dir, a.options())
			printImages(cmd.OutOrStdout(), results)
			return cmd.Context().Err()
		},
	}
}

func newWriteCommand(a *app) *cobra.Command {
	var (
		tierName string
		confirm  string
	)

	cmd := &cobra.Command{
		Use:   "write <variant> <target>",
		Short: "Write a compiled variant to sector 0 of a file or device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := safety.ParseTier(tierName)
			if err != nil {
				return err
			}
			variantID := strings.TrimSpace(args[0])
			target := args[1]
			cmdLogger := a.logger.With("command", "write", "variant", variantID, "target", target)

			gate := &safety.Gate{Prompter: safety.NewLineReader(cmd.InOrStdin()), Out: cmd.ErrOrStderr()}
			if cmd.Flags().Changed("confirm") {
				gate.Prompter = &safety.Scripted{Responses: []string{confirm}}
			} else if tier != safety.TierNone && !stdinIsTerminal(cmd) {
				cmdLogger.Warn("stdin is not a terminal, reading confirmation from piped input")
			}

			err = simple.WriteVariant(cmd.Context(), variantID, target, tier, gate, a.options())
			out := cmd.OutOrStdout()
			switch {
			case err == nil:
				fmt.Fprintf(out, "wrote %s to sector 0 of %s\n", variantID, target)
			case models.IsKind(err, models.SafetyCancelled):
				fmt.Fprintln(out, "Operation cancelled.")
			default:
				fmt.Fprintf(out, "write failed: %v\n", err)
			}
			return cmd.Context().Err()
		},
	}

	cmd.Flags().StringVar(&tierName, "tier", "high", "Confirmation tier (none, low, medium, high)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Confirmation response to use instead of prompting")
	return cmd
}

func newArtifactsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts",
		Short: "List recorded build artifacts with their checksums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recorded, err := simple.ListArtifacts(a.options())
			if err != nil {
				return err
			}
			printArtifacts(cmd.OutOrStdout(), recorded)
			return nil
		},
	}
}

func newCleanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the distribution directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := simple.Clean(a.options())
			if err != nil {
				return err
			}
			a.logger.Info("distribution directory removed", "dist_dir", a.distDir, "artifacts", len(removed))
			return nil
		},
	}
}

// layeredOverrides applies command-line flags on top of a test profile.
type layeredOverrides struct {
	profile variants.Profile
	flags   variants.Overrides
}

var _ sandbox.OverrideSource = layeredOverrides{}

func (l layeredOverrides) For(variantID string) variants.Overrides {
	return l.profile.For(variantID).Merge(l.flags)
}

func variantArg(args []string, all bool) (string, error) {
	switch {
	case all && len(args) > 0:
		return "", errors.New("pass either a variant or --all, not both")
	case all:
		return "", nil
	case len(args) == 0 || strings.TrimSpace(args[0]) == "":
		return "", fmt.Errorf("a variant is required (available: %s)", strings.Join(variants.NewCatalog().IDs(), ", "))
	default:
		return strings.TrimSpace(args[0]), nil
	}
}

func stdinIsTerminal(cmd *cobra.Command) bool {
	file, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func supportedArchitectures() string {
	names := make([]string, 0, len(arch.Supported()))
	for _, a := range arch.Supported() {
		names = append(names, a.String())
	}
	return strings.Join(names, ", ")
}

func boolPtr(value bool) *bool {
	return &value
}
