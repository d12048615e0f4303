package safety

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Tier selects how much consent a destructive action requires.
type Tier int

// Tiers in increasing order of required consent.
const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

// HighTierPhrase must be typed verbatim to pass a high tier confirmation.
const HighTierPhrase = "I UNDERSTAND THE RISKS"

// String returns the tier name used on the command line.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a tier name onto a Tier.
func ParseTier(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return TierNone, nil
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "", "high":
		return TierHigh, nil
	default:
		return TierHigh, fmt.Errorf("unknown safety tier %q (expected none, low, medium or high)", value)
	}
}

// Accepts reports whether response satisfies the tier. Surrounding
// whitespace, including the line terminator, is ignored.
func (t Tier) Accepts(response string) bool {
	response = strings.TrimSpace(response)
	switch t {
	case TierNone:
		return true
	case TierLow:
		return strings.HasPrefix(response, "y") || strings.HasPrefix(response, "Y")
	case TierMedium:
		return strings.EqualFold(response, "yes")
	case TierHigh:
		return response == HighTierPhrase
	default:
		return false
	}
}

// PhysicalDriveFragments are the device path fragments that mark a target
// as a physical drive.
var PhysicalDriveFragments = []string{
	"PhysicalDrive",
	"/dev/sd",
	"/dev/hd",
	"/dev/nvme",
	"/dev/disk",
	"/dev/rdisk",
}

var driveLetterDevice = regexp.MustCompile(`^\\\\[.?]\\[A-Za-z]:\\?$`)

// IsPhysicalDrive reports whether target looks like a raw device rather
// than a regular file.
func IsPhysicalDrive(target string) bool {
	target = strings.TrimSpace(target)
	if driveLetterDevice.MatchString(target) {
		return true
	}
	lower := strings.ToLower(target)
	for _, fragment := range PhysicalDriveFragments {
		if strings.Contains(lower, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

// Gate asks the operator to confirm destructive writes.
type Gate struct {
	Prompter Prompter
	Out      io.Writer
}

// NewGate returns a Gate reading from stdin and writing prompts to stderr.
func NewGate() *Gate {
	return &Gate{Prompter: NewLineReader(os.Stdin), Out: os.Stderr}
}

// Confirm displays the tier's prompt for target and reads a single
// response. It returns true only if the response satisfies the tier. A
// read failure counts as a refusal; there are no retries.
func (g *Gate) Confirm(target string, tier Tier) bool {
	if tier == TierNone {
		return true
	}
	if g == nil || g.Prompter == nil {
		return false
	}

	out := g.Out
	if out == nil {
		out = io.Discard
	}

	physical := IsPhysicalDrive(target)
	switch tier {
	case TierLow:
		fmt.Fprintf(out, "Write boot sector to %s%s? [y/N] ", target, physicalSuffix(physical))
	case TierMedium:
		fmt.Fprintf(out, "Write boot sector to %s%s? Type 'yes' to continue: ", target, physicalSuffix(physical))
	case TierHigh:
		writeBanner(out, target, physical)
		fmt.Fprintf(out, "\nType '%s' to continue:\n> ", HighTierPhrase)
	default:
		return false
	}

	response, err := g.Prompter.ReadLine()
	if err != nil && response == "" {
		return false
	}
	return tier.Accepts(response)
}

func physicalSuffix(physical bool) string {
	if physical {
		return " (PHYSICAL DRIVE)"
	}
	return ""
}

func writeBanner(out io.Writer, target string, physical bool) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(out)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "  DANGER - MASTER BOOT RECORD OPERATION")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "You are about to write to: %s\n", target)
	if physical {
		fmt.Fprintln(out, "THIS IS A PHYSICAL DRIVE OPERATION.")
		fmt.Fprintln(out, "The drive's boot sector will be overwritten and it may become UNBOOTABLE.")
		fmt.Fprintln(out, "Data on this drive could be PERMANENTLY LOST.")
	} else {
		fmt.Fprintln(out, "The first sector of this file will be overwritten.")
	}
	fmt.Fprintln(out, "\nBefore continuing make sure that:")
	fmt.Fprintln(out, "  - important data is backed up")
	fmt.Fprintln(out, "  - the target above is the one you intend to overwrite")
	fmt.Fprintln(out, "  - the image has been tested in the emulator first")
}
