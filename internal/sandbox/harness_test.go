package sandbox

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cochaviz/mbrlab/internal/logging"
	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/toolchain"
)

const fakeQemuImg = `#!/bin/sh
# create -f raw <path> <size>
head -c 1048576 /dev/zero > "$4"
`

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stubs require a unix shell")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// captureEmulator appends the first sector of the -drive disk and the disk
// path to files in captureDir, then runs tail.
func captureEmulator(t *testing.T, captureDir, tail string) string {
	t.Helper()
	script := `#!/bin/sh
disk="${2#file=}"
disk="${disk%%,*}"
head -c 512 "$disk" > "` + filepath.Join(captureDir, "sector0") + `"
echo "$disk" >> "` + filepath.Join(captureDir, "disks") + `"
echo "$@" > "` + filepath.Join(captureDir, "args") + `"
` + tail + "\n"
	return writeScript(t, t.TempDir(), "qemu-system-i386", script)
}

func harnessTools(emulator, imageUtility string) toolchain.Availability {
	return toolchain.Availability{
		toolchain.Emulator:     {Name: toolchain.Emulator, Found: true, Path: emulator, Required: true},
		toolchain.ImageUtility: {Name: toolchain.ImageUtility, Found: true, Path: imageUtility, Required: true},
	}
}

func testImage(signed bool) models.BootImage {
	var image models.BootImage
	for i := 0; i < 510; i++ {
		image[i] = byte(i)
	}
	if signed {
		image[510], image[511] = 0x55, 0xAA
	}
	return image
}

func defaultParams() models.TestParameters {
	return models.TestParameters{TimeoutSeconds: 10, MemoryMB: 32, DiskSizeMB: 1, Snapshot: true, Isolated: true}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Fatalf("run directory left behind in %s: %v", dir, entries[0].Name())
	}
}

func TestDiskRoundTrip(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	disks := &DiskImager{Runner: &toolchain.ExecRunner{Logger: logging.Discard()}, Path: writeScript(t, dir, "qemu-img", fakeQemuImg)}
	diskPath := filepath.Join(dir, "disk.img")

	if err := disks.Create(context.Background(), diskPath, 1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	image := testImage(true)
	if err := WriteSector0(diskPath, image); err != nil {
		t.Fatalf("WriteSector0() error = %v", err)
	}

	got, err := ReadSector0(diskPath)
	if err != nil {
		t.Fatalf("ReadSector0() error = %v", err)
	}
	if got != image {
		t.Fatal("sector 0 does not round trip")
	}
	info, err := os.Stat(diskPath)
	if err != nil || info.Size() != 1<<20 {
		t.Fatalf("disk size changed: %v, %v", info, err)
	}
}

func TestDiskCreateFailure(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	failing := writeScript(t, dir, "qemu-img", "#!/bin/sh\necho 'qemu-img: unsupported format' >&2\nexit 1\n")
	disks := &DiskImager{Runner: &toolchain.ExecRunner{Logger: logging.Discard()}, Path: failing}

	err := disks.Create(context.Background(), filepath.Join(dir, "disk.img"), 1)
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("Create() error = %v, want qemu-img diagnostic", err)
	}
}

func TestRunTestBootsImageAndCleansUp(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	captureDir := t.TempDir()
	tempRoot := t.TempDir()
	harness := &Harness{
		Runner:   &toolchain.ExecRunner{Logger: logging.Discard()},
		Tools:    harnessTools(captureEmulator(t, captureDir, "exit 0"), writeScript(t, t.TempDir(), "qemu-img", fakeQemuImg)),
		TempRoot: tempRoot,
		Logger:   logging.Discard(),
	}
	image := testImage(true)

	outcome := harness.RunTest(context.Background(), image, "custom_message", defaultParams())
	if !outcome.Success || outcome.TimedOut || outcome.SignatureMissing {
		t.Fatalf("RunTest() = %+v", outcome)
	}
	if outcome.RunID == "" {
		t.Fatal("expected a run id")
	}

	sector, err := os.ReadFile(filepath.Join(captureDir, "sector0"))
	if err != nil {
		t.Fatalf("read captured sector: %v", err)
	}
	if !bytes.Equal(sector, image[:]) {
		t.Fatal("emulator disk does not start with the boot image")
	}

	args, err := os.ReadFile(filepath.Join(captureDir, "args"))
	if err != nil {
		t.Fatalf("read captured args: %v", err)
	}
	for _, want := range []string{"format=raw", "-m 32M", "-snapshot", "-nic none", "-name MBR Test - custom_message"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("emulator args %q missing %q", args, want)
		}
	}

	assertEmptyDir(t, tempRoot)
}

func TestRunTestTwiceUsesIndependentDirectories(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	captureDir := t.TempDir()
	tempRoot := t.TempDir()
	harness := &Harness{
		Runner:   &toolchain.ExecRunner{Logger: logging.Discard()},
		Tools:    harnessTools(captureEmulator(t, captureDir, "ls \"$(dirname \"$disk\")\" | wc -l > \""+filepath.Join(captureDir, "count")+"\""), writeScript(t, t.TempDir(), "qemu-img", fakeQemuImg)),
		TempRoot: tempRoot,
		Logger:   logging.Discard(),
	}

	first := harness.RunTest(context.Background(), testImage(true), "empty", defaultParams())
	assertEmptyDir(t, tempRoot)
	second := harness.RunTest(context.Background(), testImage(true), "empty", defaultParams())
	assertEmptyDir(t, tempRoot)

	if !first.Success || !second.Success {
		t.Fatalf("runs failed: %+v / %+v", first, second)
	}
	if first.RunID == second.RunID {
		t.Fatal("runs share a run id")
	}

	disks, err := os.ReadFile(filepath.Join(captureDir, "disks"))
	if err != nil {
		t.Fatalf("read disks: %v", err)
	}
	paths := strings.Fields(string(disks))
	if len(paths) != 2 || filepath.Dir(paths[0]) == filepath.Dir(paths[1]) {
		t.Fatalf("runs did not use distinct directories: %v", paths)
	}

	count, err := os.ReadFile(filepath.Join(captureDir, "count"))
	if err != nil {
		t.Fatalf("read count: %v", err)
	}
	if strings.TrimSpace(string(count)) != "1" {
		t.Fatalf("run directory held %s entries, want only its own disk", strings.TrimSpace(string(count)))
	}
}

func TestRunTestWarnsOnMissingSignature(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	captureDir := t.TempDir()
	harness := &Harness{
		Runner:   &toolchain.ExecRunner{Logger: logging.Discard()},
		Tools:    harnessTools(captureEmulator(t, captureDir, "exit 0"), writeScript(t, t.TempDir(), "qemu-img", fakeQemuImg)),
		TempRoot: t.TempDir(),
		Logger:   logging.Discard(),
	}

	signed := harness.RunTest(context.Background(), testImage(true), "empty", defaultParams())
	if signed.SignatureMissing {
		t.Fatal("signed image reported as missing its signature")
	}

	unsigned := harness.RunTest(context.Background(), testImage(false), "empty", defaultParams())
	if !unsigned.SignatureMissing {
		t.Fatal("expected a missing signature warning")
	}
	if !unsigned.Success {
		t.Fatalf("unsigned image did not proceed to test: %+v", unsigned)
	}
	if _, err := os.Stat(filepath.Join(captureDir, "sector0")); err != nil {
		t.Fatalf("emulator was not launched for the unsigned image: %v", err)
	}
}

func TestRunTestTimeoutCountsAsSuccess(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	tempRoot := t.TempDir()
	harness := &Harness{
		Runner:   &toolchain.ExecRunner{Logger: logging.Discard()},
		Tools:    harnessTools(captureEmulator(t, t.TempDir(), "sleep 30"), writeScript(t, t.TempDir(), "qemu-img", fakeQemuImg)),
		TempRoot: tempRoot,
		Logger:   logging.Discard(),
	}
	params := defaultParams()
	params.TimeoutSeconds = 1

	started := time.Now()
	outcome := harness.RunTest(context.Background(), testImage(true), "memz", params)
	elapsed := time.Since(started)

	if !outcome.Success || !outcome.TimedOut {
		t.Fatalf("RunTest() = %+v, want timed out success", outcome)
	}
	if !strings.Contains(outcome.Message, "completed") {
		t.Fatalf("Message = %q", outcome.Message)
	}
	if elapsed > 6*time.Second {
		t.Fatalf("RunTest() took %s, want about 1s", elapsed)
	}
	assertEmptyDir(t, tempRoot)
}

func TestRunTestUnavailable(t *testing.T) {
	t.Parallel()

	tempRoot := t.TempDir()
	harness := &Harness{
		Runner:   &toolchain.ExecRunner{Logger: logging.Discard()},
		Tools:    toolchain.Availability{},
		TempRoot: tempRoot,
		Logger:   logging.Discard(),
	}

	outcome := harness.RunTest(context.Background(), testImage(true), "empty", defaultParams())
	if outcome.Success || !outcome.Unavailable || len(outcome.Missing) != 2 {
		t.Fatalf("RunTest() = %+v, want unavailable", outcome)
	}
	assertEmptyDir(t, tempRoot)
}

func TestRunTestEmulatorCannotLaunch(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	tempRoot := t.TempDir()
	harness := &Harness{
		Runner:   &toolchain.ExecRunner{Logger: logging.Discard()},
		Tools:    harnessTools(filepath.Join(t.TempDir(), "missing-emulator"), writeScript(t, t.TempDir(), "qemu-img", fakeQemuImg)),
		TempRoot: tempRoot,
		Logger:   logging.Discard(),
	}

	outcome := harness.RunTest(context.Background(), testImage(true), "empty", defaultParams())
	if outcome.Success || !strings.Contains(outcome.Message, "could not launch emulator") {
		t.Fatalf("RunTest() = %+v", outcome)
	}
	assertEmptyDir(t, tempRoot)
}

func TestEmulatorArgs(t *testing.T) {
	t.Parallel()

	args := EmulatorArgs("/tmp/run,1/empty_test.img", "empty", models.TestParameters{MemoryMB: 64})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "file=/tmp/run,,1/empty_test.img,format=raw") {
		t.Fatalf("drive option not escaped: %s", joined)
	}
	if strings.Contains(joined, "-snapshot") || strings.Contains(joined, "-nic none") {
		t.Fatalf("snapshot or isolation enabled without being requested: %s", joined)
	}
	if !strings.Contains(joined, "-m 64M") {
		t.Fatalf("memory option missing: %s", joined)
	}

	args = EmulatorArgs("disk.img", "empty", models.TestParameters{Snapshot: true, Isolated: true})
	joined = strings.Join(args, " ")
	if !strings.Contains(joined, "-snapshot") || !strings.Contains(joined, "-nic none") {
		t.Fatalf("snapshot or isolation missing: %s", joined)
	}
}
