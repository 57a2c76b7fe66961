package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"octosurf/internal/engine"
	"octosurf/internal/flags"
)

func withoutEnv(keys ...string) []string {
	out := make([]string, 0, len(os.Environ()))
	for _, e := range os.Environ() {
		k, _, _ := strings.Cut(e, "=")
		if slices.Contains(keys, k) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	// internal/cli -> repo root
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func goExe() string {
	if runtime.GOOS == "windows" {
		return "go.exe"
	}
	return "go"
}

func buildOctoSurfBinary(t *testing.T) string {
	t.Helper()

	outPath := filepath.Join(t.TempDir(), "octosurf-test")
	if runtime.GOOS == "windows" {
		outPath += ".exe"
	}

	cmd := exec.Command(goExe(), "build", "-o", outPath, "./cmd/octosurf")
	cmd.Dir = repoRoot(t)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build octosurf binary: %v; output=%s", err, string(out))
	}

	return outPath
}

func exitCodeOf(t *testing.T, err error, out []byte) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %T: %v; output=%s", err, err, string(out))
	}
	return exitErr.ProcessState.ExitCode()
}

// newTestScanCmd returns a fresh command with the scan flags so tests do not
// share flag state through the package-level scanCmd.
func newTestScanCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "scan"}
	addScanFlags(cmd.Flags())
	cmd.Flags().Bool(flags.FlagVerbose, false, "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cmd
}

func TestScan_ExitCode3_WhenRequiredFlagMissing(t *testing.T) {
	binary := buildOctoSurfBinary(t)
	// Pass a flag to bypass the "print help if no flags" check.
	cmd := exec.Command(binary, "scan", "--verbosity", "off")
	cmd.Env = withoutEnv("OCTOSURF_SEARCH_KEYWORDS")

	out, err := cmd.CombinedOutput()
	if code := exitCodeOf(t, err, out); code != 3 {
		t.Fatalf("expected exit code 3, got %d; output=%s", code, string(out))
	}
	if !strings.Contains(string(out), "--keywords is required") {
		t.Fatalf("expected validation message; output=%s", string(out))
	}
}

func TestScan_ExitCode3_WhenGitHubTokenMissing(t *testing.T) {
	binary := buildOctoSurfBinary(t)
	dir := t.TempDir()
	cmd := exec.Command(binary, "scan",
		"-k", "tokio", "-d", filepath.Join(dir, "repos"),
		"-q", filepath.Join(dir, "patterns.txt"), "-o", filepath.Join(dir, "out.csv"))
	// Ensure we don't accidentally pick up a developer's GitHub CLI session.
	// The scan command will attempt `gh auth token` as a fallback.
	cmd.Env = append(withoutEnv("GITHUB_TOKEN", "GH_TOKEN", "PATH"), "PATH="+t.TempDir())

	out, err := cmd.CombinedOutput()
	if code := exitCodeOf(t, err, out); code != 3 {
		t.Fatalf("expected exit code 3, got %d; output=%s", code, string(out))
	}
	if !strings.Contains(string(out), "GitHub auth token is required") {
		t.Fatalf("expected token-required message; output=%s", string(out))
	}
	if _, statErr := os.Stat(filepath.Join(dir, "repos")); !os.IsNotExist(statErr) {
		t.Fatalf("target dir must not be created when startup fails")
	}
}

func TestScan_Help_DocumentsOutputAndExitCodes(t *testing.T) {
	binary := buildOctoSurfBinary(t)
	cmd := exec.Command(binary, "scan", "--help")

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("expected zero exit; err=%v; output=%s", err, string(out))
	}

	s := string(out)
	required := []string{
		"Output:",
		"Exit codes:",
		"GITHUB_TOKEN",
		"OCTOSURF_",
		"--" + flags.FlagKeywords,
		"--" + flags.FlagQueryFile,
		"--" + flags.FlagRemove,
		"--" + flags.FlagVerbose,
	}
	for _, r := range required {
		if !strings.Contains(s, r) {
			t.Fatalf("expected scan --help to contain %q; output=%s", r, s)
		}
	}
}

func TestRunScan_ConfigErrorIsFatal(t *testing.T) {
	cmd := newTestScanCmd(t, "--target-dir", t.TempDir(), "--query-file", "p.txt", "--out", "o.csv")

	var stderr bytes.Buffer
	if code := runScan(context.Background(), cmd, &stderr); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--keywords is required") {
		t.Fatalf("expected validation message; stderr=%s", stderr.String())
	}
}

func TestRunScan_MissingTokenIsFatal(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("PATH", t.TempDir())
	dir := t.TempDir()
	cmd := newTestScanCmd(t,
		"-k", "tokio", "-d", filepath.Join(dir, "repos"),
		"-q", filepath.Join(dir, "p.txt"), "-o", filepath.Join(dir, "o.csv"),
		"--verbosity", "off")

	var stderr bytes.Buffer
	if code := runScan(context.Background(), cmd, &stderr); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if !strings.Contains(stderr.String(), "GitHub auth token is required") {
		t.Fatalf("expected token-required message; stderr=%s", stderr.String())
	}
}

func TestPrintSummary(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	printSummary(&buf, engine.Summary{Total: 3, Succeeded: 2, Failed: 1}, nil)
	if got, want := buf.String(), "Checked 3 repos, of which 2 succeeded and 1 failed.\n"; got != want {
		t.Fatalf("printSummary() = %q, want %q", got, want)
	}
}

func TestHasEnvConfig(t *testing.T) {
	for _, e := range os.Environ() {
		if k, _, ok := strings.Cut(e, "="); ok && strings.HasPrefix(k, "OCTOSURF_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
	if hasEnvConfig() {
		t.Fatalf("expected no OCTOSURF_ variables")
	}
	t.Setenv("OCTOSURF_SCAN_RM", "true")
	if !hasEnvConfig() {
		t.Fatalf("expected OCTOSURF_SCAN_RM to count as configuration")
	}
}
