package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"octosurf/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "octosurf",
	Short: "Count literal patterns across GitHub repositories found by search",
	Long: `OctoSurf searches GitHub for repositories, clones or updates each one
locally, and counts whole-word occurrences of a list of literal patterns.
The counts are written as one CSV table with a row per repository.

Examples:
	# Show available commands and global flags
	octosurf --help

	# Scan repositories matching a search
	octosurf scan --keywords tokio --languages rust \
		--target-dir ./repos --query-file patterns.txt --out report.csv

	# Check how a pattern file is read
	octosurf patterns list --query-file patterns.txt

	# Print build info
	octosurf version`,
}

func init() {
	rootCmd.PersistentFlags().Bool(flags.FlagVerbose, false, "Log every GitHub API request and response")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// signalContext is canceled on the first SIGINT or SIGTERM. In-flight
// repositories then fail and the run ends with what it has.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func Execute() {
	ctx, stop := signalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
