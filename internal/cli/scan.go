package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"octosurf/internal/config"
	"octosurf/internal/engine"
	"octosurf/internal/flags"
	gh "octosurf/internal/github"
	"octosurf/internal/logging"
	"octosurf/internal/metrics"
)

const scanHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
  OctoSurf authenticates to GitHub using an access token.

  Sources (in order):
  1) GITHUB_TOKEN environment variable
  2) GH_TOKEN environment variable
  3) GitHub CLI (gh) authentication via gh auth token (if gh is installed and logged in)

  Search only needs public access, so a token without scopes is enough.

  Every flag can also be set as OCTOSURF_<SECTION>_<NAME>, for example
  OCTOSURF_SCAN_TARGET_DIR or OCTOSURF_SEARCH_KEYWORDS (comma-separated),
  or in the YAML file given by --config.

  Examples:
    # macOS/Linux
    export GITHUB_TOKEN="<your_token>"
    octosurf scan -k tokio -d ./repos -q patterns.txt -o report.csv

    # GitHub CLI auth
    gh auth login
    octosurf scan -k tokio -d ./repos -q patterns.txt -o report.csv

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasHelpSubCommands}}Additional help topics:
{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Search GitHub and count pattern occurrences in every result",
	Long: `Search GitHub for repositories and count whole-word occurrences of each
pattern in every file of every result.

Each result is cloned (shallow) into --target-dir/OWNER/NAME, or updated if it
is already there. Hidden files and directories and binary files are skipped.
Search requests are paced and wait for the rate limit to recover.

Output:
	--out receives a CSV table: a "repo" column followed by one column per
	pattern in file order, and one row per successfully scanned repository.
	Repositories that fail are logged and left out of the table.
	--metrics-file receives run counters in Prometheus textfile format.

Exit codes:
	0 = clean run
	2 = partial failure (some repositories failed)
	3 = fatal error (bad configuration, search failed, or output not written)

Examples:
  # Rust repositories pushed this year, removing working copies afterwards
  octosurf scan --keywords tokio --languages rust --pushed ">2024-01-01" \
    --target-dir ./repos --query-file patterns.txt --out report.csv --rm

  # Same run from a config file, with JSON logs
  octosurf scan --config octosurf.yaml --log-format json
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().NFlag() == 0 && !hasEnvConfig() {
			_ = cmd.Help()
			return
		}
		os.Exit(runScan(cmd.Context(), cmd, os.Stderr))
	},
}

// runScan loads the configuration, runs the engine and returns the exit code.
func runScan(ctx context.Context, cmd *cobra.Command, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}

	configPath, _ := cmd.Flags().GetString(flags.FlagConfig)
	if configPath == "" {
		configPath = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.Load(cmd.Flags(), configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Verbosity,
		Format: cfg.Log.Format,
		Writer: stderr,
		RunID:  logging.NewRunID(),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to set up logging: %v\n", err)
		return 3
	}
	defer func() { _ = logging.Sync(logger) }()

	token, source, err := gh.ResolveAuthToken(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to resolve GitHub auth token: %v\n", err)
		return 3
	}
	if strings.TrimSpace(token) == "" {
		fmt.Fprintln(stderr, "Error: GitHub auth token is required (set GITHUB_TOKEN or GH_TOKEN, or run 'gh auth login')")
		return 3
	}
	logging.Trace(logger, "resolved GitHub token", zap.String("source", string(source)))

	client, err := gh.NewClient(ctx, token, gh.WithVerbose(cfg.Log.VerboseHTTP, logger))
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to create GitHub client: %v\n", err)
		return 3
	}

	eng, err := engine.NewEngine(engine.Deps{
		Client:  client,
		Token:   token,
		Logger:  logger,
		Metrics: metrics.New(),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	summary, runErr := eng.Run(ctx, cfg)
	if runErr != nil {
		fmt.Fprintf(stderr, "Error: %s\n", engine.PresentError(runErr, cfg.Log.VerboseHTTP))
	}
	if cfg.Log.Verbosity != logging.LevelOff {
		printSummary(stderr, summary, runErr)
	}
	return engine.ExitCode(summary, runErr)
}

func printSummary(w io.Writer, s engine.Summary, runErr error) {
	status := color.New(color.FgGreen, color.Bold)
	switch engine.ExitCode(s, runErr) {
	case 2:
		status = color.New(color.FgYellow, color.Bold)
	case 3:
		status = color.New(color.FgRed, color.Bold)
	}
	status.Fprintf(w, "Checked %d repos", s.Total)
	fmt.Fprintf(w, ", of which %d succeeded and %d failed.\n", s.Succeeded, s.Failed)
}

func hasEnvConfig() bool {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, config.EnvPrefix) {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.SetHelpTemplate(scanHelpTemplate)

	addScanFlags(scanCmd.Flags())
}

// addScanFlags registers the scan flags on f.
//
// MAINTAINER NOTE: every flag below must have an entry in flags.Keys,
// or config.Load will ignore it.
func addScanFlags(f *pflag.FlagSet) {
	def := config.New()

	// Search
	f.StringSliceP(flags.FlagKeywords, "k", nil, "Search keywords, joined with spaces (required; repeatable; comma-separated accepted)")
	f.StringSliceP(flags.FlagLanguages, "l", nil, "Restrict to repositories in these languages (repeatable; comma-separated accepted)")
	f.StringSlice(flags.FlagPushed, nil, `Pushed-date qualifier(s), e.g. ">2024-01-01" (repeatable; comma-separated accepted)`)
	f.StringSlice(flags.FlagStars, nil, `Star-count qualifier(s), e.g. ">100" (repeatable; comma-separated accepted)`)
	f.StringSlice(flags.FlagTopics, nil, "Topic qualifier(s) (repeatable; comma-separated accepted)")
	f.Float64(flags.FlagSearchRate, def.Search.Rate, "Maximum search requests per minute (0 = no client-side pacing)")

	// Scan
	f.StringP(flags.FlagTargetDir, "d", "", "Base directory for working copies, laid out as OWNER/NAME (required)")
	f.StringP(flags.FlagQueryFile, "q", "", "File with one literal pattern per line (required)")
	f.Bool(flags.FlagRemove, false, "Delete each working copy after scanning it, then the emptied owner directories")
	f.String(flags.FlagGitBackend, def.Scan.GitBackend, "How repositories are cloned and updated: git|go-git")
	f.String(flags.FlagGitBinary, def.Scan.GitBinary, "git executable used by the git backend")
	f.Int(flags.FlagConcurrency, 0, "Maximum repositories processed at once (0 = no limit)")

	// Output
	f.StringP(flags.FlagOut, "o", "", "CSV report path (required)")
	f.String(flags.FlagMetricsFile, "", "Write run metrics in Prometheus textfile format to this path")

	// Logging
	f.StringP(flags.FlagVerbosity, "v", def.Log.Verbosity, "Log level: off|error|warn|info|debug|trace")
	f.String(flags.FlagLogFormat, def.Log.Format, "Log format: console|json")

	f.String(flags.FlagConfig, "", "YAML config file; flags and OCTOSURF_* variables override it")
}
