package flags

// Package flags defines canonical CLI flag names shared across the CLI and the
// config loader. Keeping these as constants helps avoid drift between Cobra
// flag wiring and the koanf keys they populate.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringSliceVarP(&cfg.Search.Keywords, flags.FlagKeywords, "k", nil, "...")
//	arg := "--" + flags.FlagKeywords
const (
	// Search
	FlagKeywords   = "keywords"
	FlagLanguages  = "languages"
	FlagPushed     = "pushed"
	FlagStars      = "stars"
	FlagTopics     = "topics"
	FlagSearchRate = "search-rate"

	// Scan
	FlagTargetDir   = "target-dir"
	FlagQueryFile   = "query-file"
	FlagRemove      = "rm"
	FlagGitBackend  = "git-backend"
	FlagGitBinary   = "git-binary"
	FlagConcurrency = "concurrency"

	// Output
	FlagOut         = "out"
	FlagMetricsFile = "metrics-file"

	// Logging
	FlagVerbosity = "verbosity"
	FlagLogFormat = "log-format"
	FlagVerbose   = "verbose"

	// FlagConfig names the optional YAML config file. It has no config key.
	FlagConfig = "config"
)

// Keys maps each flag to its dotted config key. Flags absent from Keys are
// not loaded into the config.
var Keys = map[string]string{
	FlagKeywords:   "search.keywords",
	FlagLanguages:  "search.languages",
	FlagPushed:     "search.pushed",
	FlagStars:      "search.stars",
	FlagTopics:     "search.topics",
	FlagSearchRate: "search.rate",

	FlagTargetDir:   "scan.target_dir",
	FlagQueryFile:   "scan.query_file",
	FlagRemove:      "scan.rm",
	FlagGitBackend:  "scan.git_backend",
	FlagGitBinary:   "scan.git_binary",
	FlagConcurrency: "scan.concurrency",

	FlagOut:         "output.out",
	FlagMetricsFile: "output.metrics_file",

	FlagVerbosity: "log.verbosity",
	FlagLogFormat: "log.format",
	FlagVerbose:   "log.verbose_http",
}
