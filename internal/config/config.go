package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - CLI flags in internal/cli/scan.go
	// - flag-to-key mapping in internal/flags/flags.go
	Search Search `koanf:"search"`
	Scan   Scan   `koanf:"scan"`
	Output Output `koanf:"output"`
	Log    Log    `koanf:"log"`
}

type Search struct {
	// Keywords are joined with spaces to form the free-text part of the query (see --keywords).
	// Values may be provided as repeated flags and/or comma-separated lists.
	Keywords []string `koanf:"keywords"`

	// Languages adds one language: qualifier per value (see --languages).
	Languages []string `koanf:"languages"`

	// Pushed adds one pushed: qualifier per value, e.g. ">2024-01-01" (see --pushed).
	Pushed []string `koanf:"pushed"`

	// Stars adds one stars: qualifier per value, e.g. ">100" (see --stars).
	Stars []string `koanf:"stars"`

	// Topics adds one topic: qualifier per value (see --topics).
	Topics []string `koanf:"topics"`

	// Rate caps search requests per minute (see --search-rate). 0 disables client-side pacing.
	Rate float64 `koanf:"rate"`
}

type Scan struct {
	// TargetDir is the base directory for working copies, laid out as TargetDir/owner/name (see --target-dir).
	TargetDir string `koanf:"target_dir"`

	// QueryFile holds one literal pattern per line (see --query-file).
	QueryFile string `koanf:"query_file"`

	// Remove deletes each working copy after it is scanned, then the emptied owner directories (see --rm).
	Remove bool `koanf:"rm"`

	// GitBackend selects how repositories are cloned and updated (see --git-backend).
	// Allowed values: git, go-git.
	GitBackend string `koanf:"git_backend"`

	// GitBinary is the git executable used by the git backend (see --git-binary).
	GitBinary string `koanf:"git_binary"`

	// Concurrency caps repositories processed at once (see --concurrency). 0 means no ceiling.
	Concurrency int `koanf:"concurrency"`
}

type Output struct {
	// Out is the CSV report path (see --out).
	Out string `koanf:"out"`

	// MetricsFile, when set, receives run metrics in Prometheus textfile format (see --metrics-file).
	MetricsFile string `koanf:"metrics_file"`
}

type Log struct {
	// Verbosity is the log level (see --verbosity).
	// Allowed values: off, error, warn, info, debug, trace.
	Verbosity string `koanf:"verbosity"`

	// Format selects the log encoder (see --log-format).
	// Allowed values: console, json.
	Format string `koanf:"format"`

	// VerboseHTTP logs every GitHub API request and response (see --verbose).
	VerboseHTTP bool `koanf:"verbose_http"`
}

const (
	DefaultSearchRate = 30
	DefaultGitBackend = "git"
	DefaultGitBinary  = "git"
	DefaultVerbosity  = "info"
	DefaultLogFormat  = "console"
)

func New() *Config {
	return &Config{
		Search: Search{
			Rate: DefaultSearchRate,
		},
		Scan: Scan{
			GitBackend: DefaultGitBackend,
			GitBinary:  DefaultGitBinary,
		},
		Log: Log{
			Verbosity: DefaultVerbosity,
			Format:    DefaultLogFormat,
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Search.Keywords = splitCommaList(c.Search.Keywords)
	c.Search.Languages = splitCommaList(c.Search.Languages)
	c.Search.Pushed = splitCommaList(c.Search.Pushed)
	c.Search.Stars = splitCommaList(c.Search.Stars)
	c.Search.Topics = splitCommaList(c.Search.Topics)

	c.Scan.TargetDir = strings.TrimSpace(c.Scan.TargetDir)
	c.Scan.QueryFile = strings.TrimSpace(c.Scan.QueryFile)
	c.Output.Out = strings.TrimSpace(c.Output.Out)
	c.Output.MetricsFile = strings.TrimSpace(c.Output.MetricsFile)

	// Required inputs
	if len(c.Search.Keywords) == 0 {
		return errors.New("--keywords is required")
	}
	if c.Scan.TargetDir == "" {
		return errors.New("--target-dir is required")
	}
	if c.Scan.QueryFile == "" {
		return errors.New("--query-file is required")
	}
	if c.Output.Out == "" {
		return errors.New("--out is required")
	}

	// Search validation
	if c.Search.Rate < 0 {
		return errors.New("--search-rate must be >= 0")
	}

	// Scan validation
	c.Scan.GitBackend = normalizeEnumValue(c.Scan.GitBackend)
	if c.Scan.GitBackend == "" {
		c.Scan.GitBackend = DefaultGitBackend
	}
	if c.Scan.GitBackend != "git" && c.Scan.GitBackend != "go-git" {
		return fmt.Errorf("unsupported --git-backend: %s (must be one of: git, go-git)", c.Scan.GitBackend)
	}
	c.Scan.GitBinary = strings.TrimSpace(c.Scan.GitBinary)
	if c.Scan.GitBinary == "" {
		c.Scan.GitBinary = DefaultGitBinary
	}
	if c.Scan.Concurrency < 0 {
		return errors.New("--concurrency must be >= 0")
	}

	// Logging validation
	c.Log.Verbosity = normalizeEnumValue(c.Log.Verbosity)
	if c.Log.Verbosity == "" {
		c.Log.Verbosity = DefaultVerbosity
	}
	switch c.Log.Verbosity {
	case "off", "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("unsupported --verbosity: %s (must be one of: off, error, warn, info, debug, trace)", c.Log.Verbosity)
	}

	c.Log.Format = normalizeEnumValue(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: console, json)", c.Log.Format)
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
