package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"octosurf/internal/flags"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "OCTOSURF_"

// Load builds a validated Config.
//
// Precedence (highest to lowest):
//  1. Flags explicitly set on fs
//  2. Environment variables (OCTOSURF_SCAN_TARGET_DIR -> scan.target_dir)
//  3. YAML config file at configPath (optional)
//  4. Flag defaults, then New()
//
// fs may be nil.
func Load(fs *pflag.FlagSet, configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath = strings.TrimSpace(configPath); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Split on the first underscore only (section.field_name), e.g.
	//   OCTOSURF_SEARCH_KEYWORDS -> search.keywords
	//   OCTOSURF_OUTPUT_METRICS_FILE -> output.metrics_file
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if fs != nil {
		// Changed flags always win. Unchanged flags only fill keys that no
		// earlier source set, so their defaults sit below file and env.
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flags.Keys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := New()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}
