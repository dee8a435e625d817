package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, rejects unknown keys, and
// validates the result. Unknown keys are fatal because a silently ignored
// typo in a config file is hard to debug.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}

		sort.Strings(keys)

		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config with all defaults. Supports the zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// EnvOverrides holds values read from environment variables.
type EnvOverrides struct {
	ConfigPath  string // WANDERLORE_CONFIG: config file path
	IdentityURL string // WANDERLORE_IDENTITY_URL
	APIURL      string // WANDERLORE_API_URL
	ContentURL  string // WANDERLORE_CONTENT_URL
}

// Environment variable names for overrides.
const (
	EnvConfig      = "WANDERLORE_CONFIG"
	EnvIdentityURL = "WANDERLORE_IDENTITY_URL"
	EnvAPIURL      = "WANDERLORE_API_URL"
	EnvContentURL  = "WANDERLORE_CONTENT_URL"
)

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Callers apply the relevant fields via Resolve.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		IdentityURL: os.Getenv(EnvIdentityURL),
		APIURL:      os.Getenv(EnvAPIURL),
		ContentURL:  os.Getenv(EnvContentURL),
	}
}

// CLIOverrides holds values from command-line flags, the highest-priority
// layer.
type CLIOverrides struct {
	ConfigPath string
	APIURL     string
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.IdentityURL != "" {
		cfg.Service.IdentityURL = env.IdentityURL
	}

	if env.APIURL != "" {
		cfg.Service.APIURL = env.APIURL
	}

	if env.ContentURL != "" {
		cfg.Service.ContentURL = env.ContentURL
	}

	if cli.APIURL != "" {
		cfg.Service.APIURL = cli.APIURL
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
