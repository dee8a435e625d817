// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for wanderlore-go. Overrides layer as
// defaults -> config file -> environment -> CLI flags, so one-off flag
// overrides never require editing the config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the top-level structure parsed from a TOML file.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Places  PlacesConfig  `toml:"places"`
	Logging LoggingConfig `toml:"logging"`
}

// ServiceConfig holds the endpoints of the external collaborators.
type ServiceConfig struct {
	IdentityURL string `toml:"identity_url"`
	APIURL      string `toml:"api_url"`
	ContentURL  string `toml:"content_url"`
	Timeout     string `toml:"timeout"`
}

// PlacesConfig holds the default search parameters for nearby queries.
type PlacesConfig struct {
	RadiusMeters int    `toml:"radius_m"`
	MaxResults   int    `toml:"max_results"`
	TourType     string `toml:"tour_type"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `toml:"log_level"`
}

// Default values — the layer-0 of the override chain.
const (
	defaultIdentityURL = "https://auth.wanderlore.app"
	defaultAPIURL      = "https://api.wanderlore.app/v1"
	defaultContentURL  = "https://content.wanderlore.app"
	defaultTimeout     = "30s"
	defaultRadius      = 1500
	defaultMaxResults  = 20
	defaultTourType    = "history"
	defaultLogLevel    = "info"
)

// Search parameter bounds.
const (
	minRadius         = 50
	maxRadius         = 50000
	minResults        = 1
	maxResultsAllowed = 100
	minTimeout        = time.Second
	maxTimeout        = 5 * time.Minute
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (unset fields keep their
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			IdentityURL: defaultIdentityURL,
			APIURL:      defaultAPIURL,
			ContentURL:  defaultContentURL,
			Timeout:     defaultTimeout,
		},
		Places: PlacesConfig{
			RadiusMeters: defaultRadius,
			MaxResults:   defaultMaxResults,
			TourType:     defaultTourType,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// Validate checks all configuration values and returns all errors found,
// joined, so the user fixes the file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	for name, raw := range map[string]string{
		"identity_url": cfg.Service.IdentityURL,
		"api_url":      cfg.Service.APIURL,
		"content_url":  cfg.Service.ContentURL,
	} {
		if err := validateURL(name, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if d, err := time.ParseDuration(cfg.Service.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("timeout: %w", err))
	} else if d < minTimeout || d > maxTimeout {
		errs = append(errs, fmt.Errorf("timeout must be between %s and %s, got %s", minTimeout, maxTimeout, d))
	}

	if cfg.Places.RadiusMeters < minRadius || cfg.Places.RadiusMeters > maxRadius {
		errs = append(errs, fmt.Errorf("radius_m must be between %d and %d, got %d", minRadius, maxRadius, cfg.Places.RadiusMeters))
	}

	if cfg.Places.MaxResults < minResults || cfg.Places.MaxResults > maxResultsAllowed {
		errs = append(errs, fmt.Errorf("max_results must be between %d and %d, got %d", minResults, maxResultsAllowed, cfg.Places.MaxResults))
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", cfg.Logging.Level))
	}

	return errors.Join(errs...)
}

// RequestTimeout returns the parsed service timeout. Call after Validate.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Service.Timeout)
	if err != nil {
		d, _ = time.ParseDuration(defaultTimeout)
	}

	return d
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}

	return nil
}
