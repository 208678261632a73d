// Package config loads and validates meterz configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all command configuration.
type Config struct {
	// Cost settings.
	Overhead  uint64 // Units subtracted from every span's gross cost.
	LineLimit int    // Per-line channel limit; 0 is unlimited.

	// Profiles.
	ProfilesPath string // HCL file of named overhead profiles.
	Profile      string // Profile to apply, if any.

	// Reconstruction.
	Workers int // Parallel reconstructions.
	Top     int // Rows per report table; 0 shows all.

	// Storage.
	DatabasePath string // SQLite file; empty disables persistence.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Logging.
	LogLevel  string // "debug", "info", "warn" or "error"
	LogFormat string // "text" or "json"
	LogFile   string // Optional JSON log file, in addition to stderr.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		ProfilesPath: envStr("METERZ_PROFILES", "meterz.hcl"),
		Profile:      envStr("METERZ_PROFILE", ""),
		DatabasePath: envStr("METERZ_DB", ""),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "meterz"),
		LogLevel:     envStr("METERZ_LOG_LEVEL", "info"),
		LogFormat:    envStr("METERZ_LOG_FORMAT", "text"),
		LogFile:      envStr("METERZ_LOG_FILE", ""),
	}

	var err error
	cfg.Overhead, err = envUint64("METERZ_OVERHEAD", 0)
	collect(err)
	cfg.LineLimit, err = envInt("METERZ_LINE_LIMIT", 0)
	collect(err)
	cfg.Workers, err = envInt("METERZ_WORKERS", 4)
	collect(err)
	cfg.Top, err = envInt("METERZ_TOP", 20)
	collect(err)
	cfg.OTELInsecure, err = envBool("METERZ_OTEL_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.LineLimit < 0 {
		return fmt.Errorf("config: METERZ_LINE_LIMIT must not be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: METERZ_WORKERS must be positive")
	}
	if c.Top < 0 {
		return fmt.Errorf("config: METERZ_TOP must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: METERZ_LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: METERZ_LOG_FORMAT %q is not one of text, json", c.LogFormat)
	}
	return nil
}

// ApplyProfile copies a profile's settings over the configuration.
func (c *Config) ApplyProfile(p Profile) {
	c.Profile = p.Name
	c.Overhead = p.Overhead
	if p.LineLimit > 0 {
		c.LineLimit = p.LineLimit
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envUint64(key string, defaultVal uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid unit count", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}
