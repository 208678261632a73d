package reliability

import (
	"os"
	"strconv"
)

// ReliabilityConfig holds configuration for reliability testing
type ReliabilityConfig struct {
	Level    string // "basic" or "stress"
	MaxDepth int    // Deepest nesting exercised
	MaxSpans int    // Largest sibling count exercised
	Traces   int    // Independent traces reconstructed in parallel
	Workers  int    // Parallelism for ReconstructAll
}

// getReliabilityConfig reads configuration from environment variables
func getReliabilityConfig() ReliabilityConfig {
	config := ReliabilityConfig{
		Level:    getEnv("METERZ_RELIABILITY_LEVEL", ""),
		MaxDepth: parseInt(getEnv("METERZ_RELIABILITY_MAX_DEPTH", "10000"), 10000),
		MaxSpans: parseInt(getEnv("METERZ_RELIABILITY_MAX_SPANS", "100000"), 100000),
		Traces:   parseInt(getEnv("METERZ_RELIABILITY_TRACES", "64"), 64),
		Workers:  parseInt(getEnv("METERZ_RELIABILITY_WORKERS", "8"), 8),
	}

	if config.Level == "stress" {
		config.MaxDepth *= 10
		config.MaxSpans *= 10
		config.Traces *= 4
	}

	return config
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses integer from string with default fallback
func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return fallback
}
