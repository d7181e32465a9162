package config

import "strings"

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RetryBackoffFixed):
		return RetryBackoffFixed
	case string(RetryBackoffLinear):
		return RetryBackoffLinear
	case string(RetryBackoffExponential):
		return RetryBackoffExponential
	default:
		return ""
	}
}

// RetryConfig controls retry behavior for transient git transport failures.
type RetryConfig struct {
	MaxRetries   int    `yaml:"max_retries"`
	Backoff      string `yaml:"backoff,omitempty"`       // fixed|linear|exponential
	InitialDelay string `yaml:"initial_delay,omitempty"` // duration string, e.g. "500ms"
	MaxDelay     string `yaml:"max_delay,omitempty"`     // duration string, e.g. "10s"
}
