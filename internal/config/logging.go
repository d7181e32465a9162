package config

import "strings"

// LogLevel enumerates supported logging levels (mapped onto slog levels at setup).
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// NormalizeLogLevel converts arbitrary user input into a typed level, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogLevelDebug):
		return LogLevelDebug
	case string(LogLevelWarn):
		return LogLevelWarn
	case string(LogLevelError):
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// NormalizeLogFormat converts arbitrary user input into a typed format, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat {
	if strings.ToLower(strings.TrimSpace(raw)) == string(LogFormatJSON) {
		return LogFormatJSON
	}
	return LogFormatText
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug|info|warn|error
	Format string `yaml:"format,omitempty"` // text|json
}
