package otr

import (
	"github.com/rs/zerolog"

	"avaneesh/otrfrag-go/pkg/internal/logger"
)

// LogLevel represents logging level
type LogLevel int

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug LogLevel = iota
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn
	// LevelError shows only error messages
	LevelError
)

// String returns the level name
func (l LogLevel) String() string {
	return logger.Level(l).String()
}

// ParseLogLevel converts a name such as "debug" or "warn" to a LogLevel.
// An empty name yields LevelInfo.
func ParseLogLevel(s string) (LogLevel, bool) {
	lvl, ok := logger.ParseLevel(s)
	return LogLevel(lvl), ok
}

// SetLogLevel sets the global logging level
func SetLogLevel(level LogLevel) {
	logger.GetDefault().SetLevel(logger.Level(level))
}

// UseZerolog routes library logging through zl
func UseZerolog(zl zerolog.Logger, level LogLevel) {
	logger.SetDefault(logger.FromZerolog(zl, logger.Level(level)))
}

// DisableLogging silences the global logger
func DisableLogging() {
	logger.SetDefault(logger.NewNoOpLogger())
}
