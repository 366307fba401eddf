// Package logging hands out scoped leveled loggers for the library.
// Verbosity defaults come from the standard PION_LOG_* environment variables.
package logging

import (
	"github.com/pion/logging"
)

var loggerFactory = logging.NewDefaultLoggerFactory()

// NewLogger returns a leveled logger for the given scope.
func NewLogger(scope string) logging.LeveledLogger {
	return loggerFactory.NewLogger(scope)
}

// SetLevel overrides the default verbosity for every scope. Loggers created
// before the call keep their level.
func SetLevel(level logging.LogLevel) {
	loggerFactory.DefaultLogLevel = level
}
