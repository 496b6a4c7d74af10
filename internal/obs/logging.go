// Package obs carries the service's ambient logging and metrics concerns.
package obs

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide zerolog.Logger. levelName is the
// lower-case zerolog level name (e.g. "info", "debug"); unrecognized or
// empty values default to info.
func NewLogger(levelName, component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName)))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", component).
		Logger()
}
