// Package logger constructs the process-global zerolog.Logger used
// throughout the pipeline.
package logger

import (
	"os"

	"github.com/ccstat-go/ccstat/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger, console-formatted to stderr,
// gated to debug level in development and info level otherwise.
func New(cfg *config.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}
