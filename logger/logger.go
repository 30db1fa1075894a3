// Package logger wires Ghillie's GHILLIE_LOG_LEVEL onto a structured
// zerolog.Logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/ghillie/ghillie/config"
)

var levels = map[string]zerolog.Level{
	"TRACE":    zerolog.TraceLevel,
	"DEBUG":    zerolog.DebugLevel,
	"INFO":     zerolog.InfoLevel,
	"WARN":     zerolog.WarnLevel,
	"WARNING":  zerolog.WarnLevel,
	"ERROR":    zerolog.ErrorLevel,
	"CRITICAL": zerolog.FatalLevel,
}

// New returns a configured zerolog.Logger. It warns on stderr once if the
// configured level was invalid and INFO was substituted, matching
// normalize_log_level()'s invalid-input contract.
func New(cfg *config.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	lvl, ok := levels[cfg.LogLevel]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log := zerolog.New(out).With().Timestamp().Logger()
	if cfg.LogLevelInvalid {
		log.Warn().Msg("GHILLIE_LOG_LEVEL was invalid or unset, defaulting to INFO")
	}
	return log
}
