// Package logger constructs the engine's zerolog loggers.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"example.com/inklink/internal/config"
)

// New builds the root logger from the logging configuration. Output goes
// to w; pass os.Stderr for normal operation.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).
		Level(parseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with a component name, so log
// lines from the codec, session and dispatcher are distinguishable.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Nop returns a disabled logger for tests and for callers that do not
// care about engine logs.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func parseLevel(lvl config.LogLevel) zerolog.Level {
	switch lvl {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	case config.LogLevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
