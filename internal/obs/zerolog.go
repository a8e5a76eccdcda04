package obs

import (
	"github.com/rs/zerolog"
)

// ZerologLogger sends log lines to a zerolog.Logger at the matching level.
type ZerologLogger struct {
	L zerolog.Logger
}

func (z ZerologLogger) Logf(level Level, format string, args ...interface{}) {
	var ev *zerolog.Event
	switch level {
	case Debug:
		ev = z.L.Debug()
	case Info:
		ev = z.L.Info()
	case Warn:
		ev = z.L.Warn()
	default:
		ev = z.L.Error()
	}
	// ev is nil when the level is disabled; Msgf is a no-op then.
	ev.Msgf(format, args...)
}

// ZerologLevel maps a Level to the zerolog level of the same name.
func ZerologLevel(l Level) zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
