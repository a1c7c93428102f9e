package obs

import "github.com/rs/zerolog"

// ZeroLogger bridges Logger to a zerolog.Logger.
type ZeroLogger struct {
	L zerolog.Logger
}

func (z ZeroLogger) Logf(level Level, format string, args ...interface{}) {
	switch level {
	case Debug:
		z.L.Debug().Msgf(format, args...)
	case Info:
		z.L.Info().Msgf(format, args...)
	case Warn:
		z.L.Warn().Msgf(format, args...)
	default:
		z.L.Error().Msgf(format, args...)
	}
}
