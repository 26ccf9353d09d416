// Package logging configures the process logger and exposes printf-style
// helpers over the global zerolog logger.
//
// Messages follow the "component.Method key=value" convention, e.g.
//
//	logging.Warnf("session.dial role=%s attempt=%d err=%v", role, attempt, err)
package logging

import "github.com/rs/zerolog/log"

func Tracef(format string, args ...any) {
	log.Trace().Msgf(format, args...)
}

func Debugf(format string, args ...any) {
	log.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	log.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	log.Warn().Msgf(format, args...)
}

func Errf(format string, args ...any) {
	log.Error().Msgf(format, args...)
}
