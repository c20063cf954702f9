package logger

import (
	"github.com/pion/logging"
)

// PionLogger adapts Logger to pion's logging.LoggerFactory so the
// webrtc stack logs through the same sink as the rest of the process.
type PionLogger struct {
	log *Logger
}

func NewPionLogger(root *Logger) *PionLogger {
	return &PionLogger{log: root}
}

func (p *PionLogger) NewLogger(scope string) logging.LeveledLogger {
	return &pionLeveled{log: p.log.Extend(p.log.With().Str("mod", scope))}
}

type pionLeveled struct {
	log *Logger
}

func (p *pionLeveled) Trace(msg string) { p.log.Trace().Msg(msg) }

func (p *pionLeveled) Tracef(format string, args ...any) { p.log.Trace().Msgf(format, args...) }

func (p *pionLeveled) Debug(msg string) { p.log.Debug().Msg(msg) }

func (p *pionLeveled) Debugf(format string, args ...any) { p.log.Debug().Msgf(format, args...) }

func (p *pionLeveled) Info(msg string) { p.log.Info().Msg(msg) }

func (p *pionLeveled) Infof(format string, args ...any) { p.log.Info().Msgf(format, args...) }

func (p *pionLeveled) Warn(msg string) { p.log.Warn().Msg(msg) }

func (p *pionLeveled) Warnf(format string, args ...any) { p.log.Warn().Msgf(format, args...) }

func (p *pionLeveled) Error(msg string) { p.log.Error().Msg(msg) }

func (p *pionLeveled) Errorf(format string, args ...any) { p.log.Error().Msgf(format, args...) }
