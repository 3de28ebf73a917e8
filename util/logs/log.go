// Package logs provides scoped, leveled loggers.
//
// Loggers are backed by github.com/pion/logging. The level of each scope is
// read from TH_LOG_<SCOPE> (falling back to TH_LOG_ALL) and may be one of
// trace, debug, info, notice, warn, error, fatal or disabled.
//
// A nil *Logger is valid and discards everything.
package logs

import (
	"fmt"
	"os"
	"strings"

	"github.com/pion/logging"

	"github.com/telehash/gotelehash/hashname"
)

var _ logging.LeveledLogger = (*Logger)(nil)

// Logger is a leveled logger with optional from/to hashname context.
type Logger struct {
	inner  logging.LeveledLogger
	module string
	from   string
	to     string
}

// New returns a logger for module created by factory.
func New(factory logging.LoggerFactory, module string) *Logger {
	if factory == nil {
		return nil
	}
	return &Logger{inner: factory.NewLogger(module), module: module}
}

// Wrap adapts an existing leveled logger.
func Wrap(inner logging.LeveledLogger) *Logger {
	if inner == nil {
		return nil
	}
	return &Logger{inner: inner}
}

func (l *Logger) From(id hashname.H) *Logger {
	if l == nil {
		return nil
	}

	x := new(Logger)
	*x = *l
	x.from = id.String()[:4]
	return x
}

func (l *Logger) To(id hashname.H) *Logger {
	if l == nil {
		return nil
	}

	x := new(Logger)
	*x = *l
	x.to = id.String()[:4]
	return x
}

func (l *Logger) Trace(msg string) {
	if l == nil {
		return
	}
	l.inner.Trace(l.decorate(msg))
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.inner.Trace(l.decorate(fmt.Sprintf(format, args...)))
}

func (l *Logger) Debug(msg string) {
	if l == nil {
		return
	}
	l.inner.Debug(l.decorate(msg))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.inner.Debug(l.decorate(fmt.Sprintf(format, args...)))
}

func (l *Logger) Info(msg string) {
	if l == nil {
		return
	}
	l.inner.Info(l.decorate(msg))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.inner.Info(l.decorate(fmt.Sprintf(format, args...)))
}

func (l *Logger) Warn(msg string) {
	if l == nil {
		return
	}
	l.inner.Warn(l.decorate(msg))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.inner.Warn(l.decorate(fmt.Sprintf(format, args...)))
}

func (l *Logger) Error(msg string) {
	if l == nil {
		return
	}
	l.inner.Error(l.decorate(msg))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.inner.Error(l.decorate(fmt.Sprintf(format, args...)))
}

func (l *Logger) decorate(msg string) string {
	if l.from == "" && l.to == "" {
		return msg
	}

	from, to := l.from, l.to
	if from == "" {
		from = "    " // 4 spaces
	}
	if to == "" {
		to = "    " // 4 spaces
	}
	return from + " " + to + " | " + msg
}

func levelFor(section string, def logging.LogLevel) logging.LogLevel {
	switch strings.ToLower(os.Getenv("TH_LOG_" + strings.ToUpper(section))) {
	case "trace":
		return logging.LogLevelTrace
	case "debug":
		return logging.LogLevelDebug
	case "info", "notice":
		return logging.LogLevelInfo
	case "warn":
		return logging.LogLevelWarn
	case "error", "fatal":
		return logging.LogLevelError
	case "disabled", "off":
		return logging.LogLevelDisabled
	default:
		return def
	}
}
