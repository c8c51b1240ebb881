// Package logger wraps zerolog behind the teacher's leveled call surface
// (Info/Infof/Error/Errorf/Debug/Debugf), so the rest of the codebase keeps
// calling the same methods while the backend gains structured, levelled
// output and console-pretty-printing.
//
// Grounded on go-core-stack-mcp-auth-proxy, which configures zerolog's
// ConsoleWriter the same way (colorable stderr, timestamped lines; here the
// time is printed as 15:04:05.000) and on
// the teacher's own Logger, whose method set this package preserves.
package logger

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
)

// Level mirrors the teacher's verbosity levels, mapped onto zerolog's.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger adapts zerolog.Logger to cok's call sites. The logging methods are
// safe for concurrent use; zerolog.Logger itself is immutable value and its
// Writer handles its own synchronization. SetLevel replaces the wrapped
// logger without locking and is not safe to call concurrently with them.
type Logger struct {
	zl zerolog.Logger
}

// New creates a Logger writing human-readable, colorized lines to stderr at
// the given minimum level.
func New(level Level) *Logger {
	writer := zerolog.ConsoleWriter{Out: colorable.NewColorable(os.Stderr), TimeFormat: "15:04:05.000"}
	zl := zerolog.New(writer).Level(level.zerolog()).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.zl = l.zl.Level(level.zerolog())
}

// With returns a child Logger with field attached to every subsequent
// message — used to scope log lines to a tunnel id or request id without
// repeating it in every message string.
func (l *Logger) With(field, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(field, value).Logger()}
}

func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
