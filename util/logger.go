// Package util provides low-level helpers shared by all other packages.
package util

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats accepted by NewLogger.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Logger is a structured, levelled logger.  The embedded
// SugaredLogger provides the Infow/Debugw/... call style; the level is
// atomic so it can be changed while the server runs.
type Logger struct {
	*zap.SugaredLogger
	level zap.AtomicLevel
}

// LevelFor maps a -v count onto a zap level
// (0 = errors only, 1 = info, 2+ = debug).
func LevelFor(verbosity int) zapcore.Level {
	switch {
	case verbosity <= 0:
		return zapcore.ErrorLevel
	case verbosity == 1:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// NewLogger returns a Logger writing to stderr.
func NewLogger(verbosity int, format string) *Logger {
	return NewLoggerTo(os.Stderr, verbosity, format)
}

// NewLoggerTo returns a Logger writing to w in the given format
// ("console" or "json"; anything else falls back to console).
func NewLoggerTo(w io.Writer, verbosity int, format string) *Logger {
	level := zap.NewAtomicLevelAt(LevelFor(verbosity))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == FormatJSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return &Logger{SugaredLogger: zap.New(core).Sugar(), level: level}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		level:         zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// SetVerbosity changes the level of this logger and every logger
// derived from it with Named or With.
func (l *Logger) SetVerbosity(verbosity int) { l.level.SetLevel(LevelFor(verbosity)) }

// Level returns the current level.
func (l *Logger) Level() zapcore.Level { return l.level.Level() }

// Named adds a sub-scope to the logger's name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name), level: l.level}
}

// With adds structured context to the logger.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...), level: l.level}
}
