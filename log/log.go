// Package log provides the leveled logger used across hookstorm.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging contract consumed by the registry and dispatcher.
// Implementations must be safe for concurrent use.
type Logger interface {
	// Debugf logs a message at debug level.
	Debugf(format string, args ...any)
	// Infof logs a message at info level.
	Infof(format string, args ...any)
	// Warnf logs a message at warn level.
	Warnf(format string, args ...any)
	// Errorf logs a message at error level.
	Errorf(format string, args ...any)
}

// Level controls the minimum severity a logger emits.
type Level int

// Log levels.
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// zapLevel maps a Level to its zap equivalent.
func zapLevel(l Level) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// logger wraps a zap sugared logger.
type logger struct {
	sugared *zap.SugaredLogger
}

// New creates a Logger writing console-encoded lines to w at the given level.
func New(level Level, w io.Writer) Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(w),
		zapLevel(level),
	)
	return &logger{sugared: zap.New(core).Sugar()}
}

// Default returns a logger writing to stderr at info level.
func Default() Logger {
	return New(InfoLevel, os.Stderr)
}

func (l *logger) Debugf(format string, args ...any) { l.sugared.Debugf(format, args...) }
func (l *logger) Infof(format string, args ...any)  { l.sugared.Infof(format, args...) }
func (l *logger) Warnf(format string, args ...any)  { l.sugared.Warnf(format, args...) }
func (l *logger) Errorf(format string, args ...any) { l.sugared.Errorf(format, args...) }
