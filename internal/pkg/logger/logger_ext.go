package logger

import (
	"go.uber.org/zap"
)

// Logger wraps zap.Logger with caller-skip aware leveled methods, so log
// lines point at the business caller rather than this wrapper.
type Logger struct {
	*zap.Logger
}

// NewLogger wraps a zap logger.
func NewLogger(base *zap.Logger) *Logger {
	return &Logger{Logger: base}
}

// Wrap is an alias for NewLogger.
func Wrap(zapLogger *zap.Logger) *Logger {
	return &Logger{Logger: zapLogger}
}

// Skip returns a Logger that skips the given number of stack frames.
func (l *Logger) Skip(skip int) *Logger {
	if skip <= 0 {
		return l
	}
	return &Logger{Logger: l.Logger.WithOptions(zap.AddCallerSkip(skip))}
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Fatal logs a message at FatalLevel and exits.
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

// With adds fields and returns a new Logger.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named adds a name segment and returns a new Logger.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}
