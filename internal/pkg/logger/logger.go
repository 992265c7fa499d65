package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger with the given level (debug, info, warn,
// error). Unknown levels default to info.
func New(level string) (*zap.Logger, error) {
	return NewWithCallerSkip(level, 0)
}

// NewWithCallerSkip creates a zap logger and skips the given number of
// call stack frames when annotating the caller.
func NewWithCallerSkip(level string, skip int) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	switch level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config.DisableCaller = false

	log, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if skip > 0 {
		log = log.WithOptions(zap.AddCallerSkip(skip))
	}
	return log, nil
}

// WithCallerSkip adds caller skip to an existing logger.
func WithCallerSkip(log *zap.Logger, skip int) *zap.Logger {
	if log == nil || skip <= 0 {
		return log
	}
	return log.WithOptions(zap.AddCallerSkip(skip))
}
