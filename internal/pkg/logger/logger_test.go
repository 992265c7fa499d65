package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestLoggerNew(t *testing.T) {
	testCases := []struct {
		name        string
		level       string
		expectError bool
	}{
		{"debug level", "debug", false},
		{"info level", "info", false},
		{"warn level", "warn", false},
		{"error level", "error", false},
		{"empty level defaults to info", "", false},
		{"invalid level defaults to info", "invalid", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := New(tc.level)
			if tc.expectError && err == nil {
				t.Errorf("Expected error for level '%s', got nil", tc.level)
			}
			if !tc.expectError && err != nil {
				t.Errorf("Expected no error for level '%s', got %v", tc.level, err)
			}
			if log == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestWithCallerSkip(t *testing.T) {
	log := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	if got := WithCallerSkip(log, 0); got != log {
		t.Error("skip 0 should return the logger unchanged")
	}
	if got := WithCallerSkip(nil, 1); got != nil {
		t.Error("nil logger should stay nil")
	}

	skipped := WithCallerSkip(log, 1)
	func() {
		skipped.Info("nested call with skip")
	}()
}

func TestWrappedLogger(t *testing.T) {
	base := zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))
	log := Wrap(base)

	log.Debug("debug line", zap.String("k", "v"))
	log.Info("info line")
	log.With(zap.Int("n", 1)).Warn("warn line")
	log.Named("sub").Info("named line")

	if log.Skip(0) != log {
		t.Error("Skip(0) should return the logger unchanged")
	}
}
