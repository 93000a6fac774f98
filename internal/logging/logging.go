// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livetemplate/pagecraft/internal/config"
)

// New builds a zap logger at the configured level and encoding.
// Output goes to stderr so command output on stdout stays machine-readable.
func New(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.GetLevel())
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if c.GetEncoding() == "console" {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zapConfig.Development = level == zapcore.DebugLevel
	}
	zapConfig.EncoderConfig.TimeKey = "ts"

	return zapConfig.Build()
}

// Must is New that falls back to a no-op logger on error.
func Must(c config.LogConfig) *zap.Logger {
	l, err := New(c)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
