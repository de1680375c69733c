package config

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *zap.Logger

// InitLogger builds the process logger at the given level. Unknown levels fall back to info.
func InitLogger(logLevelStr string) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()

	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(logLevelStr)))
	if err != nil {
		level = zap.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.DisableStacktrace = level > zap.DebugLevel

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	// Store for cleanup purposes
	globalLogger = logger

	return logger, nil
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}
