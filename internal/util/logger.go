package util

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

// LoggerConfig selects the encoder and threshold of the process logger.
// Level is a zap level name; empty keeps the env default (info in
// production, debug elsewhere).
type LoggerConfig struct {
	Env    string
	Level  string
	Fields []zap.Field
}

// InitLogger builds the process-wide logger and installs it as the zap
// global. Production writes JSON; every other env gets the colored console
// encoder.
func InitLogger(cfg LoggerConfig) error {
	zc := zap.NewDevelopmentConfig()
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.Env == "production" {
		zc = zap.NewProductionConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}

	built, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	SetLogger(built.With(cfg.Fields...))
	return nil
}

// SetLogger replaces the process logger and returns a func restoring the
// previous one.
func SetLogger(l *zap.Logger) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()

	undo := zap.ReplaceGlobals(l)
	return func() {
		undo()
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// GetLogger returns the process logger. Before InitLogger it lazily builds
// a development logger, so tests and tools can log without setup.
func GetLogger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// ComponentLogger tags entries with the emitting component.
func ComponentLogger(component string) *zap.Logger {
	return GetLogger().With(zap.String("component", component))
}

// SyncLogger flushes buffered entries.
func SyncLogger() {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger != nil {
		_ = logger.Sync()
	}
}
