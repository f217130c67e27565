package gtmetrix

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a sugared logger with the given verbosity ("debug",
// "info", "warn", "error"). An empty or unknown verbosity means info.
func NewLogger(verbosity string) *zap.SugaredLogger {
	level, err := zapcore.ParseLevel(verbosity)
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		log.Fatal(err)
	}
	return l.Sugar()
}
