package logger

import (
	"fmt"
	"strings"

	"barbershop-payments/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Format "console" is meant for local runs,
// anything else logs JSON.
func New(logCfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(logCfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", logCfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if strings.EqualFold(logCfg.Format, "console") {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}
