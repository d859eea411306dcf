// Package logging builds the process zap.Logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/sitelens/internal/config"
)

// ServiceName is attached to every production log line.
const ServiceName = "sitelens"

// New builds a logger from cfg. Development mode writes colored console
// output; otherwise lines are JSON keyed the way Cloud Logging expects
// (severity, message, time).
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	zcfg := productionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.TimeKey = "ts"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func productionConfig() zap.Config {
	zcfg := zap.NewProductionConfig()
	enc := &zcfg.EncoderConfig
	enc.TimeKey = "time"
	enc.LevelKey = "severity"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	zcfg.InitialFields = map[string]any{"service": ServiceName}
	return zcfg
}

// ForJob scopes logger to one scrape job.
func ForJob(logger *zap.Logger, jobID, url string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("job_id", jobID), zap.String("url", url))
}
