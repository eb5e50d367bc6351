package logging

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the file representation of the logger settings.
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error...
	Format string `yaml:"format"` // json or console
}

func DefaultConfig() zap.Config {
	logConf := zap.NewProductionConfig()
	logConf.Sampling = nil
	logConf.EncoderConfig.TimeKey = "time"
	logConf.EncoderConfig.LevelKey = "severity"
	logConf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logConf.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return logConf
}

// Build creates a logger from DefaultConfig adjusted by cfg.
func Build(cfg Config) (*zap.Logger, error) {
	logConf := DefaultConfig()

	if cfg.Level != "" {
		l, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		logConf.Level = zap.NewAtomicLevelAt(l)
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console":
		logConf.Encoding = "console"
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return logConf.Build()
}

func ParseLevel(l string) (zapcore.Level, error) {
	l = strings.ToLower(strings.TrimSpace(l))
	switch l {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "dpanic":
		return zapcore.DPanicLevel, nil
	case "panic":
		return zapcore.PanicLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		level, err := strconv.ParseInt(l, 10, 8)
		if err != nil {
			return 0, err
		}
		return zapcore.Level(level), nil
	}
}
