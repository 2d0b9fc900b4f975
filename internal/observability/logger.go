// Package observability provides the service's structured logger, Prometheus
// collector and OpenTelemetry tracer setup.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggingConfig selects the level, encoding and optional rotated log file.
type LoggingConfig struct {
	Level       string
	Format      string // "json" or "console"
	File        string // empty disables file output
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Environment string
	// Dynamic, when set, receives the parsed level and gates every core so
	// the level can be changed after construction.
	Dynamic *zap.AtomicLevel
}

// ParseLevel maps a configured level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// NewLogger builds a zap logger writing to stdout and, when File is set, to a
// lumberjack-rotated JSON file.
func NewLogger(config LoggingConfig) (*zap.Logger, error) {
	var level zapcore.LevelEnabler = ParseLevel(config.Level)
	if config.Dynamic != nil {
		config.Dynamic.SetLevel(ParseLevel(config.Level))
		level = config.Dynamic
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	if config.Format == "console" || (config.Format == "" && config.Environment == "development") {
		devConfig := zap.NewDevelopmentEncoderConfig()
		devConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devConfig)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
	}

	if config.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   config.File,
				MaxSize:    orDefault(config.MaxSizeMB, 100),
				MaxBackups: orDefault(config.MaxBackups, 30),
				MaxAge:     orDefault(config.MaxAgeDays, 90),
			}),
			level,
		))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if config.Environment != "" {
		opts = append(opts, zap.Fields(zap.String("environment", config.Environment)))
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
