package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger for env. When cloudWatchWriter is non-nil every
// entry is also written to it as JSON.
func New(env string, cloudWatchWriter io.Writer) (*zap.Logger, error) {
	config := buildConfig(env)

	if cloudWatchWriter == nil {
		logger, err := config.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return logger, nil
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(config.EncoderConfig),
		zapcore.AddSync(os.Stdout),
		zap.NewAtomicLevelAt(config.Level.Level()),
	)

	// The console encoder may colour levels; the shipped copy must stay plain JSON.
	cwEncoderConfig := config.EncoderConfig
	cwEncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cwCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(cwEncoderConfig),
		zapcore.AddSync(cloudWatchWriter),
		zap.NewAtomicLevelAt(config.Level.Level()),
	)

	return zap.New(zapcore.NewTee(consoleCore, cwCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func buildConfig(env string) zap.Config {
	if env == "production" {
		config := zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return config
	}
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config
}
