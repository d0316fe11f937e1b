package obs

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

// Logger returns the shared structured logger used across the service.
// Output is one JSON object per line on stdout.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.MessageKey = "msg"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// ReplaceLoggerForTests swaps the shared logger and returns a restore func.
func ReplaceLoggerForTests(l *zap.Logger) func() {
	Logger() // force the once
	prev := logger
	logger = l
	return func() { logger = prev }
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	_ = Logger().Sync()
}
