// Package logger wraps zap into the structured Logger interface every
// component in this engine depends on, redacting secret fields before
// they reach any sink.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

// zapLogger wraps zap.Logger to implement our Logger interface
type zapLogger struct {
	logger *zap.SugaredLogger
}

// New creates a new structured logger
func New(level string, serviceName string) Logger {
	config := zap.NewProductionConfig()

	// Set log level
	switch level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	// Configure encoder for structured logging
	config.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Use JSON encoder in production, console encoder in development
	if os.Getenv("ENVIRONMENT") == "development" {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	// Build logger
	built, err := config.Build()
	if err != nil {
		panic(err)
	}

	// Add service name to all log entries
	built = built.With(zap.String("service", serviceName))

	return &zapLogger{
		logger: built.Sugar(),
	}
}

// redactPairs scans a Infow-style key/value slice and redacts any
// value whose key is a known secret field (credentials, token,
// apiKey, privateKey, password): those must never appear in logs.
func redactPairs(fields []interface{}) []interface{} {
	out := make([]interface{}, len(fields))
	copy(out, fields)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		redacted := fusionerrors.Redact(map[string]any{key: out[i+1]})
		out[i+1] = redacted[key]
	}
	return out
}

// Debug logs a debug level message
func (l *zapLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Debugw(msg, redactPairs(fields)...)
}

// Info logs an info level message
func (l *zapLogger) Info(msg string, fields ...interface{}) {
	l.logger.Infow(msg, redactPairs(fields)...)
}

// Warn logs a warn level message
func (l *zapLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Warnw(msg, redactPairs(fields)...)
}

// Error logs an error level message
func (l *zapLogger) Error(msg string, fields ...interface{}) {
	l.logger.Errorw(msg, redactPairs(fields)...)
}

// Fatal logs a fatal level message and exits
func (l *zapLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.Fatalw(msg, redactPairs(fields)...)
}

// With adds structured context to the logger
func (l *zapLogger) With(fields ...interface{}) Logger {
	return &zapLogger{
		logger: l.logger.With(redactPairs(fields)...),
	}
}

// NewNoop creates a no-op logger for testing
func NewNoop() Logger {
	return &zapLogger{
		logger: zap.NewNop().Sugar(),
	}
}
