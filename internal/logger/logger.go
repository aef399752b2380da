// Package logger configures the process-wide zap logger and carries a
// run's correlation id through a context.Context.
package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const runIDKey contextKey = "run-id"

// New builds a SugaredLogger configured for the given environment. If env
// is empty it reads APP_ENV. Anything other than "development"/"dev" gets
// the production JSON configuration.
//
// Development: console output, debug level, colorized.
// Production: JSON to stdout, info level, ISO8601 timestamps.
func New(env string) (*zap.SugaredLogger, error) {
	if env == "" {
		env = os.Getenv("APP_ENV")
	}

	var config zap.Config
	switch env {
	case "development", "dev":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	default:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		config.EncoderConfig.CallerKey = "caller"
		config.EncoderConfig.LevelKey = "level"
		config.EncoderConfig.MessageKey = "message"
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	built, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return built.Sugar(), nil
}

// WithRunID embeds a run id in ctx so every log line emitted while
// processing that run can be correlated back to it.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// ExtractRunID returns the run id embedded in ctx, or "" if none.
func ExtractRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// ForRun returns a child logger with the run id attached as a field,
// pulling it from ctx if present.
func ForRun(base *zap.SugaredLogger, ctx context.Context) *zap.SugaredLogger {
	if id := ExtractRunID(ctx); id != "" {
		return base.With("run_id", id)
	}
	return base
}
