package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	// Enabled turns on span and metric log records. Counters are kept either way.
	Enabled bool
}

// ShutdownFunc flushes whatever Setup installed.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the logger spans and metrics are written to. The returned
// ShutdownFunc logs the final counter totals and detaches the logger.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] span and metric records enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] counters only")
		}
	}

	return func(ctx context.Context) error {
		if logger != nil {
			for _, c := range Counters() {
				logger.LogAttrs(ctx, slog.LevelInfo, "obs counter total",
					slog.String("metric", c.Name),
					slog.Any("labels", c.Labels),
					slog.Float64("value", c.Value),
				)
			}
		}
		loggerMu.Lock()
		instrumentationLog = nil
		instrumentationState = Config{}
		loggerMu.Unlock()
		return nil
	}, nil
}
