package rhi

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/rhi/driver"
)

var (
	discard   = slog.New(slog.DiscardHandler)
	loggerPtr atomic.Pointer[slog.Logger]
)

func init() {
	loggerPtr.Store(discard)
}

// SetLogger sets the package logger used by devices created without
// WithLogger, and hands it to every registered driver that accepts one.
// Pass nil to silence logging again, which is the default.
//
// Levels:
//   - [slog.LevelDebug]: cycling decisions, pool growth, deferred destroys
//   - [slog.LevelInfo]: device created and destroyed
//   - [slog.LevelWarn]: usage and validation errors, release failures
//
// Example:
//
//	rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = discard
	}
	loggerPtr.Store(l)
	for _, name := range driver.Available() {
		if ls, ok := driver.Get(name).(interface{ SetLogger(*slog.Logger) }); ok {
			ls.SetLogger(l)
		}
	}
}

// Logger returns the package logger. It is never nil.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// deviceLogger picks the logger for a new device: the WithLogger one when
// given, otherwise the package logger at the time of creation.
func deviceLogger(cfg *config) *slog.Logger {
	if cfg.logger != nil {
		return cfg.logger
	}
	return Logger()
}
