package rhi

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/rhi/driver"
)

// swapLogger installs l as the package logger for the duration of the test.
func swapLogger(t *testing.T, l *slog.Logger) {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	SetLogger(l)
}

func TestLoggerSilentByDefault(t *testing.T) {
	swapLogger(t, nil)
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if Logger().Enabled(context.Background(), level) {
			t.Errorf("Logger().Enabled(%v) = true, want false", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	swapLogger(t, custom)

	if Logger() != custom {
		t.Fatal("Logger() did not return the logger passed to SetLogger")
	}
	d := newTestDevice(t)
	if d.log != custom {
		t.Error("device created without WithLogger does not use the package logger")
	}
	if !strings.Contains(buf.String(), "rhi: device created") {
		t.Errorf("log = %q, want device creation record", buf.String())
	}
}

type loggingDriver struct {
	logger *slog.Logger
}

func (d *loggingDriver) Name() string                       { return "logging-test" }
func (d *loggingDriver) ShaderFormats() driver.ShaderFormat { return driver.ShaderFormatSPIRV }
func (d *loggingDriver) Open(driver.Options) (driver.Device, error) {
	return nil, driver.ErrUnsupported
}
func (d *loggingDriver) SetLogger(l *slog.Logger) { d.logger = l }

func TestSetLoggerReachesDrivers(t *testing.T) {
	drv := &loggingDriver{}
	driver.Register(drv)
	t.Cleanup(func() { driver.Unregister(drv.Name()) })

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	swapLogger(t, custom)
	if drv.logger != custom {
		t.Errorf("driver logger = %p, want %p", drv.logger, custom)
	}
	SetLogger(nil)
	if drv.logger == nil || drv.logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) did not hand drivers a silent logger")
	}
}

func TestDeviceLogger(t *testing.T) {
	pkg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	swapLogger(t, pkg)
	if got := deviceLogger(&config{}); got != pkg {
		t.Error("deviceLogger() without WithLogger did not return the package logger")
	}
	own := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if got := deviceLogger(&config{logger: own}); got != own {
		t.Error("deviceLogger() ignored WithLogger")
	}
}

func TestLoggerConcurrentAccess(t *testing.T) {
	swapLogger(t, nil)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Logger().Debug("rhi: concurrent read")
		}()
		go func() {
			defer wg.Done()
			SetLogger(slog.Default())
			SetLogger(nil)
		}()
	}
	wg.Wait()
}

func BenchmarkDisabledLog(b *testing.B) {
	l := Logger()
	b.ReportAllocs()
	for b.Loop() {
		l.Debug("rhi: cycled to idle generation", "kind", "buffer", "generation", 1)
	}
}
