package rhi

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
	pool "github.com/gogpu/rhi/internal/container"
	"github.com/gogpu/rhi/internal/shaderconv"
	"github.com/gogpu/rhi/internal/validate"
)

// releasable is a released object waiting for its pending work to finish.
type releasable interface {
	idle() bool
	destroy()
}

// counters holds device statistics updated without the pool lock.
type counters struct {
	containers  atomic.Int64
	generations atomic.Int64
	cycles      atomic.Uint64
	reuses      atomic.Uint64
	allocations atomic.Uint64
	submissions atomic.Uint64
	cmdBuffers  atomic.Int64
	fences      atomic.Int64
	rings       atomic.Int64
}

// Device is a logical GPU device. Resource creation, command buffer
// acquisition and fence handling are safe for concurrent use; each command
// buffer and each resource must be recorded or mapped from one goroutine at
// a time.
type Device struct {
	cfg      config
	log      *slog.Logger
	drv      driver.Driver
	backend  driver.Device
	dev      driver.Device
	limits   gputypes.Limits
	features driver.Features
	formats  driver.ShaderFormat
	conv     *shaderconv.Translator
	ringSize uint64

	poolMu    sync.Mutex
	available pool.Stack[*recorder]
	submitted []*recorder
	fences    pool.Stack[driver.Fence]
	rings     pool.Stack[*uniformRing]
	garbage   []releasable

	errMu   sync.Mutex
	lastErr error

	stats     counters
	destroyed atomic.Bool
}

// NewDevice selects a driver and opens a device on it.
//
// Without WithDriver the RHI_DRIVER environment variable is consulted, then
// registered drivers are tried in priority order. Only drivers accepting one
// of the configured shader formats are considered.
func NewDevice(opts ...Option) (*Device, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.driver == "" {
		cfg.driver = os.Getenv(EnvDriver)
	}
	log := deviceLogger(&cfg)

	drv, err := driver.Select(cfg.driver, shaderconv.Expand(cfg.formats))
	if err != nil {
		return nil, errors.Wrap(err, "rhi: select driver")
	}
	backend, err := drv.Open(driver.Options{
		Debug:    cfg.debug,
		Provider: cfg.provider,
		Params:   cfg.params,
		Logger:   log,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "rhi: open %s device", drv.Name())
	}

	d := &Device{
		cfg:      cfg,
		log:      log,
		drv:      drv,
		backend:  backend,
		dev:      backend,
		limits:   backend.Limits(),
		features: backend.Features(),
		formats:  backend.ShaderFormats(),
		conv:     shaderconv.New(0, cfg.debug),
	}
	if cfg.debug {
		d.dev = validate.Wrap(backend, log)
	}
	align := uint64(d.limits.MinUniformBufferOffsetAlignment)
	if align == 0 {
		align = 256
	}
	d.ringSize = driver.AlignUp(cfg.ringSize, align)

	log.Info("rhi: device created",
		"driver", drv.Name(), "formats", d.formats.String(), "debug", cfg.debug)
	return d, nil
}

// Drivers returns the names of registered drivers in selection order.
func Drivers() []string { return driver.Available() }

// SupportsShaderFormats reports whether a driver can run shaders supplied in
// one of formats. An empty name checks every registered driver.
func SupportsShaderFormats(formats ShaderFormat, name string) bool {
	names := []string{name}
	if name == "" {
		names = driver.Available()
	}
	for _, n := range names {
		drv := driver.Get(n)
		if drv != nil && shaderconv.Translatable(drv.ShaderFormats()).Any(formats) {
			return true
		}
	}
	return false
}

// Driver returns the name of the driver backing the device.
func (d *Device) Driver() string { return d.drv.Name() }

// Backend returns the unwrapped driver device.
func (d *Device) Backend() driver.Device { return d.backend }

// Limits returns the device limits.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// Features returns the optional capabilities of the driver.
func (d *Device) Features() driver.Features { return d.features }

// ShaderFormats returns the formats the driver accepts without translation.
func (d *Device) ShaderFormats() ShaderFormat { return d.formats }

// LastError returns the most recent error reported by a device operation.
func (d *Device) LastError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

// fail records err as the last error. Usage and validation errors are
// logged and, with assertions enabled, panic.
func (d *Device) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	d.errMu.Lock()
	d.lastErr = err
	d.errMu.Unlock()

	if !IsUsageError(err) {
		d.log.Debug("rhi: operation failed", "op", op, "err", err)
		return err
	}
	d.log.Warn("rhi: usage error", "op", op, "err", err)
	if d.cfg.assertions {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "rhi: %s", op))
	}
	return err
}

func (d *Device) alive() error {
	if d.destroyed.Load() {
		return ErrDeviceDestroyed
	}
	return nil
}

// negotiate returns shader code in a format the driver accepts.
func (d *Device) negotiate(format ShaderFormat, code []byte) (ShaderFormat, []byte, error) {
	if format == driver.ShaderFormatInvalid || format&(format-1) != 0 {
		return 0, nil, errors.Wrap(ErrInvalidDescriptor, "rhi: shader format must name exactly one format")
	}
	if d.cfg.debug && format == ShaderFormatWGSL {
		if err := shaderconv.Check(code); err != nil {
			return 0, nil, validate.Mark(err)
		}
	}
	return d.conv.Convert(format, code, d.formats)
}

// deferDestroy queues a released object for destruction once idle.
func (d *Device) deferDestroy(r releasable) {
	d.poolMu.Lock()
	d.garbage = append(d.garbage, r)
	d.poolMu.Unlock()
}

// drainGarbageLocked destroys every released object no longer referenced.
// Caller must hold poolMu.
func (d *Device) drainGarbageLocked() {
	kept := d.garbage[:0]
	for _, r := range d.garbage {
		if r.idle() {
			r.destroy()
			continue
		}
		kept = append(kept, r)
	}
	clear(d.garbage[len(kept):])
	d.garbage = kept
}

// cleanup retires every submitted command buffer whose fence signaled and
// destroys released objects that became idle.
func (d *Device) cleanup() {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()

	kept := d.submitted[:0]
	for _, rec := range d.submitted {
		if !rec.fence.native.Signaled() {
			kept = append(kept, rec)
			continue
		}
		rec.enc.Complete()
		d.retireLocked(rec)
	}
	clear(d.submitted[len(kept):])
	d.submitted = kept
	d.drainGarbageLocked()
}

// retireLocked releases everything a recorder holds and returns it to the
// pool. Caller must hold poolMu.
func (d *Device) retireLocked(rec *recorder) {
	rec.releaseRefs()
	for _, r := range rec.rings {
		r.reset()
		d.rings.Push(r)
	}
	clear(rec.rings)
	rec.rings = rec.rings[:0]
	rec.presents = rec.presents[:0]
	if rec.fence != nil {
		d.unrefFenceLocked(rec.fence)
		rec.fence = nil
	}
	rec.enc.Reset()
	d.available.Push(rec)
}

// acquireFenceLocked pops a pooled native fence or creates one.
// Caller must hold poolMu.
func (d *Device) acquireFenceLocked() (driver.Fence, error) {
	if f, ok := d.fences.Pop(); ok {
		f.Reset()
		return f, nil
	}
	f, err := d.dev.CreateFence()
	if err != nil {
		return nil, errors.Wrap(err, "rhi: create fence")
	}
	d.stats.fences.Add(1)
	d.log.Debug("rhi: fence pool grew", "fences", d.stats.fences.Load())
	return f, nil
}

// unrefFenceLocked drops one reference and pools the native fence when the
// last reference is gone. Caller must hold poolMu.
func (d *Device) unrefFenceLocked(f *Fence) {
	if f.refs.Add(-1) > 0 {
		return
	}
	d.fences.Push(f.native)
}

// QueryFence reports whether the work guarded by f has completed.
func (d *Device) QueryFence(f *Fence) bool {
	if f == nil {
		d.fail("QueryFence", ErrNilResource)
		return false
	}
	if f.released.Load() {
		d.fail("QueryFence", ErrReleased)
		return false
	}
	d.cleanup()
	return f.native.Signaled()
}

// WaitForFences blocks until all fences (waitAll) or any fence has
// signaled, or ctx is done.
func (d *Device) WaitForFences(ctx context.Context, waitAll bool, fences ...*Fence) error {
	const op = "WaitForFences"
	if len(fences) == 0 {
		return d.fail(op, errors.Wrap(ErrInvalidDescriptor, "rhi: no fences to wait on"))
	}
	natives := make([]driver.Fence, len(fences))
	for i, f := range fences {
		if f == nil {
			return d.fail(op, ErrNilResource)
		}
		if f.released.Load() {
			return d.fail(op, ErrReleased)
		}
		natives[i] = f.native
	}
	if err := d.dev.Wait(ctx, natives, waitAll); err != nil {
		return d.fail(op, errors.Wrap(err, "rhi: wait for fences"))
	}
	d.cleanup()
	return nil
}

// ReleaseFence gives up the caller's reference to f. The fence may be
// recycled afterwards and must not be used again.
func (d *Device) ReleaseFence(f *Fence) error {
	if f == nil {
		return d.fail("ReleaseFence", ErrNilResource)
	}
	if !f.released.CompareAndSwap(false, true) {
		return d.fail("ReleaseFence", ErrReleased)
	}
	d.poolMu.Lock()
	d.unrefFenceLocked(f)
	d.poolMu.Unlock()
	return nil
}

// WaitIdle blocks until all submitted work has completed, then retires every
// command buffer and destroys idle released resources.
func (d *Device) WaitIdle(ctx context.Context) error {
	if err := d.dev.WaitIdle(ctx); err != nil {
		return d.fail("WaitIdle", errors.Wrap(err, "rhi: wait idle"))
	}
	d.cleanup()
	return nil
}

// Destroy waits for outstanding work, destroys every pooled and released
// object and closes the driver device. Resources not released are
// destroyed with the driver device.
func (d *Device) Destroy() {
	if !d.destroyed.CompareAndSwap(false, true) {
		return
	}
	if err := d.dev.WaitIdle(context.Background()); err != nil {
		d.log.Warn("rhi: wait idle on destroy", "err", err)
	}
	d.cleanup()

	d.poolMu.Lock()
	for _, rec := range d.available.Drain() {
		rec.enc.Destroy()
	}
	for _, f := range d.fences.Drain() {
		f.Destroy()
	}
	for _, r := range d.rings.Drain() {
		r.buf.Destroy()
	}
	pending := len(d.garbage) + len(d.submitted)
	d.poolMu.Unlock()

	if pending > 0 {
		d.log.Warn("rhi: device destroyed with pending work", "objects", pending)
	}
	d.dev.Destroy()
	d.log.Info("rhi: device destroyed", "driver", d.drv.Name())
}
