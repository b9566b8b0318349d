package software

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

type fenceMode int

const (
	modeAsync fenceMode = iota
	modeImmediate
	modeManual
)

type config struct {
	mode        fenceMode
	memoryLimit uint64
	maxFences   int
	formats     driver.ShaderFormat
}

// ErrNoPendingWork is returned when a manual-mode wait can never finish
// because nothing is queued.
var ErrNoPendingWork = errors.New("software: waiting on fences with no pending work")

// ErrDestroyed is returned by operations on a destroyed device.
var ErrDestroyed = errors.New("software: device destroyed")

type submission struct {
	enc   *encoder
	cmds  []func()
	fence *fence
}

// Device is a software logical device.
type Device struct {
	cfg config
	log *slog.Logger

	// memMu serializes access to resource memory between the timeline and
	// CPU-side writes.
	memMu sync.Mutex

	mu        sync.Mutex
	pending   []submission // manual mode
	inflight  int
	progress  chan struct{} // closed and replaced whenever a submission completes
	destroyed bool

	work chan submission // async mode
	wg   sync.WaitGroup

	liveBytes  atomic.Uint64
	liveFences atomic.Int32

	submissions atomic.Uint64
	draws       atomic.Uint64
	dispatches  atomic.Uint64
	presents    atomic.Uint64
}

func newDevice(cfg config, log *slog.Logger) *Device {
	d := &Device{
		cfg:      cfg,
		log:      log,
		progress: make(chan struct{}),
	}
	if cfg.mode == modeAsync {
		d.work = make(chan submission, 64)
		d.wg.Add(1)
		go d.timeline()
	}
	log.Debug("software: device opened", "mode", cfg.mode, "memoryLimit", cfg.memoryLimit)
	return d
}

// Counters reports totals of executed work.
type Counters struct {
	Submissions uint64
	Draws       uint64
	Dispatches  uint64
	Presents    uint64
	LiveBytes   uint64
}

// Counters returns work executed so far.
func (d *Device) Counters() Counters {
	return Counters{
		Submissions: d.submissions.Load(),
		Draws:       d.draws.Load(),
		Dispatches:  d.dispatches.Load(),
		Presents:    d.presents.Load(),
		LiveBytes:   d.liveBytes.Load(),
	}
}

// Limits implements driver.Device.
func (d *Device) Limits() gputypes.Limits {
	return gputypes.DefaultLimits()
}

// Features implements driver.Device.
func (d *Device) Features() driver.Features {
	return driver.FeatureDownloads | driver.FeatureTextureCopies |
		driver.FeatureIndirect | driver.FeatureSwapchain
}

// ShaderFormats implements driver.Device.
func (d *Device) ShaderFormats() driver.ShaderFormat {
	return d.cfg.formats
}

// reserve accounts n bytes against the memory limit.
func (d *Device) reserve(n uint64) error {
	for {
		cur := d.liveBytes.Load()
		if d.cfg.memoryLimit > 0 && cur+n > d.cfg.memoryLimit {
			return errors.Wrapf(driver.ErrOutOfMemory, "software: %d bytes live, %d requested, limit %d",
				cur, n, d.cfg.memoryLimit)
		}
		if d.liveBytes.CompareAndSwap(cur, cur+n) {
			return nil
		}
	}
}

func (d *Device) unreserve(n uint64) {
	d.liveBytes.Add(^(n - 1))
}

// CreateBuffer implements driver.Device.
func (d *Device) CreateBuffer(desc *driver.BufferDesc) (driver.Buffer, error) {
	if err := d.reserve(desc.Size); err != nil {
		return nil, err
	}
	return &buffer{memory: memory{dev: d, label: desc.Label, data: make([]byte, desc.Size)}, usage: desc.Usage}, nil
}

// CreateTexture implements driver.Device.
func (d *Device) CreateTexture(desc *driver.TextureDesc) (driver.Texture, error) {
	t, err := newTexture(d, desc)
	if err != nil {
		return nil, err
	}
	if err := d.reserve(uint64(len(t.data))); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTransferBuffer implements driver.Device.
func (d *Device) CreateTransferBuffer(desc *driver.TransferBufferDesc) (driver.TransferBuffer, error) {
	if err := d.reserve(desc.Size); err != nil {
		return nil, err
	}
	return &transferBuffer{memory: memory{dev: d, label: desc.Label, data: make([]byte, desc.Size)}, usage: desc.Usage}, nil
}

// CreateSampler implements driver.Device.
func (d *Device) CreateSampler(desc *driver.SamplerDesc) (driver.Sampler, error) {
	return &object{label: desc.Label}, nil
}

// CreateShader implements driver.Device.
func (d *Device) CreateShader(desc *driver.ShaderDesc) (driver.Shader, error) {
	if len(desc.Code) == 0 {
		return nil, errors.New("software: empty shader code")
	}
	if !d.cfg.formats.Has(desc.Format) {
		return nil, errors.Wrapf(driver.ErrUnsupported, "software: shader format %s", desc.Format)
	}
	return &shader{object: object{label: desc.Label}, stage: desc.Stage, resources: desc.Resources}, nil
}

// CreateComputePipeline implements driver.Device.
func (d *Device) CreateComputePipeline(desc *driver.ComputePipelineDesc) (driver.ComputePipeline, error) {
	if len(desc.Code) == 0 {
		return nil, errors.New("software: empty shader code")
	}
	if !d.cfg.formats.Has(desc.Format) {
		return nil, errors.Wrapf(driver.ErrUnsupported, "software: shader format %s", desc.Format)
	}
	return &computePipeline{object: object{label: desc.Label}, threads: desc.ThreadCount}, nil
}

// CreateGraphicsPipeline implements driver.Device.
func (d *Device) CreateGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.GraphicsPipeline, error) {
	return &graphicsPipeline{object: object{label: desc.Label}, targets: len(desc.ColorTargets)}, nil
}

// CreateSwapchain implements driver.Device.
func (d *Device) CreateSwapchain(desc *driver.SwapchainDesc) (driver.Swapchain, error) {
	return newSwapchain(d, desc)
}

// CreateEncoder implements driver.Device.
func (d *Device) CreateEncoder() (driver.Encoder, error) {
	return &encoder{dev: d}, nil
}

// CreateFence implements driver.Device.
func (d *Device) CreateFence() (driver.Fence, error) {
	if d.cfg.maxFences > 0 && int(d.liveFences.Load()) >= d.cfg.maxFences {
		return nil, errors.Wrapf(driver.ErrOutOfMemory, "software: fence limit %d reached", d.cfg.maxFences)
	}
	d.liveFences.Add(1)
	return newFence(d), nil
}

// WriteBuffer implements driver.Device.
func (d *Device) WriteBuffer(dst driver.Buffer, offset uint64, data []byte) error {
	b := dst.(*buffer)
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return errors.Newf("software: write of %d bytes at %d exceeds buffer size %d", len(data), offset, len(b.data))
	}
	d.memMu.Lock()
	copy(b.data[offset:], data)
	d.memMu.Unlock()
	return nil
}

// Submit implements driver.Device.
func (d *Device) Submit(enc driver.Encoder, f driver.Fence) error {
	e := enc.(*encoder)
	if e.recording {
		return errors.New("software: submit of an encoder that is still recording")
	}
	sub := submission{enc: e, cmds: e.cmds, fence: f.(*fence)}

	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDestroyed
	}
	d.inflight++
	switch d.cfg.mode {
	case modeManual:
		d.pending = append(d.pending, sub)
		d.mu.Unlock()
	case modeImmediate:
		d.mu.Unlock()
		d.execute(sub)
	default:
		d.mu.Unlock()
		d.work <- sub
	}
	return nil
}

func (d *Device) timeline() {
	defer d.wg.Done()
	for sub := range d.work {
		d.execute(sub)
	}
}

// execute runs one submission and signals its fence.
func (d *Device) execute(sub submission) {
	d.memMu.Lock()
	for _, cmd := range sub.cmds {
		cmd()
	}
	d.memMu.Unlock()
	d.submissions.Add(1)

	sub.fence.signal()

	d.mu.Lock()
	d.inflight--
	close(d.progress)
	d.progress = make(chan struct{})
	d.mu.Unlock()
}

// Step executes the oldest pending submission in manual mode and reports
// whether there was one.
func (d *Device) Step() bool {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return false
	}
	sub := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()
	d.execute(sub)
	return true
}

// Flush executes every pending submission in manual mode.
func (d *Device) Flush() {
	for d.Step() {
	}
}

// Pending returns the number of submitted but unexecuted submissions.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}

func fencesDone(fences []driver.Fence, waitAll bool) bool {
	for _, f := range fences {
		s := f.Signaled()
		if waitAll && !s {
			return false
		}
		if !waitAll && s {
			return true
		}
	}
	return waitAll
}

// Wait implements driver.Device. In manual mode pending work is executed
// until the condition holds.
func (d *Device) Wait(ctx context.Context, fences []driver.Fence, waitAll bool) error {
	for {
		d.mu.Lock()
		ch := d.progress
		d.mu.Unlock()

		if fencesDone(fences, waitAll) {
			return nil
		}
		if d.cfg.mode == modeManual {
			if !d.Step() {
				return ErrNoPendingWork
			}
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitIdle implements driver.Device.
func (d *Device) WaitIdle(ctx context.Context) error {
	if d.cfg.mode == modeManual {
		d.Flush()
		return nil
	}
	for {
		d.mu.Lock()
		ch, n := d.progress, d.inflight
		d.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Destroy implements driver.Device. Outstanding work is finished first.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	d.mu.Unlock()

	if d.cfg.mode == modeAsync {
		close(d.work)
		d.wg.Wait()
	} else {
		d.Flush()
	}
	d.log.Debug("software: device destroyed", "submissions", d.submissions.Load())
}
