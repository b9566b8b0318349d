package wgpu

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

// ErrDestroyed is returned by operations on a destroyed device.
var ErrDestroyed = errors.New("wgpu: device destroyed")

const (
	pollMin = 50 * time.Microsecond
	pollMax = 2 * time.Millisecond
)

// Device is a logical device over a HAL device and queue.
type Device struct {
	dev    hal.Device
	queue  hal.Queue
	limits gputypes.Limits
	log    *slog.Logger

	instance hal.Instance // nil when shared
	adapter  hal.Adapter  // nil when shared
	shared   bool

	// submitMu serializes queue submission.
	submitMu  sync.Mutex
	destroyed bool

	submissions atomic.Uint64
}

func newDevice(dev hal.Device, queue hal.Queue, limits gputypes.Limits, log *slog.Logger) *Device {
	return &Device{dev: dev, queue: queue, limits: limits, log: log}
}

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.dev }

// HalQueue returns the underlying HAL queue.
func (d *Device) HalQueue() hal.Queue { return d.queue }

// Submissions returns the number of accepted submissions.
func (d *Device) Submissions() uint64 { return d.submissions.Load() }

// Limits implements driver.Device.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// Features implements driver.Device.
func (d *Device) Features() driver.Features {
	return driver.FeatureDownloads | driver.FeatureTextureCopies | driver.FeatureIndirect
}

// ShaderFormats implements driver.Device.
func (d *Device) ShaderFormats() driver.ShaderFormat {
	return Driver{}.ShaderFormats()
}

// CreateBuffer implements driver.Device.
func (d *Device) CreateBuffer(desc *driver.BufferDesc) (driver.Buffer, error) {
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, mapError(errors.Wrapf(err, "wgpu: create buffer %q", desc.Label))
	}
	return &buffer{dev: d, raw: raw, size: desc.Size, label: desc.Label}, nil
}

// CreateTexture implements driver.Device.
func (d *Device) CreateTexture(desc *driver.TextureDesc) (driver.Texture, error) {
	raw, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent(desc.Size),
		MipLevelCount: max(desc.MipLevelCount, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, mapError(errors.Wrapf(err, "wgpu: create texture %q", desc.Label))
	}
	return newTexture(d, raw, desc), nil
}

// CreateTransferBuffer implements driver.Device.
func (d *Device) CreateTransferBuffer(desc *driver.TransferBufferDesc) (driver.TransferBuffer, error) {
	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if desc.Usage == driver.TransferDownload {
		usage = gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead
	}
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  driver.AlignUp(desc.Size, 4),
		Usage: usage,
	})
	if err != nil {
		return nil, mapError(errors.Wrapf(err, "wgpu: create transfer buffer %q", desc.Label))
	}
	return &transferBuffer{
		buffer: buffer{dev: d, raw: raw, size: desc.Size, label: desc.Label},
		usage:  desc.Usage,
		shadow: make([]byte, desc.Size),
	}, nil
}

// CreateSampler implements driver.Device.
func (d *Device) CreateSampler(desc *driver.SamplerDesc) (driver.Sampler, error) {
	lodMax := desc.LodMaxClamp
	if lodMax == 0 {
		lodMax = 32
	}
	raw, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
		LodMinClamp:  desc.LodMinClamp,
		LodMaxClamp:  lodMax,
		Compare:      desc.Compare,
		Anisotropy:   max(desc.MaxAnisotropy, 1),
	})
	if err != nil {
		return nil, mapError(errors.Wrapf(err, "wgpu: create sampler %q", desc.Label))
	}
	return &sampler{dev: d, raw: raw, label: desc.Label}, nil
}

// CreateShader implements driver.Device.
func (d *Device) CreateShader(desc *driver.ShaderDesc) (driver.Shader, error) {
	module, err := d.createModule(desc.Label, desc.Format, desc.Code)
	if err != nil {
		return nil, err
	}
	return &shader{
		dev:        d,
		raw:        module,
		label:      desc.Label,
		stage:      desc.Stage,
		entryPoint: desc.EntryPoint,
		layout:     graphicsLayout(desc.Resources),
	}, nil
}

func (d *Device) createModule(label string, format driver.ShaderFormat, code []byte) (hal.ShaderModule, error) {
	if len(code) == 0 {
		return nil, errors.Newf("wgpu: shader %q has no code", label)
	}
	var src hal.ShaderSource
	switch format {
	case driver.ShaderFormatWGSL:
		src.WGSL = string(code)
	case driver.ShaderFormatSPIRV:
		words, err := spirvWords(code)
		if err != nil {
			return nil, errors.Wrapf(err, "wgpu: shader %q", label)
		}
		src.SPIRV = words
	default:
		return nil, errors.Wrapf(driver.ErrUnsupported, "wgpu: shader format %s", format)
	}
	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, mapError(errors.Wrapf(err, "wgpu: create shader module %q", label))
	}
	return module, nil
}

// CreateComputePipeline implements driver.Device.
func (d *Device) CreateComputePipeline(desc *driver.ComputePipelineDesc) (driver.ComputePipeline, error) {
	module, err := d.createModule(desc.Label, desc.Format, desc.Code)
	if err != nil {
		return nil, err
	}
	p := &computePipeline{
		pipelineLayout: pipelineLayout{dev: d, label: desc.Label},
		module:         module,
	}
	p.stages[0] = computeLayout(desc.Resources)
	if err := p.build(1, []gputypes.ShaderStage{gputypes.ShaderStageCompute}); err != nil {
		d.dev.DestroyShaderModule(module)
		return nil, err
	}
	raw, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		p.destroyLayout()
		d.dev.DestroyShaderModule(module)
		return nil, mapError(errors.Wrapf(err, "wgpu: create compute pipeline %q", desc.Label))
	}
	p.raw = raw
	return p, nil
}

// CreateGraphicsPipeline implements driver.Device.
func (d *Device) CreateGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.GraphicsPipeline, error) {
	vs, ok := desc.VertexShader.(*shader)
	if !ok {
		return nil, errors.Newf("wgpu: vertex shader %T is not a wgpu shader", desc.VertexShader)
	}
	fs, ok := desc.FragmentShader.(*shader)
	if !ok {
		return nil, errors.Newf("wgpu: fragment shader %T is not a wgpu shader", desc.FragmentShader)
	}

	p := &graphicsPipeline{pipelineLayout: pipelineLayout{dev: d, label: desc.Label}}
	p.stages[0] = vs.layout
	p.stages[1] = fs.layout
	if err := p.build(2, []gputypes.ShaderStage{gputypes.ShaderStageVertex, gputypes.ShaderStageFragment}); err != nil {
		return nil, err
	}

	var depth *hal.DepthStencilState
	if desc.DepthStencilFormat != gputypes.TextureFormatUndefined {
		depth = &hal.DepthStencilState{
			Format:            desc.DepthStencilFormat,
			DepthWriteEnabled: desc.DepthWriteEnabled,
			DepthCompare:      desc.DepthCompare,
			StencilFront:      hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilBack:       hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilReadMask:   0xFFFFFFFF,
			StencilWriteMask:  0xFFFFFFFF,
		}
	}
	raw, err := d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     vs.raw,
			EntryPoint: vs.entryPoint,
			Buffers:    desc.VertexBuffers,
		},
		Primitive:    desc.Primitive,
		DepthStencil: depth,
		Multisample: gputypes.MultisampleState{
			Count: max(desc.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
		Fragment: &hal.FragmentState{
			Module:     fs.raw,
			EntryPoint: fs.entryPoint,
			Targets:    desc.ColorTargets,
		},
	})
	if err != nil {
		p.destroyLayout()
		return nil, mapError(errors.Wrapf(err, "wgpu: create render pipeline %q", desc.Label))
	}
	p.raw = raw
	return p, nil
}

// CreateSwapchain implements driver.Device. Surfaces belong to the host.
func (d *Device) CreateSwapchain(*driver.SwapchainDesc) (driver.Swapchain, error) {
	return nil, errors.Wrap(driver.ErrUnsupported, "wgpu: swapchains")
}

// CreateEncoder implements driver.Device.
func (d *Device) CreateEncoder() (driver.Encoder, error) {
	raw, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rhi"})
	if err != nil {
		return nil, mapError(errors.Wrap(err, "wgpu: create command encoder"))
	}
	return &encoder{dev: d, raw: raw}, nil
}

// CreateFence implements driver.Device.
func (d *Device) CreateFence() (driver.Fence, error) {
	return &fence{queue: d.queue}, nil
}

// WriteBuffer implements driver.Device.
func (d *Device) WriteBuffer(dst driver.Buffer, offset uint64, data []byte) error {
	b := dst.(*buffer)
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("wgpu: write of %d bytes at %d exceeds buffer size %d", len(data), offset, b.size)
	}
	return mapError(d.queue.WriteBuffer(b.raw, offset, data))
}

// Submit implements driver.Device.
func (d *Device) Submit(enc driver.Encoder, f driver.Fence) error {
	e := enc.(*encoder)
	if e.cmd == nil {
		return errors.New("wgpu: submit of an encoder that was not ended")
	}

	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	if d.destroyed {
		return ErrDestroyed
	}
	idx, err := d.queue.Submit([]hal.CommandBuffer{e.cmd})
	if err != nil {
		return mapError(errors.Wrap(err, "wgpu: queue submit"))
	}
	f.(*fence).index.Store(idx)
	e.submission = idx
	d.submissions.Add(1)
	return nil
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

// Wait implements driver.Device by polling queue completion.
func (d *Device) Wait(ctx context.Context, fences []driver.Fence, waitAll bool) error {
	delay := pollMin
	for !fencesDone(fences, waitAll) {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		delay = min(delay*2, pollMax)
	}
	return nil
}

// WaitIdle implements driver.Device.
func (d *Device) WaitIdle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.dev.WaitIdle())
}

// Destroy implements driver.Device. A shared device is left to its owner.
func (d *Device) Destroy() {
	d.submitMu.Lock()
	if d.destroyed {
		d.submitMu.Unlock()
		return
	}
	d.destroyed = true
	d.submitMu.Unlock()

	if err := d.dev.WaitIdle(); err != nil {
		d.log.Warn("wgpu: wait idle before destroy", "error", err)
	}
	if d.shared {
		return
	}
	d.dev.Destroy()
	if d.adapter != nil {
		d.adapter.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
	}
	d.log.Debug("wgpu: device destroyed", "submissions", d.submissions.Load())
}

// fence signals once the queue has completed submission index.
type fence struct {
	queue hal.Queue
	index atomic.Uint64
}

// Signaled implements driver.Fence.
func (f *fence) Signaled() bool {
	idx := f.index.Load()
	return idx != 0 && f.queue.PollCompleted() >= idx
}

// Reset implements driver.Fence.
func (f *fence) Reset() { f.index.Store(0) }

// Destroy implements driver.Fence.
func (f *fence) Destroy() {}
