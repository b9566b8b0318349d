// Package validate wraps a driver device with checks that catch invalid
// descriptors, usage flags, binding limits and copy ranges before they reach
// the driver.
//
// Every object returned by the wrapped device is itself wrapped and carries
// its descriptor. Objects passed back in are unwrapped before forwarding, so
// drivers only ever see their own types.
package validate

import (
	"context"
	"log/slog"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// ErrValidation marks every error reported by this package.
var ErrValidation = errors.New("rhi: validation failed")

// Errorf returns a validation error.
func Errorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// Mark turns err into a validation error.
func Mark(err error) error {
	return errors.Mark(err, ErrValidation)
}

// Device is a validating driver.Device.
type Device struct {
	inner  driver.Device
	log    *slog.Logger
	limits gputypes.Limits
}

var _ driver.Device = (*Device)(nil)

// Wrap returns dev with validation in front of every call.
func Wrap(dev driver.Device, log *slog.Logger) *Device {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Device{inner: dev, log: log, limits: dev.Limits()}
}

// Unwrap returns the wrapped device.
func (d *Device) Unwrap() driver.Device { return d.inner }

// Limits implements driver.Device.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// Features implements driver.Device.
func (d *Device) Features() driver.Features { return d.inner.Features() }

// ShaderFormats implements driver.Device.
func (d *Device) ShaderFormats() driver.ShaderFormat { return d.inner.ShaderFormats() }

const mapUsages = gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite

// CreateBuffer implements driver.Device.
func (d *Device) CreateBuffer(desc *driver.BufferDesc) (driver.Buffer, error) {
	switch {
	case desc.Size == 0:
		return nil, Errorf("buffer %q: zero size", desc.Label)
	case d.limits.MaxBufferSize > 0 && desc.Size > d.limits.MaxBufferSize:
		return nil, Errorf("buffer %q: size %d exceeds limit %d", desc.Label, desc.Size, d.limits.MaxBufferSize)
	case desc.Usage == gputypes.BufferUsageNone:
		return nil, Errorf("buffer %q: no usage", desc.Label)
	case desc.Usage&mapUsages != 0:
		return nil, Errorf("buffer %q: map usages are reserved for transfer buffers", desc.Label)
	}
	b, err := d.inner.CreateBuffer(desc)
	if err != nil {
		return nil, err
	}
	return &buffer{Buffer: b, desc: *desc}, nil
}

func (d *Device) maxDimension(dim gputypes.TextureDimension) uint32 {
	switch dim {
	case gputypes.TextureDimension1D:
		return d.limits.MaxTextureDimension1D
	case gputypes.TextureDimension3D:
		return d.limits.MaxTextureDimension3D
	default:
		return d.limits.MaxTextureDimension2D
	}
}

func checkTexture(desc *driver.TextureDesc, limits gputypes.Limits, maxDim uint32) error {
	size := desc.Size
	if size.Width == 0 || size.Height == 0 || size.DepthOrArrayLayers == 0 {
		return Errorf("texture %q: zero extent %dx%dx%d", desc.Label, size.Width, size.Height, size.DepthOrArrayLayers)
	}
	if maxDim > 0 && (size.Width > maxDim || size.Height > maxDim) {
		return Errorf("texture %q: extent %dx%d exceeds limit %d", desc.Label, size.Width, size.Height, maxDim)
	}
	if desc.Dimension == gputypes.TextureDimension3D {
		if maxDim > 0 && size.DepthOrArrayLayers > maxDim {
			return Errorf("texture %q: depth %d exceeds limit %d", desc.Label, size.DepthOrArrayLayers, maxDim)
		}
	} else if limits.MaxTextureArrayLayers > 0 && size.DepthOrArrayLayers > limits.MaxTextureArrayLayers {
		return Errorf("texture %q: %d layers exceed limit %d", desc.Label, size.DepthOrArrayLayers, limits.MaxTextureArrayLayers)
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		return Errorf("texture %q: undefined format", desc.Label)
	}
	if desc.Usage == gputypes.TextureUsageNone {
		return Errorf("texture %q: no usage", desc.Label)
	}
	longest := max(size.Width, size.Height)
	if desc.Dimension == gputypes.TextureDimension3D {
		longest = max(longest, size.DepthOrArrayLayers)
	}
	if maxMips := uint32(bits.Len32(longest)); desc.MipLevelCount == 0 || desc.MipLevelCount > maxMips {
		return Errorf("texture %q: %d mip levels, want 1..%d", desc.Label, desc.MipLevelCount, maxMips)
	}
	switch desc.SampleCount {
	case 1:
	case 4:
		if desc.MipLevelCount != 1 || desc.Dimension != gputypes.TextureDimension2D {
			return Errorf("texture %q: multisampled textures must be 2D with one mip level", desc.Label)
		}
		if desc.Usage&gputypes.TextureUsageStorageBinding != 0 {
			return Errorf("texture %q: multisampled textures cannot be storage textures", desc.Label)
		}
	default:
		return Errorf("texture %q: sample count %d, want 1 or 4", desc.Label, desc.SampleCount)
	}
	if desc.Format.IsDepthStencil() && desc.Usage&gputypes.TextureUsageStorageBinding != 0 {
		return Errorf("texture %q: depth formats cannot be storage textures", desc.Label)
	}
	return nil
}

// CreateTexture implements driver.Device.
func (d *Device) CreateTexture(desc *driver.TextureDesc) (driver.Texture, error) {
	if err := checkTexture(desc, d.limits, d.maxDimension(desc.Dimension)); err != nil {
		return nil, err
	}
	t, err := d.inner.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	return &texture{Texture: t, desc: *desc}, nil
}

// CreateTransferBuffer implements driver.Device.
func (d *Device) CreateTransferBuffer(desc *driver.TransferBufferDesc) (driver.TransferBuffer, error) {
	if desc.Size == 0 {
		return nil, Errorf("transfer buffer %q: zero size", desc.Label)
	}
	if desc.Usage != driver.TransferUpload && desc.Usage != driver.TransferDownload {
		return nil, Errorf("transfer buffer %q: unknown usage %d", desc.Label, desc.Usage)
	}
	b, err := d.inner.CreateTransferBuffer(desc)
	if err != nil {
		return nil, err
	}
	return &transferBuffer{TransferBuffer: b, desc: *desc}, nil
}

// CreateSampler implements driver.Device.
func (d *Device) CreateSampler(desc *driver.SamplerDesc) (driver.Sampler, error) {
	if desc.LodMinClamp < 0 || desc.LodMaxClamp < desc.LodMinClamp {
		return nil, Errorf("sampler %q: invalid lod clamp %g..%g", desc.Label, desc.LodMinClamp, desc.LodMaxClamp)
	}
	if desc.MaxAnisotropy > 1 && (desc.MagFilter != gputypes.FilterModeLinear ||
		desc.MinFilter != gputypes.FilterModeLinear || desc.MipmapFilter != gputypes.FilterModeLinear) {
		return nil, Errorf("sampler %q: anisotropic filtering requires linear filters", desc.Label)
	}
	s, err := d.inner.CreateSampler(desc)
	if err != nil {
		return nil, err
	}
	return &sampler{Sampler: s}, nil
}

// maxBindings bounds per-stage resource declarations.
const (
	maxBindings       = 16
	maxUniformBuffers = 4
)

func checkResources(label string, samplers, textures, buffers, uniforms int) error {
	for _, n := range []int{samplers, textures, buffers} {
		if n < 0 || n > maxBindings {
			return Errorf("shader %q: %d bindings of one kind, limit %d", label, n, maxBindings)
		}
	}
	if uniforms < 0 || uniforms > maxUniformBuffers {
		return Errorf("shader %q: %d uniform buffers, limit %d", label, uniforms, maxUniformBuffers)
	}
	return nil
}

func checkFormat(label string, format, accepted driver.ShaderFormat) error {
	if format == driver.ShaderFormatInvalid || bits.OnesCount32(uint32(format)) != 1 {
		return Errorf("shader %q: format %v must name one format", label, format)
	}
	if !accepted.Has(format) {
		return Errorf("shader %q: driver does not accept %v", label, format)
	}
	return nil
}

// CreateShader implements driver.Device.
func (d *Device) CreateShader(desc *driver.ShaderDesc) (driver.Shader, error) {
	if desc.Stage != driver.StageVertex && desc.Stage != driver.StageFragment {
		return nil, Errorf("shader %q: stage %v, compute shaders are pipelines", desc.Label, desc.Stage)
	}
	if len(desc.Code) == 0 {
		return nil, Errorf("shader %q: no code", desc.Label)
	}
	if err := checkFormat(desc.Label, desc.Format, d.inner.ShaderFormats()); err != nil {
		return nil, err
	}
	r := desc.Resources
	if err := checkResources(desc.Label, r.Samplers, r.StorageTextures, r.StorageBuffers, r.UniformBuffers); err != nil {
		return nil, err
	}
	s, err := d.inner.CreateShader(desc)
	if err != nil {
		return nil, err
	}
	return &shader{Shader: s, desc: *desc}, nil
}

// CreateComputePipeline implements driver.Device.
func (d *Device) CreateComputePipeline(desc *driver.ComputePipelineDesc) (driver.ComputePipeline, error) {
	if len(desc.Code) == 0 {
		return nil, Errorf("compute pipeline %q: no code", desc.Label)
	}
	if err := checkFormat(desc.Label, desc.Format, d.inner.ShaderFormats()); err != nil {
		return nil, err
	}
	r := desc.Resources
	if err := checkResources(desc.Label, r.Samplers, r.ReadOnlyStorageTextures+r.ReadWriteStorageTextures,
		r.ReadOnlyStorageBuffers+r.ReadWriteStorageBuffers, r.UniformBuffers); err != nil {
		return nil, err
	}
	tc := desc.ThreadCount
	limits := [3]uint32{d.limits.MaxComputeWorkgroupSizeX, d.limits.MaxComputeWorkgroupSizeY, d.limits.MaxComputeWorkgroupSizeZ}
	for i := range tc {
		if tc[i] == 0 || (limits[i] > 0 && tc[i] > limits[i]) {
			return nil, Errorf("compute pipeline %q: thread count %v exceeds %v", desc.Label, tc, limits)
		}
	}
	if m := d.limits.MaxComputeInvocationsPerWorkgroup; m > 0 && uint64(tc[0])*uint64(tc[1])*uint64(tc[2]) > uint64(m) {
		return nil, Errorf("compute pipeline %q: %d invocations per workgroup, limit %d",
			desc.Label, uint64(tc[0])*uint64(tc[1])*uint64(tc[2]), m)
	}
	p, err := d.inner.CreateComputePipeline(desc)
	if err != nil {
		return nil, err
	}
	return &computePipeline{ComputePipeline: p, desc: *desc}, nil
}

// CreateGraphicsPipeline implements driver.Device.
func (d *Device) CreateGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.GraphicsPipeline, error) {
	vs, ok := desc.VertexShader.(*shader)
	if !ok || vs.desc.Stage != driver.StageVertex {
		return nil, Errorf("graphics pipeline %q: vertex shader missing or of wrong stage", desc.Label)
	}
	fs, ok := desc.FragmentShader.(*shader)
	if !ok || fs.desc.Stage != driver.StageFragment {
		return nil, Errorf("graphics pipeline %q: fragment shader missing or of wrong stage", desc.Label)
	}
	if m := d.limits.MaxColorAttachments; m > 0 && uint32(len(desc.ColorTargets)) > m {
		return nil, Errorf("graphics pipeline %q: %d color targets, limit %d", desc.Label, len(desc.ColorTargets), m)
	}
	if m := d.limits.MaxVertexBuffers; m > 0 && uint32(len(desc.VertexBuffers)) > m {
		return nil, Errorf("graphics pipeline %q: %d vertex buffers, limit %d", desc.Label, len(desc.VertexBuffers), m)
	}
	for i, ct := range desc.ColorTargets {
		if ct.Format.IsDepthStencil() {
			return nil, Errorf("graphics pipeline %q: color target %d has depth format %v", desc.Label, i, ct.Format)
		}
	}
	if desc.DepthStencilFormat != gputypes.TextureFormatUndefined && !desc.DepthStencilFormat.IsDepthStencil() {
		return nil, Errorf("graphics pipeline %q: depth format %v is not a depth format", desc.Label, desc.DepthStencilFormat)
	}
	if desc.SampleCount != 1 && desc.SampleCount != 4 {
		return nil, Errorf("graphics pipeline %q: sample count %d, want 1 or 4", desc.Label, desc.SampleCount)
	}
	inner := *desc
	inner.VertexShader = vs.Shader
	inner.FragmentShader = fs.Shader
	p, err := d.inner.CreateGraphicsPipeline(&inner)
	if err != nil {
		return nil, err
	}
	return &graphicsPipeline{GraphicsPipeline: p, desc: *desc}, nil
}

// CreateSwapchain implements driver.Device.
func (d *Device) CreateSwapchain(desc *driver.SwapchainDesc) (driver.Swapchain, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, Errorf("swapchain %q: zero extent", desc.Label)
	}
	if m := d.limits.MaxTextureDimension2D; m > 0 && (desc.Width > m || desc.Height > m) {
		return nil, Errorf("swapchain %q: extent %dx%d exceeds limit %d", desc.Label, desc.Width, desc.Height, m)
	}
	if desc.Format.IsDepthStencil() {
		return nil, Errorf("swapchain %q: depth format %v", desc.Label, desc.Format)
	}
	sc, err := d.inner.CreateSwapchain(desc)
	if err != nil {
		return nil, err
	}
	return &swapchain{Swapchain: sc}, nil
}

// CreateEncoder implements driver.Device.
func (d *Device) CreateEncoder() (driver.Encoder, error) {
	e, err := d.inner.CreateEncoder()
	if err != nil {
		return nil, err
	}
	return &encoder{inner: e, dev: d}, nil
}

// CreateFence implements driver.Device.
func (d *Device) CreateFence() (driver.Fence, error) { return d.inner.CreateFence() }

// WriteBuffer implements driver.Device.
func (d *Device) WriteBuffer(dst driver.Buffer, offset uint64, data []byte) error {
	b, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if b.desc.Usage&(gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst) == 0 {
		return Errorf("write to buffer %q without uniform or copy-dst usage", b.desc.Label)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return Errorf("write of %d bytes at %d exceeds buffer %q size %d", len(data), offset, b.desc.Label, b.desc.Size)
	}
	return d.inner.WriteBuffer(b.Buffer, offset, data)
}

// Submit implements driver.Device.
func (d *Device) Submit(enc driver.Encoder, fence driver.Fence) error {
	e, ok := enc.(*encoder)
	if !ok {
		return Errorf("submit of a foreign encoder %T", enc)
	}
	return d.inner.Submit(e.inner, fence)
}

// Wait implements driver.Device.
func (d *Device) Wait(ctx context.Context, fences []driver.Fence, waitAll bool) error {
	if len(fences) == 0 {
		return Errorf("wait on no fences")
	}
	return d.inner.Wait(ctx, fences, waitAll)
}

// WaitIdle implements driver.Device.
func (d *Device) WaitIdle(ctx context.Context) error { return d.inner.WaitIdle(ctx) }

// Destroy implements driver.Device.
func (d *Device) Destroy() { d.inner.Destroy() }
