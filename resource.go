package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// Buffer is a GPU buffer. Writes that request cycling never stall on work
// still reading an earlier generation of the buffer.
type Buffer struct {
	container[driver.Buffer]
	desc BufferDesc
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.desc.Usage }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// SetLabel renames the buffer and every physical resource backing it.
func (b *Buffer) SetLabel(label string) { b.setLabel(label) }

// Texture is a GPU texture. Swapchain textures belong to their swapchain and
// are never cycled.
type Texture struct {
	container[driver.Texture]
	desc      TextureDesc
	swapchain *Swapchain
}

// Width returns the width of mip level 0.
func (t *Texture) Width() uint32 { return t.desc.Size.Width }

// Height returns the height of mip level 0.
func (t *Texture) Height() uint32 { return t.desc.Size.Height }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }

// Desc returns the normalized descriptor.
func (t *Texture) Desc() TextureDesc { return t.desc }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// SetLabel renames the texture and every physical resource backing it.
func (t *Texture) SetLabel(label string) { t.setLabel(label) }

// TransferBuffer is CPU-visible staging memory for uploads and downloads.
type TransferBuffer struct {
	container[driver.TransferBuffer]
	desc   TransferBufferDesc
	mapped bool
}

// Size returns the buffer size in bytes.
func (b *TransferBuffer) Size() uint64 { return b.desc.Size }

// Usage returns whether the buffer feeds uploads or receives downloads.
func (b *TransferBuffer) Usage() TransferUsage { return b.desc.Usage }

// Label returns the debug label.
func (b *TransferBuffer) Label() string { return b.label }

// SetLabel renames the buffer and every physical resource backing it.
func (b *TransferBuffer) SetLabel(label string) { b.setLabel(label) }

// Map returns the CPU view of the buffer's memory. With cycle set and the
// current memory still referenced by pending uploads, a different
// generation is mapped so those uploads read the data they were recorded
// with. The view is valid until Unmap.
func (b *TransferBuffer) Map(cycle bool) ([]byte, error) {
	d := b.dev
	if b.released {
		return nil, d.fail("TransferBuffer.Map", ErrReleased)
	}
	if b.mapped {
		return nil, d.fail("TransferBuffer.Map", ErrMapped)
	}
	g, err := b.prepareForWrite(cycle)
	if err != nil {
		return nil, d.fail("TransferBuffer.Map", err)
	}
	b.mapped = true
	return g.native.Bytes(), nil
}

// Unmap ends CPU access started by Map.
func (b *TransferBuffer) Unmap() error {
	if !b.mapped {
		return b.dev.fail("TransferBuffer.Unmap", ErrNotMapped)
	}
	b.mapped = false
	if err := b.current().native.Flush(); err != nil {
		return b.dev.fail("TransferBuffer.Unmap", errors.Wrap(err, "rhi: flush transfer buffer"))
	}
	return nil
}

// Sampler describes how shaders sample textures.
type Sampler struct {
	object[driver.Sampler]
}

// Shader is a compiled shader stage.
type Shader struct {
	object[driver.Shader]
	stage Stage
}

// Stage returns the shader stage.
func (s *Shader) Stage() Stage { return s.stage }

// ComputePipeline is a compute shader with its resource layout.
type ComputePipeline struct {
	object[driver.ComputePipeline]
}

// GraphicsPipeline is the complete state for draw calls.
type GraphicsPipeline struct {
	object[driver.GraphicsPipeline]
}

// CreateBuffer creates a buffer.
func (d *Device) CreateBuffer(desc *BufferDesc) (*Buffer, error) {
	const op = "CreateBuffer"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	if desc == nil || desc.Size == 0 || desc.Usage == gputypes.BufferUsageNone {
		return nil, d.fail(op, ErrInvalidDescriptor)
	}
	b := &Buffer{desc: *desc}
	err := b.init(d, "buffer", desc.Label, true, func() (driver.Buffer, error) {
		return d.dev.CreateBuffer(&b.desc)
	})
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create buffer %q", desc.Label))
	}
	return b, nil
}

func normalizeTexture(desc *TextureDesc) (TextureDesc, error) {
	n := *desc
	if n.Format == gputypes.TextureFormatUndefined || n.Usage == gputypes.TextureUsageNone || n.Size.Width == 0 {
		return n, ErrInvalidDescriptor
	}
	if n.Dimension == gputypes.TextureDimensionUndefined {
		n.Dimension = gputypes.TextureDimension2D
	}
	if n.Size.Height == 0 {
		if n.Dimension != gputypes.TextureDimension1D {
			return n, ErrInvalidDescriptor
		}
		n.Size.Height = 1
	}
	if n.Size.DepthOrArrayLayers == 0 {
		n.Size.DepthOrArrayLayers = 1
	}
	if n.MipLevelCount == 0 {
		n.MipLevelCount = 1
	}
	if n.SampleCount == 0 {
		n.SampleCount = 1
	}
	return n, nil
}

// CreateTexture creates a texture. Zero mip level count, sample count, array
// layers and dimension default to 1, 1, 1 and 2D.
func (d *Device) CreateTexture(desc *TextureDesc) (*Texture, error) {
	const op = "CreateTexture"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	if desc == nil {
		return nil, d.fail(op, ErrInvalidDescriptor)
	}
	n, err := normalizeTexture(desc)
	if err != nil {
		return nil, d.fail(op, err)
	}
	t := &Texture{desc: n}
	err = t.init(d, "texture", n.Label, true, func() (driver.Texture, error) {
		return d.dev.CreateTexture(&t.desc)
	})
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create texture %q", n.Label))
	}
	return t, nil
}

// CreateTransferBuffer creates a transfer buffer.
func (d *Device) CreateTransferBuffer(desc *TransferBufferDesc) (*TransferBuffer, error) {
	const op = "CreateTransferBuffer"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	if desc == nil || desc.Size == 0 {
		return nil, d.fail(op, ErrInvalidDescriptor)
	}
	b := &TransferBuffer{desc: *desc}
	err := b.init(d, "transfer buffer", desc.Label, true, func() (driver.TransferBuffer, error) {
		return d.dev.CreateTransferBuffer(&b.desc)
	})
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create transfer buffer %q", desc.Label))
	}
	return b, nil
}

// CreateSampler creates a sampler. Undefined address modes default to
// clamp-to-edge and undefined filters to nearest.
func (d *Device) CreateSampler(desc *SamplerDesc) (*Sampler, error) {
	const op = "CreateSampler"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	var n SamplerDesc
	if desc != nil {
		n = *desc
	}
	for _, m := range []*gputypes.AddressMode{&n.AddressModeU, &n.AddressModeV, &n.AddressModeW} {
		if *m == gputypes.AddressModeUndefined {
			*m = gputypes.AddressModeClampToEdge
		}
	}
	for _, f := range []*gputypes.FilterMode{&n.MagFilter, &n.MinFilter, &n.MipmapFilter} {
		if *f == gputypes.FilterModeUndefined {
			*f = gputypes.FilterModeNearest
		}
	}
	if n.LodMaxClamp == 0 {
		n.LodMaxClamp = 32
	}
	if n.MaxAnisotropy == 0 {
		n.MaxAnisotropy = 1
	}
	native, err := d.dev.CreateSampler(&n)
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create sampler %q", n.Label))
	}
	return &Sampler{object: object[driver.Sampler]{dev: d, native: native}}, nil
}

// CreateShader creates a shader stage. WGSL is translated to SPIR-V when the
// driver does not accept WGSL.
func (d *Device) CreateShader(desc *ShaderDesc) (*Shader, error) {
	const op = "CreateShader"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	if desc == nil || len(desc.Code) == 0 || desc.Stage < 0 || desc.Stage >= driver.StageCount {
		return nil, d.fail(op, ErrInvalidDescriptor)
	}
	n := *desc
	format, code, err := d.negotiate(n.Format, n.Code)
	if err != nil {
		return nil, d.fail(op, err)
	}
	n.Format, n.Code = format, code
	if n.EntryPoint == "" {
		n.EntryPoint = "main"
	}
	native, err := d.dev.CreateShader(&n)
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create shader %q", n.Label))
	}
	return &Shader{object: object[driver.Shader]{dev: d, native: native}, stage: n.Stage}, nil
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *ComputePipelineDesc) (*ComputePipeline, error) {
	const op = "CreateComputePipeline"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	if desc == nil || len(desc.Code) == 0 {
		return nil, d.fail(op, ErrInvalidDescriptor)
	}
	n := *desc
	for i, c := range n.ThreadCount {
		if c == 0 {
			n.ThreadCount[i] = 1
		}
	}
	format, code, err := d.negotiate(n.Format, n.Code)
	if err != nil {
		return nil, d.fail(op, err)
	}
	n.Format, n.Code = format, code
	if n.EntryPoint == "" {
		n.EntryPoint = "main"
	}
	native, err := d.dev.CreateComputePipeline(&n)
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create compute pipeline %q", n.Label))
	}
	return &ComputePipeline{object: object[driver.ComputePipeline]{dev: d, native: native}}, nil
}

// CreateGraphicsPipeline creates a graphics pipeline from a vertex and a
// fragment shader.
func (d *Device) CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (*GraphicsPipeline, error) {
	const op = "CreateGraphicsPipeline"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	if desc == nil {
		return nil, d.fail(op, ErrInvalidDescriptor)
	}
	if desc.VertexShader == nil || desc.FragmentShader == nil {
		return nil, d.fail(op, ErrNilResource)
	}
	if desc.VertexShader.released || desc.FragmentShader.released {
		return nil, d.fail(op, ErrReleased)
	}
	if desc.VertexShader.stage != StageVertex || desc.FragmentShader.stage != StageFragment {
		return nil, d.fail(op, errors.Wrap(ErrInvalidDescriptor, "rhi: shader stage mismatch"))
	}
	sampleCount := desc.SampleCount
	if sampleCount == 0 {
		sampleCount = 1
	}
	native, err := d.dev.CreateGraphicsPipeline(&driver.GraphicsPipelineDesc{
		Label:              desc.Label,
		VertexShader:       desc.VertexShader.native,
		FragmentShader:     desc.FragmentShader.native,
		VertexBuffers:      desc.VertexBuffers,
		Primitive:          desc.Primitive,
		ColorTargets:       desc.ColorTargets,
		DepthStencilFormat: desc.DepthStencilFormat,
		DepthWriteEnabled:  desc.DepthWriteEnabled,
		DepthCompare:       desc.DepthCompare,
		SampleCount:        sampleCount,
	})
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create graphics pipeline %q", desc.Label))
	}
	return &GraphicsPipeline{object: object[driver.GraphicsPipeline]{dev: d, native: native}}, nil
}

// ReleaseBuffer releases a buffer. Physical memory is destroyed once no
// submitted command buffer references it.
func (d *Device) ReleaseBuffer(b *Buffer) error {
	if b == nil {
		return d.fail("ReleaseBuffer", ErrNilResource)
	}
	return d.fail("ReleaseBuffer", b.release())
}

// ReleaseTexture releases a texture. Swapchain textures cannot be released.
func (d *Device) ReleaseTexture(t *Texture) error {
	if t == nil {
		return d.fail("ReleaseTexture", ErrNilResource)
	}
	if t.swapchain != nil {
		return d.fail("ReleaseTexture", ErrSwapchainTexture)
	}
	return d.fail("ReleaseTexture", t.release())
}

// ReleaseTransferBuffer releases a transfer buffer.
func (d *Device) ReleaseTransferBuffer(b *TransferBuffer) error {
	if b == nil {
		return d.fail("ReleaseTransferBuffer", ErrNilResource)
	}
	return d.fail("ReleaseTransferBuffer", b.release())
}

// ReleaseSampler releases a sampler.
func (d *Device) ReleaseSampler(s *Sampler) error {
	if s == nil {
		return d.fail("ReleaseSampler", ErrNilResource)
	}
	return d.fail("ReleaseSampler", s.release())
}

// ReleaseShader releases a shader. Pipelines created from it stay valid.
func (d *Device) ReleaseShader(s *Shader) error {
	if s == nil {
		return d.fail("ReleaseShader", ErrNilResource)
	}
	return d.fail("ReleaseShader", s.release())
}

// ReleaseComputePipeline releases a compute pipeline.
func (d *Device) ReleaseComputePipeline(p *ComputePipeline) error {
	if p == nil {
		return d.fail("ReleaseComputePipeline", ErrNilResource)
	}
	return d.fail("ReleaseComputePipeline", p.release())
}

// ReleaseGraphicsPipeline releases a graphics pipeline.
func (d *Device) ReleaseGraphicsPipeline(p *GraphicsPipeline) error {
	if p == nil {
		return d.fail("ReleaseGraphicsPipeline", ErrNilResource)
	}
	return d.fail("ReleaseGraphicsPipeline", p.release())
}
