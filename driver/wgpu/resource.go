package wgpu

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

type buffer struct {
	dev   *Device
	raw   hal.Buffer
	size  uint64
	label string
	once  sync.Once
}

func (b *buffer) SetLabel(label string) { b.label = label }
func (b *buffer) Size() uint64          { return b.size }

func (b *buffer) Destroy() {
	b.once.Do(func() { b.dev.dev.DestroyBuffer(b.raw) })
}

// transferBuffer pairs a HAL buffer with CPU memory. Uploads publish the
// CPU copy on Flush; downloads refresh it when their submission completes.
type transferBuffer struct {
	buffer
	usage  driver.TransferUsage
	shadow []byte
}

func (t *transferBuffer) Bytes() []byte { return t.shadow }

func (t *transferBuffer) Flush() error {
	if t.usage != driver.TransferUpload {
		return nil
	}
	return mapError(t.dev.queue.WriteBuffer(t.raw, 0, t.shadow))
}

// readBack copies [offset, offset+size) of the GPU buffer into the CPU copy.
func (t *transferBuffer) readBack(offset, size uint64) error {
	m, err := t.dev.dev.MapBuffer(t.raw, offset, size)
	if err != nil {
		return errors.Wrapf(err, "wgpu: map %q", t.label)
	}
	copy(t.shadow[offset:offset+size], unsafe.Slice((*byte)(m.Ptr), size))
	return t.dev.dev.UnmapBuffer(t.raw)
}

type viewKey struct {
	mip, layer uint32
	whole      bool
}

type texture struct {
	dev   *Device
	raw   hal.Texture
	desc  driver.TextureDesc
	label string

	// usage is the state the last recorded barrier left the texture in.
	usage atomic.Uint64

	mu    sync.Mutex
	views map[viewKey]hal.TextureView
	once  sync.Once
}

func newTexture(d *Device, raw hal.Texture, desc *driver.TextureDesc) *texture {
	t := &texture{dev: d, raw: raw, desc: *desc, label: desc.Label, views: make(map[viewKey]hal.TextureView)}
	t.desc.MipLevelCount = max(t.desc.MipLevelCount, 1)
	return t
}

func (t *texture) SetLabel(label string) { t.label = label }

func (t *texture) Destroy() {
	t.once.Do(func() {
		t.mu.Lock()
		for k, v := range t.views {
			t.dev.dev.DestroyTextureView(v)
			delete(t.views, k)
		}
		t.mu.Unlock()
		t.dev.dev.DestroyTexture(t.raw)
	})
}

func (t *texture) layers() uint32 {
	if t.desc.Dimension == gputypes.TextureDimension3D {
		return 1
	}
	return max(t.desc.Size.DepthOrArrayLayers, 1)
}

// view returns a cached view of one subresource, or of the whole texture
// when whole is set.
func (t *texture) view(k viewKey) (hal.TextureView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.views[k]; ok {
		return v, nil
	}

	desc := &hal.TextureViewDescriptor{
		Label:           t.label,
		Format:          t.desc.Format,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    k.mip,
		MipLevelCount:   1,
		BaseArrayLayer:  k.layer,
		ArrayLayerCount: 1,
		Dimension:       gputypes.TextureViewDimension2D,
	}
	switch {
	case t.desc.Dimension == gputypes.TextureDimension3D:
		desc.Dimension = gputypes.TextureViewDimension3D
		desc.BaseArrayLayer = 0
	case t.desc.Dimension == gputypes.TextureDimension1D:
		desc.Dimension = gputypes.TextureViewDimension1D
	case k.whole && t.layers() > 1:
		desc.Dimension = gputypes.TextureViewDimension2DArray
	}
	if k.whole {
		desc.BaseMipLevel, desc.MipLevelCount = 0, t.desc.MipLevelCount
		desc.BaseArrayLayer, desc.ArrayLayerCount = 0, t.layers()
	}

	v, err := t.dev.dev.CreateTextureView(t.raw, desc)
	if err != nil {
		return nil, mapError(errors.Wrapf(err, "wgpu: view of %q", t.label))
	}
	t.views[k] = v
	return v, nil
}

// transition records a barrier moving the texture to usage.
func (t *texture) transition(enc hal.CommandEncoder, usage gputypes.TextureUsage) {
	old := gputypes.TextureUsage(t.usage.Swap(uint64(usage)))
	if old == usage {
		return
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: old, NewUsage: usage},
	}})
}

type sampler struct {
	dev   *Device
	raw   hal.Sampler
	label string
	once  sync.Once
}

func (s *sampler) SetLabel(label string) { s.label = label }

func (s *sampler) Destroy() {
	s.once.Do(func() { s.dev.dev.DestroySampler(s.raw) })
}

type shader struct {
	dev        *Device
	raw        hal.ShaderModule
	label      string
	stage      driver.Stage
	entryPoint string
	layout     stageLayout
	once       sync.Once
}

func (s *shader) SetLabel(label string) { s.label = label }

func (s *shader) Destroy() {
	s.once.Do(func() { s.dev.dev.DestroyShaderModule(s.raw) })
}

// stageLayout counts the bindings of one bind group.
type stageLayout struct {
	samplers   int
	roTextures int
	roBuffers  int
	rwTextures int
	rwBuffers  int
	uniforms   int
}

func graphicsLayout(r driver.ShaderResources) stageLayout {
	return stageLayout{
		samplers:   r.Samplers,
		roTextures: r.StorageTextures,
		roBuffers:  r.StorageBuffers,
		uniforms:   r.UniformBuffers,
	}
}

func computeLayout(r driver.ComputeResources) stageLayout {
	return stageLayout{
		samplers:   r.Samplers,
		roTextures: r.ReadOnlyStorageTextures,
		roBuffers:  r.ReadOnlyStorageBuffers,
		rwTextures: r.ReadWriteStorageTextures,
		rwBuffers:  r.ReadWriteStorageBuffers,
		uniforms:   r.UniformBuffers,
	}
}

func (l stageLayout) roTextureBase() uint32 { return uint32(2 * l.samplers) }
func (l stageLayout) roBufferBase() uint32  { return l.roTextureBase() + uint32(l.roTextures) }
func (l stageLayout) rwTextureBase() uint32 { return l.roBufferBase() + uint32(l.roBuffers) }
func (l stageLayout) rwBufferBase() uint32  { return l.rwTextureBase() + uint32(l.rwTextures) }
func (l stageLayout) uniformBase() uint32   { return l.rwBufferBase() + uint32(l.rwBuffers) }
func (l stageLayout) count() int            { return int(l.uniformBase()) + l.uniforms }

// storageFormat is the format declared for storage texture bindings.
const storageFormat = gputypes.TextureFormatRGBA8Unorm

func (l stageLayout) entries(vis gputypes.ShaderStage) []gputypes.BindGroupLayoutEntry {
	out := make([]gputypes.BindGroupLayoutEntry, 0, l.count())
	add := func(e gputypes.BindGroupLayoutEntry) {
		e.Binding = uint32(len(out))
		e.Visibility = vis
		out = append(out, e)
	}
	for range l.samplers {
		add(gputypes.BindGroupLayoutEntry{Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}})
		add(gputypes.BindGroupLayoutEntry{Sampler: &gputypes.SamplerBindingLayout{
			Type: gputypes.SamplerBindingTypeFiltering,
		}})
	}
	for range l.roTextures {
		add(gputypes.BindGroupLayoutEntry{StorageTexture: &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadOnly,
			Format:        storageFormat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}})
	}
	for range l.roBuffers {
		add(gputypes.BindGroupLayoutEntry{Buffer: &gputypes.BufferBindingLayout{
			Type: gputypes.BufferBindingTypeReadOnlyStorage,
		}})
	}
	for range l.rwTextures {
		add(gputypes.BindGroupLayoutEntry{StorageTexture: &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        storageFormat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}})
	}
	for range l.rwBuffers {
		add(gputypes.BindGroupLayoutEntry{Buffer: &gputypes.BufferBindingLayout{
			Type: gputypes.BufferBindingTypeStorage,
		}})
	}
	for range l.uniforms {
		add(gputypes.BindGroupLayoutEntry{Buffer: &gputypes.BufferBindingLayout{
			Type: gputypes.BufferBindingTypeUniform,
		}})
	}
	return out
}

// pipelineLayout owns the bind group layouts shared by both pipeline kinds.
type pipelineLayout struct {
	dev    *Device
	label  string
	stages [2]stageLayout
	groups []hal.BindGroupLayout
	layout hal.PipelineLayout
}

func (p *pipelineLayout) build(n int, vis []gputypes.ShaderStage) error {
	for i := range n {
		g, err := p.dev.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   p.label,
			Entries: p.stages[i].entries(vis[i]),
		})
		if err != nil {
			p.destroyLayout()
			return mapError(errors.Wrapf(err, "wgpu: bind group layout %d of %q", i, p.label))
		}
		p.groups = append(p.groups, g)
	}
	layout, err := p.dev.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label,
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		p.destroyLayout()
		return mapError(errors.Wrapf(err, "wgpu: pipeline layout of %q", p.label))
	}
	p.layout = layout
	return nil
}

func (p *pipelineLayout) destroyLayout() {
	if p.layout != nil {
		p.dev.dev.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	for _, g := range p.groups {
		p.dev.dev.DestroyBindGroupLayout(g)
	}
	p.groups = nil
}

func (p *pipelineLayout) SetLabel(label string) { p.label = label }

type graphicsPipeline struct {
	pipelineLayout
	raw  hal.RenderPipeline
	once sync.Once
}

func (p *graphicsPipeline) Destroy() {
	p.once.Do(func() {
		p.dev.dev.DestroyRenderPipeline(p.raw)
		p.destroyLayout()
	})
}

type computePipeline struct {
	pipelineLayout
	raw    hal.ComputePipeline
	module hal.ShaderModule
	once   sync.Once
}

func (p *computePipeline) Destroy() {
	p.once.Do(func() {
		p.dev.dev.DestroyComputePipeline(p.raw)
		p.destroyLayout()
		p.dev.dev.DestroyShaderModule(p.module)
	})
}

func spirvWords(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 {
		return nil, errors.Newf("SPIR-V length %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	return words, nil
}

func extent(e gputypes.Extent3D) hal.Extent3D {
	return hal.Extent3D{
		Width:              e.Width,
		Height:             max(e.Height, 1),
		DepthOrArrayLayers: max(e.DepthOrArrayLayers, 1),
	}
}

func origin(o gputypes.Origin3D, layer uint32) hal.Origin3D {
	return hal.Origin3D{X: o.X, Y: o.Y, Z: o.Z + layer}
}
