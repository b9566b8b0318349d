package wgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

const (
	drawIndirectStride        = 16
	drawIndexedIndirectStride = 20
)

type uniformBinding struct {
	buf          driver.Buffer
	offset, size uint64
}

// stageBindings holds the slot state of one shader stage until it is
// turned into a bind group at the next draw or dispatch.
type stageBindings struct {
	samplers []driver.TextureSamplerBinding
	textures []driver.Texture
	buffers  []driver.Buffer
	uniforms []uniformBinding
}

type download struct {
	tb           *transferBuffer
	offset, size uint64
}

type encoder struct {
	dev *Device
	raw hal.CommandEncoder

	recording  bool
	cmd        hal.CommandBuffer
	submission uint64

	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder
	gp      *graphicsPipeline
	cp      *computePipeline

	binds [driver.StageCount]stageBindings
	dirty [driver.StageCount]bool

	// Targets written by the open pass, returned to rest when it ends.
	written   []*texture
	rwTargets []driver.StorageTextureWrite
	rwBuffers []driver.Buffer

	groups    []hal.BindGroup
	downloads []download
}

func (e *encoder) Begin(label string) error {
	if err := e.raw.BeginEncoding(label); err != nil {
		return mapError(errors.Wrap(err, "wgpu: begin encoding"))
	}
	e.recording = true
	return nil
}

func (e *encoder) End() error {
	cmd, err := e.raw.EndEncoding()
	e.recording = false
	if err != nil {
		return mapError(errors.Wrap(err, "wgpu: end encoding"))
	}
	e.cmd = cmd
	return nil
}

func (e *encoder) Reset() {
	if e.recording {
		e.raw.DiscardEncoding()
		e.recording = false
	}
	if e.cmd != nil {
		e.dev.dev.FreeCommandBuffer(e.cmd)
		e.cmd = nil
	}
	for _, g := range e.groups {
		e.dev.dev.DestroyBindGroup(g)
	}
	e.groups = e.groups[:0]
	e.downloads = e.downloads[:0]
	e.submission = 0
	e.render, e.compute = nil, nil
	e.written, e.rwTargets, e.rwBuffers = nil, nil, nil
	e.resetBindings()
}

// Complete copies finished downloads into their transfer buffers.
func (e *encoder) Complete() {
	for _, dl := range e.downloads {
		if err := dl.tb.readBack(dl.offset, dl.size); err != nil {
			e.dev.log.Warn("wgpu: download readback failed", "buffer", dl.tb.label, "error", err)
		}
	}
	e.downloads = e.downloads[:0]
}

func (e *encoder) Destroy() {
	e.Reset()
	e.raw.Destroy()
}

func (e *encoder) resetBindings() {
	e.gp, e.cp = nil, nil
	e.binds = [driver.StageCount]stageBindings{}
	e.dirty = [driver.StageCount]bool{}
}

// resting is the state a texture is left in between passes.
func (t *texture) resting() gputypes.TextureUsage {
	u := t.desc.Usage
	switch {
	case u&gputypes.TextureUsageTextureBinding != 0:
		return gputypes.TextureUsageTextureBinding
	case u&gputypes.TextureUsageStorageBinding != 0:
		return gputypes.TextureUsageStorageBinding
	case u&gputypes.TextureUsageRenderAttachment != 0:
		return gputypes.TextureUsageRenderAttachment
	default:
		return gputypes.TextureUsageCopySrc
	}
}

func (e *encoder) rest() {
	for _, t := range e.written {
		t.transition(e.raw, t.resting())
	}
	e.written = e.written[:0]
}

func loadOp(op gputypes.LoadOp) gputypes.LoadOp {
	if op == gputypes.LoadOpUndefined {
		return gputypes.LoadOpLoad
	}
	return op
}

func storeOp(op gputypes.StoreOp) gputypes.StoreOp {
	if op == gputypes.StoreOpUndefined {
		return gputypes.StoreOpStore
	}
	return op
}

func (e *encoder) BeginRenderPass(desc *driver.RenderPassDesc) error {
	rp := &hal.RenderPassDescriptor{Label: desc.Label}
	for _, c := range desc.Colors {
		t := c.Texture.(*texture)
		v, err := t.view(viewKey{mip: c.MipLevel, layer: c.Layer})
		if err != nil {
			return err
		}
		t.transition(e.raw, gputypes.TextureUsageRenderAttachment)
		e.written = append(e.written, t)
		rp.ColorAttachments = append(rp.ColorAttachments, hal.RenderPassColorAttachment{
			View:       v,
			LoadOp:     loadOp(c.LoadOp),
			StoreOp:    storeOp(c.StoreOp),
			ClearValue: c.ClearColor,
		})
	}
	if ds := desc.DepthStencil; ds != nil {
		t := ds.Texture.(*texture)
		v, err := t.view(viewKey{})
		if err != nil {
			return err
		}
		t.transition(e.raw, gputypes.TextureUsageRenderAttachment)
		e.written = append(e.written, t)
		rp.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              v,
			DepthLoadOp:       loadOp(ds.LoadOp),
			DepthStoreOp:      storeOp(ds.StoreOp),
			DepthClearValue:   ds.ClearDepth,
			StencilLoadOp:     loadOp(ds.StencilLoadOp),
			StencilStoreOp:    storeOp(ds.StencilStoreOp),
			StencilClearValue: ds.ClearStencil,
		}
	}
	e.render = e.raw.BeginRenderPass(rp)
	return nil
}

func (e *encoder) EndRenderPass() {
	e.render.End()
	e.render = nil
	e.rest()
	e.resetBindings()
}

func (e *encoder) BeginComputePass(desc *driver.ComputePassDesc) error {
	for _, w := range desc.StorageTextures {
		t := w.Texture.(*texture)
		t.transition(e.raw, gputypes.TextureUsageStorageBinding)
		e.written = append(e.written, t)
	}
	e.rwTargets = append(e.rwTargets[:0], desc.StorageTextures...)
	e.rwBuffers = append(e.rwBuffers[:0], desc.StorageBuffers...)
	e.compute = e.raw.BeginComputePass(&hal.ComputePassDescriptor{Label: desc.Label})
	return nil
}

func (e *encoder) EndComputePass() {
	e.compute.End()
	e.compute = nil
	e.rest()
	e.rwTargets, e.rwBuffers = e.rwTargets[:0], e.rwBuffers[:0]
	e.resetBindings()
}

// Copy commands are recorded directly on the command encoder.
func (e *encoder) BeginCopyPass() error { return nil }
func (e *encoder) EndCopyPass()         {}

func (e *encoder) SetGraphicsPipeline(p driver.GraphicsPipeline) error {
	gp := p.(*graphicsPipeline)
	e.render.SetPipeline(gp.raw)
	e.gp = gp
	e.dirty[driver.StageVertex] = true
	e.dirty[driver.StageFragment] = true
	return nil
}

func (e *encoder) SetViewport(v driver.Viewport) {
	e.render.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
}

func (e *encoder) SetScissor(r driver.Rect) {
	e.render.SetScissorRect(r.X, r.Y, r.Width, r.Height)
}

func (e *encoder) SetBlendConstants(c gputypes.Color) { e.render.SetBlendConstant(&c) }
func (e *encoder) SetStencilReference(ref uint32)     { e.render.SetStencilReference(ref) }

func (e *encoder) SetVertexBuffers(first uint32, bindings []driver.BufferBinding) error {
	for i, b := range bindings {
		e.render.SetVertexBuffer(first+uint32(i), b.Buffer.(*buffer).raw, b.Offset)
	}
	return nil
}

func (e *encoder) SetIndexBuffer(b driver.BufferBinding, format gputypes.IndexFormat) error {
	e.render.SetIndexBuffer(b.Buffer.(*buffer).raw, format, b.Offset)
	return nil
}

// setAt stores v into s starting at first, growing s as needed.
func setAt[T any](s []T, first uint32, v []T) []T {
	if n := int(first) + len(v); n > len(s) {
		s = append(s, make([]T, n-len(s))...)
	}
	copy(s[first:], v)
	return s
}

func (e *encoder) SetSamplers(stage driver.Stage, first uint32, bindings []driver.TextureSamplerBinding) error {
	e.binds[stage].samplers = setAt(e.binds[stage].samplers, first, bindings)
	e.dirty[stage] = true
	return nil
}

func (e *encoder) SetStorageTextures(stage driver.Stage, first uint32, textures []driver.Texture) error {
	e.binds[stage].textures = setAt(e.binds[stage].textures, first, textures)
	e.dirty[stage] = true
	return nil
}

func (e *encoder) SetStorageBuffers(stage driver.Stage, first uint32, buffers []driver.Buffer) error {
	e.binds[stage].buffers = setAt(e.binds[stage].buffers, first, buffers)
	e.dirty[stage] = true
	return nil
}

func (e *encoder) SetUniformBuffer(stage driver.Stage, slot uint32, buf driver.Buffer, offset, size uint64) error {
	e.binds[stage].uniforms = setAt(e.binds[stage].uniforms, slot, []uniformBinding{{buf, offset, size}})
	e.dirty[stage] = true
	return nil
}

func slot[T comparable](s []T, i int) (T, bool) {
	var zero T
	if i >= len(s) || s[i] == zero {
		return zero, false
	}
	return s[i], true
}

func unbound(stage driver.Stage, kind string, i int) error {
	return errors.Newf("wgpu: %s %s slot %d is not bound", stage, kind, i)
}

// bindGroup builds the bind group of stage from the current slot state.
func (e *encoder) bindGroup(stage driver.Stage, l stageLayout, layout hal.BindGroupLayout, label string) (hal.BindGroup, error) {
	b := &e.binds[stage]
	entries := make([]gputypes.BindGroupEntry, 0, l.count())
	add := func(r gputypes.BindingResource) {
		entries = append(entries, gputypes.BindGroupEntry{Binding: uint32(len(entries)), Resource: r})
	}
	addBuffer := func(buf driver.Buffer, offset, size uint64) {
		raw := buf.(*buffer)
		if size == 0 {
			size = raw.size - offset
		}
		add(gputypes.BufferBinding{Buffer: raw.raw.NativeHandle(), Offset: offset, Size: size})
	}
	addView := func(t *texture, k viewKey) error {
		v, err := t.view(k)
		if err != nil {
			return err
		}
		add(gputypes.TextureViewBinding{TextureView: v.NativeHandle()})
		return nil
	}

	for i := range l.samplers {
		s, ok := slot(b.samplers, i)
		if !ok || s.Texture == nil || s.Sampler == nil {
			return nil, unbound(stage, "sampler", i)
		}
		if err := addView(s.Texture.(*texture), viewKey{whole: true}); err != nil {
			return nil, err
		}
		add(gputypes.SamplerBinding{Sampler: s.Sampler.(*sampler).raw.NativeHandle()})
	}
	for i := range l.roTextures {
		t, ok := slot(b.textures, i)
		if !ok {
			return nil, unbound(stage, "storage texture", i)
		}
		if err := addView(t.(*texture), viewKey{}); err != nil {
			return nil, err
		}
	}
	for i := range l.roBuffers {
		buf, ok := slot(b.buffers, i)
		if !ok {
			return nil, unbound(stage, "storage buffer", i)
		}
		addBuffer(buf, 0, 0)
	}
	for i := range l.rwTextures {
		if i >= len(e.rwTargets) {
			return nil, unbound(stage, "read-write storage texture", i)
		}
		w := e.rwTargets[i]
		if err := addView(w.Texture.(*texture), viewKey{mip: w.MipLevel, layer: w.Layer}); err != nil {
			return nil, err
		}
	}
	for i := range l.rwBuffers {
		buf, ok := slot(e.rwBuffers, i)
		if !ok {
			return nil, unbound(stage, "read-write storage buffer", i)
		}
		addBuffer(buf, 0, 0)
	}
	for i := range l.uniforms {
		u, ok := slot(b.uniforms, i)
		if !ok {
			return nil, unbound(stage, "uniform buffer", i)
		}
		addBuffer(u.buf, u.offset, u.size)
	}

	g, err := e.dev.dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: label, Layout: layout, Entries: entries})
	if err != nil {
		return nil, mapError(errors.Wrapf(err, "wgpu: %s bind group of %q", stage, label))
	}
	e.groups = append(e.groups, g)
	return g, nil
}

func (e *encoder) flushGraphics() error {
	if e.gp == nil {
		return errors.New("wgpu: draw without a graphics pipeline")
	}
	for i, stage := range []driver.Stage{driver.StageVertex, driver.StageFragment} {
		l := e.gp.stages[i]
		if !e.dirty[stage] || l.count() == 0 {
			continue
		}
		g, err := e.bindGroup(stage, l, e.gp.groups[i], e.gp.label)
		if err != nil {
			return err
		}
		e.render.SetBindGroup(uint32(i), g, nil)
		e.dirty[stage] = false
	}
	return nil
}

func (e *encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := e.flushGraphics(); err != nil {
		return err
	}
	e.render.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

func (e *encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	if err := e.flushGraphics(); err != nil {
		return err
	}
	e.render.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
	return nil
}

func (e *encoder) DrawIndirect(buf driver.Buffer, offset uint64, drawCount uint32) error {
	if err := e.flushGraphics(); err != nil {
		return err
	}
	raw := buf.(*buffer).raw
	for i := range uint64(drawCount) {
		e.render.DrawIndirect(raw, offset+i*drawIndirectStride)
	}
	return nil
}

func (e *encoder) DrawIndexedIndirect(buf driver.Buffer, offset uint64, drawCount uint32) error {
	if err := e.flushGraphics(); err != nil {
		return err
	}
	raw := buf.(*buffer).raw
	for i := range uint64(drawCount) {
		e.render.DrawIndexedIndirect(raw, offset+i*drawIndexedIndirectStride)
	}
	return nil
}

func (e *encoder) SetComputePipeline(p driver.ComputePipeline) error {
	cp := p.(*computePipeline)
	e.compute.SetPipeline(cp.raw)
	e.cp = cp
	e.dirty[driver.StageCompute] = true
	return nil
}

func (e *encoder) flushCompute() error {
	if e.cp == nil {
		return errors.New("wgpu: dispatch without a compute pipeline")
	}
	l := e.cp.stages[0]
	if !e.dirty[driver.StageCompute] || l.count() == 0 {
		return nil
	}
	g, err := e.bindGroup(driver.StageCompute, l, e.cp.groups[0], e.cp.label)
	if err != nil {
		return err
	}
	e.compute.SetBindGroup(0, g, nil)
	e.dirty[driver.StageCompute] = false
	return nil
}

func (e *encoder) Dispatch(x, y, z uint32) error {
	if err := e.flushCompute(); err != nil {
		return err
	}
	e.compute.Dispatch(x, y, z)
	return nil
}

func (e *encoder) DispatchIndirect(buf driver.Buffer, offset uint64) error {
	if err := e.flushCompute(); err != nil {
		return err
	}
	e.compute.DispatchIndirect(buf.(*buffer).raw, offset)
	return nil
}

// dataLayout converts texel pitches to the byte layout of a copy.
func dataLayout(loc driver.TransferLocation, format gputypes.TextureFormat, size gputypes.Extent3D) (hal.ImageDataLayout, error) {
	bpt, ok := driver.BytesPerTexel(format)
	if !ok {
		return hal.ImageDataLayout{}, errors.Wrapf(driver.ErrUnsupported, "wgpu: copies of %v", format)
	}
	ppr, rpl := loc.PixelsPerRow, loc.RowsPerLayer
	if ppr == 0 {
		ppr = size.Width
	}
	if rpl == 0 {
		rpl = max(size.Height, 1)
	}
	return hal.ImageDataLayout{Offset: loc.Offset, BytesPerRow: ppr * bpt, RowsPerImage: rpl}, nil
}

func (e *encoder) UploadToBuffer(src driver.TransferLocation, dst driver.BufferRegion) error {
	e.raw.CopyBufferToBuffer(src.Buffer.(*transferBuffer).raw, dst.Buffer.(*buffer).raw, []hal.BufferCopy{{
		SrcOffset: src.Offset,
		DstOffset: dst.Offset,
		Size:      dst.Size,
	}})
	return nil
}

func (e *encoder) UploadToTexture(src driver.TransferLocation, dst driver.TextureRegion) error {
	t := dst.Texture.(*texture)
	layout, err := dataLayout(src, t.desc.Format, dst.Size)
	if err != nil {
		return err
	}
	t.transition(e.raw, gputypes.TextureUsageCopyDst)
	e.raw.CopyBufferToTexture(src.Buffer.(*transferBuffer).raw, t.raw, []hal.BufferTextureCopy{{
		BufferLayout: layout,
		TextureBase: hal.ImageCopyTexture{
			Texture:  t.raw,
			MipLevel: dst.MipLevel,
			Origin:   origin(dst.Origin, dst.Layer),
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: extent(dst.Size),
	}})
	t.transition(e.raw, t.resting())
	return nil
}

func (e *encoder) CopyBufferToBuffer(src driver.BufferRegion, dstBuf driver.Buffer, dstOffset uint64) error {
	e.raw.CopyBufferToBuffer(src.Buffer.(*buffer).raw, dstBuf.(*buffer).raw, []hal.BufferCopy{{
		SrcOffset: src.Offset,
		DstOffset: dstOffset,
		Size:      src.Size,
	}})
	return nil
}

func (e *encoder) CopyTextureToTexture(src, dst driver.TextureLocation, size gputypes.Extent3D) error {
	st, dt := src.Texture.(*texture), dst.Texture.(*texture)
	if st == dt {
		st.transition(e.raw, gputypes.TextureUsageCopySrc|gputypes.TextureUsageCopyDst)
	} else {
		st.transition(e.raw, gputypes.TextureUsageCopySrc)
		dt.transition(e.raw, gputypes.TextureUsageCopyDst)
	}
	e.raw.CopyTextureToTexture(st.raw, dt.raw, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: st.raw, MipLevel: src.MipLevel, Origin: origin(src.Origin, src.Layer), Aspect: gputypes.TextureAspectAll},
		DstBase: hal.ImageCopyTexture{Texture: dt.raw, MipLevel: dst.MipLevel, Origin: origin(dst.Origin, dst.Layer), Aspect: gputypes.TextureAspectAll},
		Size:    extent(size),
	}})
	st.transition(e.raw, st.resting())
	dt.transition(e.raw, dt.resting())
	return nil
}

func (e *encoder) DownloadFromBuffer(src driver.BufferRegion, dst driver.TransferLocation) error {
	tb := dst.Buffer.(*transferBuffer)
	e.raw.CopyBufferToBuffer(src.Buffer.(*buffer).raw, tb.raw, []hal.BufferCopy{{
		SrcOffset: src.Offset,
		DstOffset: dst.Offset,
		Size:      src.Size,
	}})
	e.downloads = append(e.downloads, download{tb: tb, offset: dst.Offset, size: src.Size})
	return nil
}

func (e *encoder) DownloadFromTexture(src driver.TextureRegion, dst driver.TransferLocation) error {
	t := src.Texture.(*texture)
	tb := dst.Buffer.(*transferBuffer)
	layout, err := dataLayout(dst, t.desc.Format, src.Size)
	if err != nil {
		return err
	}
	n, _ := driver.TransferSize(t.desc.Format, src.Size, dst.PixelsPerRow, dst.RowsPerLayer)

	t.transition(e.raw, gputypes.TextureUsageCopySrc)
	e.raw.CopyTextureToBuffer(t.raw, tb.raw, []hal.BufferTextureCopy{{
		BufferLayout: layout,
		TextureBase: hal.ImageCopyTexture{
			Texture:  t.raw,
			MipLevel: src.MipLevel,
			Origin:   origin(src.Origin, src.Layer),
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: extent(src.Size),
	}})
	t.transition(e.raw, t.resting())
	e.downloads = append(e.downloads, download{tb: tb, offset: dst.Offset, size: n})
	return nil
}

// The HAL command encoder has no debug marker entry points.
func (e *encoder) PushDebugGroup(string)   {}
func (e *encoder) PopDebugGroup()          {}
func (e *encoder) InsertDebugLabel(string) {}
