package validate

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

type passKind int

const (
	noPass passKind = iota
	renderPass
	computePass
	copyPass
)

var passNames = [...]string{"no", "render", "compute", "copy"}

// Indirect argument sizes in bytes.
const (
	drawArgsSize        = 16
	drawIndexedArgsSize = 20
	dispatchArgsSize    = 12
)

// encoder validates recording order and arguments before forwarding.
type encoder struct {
	inner driver.Encoder
	dev   *Device

	recording  bool
	pass       passKind
	groups     int
	pipeline   bool
	indexBound bool
}

func (e *encoder) in(kind passKind, what string) error {
	if !e.recording {
		return Errorf("%s on an encoder that is not recording", what)
	}
	if e.pass != kind {
		return Errorf("%s in %s pass, want %s pass", what, passNames[e.pass], passNames[kind])
	}
	return nil
}

func (e *encoder) Begin(label string) error {
	if e.recording {
		return Errorf("encoder already recording")
	}
	if err := e.inner.Begin(label); err != nil {
		return err
	}
	e.recording = true
	return nil
}

func (e *encoder) End() error {
	if err := e.in(noPass, "end of recording"); err != nil {
		return err
	}
	if e.groups != 0 {
		return Errorf("%d debug groups not popped", e.groups)
	}
	if err := e.inner.End(); err != nil {
		return err
	}
	e.recording = false
	return nil
}

func (e *encoder) Reset() {
	e.inner.Reset()
	e.recording = false
	e.pass = noPass
	e.groups = 0
	e.pipeline = false
	e.indexBound = false
}

func (e *encoder) Complete() { e.inner.Complete() }
func (e *encoder) Destroy()  { e.inner.Destroy() }

func (e *encoder) enter(kind passKind) {
	e.pass = kind
	e.pipeline = false
	e.indexBound = false
}

func (e *encoder) BeginRenderPass(desc *driver.RenderPassDesc) error {
	if err := e.in(noPass, "render pass"); err != nil {
		return err
	}
	if m := e.dev.limits.MaxColorAttachments; m > 0 && uint32(len(desc.Colors)) > m {
		return Errorf("%d color attachments, limit %d", len(desc.Colors), m)
	}
	inner := *desc
	inner.Colors = make([]driver.ColorAttachment, len(desc.Colors))
	var extent *gputypes.Extent3D
	sameSize := func(t *texture, level uint32) error {
		ext := driver.MipExtent(t.desc.Size, t.desc.Dimension, level)
		ext.DepthOrArrayLayers = 1
		if extent == nil {
			extent = &ext
			return nil
		}
		if *extent != ext {
			return Errorf("attachment %q extent %v differs from %v", t.desc.Label, ext, *extent)
		}
		return nil
	}
	for i, c := range desc.Colors {
		t, err := asTexture(c.Texture)
		if err != nil {
			return err
		}
		if err := needTexture(t, gputypes.TextureUsageRenderAttachment, "color attachment"); err != nil {
			return err
		}
		if t.desc.Format.IsDepthStencil() {
			return Errorf("color attachment %d has depth format %v", i, t.desc.Format)
		}
		if err := t.subresource(c.MipLevel, c.Layer); err != nil {
			return err
		}
		if err := sameSize(t, c.MipLevel); err != nil {
			return err
		}
		inner.Colors[i] = c
		inner.Colors[i].Texture = t.Texture
	}
	if ds := desc.DepthStencil; ds != nil {
		t, err := asTexture(ds.Texture)
		if err != nil {
			return err
		}
		if err := needTexture(t, gputypes.TextureUsageRenderAttachment, "depth attachment"); err != nil {
			return err
		}
		if !t.desc.Format.IsDepthStencil() {
			return Errorf("depth attachment %q has color format %v", t.desc.Label, t.desc.Format)
		}
		if err := sameSize(t, 0); err != nil {
			return err
		}
		dsCopy := *ds
		dsCopy.Texture = t.Texture
		inner.DepthStencil = &dsCopy
	}
	if err := e.inner.BeginRenderPass(&inner); err != nil {
		return err
	}
	e.enter(renderPass)
	return nil
}

func (e *encoder) EndRenderPass() {
	if e.pass != renderPass {
		e.dev.log.Warn("validate: EndRenderPass outside a render pass")
		return
	}
	e.inner.EndRenderPass()
	e.pass = noPass
}

func (e *encoder) BeginComputePass(desc *driver.ComputePassDesc) error {
	if err := e.in(noPass, "compute pass"); err != nil {
		return err
	}
	inner := driver.ComputePassDesc{
		Label:           desc.Label,
		StorageTextures: make([]driver.StorageTextureWrite, len(desc.StorageTextures)),
		StorageBuffers:  make([]driver.Buffer, len(desc.StorageBuffers)),
	}
	for i, w := range desc.StorageTextures {
		t, err := asTexture(w.Texture)
		if err != nil {
			return err
		}
		if err := needTexture(t, gputypes.TextureUsageStorageBinding, "storage write"); err != nil {
			return err
		}
		if err := t.subresource(w.MipLevel, w.Layer); err != nil {
			return err
		}
		inner.StorageTextures[i] = driver.StorageTextureWrite{Texture: t.Texture, MipLevel: w.MipLevel, Layer: w.Layer}
	}
	for i, b := range desc.StorageBuffers {
		w, err := asBuffer(b)
		if err != nil {
			return err
		}
		if err := needBuffer(w, gputypes.BufferUsageStorage, "storage write"); err != nil {
			return err
		}
		inner.StorageBuffers[i] = w.Buffer
	}
	if err := e.inner.BeginComputePass(&inner); err != nil {
		return err
	}
	e.enter(computePass)
	return nil
}

func (e *encoder) EndComputePass() {
	if e.pass != computePass {
		e.dev.log.Warn("validate: EndComputePass outside a compute pass")
		return
	}
	e.inner.EndComputePass()
	e.pass = noPass
}

func (e *encoder) BeginCopyPass() error {
	if err := e.in(noPass, "copy pass"); err != nil {
		return err
	}
	if err := e.inner.BeginCopyPass(); err != nil {
		return err
	}
	e.enter(copyPass)
	return nil
}

func (e *encoder) EndCopyPass() {
	if e.pass != copyPass {
		e.dev.log.Warn("validate: EndCopyPass outside a copy pass")
		return
	}
	e.inner.EndCopyPass()
	e.pass = noPass
}

func (e *encoder) SetGraphicsPipeline(p driver.GraphicsPipeline) error {
	if err := e.in(renderPass, "graphics pipeline"); err != nil {
		return err
	}
	gp, ok := p.(*graphicsPipeline)
	if !ok {
		return Errorf("graphics pipeline %T was not created by this device", p)
	}
	if err := e.inner.SetGraphicsPipeline(gp.GraphicsPipeline); err != nil {
		return err
	}
	e.pipeline = true
	return nil
}

func (e *encoder) SetViewport(v driver.Viewport) {
	if e.pass != renderPass {
		e.dev.log.Warn("validate: SetViewport outside a render pass")
		return
	}
	if v.Width <= 0 || v.Height <= 0 || v.MinDepth < 0 || v.MaxDepth > 1 || v.MinDepth > v.MaxDepth {
		e.dev.log.Warn("validate: invalid viewport", "viewport", v)
	}
	e.inner.SetViewport(v)
}

func (e *encoder) SetScissor(r driver.Rect) {
	if e.pass != renderPass {
		e.dev.log.Warn("validate: SetScissor outside a render pass")
		return
	}
	e.inner.SetScissor(r)
}

func (e *encoder) SetBlendConstants(c gputypes.Color) {
	if e.pass == renderPass {
		e.inner.SetBlendConstants(c)
	}
}

func (e *encoder) SetStencilReference(ref uint32) {
	if e.pass == renderPass {
		e.inner.SetStencilReference(ref)
	}
}

func (e *encoder) SetVertexBuffers(first uint32, bindings []driver.BufferBinding) error {
	if err := e.in(renderPass, "vertex buffers"); err != nil {
		return err
	}
	if m := e.dev.limits.MaxVertexBuffers; m > 0 && uint64(first)+uint64(len(bindings)) > uint64(m) {
		return Errorf("vertex buffer slots %d+%d exceed limit %d", first, len(bindings), m)
	}
	inner := make([]driver.BufferBinding, len(bindings))
	for i, b := range bindings {
		w, err := asBuffer(b.Buffer)
		if err != nil {
			return err
		}
		if err := needBuffer(w, gputypes.BufferUsageVertex, "vertex buffer"); err != nil {
			return err
		}
		if b.Offset >= w.desc.Size {
			return Errorf("vertex buffer %q offset %d beyond size %d", w.desc.Label, b.Offset, w.desc.Size)
		}
		inner[i] = driver.BufferBinding{Buffer: w.Buffer, Offset: b.Offset}
	}
	return e.inner.SetVertexBuffers(first, inner)
}

func (e *encoder) SetIndexBuffer(b driver.BufferBinding, format gputypes.IndexFormat) error {
	if err := e.in(renderPass, "index buffer"); err != nil {
		return err
	}
	w, err := asBuffer(b.Buffer)
	if err != nil {
		return err
	}
	if err := needBuffer(w, gputypes.BufferUsageIndex, "index buffer"); err != nil {
		return err
	}
	size := uint64(2)
	if format == gputypes.IndexFormatUint32 {
		size = 4
	}
	if b.Offset%size != 0 || b.Offset >= w.desc.Size {
		return Errorf("index buffer %q offset %d misaligned or beyond size", w.desc.Label, b.Offset)
	}
	if err := e.inner.SetIndexBuffer(driver.BufferBinding{Buffer: w.Buffer, Offset: b.Offset}, format); err != nil {
		return err
	}
	e.indexBound = true
	return nil
}

func (e *encoder) inShaderPass(stage driver.Stage, what string) error {
	if stage == driver.StageCompute {
		return e.in(computePass, what)
	}
	return e.in(renderPass, what)
}

func (e *encoder) SetSamplers(stage driver.Stage, first uint32, bindings []driver.TextureSamplerBinding) error {
	if err := e.inShaderPass(stage, "samplers"); err != nil {
		return err
	}
	inner := make([]driver.TextureSamplerBinding, len(bindings))
	for i, b := range bindings {
		t, err := asTexture(b.Texture)
		if err != nil {
			return err
		}
		if err := needTexture(t, gputypes.TextureUsageTextureBinding, "sampled texture"); err != nil {
			return err
		}
		s, ok := b.Sampler.(*sampler)
		if !ok {
			return Errorf("sampler %T was not created by this device", b.Sampler)
		}
		inner[i] = driver.TextureSamplerBinding{Texture: t.Texture, Sampler: s.Sampler}
	}
	return e.inner.SetSamplers(stage, first, inner)
}

func (e *encoder) SetStorageTextures(stage driver.Stage, first uint32, textures []driver.Texture) error {
	if err := e.inShaderPass(stage, "storage textures"); err != nil {
		return err
	}
	inner := make([]driver.Texture, len(textures))
	for i, tex := range textures {
		t, err := asTexture(tex)
		if err != nil {
			return err
		}
		if err := needTexture(t, gputypes.TextureUsageStorageBinding|gputypes.TextureUsageTextureBinding, "storage texture"); err != nil {
			return err
		}
		inner[i] = t.Texture
	}
	return e.inner.SetStorageTextures(stage, first, inner)
}

func (e *encoder) SetStorageBuffers(stage driver.Stage, first uint32, buffers []driver.Buffer) error {
	if err := e.inShaderPass(stage, "storage buffers"); err != nil {
		return err
	}
	inner := make([]driver.Buffer, len(buffers))
	for i, buf := range buffers {
		b, err := asBuffer(buf)
		if err != nil {
			return err
		}
		if err := needBuffer(b, gputypes.BufferUsageStorage, "storage buffer"); err != nil {
			return err
		}
		inner[i] = b.Buffer
	}
	return e.inner.SetStorageBuffers(stage, first, inner)
}

func (e *encoder) SetUniformBuffer(stage driver.Stage, slot uint32, buf driver.Buffer, offset, size uint64) error {
	if err := e.inShaderPass(stage, "uniform buffer"); err != nil {
		return err
	}
	b, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if err := needBuffer(b, gputypes.BufferUsageUniform, "uniform buffer"); err != nil {
		return err
	}
	if a := uint64(e.dev.limits.MinUniformBufferOffsetAlignment); a > 0 && offset%a != 0 {
		return Errorf("uniform offset %d not aligned to %d", offset, a)
	}
	if offset+size > b.desc.Size {
		return Errorf("uniform range %d+%d exceeds buffer size %d", offset, size, b.desc.Size)
	}
	if m := e.dev.limits.MaxUniformBufferBindingSize; m > 0 && size > m {
		return Errorf("uniform binding of %d bytes exceeds limit %d", size, m)
	}
	return e.inner.SetUniformBuffer(stage, slot, b.Buffer, offset, size)
}

func (e *encoder) drawable(what string) error {
	if err := e.in(renderPass, what); err != nil {
		return err
	}
	if !e.pipeline {
		return Errorf("%s without a graphics pipeline", what)
	}
	return nil
}

func (e *encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := e.drawable("draw"); err != nil {
		return err
	}
	return e.inner.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (e *encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	if err := e.drawable("indexed draw"); err != nil {
		return err
	}
	if !e.indexBound {
		return Errorf("indexed draw without an index buffer")
	}
	return e.inner.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func indirectBuffer(buf driver.Buffer, offset, size uint64) (*buffer, error) {
	b, err := asBuffer(buf)
	if err != nil {
		return nil, err
	}
	if err := needBuffer(b, gputypes.BufferUsageIndirect, "indirect buffer"); err != nil {
		return nil, err
	}
	if offset%4 != 0 || offset+size > b.desc.Size {
		return nil, Errorf("indirect arguments %d+%d misaligned or beyond buffer %q", offset, size, b.desc.Label)
	}
	return b, nil
}

func (e *encoder) DrawIndirect(buf driver.Buffer, offset uint64, drawCount uint32) error {
	if err := e.drawable("indirect draw"); err != nil {
		return err
	}
	b, err := indirectBuffer(buf, offset, uint64(drawCount)*drawArgsSize)
	if err != nil {
		return err
	}
	return e.inner.DrawIndirect(b.Buffer, offset, drawCount)
}

func (e *encoder) DrawIndexedIndirect(buf driver.Buffer, offset uint64, drawCount uint32) error {
	if err := e.drawable("indexed indirect draw"); err != nil {
		return err
	}
	if !e.indexBound {
		return Errorf("indexed draw without an index buffer")
	}
	b, err := indirectBuffer(buf, offset, uint64(drawCount)*drawIndexedArgsSize)
	if err != nil {
		return err
	}
	return e.inner.DrawIndexedIndirect(b.Buffer, offset, drawCount)
}

func (e *encoder) SetComputePipeline(p driver.ComputePipeline) error {
	if err := e.in(computePass, "compute pipeline"); err != nil {
		return err
	}
	cp, ok := p.(*computePipeline)
	if !ok {
		return Errorf("compute pipeline %T was not created by this device", p)
	}
	if err := e.inner.SetComputePipeline(cp.ComputePipeline); err != nil {
		return err
	}
	e.pipeline = true
	return nil
}

func (e *encoder) dispatchable(what string) error {
	if err := e.in(computePass, what); err != nil {
		return err
	}
	if !e.pipeline {
		return Errorf("%s without a compute pipeline", what)
	}
	return nil
}

func (e *encoder) Dispatch(x, y, z uint32) error {
	if err := e.dispatchable("dispatch"); err != nil {
		return err
	}
	if m := e.dev.limits.MaxComputeWorkgroupsPerDimension; m > 0 && (x > m || y > m || z > m) {
		return Errorf("dispatch %dx%dx%d exceeds %d workgroups per dimension", x, y, z, m)
	}
	return e.inner.Dispatch(x, y, z)
}

func (e *encoder) DispatchIndirect(buf driver.Buffer, offset uint64) error {
	if err := e.dispatchable("indirect dispatch"); err != nil {
		return err
	}
	b, err := indirectBuffer(buf, offset, dispatchArgsSize)
	if err != nil {
		return err
	}
	return e.inner.DispatchIndirect(b.Buffer, offset)
}

func transferFor(loc driver.TransferLocation, usage driver.TransferUsage) (*transferBuffer, error) {
	t, err := asTransfer(loc.Buffer)
	if err != nil {
		return nil, err
	}
	if t.desc.Usage != usage {
		return nil, Errorf("transfer buffer %q has %v usage, want %v", t.desc.Label, t.desc.Usage, usage)
	}
	return t, nil
}

func checkRange(what, label string, offset, size, limit uint64) error {
	if size == 0 {
		return Errorf("%s %q: empty range", what, label)
	}
	if offset+size > limit {
		return Errorf("%s %q: range %d+%d exceeds size %d", what, label, offset, size, limit)
	}
	return nil
}

func (e *encoder) UploadToBuffer(src driver.TransferLocation, dst driver.BufferRegion) error {
	if err := e.in(copyPass, "upload"); err != nil {
		return err
	}
	s, err := transferFor(src, driver.TransferUpload)
	if err != nil {
		return err
	}
	d, err := asBuffer(dst.Buffer)
	if err != nil {
		return err
	}
	if err := needBuffer(d, gputypes.BufferUsageCopyDst, "upload destination"); err != nil {
		return err
	}
	if dst.Offset%4 != 0 || dst.Size%4 != 0 {
		return Errorf("upload to %q: offset %d and size %d must be multiples of 4", d.desc.Label, dst.Offset, dst.Size)
	}
	if err := checkRange("transfer buffer", s.desc.Label, src.Offset, dst.Size, s.desc.Size); err != nil {
		return err
	}
	if err := checkRange("buffer", d.desc.Label, dst.Offset, dst.Size, d.desc.Size); err != nil {
		return err
	}
	src.Buffer = s.TransferBuffer
	dst.Buffer = d.Buffer
	return e.inner.UploadToBuffer(src, dst)
}

func (e *encoder) UploadToTexture(src driver.TransferLocation, dst driver.TextureRegion) error {
	if err := e.in(copyPass, "upload"); err != nil {
		return err
	}
	s, err := transferFor(src, driver.TransferUpload)
	if err != nil {
		return err
	}
	t, err := asTexture(dst.Texture)
	if err != nil {
		return err
	}
	if err := needTexture(t, gputypes.TextureUsageCopyDst, "upload destination"); err != nil {
		return err
	}
	if t.desc.SampleCount > 1 {
		return Errorf("upload to multisampled texture %q", t.desc.Label)
	}
	if err := t.region(dst.MipLevel, dst.Layer, dst.Origin, dst.Size); err != nil {
		return err
	}
	if err := checkPitch(src, dst.Size); err != nil {
		return err
	}
	n, ok := driver.TransferSize(t.desc.Format, dst.Size, src.PixelsPerRow, src.RowsPerLayer)
	if !ok {
		return Errorf("texture %q: format %v has no transfer layout", t.desc.Label, t.desc.Format)
	}
	if err := checkRange("transfer buffer", s.desc.Label, src.Offset, n, s.desc.Size); err != nil {
		return err
	}
	src.Buffer = s.TransferBuffer
	dst.Texture = t.Texture
	return e.inner.UploadToTexture(src, dst)
}

func checkPitch(loc driver.TransferLocation, size gputypes.Extent3D) error {
	if loc.PixelsPerRow != 0 && loc.PixelsPerRow < size.Width {
		return Errorf("pixels per row %d smaller than width %d", loc.PixelsPerRow, size.Width)
	}
	if loc.RowsPerLayer != 0 && loc.RowsPerLayer < size.Height {
		return Errorf("rows per layer %d smaller than height %d", loc.RowsPerLayer, size.Height)
	}
	return nil
}

func (e *encoder) CopyBufferToBuffer(src driver.BufferRegion, dstBuf driver.Buffer, dstOffset uint64) error {
	if err := e.in(copyPass, "buffer copy"); err != nil {
		return err
	}
	s, err := asBuffer(src.Buffer)
	if err != nil {
		return err
	}
	d, err := asBuffer(dstBuf)
	if err != nil {
		return err
	}
	if err := needBuffer(s, gputypes.BufferUsageCopySrc, "copy source"); err != nil {
		return err
	}
	if err := needBuffer(d, gputypes.BufferUsageCopyDst, "copy destination"); err != nil {
		return err
	}
	if src.Offset%4 != 0 || dstOffset%4 != 0 || src.Size%4 != 0 {
		return Errorf("buffer copy offsets and size must be multiples of 4")
	}
	if err := checkRange("buffer", s.desc.Label, src.Offset, src.Size, s.desc.Size); err != nil {
		return err
	}
	if err := checkRange("buffer", d.desc.Label, dstOffset, src.Size, d.desc.Size); err != nil {
		return err
	}
	if s == d && src.Offset < dstOffset+src.Size && dstOffset < src.Offset+src.Size {
		return Errorf("buffer %q: overlapping copy", s.desc.Label)
	}
	src.Buffer = s.Buffer
	return e.inner.CopyBufferToBuffer(src, d.Buffer, dstOffset)
}

func (e *encoder) CopyTextureToTexture(src, dst driver.TextureLocation, size gputypes.Extent3D) error {
	if err := e.in(copyPass, "texture copy"); err != nil {
		return err
	}
	s, err := asTexture(src.Texture)
	if err != nil {
		return err
	}
	d, err := asTexture(dst.Texture)
	if err != nil {
		return err
	}
	if err := needTexture(s, gputypes.TextureUsageCopySrc, "copy source"); err != nil {
		return err
	}
	if err := needTexture(d, gputypes.TextureUsageCopyDst, "copy destination"); err != nil {
		return err
	}
	if s.desc.Format != d.desc.Format {
		return Errorf("texture copy between formats %v and %v", s.desc.Format, d.desc.Format)
	}
	if s.desc.SampleCount != d.desc.SampleCount {
		return Errorf("texture copy between sample counts %d and %d", s.desc.SampleCount, d.desc.SampleCount)
	}
	if err := s.region(src.MipLevel, src.Layer, src.Origin, size); err != nil {
		return err
	}
	if err := d.region(dst.MipLevel, dst.Layer, dst.Origin, size); err != nil {
		return err
	}
	src.Texture = s.Texture
	dst.Texture = d.Texture
	return e.inner.CopyTextureToTexture(src, dst, size)
}

func (e *encoder) DownloadFromBuffer(src driver.BufferRegion, dst driver.TransferLocation) error {
	if err := e.in(copyPass, "download"); err != nil {
		return err
	}
	s, err := asBuffer(src.Buffer)
	if err != nil {
		return err
	}
	d, err := transferFor(dst, driver.TransferDownload)
	if err != nil {
		return err
	}
	if err := needBuffer(s, gputypes.BufferUsageCopySrc, "download source"); err != nil {
		return err
	}
	if src.Offset%4 != 0 || src.Size%4 != 0 {
		return Errorf("download from %q: offset %d and size %d must be multiples of 4", s.desc.Label, src.Offset, src.Size)
	}
	if err := checkRange("buffer", s.desc.Label, src.Offset, src.Size, s.desc.Size); err != nil {
		return err
	}
	if err := checkRange("transfer buffer", d.desc.Label, dst.Offset, src.Size, d.desc.Size); err != nil {
		return err
	}
	src.Buffer = s.Buffer
	dst.Buffer = d.TransferBuffer
	return e.inner.DownloadFromBuffer(src, dst)
}

func (e *encoder) DownloadFromTexture(src driver.TextureRegion, dst driver.TransferLocation) error {
	if err := e.in(copyPass, "download"); err != nil {
		return err
	}
	t, err := asTexture(src.Texture)
	if err != nil {
		return err
	}
	d, err := transferFor(dst, driver.TransferDownload)
	if err != nil {
		return err
	}
	if err := needTexture(t, gputypes.TextureUsageCopySrc, "download source"); err != nil {
		return err
	}
	if t.desc.SampleCount > 1 {
		return Errorf("download from multisampled texture %q", t.desc.Label)
	}
	if err := t.region(src.MipLevel, src.Layer, src.Origin, src.Size); err != nil {
		return err
	}
	if err := checkPitch(dst, src.Size); err != nil {
		return err
	}
	n, ok := driver.TransferSize(t.desc.Format, src.Size, dst.PixelsPerRow, dst.RowsPerLayer)
	if !ok {
		return Errorf("texture %q: format %v has no transfer layout", t.desc.Label, t.desc.Format)
	}
	if err := checkRange("transfer buffer", d.desc.Label, dst.Offset, n, d.desc.Size); err != nil {
		return err
	}
	src.Texture = t.Texture
	dst.Buffer = d.TransferBuffer
	return e.inner.DownloadFromTexture(src, dst)
}

func (e *encoder) PushDebugGroup(name string) {
	e.groups++
	e.inner.PushDebugGroup(name)
}

func (e *encoder) PopDebugGroup() {
	if e.groups == 0 {
		e.dev.log.Warn("validate: PopDebugGroup without a matching push")
		return
	}
	e.groups--
	e.inner.PopDebugGroup()
}

func (e *encoder) InsertDebugLabel(label string) { e.inner.InsertDebugLabel(label) }
