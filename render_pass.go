package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/internal/validate"
)

// RenderPass records draws into a set of render targets. It is valid from
// BeginRenderPass until End.
type RenderPass struct {
	cb    *CommandBuffer
	ended bool
}

func (p *RenderPass) invalidate() { p.ended = true }

func (p *RenderPass) check() error {
	if p.ended {
		return ErrPassEnded
	}
	return p.cb.recording()
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

// BeginRenderPass starts a render pass. Targets with Cycle set are written
// to an idle generation when their current one is still in use. Undefined
// load and store operations mean load and store.
func (cb *CommandBuffer) BeginRenderPass(colors []ColorTarget, depth *DepthStencilTarget) (*RenderPass, error) {
	const op = "BeginRenderPass"
	d := cb.dev
	if err := cb.beginPass(); err != nil {
		return nil, d.fail(op, err)
	}
	if len(colors) == 0 && depth == nil {
		return nil, d.fail(op, errors.Wrap(ErrInvalidDescriptor, "rhi: render pass without targets"))
	}
	if len(colors) > MaxColorTargets {
		return nil, d.fail(op, errors.Wrapf(ErrSlotRange, "rhi: %d color targets", len(colors)))
	}
	for i, c := range colors {
		if _, err := readTexture(c.Texture); err != nil {
			return nil, d.fail(op, err)
		}
		if d.cfg.debug && c.Cycle && loadOp(c.LoadOp) == gputypes.LoadOpLoad {
			return nil, d.fail(op, validate.Errorf("rhi: color target %d cycles a texture whose contents it loads", i))
		}
	}
	if depth != nil {
		if _, err := readTexture(depth.Texture); err != nil {
			return nil, d.fail(op, err)
		}
		loads := loadOp(depth.LoadOp) == gputypes.LoadOpLoad ||
			(depth.Texture.desc.Format.HasStencil() && loadOp(depth.StencilLoadOp) == gputypes.LoadOpLoad)
		if d.cfg.debug && depth.Cycle && loads {
			return nil, d.fail(op, validate.Errorf("rhi: depth target cycles a texture whose contents it loads"))
		}
	}

	desc := driver.RenderPassDesc{Colors: make([]driver.ColorAttachment, len(colors))}
	rs := make(refs, 0, len(colors)+1)
	ws := make(writes, 0, len(colors)+1)
	for i, c := range colors {
		w, err := c.Texture.beginWrite(c.Cycle)
		if err != nil {
			ws.rollback()
			return nil, d.fail(op, err)
		}
		ws = append(ws, w)
		g := w.gen
		desc.Colors[i] = driver.ColorAttachment{
			Texture:    g.native,
			MipLevel:   c.MipLevel,
			Layer:      c.Layer,
			LoadOp:     loadOp(c.LoadOp),
			StoreOp:    storeOp(c.StoreOp),
			ClearColor: c.ClearColor,
		}
		rs = append(rs, &g.refCount)
	}
	if depth != nil {
		w, err := depth.Texture.beginWrite(depth.Cycle)
		if err != nil {
			ws.rollback()
			return nil, d.fail(op, err)
		}
		ws = append(ws, w)
		g := w.gen
		desc.DepthStencil = &driver.DepthStencilAttachment{
			Texture:        g.native,
			LoadOp:         loadOp(depth.LoadOp),
			StoreOp:        storeOp(depth.StoreOp),
			ClearDepth:     depth.ClearDepth,
			StencilLoadOp:  loadOp(depth.StencilLoadOp),
			StencilStoreOp: storeOp(depth.StencilStoreOp),
			ClearStencil:   depth.ClearStencil,
		}
		rs = append(rs, &g.refCount)
	}

	if err := cb.rec.enc.BeginRenderPass(&desc); err != nil {
		ws.rollback()
		return nil, d.fail(op, errors.Wrap(err, "rhi: begin render pass"))
	}
	ws.commit()
	cb.trackAll(rs)
	p := &RenderPass{cb: cb}
	cb.enterPass(passRender, p)
	return p, nil
}

// BindGraphicsPipeline sets the pipeline for subsequent draws.
func (p *RenderPass) BindGraphicsPipeline(pipeline *GraphicsPipeline) error {
	const op = "BindGraphicsPipeline"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	if pipeline == nil {
		return cb.dev.fail(op, ErrNilResource)
	}
	if err := checkObject(&pipeline.object); err != nil {
		return cb.dev.fail(op, err)
	}
	if err := cb.rec.enc.SetGraphicsPipeline(pipeline.native); err != nil {
		return cb.dev.fail(op, errors.Wrap(err, "rhi: bind graphics pipeline"))
	}
	cb.rec.track(&pipeline.refCount)
	cb.pipelineBound = true
	cb.markUniformsDirty(StageVertex, StageFragment)
	return nil
}

// SetViewport sets the viewport transform.
func (p *RenderPass) SetViewport(v Viewport) error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail("SetViewport", err)
	}
	p.cb.rec.enc.SetViewport(v)
	return nil
}

// SetScissor sets the scissor rectangle.
func (p *RenderPass) SetScissor(r Rect) error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail("SetScissor", err)
	}
	p.cb.rec.enc.SetScissor(r)
	return nil
}

// SetBlendConstants sets the constant blend color.
func (p *RenderPass) SetBlendConstants(c gputypes.Color) error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail("SetBlendConstants", err)
	}
	p.cb.rec.enc.SetBlendConstants(c)
	return nil
}

// SetStencilReference sets the stencil reference value.
func (p *RenderPass) SetStencilReference(ref uint32) error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail("SetStencilReference", err)
	}
	p.cb.rec.enc.SetStencilReference(ref)
	return nil
}

// BindVertexBuffers binds vertex buffers starting at slot first.
func (p *RenderPass) BindVertexBuffers(first uint32, bindings ...BufferBinding) error {
	const op = "BindVertexBuffers"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	if err := checkSlots(first, len(bindings), MaxVertexBuffers); err != nil {
		return cb.dev.fail(op, err)
	}
	natives := make([]driver.BufferBinding, len(bindings))
	rs := make(refs, 0, len(bindings))
	for i, b := range bindings {
		g, err := readBuffer(b.Buffer)
		if err != nil {
			return cb.dev.fail(op, err)
		}
		natives[i] = driver.BufferBinding{Buffer: g.native, Offset: b.Offset}
		rs = append(rs, &g.refCount)
	}
	if err := cb.rec.enc.SetVertexBuffers(first, natives); err != nil {
		return cb.dev.fail(op, errors.Wrap(err, "rhi: bind vertex buffers"))
	}
	cb.trackAll(rs)
	return nil
}

// BindIndexBuffer binds the index buffer.
func (p *RenderPass) BindIndexBuffer(b BufferBinding, format gputypes.IndexFormat) error {
	const op = "BindIndexBuffer"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	g, err := readBuffer(b.Buffer)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	if format == gputypes.IndexFormatUndefined {
		return cb.dev.fail(op, errors.Wrap(ErrInvalidDescriptor, "rhi: undefined index format"))
	}
	if err := cb.rec.enc.SetIndexBuffer(driver.BufferBinding{Buffer: g.native, Offset: b.Offset}, format); err != nil {
		return cb.dev.fail(op, errors.Wrap(err, "rhi: bind index buffer"))
	}
	cb.rec.track(&g.refCount)
	return nil
}

// BindVertexSamplers binds sampled textures for the vertex stage.
func (p *RenderPass) BindVertexSamplers(first uint32, bindings ...TextureSamplerBinding) error {
	return p.bind("BindVertexSamplers", func() error { return p.cb.bindSamplers(StageVertex, first, bindings) })
}

// BindFragmentSamplers binds sampled textures for the fragment stage.
func (p *RenderPass) BindFragmentSamplers(first uint32, bindings ...TextureSamplerBinding) error {
	return p.bind("BindFragmentSamplers", func() error { return p.cb.bindSamplers(StageFragment, first, bindings) })
}

// BindVertexStorageTextures binds read-only storage textures for the vertex
// stage.
func (p *RenderPass) BindVertexStorageTextures(first uint32, textures ...*Texture) error {
	return p.bind("BindVertexStorageTextures", func() error { return p.cb.bindStorageTextures(StageVertex, first, textures) })
}

// BindFragmentStorageTextures binds read-only storage textures for the
// fragment stage.
func (p *RenderPass) BindFragmentStorageTextures(first uint32, textures ...*Texture) error {
	return p.bind("BindFragmentStorageTextures", func() error { return p.cb.bindStorageTextures(StageFragment, first, textures) })
}

// BindVertexStorageBuffers binds read-only storage buffers for the vertex
// stage.
func (p *RenderPass) BindVertexStorageBuffers(first uint32, buffers ...*Buffer) error {
	return p.bind("BindVertexStorageBuffers", func() error { return p.cb.bindStorageBuffers(StageVertex, first, buffers) })
}

// BindFragmentStorageBuffers binds read-only storage buffers for the
// fragment stage.
func (p *RenderPass) BindFragmentStorageBuffers(first uint32, buffers ...*Buffer) error {
	return p.bind("BindFragmentStorageBuffers", func() error { return p.cb.bindStorageBuffers(StageFragment, first, buffers) })
}

func (p *RenderPass) bind(op string, fn func() error) error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail(op, err)
	}
	return p.cb.dev.fail(op, fn())
}

// prepareDraw checks draw legality and binds pending uniforms.
func (p *RenderPass) prepareDraw() error {
	if err := p.check(); err != nil {
		return err
	}
	if !p.cb.pipelineBound {
		return ErrPipelineNotBound
	}
	if err := p.cb.bindUniforms(StageVertex); err != nil {
		return err
	}
	return p.cb.bindUniforms(StageFragment)
}

// Draw draws non-indexed primitives.
func (p *RenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := p.prepareDraw(); err != nil {
		return p.cb.dev.fail("Draw", err)
	}
	return p.cb.dev.fail("Draw", p.cb.rec.enc.Draw(vertexCount, instanceCount, firstVertex, firstInstance))
}

// DrawIndexed draws indexed primitives from the bound index buffer.
// Drawing without an index buffer bound in this pass is only reported
// when the device was created with WithDebug.
func (p *RenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	if err := p.prepareDraw(); err != nil {
		return p.cb.dev.fail("DrawIndexed", err)
	}
	return p.cb.dev.fail("DrawIndexed",
		p.cb.rec.enc.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance))
}

// DrawIndirect draws with arguments read from buf at offset.
func (p *RenderPass) DrawIndirect(buf *Buffer, offset uint64, drawCount uint32) error {
	return p.drawIndirect("DrawIndirect", buf, offset, drawCount, false)
}

// DrawIndexedIndirect draws indexed primitives with arguments read from buf.
func (p *RenderPass) DrawIndexedIndirect(buf *Buffer, offset uint64, drawCount uint32) error {
	return p.drawIndirect("DrawIndexedIndirect", buf, offset, drawCount, true)
}

func (p *RenderPass) drawIndirect(op string, buf *Buffer, offset uint64, drawCount uint32, indexed bool) error {
	cb := p.cb
	if err := p.prepareDraw(); err != nil {
		return cb.dev.fail(op, err)
	}
	g, err := cb.indirect(buf)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	if indexed {
		err = cb.rec.enc.DrawIndexedIndirect(g.native, offset, drawCount)
	} else {
		err = cb.rec.enc.DrawIndirect(g.native, offset, drawCount)
	}
	if err != nil {
		return cb.dev.fail(op, err)
	}
	cb.rec.track(&g.refCount)
	return nil
}

// End finishes the pass. The pass handle cannot be used afterwards.
func (p *RenderPass) End() error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail("RenderPass.End", err)
	}
	p.cb.rec.enc.EndRenderPass()
	p.ended = true
	p.cb.leavePass()
	return nil
}
