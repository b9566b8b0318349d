package rhi

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// ComputePass records dispatches. Storage resources written by the pass are
// declared when it begins; bindings made inside the pass are read-only.
type ComputePass struct {
	cb    *CommandBuffer
	ended bool
}

func (p *ComputePass) invalidate() { p.ended = true }

func (p *ComputePass) check() error {
	if p.ended {
		return ErrPassEnded
	}
	return p.cb.recording()
}

// BeginComputePass starts a compute pass writing the given storage textures
// and buffers. Writes with Cycle set go to an idle generation when the
// current one is still in use.
func (cb *CommandBuffer) BeginComputePass(textures []StorageTextureWrite, buffers []StorageBufferWrite) (*ComputePass, error) {
	const op = "BeginComputePass"
	d := cb.dev
	if err := cb.beginPass(); err != nil {
		return nil, d.fail(op, err)
	}
	if err := checkSlots(0, len(textures), MaxStorageBindings); err != nil {
		return nil, d.fail(op, err)
	}
	if err := checkSlots(0, len(buffers), MaxStorageBindings); err != nil {
		return nil, d.fail(op, err)
	}
	for _, t := range textures {
		if _, err := readTexture(t.Texture); err != nil {
			return nil, d.fail(op, err)
		}
	}
	for _, b := range buffers {
		if _, err := readBuffer(b.Buffer); err != nil {
			return nil, d.fail(op, err)
		}
	}

	desc := driver.ComputePassDesc{
		StorageTextures: make([]driver.StorageTextureWrite, len(textures)),
		StorageBuffers:  make([]driver.Buffer, len(buffers)),
	}
	rs := make(refs, 0, len(textures)+len(buffers))
	ws := make(writes, 0, len(textures)+len(buffers))
	for i, t := range textures {
		w, err := t.Texture.beginWrite(t.Cycle)
		if err != nil {
			ws.rollback()
			return nil, d.fail(op, err)
		}
		ws = append(ws, w)
		g := w.gen
		desc.StorageTextures[i] = driver.StorageTextureWrite{Texture: g.native, MipLevel: t.MipLevel, Layer: t.Layer}
		rs = append(rs, &g.refCount)
	}
	for i, b := range buffers {
		w, err := b.Buffer.beginWrite(b.Cycle)
		if err != nil {
			ws.rollback()
			return nil, d.fail(op, err)
		}
		ws = append(ws, w)
		g := w.gen
		desc.StorageBuffers[i] = g.native
		rs = append(rs, &g.refCount)
	}

	if err := cb.rec.enc.BeginComputePass(&desc); err != nil {
		ws.rollback()
		return nil, d.fail(op, errors.Wrap(err, "rhi: begin compute pass"))
	}
	ws.commit()
	cb.trackAll(rs)
	p := &ComputePass{cb: cb}
	cb.enterPass(passCompute, p)
	return p, nil
}

// BindPipeline sets the compute pipeline for subsequent dispatches.
func (p *ComputePass) BindPipeline(pipeline *ComputePipeline) error {
	const op = "BindComputePipeline"
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
	if err := cb.rec.enc.SetComputePipeline(pipeline.native); err != nil {
		return cb.dev.fail(op, errors.Wrap(err, "rhi: bind compute pipeline"))
	}
	cb.rec.track(&pipeline.refCount)
	cb.pipelineBound = true
	cb.markUniformsDirty(StageCompute)
	return nil
}

func (p *ComputePass) bind(op string, fn func() error) error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail(op, err)
	}
	return p.cb.dev.fail(op, fn())
}

// BindSamplers binds sampled textures.
func (p *ComputePass) BindSamplers(first uint32, bindings ...TextureSamplerBinding) error {
	return p.bind("BindComputeSamplers", func() error { return p.cb.bindSamplers(StageCompute, first, bindings) })
}

// BindStorageTextures binds read-only storage textures.
func (p *ComputePass) BindStorageTextures(first uint32, textures ...*Texture) error {
	return p.bind("BindComputeStorageTextures", func() error { return p.cb.bindStorageTextures(StageCompute, first, textures) })
}

// BindStorageBuffers binds read-only storage buffers.
func (p *ComputePass) BindStorageBuffers(first uint32, buffers ...*Buffer) error {
	return p.bind("BindComputeStorageBuffers", func() error { return p.cb.bindStorageBuffers(StageCompute, first, buffers) })
}

func (p *ComputePass) prepareDispatch() error {
	if err := p.check(); err != nil {
		return err
	}
	if !p.cb.pipelineBound {
		return ErrPipelineNotBound
	}
	return p.cb.bindUniforms(StageCompute)
}

// Dispatch runs x*y*z workgroups.
func (p *ComputePass) Dispatch(x, y, z uint32) error {
	if err := p.prepareDispatch(); err != nil {
		return p.cb.dev.fail("Dispatch", err)
	}
	return p.cb.dev.fail("Dispatch", p.cb.rec.enc.Dispatch(x, y, z))
}

// DispatchIndirect runs a dispatch with workgroup counts read from buf.
func (p *ComputePass) DispatchIndirect(buf *Buffer, offset uint64) error {
	const op = "DispatchIndirect"
	cb := p.cb
	if err := p.prepareDispatch(); err != nil {
		return cb.dev.fail(op, err)
	}
	g, err := cb.indirect(buf)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	if err := cb.rec.enc.DispatchIndirect(g.native, offset); err != nil {
		return cb.dev.fail(op, err)
	}
	cb.rec.track(&g.refCount)
	return nil
}

// End finishes the pass. The pass handle cannot be used afterwards.
func (p *ComputePass) End() error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail("ComputePass.End", err)
	}
	p.cb.rec.enc.EndComputePass()
	p.ended = true
	p.cb.leavePass()
	return nil
}
