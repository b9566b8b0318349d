package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// uniformRing is a uniform buffer sub-allocated linearly by one command
// buffer. drawOffset and blockSize describe the block bound by the next
// draw or dispatch.
type uniformRing struct {
	buf         driver.Buffer
	capacity    uint64
	writeOffset uint64
	drawOffset  uint64
	blockSize   uint64
}

func (r *uniformRing) reset() {
	r.writeOffset = 0
	r.drawOffset = 0
	r.blockSize = 0
}

// acquireRing returns a pooled ring or allocates a new one.
func (d *Device) acquireRing() (*uniformRing, error) {
	d.poolMu.Lock()
	r, ok := d.rings.Pop()
	d.poolMu.Unlock()
	if ok {
		return r, nil
	}
	buf, err := d.dev.CreateBuffer(&driver.BufferDesc{
		Label: "rhi uniform ring",
		Size:  d.ringSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, errors.Wrap(err, "rhi: create uniform ring")
	}
	d.stats.rings.Add(1)
	d.log.Debug("rhi: uniform ring pool grew", "rings", d.stats.rings.Load(), "size", d.ringSize)
	return &uniformRing{buf: buf, capacity: d.ringSize}, nil
}

// releaseRing returns a ring that no command buffer used to the pool.
func (d *Device) releaseRing(r *uniformRing) {
	r.reset()
	d.poolMu.Lock()
	d.rings.Push(r)
	d.poolMu.Unlock()
}

func (d *Device) uniformAlign() uint64 {
	if a := uint64(d.limits.MinUniformBufferOffsetAlignment); a > 0 {
		return a
	}
	return 256
}

// pushUniforms writes data into the ring of (stage, slot) and marks the
// slot for binding at the next draw or dispatch.
func (cb *CommandBuffer) pushUniforms(op string, stage Stage, slot uint32, data []byte) error {
	d := cb.dev
	if err := cb.recording(); err != nil {
		return d.fail(op, err)
	}
	if slot >= MaxUniformSlots {
		return d.fail(op, errors.Wrapf(ErrSlotRange, "rhi: uniform slot %d", slot))
	}
	if len(data) == 0 {
		return d.fail(op, errors.Wrap(ErrInvalidDescriptor, "rhi: empty uniform data"))
	}
	blockSize := driver.AlignUp(uint64(len(data)), d.uniformAlign())
	if blockSize > d.ringSize {
		return d.fail(op, errors.Wrapf(ErrInvalidDescriptor,
			"rhi: uniform block of %d bytes exceeds ring size %d", len(data), d.ringSize))
	}

	ring := cb.uniforms[stage][slot]
	fresh := ring == nil || ring.writeOffset+blockSize >= ring.capacity
	if fresh {
		next, err := d.acquireRing()
		if err != nil {
			return d.fail(op, err)
		}
		ring = next
	}

	if err := d.dev.WriteBuffer(ring.buf, ring.writeOffset, data); err != nil {
		if fresh {
			d.releaseRing(ring)
		}
		return d.fail(op, errors.Wrap(err, "rhi: write uniforms"))
	}
	if fresh {
		cb.rec.rings = append(cb.rec.rings, ring)
		cb.uniforms[stage][slot] = ring
	}
	ring.drawOffset = ring.writeOffset
	ring.blockSize = blockSize
	ring.writeOffset += blockSize
	cb.dirty[stage] |= 1 << slot
	return nil
}

// PushVertexUniforms sets the data of a vertex-stage uniform slot for
// subsequent draws.
func (cb *CommandBuffer) PushVertexUniforms(slot uint32, data []byte) error {
	return cb.pushUniforms("PushVertexUniforms", StageVertex, slot, data)
}

// PushFragmentUniforms sets the data of a fragment-stage uniform slot for
// subsequent draws.
func (cb *CommandBuffer) PushFragmentUniforms(slot uint32, data []byte) error {
	return cb.pushUniforms("PushFragmentUniforms", StageFragment, slot, data)
}

// PushComputeUniforms sets the data of a compute uniform slot for
// subsequent dispatches.
func (cb *CommandBuffer) PushComputeUniforms(slot uint32, data []byte) error {
	return cb.pushUniforms("PushComputeUniforms", StageCompute, slot, data)
}

// markUniformsDirty schedules every populated slot of the stages for
// rebinding, as required after a pipeline change.
func (cb *CommandBuffer) markUniformsDirty(stages ...Stage) {
	for _, s := range stages {
		for slot, r := range cb.uniforms[s] {
			if r != nil {
				cb.dirty[s] |= 1 << slot
			}
		}
	}
}

// bindUniforms binds the dirty slots of stage at their latest draw offsets.
func (cb *CommandBuffer) bindUniforms(stage Stage) error {
	for slot := range uint32(MaxUniformSlots) {
		if cb.dirty[stage]&(1<<slot) == 0 {
			continue
		}
		r := cb.uniforms[stage][slot]
		if err := cb.rec.enc.SetUniformBuffer(stage, slot, r.buf, r.drawOffset, r.blockSize); err != nil {
			return errors.Wrapf(err, "rhi: bind %s uniform slot %d", stage, slot)
		}
		cb.dirty[stage] &^= 1 << slot
	}
	return nil
}
