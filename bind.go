package rhi

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// refs collects the objects a command will reference. They are tracked only
// after the driver accepted the command.
type refs []*refCount

func (cb *CommandBuffer) trackAll(rs refs) {
	for _, r := range rs {
		cb.rec.track(r)
	}
}

func readBuffer(b *Buffer) (*generation[driver.Buffer], error) {
	if b == nil {
		return nil, ErrNilResource
	}
	if b.released {
		return nil, ErrReleased
	}
	return b.current(), nil
}

func readTexture(t *Texture) (*generation[driver.Texture], error) {
	if t == nil {
		return nil, ErrNilResource
	}
	if t.released {
		return nil, ErrReleased
	}
	return t.current(), nil
}

func readTransfer(b *TransferBuffer) (*generation[driver.TransferBuffer], error) {
	if b == nil {
		return nil, ErrNilResource
	}
	if b.released {
		return nil, ErrReleased
	}
	return b.current(), nil
}

func checkObject[H driver.Resource](o *object[H]) error {
	if o == nil {
		return ErrNilResource
	}
	if o.released {
		return ErrReleased
	}
	return nil
}

func checkSlots(first uint32, n, limit int) error {
	if uint64(first)+uint64(n) > uint64(limit) {
		return errors.Wrapf(ErrSlotRange, "rhi: slots %d..%d exceed limit %d", first, uint64(first)+uint64(n), limit)
	}
	return nil
}

func (cb *CommandBuffer) bindSamplers(stage Stage, first uint32, bindings []TextureSamplerBinding) error {
	if err := checkSlots(first, len(bindings), MaxStorageBindings); err != nil {
		return err
	}
	natives := make([]driver.TextureSamplerBinding, len(bindings))
	rs := make(refs, 0, 2*len(bindings))
	for i, b := range bindings {
		g, err := readTexture(b.Texture)
		if err != nil {
			return err
		}
		if b.Sampler == nil {
			return ErrNilResource
		}
		if err := checkObject(&b.Sampler.object); err != nil {
			return err
		}
		natives[i] = driver.TextureSamplerBinding{Texture: g.native, Sampler: b.Sampler.native}
		rs = append(rs, &g.refCount, &b.Sampler.refCount)
	}
	if err := cb.rec.enc.SetSamplers(stage, first, natives); err != nil {
		return errors.Wrapf(err, "rhi: bind %s samplers", stage)
	}
	cb.trackAll(rs)
	return nil
}

func (cb *CommandBuffer) bindStorageTextures(stage Stage, first uint32, textures []*Texture) error {
	if err := checkSlots(first, len(textures), MaxStorageBindings); err != nil {
		return err
	}
	natives := make([]driver.Texture, len(textures))
	rs := make(refs, 0, len(textures))
	for i, t := range textures {
		g, err := readTexture(t)
		if err != nil {
			return err
		}
		natives[i] = g.native
		rs = append(rs, &g.refCount)
	}
	if err := cb.rec.enc.SetStorageTextures(stage, first, natives); err != nil {
		return errors.Wrapf(err, "rhi: bind %s storage textures", stage)
	}
	cb.trackAll(rs)
	return nil
}

func (cb *CommandBuffer) bindStorageBuffers(stage Stage, first uint32, buffers []*Buffer) error {
	if err := checkSlots(first, len(buffers), MaxStorageBindings); err != nil {
		return err
	}
	natives := make([]driver.Buffer, len(buffers))
	rs := make(refs, 0, len(buffers))
	for i, b := range buffers {
		g, err := readBuffer(b)
		if err != nil {
			return err
		}
		natives[i] = g.native
		rs = append(rs, &g.refCount)
	}
	if err := cb.rec.enc.SetStorageBuffers(stage, first, natives); err != nil {
		return errors.Wrapf(err, "rhi: bind %s storage buffers", stage)
	}
	cb.trackAll(rs)
	return nil
}

// indirect resolves an indirect argument buffer.
func (cb *CommandBuffer) indirect(b *Buffer) (*generation[driver.Buffer], error) {
	if !cb.dev.features.Has(driver.FeatureIndirect) {
		return nil, errors.Wrapf(ErrUnsupported, "rhi: %s driver has no indirect commands", cb.dev.drv.Name())
	}
	return readBuffer(b)
}
