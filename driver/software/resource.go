package software

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

type object struct {
	label     string
	destroyed bool
}

func (o *object) SetLabel(label string) { o.label = label }
func (o *object) Destroy()              { o.destroyed = true }

// memory is a byte-backed resource accounted against the device limit.
type memory struct {
	dev       *Device
	label     string
	data      []byte
	destroyed bool
}

func (m *memory) SetLabel(label string) { m.label = label }

func (m *memory) Destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.dev.unreserve(uint64(len(m.data)))
}

type buffer struct {
	memory
	usage gputypes.BufferUsage
}

func (b *buffer) Size() uint64 { return uint64(len(b.data)) }

type transferBuffer struct {
	memory
	usage driver.TransferUsage
}

func (t *transferBuffer) Bytes() []byte { return t.data }
func (t *transferBuffer) Flush() error  { return nil }

type texture struct {
	memory
	desc        driver.TextureDesc
	bpt         uint32
	levelOffset []uint64
}

func newTexture(d *Device, desc *driver.TextureDesc) (*texture, error) {
	bpt, ok := driver.BytesPerTexel(desc.Format)
	if !ok {
		return nil, errors.Wrapf(driver.ErrUnsupported, "software: texture format %s", desc.Format)
	}
	levels := max(desc.MipLevelCount, 1)
	samples := max(desc.SampleCount, 1)
	t := &texture{desc: *desc, bpt: bpt, levelOffset: make([]uint64, levels)}
	var size uint64
	for m := range levels {
		t.levelOffset[m] = size
		e := driver.MipExtent(desc.Size, desc.Dimension, m)
		size += uint64(e.Width) * uint64(e.Height) * uint64(max(e.DepthOrArrayLayers, 1)) * uint64(bpt) * uint64(samples)
	}
	t.memory = memory{dev: d, label: desc.Label, data: make([]byte, size)}
	return t, nil
}

// texelOffset returns the byte offset of texel (x, y) in slice z of mip level.
func (t *texture) texelOffset(level, x, y, z uint32) uint64 {
	e := driver.MipExtent(t.desc.Size, t.desc.Dimension, level)
	return t.levelOffset[level] + ((uint64(z)*uint64(e.Height)+uint64(y))*uint64(e.Width)+uint64(x))*uint64(t.bpt)
}

// contains reports whether the box lies inside the mip level.
func (t *texture) contains(level uint32, o gputypes.Origin3D, layer uint32, size gputypes.Extent3D) bool {
	if level >= uint32(len(t.levelOffset)) {
		return false
	}
	e := driver.MipExtent(t.desc.Size, t.desc.Dimension, level)
	depth := max(size.DepthOrArrayLayers, 1)
	return o.X+size.Width <= e.Width && o.Y+size.Height <= e.Height &&
		layer+o.Z+depth <= max(e.DepthOrArrayLayers, 1)
}

// Format returns the texture format.
func (t *texture) Format() gputypes.TextureFormat { return t.desc.Format }

type shader struct {
	object
	stage     driver.Stage
	resources driver.ShaderResources
}

type computePipeline struct {
	object
	threads [3]uint32
}

type graphicsPipeline struct {
	object
	targets int
}
