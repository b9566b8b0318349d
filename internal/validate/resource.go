package validate

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

type buffer struct {
	driver.Buffer
	desc driver.BufferDesc
}

type texture struct {
	driver.Texture
	desc driver.TextureDesc
}

type transferBuffer struct {
	driver.TransferBuffer
	desc driver.TransferBufferDesc
}

type sampler struct{ driver.Sampler }

type shader struct {
	driver.Shader
	desc driver.ShaderDesc
}

type computePipeline struct {
	driver.ComputePipeline
	desc driver.ComputePipelineDesc
}

type graphicsPipeline struct {
	driver.GraphicsPipeline
	desc driver.GraphicsPipelineDesc
}

// swapchain wraps acquired images so they validate like other textures.
type swapchain struct {
	driver.Swapchain
}

func (s *swapchain) Acquire() (int, driver.Texture, error) {
	idx, tex, err := s.Swapchain.Acquire()
	if err != nil {
		return idx, nil, err
	}
	w, h := s.Size()
	return idx, &texture{Texture: tex, desc: driver.TextureDesc{
		Label:         "swapchain",
		Dimension:     gputypes.TextureDimension2D,
		Format:        s.Format(),
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
		Size:          gputypes.NewExtent2D(w, h),
		MipLevelCount: 1,
		SampleCount:   1,
	}}, nil
}

func asBuffer(b driver.Buffer) (*buffer, error) {
	w, ok := b.(*buffer)
	if !ok {
		return nil, Errorf("buffer %T was not created by this device", b)
	}
	return w, nil
}

func asTexture(t driver.Texture) (*texture, error) {
	w, ok := t.(*texture)
	if !ok {
		return nil, Errorf("texture %T was not created by this device", t)
	}
	return w, nil
}

func asTransfer(b driver.TransferBuffer) (*transferBuffer, error) {
	w, ok := b.(*transferBuffer)
	if !ok {
		return nil, Errorf("transfer buffer %T was not created by this device", b)
	}
	return w, nil
}

func needBuffer(b *buffer, usage gputypes.BufferUsage, what string) error {
	if b.desc.Usage&usage == 0 {
		return Errorf("buffer %q used as %s without %v usage", b.desc.Label, what, usage)
	}
	return nil
}

func needTexture(t *texture, usage gputypes.TextureUsage, what string) error {
	if t.desc.Usage&usage == 0 {
		return Errorf("texture %q used as %s without %v usage", t.desc.Label, what, usage)
	}
	return nil
}

// subresource checks that mip level and layer exist.
func (t *texture) subresource(level, layer uint32) error {
	if level >= t.desc.MipLevelCount {
		return Errorf("texture %q: mip level %d of %d", t.desc.Label, level, t.desc.MipLevelCount)
	}
	if t.desc.Dimension != gputypes.TextureDimension3D && layer >= t.desc.Size.DepthOrArrayLayers {
		return Errorf("texture %q: layer %d of %d", t.desc.Label, layer, t.desc.Size.DepthOrArrayLayers)
	}
	return nil
}

// region checks that a box lies within one mip level.
func (t *texture) region(level, layer uint32, origin gputypes.Origin3D, size gputypes.Extent3D) error {
	if err := t.subresource(level, layer); err != nil {
		return err
	}
	e := driver.MipExtent(t.desc.Size, t.desc.Dimension, level)
	depth := e.DepthOrArrayLayers
	if t.desc.Dimension != gputypes.TextureDimension3D {
		depth -= layer
	}
	if size.Width == 0 || size.Height == 0 ||
		uint64(origin.X)+uint64(size.Width) > uint64(e.Width) ||
		uint64(origin.Y)+uint64(size.Height) > uint64(e.Height) ||
		uint64(origin.Z)+uint64(max(size.DepthOrArrayLayers, 1)) > uint64(depth) {
		return Errorf("texture %q: region %v+%v outside mip %d extent %v", t.desc.Label, origin, size, level, e)
	}
	return nil
}
