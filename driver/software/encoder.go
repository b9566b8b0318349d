package software

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

var errOutOfRange = errors.New("software: copy range out of bounds")

// encoder records commands as closures run on the timeline.
type encoder struct {
	dev       *Device
	label     string
	recording bool
	cmds      []func()
	groups    []string

	// downloads staged during execution, published by Complete.
	staged []stagedDownload
}

type stagedDownload struct {
	dst    *transferBuffer
	offset uint64
	data   []byte
}

func (e *encoder) record(cmd func()) { e.cmds = append(e.cmds, cmd) }

func (e *encoder) Begin(label string) error {
	if e.recording {
		return errors.New("software: encoder already recording")
	}
	e.label = label
	e.recording = true
	return nil
}

func (e *encoder) End() error {
	if !e.recording {
		return errors.New("software: encoder not recording")
	}
	e.recording = false
	return nil
}

func (e *encoder) Reset() {
	e.recording = false
	e.cmds = nil
	e.groups = e.groups[:0]
	e.staged = nil
}

func (e *encoder) Complete() {
	for _, s := range e.staged {
		copy(s.dst.data[s.offset:], s.data)
	}
	e.staged = nil
}

func (e *encoder) Destroy() { e.Reset() }

func (e *encoder) BeginRenderPass(desc *driver.RenderPassDesc) error {
	for _, c := range desc.Colors {
		if c.LoadOp != gputypes.LoadOpClear {
			continue
		}
		t := c.Texture.(*texture)
		texel := encodeColor(t.desc.Format, c.ClearColor)
		level, layer := c.MipLevel, c.Layer
		e.record(func() { t.fill(level, layer, texel) })
	}
	if ds := desc.DepthStencil; ds != nil && ds.LoadOp == gputypes.LoadOpClear {
		t := ds.Texture.(*texture)
		texel := encodeDepth(t.desc.Format, ds.ClearDepth, ds.ClearStencil)
		e.record(func() { t.fill(0, 0, texel) })
	}
	return nil
}

func (e *encoder) EndRenderPass() {}

func (e *encoder) BeginComputePass(*driver.ComputePassDesc) error { return nil }
func (e *encoder) EndComputePass()                                {}
func (e *encoder) BeginCopyPass() error                           { return nil }
func (e *encoder) EndCopyPass()                                   {}

func (e *encoder) SetGraphicsPipeline(driver.GraphicsPipeline) error { return nil }
func (e *encoder) SetViewport(driver.Viewport)                       {}
func (e *encoder) SetScissor(driver.Rect)                            {}
func (e *encoder) SetBlendConstants(gputypes.Color)                  {}
func (e *encoder) SetStencilReference(uint32)                        {}

func (e *encoder) SetVertexBuffers(uint32, []driver.BufferBinding) error { return nil }

func (e *encoder) SetIndexBuffer(driver.BufferBinding, gputypes.IndexFormat) error { return nil }

func (e *encoder) SetSamplers(driver.Stage, uint32, []driver.TextureSamplerBinding) error {
	return nil
}

func (e *encoder) SetStorageTextures(driver.Stage, uint32, []driver.Texture) error { return nil }
func (e *encoder) SetStorageBuffers(driver.Stage, uint32, []driver.Buffer) error   { return nil }

func (e *encoder) SetUniformBuffer(_ driver.Stage, _ uint32, buf driver.Buffer, offset, size uint64) error {
	if offset+size > buf.Size() {
		return errOutOfRange
	}
	return nil
}

func (e *encoder) draw() error {
	e.record(func() { e.dev.draws.Add(1) })
	return nil
}

func (e *encoder) Draw(uint32, uint32, uint32, uint32) error { return e.draw() }

func (e *encoder) DrawIndexed(uint32, uint32, uint32, int32, uint32) error { return e.draw() }

func (e *encoder) DrawIndirect(_ driver.Buffer, _ uint64, count uint32) error {
	e.record(func() { e.dev.draws.Add(uint64(count)) })
	return nil
}

func (e *encoder) DrawIndexedIndirect(buf driver.Buffer, offset uint64, count uint32) error {
	return e.DrawIndirect(buf, offset, count)
}

func (e *encoder) SetComputePipeline(driver.ComputePipeline) error { return nil }

func (e *encoder) Dispatch(uint32, uint32, uint32) error {
	e.record(func() { e.dev.dispatches.Add(1) })
	return nil
}

func (e *encoder) DispatchIndirect(driver.Buffer, uint64) error {
	return e.Dispatch(0, 0, 0)
}

func (e *encoder) UploadToBuffer(src driver.TransferLocation, dst driver.BufferRegion) error {
	s := src.Buffer.(*transferBuffer)
	d := dst.Buffer.(*buffer)
	if src.Offset+dst.Size > uint64(len(s.data)) || dst.Offset+dst.Size > uint64(len(d.data)) {
		return errOutOfRange
	}
	// Source bytes are read at execution, like a GPU would. Rewriting a
	// transfer buffer before its upload executes is visible.
	e.record(func() {
		copy(d.data[dst.Offset:dst.Offset+dst.Size], s.data[src.Offset:src.Offset+dst.Size])
	})
	return nil
}

func (e *encoder) UploadToTexture(src driver.TransferLocation, dst driver.TextureRegion) error {
	s := src.Buffer.(*transferBuffer)
	t := dst.Texture.(*texture)
	if !t.contains(dst.MipLevel, dst.Origin, dst.Layer, dst.Size) {
		return errOutOfRange
	}
	n, ok := driver.TransferSize(t.desc.Format, dst.Size, src.PixelsPerRow, src.RowsPerLayer)
	if !ok || src.Offset+n > uint64(len(s.data)) {
		return errOutOfRange
	}
	e.record(func() { t.copyRegion(dst, src, s.data, true) })
	return nil
}

func (e *encoder) CopyBufferToBuffer(src driver.BufferRegion, dstBuf driver.Buffer, dstOffset uint64) error {
	s := src.Buffer.(*buffer)
	d := dstBuf.(*buffer)
	if src.Offset+src.Size > uint64(len(s.data)) || dstOffset+src.Size > uint64(len(d.data)) {
		return errOutOfRange
	}
	e.record(func() { copy(d.data[dstOffset:dstOffset+src.Size], s.data[src.Offset:src.Offset+src.Size]) })
	return nil
}

func (e *encoder) CopyTextureToTexture(src, dst driver.TextureLocation, size gputypes.Extent3D) error {
	s := src.Texture.(*texture)
	d := dst.Texture.(*texture)
	if s.bpt != d.bpt {
		return errors.Newf("software: texel size mismatch %d != %d", s.bpt, d.bpt)
	}
	if !s.contains(src.MipLevel, src.Origin, src.Layer, size) || !d.contains(dst.MipLevel, dst.Origin, dst.Layer, size) {
		return errOutOfRange
	}
	e.record(func() {
		row := uint64(size.Width) * uint64(s.bpt)
		for z := range max(size.DepthOrArrayLayers, 1) {
			for y := range size.Height {
				so := s.texelOffset(src.MipLevel, src.Origin.X, src.Origin.Y+y, src.Layer+src.Origin.Z+z)
				do := d.texelOffset(dst.MipLevel, dst.Origin.X, dst.Origin.Y+y, dst.Layer+dst.Origin.Z+z)
				copy(d.data[do:do+row], s.data[so:so+row])
			}
		}
	})
	return nil
}

func (e *encoder) DownloadFromBuffer(src driver.BufferRegion, dst driver.TransferLocation) error {
	s := src.Buffer.(*buffer)
	d := dst.Buffer.(*transferBuffer)
	if src.Offset+src.Size > uint64(len(s.data)) || dst.Offset+src.Size > uint64(len(d.data)) {
		return errOutOfRange
	}
	e.record(func() {
		data := append([]byte(nil), s.data[src.Offset:src.Offset+src.Size]...)
		e.staged = append(e.staged, stagedDownload{dst: d, offset: dst.Offset, data: data})
	})
	return nil
}

func (e *encoder) DownloadFromTexture(src driver.TextureRegion, dst driver.TransferLocation) error {
	t := src.Texture.(*texture)
	d := dst.Buffer.(*transferBuffer)
	if !t.contains(src.MipLevel, src.Origin, src.Layer, src.Size) {
		return errOutOfRange
	}
	n, ok := driver.TransferSize(t.desc.Format, src.Size, dst.PixelsPerRow, dst.RowsPerLayer)
	if !ok || dst.Offset+n > uint64(len(d.data)) {
		return errOutOfRange
	}
	loc := dst
	loc.Offset = 0
	e.record(func() {
		data := make([]byte, n)
		t.copyRegion(src, loc, data, false)
		e.staged = append(e.staged, stagedDownload{dst: d, offset: dst.Offset, data: data})
	})
	return nil
}

func (e *encoder) PushDebugGroup(name string) { e.groups = append(e.groups, name) }

func (e *encoder) PopDebugGroup() {
	if n := len(e.groups); n > 0 {
		e.groups = e.groups[:n-1]
	}
}

func (e *encoder) InsertDebugLabel(label string) {
	e.dev.log.Debug("software: debug label", "encoder", e.label, "label", label)
}

// copyRegion moves a box between the texture and linear data laid out as
// loc describes. upload selects the direction.
func (t *texture) copyRegion(r driver.TextureRegion, loc driver.TransferLocation, data []byte, upload bool) {
	ppr := loc.PixelsPerRow
	if ppr == 0 {
		ppr = r.Size.Width
	}
	rpl := loc.RowsPerLayer
	if rpl == 0 {
		rpl = r.Size.Height
	}
	rowPitch := uint64(ppr) * uint64(t.bpt)
	layerPitch := rowPitch * uint64(rpl)
	row := uint64(r.Size.Width) * uint64(t.bpt)
	for z := range max(r.Size.DepthOrArrayLayers, 1) {
		for y := range r.Size.Height {
			to := t.texelOffset(r.MipLevel, r.Origin.X, r.Origin.Y+y, r.Layer+r.Origin.Z+z)
			lo := loc.Offset + uint64(z)*layerPitch + uint64(y)*rowPitch
			if upload {
				copy(t.data[to:to+row], data[lo:lo+row])
			} else {
				copy(data[lo:lo+row], t.data[to:to+row])
			}
		}
	}
}

// fill writes texel into every texel of one subresource.
func (t *texture) fill(level, layer uint32, texel []byte) {
	if len(texel) == 0 {
		return
	}
	e := driver.MipExtent(t.desc.Size, t.desc.Dimension, level)
	start := t.texelOffset(level, 0, 0, layer)
	end := start + uint64(e.Width)*uint64(e.Height)*uint64(t.bpt)
	if t.desc.Dimension == gputypes.TextureDimension3D {
		end = start + uint64(e.Width)*uint64(e.Height)*uint64(max(e.DepthOrArrayLayers, 1))*uint64(t.bpt)
	}
	for o := start; o < end; o += uint64(len(texel)) {
		copy(t.data[o:], texel)
	}
}

func unorm8(v float64) byte {
	return byte(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// encodeColor converts a clear color to the texel encoding of format.
// Formats without a known encoding yield nil and are left untouched.
func encodeColor(format gputypes.TextureFormat, c gputypes.Color) []byte {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return []byte{unorm8(c.R), unorm8(c.G), unorm8(c.B), unorm8(c.A)}
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return []byte{unorm8(c.B), unorm8(c.G), unorm8(c.R), unorm8(c.A)}
	case gputypes.TextureFormatR8Unorm:
		return []byte{unorm8(c.R)}
	case gputypes.TextureFormatRG8Unorm:
		return []byte{unorm8(c.R), unorm8(c.G)}
	case gputypes.TextureFormatR32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(c.R)))
	case gputypes.TextureFormatRGBA32Float:
		b := make([]byte, 0, 16)
		for _, v := range []float64{c.R, c.G, c.B, c.A} {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v)))
		}
		return b
	}
	return nil
}

func encodeDepth(format gputypes.TextureFormat, depth float32, stencil uint32) []byte {
	switch format {
	case gputypes.TextureFormatDepth32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(depth))
	case gputypes.TextureFormatDepth16Unorm:
		return binary.LittleEndian.AppendUint16(nil, uint16(math.Round(float64(depth)*0xffff)))
	case gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth24Plus:
		d := uint32(math.Round(float64(depth) * 0xffffff))
		return binary.LittleEndian.AppendUint32(nil, d|stencil<<24)
	case gputypes.TextureFormatStencil8:
		return []byte{byte(stencil)}
	}
	return nil
}
