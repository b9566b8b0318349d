package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// CopyPass records transfers between transfer buffers, buffers and
// textures. Destinations of uploads and copies may be cycled; downloads
// never cycle.
type CopyPass struct {
	cb    *CommandBuffer
	ended bool
}

func (p *CopyPass) invalidate() { p.ended = true }

func (p *CopyPass) check() error {
	if p.ended {
		return ErrPassEnded
	}
	return p.cb.recording()
}

// BeginCopyPass starts a copy pass.
func (cb *CommandBuffer) BeginCopyPass() (*CopyPass, error) {
	const op = "BeginCopyPass"
	if err := cb.beginPass(); err != nil {
		return nil, cb.dev.fail(op, err)
	}
	if err := cb.rec.enc.BeginCopyPass(); err != nil {
		return nil, cb.dev.fail(op, errors.Wrap(err, "rhi: begin copy pass"))
	}
	p := &CopyPass{cb: cb}
	cb.enterPass(passCopy, p)
	return p, nil
}

// bufferSize resolves a zero region size to the rest of the buffer.
func bufferSize(b *Buffer, offset, size uint64) uint64 {
	if size == 0 && offset < b.desc.Size {
		return b.desc.Size - offset
	}
	return size
}

// regionSize resolves a zero region size to the rest of the mip level.
func regionSize(t *Texture, level uint32, origin gputypes.Origin3D, size gputypes.Extent3D) gputypes.Extent3D {
	if size != (gputypes.Extent3D{}) {
		return size
	}
	e := driver.MipExtent(t.desc.Size, t.desc.Dimension, level)
	if t.desc.Dimension != gputypes.TextureDimension3D {
		e.DepthOrArrayLayers = 1
	}
	return gputypes.Extent3D{
		Width:              e.Width - min(origin.X, e.Width),
		Height:             e.Height - min(origin.Y, e.Height),
		DepthOrArrayLayers: max(e.DepthOrArrayLayers-min(origin.Z, e.DepthOrArrayLayers), 1),
	}
}

// UploadToBuffer copies transfer buffer data into a buffer. With cycle set
// the destination is cycled when in use.
func (p *CopyPass) UploadToBuffer(src TransferLocation, dst BufferRegion, cycle bool) error {
	const op = "UploadToBuffer"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	sg, err := readTransfer(src.TransferBuffer)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	if _, err := readBuffer(dst.Buffer); err != nil {
		return cb.dev.fail(op, err)
	}
	dw, err := dst.Buffer.beginWrite(cycle)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	dg := dw.gen
	err = cb.rec.enc.UploadToBuffer(
		driver.TransferLocation{Buffer: sg.native, Offset: src.Offset},
		driver.BufferRegion{Buffer: dg.native, Offset: dst.Offset, Size: bufferSize(dst.Buffer, dst.Offset, dst.Size)},
	)
	if err != nil {
		dw.rollback()
		return cb.dev.fail(op, errors.Wrap(err, "rhi: upload to buffer"))
	}
	dw.commit()
	cb.trackAll(refs{&sg.refCount, &dg.refCount})
	return nil
}

// UploadToTexture copies transfer buffer data into a texture region.
func (p *CopyPass) UploadToTexture(src TransferLocation, dst TextureRegion, cycle bool) error {
	const op = "UploadToTexture"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	sg, err := readTransfer(src.TransferBuffer)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	if _, err := readTexture(dst.Texture); err != nil {
		return cb.dev.fail(op, err)
	}
	dw, err := dst.Texture.beginWrite(cycle)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	dg := dw.gen
	err = cb.rec.enc.UploadToTexture(
		driver.TransferLocation{Buffer: sg.native, Offset: src.Offset, PixelsPerRow: src.PixelsPerRow, RowsPerLayer: src.RowsPerLayer},
		driver.TextureRegion{
			Texture:  dg.native,
			MipLevel: dst.MipLevel,
			Layer:    dst.Layer,
			Origin:   dst.Origin,
			Size:     regionSize(dst.Texture, dst.MipLevel, dst.Origin, dst.Size),
		},
	)
	if err != nil {
		dw.rollback()
		return cb.dev.fail(op, errors.Wrap(err, "rhi: upload to texture"))
	}
	dw.commit()
	cb.trackAll(refs{&sg.refCount, &dg.refCount})
	return nil
}

// CopyBufferToBuffer copies src into dst at dstOffset.
func (p *CopyPass) CopyBufferToBuffer(src BufferRegion, dst *Buffer, dstOffset uint64, cycle bool) error {
	const op = "CopyBufferToBuffer"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	sg, err := readBuffer(src.Buffer)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	if _, err := readBuffer(dst); err != nil {
		return cb.dev.fail(op, err)
	}
	dw, err := dst.beginWrite(cycle)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	dg := dw.gen
	region := driver.BufferRegion{Buffer: sg.native, Offset: src.Offset, Size: bufferSize(src.Buffer, src.Offset, src.Size)}
	if err := cb.rec.enc.CopyBufferToBuffer(region, dg.native, dstOffset); err != nil {
		dw.rollback()
		return cb.dev.fail(op, errors.Wrap(err, "rhi: copy buffer to buffer"))
	}
	dw.commit()
	cb.trackAll(refs{&sg.refCount, &dg.refCount})
	return nil
}

// CopyTextureToTexture copies a box of texels between textures.
func (p *CopyPass) CopyTextureToTexture(src, dst TextureLocation, size gputypes.Extent3D, cycle bool) error {
	const op = "CopyTextureToTexture"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	if !cb.dev.features.Has(driver.FeatureTextureCopies) {
		return cb.dev.fail(op, errors.Wrapf(ErrUnsupported, "rhi: %s driver has no texture copies", cb.dev.drv.Name()))
	}
	sg, err := readTexture(src.Texture)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	if _, err := readTexture(dst.Texture); err != nil {
		return cb.dev.fail(op, err)
	}
	dw, err := dst.Texture.beginWrite(cycle)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	dg := dw.gen
	size = regionSize(src.Texture, src.MipLevel, src.Origin, size)
	err = cb.rec.enc.CopyTextureToTexture(
		driver.TextureLocation{Texture: sg.native, MipLevel: src.MipLevel, Layer: src.Layer, Origin: src.Origin},
		driver.TextureLocation{Texture: dg.native, MipLevel: dst.MipLevel, Layer: dst.Layer, Origin: dst.Origin},
		size,
	)
	if err != nil {
		dw.rollback()
		return cb.dev.fail(op, errors.Wrap(err, "rhi: copy texture to texture"))
	}
	dw.commit()
	cb.trackAll(refs{&sg.refCount, &dg.refCount})
	return nil
}

// DownloadFromBuffer copies buffer data into a transfer buffer. The data is
// visible through Map once the command buffer's fence was observed with
// QueryFence, WaitForFences or WaitIdle.
func (p *CopyPass) DownloadFromBuffer(src BufferRegion, dst TransferLocation) error {
	const op = "DownloadFromBuffer"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	if !cb.dev.features.Has(driver.FeatureDownloads) {
		return cb.dev.fail(op, errors.Wrapf(ErrUnsupported, "rhi: %s driver has no downloads", cb.dev.drv.Name()))
	}
	sg, err := readBuffer(src.Buffer)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	dg, err := readTransfer(dst.TransferBuffer)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	err = cb.rec.enc.DownloadFromBuffer(
		driver.BufferRegion{Buffer: sg.native, Offset: src.Offset, Size: bufferSize(src.Buffer, src.Offset, src.Size)},
		driver.TransferLocation{Buffer: dg.native, Offset: dst.Offset},
	)
	if err != nil {
		return cb.dev.fail(op, errors.Wrap(err, "rhi: download from buffer"))
	}
	cb.trackAll(refs{&sg.refCount, &dg.refCount})
	return nil
}

// DownloadFromTexture copies a texture region into a transfer buffer.
func (p *CopyPass) DownloadFromTexture(src TextureRegion, dst TransferLocation) error {
	const op = "DownloadFromTexture"
	cb := p.cb
	if err := p.check(); err != nil {
		return cb.dev.fail(op, err)
	}
	if !cb.dev.features.Has(driver.FeatureDownloads) {
		return cb.dev.fail(op, errors.Wrapf(ErrUnsupported, "rhi: %s driver has no downloads", cb.dev.drv.Name()))
	}
	sg, err := readTexture(src.Texture)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	dg, err := readTransfer(dst.TransferBuffer)
	if err != nil {
		return cb.dev.fail(op, err)
	}
	err = cb.rec.enc.DownloadFromTexture(
		driver.TextureRegion{
			Texture:  sg.native,
			MipLevel: src.MipLevel,
			Layer:    src.Layer,
			Origin:   src.Origin,
			Size:     regionSize(src.Texture, src.MipLevel, src.Origin, src.Size),
		},
		driver.TransferLocation{Buffer: dg.native, Offset: dst.Offset, PixelsPerRow: dst.PixelsPerRow, RowsPerLayer: dst.RowsPerLayer},
	)
	if err != nil {
		return cb.dev.fail(op, errors.Wrap(err, "rhi: download from texture"))
	}
	cb.trackAll(refs{&sg.refCount, &dg.refCount})
	return nil
}

// End finishes the pass. The pass handle cannot be used afterwards.
func (p *CopyPass) End() error {
	if err := p.check(); err != nil {
		return p.cb.dev.fail("CopyPass.End", err)
	}
	p.cb.rec.enc.EndCopyPass()
	p.ended = true
	p.cb.leavePass()
	return nil
}
