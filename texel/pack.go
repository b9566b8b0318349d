package texel

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
)

// Level locates one mip level inside a Payload.
type Level struct {
	MipLevel      uint32
	Offset        uint64
	Width, Height uint32
}

// Payload is a packed set of RGBA8 mip levels.
type Payload struct {
	Data   []byte
	Levels []Level
}

// Size returns the number of bytes a transfer buffer needs for p.
func (p Payload) Size() uint64 { return uint64(len(p.Data)) }

// Pack concatenates levels, level 0 first, rows tightly packed.
func Pack(levels []*image.RGBA) Payload {
	var n int
	for _, l := range levels {
		n += 4 * l.Bounds().Dx() * l.Bounds().Dy()
	}
	p := Payload{Data: make([]byte, 0, n), Levels: make([]Level, 0, len(levels))}
	for i, l := range levels {
		b := l.Bounds()
		p.Levels = append(p.Levels, Level{
			MipLevel: uint32(i),
			Offset:   uint64(len(p.Data)),
			Width:    uint32(b.Dx()),
			Height:   uint32(b.Dy()),
		})
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := l.PixOffset(b.Min.X, y)
			p.Data = append(p.Data, l.Pix[row:row+4*b.Dx()]...)
		}
	}
	return p
}

// PackImage converts img to RGBA and packs a chain of up to levels mips.
// levels <= 0 packs the full chain.
func PackImage(img image.Image, levels int) (Payload, error) {
	if img.Bounds().Empty() {
		return Payload{}, ErrEmptyImage
	}
	return Pack(Mips(RGBA(img), levels)), nil
}

// Upload records copies of every level of p, stored in tb at base, into
// layer of tex. Only the first copy may cycle tex so that later levels land
// in the same generation.
func Upload(cp *rhi.CopyPass, tb *rhi.TransferBuffer, base uint64, tex *rhi.Texture, layer uint32, p Payload, cycle bool) error {
	for i, l := range p.Levels {
		err := cp.UploadToTexture(
			rhi.TransferLocation{TransferBuffer: tb, Offset: base + l.Offset},
			rhi.TextureRegion{
				Texture:  tex,
				MipLevel: l.MipLevel,
				Layer:    layer,
				Size:     gputypes.Extent3D{Width: l.Width, Height: l.Height, DepthOrArrayLayers: 1},
			},
			cycle && i == 0,
		)
		if err != nil {
			return errors.Wrapf(err, "texel: upload level %d", l.MipLevel)
		}
	}
	return nil
}
