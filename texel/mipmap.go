package texel

import (
	"image"
	"math/bits"
)

// LevelCount returns the number of levels in a full mip chain for a
// w x h image: one more than floor(log2(max(w, h))).
func LevelCount(w, h int) int {
	m := max(w, h)
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m))
}

// Mips returns src followed by successively halved levels, each a 2x2 box
// filter of the previous one. levels <= 0 or above the full chain length
// yields the full chain. src is level 0 and is not copied.
func Mips(src *image.RGBA, levels int) []*image.RGBA {
	b := src.Bounds()
	full := LevelCount(b.Dx(), b.Dy())
	if full == 0 {
		return nil
	}
	if levels <= 0 || levels > full {
		levels = full
	}
	chain := make([]*image.RGBA, levels)
	chain[0] = src
	for i := 1; i < levels; i++ {
		chain[i] = downsample(chain[i-1])
	}
	return chain
}

// downsample halves src, averaging 2x2 blocks and clamping at odd edges.
func downsample(src *image.RGBA) *image.RGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dw, dh := max(1, sw/2), max(1, sh/2)
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	at := func(x, y int) []uint8 {
		i := src.PixOffset(sb.Min.X+min(x, sw-1), sb.Min.Y+min(y, sh-1))
		return src.Pix[i : i+4 : i+4]
	}
	for y := range dh {
		for x := range dw {
			p0, p1 := at(2*x, 2*y), at(2*x+1, 2*y)
			p2, p3 := at(2*x, 2*y+1), at(2*x+1, 2*y+1)
			o := dst.PixOffset(x, y)
			for c := range 4 {
				sum := uint16(p0[c]) + uint16(p1[c]) + uint16(p2[c]) + uint16(p3[c])
				dst.Pix[o+c] = uint8(sum / 4)
			}
		}
	}
	return dst
}
