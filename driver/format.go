package driver

import (
	"github.com/gogpu/gputypes"
	"golang.org/x/exp/constraints"
)

// AlignUp rounds v up to a multiple of align, which must be a power of two.
func AlignUp[T constraints.Unsigned](v, align T) T {
	return (v + align - 1) &^ (align - 1)
}

// BytesPerTexel returns the size of one texel of an uncompressed format.
// ok is false for compressed, planar, or unknown formats.
func BytesPerTexel(f gputypes.TextureFormat) (n uint32, ok bool) {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return 1, true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRG8Snorm, gputypes.TextureFormatRG8Uint,
		gputypes.TextureFormatRG8Sint, gputypes.TextureFormatDepth16Unorm:
		return 2, true
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint, gputypes.TextureFormatRG16Unorm,
		gputypes.TextureFormatRG16Snorm, gputypes.TextureFormatRG16Uint,
		gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGBA8Sint, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGB10A2Uint,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRG11B10Ufloat,
		gputypes.TextureFormatRGB9E5Ufloat, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return 4, true
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatRGBA16Snorm, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return 8, true
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return 16, true
	}
	return 0, false
}

// MipExtent returns the size of mip level of a texture of size base.
func MipExtent(base gputypes.Extent3D, dim gputypes.TextureDimension, level uint32) gputypes.Extent3D {
	e := gputypes.Extent3D{
		Width:              max(base.Width>>level, 1),
		Height:             max(base.Height>>level, 1),
		DepthOrArrayLayers: base.DepthOrArrayLayers,
	}
	if dim == gputypes.TextureDimension3D {
		e.DepthOrArrayLayers = max(base.DepthOrArrayLayers>>level, 1)
	}
	if dim == gputypes.TextureDimension1D {
		e.Height = 1
	}
	return e
}

// TransferSize returns the number of transfer buffer bytes a region of
// size ext occupies with the given row and layer pitches in texels.
func TransferSize(format gputypes.TextureFormat, ext gputypes.Extent3D, pixelsPerRow, rowsPerLayer uint32) (uint64, bool) {
	bpt, ok := BytesPerTexel(format)
	if !ok {
		return 0, false
	}
	if pixelsPerRow == 0 {
		pixelsPerRow = ext.Width
	}
	if rowsPerLayer == 0 {
		rowsPerLayer = ext.Height
	}
	rowPitch := uint64(pixelsPerRow) * uint64(bpt)
	layerPitch := rowPitch * uint64(rowsPerLayer)
	depth := uint64(max(ext.DepthOrArrayLayers, 1))
	return layerPitch*(depth-1) + rowPitch*uint64(ext.Height-1) + uint64(ext.Width)*uint64(bpt), true
}
