// Package texel prepares image data for texture uploads.
//
// Images are converted to tightly packed 8-bit RGBA, optionally expanded
// into a box-filtered mip chain, and packed into one byte slice whose
// levels can be copied into a transfer buffer and uploaded with a single
// copy pass.
package texel

import (
	"bytes"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	xdraw "golang.org/x/image/draw"
)

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("texel: empty image")

// RGBA returns img as a tightly packed *image.RGBA whose bounds start at
// the origin. An image already in that form is returned unchanged.
func RGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Resize scales img to w x h with Catmull-Rom filtering.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Decode reads a PNG or JPEG image and converts it to RGBA.
func Decode(r io.Reader) (*image.RGBA, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "texel: decode")
	}
	if img.Bounds().Empty() {
		return nil, errors.Wrapf(ErrEmptyImage, "texel: %s", format)
	}
	return RGBA(img), nil
}

// DecodeBytes is Decode over an in-memory encoding.
func DecodeBytes(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return Decode(bytes.NewReader(data))
}

// Load decodes the image file at path.
func Load(path string) (*image.RGBA, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "texel: open")
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
