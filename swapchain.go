package rhi

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// Swapchain is a ring of presentable images. Its textures are owned by the
// swapchain and are never cycled.
type Swapchain struct {
	dev       *Device
	native    driver.Swapchain
	images    []*Texture
	presented atomic.Uint64
	released  bool
}

// CreateSwapchain creates a swapchain. Drivers without presentation support
// return ErrUnsupported.
func (d *Device) CreateSwapchain(desc *SwapchainDesc) (*Swapchain, error) {
	const op = "CreateSwapchain"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	if desc == nil || desc.Width == 0 || desc.Height == 0 || desc.Format == gputypes.TextureFormatUndefined {
		return nil, d.fail(op, ErrInvalidDescriptor)
	}
	if !d.features.Has(driver.FeatureSwapchain) {
		return nil, d.fail(op, errors.Wrapf(ErrUnsupported, "rhi: %s driver cannot present", d.drv.Name()))
	}
	native, err := d.dev.CreateSwapchain(desc)
	if err != nil {
		return nil, d.fail(op, errors.Wrapf(err, "rhi: create swapchain %q", desc.Label))
	}
	return &Swapchain{
		dev:    d,
		native: native,
		images: make([]*Texture, native.ImageCount()),
	}, nil
}

// Size returns the image size.
func (s *Swapchain) Size() (width, height uint32) { return s.native.Size() }

// Format returns the image format.
func (s *Swapchain) Format() gputypes.TextureFormat { return s.native.Format() }

// ImageCount returns the number of images in the ring.
func (s *Swapchain) ImageCount() int { return len(s.images) }

// Presented returns the number of images presented so far.
func (s *Swapchain) Presented() uint64 { return s.presented.Load() }

// image returns the texture wrapping image idx, refreshing its native
// handle. Drivers may hand out a different handle per acquisition.
func (s *Swapchain) image(idx int, native driver.Texture) *Texture {
	t := s.images[idx]
	if t == nil {
		w, h := s.native.Size()
		t = &Texture{
			desc: TextureDesc{
				Dimension:     gputypes.TextureDimension2D,
				Format:        s.native.Format(),
				Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
				Size:          gputypes.NewExtent2D(w, h),
				MipLevelCount: 1,
				SampleCount:   1,
			},
			swapchain: s,
		}
		t.dev = s.dev
		t.kind = "swapchain texture"
		s.images[idx] = t
		t.gens = []*generation[driver.Texture]{{native: native}}
		return t
	}
	t.gens[0].native = native
	return t
}

func (s *Swapchain) idle() bool {
	for _, t := range s.images {
		if t != nil && !t.idle() {
			return false
		}
	}
	return true
}

func (s *Swapchain) destroy() { s.native.Destroy() }

// ReleaseSwapchain releases a swapchain once its images are no longer used
// by pending work.
func (d *Device) ReleaseSwapchain(s *Swapchain) error {
	if s == nil {
		return d.fail("ReleaseSwapchain", ErrNilResource)
	}
	if s.released {
		return d.fail("ReleaseSwapchain", ErrReleased)
	}
	s.released = true
	for _, t := range s.images {
		if t != nil {
			t.released = true
		}
	}
	d.deferDestroy(s)
	return nil
}
