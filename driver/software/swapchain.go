package software

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// ErrNoImage is returned when every swapchain image is acquired and not
// yet presented.
var ErrNoImage = errors.New("software: no swapchain image available")

// swapchain is an offscreen image ring. Presenting an image makes it the
// front buffer, readable with Front.
type swapchain struct {
	dev      *Device
	desc     driver.SwapchainDesc
	images   []*texture
	acquired []bool
	next     int
	front    int
}

func newSwapchain(d *Device, desc *driver.SwapchainDesc) (*swapchain, error) {
	n := desc.ImageCount
	if n <= 0 {
		n = 2
	}
	sc := &swapchain{dev: d, desc: *desc, acquired: make([]bool, n), front: -1}
	sc.desc.ImageCount = n
	for i := range n {
		t, err := d.CreateTexture(&driver.TextureDesc{
			Label:         desc.Label,
			Dimension:     gputypes.TextureDimension2D,
			Format:        desc.Format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
			Size:          gputypes.NewExtent2D(desc.Width, desc.Height),
			MipLevelCount: 1,
			SampleCount:   1,
		})
		if err != nil {
			sc.Destroy()
			return nil, errors.Wrapf(err, "software: swapchain image %d", i)
		}
		sc.images = append(sc.images, t.(*texture))
	}
	return sc, nil
}

func (s *swapchain) Acquire() (int, driver.Texture, error) {
	for range len(s.images) {
		i := s.next
		s.next = (s.next + 1) % len(s.images)
		if !s.acquired[i] {
			s.acquired[i] = true
			return i, s.images[i], nil
		}
	}
	return -1, nil, ErrNoImage
}

func (s *swapchain) Present(index int) error {
	if index < 0 || index >= len(s.images) || !s.acquired[index] {
		return errors.Newf("software: present of unacquired image %d", index)
	}
	s.acquired[index] = false
	s.front = index
	s.dev.presents.Add(1)
	return nil
}

// Front returns a copy of the last presented image, or nil.
func (s *swapchain) Front() []byte {
	if s.front < 0 {
		return nil
	}
	s.dev.memMu.Lock()
	defer s.dev.memMu.Unlock()
	return append([]byte(nil), s.images[s.front].data...)
}

func (s *swapchain) Format() gputypes.TextureFormat { return s.desc.Format }

func (s *swapchain) Size() (uint32, uint32) { return s.desc.Width, s.desc.Height }

func (s *swapchain) ImageCount() int { return len(s.images) }

func (s *swapchain) Destroy() {
	for _, t := range s.images {
		t.Destroy()
	}
	s.images = nil
}
