package main

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/driver/software"
)

func TestRun(t *testing.T) {
	d, err := rhi.NewDevice(rhi.WithDriver(software.Name))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	defer d.Destroy()

	img, err := run(d, 4, 8, nil)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := img.RGBAAt(3, 3); got.B != 255 || got.R != 0 {
		t.Errorf("last frame texel = %v, want blue", got)
	}
	if s := d.Stats(); s.Submissions != 4 {
		t.Errorf("Stats().Submissions = %d, want 4", s.Submissions)
	}
}

func TestRunUploadsImage(t *testing.T) {
	d, err := rhi.NewDevice(rhi.WithDriver(software.Name))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	defer d.Destroy()

	want := color.RGBA{G: 200, A: 255}
	pic := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(pic.Pix); i += 4 {
		copy(pic.Pix[i:], []uint8{want.R, want.G, want.B, want.A})
	}
	img, err := run(d, 2, 4, pic)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := img.RGBAAt(2, 1); got != want {
		t.Errorf("readback texel = %v, want %v", got, want)
	}
}

func TestTint(t *testing.T) {
	if c := tint(0, 1); c.R != 1 || c.B != 0 {
		t.Errorf("tint(0, 1) = %+v", c)
	}
	if c := tint(2, 3); c.R != 0 || c.B != 1 {
		t.Errorf("tint(2, 3) = %+v", c)
	}
}
