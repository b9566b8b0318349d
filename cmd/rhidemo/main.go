// Command rhidemo drives a device through a few cycled frames and reports
// how the containers and pools behaved.
package main

import (
	"context"
	"flag"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	_ "github.com/gogpu/rhi/driver/software"
	_ "github.com/gogpu/rhi/driver/wgpu"
	"github.com/gogpu/rhi/texel"
)

// inFlight is the number of frames submitted ahead of the CPU.
const inFlight = 2

func main() {
	var (
		driverName = flag.String("driver", "", "driver name, empty picks the first available")
		backend    = flag.String("backend", "", "wgpu backend (vulkan or noop)")
		frames     = flag.Int("frames", 8, "number of frames to record")
		size       = flag.Int("size", 64, "render target width and height")
		input      = flag.String("image", "", "image uploaded by the last frame")
		output     = flag.String("output", "", "PNG file for the final readback")
		debug      = flag.Bool("debug", false, "enable validation")
		verbose    = flag.Bool("v", false, "log device events")
	)
	flag.Parse()

	opts := []rhi.Option{rhi.WithDriver(*driverName)}
	if *backend != "" {
		opts = append(opts, rhi.WithDriverParam("backend", *backend))
	}
	if *debug {
		opts = append(opts, rhi.WithDebug(), rhi.WithAssertions())
	}
	if *verbose {
		opts = append(opts, rhi.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	d, err := rhi.NewDevice(opts...)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer d.Destroy()

	var pic *image.RGBA
	if *input != "" {
		img, err := texel.Load(*input)
		if err != nil {
			log.Fatalf("Failed to load image: %v", err)
		}
		pic = texel.Resize(img, *size, *size)
	}

	start := time.Now()
	out, err := run(d, *frames, uint32(*size), pic)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	log.Printf("%s: %d frames in %v\n", d.Driver(), *frames, time.Since(start))

	s := d.Stats()
	log.Printf("containers=%d generations=%d cycles=%d reuses=%d allocations=%d submissions=%d\n",
		s.Containers, s.Generations, s.Cycles, s.Reuses, s.Allocations, s.Submissions)

	if *output != "" {
		if err := save(*output, out); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
		log.Printf("Readback saved to %s (%dx%d)\n", *output, *size, *size)
	}
}

// run clears a cycled render target once per frame, keeping up to inFlight
// frames queued, and returns the last frame read back from the GPU.
func run(d *rhi.Device, frames int, size uint32, pic *image.RGBA) (*image.RGBA, error) {
	extent := gputypes.NewExtent2D(size, size)
	target, err := d.CreateTexture(&rhi.TextureDesc{
		Label:         "target",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
		Size:          extent,
		MipLevelCount: 1,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.ReleaseTexture(target) }()

	n := uint64(4 * size * size)
	readback, err := d.CreateTransferBuffer(&rhi.TransferBufferDesc{Size: n, Usage: rhi.TransferDownload})
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.ReleaseTransferBuffer(readback) }()

	var (
		staging *rhi.TransferBuffer
		payload texel.Payload
	)
	if pic != nil {
		payload = texel.Pack([]*image.RGBA{pic})
		staging, err = d.CreateTransferBuffer(&rhi.TransferBufferDesc{Size: payload.Size(), Usage: rhi.TransferUpload})
		if err != nil {
			return nil, err
		}
		defer func() { _ = d.ReleaseTransferBuffer(staging) }()
		m, err := staging.Map(false)
		if err != nil {
			return nil, err
		}
		copy(m, payload.Data)
		if err := staging.Unmap(); err != nil {
			return nil, err
		}
	}

	ctx := context.Background()
	var pending []*rhi.Fence
	for frame := range frames {
		if len(pending) == inFlight {
			if err := d.WaitForFences(ctx, true, pending[0]); err != nil {
				return nil, err
			}
			if err := d.ReleaseFence(pending[0]); err != nil {
				return nil, err
			}
			pending = pending[1:]
		}

		cb, err := d.AcquireCommandBuffer()
		if err != nil {
			return nil, err
		}
		last := frame == frames-1
		if last && pic != nil {
			cp, err := cb.BeginCopyPass()
			if err != nil {
				return nil, err
			}
			if err := texel.Upload(cp, staging, 0, target, 0, payload, true); err != nil {
				return nil, err
			}
			if err := cp.End(); err != nil {
				return nil, err
			}
		} else {
			rp, err := cb.BeginRenderPass([]rhi.ColorTarget{{
				Texture:    target,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearColor: tint(frame, frames),
				Cycle:      true,
			}}, nil)
			if err != nil {
				return nil, err
			}
			if err := rp.End(); err != nil {
				return nil, err
			}
		}
		if last {
			cp, err := cb.BeginCopyPass()
			if err != nil {
				return nil, err
			}
			src := rhi.TextureRegion{Texture: target, Size: extent}
			if err := cp.DownloadFromTexture(src, rhi.TransferLocation{TransferBuffer: readback}); err != nil {
				return nil, err
			}
			if err := cp.End(); err != nil {
				return nil, err
			}
		}
		f, err := cb.SubmitAndAcquireFence()
		if err != nil {
			return nil, err
		}
		pending = append(pending, f)
	}

	if err := d.WaitIdle(ctx); err != nil {
		return nil, err
	}
	for _, f := range pending {
		_ = d.ReleaseFence(f)
	}

	m, err := readback.Map(false)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(size), int(size)))
	copy(img.Pix, m)
	return img, readback.Unmap()
}

// tint fades from red to blue across the frames.
func tint(frame, frames int) gputypes.Color {
	t := 0.0
	if frames > 1 {
		t = float64(frame) / float64(frames-1)
	}
	return gputypes.Color{R: 1 - t, G: 0.2, B: t, A: 1}
}

func save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
