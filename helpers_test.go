package rhi

import (
	"bytes"
	"context"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver/software"
)

// newTestDevice opens a software device whose submissions run only when the
// test steps the timeline.
func newTestDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	opts = append([]Option{WithDriver(software.Name), WithDriverParam("fences", "manual")}, opts...)
	d, err := NewDevice(opts...)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func timeline(t *testing.T, d *Device) *software.Device {
	t.Helper()
	sw, ok := d.Backend().(*software.Device)
	if !ok {
		t.Fatalf("Backend() = %T, want *software.Device", d.Backend())
	}
	return sw
}

func waitIdle(t *testing.T, d *Device) {
	t.Helper()
	if err := d.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
}

func mustBuffer(t *testing.T, d *Device, size uint64) *Buffer {
	t.Helper()
	b, err := d.CreateBuffer(&BufferDesc{
		Label: "test buffer",
		Size:  size,
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc | gputypes.BufferUsageVertex,
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return b
}

func mustTransfer(t *testing.T, d *Device, size uint64, usage TransferUsage) *TransferBuffer {
	t.Helper()
	b, err := d.CreateTransferBuffer(&TransferBufferDesc{Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateTransferBuffer() error = %v", err)
	}
	return b
}

func mustTarget(t *testing.T, d *Device, w, h uint32) *Texture {
	t.Helper()
	tex, err := d.CreateTexture(&TextureDesc{
		Label:  "target",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
		Size: gputypes.NewExtent2D(w, h),
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	return tex
}

func mustAcquire(t *testing.T, d *Device) *CommandBuffer {
	t.Helper()
	cb, err := d.AcquireCommandBuffer()
	if err != nil {
		t.Fatalf("AcquireCommandBuffer() error = %v", err)
	}
	return cb
}

// fill maps b, writes data and unmaps.
func fill(t *testing.T, b *TransferBuffer, cycle bool, data []byte) {
	t.Helper()
	m, err := b.Map(cycle)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	copy(m, data)
	if err := b.Unmap(); err != nil {
		t.Fatalf("Unmap() error = %v", err)
	}
}

// contents maps b and returns a copy of its first n bytes.
func contents(t *testing.T, b *TransferBuffer, n int) []byte {
	t.Helper()
	m, err := b.Map(false)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	out := bytes.Clone(m[:n])
	if err := b.Unmap(); err != nil {
		t.Fatalf("Unmap() error = %v", err)
	}
	return out
}

// upload records an upload of src into dst followed by a download of dst
// into readback, and submits it.
func upload(t *testing.T, d *Device, src *TransferBuffer, dst *Buffer, readback *TransferBuffer, cycle bool) {
	t.Helper()
	cb := mustAcquire(t, d)
	cp, err := cb.BeginCopyPass()
	if err != nil {
		t.Fatalf("BeginCopyPass() error = %v", err)
	}
	if err := cp.UploadToBuffer(TransferLocation{TransferBuffer: src}, BufferRegion{Buffer: dst}, cycle); err != nil {
		t.Fatalf("UploadToBuffer() error = %v", err)
	}
	if readback != nil {
		if err := cp.DownloadFromBuffer(BufferRegion{Buffer: dst}, TransferLocation{TransferBuffer: readback}); err != nil {
			t.Fatalf("DownloadFromBuffer() error = %v", err)
		}
	}
	if err := cp.End(); err != nil {
		t.Fatalf("CopyPass.End() error = %v", err)
	}
	if err := cb.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}
