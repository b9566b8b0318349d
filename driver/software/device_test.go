package software

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

func open(t *testing.T, params map[string]string) *Device {
	t.Helper()
	dev, err := Driver{}.Open(driver.Options{Params: params})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	d := dev.(*Device)
	t.Cleanup(d.Destroy)
	return d
}

func mustBuffer(t *testing.T, d *Device, size uint64) driver.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(&driver.BufferDesc{Size: size, Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return b
}

func mustTransfer(t *testing.T, d *Device, size uint64, usage driver.TransferUsage) driver.TransferBuffer {
	t.Helper()
	tb, err := d.CreateTransferBuffer(&driver.TransferBufferDesc{Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateTransferBuffer() error = %v", err)
	}
	return tb
}

// submit records fn into a fresh encoder and submits it.
func submit(t *testing.T, d *Device, fn func(driver.Encoder)) (driver.Encoder, driver.Fence) {
	t.Helper()
	enc, _ := d.CreateEncoder()
	if err := enc.Begin("test"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	fn(enc)
	if err := enc.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	f, err := d.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}
	if err := d.Submit(enc, f); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return enc, f
}

func TestOpenParams(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]string
		wantErr bool
	}{
		{"default", nil, false},
		{"manual", map[string]string{"fences": "manual"}, false},
		{"immediate", map[string]string{"fences": "immediate"}, false},
		{"bad mode", map[string]string{"fences": "later"}, true},
		{"bad memory", map[string]string{"memory": "lots"}, true},
		{"bad fences", map[string]string{"max-fences": "-x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := Driver{}.Open(driver.Options{Params: tt.params})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if dev != nil {
				dev.Destroy()
			}
		})
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	d := open(t, map[string]string{"fences": "manual"})
	buf := mustBuffer(t, d, 16)
	up := mustTransfer(t, d, 16, driver.TransferUpload)
	down := mustTransfer(t, d, 16, driver.TransferDownload)

	copy(up.Bytes(), []byte("0123456789abcdef"))
	enc, f := submit(t, d, func(e driver.Encoder) {
		_ = e.BeginCopyPass()
		if err := e.UploadToBuffer(driver.TransferLocation{Buffer: up}, driver.BufferRegion{Buffer: buf, Size: 16}); err != nil {
			t.Fatalf("UploadToBuffer() error = %v", err)
		}
		if err := e.DownloadFromBuffer(driver.BufferRegion{Buffer: buf, Offset: 4, Size: 8}, driver.TransferLocation{Buffer: down, Offset: 2}); err != nil {
			t.Fatalf("DownloadFromBuffer() error = %v", err)
		}
		e.EndCopyPass()
	})

	if f.Signaled() {
		t.Fatal("fence signaled before execution in manual mode")
	}
	if d.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", d.Pending())
	}
	if err := d.Wait(context.Background(), []driver.Fence{f}, true); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !f.Signaled() {
		t.Fatal("fence not signaled after Wait")
	}
	if bytes.Equal(down.Bytes()[2:10], []byte("456789ab")) {
		t.Fatal("download visible before Complete")
	}
	enc.Complete()
	if got := down.Bytes()[2:10]; !bytes.Equal(got, []byte("456789ab")) {
		t.Errorf("downloaded %q, want %q", got, "456789ab")
	}
}

func TestUploadReadsAtExecution(t *testing.T) {
	d := open(t, map[string]string{"fences": "manual"})
	buf := mustBuffer(t, d, 4)
	up := mustTransfer(t, d, 4, driver.TransferUpload)
	down := mustTransfer(t, d, 4, driver.TransferDownload)

	copy(up.Bytes(), "AAAA")
	_, _ = submit(t, d, func(e driver.Encoder) {
		_ = e.UploadToBuffer(driver.TransferLocation{Buffer: up}, driver.BufferRegion{Buffer: buf, Size: 4})
	})
	// Overwriting before execution is a hazard the caller avoids by cycling.
	copy(up.Bytes(), "BBBB")
	enc, f := submit(t, d, func(e driver.Encoder) {
		_ = e.DownloadFromBuffer(driver.BufferRegion{Buffer: buf, Size: 4}, driver.TransferLocation{Buffer: down})
	})
	if err := d.Wait(context.Background(), []driver.Fence{f}, true); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	enc.Complete()
	if got := string(down.Bytes()); got != "BBBB" {
		t.Errorf("buffer = %q, want %q", got, "BBBB")
	}
}

func TestRenderPassClear(t *testing.T) {
	d := open(t, map[string]string{"fences": "immediate"})
	tex, err := d.CreateTexture(&driver.TextureDesc{
		Dimension: gputypes.TextureDimension2D,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		Size:      gputypes.NewExtent2D(2, 2),
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	down := mustTransfer(t, d, 16, driver.TransferDownload)

	enc, f := submit(t, d, func(e driver.Encoder) {
		_ = e.BeginRenderPass(&driver.RenderPassDesc{Colors: []driver.ColorAttachment{{
			Texture:    tex,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearColor: gputypes.Color{R: 1, G: 0, B: 0, A: 1},
		}}})
		_ = e.Draw(3, 1, 0, 0)
		e.EndRenderPass()
		_ = e.DownloadFromTexture(driver.TextureRegion{Texture: tex, Size: gputypes.Extent3D{Width: 2, Height: 2, DepthOrArrayLayers: 1}},
			driver.TransferLocation{Buffer: down})
	})
	if !f.Signaled() {
		t.Fatal("immediate submission not signaled")
	}
	enc.Complete()
	want := bytes.Repeat([]byte{255, 0, 0, 255}, 4)
	if !bytes.Equal(down.Bytes(), want) {
		t.Errorf("texels = %v, want %v", down.Bytes(), want)
	}
	if c := d.Counters(); c.Draws != 1 || c.Submissions != 1 {
		t.Errorf("Counters() = %+v, want 1 draw, 1 submission", c)
	}
}

func TestTextureCopies(t *testing.T) {
	d := open(t, map[string]string{"fences": "immediate"})
	desc := &driver.TextureDesc{
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatR8Unorm,
		Size:          gputypes.NewExtent2D(4, 4),
		MipLevelCount: 2,
	}
	src, _ := d.CreateTexture(desc)
	dst, _ := d.CreateTexture(desc)
	up := mustTransfer(t, d, 16, driver.TransferUpload)
	down := mustTransfer(t, d, 4, driver.TransferDownload)
	for i := range up.Bytes() {
		up.Bytes()[i] = byte(i)
	}

	enc, _ := submit(t, d, func(e driver.Encoder) {
		full := gputypes.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1}
		if err := e.UploadToTexture(driver.TransferLocation{Buffer: up}, driver.TextureRegion{Texture: src, Size: full}); err != nil {
			t.Fatalf("UploadToTexture() error = %v", err)
		}
		// Copy the 2x2 block at (1,1) into mip 1 of dst.
		box := gputypes.Extent3D{Width: 2, Height: 2, DepthOrArrayLayers: 1}
		if err := e.CopyTextureToTexture(
			driver.TextureLocation{Texture: src, Origin: gputypes.Origin3D{X: 1, Y: 1}},
			driver.TextureLocation{Texture: dst, MipLevel: 1}, box); err != nil {
			t.Fatalf("CopyTextureToTexture() error = %v", err)
		}
		if err := e.DownloadFromTexture(driver.TextureRegion{Texture: dst, MipLevel: 1, Size: box}, driver.TransferLocation{Buffer: down}); err != nil {
			t.Fatalf("DownloadFromTexture() error = %v", err)
		}
	})
	enc.Complete()
	want := []byte{5, 6, 9, 10}
	if !bytes.Equal(down.Bytes(), want) {
		t.Errorf("copied texels = %v, want %v", down.Bytes(), want)
	}
}

func TestCopyOutOfRange(t *testing.T) {
	d := open(t, nil)
	buf := mustBuffer(t, d, 8)
	up := mustTransfer(t, d, 4, driver.TransferUpload)
	enc, _ := d.CreateEncoder()
	_ = enc.Begin("oob")
	err := enc.UploadToBuffer(driver.TransferLocation{Buffer: up}, driver.BufferRegion{Buffer: buf, Size: 8})
	if !errors.Is(err, errOutOfRange) {
		t.Errorf("UploadToBuffer() error = %v, want out of range", err)
	}
}

func TestMemoryLimit(t *testing.T) {
	d := open(t, map[string]string{"memory": "100"})
	b := mustBuffer(t, d, 64)
	if _, err := d.CreateBuffer(&driver.BufferDesc{Size: 64}); !errors.Is(err, driver.ErrOutOfMemory) {
		t.Fatalf("CreateBuffer() over limit error = %v, want ErrOutOfMemory", err)
	}
	b.Destroy()
	b.Destroy()
	if got := d.Counters().LiveBytes; got != 0 {
		t.Errorf("LiveBytes = %d after destroy, want 0", got)
	}
	mustBuffer(t, d, 64)
}

func TestFenceLimit(t *testing.T) {
	d := open(t, map[string]string{"max-fences": "1"})
	f, err := d.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}
	if _, err := d.CreateFence(); err == nil {
		t.Fatal("CreateFence() over limit succeeded")
	}
	f.Destroy()
	if _, err := d.CreateFence(); err != nil {
		t.Errorf("CreateFence() after destroy error = %v", err)
	}
}

func TestAsyncWait(t *testing.T) {
	d := open(t, nil)
	var fences []driver.Fence
	for range 8 {
		_, f := submit(t, d, func(e driver.Encoder) { _ = e.Dispatch(1, 1, 1) })
		fences = append(fences, f)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx, fences[:1], false); err != nil {
		t.Fatalf("Wait(any) error = %v", err)
	}
	if err := d.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	for i, f := range fences {
		if !f.Signaled() {
			t.Errorf("fence %d not signaled after WaitIdle", i)
		}
	}
	if got := d.Counters().Dispatches; got != 8 {
		t.Errorf("Dispatches = %d, want 8", got)
	}
}

func TestManualWaitWithoutWork(t *testing.T) {
	d := open(t, map[string]string{"fences": "manual"})
	f, _ := d.CreateFence()
	if err := d.Wait(context.Background(), []driver.Fence{f}, true); !errors.Is(err, ErrNoPendingWork) {
		t.Errorf("Wait() error = %v, want ErrNoPendingWork", err)
	}
}

func TestWaitCanceled(t *testing.T) {
	d := open(t, nil)
	f, _ := d.CreateFence()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Wait(ctx, []driver.Fence{f}, true); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestSwapchain(t *testing.T) {
	d := open(t, nil)
	sc, err := d.CreateSwapchain(&driver.SwapchainDesc{Width: 2, Height: 1, Format: gputypes.TextureFormatBGRA8Unorm, ImageCount: 2})
	if err != nil {
		t.Fatalf("CreateSwapchain() error = %v", err)
	}
	i0, _, err := sc.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	i1, _, _ := sc.Acquire()
	if i0 == i1 {
		t.Errorf("Acquire() returned index %d twice", i0)
	}
	if _, _, err := sc.Acquire(); !errors.Is(err, ErrNoImage) {
		t.Errorf("third Acquire() error = %v, want ErrNoImage", err)
	}
	if err := sc.Present(i0); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if err := sc.Present(i0); err == nil {
		t.Error("second Present() of same image succeeded")
	}
	if front := sc.(*swapchain).Front(); len(front) != 8 {
		t.Errorf("Front() len = %d, want 8", len(front))
	}
	if w, h := sc.Size(); w != 2 || h != 1 {
		t.Errorf("Size() = %d,%d", w, h)
	}
}

func TestEncodeColor(t *testing.T) {
	c := gputypes.Color{R: 1, G: 0.5, B: 0, A: 1}
	tests := []struct {
		format gputypes.TextureFormat
		want   []byte
	}{
		{gputypes.TextureFormatRGBA8Unorm, []byte{255, 128, 0, 255}},
		{gputypes.TextureFormatBGRA8Unorm, []byte{0, 128, 255, 255}},
		{gputypes.TextureFormatR8Unorm, []byte{255}},
		{gputypes.TextureFormatRGBA16Float, nil},
	}
	for _, tt := range tests {
		if got := encodeColor(tt.format, c); !bytes.Equal(got, tt.want) {
			t.Errorf("encodeColor(%s) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestShaderFormatsParam(t *testing.T) {
	d := open(t, map[string]string{"formats": "spirv"})
	if got := d.ShaderFormats(); got != driver.ShaderFormatSPIRV {
		t.Fatalf("ShaderFormats() = %s, want spirv", got)
	}
	_, err := d.CreateShader(&driver.ShaderDesc{Format: driver.ShaderFormatWGSL, Code: []byte("@vertex fn main() {}")})
	if !errors.Is(err, driver.ErrUnsupported) {
		t.Errorf("CreateShader(wgsl) error = %v, want ErrUnsupported", err)
	}
	if _, err := d.CreateShader(&driver.ShaderDesc{Format: driver.ShaderFormatSPIRV, Code: []byte{3, 2, 35, 7}}); err != nil {
		t.Errorf("CreateShader(spirv) error = %v", err)
	}
}
