package rhi

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver/software"
)

const testWGSL = `@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0, 0.0, 0.0, 1.0); }
@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0, 0.0, 0.0, 1.0); }`

func mustPipeline(t *testing.T, d *Device) *GraphicsPipeline {
	t.Helper()
	vs, err := d.CreateShader(&ShaderDesc{Stage: StageVertex, Format: ShaderFormatWGSL, Code: []byte(testWGSL), EntryPoint: "vs_main"})
	if err != nil {
		t.Fatalf("CreateShader(vertex) error = %v", err)
	}
	fs, err := d.CreateShader(&ShaderDesc{Stage: StageFragment, Format: ShaderFormatWGSL, Code: []byte(testWGSL), EntryPoint: "fs_main"})
	if err != nil {
		t.Fatalf("CreateShader(fragment) error = %v", err)
	}
	p, err := d.CreateGraphicsPipeline(&GraphicsPipelineDesc{
		VertexShader:   vs,
		FragmentShader: fs,
		ColorTargets:   []gputypes.ColorTargetState{{Format: gputypes.TextureFormatRGBA8Unorm}},
	})
	if err != nil {
		t.Fatalf("CreateGraphicsPipeline() error = %v", err)
	}
	return p
}

func clearTarget(tex *Texture, cycle bool) []ColorTarget {
	return []ColorTarget{{Texture: tex, LoadOp: gputypes.LoadOpClear, ClearColor: gputypes.Color{R: 1, A: 1}, Cycle: cycle}}
}

func TestPassNesting(t *testing.T) {
	d := newTestDevice(t)
	tex := mustTarget(t, d, 4, 4)
	cb := mustAcquire(t, d)

	rp, err := cb.BeginRenderPass(clearTarget(tex, false), nil)
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if _, err := cb.BeginCopyPass(); !errors.Is(err, ErrPassActive) {
		t.Errorf("BeginCopyPass() in render pass error = %v, want ErrPassActive", err)
	}
	if _, err := cb.BeginComputePass(nil, nil); !errors.Is(err, ErrPassActive) {
		t.Errorf("BeginComputePass() in render pass error = %v, want ErrPassActive", err)
	}
	if err := cb.Submit(); !errors.Is(err, ErrPassActive) {
		t.Errorf("Submit() with active pass error = %v, want ErrPassActive", err)
	}
	if err := rp.End(); err != nil {
		t.Fatalf("RenderPass.End() error = %v", err)
	}
	if err := rp.End(); !errors.Is(err, ErrPassEnded) {
		t.Errorf("second End() error = %v, want ErrPassEnded", err)
	}
	if err := rp.Draw(3, 1, 0, 0); !errors.Is(err, ErrPassEnded) {
		t.Errorf("Draw() after End error = %v, want ErrPassEnded", err)
	}

	cp, err := cb.BeginCopyPass()
	if err != nil {
		t.Fatalf("BeginCopyPass() after End error = %v", err)
	}
	if err := cp.End(); err != nil {
		t.Fatalf("CopyPass.End() error = %v", err)
	}
	if err := cb.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitIdle(t, d)
}

func TestDrawNeedsPipeline(t *testing.T) {
	d := newTestDevice(t)
	tex := mustTarget(t, d, 4, 4)
	pipeline := mustPipeline(t, d)
	cb := mustAcquire(t, d)
	rp, err := cb.BeginRenderPass(clearTarget(tex, false), nil)
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if err := rp.Draw(3, 1, 0, 0); !errors.Is(err, ErrPipelineNotBound) {
		t.Errorf("Draw() error = %v, want ErrPipelineNotBound", err)
	}
	if err := rp.BindGraphicsPipeline(pipeline); err != nil {
		t.Fatalf("BindGraphicsPipeline() error = %v", err)
	}
	if err := rp.Draw(3, 1, 0, 0); err != nil {
		t.Errorf("Draw() error = %v", err)
	}
	if err := rp.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	// Pipelines do not carry over into the next pass.
	rp, err = cb.BeginRenderPass([]ColorTarget{{Texture: tex}}, nil)
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if err := rp.Draw(3, 1, 0, 0); !errors.Is(err, ErrPipelineNotBound) {
		t.Errorf("Draw() in second pass error = %v, want ErrPipelineNotBound", err)
	}
	if err := rp.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := cb.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitIdle(t, d)
	if got := timeline(t, d).Counters().Draws; got != 1 {
		t.Errorf("Draws = %d, want 1", got)
	}
}

func TestSubmitOnce(t *testing.T) {
	d := newTestDevice(t)
	cb := mustAcquire(t, d)
	if err := cb.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	tests := []struct {
		name string
		fn   func() error
	}{
		{"Submit", cb.Submit},
		{"SubmitAndAcquireFence", func() error { _, err := cb.SubmitAndAcquireFence(); return err }},
		{"Cancel", cb.Cancel},
		{"BeginCopyPass", func() error { _, err := cb.BeginCopyPass(); return err }},
		{"BeginRenderPass", func() error { _, err := cb.BeginRenderPass(nil, nil); return err }},
		{"PushDebugGroup", func() error { return cb.PushDebugGroup("x") }},
		{"PushVertexUniforms", func() error { return cb.PushVertexUniforms(0, make([]byte, 16)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrSubmitted) {
				t.Errorf("%s() error = %v, want ErrSubmitted", tt.name, err)
			}
		})
	}
	waitIdle(t, d)
}

func TestCommandBufferRecycling(t *testing.T) {
	d := newTestDevice(t)
	for range 5 {
		cb := mustAcquire(t, d)
		if err := cb.Submit(); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		waitIdle(t, d)
	}
	s := d.Stats()
	if s.CommandBuffers != 1 || s.PooledCommandBuffers != 1 {
		t.Errorf("command buffers = %d (%d pooled), want 1 (1 pooled)", s.CommandBuffers, s.PooledCommandBuffers)
	}
	if s.Fences != 1 || s.PooledFences != 1 {
		t.Errorf("fences = %d (%d pooled), want 1 (1 pooled)", s.Fences, s.PooledFences)
	}

	// In-flight buffers are not reused.
	a := mustAcquire(t, d)
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	b := mustAcquire(t, d)
	if err := b.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if s := d.Stats(); s.CommandBuffers != 2 || s.InFlight != 2 {
		t.Errorf("command buffers = %d, in flight = %d, want 2, 2", s.CommandBuffers, s.InFlight)
	}
	waitIdle(t, d)
	if s := d.Stats(); s.InFlight != 0 || s.PooledCommandBuffers != 2 {
		t.Errorf("after WaitIdle in flight = %d, pooled = %d, want 0, 2", s.InFlight, s.PooledCommandBuffers)
	}
}

func TestReferenceTracking(t *testing.T) {
	d := newTestDevice(t)
	sw := timeline(t, d)
	tex := mustTarget(t, d, 4, 4)
	pipeline := mustPipeline(t, d)
	vb := mustBuffer(t, d, 64)

	record := func() *CommandBuffer {
		cb := mustAcquire(t, d)
		rp, err := cb.BeginRenderPass(clearTarget(tex, false), nil)
		if err != nil {
			t.Fatalf("BeginRenderPass() error = %v", err)
		}
		if err := rp.BindGraphicsPipeline(pipeline); err != nil {
			t.Fatalf("BindGraphicsPipeline() error = %v", err)
		}
		// Binding twice takes one reference.
		for range 2 {
			if err := rp.BindVertexBuffers(0, BufferBinding{Buffer: vb}); err != nil {
				t.Fatalf("BindVertexBuffers() error = %v", err)
			}
		}
		if err := rp.Draw(3, 1, 0, 0); err != nil {
			t.Fatalf("Draw() error = %v", err)
		}
		if err := rp.End(); err != nil {
			t.Fatalf("End() error = %v", err)
		}
		return cb
	}

	a, b := record(), record()
	if got := vb.current().refs.Load(); got != 2 {
		t.Errorf("vertex buffer refs = %d, want 2", got)
	}
	if got := pipeline.refs.Load(); got != 2 {
		t.Errorf("pipeline refs = %d, want 2", got)
	}

	if err := a.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := b.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got := vb.current().refs.Load(); got != 1 {
		t.Errorf("vertex buffer refs after cancel = %d, want 1", got)
	}

	sw.Flush()
	d.cleanup()
	for name, got := range map[string]int32{
		"texture":  tex.current().refs.Load(),
		"buffer":   vb.current().refs.Load(),
		"pipeline": pipeline.refs.Load(),
	} {
		if got != 0 {
			t.Errorf("%s refs after completion = %d, want 0", name, got)
		}
	}
}

func TestFailedCommandDoesNotTrack(t *testing.T) {
	d := newTestDevice(t)
	vb := mustBuffer(t, d, 64)
	released := mustBuffer(t, d, 64)
	if err := d.ReleaseBuffer(released); err != nil {
		t.Fatalf("ReleaseBuffer() error = %v", err)
	}
	tex := mustTarget(t, d, 4, 4)
	cb := mustAcquire(t, d)
	rp, err := cb.BeginRenderPass(clearTarget(tex, false), nil)
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	err = rp.BindVertexBuffers(0, BufferBinding{Buffer: vb}, BufferBinding{Buffer: released})
	if !errors.Is(err, ErrReleased) {
		t.Errorf("BindVertexBuffers() error = %v, want ErrReleased", err)
	}
	if got := vb.current().refs.Load(); got != 0 {
		t.Errorf("refs after failed bind = %d, want 0", got)
	}
	if err := rp.BindVertexBuffers(MaxVertexBuffers, BufferBinding{Buffer: vb}); !errors.Is(err, ErrSlotRange) {
		t.Errorf("BindVertexBuffers(out of range) error = %v, want ErrSlotRange", err)
	}
	if err := cb.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
}

func TestCancel(t *testing.T) {
	d := newTestDevice(t)
	tex := mustTarget(t, d, 4, 4)
	cb := mustAcquire(t, d)
	rp, err := cb.BeginRenderPass(clearTarget(tex, false), nil)
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if err := cb.Cancel(); err != nil {
		t.Fatalf("Cancel() with active pass error = %v", err)
	}
	if err := rp.End(); !errors.Is(err, ErrPassEnded) {
		t.Errorf("End() after Cancel error = %v, want ErrPassEnded", err)
	}
	if err := cb.Submit(); !errors.Is(err, ErrSubmitted) {
		t.Errorf("Submit() after Cancel error = %v, want ErrSubmitted", err)
	}
	if got := tex.current().refs.Load(); got != 0 {
		t.Errorf("texture refs after Cancel = %d, want 0", got)
	}
	if got := timeline(t, d).Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
	if s := d.Stats(); s.PooledCommandBuffers != 1 {
		t.Errorf("PooledCommandBuffers = %d, want 1", s.PooledCommandBuffers)
	}
}

func TestDebugGroups(t *testing.T) {
	d := newTestDevice(t)
	cb := mustAcquire(t, d)
	if err := cb.PopDebugGroup(); !errors.Is(err, ErrNoDebugGroup) {
		t.Errorf("PopDebugGroup() error = %v, want ErrNoDebugGroup", err)
	}
	if err := cb.PushDebugGroup("frame"); err != nil {
		t.Fatalf("PushDebugGroup() error = %v", err)
	}
	if err := cb.InsertDebugLabel("marker"); err != nil {
		t.Errorf("InsertDebugLabel() error = %v", err)
	}
	if err := cb.PopDebugGroup(); err != nil {
		t.Errorf("PopDebugGroup() error = %v", err)
	}
	if err := cb.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitIdle(t, d)
}

func TestFailedSubmitCanBeRetried(t *testing.T) {
	d := newTestDevice(t, WithDriverParam("max-fences", "1"))
	held := mustAcquire(t, d)
	f, err := held.SubmitAndAcquireFence()
	if err != nil {
		t.Fatalf("SubmitAndAcquireFence() error = %v", err)
	}

	cb := mustAcquire(t, d)
	if err := cb.Submit(); err == nil {
		t.Fatal("Submit() with every fence held succeeded")
	}
	if err := cb.PushDebugGroup("x"); err != nil {
		t.Errorf("recording after a failed fence acquire error = %v", err)
	}
	if err := cb.PopDebugGroup(); err != nil {
		t.Errorf("PopDebugGroup() error = %v", err)
	}

	if err := d.WaitForFences(context.Background(), true, f); err != nil {
		t.Fatalf("WaitForFences() error = %v", err)
	}
	if err := d.ReleaseFence(f); err != nil {
		t.Fatalf("ReleaseFence() error = %v", err)
	}
	if err := cb.Submit(); err != nil {
		t.Fatalf("retried Submit() error = %v", err)
	}
	waitIdle(t, d)
}

func TestConcurrentRecording(t *testing.T) {
	d, err := NewDevice(WithDriver(software.Name))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	defer d.Destroy()

	const (
		workers = 4
		frames  = 50
	)
	want := bytes.Repeat([]byte("shared!!"), 8)
	src := mustTransfer(t, d, 64, TransferUpload)
	shared := mustBuffer(t, d, 64)
	fill(t, src, false, want)
	upload(t, d, src, shared, nil, false)
	waitIdle(t, d)

	readbacks := make([]*TransferBuffer, workers)
	for i := range readbacks {
		readbacks[i] = mustTransfer(t, d, 64, TransferDownload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range frames {
				if err := readFrame(ctx, d, shared, readbacks[w]); err != nil {
					t.Errorf("worker %d frame %d: %v", w, frame, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	waitIdle(t, d)

	for w, rb := range readbacks {
		if got := contents(t, rb, 64); !bytes.Equal(got, want) {
			t.Errorf("worker %d readback = %q, want %q", w, got, want)
		}
	}
	for i, g := range shared.gens {
		if got := g.refs.Load(); got != 0 {
			t.Errorf("shared generation %d refs = %d, want 0", i, got)
		}
	}
	if got := shared.generationCount(); got != 1 {
		t.Errorf("shared generations = %d, want 1", got)
	}
	s := d.Stats()
	if s.InFlight != 0 {
		t.Errorf("InFlight = %d after WaitIdle, want 0", s.InFlight)
	}
	if s.CommandBuffers > workers || s.Fences > workers || s.UniformRings > workers {
		t.Errorf("command buffers/fences/rings = %d/%d/%d, want at most %d each",
			s.CommandBuffers, s.Fences, s.UniformRings, workers)
	}
	if int64(s.PooledCommandBuffers) != s.CommandBuffers || int64(s.PooledUniformRings) != s.UniformRings {
		t.Errorf("pooled command buffers/rings = %d/%d, want %d/%d",
			s.PooledCommandBuffers, s.PooledUniformRings, s.CommandBuffers, s.UniformRings)
	}
	if s.Submissions != workers*frames+1 {
		t.Errorf("Submissions = %d, want %d", s.Submissions, workers*frames+1)
	}
}

// readFrame records one command buffer that pushes uniforms and downloads
// shared into rb, then waits for it.
func readFrame(ctx context.Context, d *Device, shared *Buffer, rb *TransferBuffer) error {
	cb, err := d.AcquireCommandBuffer()
	if err != nil {
		return err
	}
	if err := cb.PushComputeUniforms(0, make([]byte, 64)); err != nil {
		return err
	}
	cp, err := cb.BeginCopyPass()
	if err != nil {
		return err
	}
	if err := cp.DownloadFromBuffer(BufferRegion{Buffer: shared}, TransferLocation{TransferBuffer: rb}); err != nil {
		return err
	}
	if err := cp.End(); err != nil {
		return err
	}
	f, err := cb.SubmitAndAcquireFence()
	if err != nil {
		return err
	}
	if err := d.WaitForFences(ctx, true, f); err != nil {
		return err
	}
	return d.ReleaseFence(f)
}
