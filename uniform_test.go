package rhi

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

func TestUniformRingRotation(t *testing.T) {
	tests := []struct {
		name      string
		ringSize  uint64
		pushes    int
		dataSize  int
		wantRings int64
	}{
		{"single push", 1024, 1, 16, 1},
		{"fills one ring", 1024, 3, 16, 1},
		{"rotates", 1024, 4, 16, 2},
		{"three rings", 1024, 7, 16, 3},
		{"large blocks", 1024, 2, 300, 2},
		{"default size", 0, 127, 64, 1},
		{"default size rotates", 0, 128, 64, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDevice(t, WithUniformRingSize(tt.ringSize))
			cb := mustAcquire(t, d)
			data := make([]byte, tt.dataSize)
			for i := range tt.pushes {
				if err := cb.PushVertexUniforms(0, data); err != nil {
					t.Fatalf("PushVertexUniforms() #%d error = %v", i, err)
				}
			}
			if got := d.Stats().UniformRings; got != tt.wantRings {
				t.Errorf("UniformRings = %d, want %d", got, tt.wantRings)
			}
			if err := cb.Submit(); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			waitIdle(t, d)
			if got := d.Stats().PooledUniformRings; int64(got) != tt.wantRings {
				t.Errorf("PooledUniformRings = %d, want %d", got, tt.wantRings)
			}
		})
	}
}

func TestUniformRingsArePerSlot(t *testing.T) {
	d := newTestDevice(t)
	cb := mustAcquire(t, d)
	data := make([]byte, 32)
	for _, push := range []func(uint32, []byte) error{cb.PushVertexUniforms, cb.PushFragmentUniforms, cb.PushComputeUniforms} {
		for slot := range uint32(2) {
			if err := push(slot, data); err != nil {
				t.Fatalf("push slot %d error = %v", slot, err)
			}
		}
	}
	if got := d.Stats().UniformRings; got != 6 {
		t.Errorf("UniformRings = %d, want 6", got)
	}
	if cb.dirty[StageVertex] != 0b11 || cb.dirty[StageCompute] != 0b11 {
		t.Errorf("dirty = %v, want both slots dirty", cb.dirty)
	}
	if err := cb.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got := d.Stats().PooledUniformRings; got != 6 {
		t.Errorf("PooledUniformRings after Cancel = %d, want 6", got)
	}

	// A new command buffer draws from the pool.
	cb = mustAcquire(t, d)
	if err := cb.PushFragmentUniforms(3, data); err != nil {
		t.Fatalf("PushFragmentUniforms() error = %v", err)
	}
	if s := d.Stats(); s.UniformRings != 6 || s.PooledUniformRings != 5 {
		t.Errorf("rings = %d (%d pooled), want 6 (5 pooled)", s.UniformRings, s.PooledUniformRings)
	}
	if err := cb.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
}

func TestUniformOffsets(t *testing.T) {
	d := newTestDevice(t)
	cb := mustAcquire(t, d)
	for i := range 3 {
		if err := cb.PushComputeUniforms(1, make([]byte, 100)); err != nil {
			t.Fatalf("PushComputeUniforms() error = %v", err)
		}
		r := cb.uniforms[StageCompute][1]
		if want := uint64(i) * 256; r.drawOffset != want {
			t.Errorf("push %d drawOffset = %d, want %d", i, r.drawOffset, want)
		}
		if r.blockSize != 256 {
			t.Errorf("push %d blockSize = %d, want 256", i, r.blockSize)
		}
	}
	if err := cb.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
}

func TestPushUniformsErrors(t *testing.T) {
	d := newTestDevice(t, WithUniformRingSize(512))
	cb := mustAcquire(t, d)
	tests := []struct {
		name string
		slot uint32
		data []byte
		want error
	}{
		{"slot out of range", MaxUniformSlots, make([]byte, 16), ErrSlotRange},
		{"empty", 0, nil, ErrInvalidDescriptor},
		{"larger than ring", 0, make([]byte, 513), ErrInvalidDescriptor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := cb.PushVertexUniforms(tt.slot, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("PushVertexUniforms() error = %v, want %v", err, tt.want)
			}
		})
	}
	if err := cb.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
}

func TestUniformsRebindAfterPipelineChange(t *testing.T) {
	d := newTestDevice(t)
	tex := mustTarget(t, d, 4, 4)
	pipeline := mustPipeline(t, d)
	cb := mustAcquire(t, d)
	if err := cb.PushFragmentUniforms(0, make([]byte, 16)); err != nil {
		t.Fatalf("PushFragmentUniforms() error = %v", err)
	}
	rp, err := cb.BeginRenderPass(clearTarget(tex, false), nil)
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if err := rp.BindGraphicsPipeline(pipeline); err != nil {
		t.Fatalf("BindGraphicsPipeline() error = %v", err)
	}
	if err := rp.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if cb.dirty[StageFragment] != 0 {
		t.Errorf("dirty after draw = %b, want 0", cb.dirty[StageFragment])
	}
	if err := rp.BindGraphicsPipeline(pipeline); err != nil {
		t.Fatalf("BindGraphicsPipeline() error = %v", err)
	}
	if cb.dirty[StageFragment] != 1 {
		t.Errorf("dirty after pipeline bind = %b, want 1", cb.dirty[StageFragment])
	}
	if err := rp.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := cb.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitIdle(t, d)
}

// failingWrites rejects WriteBuffer while fail is set.
type failingWrites struct {
	driver.Device
	fail bool
}

func (f *failingWrites) WriteBuffer(dst driver.Buffer, offset uint64, data []byte) error {
	if f.fail {
		return driver.ErrDeviceLost
	}
	return f.Device.WriteBuffer(dst, offset, data)
}

func TestFailedUniformWriteKeepsSlot(t *testing.T) {
	d := newTestDevice(t, WithUniformRingSize(512))
	fw := &failingWrites{Device: d.dev}
	d.dev = fw
	cb := mustAcquire(t, d)
	defer func() { _ = cb.Cancel() }()

	if err := cb.PushFragmentUniforms(0, make([]byte, 16)); err != nil {
		t.Fatalf("PushFragmentUniforms() error = %v", err)
	}
	first := cb.uniforms[StageFragment][0]

	// The second block does not fit and needs a fresh ring.
	fw.fail = true
	if err := cb.PushFragmentUniforms(0, make([]byte, 16)); !errors.Is(err, driver.ErrDeviceLost) {
		t.Fatalf("PushFragmentUniforms() error = %v, want ErrDeviceLost", err)
	}
	if r := cb.uniforms[StageFragment][0]; r != first || r.drawOffset != 0 || r.blockSize != 256 {
		t.Errorf("slot ring = %p offset %d size %d, want the first ring at 0/256", r, r.drawOffset, r.blockSize)
	}
	if got := len(cb.rec.rings); got != 1 {
		t.Errorf("recorder rings = %d, want 1", got)
	}
	if got := d.Stats().PooledUniformRings; got != 1 {
		t.Errorf("PooledUniformRings = %d, want the unused ring back in the pool", got)
	}

	fw.fail = false
	if err := cb.PushFragmentUniforms(0, make([]byte, 16)); err != nil {
		t.Fatalf("PushFragmentUniforms() error = %v", err)
	}
	s := d.Stats()
	if s.UniformRings != 2 || s.PooledUniformRings != 0 {
		t.Errorf("UniformRings/Pooled = %d/%d, want 2/0", s.UniformRings, s.PooledUniformRings)
	}
}
