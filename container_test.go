package rhi

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

func TestRefCount(t *testing.T) {
	var r refCount
	if r.inUse() {
		t.Fatal("new refCount in use")
	}
	r.acquire()
	r.acquire()
	r.release()
	if !r.inUse() {
		t.Error("inUse() = false with one reference left")
	}
	r.release()
	if r.inUse() {
		t.Error("inUse() = true after releasing every reference")
	}
	defer func() {
		if recover() == nil {
			t.Error("release() below zero did not panic")
		}
	}()
	r.release()
}

func TestPrepareForWrite(t *testing.T) {
	d := newTestDevice(t)
	b := mustBuffer(t, d, 64)

	tests := []struct {
		name      string
		busy      []bool // reference state per generation before the write
		cycle     bool
		wantIndex int
		wantGens  int
	}{
		{"idle without cycle", []bool{false}, false, 0, 1},
		{"idle with cycle", []bool{false}, true, 0, 1},
		{"busy without cycle", []bool{true}, false, 0, 1},
		{"busy with cycle allocates", []bool{true}, true, 1, 2},
		{"busy with cycle reuses idle", []bool{false, true}, true, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c container[driver.Buffer]
			err := c.init(d, "buffer", "", true, func() (driver.Buffer, error) {
				return d.dev.CreateBuffer(&driver.BufferDesc{Size: 64, Usage: b.desc.Usage})
			})
			if err != nil {
				t.Fatalf("init() error = %v", err)
			}
			defer c.destroy()
			for len(c.gens) < len(tt.busy) {
				native, _ := c.create()
				c.adopt(native)
			}
			c.active = len(tt.busy) - 1
			for i, busy := range tt.busy {
				if busy {
					c.gens[i].acquire()
				}
			}

			g, err := c.prepareForWrite(tt.cycle)
			if err != nil {
				t.Fatalf("prepareForWrite() error = %v", err)
			}
			if g.index != tt.wantIndex {
				t.Errorf("prepareForWrite() generation = %d, want %d", g.index, tt.wantIndex)
			}
			if c.current() != g {
				t.Error("prepareForWrite() did not make the returned generation active")
			}
			if got := c.generationCount(); got != tt.wantGens {
				t.Errorf("generationCount() = %d, want %d", got, tt.wantGens)
			}
			for i, busy := range tt.busy {
				if busy {
					c.gens[i].release()
				}
			}
		})
	}
}

func TestPrepareForWriteAllocationFailure(t *testing.T) {
	d := newTestDevice(t)
	var c container[driver.Buffer]
	calls := 0
	err := c.init(d, "buffer", "", true, func() (driver.Buffer, error) {
		calls++
		if calls > 1 {
			return nil, driver.ErrOutOfMemory
		}
		return d.dev.CreateBuffer(&driver.BufferDesc{Size: 16, Usage: 1})
	})
	if err != nil {
		t.Fatalf("init() error = %v", err)
	}
	c.current().acquire()

	if _, err := c.prepareForWrite(true); !errors.Is(err, driver.ErrOutOfMemory) {
		t.Fatalf("prepareForWrite() error = %v, want ErrOutOfMemory", err)
	}
	if got := c.generationCount(); got != 1 {
		t.Errorf("generationCount() = %d after failed cycle, want 1", got)
	}
	if c.active != 0 {
		t.Errorf("active = %d after failed cycle, want 0", c.active)
	}
	c.current().release()
}

func TestCannotCycle(t *testing.T) {
	d := newTestDevice(t)
	var c container[driver.Buffer]
	err := c.init(d, "buffer", "", false, func() (driver.Buffer, error) {
		return d.dev.CreateBuffer(&driver.BufferDesc{Size: 16, Usage: 1})
	})
	if err != nil {
		t.Fatalf("init() error = %v", err)
	}
	c.current().acquire()
	g, err := c.prepareForWrite(true)
	if err != nil || g.index != 0 {
		t.Errorf("prepareForWrite() = %d, %v, want 0, nil", g.index, err)
	}
	c.current().release()
}

func TestCyclingPreservesPendingReads(t *testing.T) {
	d := newTestDevice(t)
	sw := timeline(t, d)
	src := mustTransfer(t, d, 16, TransferUpload)
	dst := mustBuffer(t, d, 16)
	first := mustTransfer(t, d, 16, TransferDownload)
	second := mustTransfer(t, d, 16, TransferDownload)

	fill(t, src, false, bytes.Repeat([]byte("A"), 16))
	upload(t, d, src, dst, first, false)
	if sw.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", sw.Pending())
	}

	// The first upload has not executed; cycling must leave its source intact.
	fill(t, src, true, bytes.Repeat([]byte("B"), 16))
	upload(t, d, src, dst, second, true)
	if got := src.generationCount(); got != 2 {
		t.Errorf("transfer buffer generations = %d, want 2", got)
	}
	if got := dst.generationCount(); got != 2 {
		t.Errorf("buffer generations = %d, want 2", got)
	}

	waitIdle(t, d)
	if got := string(contents(t, first, 16)); got != "AAAAAAAAAAAAAAAA" {
		t.Errorf("first readback = %q, want A's", got)
	}
	if got := string(contents(t, second, 16)); got != "BBBBBBBBBBBBBBBB" {
		t.Errorf("second readback = %q, want B's", got)
	}
}

func TestOverwriteWithoutCycleIsVisible(t *testing.T) {
	d := newTestDevice(t)
	src := mustTransfer(t, d, 16, TransferUpload)
	dst := mustBuffer(t, d, 16)
	readback := mustTransfer(t, d, 16, TransferDownload)

	fill(t, src, false, bytes.Repeat([]byte("A"), 16))
	upload(t, d, src, dst, readback, false)
	// Writing the same generation before execution races the pending upload.
	fill(t, src, false, bytes.Repeat([]byte("B"), 16))
	waitIdle(t, d)

	if got := string(contents(t, readback, 16)); got != "BBBBBBBBBBBBBBBB" {
		t.Errorf("readback = %q, want the overwritten B's", got)
	}
	if got := src.generationCount(); got != 1 {
		t.Errorf("generations = %d, want 1", got)
	}
}

func TestCycleIdleDoesNotAllocate(t *testing.T) {
	d := newTestDevice(t)
	src := mustTransfer(t, d, 16, TransferUpload)
	dst := mustBuffer(t, d, 16)

	for range 10 {
		upload(t, d, src, dst, nil, true)
		waitIdle(t, d)
	}
	if got := dst.generationCount(); got != 1 {
		t.Errorf("generations = %d after cycling idle writes, want 1", got)
	}
	if s := d.Stats(); s.Cycles != 0 || s.Allocations != 0 {
		t.Errorf("Stats() = %v, want no cycles", s)
	}
}

func TestCycleReusesRetiredGeneration(t *testing.T) {
	d := newTestDevice(t)
	sw := timeline(t, d)
	src := mustTransfer(t, d, 16, TransferUpload)
	dst := mustBuffer(t, d, 16)

	upload(t, d, src, dst, nil, true) // gen 0 in flight
	upload(t, d, src, dst, nil, true) // gen 1 allocated
	sw.Step()
	d.cleanup()                       // gen 0 retired
	upload(t, d, src, dst, nil, true) // gen 1 busy, gen 0 idle

	if got := dst.generationCount(); got != 2 {
		t.Errorf("generations = %d, want 2", got)
	}
	if dst.active != 0 {
		t.Errorf("active generation = %d, want 0", dst.active)
	}
	s := d.Stats()
	if s.Cycles != 2 || s.Allocations != 1 || s.Reuses != 1 {
		t.Errorf("Stats() cycles/allocations/reuses = %d/%d/%d, want 2/1/1", s.Cycles, s.Allocations, s.Reuses)
	}
	waitIdle(t, d)
}

// assertUncycled checks that a rejected write left c on its only generation.
func assertUncycled[H driver.Resource](t *testing.T, c *container[H]) {
	t.Helper()
	if got := c.generationCount(); got != 1 {
		t.Errorf("generationCount() = %d after rejected write, want 1", got)
	}
	if c.active != 0 {
		t.Errorf("active = %d after rejected write, want 0", c.active)
	}
}

func TestBeginWriteRollback(t *testing.T) {
	d := newTestDevice(t)
	b := mustBuffer(t, d, 64)
	b.current().acquire()
	defer b.current().release()
	before := d.Stats().Generations

	w, err := b.beginWrite(true)
	if err != nil {
		t.Fatalf("beginWrite() error = %v", err)
	}
	if w.gen.index != 1 || b.current() != w.gen {
		t.Fatalf("beginWrite() targets generation %d, want active 1", w.gen.index)
	}
	w.rollback()
	assertUncycled(t, &b.container)
	s := d.Stats()
	if s.Generations != before || s.Cycles != 0 || s.Allocations != 0 {
		t.Errorf("Stats() generations/cycles/allocations = %d/%d/%d, want %d/0/0",
			s.Generations, s.Cycles, s.Allocations, before)
	}

	w, err = b.beginWrite(true)
	if err != nil {
		t.Fatalf("beginWrite() error = %v", err)
	}
	w.commit()
	if s := d.Stats(); s.Cycles != 1 || s.Allocations != 1 {
		t.Errorf("Stats() cycles/allocations = %d/%d after commit, want 1/1", s.Cycles, s.Allocations)
	}
}

func TestRejectedWriteDoesNotCycle(t *testing.T) {
	d := newTestDevice(t, WithDebug())
	src := mustTransfer(t, d, 64, TransferUpload)
	dst := mustBuffer(t, d, 64)
	small := mustTarget(t, d, 4, 4)
	large := mustTarget(t, d, 8, 8)
	storage, err := d.CreateTexture(&TextureDesc{
		Label:  "storage",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageStorageBinding,
		Size:   gputypes.NewExtent2D(4, 4),
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	for _, c := range []*refCount{&dst.current().refCount, &small.current().refCount, &storage.current().refCount} {
		c.acquire()
		defer c.release()
	}

	cb := mustAcquire(t, d)
	defer func() { _ = cb.Cancel() }()

	cp, err := cb.BeginCopyPass()
	if err != nil {
		t.Fatalf("BeginCopyPass() error = %v", err)
	}
	err = cp.UploadToBuffer(TransferLocation{TransferBuffer: src}, BufferRegion{Buffer: dst, Offset: 1024, Size: 16}, true)
	if err == nil {
		t.Fatal("UploadToBuffer() out of range succeeded")
	}
	assertUncycled(t, &dst.container)
	if err := cp.End(); err != nil {
		t.Fatalf("CopyPass.End() error = %v", err)
	}

	// Target 0 cycles, then the pass is rejected for mismatched extents.
	_, err = cb.BeginRenderPass([]ColorTarget{
		{Texture: small, LoadOp: gputypes.LoadOpClear, Cycle: true},
		{Texture: large, LoadOp: gputypes.LoadOpClear},
	}, nil)
	if err == nil {
		t.Fatal("BeginRenderPass() with mismatched targets succeeded")
	}
	assertUncycled(t, &small.container)

	// The storage texture cycles, then the buffer lacks storage usage.
	_, err = cb.BeginComputePass(
		[]StorageTextureWrite{{Texture: storage, Cycle: true}},
		[]StorageBufferWrite{{Buffer: dst, Cycle: true}},
	)
	if err == nil {
		t.Fatal("BeginComputePass() with a non-storage buffer succeeded")
	}
	assertUncycled(t, &storage.container)
	assertUncycled(t, &dst.container)

	if s := d.Stats(); s.Cycles != 0 || s.Allocations != 0 || s.Generations != 5 {
		t.Errorf("Stats() cycles/allocations/generations = %d/%d/%d, want 0/0/5",
			s.Cycles, s.Allocations, s.Generations)
	}
}
