package rhi

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

type passKind int

const (
	passNone passKind = iota
	passRender
	passCompute
	passCopy
)

func (k passKind) String() string {
	switch k {
	case passNone:
		return "none"
	case passRender:
		return "render"
	case passCompute:
		return "compute"
	case passCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// present is a swapchain image to present once its command buffer is
// submitted.
type present struct {
	swapchain *Swapchain
	index     int
}

// recorder is the pooled part of a command buffer: the driver encoder and
// everything that must stay alive until the submitted work completes.
type recorder struct {
	enc      driver.Encoder
	tracked  []*refCount
	rings    []*uniformRing
	presents []present
	fence    *Fence
}

// track adds a reference on r for this recorder. Each object is referenced
// at most once per recorder.
func (rec *recorder) track(r *refCount) {
	for _, t := range rec.tracked {
		if t == r {
			return
		}
	}
	rec.tracked = append(rec.tracked, r)
	r.acquire()
}

// releaseRefs drops every reference taken by track.
func (rec *recorder) releaseRefs() {
	for _, r := range rec.tracked {
		r.release()
	}
	clear(rec.tracked)
	rec.tracked = rec.tracked[:0]
}

// CommandBuffer records passes for one submission. A command buffer is used
// from a single goroutine and becomes invalid after Submit or Cancel.
type CommandBuffer struct {
	dev *Device
	rec *recorder

	pass              passKind
	current           passHandle
	pipelineBound     bool
	submitted         bool
	closed            bool
	swapchainAcquired bool
	debugDepth        int

	uniforms [driver.StageCount][MaxUniformSlots]*uniformRing
	dirty    [driver.StageCount]uint8
}

// passHandle is implemented by every pass type so the command buffer can
// invalidate the active pass.
type passHandle interface {
	invalidate()
}

// AcquireCommandBuffer returns a command buffer ready for recording.
// Finished command buffers are recycled first.
func (d *Device) AcquireCommandBuffer() (*CommandBuffer, error) {
	const op = "AcquireCommandBuffer"
	if err := d.alive(); err != nil {
		return nil, d.fail(op, err)
	}
	d.cleanup()

	d.poolMu.Lock()
	rec, ok := d.available.Pop()
	d.poolMu.Unlock()
	if !ok {
		enc, err := d.dev.CreateEncoder()
		if err != nil {
			return nil, d.fail(op, errors.Wrap(err, "rhi: create encoder"))
		}
		rec = &recorder{enc: enc}
		d.stats.cmdBuffers.Add(1)
		d.log.Debug("rhi: command buffer pool grew", "commandBuffers", d.stats.cmdBuffers.Load())
	}
	if err := rec.enc.Begin(""); err != nil {
		d.poolMu.Lock()
		d.available.Push(rec)
		d.poolMu.Unlock()
		return nil, d.fail(op, errors.Wrap(err, "rhi: begin encoder"))
	}
	return &CommandBuffer{dev: d, rec: rec}, nil
}

// recording returns the error for operations on a buffer that no longer
// records.
func (cb *CommandBuffer) recording() error {
	if cb.submitted {
		return ErrSubmitted
	}
	if cb.closed {
		return ErrClosed
	}
	return nil
}

// beginPass checks that a new pass may start.
func (cb *CommandBuffer) beginPass() error {
	if err := cb.recording(); err != nil {
		return err
	}
	if cb.pass != passNone {
		return errors.Wrapf(ErrPassActive, "rhi: %s pass still active", cb.pass)
	}
	return nil
}

func (cb *CommandBuffer) enterPass(kind passKind, p passHandle) {
	cb.pass = kind
	cb.current = p
	cb.pipelineBound = false
}

func (cb *CommandBuffer) leavePass() {
	cb.pass = passNone
	cb.current = nil
	cb.pipelineBound = false
}

// PushDebugGroup opens a named debug group.
func (cb *CommandBuffer) PushDebugGroup(name string) error {
	if err := cb.recording(); err != nil {
		return cb.dev.fail("PushDebugGroup", err)
	}
	cb.rec.enc.PushDebugGroup(name)
	cb.debugDepth++
	return nil
}

// PopDebugGroup closes the innermost debug group.
func (cb *CommandBuffer) PopDebugGroup() error {
	if err := cb.recording(); err != nil {
		return cb.dev.fail("PopDebugGroup", err)
	}
	if cb.debugDepth == 0 {
		return cb.dev.fail("PopDebugGroup", ErrNoDebugGroup)
	}
	cb.rec.enc.PopDebugGroup()
	cb.debugDepth--
	return nil
}

// InsertDebugLabel inserts a single debug marker.
func (cb *CommandBuffer) InsertDebugLabel(label string) error {
	if err := cb.recording(); err != nil {
		return cb.dev.fail("InsertDebugLabel", err)
	}
	cb.rec.enc.InsertDebugLabel(label)
	return nil
}

// AcquireSwapchainTexture acquires the next image of sc for rendering. The
// image is presented when the command buffer is submitted, after which the
// command buffer can no longer be canceled.
func (cb *CommandBuffer) AcquireSwapchainTexture(sc *Swapchain) (*Texture, error) {
	const op = "AcquireSwapchainTexture"
	d := cb.dev
	if err := cb.recording(); err != nil {
		return nil, d.fail(op, err)
	}
	if sc == nil {
		return nil, d.fail(op, ErrNilResource)
	}
	if sc.released {
		return nil, d.fail(op, ErrReleased)
	}
	idx, native, err := sc.native.Acquire()
	if err != nil {
		return nil, d.fail(op, errors.Wrap(err, "rhi: acquire swapchain image"))
	}
	t := sc.image(idx, native)
	cb.rec.presents = append(cb.rec.presents, present{swapchain: sc, index: idx})
	cb.swapchainAcquired = true
	return t, nil
}

// Submit sends the recorded work to the GPU. The command buffer must not be
// used afterwards.
func (cb *CommandBuffer) Submit() error {
	_, err := cb.submit("Submit", false)
	return err
}

// SubmitAndAcquireFence submits like Submit and returns a fence that
// signals when the work completes. The fence must be released with
// Device.ReleaseFence.
func (cb *CommandBuffer) SubmitAndAcquireFence() (*Fence, error) {
	return cb.submit("SubmitAndAcquireFence", true)
}

func (cb *CommandBuffer) submit(op string, acquire bool) (*Fence, error) {
	d := cb.dev
	if cb.submitted {
		return nil, d.fail(op, ErrSubmitted)
	}
	if cb.pass != passNone {
		return nil, d.fail(op, errors.Wrapf(ErrPassActive, "rhi: %s pass not ended", cb.pass))
	}

	d.poolMu.Lock()
	native, err := d.acquireFenceLocked()
	d.poolMu.Unlock()
	if err != nil {
		return nil, d.fail(op, err)
	}
	putBack := func() {
		d.poolMu.Lock()
		d.fences.Push(native)
		d.poolMu.Unlock()
	}

	rec := cb.rec
	if !cb.closed {
		if err := rec.enc.End(); err != nil {
			putBack()
			return nil, d.fail(op, errors.Wrap(err, "rhi: end encoder"))
		}
		cb.closed = true
	}
	if err := d.dev.Submit(rec.enc, native); err != nil {
		putBack()
		return nil, d.fail(op, errors.Wrap(err, "rhi: submit"))
	}

	for _, p := range rec.presents {
		if err := p.swapchain.native.Present(p.index); err != nil {
			d.log.Warn("rhi: present failed", "index", p.index, "err", err)
			continue
		}
		p.swapchain.presented.Add(1)
	}

	f := newFence(native, acquire)
	rec.fence = f
	cb.submitted = true
	cb.rec = nil

	d.poolMu.Lock()
	d.submitted = append(d.submitted, rec)
	d.poolMu.Unlock()
	d.stats.submissions.Add(1)

	if acquire {
		return f, nil
	}
	return nil, nil
}

// Cancel discards the recorded work and returns the command buffer to the
// pool. It fails once a swapchain texture was acquired.
func (cb *CommandBuffer) Cancel() error {
	d := cb.dev
	if cb.submitted {
		return d.fail("Cancel", ErrSubmitted)
	}
	if cb.swapchainAcquired {
		return d.fail("Cancel", ErrSwapchainAcquired)
	}
	if cb.current != nil {
		cb.current.invalidate()
	}
	cb.leavePass()
	cb.submitted = true

	rec := cb.rec
	cb.rec = nil
	d.poolMu.Lock()
	d.retireLocked(rec)
	d.poolMu.Unlock()
	return nil
}
