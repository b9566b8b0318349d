package rhi

import (
	"sync/atomic"

	"github.com/gogpu/rhi/driver"
)

// Fence signals when the work of one submitted command buffer completes.
// Fences returned by SubmitAndAcquireFence must be released with
// Device.ReleaseFence.
type Fence struct {
	native driver.Fence

	// refs counts the submitted command buffer until it is retired and the
	// caller until ReleaseFence.
	refs     atomic.Int32
	released atomic.Bool
}

func newFence(native driver.Fence, acquired bool) *Fence {
	f := &Fence{native: native}
	f.refs.Store(1)
	if acquired {
		f.refs.Add(1)
	} else {
		f.released.Store(true)
	}
	return f
}

// Signaled reports whether the guarded work has completed without running
// device cleanup. Use Device.QueryFence to also recycle finished command
// buffers.
func (f *Fence) Signaled() bool {
	if f.released.Load() {
		return false
	}
	return f.native.Signaled()
}
