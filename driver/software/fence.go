package software

import (
	"sync"
	"sync/atomic"
)

type fence struct {
	dev       *Device
	mu        sync.Mutex
	signaled  atomic.Bool
	destroyed bool
}

func newFence(d *Device) *fence {
	return &fence{dev: d}
}

func (f *fence) signal() {
	f.signaled.Store(true)
}

// Signaled implements driver.Fence.
func (f *fence) Signaled() bool { return f.signaled.Load() }

// Reset implements driver.Fence.
func (f *fence) Reset() { f.signaled.Store(false) }

// Destroy implements driver.Fence.
func (f *fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.dev.liveFences.Add(-1)
}
