// Package rhi is a render hardware interface: one GPU command and resource
// API over several native drivers.
//
// # Overview
//
// Applications record work into command buffers and submit them without
// waiting for the GPU. Resources written while earlier work may still read
// them are cycled: each Buffer, Texture and TransferBuffer is a container of
// physical generations, and a write that requests cycling is redirected to
// an idle generation instead of overwriting memory in flight.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/rhi"
//		_ "github.com/gogpu/rhi/driver/software"
//	)
//
//	dev, err := rhi.NewDevice(rhi.WithDriver("software"))
//	if err != nil {
//		return err
//	}
//	defer dev.Destroy()
//
//	staging, _ := dev.CreateTransferBuffer(&rhi.TransferBufferDesc{Size: 64})
//	buf, _ := dev.CreateBuffer(&rhi.BufferDesc{Size: 64, Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst})
//
//	data, _ := staging.Map(true)
//	copy(data, vertices)
//	staging.Unmap()
//
//	cb, _ := dev.AcquireCommandBuffer()
//	copyPass, _ := cb.BeginCopyPass()
//	copyPass.UploadToBuffer(rhi.TransferLocation{TransferBuffer: staging}, rhi.BufferRegion{Buffer: buf}, true)
//	copyPass.End()
//	cb.Submit()
//
// # Passes
//
// A command buffer is idle or inside exactly one render, compute or copy
// pass. Draws and dispatches need a pipeline bound in the current pass.
// Pass handles become invalid at End; command buffers become invalid at
// Submit or Cancel.
//
// # Drivers
//
// Drivers register themselves from init; import the ones you need.
// "software" runs everything on the CPU and is always available. "wgpu"
// drives Vulkan through gogpu/wgpu. RHI_DRIVER selects a driver by name.
//
// # Errors
//
// Misuse of the API returns errors matching ErrUsage. WithDebug adds
// validation of descriptors, usages and copy ranges, reported as
// ErrValidation. WithAssertions turns both into panics.
package rhi

// Version is the current version of the library.
const Version = "0.1.0"
