package driver

import (
	"context"

	"github.com/gogpu/gputypes"
)

// Resource is a native object owned by a device.
type Resource interface {
	SetLabel(label string)
	Destroy()
}

// Buffer is a native GPU buffer.
type Buffer interface {
	Resource
	Size() uint64
}

// Texture is a native texture.
type Texture interface {
	Resource
}

// TransferBuffer is CPU-visible staging memory.
type TransferBuffer interface {
	Resource
	// Bytes returns the CPU view of the buffer.
	Bytes() []byte
	// Flush publishes CPU writes made through Bytes to the GPU.
	Flush() error
}

// Sampler is a native sampler.
type Sampler interface{ Resource }

// Shader is a compiled shader stage.
type Shader interface{ Resource }

// ComputePipeline is a native compute pipeline.
type ComputePipeline interface{ Resource }

// GraphicsPipeline is a native graphics pipeline.
type GraphicsPipeline interface{ Resource }

// Fence signals completion of one submission.
type Fence interface {
	// Signaled reports completion without blocking.
	Signaled() bool
	// Reset returns the fence to the unsignaled state for reuse.
	Reset()
	Destroy()
}

// Swapchain is a ring of presentable images.
type Swapchain interface {
	// Acquire returns the next writable image and its index.
	Acquire() (index int, tex Texture, err error)
	// Present queues image index for display. Called after the submission
	// that rendered it.
	Present(index int) error
	Format() gputypes.TextureFormat
	Size() (width, height uint32)
	ImageCount() int
	Destroy()
}

// Device is a native logical device.
//
// Creation methods are safe for concurrent use. Submit, Wait and WaitIdle
// are serialized by the caller per device.
type Device interface {
	Limits() gputypes.Limits
	Features() Features
	ShaderFormats() ShaderFormat

	CreateBuffer(desc *BufferDesc) (Buffer, error)
	CreateTexture(desc *TextureDesc) (Texture, error)
	CreateTransferBuffer(desc *TransferBufferDesc) (TransferBuffer, error)
	CreateSampler(desc *SamplerDesc) (Sampler, error)
	CreateShader(desc *ShaderDesc) (Shader, error)
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipeline, error)
	CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (GraphicsPipeline, error)
	CreateSwapchain(desc *SwapchainDesc) (Swapchain, error)
	CreateEncoder() (Encoder, error)
	CreateFence() (Fence, error)

	// WriteBuffer copies data into dst on the queue timeline, ahead of any
	// work submitted afterwards.
	WriteBuffer(dst Buffer, offset uint64, data []byte) error

	// Submit queues the recorded encoder. fence signals when it completes.
	Submit(enc Encoder, fence Fence) error

	// Wait blocks until all (waitAll) or any of fences signal.
	Wait(ctx context.Context, fences []Fence, waitAll bool) error

	// WaitIdle blocks until all submitted work completes.
	WaitIdle(ctx context.Context) error

	Destroy()
}

// Encoder records native commands for one command buffer.
//
// The rhi layer guarantees call ordering (passes never overlap, draws only
// inside render passes, and so on); encoders only translate.
type Encoder interface {
	// Begin starts recording after creation or Reset.
	Begin(label string) error
	// End finishes recording. The encoder may then be submitted.
	End() error
	// Reset discards recorded work so the encoder can be reused.
	Reset()
	// Complete runs after the submission's fence signaled; deferred
	// downloads become visible in their transfer buffers.
	Complete()
	Destroy()

	BeginRenderPass(desc *RenderPassDesc) error
	EndRenderPass()
	BeginComputePass(desc *ComputePassDesc) error
	EndComputePass()
	BeginCopyPass() error
	EndCopyPass()

	SetGraphicsPipeline(p GraphicsPipeline) error
	SetViewport(v Viewport)
	SetScissor(r Rect)
	SetBlendConstants(c gputypes.Color)
	SetStencilReference(ref uint32)
	SetVertexBuffers(first uint32, bindings []BufferBinding) error
	SetIndexBuffer(binding BufferBinding, format gputypes.IndexFormat) error
	SetSamplers(stage Stage, first uint32, bindings []TextureSamplerBinding) error
	SetStorageTextures(stage Stage, first uint32, textures []Texture) error
	SetStorageBuffers(stage Stage, first uint32, buffers []Buffer) error
	SetUniformBuffer(stage Stage, slot uint32, buf Buffer, offset, size uint64) error
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error
	DrawIndirect(buf Buffer, offset uint64, drawCount uint32) error
	DrawIndexedIndirect(buf Buffer, offset uint64, drawCount uint32) error

	SetComputePipeline(p ComputePipeline) error
	Dispatch(x, y, z uint32) error
	DispatchIndirect(buf Buffer, offset uint64) error

	UploadToBuffer(src TransferLocation, dst BufferRegion) error
	UploadToTexture(src TransferLocation, dst TextureRegion) error
	CopyBufferToBuffer(src BufferRegion, dstBuf Buffer, dstOffset uint64) error
	CopyTextureToTexture(src, dst TextureLocation, size gputypes.Extent3D) error
	DownloadFromBuffer(src BufferRegion, dst TransferLocation) error
	DownloadFromTexture(src TextureRegion, dst TransferLocation) error

	PushDebugGroup(name string)
	PopDebugGroup()
	InsertDebugLabel(label string)
}
