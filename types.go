package rhi

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// ShaderFormat is a set of shader bytecode formats.
type ShaderFormat = driver.ShaderFormat

// Shader formats.
const (
	ShaderFormatSPIRV    = driver.ShaderFormatSPIRV
	ShaderFormatWGSL     = driver.ShaderFormatWGSL
	ShaderFormatDXBC     = driver.ShaderFormatDXBC
	ShaderFormatDXIL     = driver.ShaderFormatDXIL
	ShaderFormatMSL      = driver.ShaderFormatMSL
	ShaderFormatMetalLib = driver.ShaderFormatMetalLib
)

// Stage identifies a shader stage.
type Stage = driver.Stage

// Shader stages.
const (
	StageVertex   = driver.StageVertex
	StageFragment = driver.StageFragment
	StageCompute  = driver.StageCompute
)

// Binding limits.
const (
	// MaxUniformSlots is the number of uniform slots per shader stage.
	MaxUniformSlots = 4
	// MaxColorTargets is the maximum number of color targets in a render pass.
	MaxColorTargets = 8
	// MaxVertexBuffers is the maximum number of bound vertex buffers.
	MaxVertexBuffers = 16
	// MaxStorageBindings bounds sampler, storage texture and storage buffer
	// slots per stage.
	MaxStorageBindings = 16
)

// Descriptors shared with the driver layer.
type (
	BufferDesc          = driver.BufferDesc
	TextureDesc         = driver.TextureDesc
	TransferBufferDesc  = driver.TransferBufferDesc
	SamplerDesc         = driver.SamplerDesc
	ShaderDesc          = driver.ShaderDesc
	ShaderResources     = driver.ShaderResources
	ComputePipelineDesc = driver.ComputePipelineDesc
	ComputeResources    = driver.ComputeResources
	SwapchainDesc       = driver.SwapchainDesc
	Viewport            = driver.Viewport
	Rect                = driver.Rect
)

// TransferUsage says whether a transfer buffer feeds uploads or receives
// downloads.
type TransferUsage = driver.TransferUsage

// Transfer usages.
const (
	TransferUpload   = driver.TransferUpload
	TransferDownload = driver.TransferDownload
)

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	Label              string
	VertexShader       *Shader
	FragmentShader     *Shader
	VertexBuffers      []gputypes.VertexBufferLayout
	Primitive          gputypes.PrimitiveState
	ColorTargets       []gputypes.ColorTargetState
	DepthStencilFormat gputypes.TextureFormat
	DepthWriteEnabled  bool
	DepthCompare       gputypes.CompareFunction
	SampleCount        uint32
}

// ColorTarget is a render pass color attachment. With Cycle set, a target
// still in use by earlier submissions is replaced by an idle generation
// instead of being overwritten.
type ColorTarget struct {
	Texture    *Texture
	MipLevel   uint32
	Layer      uint32
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor gputypes.Color
	Cycle      bool
}

// DepthStencilTarget is a render pass depth/stencil attachment.
type DepthStencilTarget struct {
	Texture        *Texture
	LoadOp         gputypes.LoadOp
	StoreOp        gputypes.StoreOp
	ClearDepth     float32
	StencilLoadOp  gputypes.LoadOp
	StencilStoreOp gputypes.StoreOp
	ClearStencil   uint32
	Cycle          bool
}

// StorageTextureWrite is a texture written by a compute pass.
type StorageTextureWrite struct {
	Texture  *Texture
	MipLevel uint32
	Layer    uint32
	Cycle    bool
}

// StorageBufferWrite is a buffer written by a compute pass.
type StorageBufferWrite struct {
	Buffer *Buffer
	Cycle  bool
}

// BufferBinding binds a buffer at an offset.
type BufferBinding struct {
	Buffer *Buffer
	Offset uint64
}

// TextureSamplerBinding pairs a sampled texture with a sampler.
type TextureSamplerBinding struct {
	Texture *Texture
	Sampler *Sampler
}

// BufferRegion is a byte range of a buffer. A zero Size means the rest of
// the buffer.
type BufferRegion struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

// TextureRegion is a box within one mip level and layer of a texture.
// A zero Size means the whole mip level.
type TextureRegion struct {
	Texture  *Texture
	MipLevel uint32
	Layer    uint32
	Origin   gputypes.Origin3D
	Size     gputypes.Extent3D
}

// TextureLocation is a texel position within a texture.
type TextureLocation struct {
	Texture  *Texture
	MipLevel uint32
	Layer    uint32
	Origin   gputypes.Origin3D
}

// TransferLocation addresses data inside a transfer buffer. PixelsPerRow and
// RowsPerLayer describe texture data layout; zero means tightly packed.
type TransferLocation struct {
	TransferBuffer *TransferBuffer
	Offset         uint64
	PixelsPerRow   uint32
	RowsPerLayer   uint32
}
