package driver

import "github.com/gogpu/gputypes"

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDesc describes a texture.
type TextureDesc struct {
	Label         string
	Dimension     gputypes.TextureDimension
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	Size          gputypes.Extent3D
	MipLevelCount uint32
	SampleCount   uint32
}

// TransferUsage tells whether a transfer buffer feeds uploads or
// receives downloads.
type TransferUsage int

// Transfer buffer usages.
const (
	TransferUpload TransferUsage = iota
	TransferDownload
)

func (u TransferUsage) String() string {
	switch u {
	case TransferUpload:
		return "Upload"
	case TransferDownload:
		return "Download"
	default:
		return "Unknown"
	}
}

// TransferBufferDesc describes a CPU-visible staging buffer.
type TransferBufferDesc struct {
	Label string
	Size  uint64
	Usage TransferUsage
}

// SamplerDesc describes a texture sampler.
type SamplerDesc struct {
	Label         string
	AddressModeU  gputypes.AddressMode
	AddressModeV  gputypes.AddressMode
	AddressModeW  gputypes.AddressMode
	MagFilter     gputypes.FilterMode
	MinFilter     gputypes.FilterMode
	MipmapFilter  gputypes.FilterMode
	LodMinClamp   float32
	LodMaxClamp   float32
	Compare       gputypes.CompareFunction
	MaxAnisotropy uint16
}

// ShaderResources counts the resources a graphics shader stage binds.
type ShaderResources struct {
	Samplers        int
	StorageTextures int
	StorageBuffers  int
	UniformBuffers  int
}

// ShaderDesc describes a graphics shader stage. For WGSL, Code holds the
// source text.
type ShaderDesc struct {
	Label      string
	Stage      Stage
	Format     ShaderFormat
	Code       []byte
	EntryPoint string
	Resources  ShaderResources
}

// ComputeResources counts the resources a compute pipeline binds.
type ComputeResources struct {
	Samplers                 int
	ReadOnlyStorageTextures  int
	ReadOnlyStorageBuffers   int
	ReadWriteStorageTextures int
	ReadWriteStorageBuffers  int
	UniformBuffers           int
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label       string
	Format      ShaderFormat
	Code        []byte
	EntryPoint  string
	Resources   ComputeResources
	ThreadCount [3]uint32
}

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	Label              string
	VertexShader       Shader
	FragmentShader     Shader
	VertexBuffers      []gputypes.VertexBufferLayout
	Primitive          gputypes.PrimitiveState
	ColorTargets       []gputypes.ColorTargetState
	DepthStencilFormat gputypes.TextureFormat
	DepthWriteEnabled  bool
	DepthCompare       gputypes.CompareFunction
	SampleCount        uint32
}

// SwapchainDesc describes an image chain presented on submission.
type SwapchainDesc struct {
	Label      string
	Width      uint32
	Height     uint32
	Format     gputypes.TextureFormat
	ImageCount int
}

// ColorAttachment is a resolved render pass color target.
type ColorAttachment struct {
	Texture    Texture
	MipLevel   uint32
	Layer      uint32
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor gputypes.Color
}

// DepthStencilAttachment is a resolved render pass depth-stencil target.
type DepthStencilAttachment struct {
	Texture        Texture
	LoadOp         gputypes.LoadOp
	StoreOp        gputypes.StoreOp
	ClearDepth     float32
	StencilLoadOp  gputypes.LoadOp
	StencilStoreOp gputypes.StoreOp
	ClearStencil   uint32
}

// RenderPassDesc describes a render pass with resolved physical targets.
type RenderPassDesc struct {
	Label        string
	Colors       []ColorAttachment
	DepthStencil *DepthStencilAttachment
}

// StorageTextureWrite is a texture subresource written by a compute pass.
type StorageTextureWrite struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
}

// ComputePassDesc lists the read-write resources of a compute pass.
type ComputePassDesc struct {
	Label           string
	StorageTextures []StorageTextureWrite
	StorageBuffers  []Buffer
}

// BufferBinding binds a buffer at an offset.
type BufferBinding struct {
	Buffer Buffer
	Offset uint64
}

// TextureSamplerBinding pairs a sampled texture with its sampler.
type TextureSamplerBinding struct {
	Texture Texture
	Sampler Sampler
}

// Viewport is a render pass viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle in pixels.
type Rect struct {
	X, Y, Width, Height uint32
}

// BufferRegion is a byte range of a buffer.
type BufferRegion struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// TextureRegion is a box within one mip level of a texture.
type TextureRegion struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
	Origin   gputypes.Origin3D
	Size     gputypes.Extent3D
}

// TextureLocation is a point within one mip level of a texture.
type TextureLocation struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
	Origin   gputypes.Origin3D
}

// TransferLocation addresses texel data inside a transfer buffer.
// Zero PixelsPerRow or RowsPerLayer means tightly packed.
type TransferLocation struct {
	Buffer       TransferBuffer
	Offset       uint64
	PixelsPerRow uint32
	RowsPerLayer uint32
}
