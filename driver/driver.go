package driver

import (
	"log/slog"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Driver is a native backend entry point.
type Driver interface {
	// Name returns the backend identifier (e.g. "software", "wgpu").
	Name() string

	// ShaderFormats reports the shader binary formats the backend consumes.
	ShaderFormats() ShaderFormat

	// Open creates a logical device.
	Open(opts Options) (Device, error)
}

// Options configures Driver.Open.
type Options struct {
	// Debug requests backend debug facilities (labels, native validation).
	Debug bool

	// Provider is an optional host-owned device to share instead of
	// creating a new one. Backends that cannot use it ignore it.
	Provider gpucontext.DeviceProvider

	// Params carries backend-specific settings, e.g. "fences" for the
	// software backend.
	Params map[string]string

	// Logger receives backend diagnostics. Nil means silent.
	Logger *slog.Logger
}

// Param returns a backend parameter or def when unset.
func (o Options) Param(key, def string) string {
	if v, ok := o.Params[key]; ok {
		return v
	}
	return def
}

// ShaderFormat is a set of shader binary formats.
type ShaderFormat uint32

// Shader formats.
const (
	ShaderFormatSPIRV ShaderFormat = 1 << iota
	ShaderFormatWGSL
	ShaderFormatDXBC
	ShaderFormatDXIL
	ShaderFormatMSL
	ShaderFormatMetalLib

	ShaderFormatInvalid ShaderFormat = 0
)

var shaderFormatNames = []string{"spirv", "wgsl", "dxbc", "dxil", "msl", "metallib"}

// Has reports whether every format in f2 is present in f.
func (f ShaderFormat) Has(f2 ShaderFormat) bool {
	return f&f2 == f2
}

// Any reports whether f and f2 share at least one format.
func (f ShaderFormat) Any(f2 ShaderFormat) bool {
	return f&f2 != 0
}

// String returns a "|" separated list of format names.
func (f ShaderFormat) String() string {
	if f == ShaderFormatInvalid {
		return "none"
	}
	var parts []string
	for i, name := range shaderFormatNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Features is a set of optional backend capabilities.
type Features uint32

// Optional features.
const (
	// FeatureDownloads allows GPU-to-transfer-buffer copies.
	FeatureDownloads Features = 1 << iota
	// FeatureTextureCopies allows texture-to-texture copies.
	FeatureTextureCopies
	// FeatureIndirect allows indirect draws and dispatches.
	FeatureIndirect
	// FeatureSwapchain allows swapchain creation.
	FeatureSwapchain
	// FeatureDebugLabels means debug groups reach native tooling.
	FeatureDebugLabels
)

// Has reports whether every feature in f2 is present in f.
func (f Features) Has(f2 Features) bool {
	return f&f2 == f2
}

// Stage identifies a programmable pipeline stage.
type Stage int

// Pipeline stages.
const (
	StageVertex Stage = iota
	StageFragment
	StageCompute

	StageCount
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// ShaderStage converts s to the WebGPU visibility flag.
func (s Stage) ShaderStage() gputypes.ShaderStage {
	switch s {
	case StageVertex:
		return gputypes.ShaderStageVertex
	case StageFragment:
		return gputypes.ShaderStageFragment
	case StageCompute:
		return gputypes.ShaderStageCompute
	default:
		return gputypes.ShaderStageNone
	}
}
