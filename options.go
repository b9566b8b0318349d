package rhi

import (
	"log/slog"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/rhi/driver"
)

// EnvDriver names the environment variable that selects a driver when
// WithDriver is not given.
const EnvDriver = "RHI_DRIVER"

// DefaultUniformRingSize is the capacity of each uniform ring buffer.
const DefaultUniformRingSize = 32 << 10

// Option configures a Device during creation.
//
// Example:
//
//	// Pick the best available driver for WGSL shaders
//	dev, err := rhi.NewDevice(rhi.WithShaderFormats(rhi.ShaderFormatWGSL))
//
//	// Deterministic CPU device with validation
//	dev, err := rhi.NewDevice(
//		rhi.WithDriver("software"),
//		rhi.WithDriverParam("fences", "manual"),
//		rhi.WithDebug(),
//	)
type Option func(*config)

type config struct {
	driver     string
	formats    driver.ShaderFormat
	debug      bool
	assertions bool
	ringSize   uint64
	logger     *slog.Logger
	provider   gpucontext.DeviceProvider
	params     map[string]string
}

func defaultConfig() config {
	return config{
		formats:  driver.ShaderFormatWGSL | driver.ShaderFormatSPIRV,
		ringSize: DefaultUniformRingSize,
	}
}

// WithDriver requests a driver by name. Creation fails if that driver is not
// registered or not usable on this machine.
func WithDriver(name string) Option {
	return func(c *config) {
		c.driver = name
	}
}

// WithShaderFormats declares the shader formats the application can supply.
// Only drivers accepting at least one of them are considered. WGSL source is
// translated to SPIR-V for drivers that do not take WGSL directly.
func WithShaderFormats(formats ShaderFormat) Option {
	return func(c *config) {
		c.formats = formats
	}
}

// WithDebug enables validation of descriptors, binding limits, usage flags
// and copy ranges. Validation failures are reported like usage errors.
func WithDebug() Option {
	return func(c *config) {
		c.debug = true
	}
}

// WithAssertions makes every usage or validation error panic with an
// assertion failure in addition to being returned.
func WithAssertions() Option {
	return func(c *config) {
		c.assertions = true
	}
}

// WithUniformRingSize sets the capacity in bytes of each uniform ring buffer.
// Sizes are rounded up to the device's uniform offset alignment.
func WithUniformRingSize(size uint64) Option {
	return func(c *config) {
		if size > 0 {
			c.ringSize = size
		}
	}
}

// WithLogger sets the logger used by the device and its driver.
// Without it the package logger (see SetLogger) is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithProvider shares an existing GPU device with the driver instead of
// opening a new one. Drivers that cannot use the provider ignore it.
func WithProvider(p gpucontext.DeviceProvider) Option {
	return func(c *config) {
		c.provider = p
	}
}

// WithDriverParam passes a driver-specific key/value parameter, such as
// "fences"="manual" for the software driver.
func WithDriverParam(key, value string) Option {
	return func(c *config) {
		if c.params == nil {
			c.params = make(map[string]string)
		}
		c.params[key] = value
	}
}
