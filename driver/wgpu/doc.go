// Package wgpu implements a driver over the gogpu/wgpu hardware
// abstraction layer.
//
// The driver opens its own device on the HAL backend named by the
// "backend" parameter ("vulkan" by default, "noop" for a backend that
// records nothing), or shares a host device when driver.Options.Provider
// exposes HalDevice and HalQueue methods.
//
// # Binding model
//
// Slot based bindings are mapped onto one bind group per shader stage.
// Graphics pipelines use group 0 for the vertex stage and group 1 for the
// fragment stage; compute pipelines use group 0. Inside a group the
// bindings are numbered in this order:
//
//	sampled textures and samplers  texture at 2*i, sampler at 2*i+1
//	read-only storage textures
//	read-only storage buffers
//	read-write storage textures    (compute only)
//	read-write storage buffers     (compute only)
//	uniform buffers
//
// Shaders written for this driver declare their @group and @binding
// attributes accordingly.
//
// Fences track queue submission indices. Swapchains are not supported;
// hosts that own a surface present it themselves.
package wgpu
