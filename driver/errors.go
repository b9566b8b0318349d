package driver

import "github.com/cockroachdb/errors"

// Common driver errors.
var (
	// ErrNotAvailable is returned when a requested driver is not registered
	// or cannot run on this system.
	ErrNotAvailable = errors.New("driver: not available")

	// ErrShaderFormat is returned when no driver accepts the requested
	// shader formats.
	ErrShaderFormat = errors.New("driver: no driver supports the requested shader formats")

	// ErrUnsupported is returned for operations outside a backend's
	// feature set.
	ErrUnsupported = errors.New("driver: operation not supported")

	// ErrDeviceLost is returned once the native device is unusable.
	ErrDeviceLost = errors.New("driver: device lost")

	// ErrOutOfMemory is returned when a native allocation fails.
	ErrOutOfMemory = errors.New("driver: out of memory")
)
