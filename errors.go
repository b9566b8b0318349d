package rhi

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/internal/validate"
)

// ErrUsage marks every API usage error. Usage errors are always detected,
// independent of debug mode.
var ErrUsage = errors.New("rhi: invalid usage")

func usageError(msg string) error {
	return errors.Mark(errors.New(msg), ErrUsage)
}

// Usage errors.
var (
	// ErrSubmitted is returned for any operation on a command buffer that was
	// already submitted or canceled.
	ErrSubmitted = usageError("rhi: command buffer already submitted or canceled")

	// ErrClosed is returned for recording on a command buffer whose
	// submission failed after recording was closed. Only Submit and Cancel
	// remain legal.
	ErrClosed = usageError("rhi: command buffer closed by a failed submit")

	// ErrPassActive is returned when a pass is begun, or the command buffer
	// submitted, while another pass is still recording.
	ErrPassActive = usageError("rhi: a pass is already active")

	// ErrPassEnded is returned for operations on a pass handle after End.
	ErrPassEnded = usageError("rhi: pass has ended")

	// ErrPipelineNotBound is returned for draws and dispatches before a
	// pipeline is bound in the current pass.
	ErrPipelineNotBound = usageError("rhi: no pipeline bound")

	// ErrSwapchainAcquired is returned by Cancel after a swapchain texture
	// was acquired on the command buffer.
	ErrSwapchainAcquired = usageError("rhi: cannot cancel after acquiring a swapchain texture")

	// ErrNoDebugGroup is returned by PopDebugGroup without a matching push.
	ErrNoDebugGroup = usageError("rhi: no debug group to pop")

	// ErrReleased is returned for operations on released resources or fences.
	ErrReleased = usageError("rhi: resource already released")

	// ErrNilResource is returned when a required resource argument is nil.
	ErrNilResource = usageError("rhi: nil resource")

	// ErrInvalidDescriptor is returned for descriptors that can never be valid.
	ErrInvalidDescriptor = usageError("rhi: invalid descriptor")

	// ErrSlotRange is returned for binding slots beyond the supported range.
	ErrSlotRange = usageError("rhi: binding slot out of range")

	// ErrMapped is returned when mapping an already mapped transfer buffer.
	ErrMapped = usageError("rhi: transfer buffer already mapped")

	// ErrNotMapped is returned by Unmap on an unmapped transfer buffer.
	ErrNotMapped = usageError("rhi: transfer buffer not mapped")

	// ErrSwapchainTexture is returned when releasing a swapchain-owned texture.
	ErrSwapchainTexture = usageError("rhi: swapchain textures are owned by their swapchain")

	// ErrDeviceDestroyed is returned by operations on a destroyed device.
	ErrDeviceDestroyed = usageError("rhi: device destroyed")
)

// ErrValidation marks errors found by debug-mode validation.
var ErrValidation = validate.ErrValidation

// ErrUnsupported is returned for operations the selected driver cannot
// perform (see driver.Features).
var ErrUnsupported = driver.ErrUnsupported

// IsUsageError reports whether err was caused by API misuse, including
// debug-mode validation failures.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrUsage) || errors.Is(err, ErrValidation)
}
