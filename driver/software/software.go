// Package software implements a CPU driver.
//
// Buffers, textures and transfer buffers are backed by Go memory and every
// copy command really moves bytes, so rendering results, downloads and
// cycling hazards are observable in tests. Shaders are accepted but never
// executed: draws and dispatches are counted, and render pass load
// operations (clears) are applied to color and depth targets.
//
// Submissions execute in order on a timeline selected with the "fences"
// parameter:
//
//	async      a worker goroutine executes submissions (default)
//	immediate  Submit executes before returning
//	manual     work runs only on Step, Flush, Wait or WaitIdle
//
// The "formats" parameter narrows the accepted shader formats to a comma
// separated subset of "spirv" and "wgsl". The "memory" parameter caps the
// bytes of live resources; allocations beyond it fail with
// driver.ErrOutOfMemory. "max-fences" caps live fences.
package software

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// Name is the registry name of this driver.
const Name = "software"

func init() {
	driver.Register(Driver{})
}

// Driver is the software driver entry point.
type Driver struct{}

// Name implements driver.Driver.
func (Driver) Name() string { return Name }

// ShaderFormats implements driver.Driver. Code is stored, not run, so both
// portable formats are accepted.
func (Driver) ShaderFormats() driver.ShaderFormat {
	return driver.ShaderFormatSPIRV | driver.ShaderFormatWGSL
}

// Probe implements driver.Prober. The CPU is always there.
func (Driver) Probe() bool { return true }

// Open implements driver.Driver.
func (Driver) Open(opts driver.Options) (driver.Device, error) {
	cfg := config{mode: modeAsync}
	switch m := opts.Param("fences", "async"); m {
	case "async":
	case "immediate":
		cfg.mode = modeImmediate
	case "manual":
		cfg.mode = modeManual
	default:
		return nil, errors.Newf("software: unknown fences mode %q", m)
	}
	if v := opts.Param("memory", ""); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "software: memory")
		}
		cfg.memoryLimit = n
	}
	if v := opts.Param("max-fences", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "software: max-fences")
		}
		cfg.maxFences = n
	}
	cfg.formats = Driver{}.ShaderFormats()
	if v := opts.Param("formats", ""); v != "" {
		cfg.formats = driver.ShaderFormatInvalid
		for _, name := range strings.Split(v, ",") {
			switch strings.TrimSpace(name) {
			case "spirv":
				cfg.formats |= driver.ShaderFormatSPIRV
			case "wgsl":
				cfg.formats |= driver.ShaderFormatWGSL
			default:
				return nil, errors.Newf("software: unknown shader format %q", name)
			}
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return newDevice(cfg, log), nil
}
