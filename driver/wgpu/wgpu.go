package wgpu

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop" // registers the "noop" backend

	"github.com/gogpu/rhi/driver"
)

// Name is the registry name of this driver.
const Name = "wgpu"

func init() {
	driver.Register(Driver{})
}

// Driver is the HAL driver entry point.
type Driver struct{}

// Name implements driver.Driver.
func (Driver) Name() string { return Name }

// ShaderFormats implements driver.Driver. HAL shader modules take WGSL
// source or SPIR-V words.
func (Driver) ShaderFormats() driver.ShaderFormat {
	return driver.ShaderFormatSPIRV | driver.ShaderFormatWGSL
}

var probe struct {
	once sync.Once
	ok   bool
}

// Probe implements driver.Prober. It reports whether the default backend
// enumerates at least one adapter. The result is computed once.
func (Driver) Probe() bool {
	probe.once.Do(func() {
		b, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return
		}
		inst, err := b.CreateInstance(&hal.InstanceDescriptor{})
		if err != nil {
			return
		}
		defer inst.Destroy()
		probe.ok = len(inst.EnumerateAdapters(nil)) > 0
	})
	return probe.ok
}

var backendNames = map[string]gputypes.Backend{
	"vulkan": gputypes.BackendVulkan,
	"noop":   gputypes.BackendEmpty,
}

// halProvider is implemented by device providers that expose their HAL
// objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// Open implements driver.Driver.
func (Driver) Open(opts driver.Options) (driver.Device, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	} else {
		hal.SetLogger(log.With("component", "hal"))
	}

	if opts.Provider != nil {
		return openShared(opts, log)
	}

	name := opts.Param("backend", "vulkan")
	variant, ok := backendNames[name]
	if !ok {
		return nil, errors.Newf("wgpu: unknown backend %q", name)
	}
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, errors.Wrapf(driver.ErrNotAvailable, "wgpu: backend %q not registered", name)
	}

	var flags gputypes.InstanceFlags
	if opts.Debug {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsPrimary,
		Flags:    flags,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "wgpu: create %s instance", name), driver.ErrNotAvailable)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.Wrap(driver.ErrNotAvailable, "wgpu: no adapters found")
	}
	selected := pickAdapter(adapters)

	open, err := selected.Adapter.Open(0, selected.Capabilities.Limits)
	if err != nil {
		instance.Destroy()
		return nil, mapError(errors.Wrap(err, "wgpu: open device"))
	}

	d := newDevice(open.Device, open.Queue, selected.Capabilities.Limits, log)
	d.instance = instance
	d.adapter = selected.Adapter
	log.Info("wgpu: device opened",
		"backend", name,
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType)
	return d, nil
}

// pickAdapter prefers discrete GPUs, then integrated ones, then whatever
// came first.
func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	var integrated *hal.ExposedAdapter
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU:
			return &adapters[i]
		case gputypes.DeviceTypeIntegratedGPU:
			if integrated == nil {
				integrated = &adapters[i]
			}
		}
	}
	if integrated != nil {
		return integrated
	}
	return &adapters[0]
}

func openShared(opts driver.Options, log *slog.Logger) (driver.Device, error) {
	hp, ok := opts.Provider.(halProvider)
	if !ok {
		return nil, errors.Newf("wgpu: provider %T does not expose HAL objects", opts.Provider)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, errors.New("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, errors.New("wgpu: provider HalQueue is not hal.Queue")
	}
	d := newDevice(dev, queue, gputypes.DefaultLimits(), log)
	d.shared = true
	info := opts.Provider.AdapterInfo()
	log.Info("wgpu: sharing provider device", "adapter", info.Name, "type", info.Type)
	return d, nil
}

// mapError marks HAL failures with the matching driver sentinel.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return errors.Mark(err, driver.ErrOutOfMemory)
	case errors.Is(err, hal.ErrDeviceLost):
		return errors.Mark(err, driver.ErrDeviceLost)
	}
	return err
}
