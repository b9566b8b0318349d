package driver

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

// registry holds registered drivers.
var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Driver)
	// Priority order for driver selection (first suitable wins).
	// Native backends come before the CPU fallback.
	driverPriority = []string{"wgpu", "software"}
)

// Prober is implemented by drivers that can report whether they are
// usable on this system before a device is opened.
type Prober interface {
	Probe() bool
}

// Register registers a driver under its name.
// This is typically called from init() functions in backend packages.
// If a driver with the same name is already registered, it is replaced.
func Register(drv Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	drivers[drv.Name()] = drv
}

// Unregister removes a driver from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(drivers, name)
}

// Available returns registered driver names in selection order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return orderedLocked()
}

// IsRegistered checks if a driver with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := drivers[name]
	return ok
}

// Get returns a driver by name, or nil if it is not registered.
func Get(name string) Driver {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return drivers[name]
}

// Select picks a driver.
//
// With a non-empty name the named driver is returned if it is registered
// and accepts at least one of formats. Otherwise drivers are tried in
// priority order, skipping those whose shader formats do not intersect
// formats and those that report themselves unusable. A zero formats set
// accepts any driver.
func Select(name string, formats ShaderFormat) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name != "" {
		drv, ok := drivers[name]
		if !ok {
			return nil, errors.Wrapf(ErrNotAvailable, "driver %q", name)
		}
		if !accepts(drv, formats) {
			return nil, errors.Wrapf(ErrShaderFormat, "driver %q supports %s, requested %s",
				name, drv.ShaderFormats(), formats)
		}
		return drv, nil
	}

	formatMatched := false
	for _, n := range orderedLocked() {
		drv := drivers[n]
		if !accepts(drv, formats) {
			continue
		}
		formatMatched = true
		if p, ok := drv.(Prober); ok && !p.Probe() {
			continue
		}
		return drv, nil
	}
	if !formatMatched && len(drivers) > 0 {
		return nil, errors.Wrapf(ErrShaderFormat, "requested %s", formats)
	}
	return nil, ErrNotAvailable
}

func accepts(drv Driver, formats ShaderFormat) bool {
	return formats == ShaderFormatInvalid || drv.ShaderFormats().Any(formats)
}

// orderedLocked returns priority drivers first, then the rest by name.
// Caller must hold registryMu.
func orderedLocked() []string {
	names := make([]string, 0, len(drivers))
	for _, n := range driverPriority {
		if _, ok := drivers[n]; ok {
			names = append(names, n)
		}
	}
	var rest []string
	for n := range drivers {
		if !slices.Contains(driverPriority, n) {
			rest = append(rest, n)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}
