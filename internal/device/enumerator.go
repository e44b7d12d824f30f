package device

import (
	"fmt"
)

// Selection is the outcome of resolving a platform hint and device index.
type Selection struct {
	// PlatformNames lists every enumerated platform in driver order.
	PlatformNames []string
	PlatformIndex int
	Platform      Platform
	DeviceIndex   int
	DeviceCount   int
	Device        Device
}

// Enumerator resolves user-facing selectors to driver handles. It only
// reads from the driver and never allocates device resources.
type Enumerator struct {
	driver Driver
}

// NewEnumerator wraps driver.
func NewEnumerator(driver Driver) *Enumerator {
	return &Enumerator{driver: driver}
}

// Select picks the platform named hint (first exact match, else the first
// platform) and the GPU device at deviceIndex within it.
func (e *Enumerator) Select(hint string, deviceIndex int) (*Selection, error) {
	platforms, err := e.driver.Platforms()
	if err != nil {
		return nil, fmt.Errorf("%w: list platforms: %w", ErrSetup, err)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrSetup, ErrNoPlatforms)
	}

	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = p.Info().Name
	}
	idx := SelectPlatform(names, hint)

	devices, err := platforms[idx].GPUDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: list devices on %q: %w", ErrSetup, names[idx], err)
	}
	if deviceIndex < 0 || deviceIndex >= len(devices) {
		return nil, fmt.Errorf("%w: %d (platform %q has %d GPU devices)", ErrInvalidDevice, deviceIndex, names[idx], len(devices))
	}

	return &Selection{
		PlatformNames: names,
		PlatformIndex: idx,
		Platform:      platforms[idx],
		DeviceIndex:   deviceIndex,
		DeviceCount:   len(devices),
		Device:        devices[deviceIndex],
	}, nil
}

// Describe returns every platform with the attributes of its GPU devices.
func (e *Enumerator) Describe() ([]PlatformInfo, error) {
	platforms, err := e.driver.Platforms()
	if err != nil {
		return nil, fmt.Errorf("%w: list platforms: %w", ErrSetup, err)
	}

	out := make([]PlatformInfo, 0, len(platforms))
	for _, p := range platforms {
		info := p.Info()
		devices, err := p.GPUDevices()
		if err != nil {
			return nil, fmt.Errorf("%w: list devices on %q: %w", ErrSetup, info.Name, err)
		}
		info.Devices = make([]DeviceInfo, 0, len(devices))
		for _, d := range devices {
			di, err := d.Info()
			if err != nil {
				return nil, fmt.Errorf("%w: query device on %q: %w", ErrSetup, info.Name, err)
			}
			info.Devices = append(info.Devices, di)
		}
		out = append(out, info)
	}
	return out, nil
}

// SelectPlatform returns the index of the first name equal to hint, or 0
// when hint is empty or matches nothing.
func SelectPlatform(names []string, hint string) int {
	if hint == "" {
		return 0
	}
	for i, name := range names {
		if name == hint {
			return i
		}
	}
	return 0
}
