package device

import (
	"errors"
	"fmt"
)

var (
	// ErrSetup marks a driver call that should not fail once its inputs have
	// been validated: platform or device enumeration, context and queue
	// creation. Callers usually treat it as fatal.
	ErrSetup = errors.New("device setup failed")
	// ErrInvalidDevice is returned when the device index is out of range.
	ErrInvalidDevice = errors.New("invalid device index")
	// ErrBuild covers missing kernel sources and compile failures.
	ErrBuild = errors.New("kernel build failed")
	// ErrAllocation is returned when a device buffer cannot be created.
	ErrAllocation = errors.New("buffer allocation failed")
	// ErrDispatch covers argument binding, enqueue and readback failures.
	ErrDispatch = errors.New("kernel dispatch failed")
	// ErrInvalidParams is returned for dispatch parameters rejected before
	// any device resource is touched.
	ErrInvalidParams = errors.New("invalid dispatch parameters")
	// ErrNoPlatforms indicates the driver reported zero platforms.
	ErrNoPlatforms = errors.New("no compute platforms found")
)

// BuildLogError carries the compiler output of a failed program build.
type BuildLogError struct {
	Log string
}

func (e *BuildLogError) Error() string {
	return fmt.Sprintf("kernel build error:\n%s", e.Log)
}

// Unwrap lets errors.Is(err, ErrBuild) match build log errors.
func (e *BuildLogError) Unwrap() error {
	return ErrBuild
}

// Kind returns the sentinel describing err, or nil when err carries none.
func Kind(err error) error {
	for _, kind := range []error{ErrSetup, ErrInvalidDevice, ErrBuild, ErrAllocation, ErrDispatch, ErrInvalidParams, ErrNoPlatforms} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
