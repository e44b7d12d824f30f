//go:build !gpu

package opencl

import "github.com/cwbudde/keccakminer/internal/device"

// Driver is a placeholder when GPU support is not compiled.
type Driver struct{}

// New returns an error when GPU support is not compiled in.
func New() (*Driver, error) {
	return nil, ErrNotBuilt
}

// Available reports whether the OpenCL driver was compiled in.
func Available() bool { return false }

// Platforms returns an error when GPU support is not compiled in.
func (*Driver) Platforms() ([]device.Platform, error) {
	return nil, ErrNotBuilt
}
