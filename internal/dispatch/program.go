package dispatch

import (
	"fmt"
	"io/fs"

	"github.com/cwbudde/keccakminer/internal/device"
)

const (
	// KernelFile is the dispatch kernel consuming the hash primitive.
	KernelFile = "kernel.cl"
	// PrimitiveFile is the hash primitive library.
	PrimitiveFile = "utils/keccak.cl"
	// EntryPoint names the kernel function.
	EntryPoint = "run"
	// DefaultBuildOptions pins the API version the kernels are written for.
	DefaultBuildOptions = "-D CL_TARGET_OPENCL_VERSION=300"
)

// LoadSource reads both kernel fragments from fsys and joins them,
// primitive first.
func LoadSource(fsys fs.FS) (string, error) {
	primitive, err := fs.ReadFile(fsys, PrimitiveFile)
	if err != nil {
		return "", fmt.Errorf("%w: load %s: %w", device.ErrBuild, PrimitiveFile, err)
	}
	kernel, err := fs.ReadFile(fsys, KernelFile)
	if err != nil {
		return "", fmt.Errorf("%w: load %s: %w", device.ErrBuild, KernelFile, err)
	}
	return string(primitive) + "\n" + string(kernel), nil
}

// buildKernel compiles source in the context held by res and extracts the
// entry point. Handles are recorded in res as soon as they exist.
func buildKernel(res *device.Resources, source, options string) error {
	prog, err := res.Context.CreateProgram(source)
	if err != nil {
		return fmt.Errorf("%w: create program: %w", device.ErrBuild, err)
	}
	res.Program = prog

	if err := prog.Build(options); err != nil {
		// BuildLogError already unwraps to ErrBuild.
		if device.Kind(err) == device.ErrBuild {
			return err
		}
		return fmt.Errorf("%w: %w", device.ErrBuild, err)
	}

	kernel, err := prog.CreateKernel(EntryPoint)
	if err != nil {
		return fmt.Errorf("%w: create kernel %q: %w", device.ErrBuild, EntryPoint, err)
	}
	res.Kernel = kernel
	return nil
}
