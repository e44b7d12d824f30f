// Package opencl implements device.Driver on top of the system OpenCL ICD
// loader. The real driver is only compiled with -tags gpu.
package opencl

import "fmt"

// ErrNotBuilt indicates the binary was built without GPU support.
var ErrNotBuilt = fmt.Errorf("opencl support requires building with '-tags gpu'")
