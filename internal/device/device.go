// Package device abstracts the compute driver used to run the nonce search.
//
// The interfaces mirror the small subset of the OpenCL host API the miner
// needs: platform and device discovery, one context and in-order command
// queue per call, program build, kernel argument binding, buffer transfer
// and a completion barrier. Two drivers implement them: the OpenCL driver
// (built with -tags gpu) and the in-process emulator.
package device

// MemFlag describes how a kernel may access a device buffer.
type MemFlag int

const (
	MemReadOnly MemFlag = 1 << iota
	MemWriteOnly
	MemReadWrite
	// MemCopyHostPtr initializes the buffer from host memory at creation.
	MemCopyHostPtr
)

// Driver lists the compute platforms available on the host.
type Driver interface {
	Platforms() ([]Platform, error)
}

// Platform is one vendor implementation exposed by the driver.
type Platform interface {
	Info() PlatformInfo
	// GPUDevices lists GPU-class devices. An empty list is not an error.
	GPUDevices() ([]Device, error)
}

// Device is a single compute device.
type Device interface {
	Info() (DeviceInfo, error)
	MaxWorkGroupSize() (int, error)
	CreateContext() (Context, error)
}

// Context owns every resource created for one dispatch call.
type Context interface {
	CreateQueue() (Queue, error)
	CreateProgram(source string) (Program, error)
	// CreateBuffer allocates size bytes. init is copied into the buffer when
	// flags include MemCopyHostPtr.
	CreateBuffer(flags MemFlag, size int, init []byte) (Buffer, error)
	Release()
}

// Queue is the ordered command channel for one context.
// WriteBuffer and ReadBuffer block until the transfer has completed.
type Queue interface {
	WriteBuffer(buf Buffer, data []byte) error
	ReadBuffer(buf Buffer, dst []byte) error
	EnqueueKernel(k Kernel, global, local int) error
	// Finish blocks until every previously enqueued command has completed.
	Finish() error
	Release()
}

// Program is a compilable source unit.
type Program interface {
	// Build compiles the program. Compile failures are reported as
	// *BuildLogError carrying the compiler output.
	Build(options string) error
	CreateKernel(name string) (Kernel, error)
	Release()
}

// Kernel is a compiled entry point with positional arguments.
type Kernel interface {
	SetArgInt32(index int, v int32) error
	SetArgUint64(index int, v uint64) error
	SetArgBuffer(index int, b Buffer) error
	Release()
}

// Buffer is device memory.
type Buffer interface {
	Size() int
	Release()
}
