//go:build gpu

package opencl

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/jgillich/go-opencl/cl"
)

// Driver enumerates OpenCL platforms through the ICD loader.
type Driver struct{}

// New returns the OpenCL driver.
func New() (*Driver, error) {
	return &Driver{}, nil
}

// Available reports whether the OpenCL driver was compiled in.
func Available() bool { return true }

// Platforms lists every installed OpenCL platform.
func (*Driver) Platforms() ([]device.Platform, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("clGetPlatformIDs: %w", err)
	}
	out := make([]device.Platform, len(platforms))
	for i, p := range platforms {
		out[i] = &platform{p: p}
	}
	return out, nil
}

type platform struct {
	p *cl.Platform
}

func (p *platform) Info() device.PlatformInfo {
	return device.PlatformInfo{
		Name:    p.p.Name(),
		Vendor:  p.p.Vendor(),
		Version: p.p.Version(),
	}
}

func (p *platform) GPUDevices() ([]device.Device, error) {
	devices, err := p.p.GetDevices(cl.DeviceTypeGPU)
	if errors.Is(err, cl.ErrDeviceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clGetDeviceIDs: %w", err)
	}
	out := make([]device.Device, len(devices))
	for i, d := range devices {
		out[i] = &clDevice{d: d}
	}
	return out, nil
}

type clDevice struct {
	d *cl.Device
}

func (d *clDevice) Info() (device.DeviceInfo, error) {
	return device.DeviceInfo{
		Name:             d.d.Name(),
		Vendor:           d.d.Vendor(),
		Version:          d.d.Version(),
		Type:             mapDeviceType(d.d.Type()),
		MaxComputeUnits:  uint32(d.d.MaxComputeUnits()),
		MaxWorkGroupSize: d.d.MaxWorkGroupSize(),
		MaxWorkItemSizes: d.d.MaxWorkItemSizes(),
		GlobalMemSize:    uint64(d.d.GlobalMemSize()),
	}, nil
}

func (d *clDevice) MaxWorkGroupSize() (int, error) {
	n := d.d.MaxWorkGroupSize()
	if n <= 0 {
		return 0, fmt.Errorf("clGetDeviceInfo(maxWorkGroupSize): invalid value %d", n)
	}
	return n, nil
}

func (d *clDevice) CreateContext() (device.Context, error) {
	ctx, err := cl.CreateContext([]*cl.Device{d.d})
	if err != nil {
		return nil, fmt.Errorf("clCreateContext: %w", err)
	}
	return &context{ctx: ctx, dev: d.d}, nil
}

func mapDeviceType(dt cl.DeviceType) device.DeviceType {
	switch {
	case dt&cl.DeviceTypeGPU != 0:
		return device.DeviceTypeGPU
	case dt&cl.DeviceTypeCPU != 0:
		return device.DeviceTypeCPU
	case dt&cl.DeviceTypeAccelerator != 0:
		return device.DeviceTypeAccelerator
	case dt&cl.DeviceTypeDefault != 0:
		return device.DeviceTypeDefault
	default:
		return device.DeviceTypeUnknown
	}
}

type context struct {
	ctx *cl.Context
	dev *cl.Device
}

func (c *context) CreateQueue() (device.Queue, error) {
	q, err := c.ctx.CreateCommandQueue(c.dev, 0)
	if err != nil {
		return nil, fmt.Errorf("clCreateCommandQueue: %w", err)
	}
	return &queue{q: q}, nil
}

func (c *context) CreateProgram(source string) (device.Program, error) {
	p, err := c.ctx.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, fmt.Errorf("clCreateProgramWithSource: %w", err)
	}
	return &program{p: p, dev: c.dev}, nil
}

func (c *context) CreateBuffer(flags device.MemFlag, size int, init []byte) (device.Buffer, error) {
	clFlags := mapMemFlags(flags)
	var (
		mem *cl.MemObject
		err error
	)
	if flags&device.MemCopyHostPtr != 0 {
		if len(init) < size {
			return nil, fmt.Errorf("clCreateBuffer: host data has %d bytes, need %d", len(init), size)
		}
		mem, err = c.ctx.CreateBufferUnsafe(clFlags, size, unsafe.Pointer(&init[0]))
	} else {
		mem, err = c.ctx.CreateEmptyBuffer(clFlags, size)
	}
	if err != nil {
		return nil, fmt.Errorf("clCreateBuffer(%d bytes): %w", size, err)
	}
	return &buffer{mem: mem, size: size}, nil
}

func (c *context) Release() {
	c.ctx.Release()
}

func mapMemFlags(flags device.MemFlag) cl.MemFlag {
	var out cl.MemFlag
	if flags&device.MemReadOnly != 0 {
		out |= cl.MemReadOnly
	}
	if flags&device.MemWriteOnly != 0 {
		out |= cl.MemWriteOnly
	}
	if flags&device.MemReadWrite != 0 {
		out |= cl.MemReadWrite
	}
	if flags&device.MemCopyHostPtr != 0 {
		out |= cl.MemCopyHostPtr
	}
	return out
}

type buffer struct {
	mem  *cl.MemObject
	size int
}

func (b *buffer) Size() int { return b.size }

func (b *buffer) Release() {
	b.mem.Release()
}

type program struct {
	p   *cl.Program
	dev *cl.Device
}

func (p *program) Build(options string) error {
	err := p.p.BuildProgram([]*cl.Device{p.dev}, options)
	if err == nil {
		return nil
	}
	var buildErr cl.BuildError
	if errors.As(err, &buildErr) {
		return &device.BuildLogError{Log: string(buildErr)}
	}
	return fmt.Errorf("clBuildProgram: %w", err)
}

func (p *program) CreateKernel(name string) (device.Kernel, error) {
	k, err := p.p.CreateKernel(name)
	if err != nil {
		return nil, fmt.Errorf("clCreateKernel(%s): %w", name, err)
	}
	return &kernel{k: k}, nil
}

func (p *program) Release() {
	p.p.Release()
}

type kernel struct {
	k *cl.Kernel
}

func (k *kernel) SetArgInt32(index int, v int32) error {
	return k.k.SetArgInt32(index, v)
}

func (k *kernel) SetArgUint64(index int, v uint64) error {
	return k.k.SetArgUnsafe(index, int(unsafe.Sizeof(v)), unsafe.Pointer(&v))
}

func (k *kernel) SetArgBuffer(index int, b device.Buffer) error {
	buf, ok := b.(*buffer)
	if !ok {
		return fmt.Errorf("clSetKernelArg(%d): foreign buffer %T", index, b)
	}
	return k.k.SetArgBuffer(index, buf.mem)
}

func (k *kernel) Release() {
	k.k.Release()
}

type queue struct {
	q *cl.CommandQueue
}

func (q *queue) WriteBuffer(b device.Buffer, data []byte) error {
	buf, ok := b.(*buffer)
	if !ok {
		return fmt.Errorf("clEnqueueWriteBuffer: foreign buffer %T", b)
	}
	if len(data) == 0 {
		return nil
	}
	ev, err := q.q.EnqueueWriteBuffer(buf.mem, true, 0, len(data), unsafe.Pointer(&data[0]), nil)
	if err != nil {
		return fmt.Errorf("clEnqueueWriteBuffer: %w", err)
	}
	releaseEvent(ev)
	return nil
}

func (q *queue) ReadBuffer(b device.Buffer, dst []byte) error {
	buf, ok := b.(*buffer)
	if !ok {
		return fmt.Errorf("clEnqueueReadBuffer: foreign buffer %T", b)
	}
	if len(dst) == 0 {
		return nil
	}
	ev, err := q.q.EnqueueReadBuffer(buf.mem, true, 0, len(dst), unsafe.Pointer(&dst[0]), nil)
	if err != nil {
		return fmt.Errorf("clEnqueueReadBuffer: %w", err)
	}
	releaseEvent(ev)
	return nil
}

func (q *queue) EnqueueKernel(k device.Kernel, global, local int) error {
	kern, ok := k.(*kernel)
	if !ok {
		return fmt.Errorf("clEnqueueNDRangeKernel: foreign kernel %T", k)
	}
	ev, err := q.q.EnqueueNDRangeKernel(kern.k, nil, []int{global}, []int{local}, nil)
	if err != nil {
		return fmt.Errorf("clEnqueueNDRangeKernel: %w", err)
	}
	releaseEvent(ev)
	return nil
}

func (q *queue) Finish() error {
	if err := q.q.Finish(); err != nil {
		return fmt.Errorf("clFinish: %w", err)
	}
	return nil
}

func (q *queue) Release() {
	q.q.Release()
}

func releaseEvent(ev *cl.Event) {
	if ev != nil {
		ev.Release()
	}
}
