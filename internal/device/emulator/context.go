package emulator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cwbudde/keccakminer/internal/device"
)

var errReleased = errors.New("use of released handle")

type emuContext struct {
	drv      *Driver
	dev      *emuDevice
	released bool

	mu      sync.Mutex
	buffers int
}

func (c *emuContext) CreateQueue() (device.Queue, error) {
	if c.released {
		return nil, fmt.Errorf("create queue: %w", errReleased)
	}
	if err := c.drv.cfg.Faults.Queue; err != nil {
		return nil, err
	}
	c.drv.state.acquire(KindQueue)
	return &queue{drv: c.drv, dev: c.dev}, nil
}

func (c *emuContext) CreateProgram(source string) (device.Program, error) {
	if c.released {
		return nil, fmt.Errorf("create program: %w", errReleased)
	}
	if err := c.drv.cfg.Faults.Program; err != nil {
		return nil, err
	}
	c.drv.state.acquire(KindProgram)
	return &program{drv: c.drv, source: source}, nil
}

func (c *emuContext) CreateBuffer(flags device.MemFlag, size int, init []byte) (device.Buffer, error) {
	if c.released {
		return nil, fmt.Errorf("create buffer: %w", errReleased)
	}
	c.mu.Lock()
	c.buffers++
	n := c.buffers
	c.mu.Unlock()
	if at := c.drv.cfg.Faults.BufferAt; at > 0 && n == at {
		return nil, fmt.Errorf("CL_MEM_OBJECT_ALLOCATION_FAILURE (buffer %d)", n)
	}
	if size <= 0 {
		return nil, fmt.Errorf("CL_INVALID_BUFFER_SIZE: %d", size)
	}

	mem := &Memory{data: make([]byte, size)}
	if flags&device.MemCopyHostPtr != 0 {
		if len(init) < size {
			return nil, fmt.Errorf("CL_INVALID_HOST_PTR: %d bytes for %d byte buffer", len(init), size)
		}
		copy(mem.data, init)
	}

	c.drv.state.mu.Lock()
	c.drv.state.nextBufferID++
	id := c.drv.state.nextBufferID
	c.drv.state.mu.Unlock()
	c.drv.state.acquire(KindBuffer)

	return &buffer{drv: c.drv, id: id, flags: flags, mem: mem}, nil
}

func (c *emuContext) Release() {
	c.drv.state.release(KindContext, &c.released)
}

type buffer struct {
	drv      *Driver
	id       int
	flags    device.MemFlag
	mem      *Memory
	released bool
}

func (b *buffer) Size() int { return len(b.mem.data) }

func (b *buffer) Release() {
	b.drv.state.release(KindBuffer, &b.released)
}

func (b *buffer) String() string {
	return fmt.Sprintf("buf%d", b.id)
}

type program struct {
	drv      *Driver
	source   string
	built    bool
	released bool
}

func (p *program) Build(options string) error {
	if p.released {
		return fmt.Errorf("build: %w", errReleased)
	}
	p.drv.state.mu.Lock()
	p.drv.state.buildOptions = append(p.drv.state.buildOptions, options)
	p.drv.state.mu.Unlock()

	if log := compileLog(p.source); log != "" {
		return &device.BuildLogError{Log: log}
	}
	p.built = true
	return nil
}

// compileLog reports #error directives the way a device compiler would.
func compileLog(source string) string {
	var b strings.Builder
	for i, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if msg, ok := strings.CutPrefix(trimmed, "#error"); ok {
			fmt.Fprintf(&b, "<source>:%d:2: error: %s\n", i+1, strings.TrimSpace(msg))
		}
	}
	return b.String()
}

func (p *program) CreateKernel(name string) (device.Kernel, error) {
	if p.released {
		return nil, fmt.Errorf("create kernel: %w", errReleased)
	}
	if !p.built {
		return nil, fmt.Errorf("CL_INVALID_PROGRAM_EXECUTABLE: program not built")
	}
	if err := p.drv.cfg.Faults.Kernel; err != nil {
		return nil, err
	}
	fn, ok := p.drv.cfg.Kernels[name]
	if !ok || !strings.Contains(p.source, "kernel void "+name+"(") {
		return nil, fmt.Errorf("CL_INVALID_KERNEL_NAME: %s", name)
	}
	p.drv.state.acquire(KindKernel)
	return &kernel{drv: p.drv, name: name, fn: fn, args: make(map[int]arg)}, nil
}

func (p *program) Release() {
	p.drv.state.release(KindProgram, &p.released)
}

type argKind int

const (
	argInt32 argKind = iota + 1
	argUint64
	argBuffer
)

type arg struct {
	kind argKind
	i32  int32
	u64  uint64
	buf  *buffer
}

type kernel struct {
	drv      *Driver
	name     string
	fn       KernelFunc
	released bool

	mu      sync.Mutex
	args    map[int]arg
	setArgs int
}

func (k *kernel) set(index int, a arg) error {
	if k.released {
		return fmt.Errorf("set arg %d: %w", index, errReleased)
	}
	if index < 0 {
		return fmt.Errorf("CL_INVALID_ARG_INDEX: %d", index)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.setArgs++
	if at := k.drv.cfg.Faults.SetArgAt; at > 0 && k.setArgs == at {
		return fmt.Errorf("CL_INVALID_ARG_VALUE: argument %d", index)
	}
	k.args[index] = a
	return nil
}

func (k *kernel) SetArgInt32(index int, v int32) error {
	return k.set(index, arg{kind: argInt32, i32: v})
}

func (k *kernel) SetArgUint64(index int, v uint64) error {
	return k.set(index, arg{kind: argUint64, u64: v})
}

func (k *kernel) SetArgBuffer(index int, b device.Buffer) error {
	buf, ok := b.(*buffer)
	if !ok {
		return fmt.Errorf("CL_INVALID_MEM_OBJECT: %T", b)
	}
	if buf.released {
		return fmt.Errorf("set arg %d: %w", index, errReleased)
	}
	return k.set(index, arg{kind: argBuffer, buf: buf})
}

func (k *kernel) snapshot() []arg {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for i := range k.args {
		if i+1 > n {
			n = i + 1
		}
	}
	out := make([]arg, n)
	for i, a := range k.args {
		out[i] = a
	}
	return out
}

func (k *kernel) Release() {
	k.drv.state.release(KindKernel, &k.released)
}
