// Package emulator provides an in-process device.Driver.
//
// Kernels are Go functions registered by name and executed over a 1-D
// index space, one goroutine per work-group. The command queue is in-order
// and asynchronous like a real device queue: EnqueueKernel returns before
// the work completes and only Finish or a blocking transfer waits for it.
//
// The driver keeps counters of live handles and a log of the commands it
// received so tests can check resource hygiene and host ordering.
package emulator

import (
	"fmt"
	"sync"

	"github.com/cwbudde/keccakminer/internal/device"
)

// Kind names a class of device handle.
type Kind string

const (
	KindContext Kind = "context"
	KindQueue   Kind = "queue"
	KindProgram Kind = "program"
	KindKernel  Kind = "kernel"
	KindBuffer  Kind = "buffer"
)

// PlatformSpec describes one emulated platform.
type PlatformSpec struct {
	Name    string
	Devices []device.DeviceInfo
}

// Faults makes selected driver calls fail. Zero values inject nothing.
type Faults struct {
	Platforms error
	Devices   error
	Context   error
	Queue     error
	Program   error
	Kernel    error
	// BufferAt fails the n-th buffer creation (1-based) within a context.
	BufferAt int
	// SetArgAt fails the n-th argument assignment (1-based) on a kernel.
	SetArgAt int
	Write    error
	Enqueue  error
	Finish   error
	Read     error
	// MaxWorkGroupSize fails the work-group size query.
	MaxWorkGroupSize error
}

// Config controls the emulated topology and kernels.
type Config struct {
	Platforms []PlatformSpec
	// Kernels maps entry point names to implementations. Nil installs
	// SearchKernel as "run".
	Kernels map[string]KernelFunc
	Faults  Faults
}

// DefaultDevice is the device used when Config lists no platforms.
var DefaultDevice = device.DeviceInfo{
	Name:             "Emulated GPU",
	Vendor:           "keccakminer",
	Version:          "OpenCL 3.0 emulator",
	Type:             device.DeviceTypeGPU,
	MaxComputeUnits:  8,
	MaxWorkGroupSize: 256,
	MaxWorkItemSizes: []int{256, 256, 64},
	GlobalMemSize:    1 << 30,
}

// DefaultPlatformName names the platform used when Config lists none.
const DefaultPlatformName = "Emulator"

// Driver is the emulated device.Driver.
type Driver struct {
	cfg   Config
	state *state
}

// New builds a driver from cfg.
func New(cfg Config) *Driver {
	if len(cfg.Platforms) == 0 {
		cfg.Platforms = []PlatformSpec{{
			Name:    DefaultPlatformName,
			Devices: []device.DeviceInfo{DefaultDevice},
		}}
	}
	if cfg.Kernels == nil {
		cfg.Kernels = map[string]KernelFunc{"run": SearchKernel}
	}
	return &Driver{cfg: cfg, state: newState()}
}

// Platforms lists the configured platforms.
func (d *Driver) Platforms() ([]device.Platform, error) {
	if d.cfg.Faults.Platforms != nil {
		return nil, d.cfg.Faults.Platforms
	}
	out := make([]device.Platform, len(d.cfg.Platforms))
	for i := range d.cfg.Platforms {
		out[i] = &platform{drv: d, spec: d.cfg.Platforms[i]}
	}
	return out, nil
}

// Live returns the number of handles of kind currently allocated.
func (d *Driver) Live(kind Kind) int {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return d.state.live[kind]
}

// LiveTotal returns the number of handles of any kind still allocated.
func (d *Driver) LiveTotal() int {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	total := 0
	for _, n := range d.state.live {
		total += n
	}
	return total
}

// Allocated returns how many handles of kind were ever created.
func (d *Driver) Allocated(kind Kind) int {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return d.state.allocated[kind]
}

// Releases returns the kinds of released handles in release order.
func (d *Driver) Releases() []Kind {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return append([]Kind(nil), d.state.releases...)
}

// DoubleReleases counts Release calls on already released handles.
func (d *Driver) DoubleReleases() int {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return d.state.doubleReleases
}

// Commands returns the host commands in the order they were issued.
func (d *Driver) Commands() []string {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return append([]string(nil), d.state.commands...)
}

// Launches returns the geometry of every kernel launch.
func (d *Driver) Launches() []Launch {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return append([]Launch(nil), d.state.launches...)
}

// BuildOptions returns the option strings passed to program builds.
func (d *Driver) BuildOptions() []string {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return append([]string(nil), d.state.buildOptions...)
}

// ResetLog clears the command, release and launch logs. Live counters are
// kept.
func (d *Driver) ResetLog() {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.state.commands = nil
	d.state.releases = nil
	d.state.launches = nil
	d.state.buildOptions = nil
}

// Launch records the geometry of one kernel enqueue.
type Launch struct {
	Kernel string
	Global int
	Local  int
}

type state struct {
	mu             sync.Mutex
	live           map[Kind]int
	allocated      map[Kind]int
	releases       []Kind
	doubleReleases int
	commands       []string
	launches       []Launch
	buildOptions   []string
	nextBufferID   int
}

func newState() *state {
	return &state{
		live:      make(map[Kind]int),
		allocated: make(map[Kind]int),
	}
}

func (s *state) acquire(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[kind]++
	s.allocated[kind]++
}

// release records a release and reports whether it was the first one.
func (s *state) release(kind Kind, released *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *released {
		s.doubleReleases++
		return false
	}
	*released = true
	s.live[kind]--
	s.releases = append(s.releases, kind)
	return true
}

func (s *state) command(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, fmt.Sprintf(format, args...))
}

type platform struct {
	drv  *Driver
	spec PlatformSpec
}

func (p *platform) Info() device.PlatformInfo {
	return device.PlatformInfo{
		Name:    p.spec.Name,
		Vendor:  "keccakminer",
		Version: "OpenCL 3.0 emulator",
	}
}

func (p *platform) GPUDevices() ([]device.Device, error) {
	if p.drv.cfg.Faults.Devices != nil {
		return nil, p.drv.cfg.Faults.Devices
	}
	var out []device.Device
	for _, info := range p.spec.Devices {
		if info.Type != "" && info.Type != device.DeviceTypeGPU {
			continue
		}
		out = append(out, &emuDevice{drv: p.drv, info: info})
	}
	return out, nil
}

type emuDevice struct {
	drv  *Driver
	info device.DeviceInfo
}

func (d *emuDevice) Info() (device.DeviceInfo, error) {
	return d.info, nil
}

func (d *emuDevice) MaxWorkGroupSize() (int, error) {
	if err := d.drv.cfg.Faults.MaxWorkGroupSize; err != nil {
		return 0, err
	}
	return d.info.MaxWorkGroupSize, nil
}

func (d *emuDevice) CreateContext() (device.Context, error) {
	if err := d.drv.cfg.Faults.Context; err != nil {
		return nil, err
	}
	d.drv.state.acquire(KindContext)
	return &emuContext{drv: d.drv, dev: d}, nil
}
