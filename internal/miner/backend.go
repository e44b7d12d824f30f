// Package miner drives a nonce search batch after batch on a chosen
// backend until a qualifying nonce is found or the caller stops it.
package miner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/cwbudde/keccakminer/internal/device/emulator"
	"github.com/cwbudde/keccakminer/internal/device/opencl"
	"github.com/cwbudde/keccakminer/internal/dispatch"
	"github.com/cwbudde/keccakminer/internal/pow"
)

// Backend identifies a search implementation.
type Backend string

const (
	BackendCPU      Backend = "cpu"
	BackendOpenCL   Backend = "opencl"
	BackendEmulator Backend = "emulator"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown mining backend")
	// ErrBackendUnavailable indicates the backend is not available in this build.
	ErrBackendUnavailable = errors.New("mining backend unavailable")
)

var noopCleanup = func() {}

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cpu":
		return BackendCPU
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	case "emulator", "emu":
		return BackendEmulator
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendCPU, BackendOpenCL, BackendEmulator}
}

// Batch is one bounded range of nonces over a prepared message.
type Batch struct {
	Message     []byte
	NonceOffset int
	StartNonce  uint64
	Size        uint64
	Difficulty  int
	// First is set on the first batch of a run.
	First bool
}

// Searcher tries every nonce of a batch.
type Searcher interface {
	Name() string
	SearchBatch(ctx context.Context, b Batch) (pow.Solution, bool, error)
}

// Options configure the searcher built by NewSearcher.
type Options struct {
	// Threads is the work-group size on device backends and the worker
	// count on the CPU backend.
	Threads  int
	Platform string
	Device   int
	// Verbose prints platform and device diagnostics before the first batch.
	Verbose  bool
	Observer device.Observer
	// KernelDir loads kernel.cl and utils/keccak.cl from a directory on disk
	// instead of the embedded sources.
	KernelDir    string
	BuildOptions string
	Logger       *slog.Logger
}

// NewSearcher constructs the requested searcher and returns an optional cleanup hook.
func NewSearcher(name string, opts Options) (Searcher, func(), error) {
	backend := NormalizeBackend(name)

	switch backend {
	case BackendCPU:
		return newCPUSearcher(opts.Threads), noopCleanup, nil
	case BackendOpenCL:
		drv, err := opencl.New()
		if err != nil {
			return nil, noopCleanup, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		return newDispatchSearcher(backend, drv, opts), noopCleanup, nil
	case BackendEmulator:
		return newDispatchSearcher(backend, emulator.New(emulator.Config{}), opts), noopCleanup, nil
	default:
		return nil, noopCleanup, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// NewDeviceSearcher runs batches through a dispatch engine on drv.
func NewDeviceSearcher(drv device.Driver, opts Options) Searcher {
	return newDispatchSearcher(BackendOpenCL, drv, opts)
}

func newDispatchSearcher(backend Backend, drv device.Driver, opts Options) *dispatchSearcher {
	var engineOpts []dispatch.Option
	if opts.Observer != nil {
		engineOpts = append(engineOpts, dispatch.WithObserver(opts.Observer))
	}
	if opts.KernelDir != "" {
		engineOpts = append(engineOpts, dispatch.WithSources(os.DirFS(opts.KernelDir)))
	}
	if opts.BuildOptions != "" {
		engineOpts = append(engineOpts, dispatch.WithBuildOptions(opts.BuildOptions))
	}
	if opts.Logger != nil {
		engineOpts = append(engineOpts, dispatch.WithLogger(opts.Logger))
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = DefaultThreads
	}
	return &dispatchSearcher{
		name:     string(backend),
		engine:   dispatch.NewEngine(drv, engineOpts...),
		platform: opts.Platform,
		device:   opts.Device,
		threads:  threads,
		verbose:  opts.Verbose,
	}
}
