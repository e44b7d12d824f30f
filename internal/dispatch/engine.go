// Package dispatch runs one bounded nonce-search batch on a compute device.
//
// A call walks a fixed pipeline: select the device, build the program,
// allocate and bind buffers, size the launch, enqueue, wait for completion
// and read the result back. Every device handle lives for one call only and
// is released on every return path, in reverse acquisition order.
package dispatch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"

	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/cwbudde/keccakminer/internal/kernels"
)

// Engine executes dispatch requests against a driver. An Engine holds no
// device state between calls, so concurrent calls are independent.
type Engine struct {
	driver       device.Driver
	sources      fs.FS
	buildOptions string
	observer     device.Observer
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSources loads kernel.cl and utils/keccak.cl from fsys instead of the
// embedded copies.
func WithSources(fsys fs.FS) Option {
	return func(e *Engine) { e.sources = fsys }
}

// WithBuildOptions replaces DefaultBuildOptions.
func WithBuildOptions(options string) Option {
	return func(e *Engine) { e.buildOptions = options }
}

// WithObserver routes device diagnostics to o.
func WithObserver(o device.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger used for build logs and dispatch failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine for driver.
func NewEngine(driver device.Driver, opts ...Option) *Engine {
	e := &Engine{
		driver:       driver,
		sources:      kernels.FS,
		buildOptions: DefaultBuildOptions,
		observer:     device.NopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Execute runs one batch. On error the returned Result has OutcomeError and
// the error wraps one of the device error kinds. Setup failures wrap
// device.ErrSetup; deciding whether they are fatal is left to the caller.
func (e *Engine) Execute(req Request) (Result, error) {
	failed := Result{Outcome: OutcomeError}
	if err := req.Validate(); err != nil {
		return failed, err
	}

	sel, err := device.NewEnumerator(e.driver).Select(req.PlatformHint, req.DeviceIndex)
	if err != nil {
		return failed, err
	}

	if req.ShowDeviceInfo {
		e.observer.PlatformsListed(sel.PlatformNames, sel.PlatformIndex)
		info, err := sel.Device.Info()
		if err != nil {
			return failed, fmt.Errorf("%w: query device %d: %w", device.ErrSetup, sel.DeviceIndex, err)
		}
		e.observer.DeviceSelected(sel.DeviceIndex, info)
	}

	var res device.Resources
	defer res.Release()

	if res.Context, err = sel.Device.CreateContext(); err != nil {
		return failed, fmt.Errorf("%w: create context: %w", device.ErrSetup, err)
	}
	if res.Queue, err = res.Context.CreateQueue(); err != nil {
		return failed, fmt.Errorf("%w: create command queue: %w", device.ErrSetup, err)
	}

	source, err := LoadSource(e.sources)
	if err != nil {
		e.log().Error("Failed to load kernel sources", "error", err)
		return failed, err
	}
	if err := buildKernel(&res, source, e.buildOptions); err != nil {
		var logErr *device.BuildLogError
		if errors.As(err, &logErr) {
			e.log().Error("Kernel build error", "platform", sel.PlatformNames[sel.PlatformIndex], "device", sel.DeviceIndex, "log", logErr.Log)
		}
		return failed, err
	}

	set, err := allocateBuffers(&res, req.Message)
	if err != nil {
		return failed, err
	}
	if err := resetFound(res.Queue, set); err != nil {
		return failed, err
	}
	if err := newKernelArgs(req, set).bind(res.Kernel); err != nil {
		return failed, err
	}

	maxWG, err := sel.Device.MaxWorkGroupSize()
	if err != nil {
		return failed, fmt.Errorf("%w: query max work-group size: %w", device.ErrDispatch, err)
	}
	local, global := Partition(req.BatchSize, req.ThreadsPerBlock, maxWG)
	if global < req.BatchSize || global > math.MaxInt {
		return failed, fmt.Errorf("%w: batch size %d does not fit the launch range", device.ErrInvalidParams, req.BatchSize)
	}

	if err := res.Queue.EnqueueKernel(res.Kernel, int(global), local); err != nil {
		return failed, fmt.Errorf("%w: enqueue %s (global=%d local=%d): %w", device.ErrDispatch, EntryPoint, global, local, err)
	}
	if err := res.Queue.Finish(); err != nil {
		return failed, fmt.Errorf("%w: wait for completion: %w", device.ErrDispatch, err)
	}

	result, err := readResult(res.Queue, set)
	if err != nil {
		return failed, err
	}

	e.log().Debug("Batch dispatched",
		"start_nonce", req.StartNonce,
		"batch", req.BatchSize,
		"global", global,
		"local", local,
		"outcome", result.Outcome.String(),
	)
	return result, nil
}

// ExecuteKernel runs req and returns -1 on error, 0 when no nonce in the
// batch qualifies and 1 when one does. digest and nonce are written only in
// the last case. Errors are logged rather than returned.
func (e *Engine) ExecuteKernel(req Request, digest []byte, nonce *uint64) int {
	res, err := e.Execute(req)
	if err != nil {
		e.log().Error("Dispatch failed", "error", err)
		return int(OutcomeError)
	}
	if res.Outcome == OutcomeFound {
		copy(digest, res.Digest[:])
		if nonce != nil {
			*nonce = res.Nonce
		}
	}
	return res.Code()
}
