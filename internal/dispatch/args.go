package dispatch

import (
	"fmt"

	"github.com/cwbudde/keccakminer/internal/device"
)

// kernelArgs is the argument list of the "run" kernel. Field order is the
// argument order; list is the only place that maps one to the other.
type kernelArgs struct {
	DataSize    int32
	StartNonce  uint64
	NonceOffset int32
	BatchSize   uint64
	Difficulty  int32
	Data        device.Buffer
	Found       device.Buffer
	Digest      device.Buffer
	Nonce       device.Buffer
}

type kernelArg interface {
	bind(k device.Kernel, index int) error
}

type int32Arg int32

func (a int32Arg) bind(k device.Kernel, index int) error {
	return k.SetArgInt32(index, int32(a))
}

type uint64Arg uint64

func (a uint64Arg) bind(k device.Kernel, index int) error {
	return k.SetArgUint64(index, uint64(a))
}

type bufferArg struct {
	buf device.Buffer
}

func (a bufferArg) bind(k device.Kernel, index int) error {
	return k.SetArgBuffer(index, a.buf)
}

func (a kernelArgs) list() []kernelArg {
	return []kernelArg{
		int32Arg(a.DataSize),
		uint64Arg(a.StartNonce),
		int32Arg(a.NonceOffset),
		uint64Arg(a.BatchSize),
		int32Arg(a.Difficulty),
		bufferArg{a.Data},
		bufferArg{a.Found},
		bufferArg{a.Digest},
		bufferArg{a.Nonce},
	}
}

func (a kernelArgs) bind(k device.Kernel) error {
	for i, arg := range a.list() {
		if err := arg.bind(k, i); err != nil {
			return fmt.Errorf("%w: kernel argument %d: %w", device.ErrDispatch, i, err)
		}
	}
	return nil
}

func newKernelArgs(req Request, set bufferSet) kernelArgs {
	return kernelArgs{
		DataSize:    int32(len(req.Message)),
		StartNonce:  req.StartNonce,
		NonceOffset: req.NonceOffset,
		BatchSize:   req.BatchSize,
		Difficulty:  req.Difficulty,
		Data:        set.data,
		Found:       set.found,
		Digest:      set.digest,
		Nonce:       set.nonce,
	}
}
