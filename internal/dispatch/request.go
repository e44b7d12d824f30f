package dispatch

import (
	"fmt"
	"math"

	"github.com/cwbudde/keccakminer/internal/device"
)

const (
	// MaxMessage mirrors MAX_MESSAGE in kernel.cl. The kernel ignores
	// longer messages.
	MaxMessage = 256
	// NonceSlotSize is the width of the nonce slot the kernel writes.
	NonceSlotSize = 16
)

// Outcome is the tri-state result of one dispatch call.
type Outcome int

const (
	// OutcomeError covers every setup, build, allocation and dispatch failure.
	OutcomeError Outcome = -1
	// OutcomeNotFound means the batch ran to completion without a match.
	OutcomeNotFound Outcome = 0
	// OutcomeFound means a qualifying nonce was read back.
	OutcomeFound Outcome = 1
)

func (o Outcome) String() string {
	switch o {
	case OutcomeError:
		return "error"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeFound:
		return "found"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Request holds the parameters of one bounded unit of device work.
type Request struct {
	// PlatformHint selects a platform by exact name. Empty selects the first.
	PlatformHint string
	// DeviceIndex is the ordinal within the platform's GPU devices.
	DeviceIndex int
	Message     []byte
	StartNonce  uint64
	// NonceOffset is passed to the kernel verbatim. The shipped kernel reads
	// it as the byte offset of the 16-byte nonce slot in Message.
	NonceOffset     int32
	BatchSize       uint64
	Difficulty      int32
	ThreadsPerBlock int
	// ShowDeviceInfo emits platform and device diagnostics to the observer.
	ShowDeviceInfo bool
}

// Validate rejects parameters no device could run.
func (r Request) Validate() error {
	if len(r.Message) == 0 {
		return fmt.Errorf("%w: empty message", device.ErrInvalidParams)
	}
	if len(r.Message) > MaxMessage {
		return fmt.Errorf("%w: message of %d bytes exceeds %d", device.ErrInvalidParams, len(r.Message), MaxMessage)
	}
	if r.BatchSize == 0 {
		return fmt.Errorf("%w: batch size must be positive", device.ErrInvalidParams)
	}
	if r.ThreadsPerBlock <= 0 {
		return fmt.Errorf("%w: threads per block must be positive, got %d", device.ErrInvalidParams, r.ThreadsPerBlock)
	}
	if r.BatchSize > uint64(math.MaxInt)-uint64(r.ThreadsPerBlock) {
		return fmt.Errorf("%w: batch size %d exceeds the launch range", device.ErrInvalidParams, r.BatchSize)
	}
	if r.NonceOffset < 0 {
		return fmt.Errorf("%w: negative nonce offset %d", device.ErrInvalidParams, r.NonceOffset)
	}
	if int(r.NonceOffset)+NonceSlotSize > len(r.Message) {
		return fmt.Errorf("%w: nonce slot [%d,%d) outside message of %d bytes",
			device.ErrInvalidParams, r.NonceOffset, int(r.NonceOffset)+NonceSlotSize, len(r.Message))
	}
	return nil
}

// Result is the outcome of Execute. Digest and Nonce are only meaningful
// when Outcome is OutcomeFound.
type Result struct {
	Outcome Outcome
	Digest  [DigestSize]byte
	Nonce   uint64
}

// Code returns the outcome as -1, 0 or 1.
func (r Result) Code() int {
	return int(r.Outcome)
}
