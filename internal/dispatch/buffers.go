package dispatch

import (
	"encoding/binary"
	"fmt"

	"github.com/cwbudde/keccakminer/internal/device"
)

const (
	// DigestSize is the size of the output digest buffer.
	DigestSize = 32
	nonceSize  = 8
	flagSize   = 4
)

// bufferSet holds the four device buffers of one call.
type bufferSet struct {
	data   device.Buffer
	found  device.Buffer
	digest device.Buffer
	nonce  device.Buffer
}

// allocateBuffers creates the buffers in res.Context, recording each in res
// as soon as it exists.
func allocateBuffers(res *device.Resources, message []byte) (bufferSet, error) {
	var set bufferSet
	specs := []struct {
		name  string
		dst   *device.Buffer
		flags device.MemFlag
		size  int
		init  []byte
	}{
		{"data", &set.data, device.MemReadOnly | device.MemCopyHostPtr, len(message), message},
		{"found", &set.found, device.MemReadWrite, flagSize, nil},
		{"digest", &set.digest, device.MemWriteOnly, DigestSize, nil},
		{"nonce", &set.nonce, device.MemWriteOnly, nonceSize, nil},
	}
	for _, s := range specs {
		buf, err := res.Context.CreateBuffer(s.flags, s.size, s.init)
		if err != nil {
			return bufferSet{}, fmt.Errorf("%w: %s buffer (%d bytes): %w", device.ErrAllocation, s.name, s.size, err)
		}
		res.AddBuffer(buf)
		*s.dst = buf
	}
	return set, nil
}

// resetFound writes 0 into the found flag and waits for the write.
func resetFound(q device.Queue, set bufferSet) error {
	var zero [flagSize]byte
	if err := q.WriteBuffer(set.found, zero[:]); err != nil {
		return fmt.Errorf("%w: reset found flag: %w", device.ErrDispatch, err)
	}
	return nil
}

// readResult reads the found flag and, only when it is 1, the digest and
// nonce. It must run after the queue has finished.
func readResult(q device.Queue, set bufferSet) (Result, error) {
	res := Result{Outcome: OutcomeError}

	var flag [flagSize]byte
	if err := q.ReadBuffer(set.found, flag[:]); err != nil {
		return res, fmt.Errorf("%w: read found flag: %w", device.ErrDispatch, err)
	}
	if int32(binary.LittleEndian.Uint32(flag[:])) != 1 {
		res.Outcome = OutcomeNotFound
		return res, nil
	}

	var digest [DigestSize]byte
	if err := q.ReadBuffer(set.digest, digest[:]); err != nil {
		return res, fmt.Errorf("%w: read digest: %w", device.ErrDispatch, err)
	}
	var nonce [nonceSize]byte
	if err := q.ReadBuffer(set.nonce, nonce[:]); err != nil {
		return res, fmt.Errorf("%w: read nonce: %w", device.ErrDispatch, err)
	}

	res.Outcome = OutcomeFound
	res.Digest = digest
	res.Nonce = binary.LittleEndian.Uint64(nonce[:])
	return res, nil
}
