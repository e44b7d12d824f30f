package emulator

import (
	"encoding/binary"
	"sync"

	"github.com/cwbudde/keccakminer/internal/pow"
)

// KernelFunc is the body of an emulated kernel, run once per work-item.
type KernelFunc func(item WorkItem) error

// WorkItem identifies one lane of a launch and exposes the kernel arguments
// bound at enqueue time.
type WorkItem struct {
	GlobalID   int
	LocalID    int
	GroupID    int
	GlobalSize int
	LocalSize  int

	args []arg
}

func (w WorkItem) lookup(index int) arg {
	if index < 0 || index >= len(w.args) {
		return arg{}
	}
	return w.args[index]
}

// Int32 returns argument index as an int, or 0 when unset.
func (w WorkItem) Int32(index int) int32 {
	return w.lookup(index).i32
}

// Uint64 returns argument index as a ulong, or 0 when unset.
func (w WorkItem) Uint64(index int) uint64 {
	return w.lookup(index).u64
}

// Buffer returns the memory bound to argument index, or nil.
func (w WorkItem) Buffer(index int) *Memory {
	a := w.lookup(index)
	if a.buf == nil {
		return nil
	}
	return a.buf.mem
}

// Memory is the backing store of an emulated buffer. All accessors are safe
// for concurrent work-items.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

// Len returns the buffer size in bytes.
func (m *Memory) Len() int {
	return len(m.data)
}

// Load copies n bytes starting at off.
func (m *Memory) Load(off, n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, n)
	copy(out, m.data[off:off+n])
	return out
}

// Store copies p into the buffer at off.
func (m *Memory) Store(off int, p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.data[off:off+len(p)], p)
}

// CompareAndSwapInt32 is atomic_cmpxchg on a little-endian int at off.
func (m *Memory) CompareAndSwapInt32(off int, old, val int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := int32(binary.LittleEndian.Uint32(m.data[off : off+4]))
	if cur != old {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[off:off+4], uint32(val))
	return true
}

// SearchKernel is the Go rendition of the shipped "run" kernel. Arguments:
//
//	0 int    message length
//	1 ulong  start nonce
//	2 int    nonce offset in the message
//	3 ulong  batch size
//	4 int    difficulty
//	5 uchar* message
//	6 int*   found flag
//	7 uchar* digest (32 bytes)
//	8 ulong* nonce
func SearchKernel(item WorkItem) error {
	gid := uint64(item.GlobalID)
	if gid >= item.Uint64(3) {
		return nil
	}

	size := int(item.Int32(0))
	offset := int(item.Int32(2))
	if size > pow.MaxMessageSize || offset < 0 || offset+pow.NonceSize > size {
		return nil
	}
	msg := item.Buffer(5).Load(0, size)
	nonce := item.Uint64(1) + gid
	if err := pow.PutNonce(msg, offset, nonce); err != nil {
		return err
	}

	digest := pow.Keccak256(msg)
	if !pow.MeetsDifficulty(digest, int(item.Int32(4))) {
		return nil
	}
	if item.Buffer(6).CompareAndSwapInt32(0, 0, 1) {
		item.Buffer(7).Store(0, digest[:])
		var nb [8]byte
		binary.LittleEndian.PutUint64(nb[:], nonce)
		item.Buffer(8).Store(0, nb[:])
	}
	return nil
}

// FixedResultKernel returns a kernel whose first work-item always reports
// digest and nonce as a match.
func FixedResultKernel(digest [32]byte, nonce uint64) KernelFunc {
	return func(item WorkItem) error {
		if item.GlobalID != 0 {
			return nil
		}
		if item.Buffer(6).CompareAndSwapInt32(0, 0, 1) {
			item.Buffer(7).Store(0, digest[:])
			var nb [8]byte
			binary.LittleEndian.PutUint64(nb[:], nonce)
			item.Buffer(8).Store(0, nb[:])
		}
		return nil
	}
}

// NeverFoundKernel never touches the result buffers.
func NeverFoundKernel(WorkItem) error { return nil }
