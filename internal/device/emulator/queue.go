package emulator

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cwbudde/keccakminer/internal/device"
	"golang.org/x/sync/errgroup"
)

type queue struct {
	drv      *Driver
	dev      *emuDevice
	released bool

	mu   sync.Mutex
	tail chan struct{}
	err  error
}

// submit appends fn to the in-order command stream and returns a channel
// closed once it has run.
func (q *queue) submit(fn func() error) <-chan struct{} {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := fn(); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
	}()
	return done
}

func (q *queue) drain() error {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()
	if tail != nil {
		<-tail
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *queue) WriteBuffer(b device.Buffer, data []byte) error {
	buf, err := q.checkBuffer(b)
	if err != nil {
		return err
	}
	q.drv.state.command("write(%s,%d)", buf, len(data))
	if err := q.drv.cfg.Faults.Write; err != nil {
		return err
	}
	if len(data) > buf.Size() {
		return fmt.Errorf("CL_INVALID_VALUE: write of %d bytes into %d byte buffer", len(data), buf.Size())
	}

	<-q.submit(func() error {
		buf.mem.Store(0, data)
		return nil
	})
	return nil
}

func (q *queue) ReadBuffer(b device.Buffer, dst []byte) error {
	buf, err := q.checkBuffer(b)
	if err != nil {
		return err
	}
	q.drv.state.command("read(%s,%d)", buf, len(dst))
	if err := q.drv.cfg.Faults.Read; err != nil {
		return err
	}
	if len(dst) > buf.Size() {
		return fmt.Errorf("CL_INVALID_VALUE: read of %d bytes from %d byte buffer", len(dst), buf.Size())
	}

	<-q.submit(func() error {
		copy(dst, buf.mem.Load(0, len(dst)))
		return nil
	})
	return nil
}

func (q *queue) EnqueueKernel(k device.Kernel, global, local int) error {
	if q.released {
		return fmt.Errorf("enqueue: %w", errReleased)
	}
	kern, ok := k.(*kernel)
	if !ok {
		return fmt.Errorf("CL_INVALID_KERNEL: %T", k)
	}
	q.drv.state.command("ndrange(%s,%d,%d)", kern.name, global, local)
	if err := q.drv.cfg.Faults.Enqueue; err != nil {
		return err
	}
	if local <= 0 || global <= 0 || global%local != 0 || local > q.dev.info.MaxWorkGroupSize {
		return fmt.Errorf("CL_INVALID_WORK_GROUP_SIZE: global=%d local=%d max=%d", global, local, q.dev.info.MaxWorkGroupSize)
	}

	args := kern.snapshot()
	q.drv.state.mu.Lock()
	q.drv.state.launches = append(q.drv.state.launches, Launch{Kernel: kern.name, Global: global, Local: local})
	q.drv.state.mu.Unlock()

	q.submit(func() error {
		return runNDRange(kern.name, kern.fn, args, global, local)
	})
	return nil
}

func runNDRange(name string, fn KernelFunc, args []arg, global, local int) error {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for group := 0; group < global/local; group++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("kernel %s: work-group %d panicked: %v", name, group, r)
				}
			}()
			for lid := 0; lid < local; lid++ {
				item := WorkItem{
					GlobalID:   group*local + lid,
					LocalID:    lid,
					GroupID:    group,
					GlobalSize: global,
					LocalSize:  local,
					args:       args,
				}
				if err := fn(item); err != nil {
					return fmt.Errorf("kernel %s: work-item %d: %w", name, item.GlobalID, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (q *queue) Finish() error {
	if q.released {
		return fmt.Errorf("finish: %w", errReleased)
	}
	q.drv.state.command("finish")
	err := q.drain()
	if ferr := q.drv.cfg.Faults.Finish; ferr != nil {
		return ferr
	}
	return err
}

func (q *queue) Release() {
	if !q.released {
		q.drain()
	}
	q.drv.state.release(KindQueue, &q.released)
}

func (q *queue) checkBuffer(b device.Buffer) (*buffer, error) {
	if q.released {
		return nil, fmt.Errorf("transfer: %w", errReleased)
	}
	buf, ok := b.(*buffer)
	if !ok {
		return nil, fmt.Errorf("CL_INVALID_MEM_OBJECT: %T", b)
	}
	if buf.released {
		return nil, fmt.Errorf("transfer on %s: %w", buf, errReleased)
	}
	return buf, nil
}
