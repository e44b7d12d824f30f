package miner

import (
	"context"
	"sync/atomic"

	"github.com/cwbudde/keccakminer/internal/pow"
	"golang.org/x/sync/errgroup"
)

type cpuSearcher struct {
	workers int
}

func newCPUSearcher(workers int) *cpuSearcher {
	if workers <= 0 {
		workers = DefaultThreads
	}
	return &cpuSearcher{workers: workers}
}

func (s *cpuSearcher) Name() string { return string(BackendCPU) }

// SearchBatch splits the batch into contiguous ranges, one per worker. The
// first worker to find a solution stops the others.
func (s *cpuSearcher) SearchBatch(ctx context.Context, b Batch) (pow.Solution, bool, error) {
	workers := uint64(s.workers)
	if workers > b.Size {
		workers = b.Size
	}
	if workers == 0 {
		return pow.Solution{}, false, nil
	}
	chunk := (b.Size + workers - 1) / workers

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		found  atomic.Bool
		winner pow.Solution
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := uint64(0); w < workers; w++ {
		offset := w * chunk
		if offset >= b.Size {
			break
		}
		count := min(chunk, b.Size-offset)
		start := b.StartNonce + offset

		g.Go(func() error {
			sol, ok, err := pow.Search(gctx, b.Message, b.NonceOffset, start, count, b.Difficulty)
			if err != nil {
				if found.Load() {
					return nil
				}
				return err
			}
			if ok && found.CompareAndSwap(false, true) {
				winner = sol
				cancel()
			}
			return nil
		})
	}

	err := g.Wait()
	if found.Load() {
		return winner, true, nil
	}
	if err != nil {
		return pow.Solution{}, false, err
	}
	return pow.Solution{}, false, nil
}
