package miner

import (
	"context"
	"math"

	"github.com/cwbudde/keccakminer/internal/dispatch"
	"github.com/cwbudde/keccakminer/internal/pow"
)

type dispatchSearcher struct {
	name     string
	engine   *dispatch.Engine
	platform string
	device   int
	threads  int
	verbose  bool
}

func (s *dispatchSearcher) Name() string { return s.name }

// SearchBatch runs the batch as one device dispatch. Cancellation is only
// observed before the dispatch starts.
func (s *dispatchSearcher) SearchBatch(ctx context.Context, b Batch) (pow.Solution, bool, error) {
	if err := ctx.Err(); err != nil {
		return pow.Solution{}, false, err
	}
	difficulty := b.Difficulty
	if difficulty > math.MaxInt32 {
		difficulty = math.MaxInt32
	}

	res, err := s.engine.Execute(dispatch.Request{
		PlatformHint:    s.platform,
		DeviceIndex:     s.device,
		Message:         b.Message,
		StartNonce:      b.StartNonce,
		NonceOffset:     int32(b.NonceOffset),
		BatchSize:       b.Size,
		Difficulty:      int32(difficulty),
		ThreadsPerBlock: s.threads,
		ShowDeviceInfo:  s.verbose && b.First,
	})
	if err != nil {
		return pow.Solution{}, false, err
	}
	if res.Outcome != dispatch.OutcomeFound {
		return pow.Solution{}, false, nil
	}
	return pow.Solution{Nonce: res.Nonce, Digest: res.Digest}, true, nil
}
