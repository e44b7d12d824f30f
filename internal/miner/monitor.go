package miner

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/cwbudde/keccakminer/internal/pow"
)

// rateMeter holds the rate of the most recent batch until the monitor
// picks it up.
type rateMeter struct {
	total atomic.Uint64
	rate  atomic.Uint64 // float64 bits
}

func newRateMeter() *rateMeter {
	return &rateMeter{}
}

func (r *rateMeter) record(hashes uint64, rate float64) {
	r.total.Add(hashes)
	r.rate.Store(math.Float64bits(rate))
}

// take returns the latest rate and resets it.
func (r *rateMeter) take() float64 {
	return math.Float64frombits(r.rate.Swap(0))
}

// monitorHashRate reports the batch rate once per interval while it is
// fresh.
func (m *Miner) monitorHashRate(ctx context.Context, meter *rateMeter) {
	ticker := time.NewTicker(m.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rate := meter.take()
			if rate <= 0 || !m.cfg.Verbose {
				continue
			}
			m.logger.Info("Hash rate",
				"backend", m.searcher.Name(),
				"rate", pow.FormatHashRate(rate),
				"total_hashes", meter.total.Load(),
			)
		}
	}
}
