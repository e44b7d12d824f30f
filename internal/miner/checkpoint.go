package miner

import (
	"errors"
	"fmt"
	"time"

	"github.com/cwbudde/keccakminer/internal/store"
)

// Recorder persists session progress: a checkpoint every N batches and a
// trace line for every batch.
type Recorder struct {
	store      store.Store
	trace      *store.TraceWriter
	checkpoint *store.Checkpoint
	every      uint64

	// Counts carried over from earlier runs of the session.
	baseBatches uint64
	baseHashes  uint64
}

// NewRecorder records progress of the session described by checkpoint.
// trace may be nil. every <= 0 saves after every batch.
func NewRecorder(st store.Store, trace *store.TraceWriter, checkpoint *store.Checkpoint, every int) *Recorder {
	n := uint64(1)
	if every > 0 {
		n = uint64(every)
	}
	return &Recorder{
		store:       st,
		trace:       trace,
		checkpoint:  checkpoint,
		every:       n,
		baseBatches: checkpoint.Batches,
		baseHashes:  checkpoint.Hashes,
	}
}

// Checkpoint returns the checkpoint as last updated.
func (r *Recorder) Checkpoint() *store.Checkpoint {
	return r.checkpoint
}

// Hook returns a batch hook for WithBatchHook. Batch and hash counts of
// the run are added to those already in the checkpoint.
func (r *Recorder) Hook() func(Progress) error {
	return func(p Progress) error {
		r.checkpoint.NextNonce = p.NextNonce
		r.checkpoint.Batches = r.baseBatches + p.Batches
		r.checkpoint.Hashes = r.baseHashes + p.Hashes
		r.checkpoint.Timestamp = time.Now()
		if r.trace != nil {
			err := r.trace.Write(store.TraceEntry{
				Batch:      r.checkpoint.Batches,
				StartNonce: p.StartNonce,
				NextNonce:  p.NextNonce,
				HashRate:   p.HashRate,
				Timestamp:  r.checkpoint.Timestamp,
			})
			if err != nil {
				return fmt.Errorf("trace batch %d: %w", r.checkpoint.Batches, err)
			}
		}
		if p.Batches%r.every != 0 {
			return nil
		}
		return r.save()
	}
}

// Finish records the final state of a run and flushes the trace.
func (r *Recorder) Finish(res Result) error {
	r.checkpoint.NextNonce = res.NextNonce
	r.checkpoint.Batches = r.baseBatches + res.Batches
	r.checkpoint.Hashes = r.baseHashes + res.Hashes
	r.checkpoint.Timestamp = time.Now()
	var traceErr error
	if res.Found {
		r.checkpoint.MarkFound(res.Solution.Digest, res.Solution.Nonce)
		if r.trace != nil {
			err := r.trace.Write(store.TraceEntry{
				Batch:     r.checkpoint.Batches,
				NextNonce: res.NextNonce,
				Found:     true,
				Timestamp: r.checkpoint.Timestamp,
			})
			if err != nil {
				traceErr = fmt.Errorf("trace solution: %w", err)
			}
		}
	}
	// The checkpoint is saved even when the trace fails.
	if err := r.save(); err != nil {
		return errors.Join(err, traceErr)
	}
	if r.trace != nil {
		if err := r.trace.Flush(); err != nil {
			return errors.Join(traceErr, fmt.Errorf("flush trace: %w", err))
		}
	}
	return traceErr
}

func (r *Recorder) save() error {
	if err := r.store.SaveCheckpoint(r.checkpoint.JobID, r.checkpoint); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
