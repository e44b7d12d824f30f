package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/cwbudde/keccakminer/internal/pow"
	"github.com/cwbudde/keccakminer/internal/store"
)

// SearcherFactory builds the searcher a job mines with.
type SearcherFactory func(cfg JobConfig) (miner.Searcher, func(), error)

var defaultSearcherFactory = NewSearcherFactory(miner.Options{})

// NewSearcherFactory builds searchers from the job's backend and device
// selection. Kernel sources, build options and logging come from base.
func NewSearcherFactory(base miner.Options) SearcherFactory {
	return func(cfg JobConfig) (miner.Searcher, func(), error) {
		opts := base
		opts.Threads = cfg.Threads
		opts.Platform = cfg.Platform
		opts.Device = cfg.Device
		return miner.NewSearcher(cfg.Backend, opts)
	}
}

// runJob mines a job in the background until it finds a solution, runs out
// of batches or is cancelled. With a non-nil checkpointStore progress is
// saved every Config.CheckpointEvery batches.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, newSearcher SearcherFactory, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"backend", job.Config.Backend,
		"block", job.Config.Block,
		"difficulty", job.Config.Difficulty,
		"start_nonce", job.NextNonce,
	)

	searcher, cleanup, err := newSearcher(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to create searcher: %w", err))
		return err
	}
	defer cleanup()

	baseBatches, baseHashes := job.Batches, job.Hashes
	hook := func(p miner.Progress) error {
		return jm.UpdateJob(jobID, func(j *Job) {
			j.NextNonce = p.NextNonce
			j.Batches = baseBatches + p.Batches
			j.Hashes = baseHashes + p.Hashes
			j.HashRate = p.HashRate
		})
	}

	var recorder *miner.Recorder
	if checkpointStore != nil {
		var trace *store.TraceWriter
		if fsStore, ok := checkpointStore.(*store.FSStore); ok {
			trace, err = store.NewTraceWriter(fsStore.BaseDir(), jobID, job.Batches > 0)
			if err != nil {
				slog.Warn("Batch trace disabled", "job_id", jobID, "error", err)
				trace = nil
			} else {
				defer trace.Close()
			}
		}
		cp := store.NewCheckpoint(jobID, job.Config, job.NextNonce, job.Batches, job.Hashes)
		recorder = miner.NewRecorder(checkpointStore, trace, cp, job.Config.CheckpointEvery)
		record, progress := recorder.Hook(), hook
		hook = func(p miner.Progress) error {
			if err := record(p); err != nil {
				return err
			}
			return progress(p)
		}
	}

	m, err := miner.New(searcher, miner.Config{
		Work: pow.Work{
			Block:   job.Config.Block,
			Entropy: job.Config.Entropy,
			Miner:   job.Config.Miner,
		},
		StartNonce: job.NextNonce,
		Difficulty: job.Config.Difficulty,
		BatchSize:  job.Config.BatchSize,
		MaxBatches: job.Config.MaxBatches,
	}, miner.WithBatchHook(hook))
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	res, runErr := m.Run(ctx)
	close(progressDone)

	if recorder != nil {
		if err := recorder.Finish(res); err != nil {
			slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
		}
	}

	if runErr != nil {
		if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
			markJobCancelled(jm, jobID)
		} else {
			markJobFailed(jm, jobID, runErr)
		}
		return runErr
	}

	endTime := time.Now()
	err = jm.finishJob(jobID, func(j *Job) {
		j.NextNonce = res.NextNonce
		j.Batches = baseBatches + res.Batches
		j.Hashes = baseHashes + res.Hashes
		j.EndTime = &endTime
		switch {
		case res.Found:
			j.State = StateCompleted
			j.Found = true
			j.Hash = fmt.Sprintf("%x", res.Solution.Digest)
			j.Nonce = res.Solution.Nonce
		case res.Exhausted:
			j.State = StateExhausted
		default:
			j.State = StateCompleted
		}
	})
	if err != nil {
		return err
	}

	rate := 0.0
	if res.Elapsed > 0 {
		rate = float64(res.Hashes) / res.Elapsed.Seconds()
	}
	slog.Info("Job completed",
		"job_id", jobID,
		"found", res.Found,
		"batches", res.Batches,
		"elapsed", res.Elapsed,
		"hash_rate", pow.FormatHashRate(rate),
	)

	broadcastJob(jm, jobID)
	return nil
}

// monitorProgress periodically broadcasts progress events while a job runs.
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastJob(jm, jobID) {
				return
			}
		}
	}
}

// broadcastJob sends the current state of a job to its stream subscribers.
func broadcastJob(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.broadcaster.Broadcast(eventFromJob(job))
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.finishJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastJob(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.finishJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastJob(jm, jobID)
}
