package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/keccakminer/internal/config"
	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/cwbudde/keccakminer/internal/pow"
	"github.com/cwbudde/keccakminer/internal/store"
)

// runSession mines job until a solution is found, MaxBatches run out or
// ctx is cancelled, and prints the result to out. With a non-nil st every
// batch is recorded under cp.JobID so the session can be resumed.
func runSession(ctx context.Context, out io.Writer, job store.JobConfig, opts config.Mining, st *store.FSStore, cp *store.Checkpoint) (miner.Result, error) {
	searcher, cleanup, err := miner.NewSearcher(job.Backend, miner.Options{
		Threads:      job.Threads,
		Platform:     job.Platform,
		Device:       job.Device,
		Verbose:      opts.Verbose,
		Observer:     device.NewTextObserver(out),
		KernelDir:    opts.KernelDir,
		BuildOptions: opts.BuildOptions,
		Logger:       slog.Default(),
	})
	if err != nil {
		return miner.Result{}, err
	}
	defer cleanup()

	startNonce := job.StartNonce
	minerOpts := []miner.Option{
		miner.WithLogger(slog.Default()),
		miner.WithReportInterval(opts.ReportInterval),
	}

	var recorder *miner.Recorder
	if st != nil {
		startNonce = cp.NextNonce
		trace, err := store.NewTraceWriter(st.BaseDir(), cp.JobID, cp.Batches > 0)
		if err != nil {
			return miner.Result{}, fmt.Errorf("failed to open batch trace: %w", err)
		}
		defer trace.Close()

		recorder = miner.NewRecorder(st, trace, cp, job.CheckpointEvery)
		minerOpts = append(minerOpts, miner.WithBatchHook(recorder.Hook()))
	}

	m, err := miner.New(searcher, miner.Config{
		Work: pow.Work{
			Block:   job.Block,
			Entropy: job.Entropy,
			Miner:   job.Miner,
		},
		StartNonce: startNonce,
		Difficulty: job.Difficulty,
		BatchSize:  job.BatchSize,
		MaxBatches: job.MaxBatches,
		Verbose:    opts.Verbose,
	}, minerOpts...)
	if err != nil {
		return miner.Result{}, err
	}

	slog.Info("Starting mining session",
		"backend", searcher.Name(),
		"block", job.Block,
		"difficulty", job.Difficulty,
		"start_nonce", startNonce,
		"batch_size", job.BatchSize,
	)

	res, runErr := m.Run(ctx)

	if recorder != nil {
		if err := recorder.Finish(res); err != nil {
			slog.Error("Failed to save checkpoint", "job_id", cp.JobID, "error", err)
		} else {
			slog.Info("Checkpoint saved", "job_id", cp.JobID, "next_nonce", res.NextNonce)
		}
	}

	if runErr != nil {
		switch {
		case errors.Is(runErr, device.ErrSetup):
			slog.Error("Device setup failed", "error", runErr)
		case errors.Is(runErr, device.ErrBuild):
			slog.Error("Kernel build failed", "kernel_dir", opts.KernelDir, "error", runErr)
		case ctx.Err() != nil && recorder != nil:
			slog.Info("Mining interrupted", "job_id", cp.JobID, "resume", "keccakminer resume "+cp.JobID)
		}
		return res, runErr
	}
	if res.Exhausted {
		slog.Warn("Nonce space exhausted", "next_nonce", res.NextNonce)
	}

	rate := 0.0
	if res.Elapsed > 0 {
		rate = float64(res.Hashes) / res.Elapsed.Seconds()
	}
	slog.Info("Mining finished",
		"found", res.Found,
		"batches", res.Batches,
		"hashes", res.Hashes,
		"elapsed", res.Elapsed,
		"hash_rate", pow.FormatHashRate(rate),
	)

	return res, miner.WriteResult(out, res)
}
