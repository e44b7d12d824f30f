package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cwbudde/keccakminer/internal/config"
	"github.com/cwbudde/keccakminer/internal/dispatch"
	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/cwbudde/keccakminer/internal/pow"
	"github.com/cwbudde/keccakminer/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	useGPU     bool
	maxBatches uint64
	sessionID  string
)

var mineCmd = &cobra.Command{
	Use:   "mine <block> <hash> <nonce> <difficulty> <miner_address>",
	Short: "Search for a nonce meeting the difficulty",
	Long: `Mines block <block> on top of <hash> (base64) for <miner_address>, starting
at <nonce>. A solution is printed as JSON {"hash", "nonce"}; otherwise
"No valid hash found." is printed.

With --checkpoint-dir the session is saved after every batch and can be
continued with "keccakminer resume <job-id>".`,
	Args: cobra.ExactArgs(5),
	RunE: runMine,
}

func init() {
	flags := mineCmd.Flags()
	flags.String(config.KeyBackend, "cpu", "Backend: cpu, opencl or emulator")
	flags.BoolVar(&useGPU, "gpu", false, "Mine on the OpenCL GPU (same as --backend opencl)")
	flags.Int(config.KeyThreads, miner.DefaultThreads, "Work-group size on GPUs, worker count on the CPU")
	flags.Uint64(config.KeyBatchSize, miner.DefaultBatchSize, "Nonces per batch")
	flags.String(config.KeyPlatform, "", "OpenCL platform name (default: first platform)")
	flags.Int(config.KeyDevice, 0, "GPU device index on the platform")
	flags.BoolP(config.KeyVerbose, "v", false, "Print device information and hash rate")
	flags.String(config.KeyCheckpointDir, "", "Save resumable progress under this directory")
	flags.Int(config.KeyCheckpointEvery, 1, "Save a checkpoint every N batches")
	flags.Duration(config.KeyReportInterval, miner.DefaultReportInterval, "Hash rate report interval")
	flags.String(config.KeyKernelDir, "", "Load kernel.cl and utils/keccak.cl from this directory")
	flags.String(config.KeyBuildOptions, "", "OpenCL build options (default \""+dispatch.DefaultBuildOptions+"\")")
	flags.Uint64Var(&maxBatches, "max-batches", 0, "Stop after N batches (0 = until found)")
	flags.StringVar(&sessionID, "job-id", "", "Session ID for checkpoints (default: random)")

	rootCmd.AddCommand(mineCmd)
}

func runMine(cmd *cobra.Command, args []string) error {
	opts, err := config.LoadMining(settings)
	if err != nil {
		return err
	}
	if useGPU {
		opts.Backend = string(miner.BackendOpenCL)
	}

	job, err := parseWork(args)
	if err != nil {
		return err
	}
	job.BatchSize = opts.BatchSize
	job.Backend = opts.Backend
	job.Threads = opts.Threads
	job.Platform = opts.Platform
	job.Device = opts.Device
	job.MaxBatches = maxBatches
	job.CheckpointEvery = opts.CheckpointEvery

	var (
		st *store.FSStore
		cp *store.Checkpoint
	)
	if opts.CheckpointDir != "" {
		st, err = store.NewFSStore(opts.CheckpointDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		id := sessionID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := st.LoadCheckpoint(id); err == nil {
			return fmt.Errorf("session %s already exists, use resume to continue it", id)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		cp = store.NewCheckpoint(id, job, job.StartNonce, 0, 0)
		slog.Info("Checkpointing session", "job_id", id, "dir", opts.CheckpointDir)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runSession(ctx, cmd.OutOrStdout(), job, opts, st, cp)
	return err
}

// parseWork reads the positional arguments of mine.
func parseWork(args []string) (store.JobConfig, error) {
	block, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return store.JobConfig{}, fmt.Errorf("invalid block %q: %w", args[0], err)
	}
	nonce, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return store.JobConfig{}, fmt.Errorf("invalid nonce %q: %w", args[2], err)
	}
	difficulty, err := strconv.Atoi(args[3])
	if err != nil {
		return store.JobConfig{}, fmt.Errorf("invalid difficulty %q: %w", args[3], err)
	}
	if difficulty < 0 {
		return store.JobConfig{}, fmt.Errorf("invalid difficulty %d: must not be negative", difficulty)
	}

	job := store.JobConfig{
		Block:      uint32(block),
		Entropy:    args[1],
		Miner:      args[4],
		Difficulty: difficulty,
		StartNonce: nonce,
	}
	if _, _, err := pow.Prepare(pow.Work{Block: job.Block, Entropy: job.Entropy, Miner: job.Miner}, nonce); err != nil {
		return store.JobConfig{}, err
	}
	return job, nil
}
