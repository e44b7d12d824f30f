package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwbudde/keccakminer/internal/config"
	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/cwbudde/keccakminer/internal/pow"
	"github.com/cwbudde/keccakminer/internal/store"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Continue a checkpointed mining session",
	Long: `Continues a saved session at the first nonce it has not tried. Sessions
started with "mine --checkpoint-dir <dir>" are resumed with --data-dir <dir>;
the job server stores its sessions under its own --data-dir. Sessions that
already found a solution print it again without mining.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	flags := resumeCmd.Flags()
	flags.String(config.KeyDataDir, "./data", "Directory holding the checkpoints")
	flags.String(config.KeyBackend, "", "Override the backend of the session")
	flags.Int(config.KeyThreads, 0, "Override the thread count of the session")
	flags.BoolP(config.KeyVerbose, "v", false, "Print device information and hash rate")
	flags.String(config.KeyKernelDir, "", "Load kernel.cl and utils/keccak.cl from this directory")
	flags.String(config.KeyBuildOptions, "", "OpenCL build options")
	flags.Uint64Var(&maxBatches, "max-batches", 0, "Stop after N more batches (0 = until found)")

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	dir := settings.GetString(config.KeyDataDir)
	st, err := store.NewFSStore(dir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	cp, err := loadResumable(st, jobID)
	if err != nil {
		return err
	}
	if cp.Found {
		slog.Info("Session already found a solution", "job_id", jobID)
		return writeStoredSolution(cmd, cp)
	}

	job := cp.Config
	flags := cmd.Flags()
	if flags.Changed(config.KeyBackend) {
		job.Backend = string(miner.NormalizeBackend(settings.GetString(config.KeyBackend)))
	}
	if flags.Changed(config.KeyThreads) {
		job.Threads = settings.GetInt(config.KeyThreads)
	}
	job.MaxBatches = maxBatches

	opts := config.Mining{
		Verbose:        settings.GetBool(config.KeyVerbose),
		ReportInterval: settings.GetDuration(config.KeyReportInterval),
		KernelDir:      settings.GetString(config.KeyKernelDir),
		BuildOptions:   settings.GetString(config.KeyBuildOptions),
	}

	slog.Info("Resuming session",
		"job_id", jobID,
		"next_nonce", cp.NextNonce,
		"batches", cp.Batches,
		"hashes", cp.Hashes,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runSession(ctx, cmd.OutOrStdout(), job, opts, st, cp)
	return err
}

// loadResumable loads and validates the checkpoint of jobID.
func loadResumable(st store.Store, jobID string) (*store.Checkpoint, error) {
	cp, err := st.LoadCheckpoint(jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no checkpoint for session %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint of session %s is unusable: %w", jobID, err)
	}
	return cp, nil
}

func writeStoredSolution(cmd *cobra.Command, cp *store.Checkpoint) error {
	digest, err := cp.Digest()
	if err != nil {
		return err
	}
	return miner.WriteResult(cmd.OutOrStdout(), miner.Result{
		Found:    true,
		Solution: pow.Solution{Nonce: cp.Nonce, Digest: digest},
	})
}
