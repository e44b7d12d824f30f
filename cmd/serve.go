package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/keccakminer/internal/config"
	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/cwbudde/keccakminer/internal/server"
	"github.com/cwbudde/keccakminer/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mining job server",
	Long: `Runs mining sessions submitted over HTTP in the background. Progress is
available as JSON and as server-sent events, and every session is
checkpointed under --data-dir so it can be resumed after a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String(config.KeyAddr, ":8080", "Listen address")
	serveCmd.Flags().String(config.KeyDataDir, "./data", "Directory for checkpoints and batch traces")
	serveCmd.Flags().String(config.KeyKernelDir, "", "Load kernel.cl and utils/keccak.cl from this directory")
	serveCmd.Flags().String(config.KeyBuildOptions, "", "OpenCL build options")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServer(settings)
	if err != nil {
		return err
	}

	checkpointStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	srv := server.NewServer(cfg.Addr,
		server.WithStore(checkpointStore),
		server.WithSearcherFactory(server.NewSearcherFactory(miner.Options{
			KernelDir:    cfg.KernelDir,
			BuildOptions: cfg.BuildOptions,
			Logger:       slog.Default(),
		})),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
