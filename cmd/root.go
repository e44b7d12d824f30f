package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/cwbudde/keccakminer/internal/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	settings   = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "keccakminer",
	Short: "Keccak-256 proof-of-work miner for OpenCL GPUs",
	Long: `keccakminer searches for nonces whose Keccak-256 digest starts with a given
number of zero hex digits. Batches run on an OpenCL GPU, an in-process device
emulator or CPU workers, and long sessions can be checkpointed and resumed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.BindFlags(settings, cmd.Flags()); err != nil {
			return err
		}
		if err := config.ReadFile(settings, configFile); err != nil {
			return err
		}

		// stdout is reserved for results and device diagnostics
		slog.SetDefault(newLogger(settings.GetString(config.KeyLogLevel), os.Stderr))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (flags and KECCAKMINER_* env vars take precedence)")
}

func newLogger(logLevel string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewJSONHandler(w, opts))
}
