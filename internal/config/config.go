// Package config layers command-line flags, environment variables and an
// optional YAML file into the settings of the miner and the job server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. KECCAKMINER_BATCH_SIZE.
const EnvPrefix = "KECCAKMINER"

// Keys shared by flags, environment variables and config files.
const (
	KeyBackend         = "backend"
	KeyThreads         = "max-threads"
	KeyBatchSize       = "batch-size"
	KeyPlatform        = "platform"
	KeyDevice          = "device"
	KeyVerbose         = "verbose"
	KeyCheckpointDir   = "checkpoint-dir"
	KeyCheckpointEvery = "checkpoint-every"
	KeyReportInterval  = "report-interval"
	KeyKernelDir       = "kernel-dir"
	KeyBuildOptions    = "build-options"
	KeyLogLevel        = "log-level"
	KeyAddr            = "addr"
	KeyDataDir         = "data-dir"
)

// ErrInvalid is returned by the loaders for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

// Mining holds the tuning of a mining session. The puzzle itself (block,
// entropy, difficulty, miner) always comes from the command line.
type Mining struct {
	Backend         string        `mapstructure:"backend"`
	Threads         int           `mapstructure:"max-threads"`
	BatchSize       uint64        `mapstructure:"batch-size"`
	Platform        string        `mapstructure:"platform"`
	Device          int           `mapstructure:"device"`
	Verbose         bool          `mapstructure:"verbose"`
	CheckpointDir   string        `mapstructure:"checkpoint-dir"`
	CheckpointEvery int           `mapstructure:"checkpoint-every"`
	ReportInterval  time.Duration `mapstructure:"report-interval"`
	KernelDir       string        `mapstructure:"kernel-dir"`
	BuildOptions    string        `mapstructure:"build-options"`
}

// Server holds the settings of the job server.
type Server struct {
	Addr         string `mapstructure:"addr"`
	DataDir      string `mapstructure:"data-dir"`
	KernelDir    string `mapstructure:"kernel-dir"`
	BuildOptions string `mapstructure:"build-options"`
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, string(miner.BackendCPU))
	v.SetDefault(KeyThreads, miner.DefaultThreads)
	v.SetDefault(KeyBatchSize, miner.DefaultBatchSize)
	v.SetDefault(KeyPlatform, "")
	v.SetDefault(KeyDevice, 0)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyCheckpointDir, "")
	v.SetDefault(KeyCheckpointEvery, 1)
	v.SetDefault(KeyReportInterval, miner.DefaultReportInterval)
	v.SetDefault(KeyKernelDir, "")
	v.SetDefault(KeyBuildOptions, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyDataDir, "./data")
}

// BindFlags makes flags in fs override every other source once set.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// ReadFile merges the YAML file at path. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// LoadMining decodes and validates the mining settings.
func LoadMining(v *viper.Viper) (Mining, error) {
	var m Mining
	if err := v.Unmarshal(&m); err != nil {
		return Mining{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	backend := miner.NormalizeBackend(m.Backend)
	known := false
	for _, b := range miner.SupportedBackends() {
		if b == backend {
			known = true
		}
	}
	switch {
	case !known:
		return Mining{}, fmt.Errorf("%w: %w: %s", ErrInvalid, miner.ErrUnknownBackend, m.Backend)
	case m.Threads <= 0:
		return Mining{}, fmt.Errorf("%w: max-threads must be positive, got %d", ErrInvalid, m.Threads)
	case m.BatchSize == 0:
		return Mining{}, fmt.Errorf("%w: batch-size must be positive", ErrInvalid)
	case m.Device < 0:
		return Mining{}, fmt.Errorf("%w: device index %d is negative", ErrInvalid, m.Device)
	case m.CheckpointEvery <= 0:
		return Mining{}, fmt.Errorf("%w: checkpoint-every must be positive, got %d", ErrInvalid, m.CheckpointEvery)
	case m.ReportInterval <= 0:
		return Mining{}, fmt.Errorf("%w: report-interval must be positive", ErrInvalid)
	}
	m.Backend = string(backend)
	return m, nil
}

// LoadServer decodes the job server settings.
func LoadServer(v *viper.Viper) (Server, error) {
	var s Server
	if err := v.Unmarshal(&s); err != nil {
		return Server{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if s.Addr == "" {
		return Server{}, fmt.Errorf("%w: addr cannot be empty", ErrInvalid)
	}
	return s, nil
}
