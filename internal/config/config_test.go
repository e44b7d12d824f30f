package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/spf13/pflag"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String(KeyBackend, "cpu", "")
	fs.Int(KeyThreads, miner.DefaultThreads, "")
	fs.Uint64(KeyBatchSize, miner.DefaultBatchSize, "")
	fs.Int(KeyDevice, 0, "")
	fs.Bool(KeyVerbose, false, "")
	return fs
}

func TestLoadMining_Defaults(t *testing.T) {
	m, err := LoadMining(New())
	if err != nil {
		t.Fatalf("LoadMining failed: %v", err)
	}
	if m.Backend != "cpu" || m.Threads != miner.DefaultThreads || m.BatchSize != miner.DefaultBatchSize {
		t.Errorf("Unexpected defaults %+v", m)
	}
	if m.CheckpointEvery != 1 || m.ReportInterval != time.Second {
		t.Errorf("Unexpected defaults %+v", m)
	}
}

func TestLoadMining_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner.yaml")
	yaml := "backend: emulator\nmax-threads: 64\nbatch-size: 5000\ndevice: 2\nreport-interval: 250ms\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KECCAKMINER_BATCH_SIZE", "7000")

	v := New()
	fs := newFlags()
	if err := BindFlags(v, fs); err != nil {
		t.Fatal(err)
	}
	if err := fs.Parse([]string{"--device", "1"}); err != nil {
		t.Fatal(err)
	}
	if err := ReadFile(v, path); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	m, err := LoadMining(v)
	if err != nil {
		t.Fatalf("LoadMining failed: %v", err)
	}

	// flag > env > file > default
	if m.Device != 1 {
		t.Errorf("Device = %d, want flag value 1", m.Device)
	}
	if m.BatchSize != 7000 {
		t.Errorf("BatchSize = %d, want env value 7000", m.BatchSize)
	}
	if m.Backend != "emulator" || m.Threads != 64 || m.ReportInterval != 250*time.Millisecond {
		t.Errorf("File values not applied: %+v", m)
	}
}

func TestLoadMining_KernelSources(t *testing.T) {
	t.Setenv("KECCAKMINER_KERNEL_DIR", "/opt/kernels")
	v := New()
	v.Set(KeyBuildOptions, "-cl-fast-relaxed-math")

	m, err := LoadMining(v)
	if err != nil {
		t.Fatal(err)
	}
	if m.KernelDir != "/opt/kernels" || m.BuildOptions != "-cl-fast-relaxed-math" {
		t.Errorf("Unexpected kernel settings %+v", m)
	}
	s, err := LoadServer(v)
	if err != nil {
		t.Fatal(err)
	}
	if s.KernelDir != "/opt/kernels" || s.BuildOptions != "-cl-fast-relaxed-math" {
		t.Errorf("Unexpected server kernel settings %+v", s)
	}
}

func TestLoadMining_NormalizesBackend(t *testing.T) {
	v := New()
	v.Set(KeyBackend, "GPU")
	m, err := LoadMining(v)
	if err != nil {
		t.Fatal(err)
	}
	if m.Backend != "opencl" {
		t.Errorf("Backend = %q, want opencl", m.Backend)
	}
}

func TestLoadMining_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{KeyBackend, "fpga"},
		{KeyThreads, 0},
		{KeyBatchSize, 0},
		{KeyDevice, -1},
		{KeyCheckpointEvery, 0},
		{KeyReportInterval, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.value)
			if _, err := LoadMining(v); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestReadFile_Missing(t *testing.T) {
	if err := ReadFile(New(), ""); err != nil {
		t.Errorf("Empty path should be a no-op, got %v", err)
	}
	if err := ReadFile(New(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for a missing config file")
	}
}

func TestLoadServer(t *testing.T) {
	t.Setenv("KECCAKMINER_ADDR", ":9090")
	s, err := LoadServer(New())
	if err != nil {
		t.Fatal(err)
	}
	if s.Addr != ":9090" || s.DataDir != "./data" {
		t.Errorf("Unexpected server config %+v", s)
	}

	v := New()
	v.Set(KeyAddr, "")
	if _, err := LoadServer(v); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for empty addr, got %v", err)
	}
}
