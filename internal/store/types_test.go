package store

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCheckpointValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Checkpoint)
		wantField string
	}{
		{"valid", func(*Checkpoint) {}, ""},
		{"empty job", func(c *Checkpoint) { c.JobID = "" }, "JobID"},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }, "Timestamp"},
		{"no entropy", func(c *Checkpoint) { c.Config.Entropy = "" }, "Config.Entropy"},
		{"no miner", func(c *Checkpoint) { c.Config.Miner = "" }, "Config.Miner"},
		{"negative difficulty", func(c *Checkpoint) { c.Config.Difficulty = -1 }, "Config.Difficulty"},
		{"zero batch", func(c *Checkpoint) { c.Config.BatchSize = 0 }, "Config.BatchSize"},
		{"behind start", func(c *Checkpoint) { c.Config.StartNonce = c.NextNonce + 1 }, "NextNonce"},
		{"found without hash", func(c *Checkpoint) { c.Found = true }, "Hash"},
		{"found short hash", func(c *Checkpoint) { c.Found = true; c.Hash = "abcd" }, "Hash"},
		{"found", func(c *Checkpoint) { c.MarkFound([32]byte{1}, 99) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := createTestCheckpoint("job")
			tt.mutate(cp)
			err := cp.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Expected valid checkpoint, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %s, want %s", verr.Field, tt.wantField)
			}
		})
	}
}

func TestCheckpointIsCompatible(t *testing.T) {
	cp := createTestCheckpoint("job")

	same := cp.Config
	same.BatchSize = 1 << 20
	same.Backend = "cpu"
	same.Threads = 8
	if err := cp.IsCompatible(same); err != nil {
		t.Errorf("Tuning changes should be compatible: %v", err)
	}

	tests := map[string]func(*JobConfig){
		"Block":      func(c *JobConfig) { c.Block++ },
		"Entropy":    func(c *JobConfig) { c.Entropy = "other" },
		"Miner":      func(c *JobConfig) { c.Miner = "GOTHER" },
		"Difficulty": func(c *JobConfig) { c.Difficulty = 8 },
	}
	for field, mutate := range tests {
		cfg := cp.Config
		mutate(&cfg)
		err := cp.IsCompatible(cfg)
		var cerr *CompatibilityError
		if !errors.As(err, &cerr) || cerr.Field != field {
			t.Errorf("%s: got %v", field, err)
			continue
		}
		if !strings.Contains(cerr.Error(), field+" mismatch") {
			t.Errorf("%s: message %q", field, cerr.Error())
		}
	}
}

func TestMarkFoundAndInfo(t *testing.T) {
	cp := NewCheckpoint("job", createTestCheckpoint("job").Config, 500, 5, 500)
	var digest [32]byte
	digest[0], digest[31] = 0x0f, 0xf0
	cp.MarkFound(digest, 321)

	if !cp.Found || cp.Nonce != 321 {
		t.Errorf("MarkFound did not record the solution: %+v", cp)
	}
	if cp.Hash != "0f"+strings.Repeat("00", 30)+"f0" {
		t.Errorf("Hash = %s", cp.Hash)
	}

	got, err := cp.Digest()
	if err != nil || got != digest {
		t.Errorf("Digest() = %x, %v", got, err)
	}
	cp.Hash = "zz"
	if _, err := cp.Digest(); err == nil {
		t.Error("Expected error for a malformed hash")
	}

	info := cp.ToInfo()
	if info.JobID != "job" || info.NextNonce != 500 || info.Batches != 5 || !info.Found {
		t.Errorf("ToInfo = %+v", info)
	}
}
