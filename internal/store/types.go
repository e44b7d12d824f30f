package store

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// JobConfig holds the parameters of a mining session (checkpoint copy).
// This avoids import cycles with the server package.
type JobConfig struct {
	Block      uint32 `json:"block"`
	Entropy    string `json:"entropy"` // base64 hash of the previous block
	Miner      string `json:"miner"`   // G... account address
	Difficulty int    `json:"difficulty"`
	StartNonce uint64 `json:"startNonce"`
	BatchSize  uint64 `json:"batchSize"`
	Backend    string `json:"backend"`
	Threads    int    `json:"threads"`
	Platform   string `json:"platform,omitempty"`
	Device     int    `json:"device"`
	MaxBatches uint64 `json:"maxBatches,omitempty"`
	// CheckpointEvery saves after every N batches (0 = every batch).
	CheckpointEvery int `json:"checkpointEvery,omitempty"`
}

// Checkpoint is the resumable state of a mining session. Nonces below
// NextNonce (and at or above Config.StartNonce) have all been tried.
type Checkpoint struct {
	JobID     string    `json:"jobId"`
	Config    JobConfig `json:"config"`
	NextNonce uint64    `json:"nextNonce"`
	Batches   uint64    `json:"batches"`
	Hashes    uint64    `json:"hashes"`
	Timestamp time.Time `json:"timestamp"`

	// Set once the session has found a solution.
	Found bool   `json:"found"`
	Hash  string `json:"hash,omitempty"`
	Nonce uint64 `json:"nonce,omitempty"`
}

// CheckpointInfo is the listing view of a checkpoint.
type CheckpointInfo struct {
	JobID      string    `json:"jobId"`
	Block      uint32    `json:"block"`
	Difficulty int       `json:"difficulty"`
	Backend    string    `json:"backend"`
	NextNonce  uint64    `json:"nextNonce"`
	Batches    uint64    `json:"batches"`
	Found      bool      `json:"found"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCheckpoint creates a checkpoint for a session that has tried every
// nonce below nextNonce.
func NewCheckpoint(jobID string, config JobConfig, nextNonce, batches, hashes uint64) *Checkpoint {
	return &Checkpoint{
		JobID:     jobID,
		Config:    config,
		NextNonce: nextNonce,
		Batches:   batches,
		Hashes:    hashes,
		Timestamp: time.Now(),
	}
}

// MarkFound records the solution.
func (c *Checkpoint) MarkFound(digest [32]byte, nonce uint64) {
	c.Found = true
	c.Hash = hex.EncodeToString(digest[:])
	c.Nonce = nonce
	c.Timestamp = time.Now()
}

// Digest decodes the recorded solution hash.
func (c *Checkpoint) Digest() ([32]byte, error) {
	var digest [32]byte
	raw, err := hex.DecodeString(c.Hash)
	if err != nil || len(raw) != len(digest) {
		return digest, fmt.Errorf("checkpoint %s: malformed hash %q", c.JobID, c.Hash)
	}
	copy(digest[:], raw)
	return digest, nil
}

// ToInfo converts a full Checkpoint to CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:      c.JobID,
		Block:      c.Config.Block,
		Difficulty: c.Config.Difficulty,
		Backend:    c.Config.Backend,
		NextNonce:  c.NextNonce,
		Batches:    c.Batches,
		Found:      c.Found,
		Timestamp:  c.Timestamp,
	}
}

// Validate checks that the checkpoint can be resumed.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Entropy == "" {
		return &ValidationError{Field: "Config.Entropy", Reason: "cannot be empty"}
	}
	if c.Config.Miner == "" {
		return &ValidationError{Field: "Config.Miner", Reason: "cannot be empty"}
	}
	if c.Config.Difficulty < 0 {
		return &ValidationError{Field: "Config.Difficulty", Reason: "cannot be negative"}
	}
	if c.Config.BatchSize == 0 {
		return &ValidationError{Field: "Config.BatchSize", Reason: "must be positive"}
	}
	if c.NextNonce < c.Config.StartNonce {
		return &ValidationError{
			Field:  "NextNonce",
			Reason: fmt.Sprintf("%d is below the start nonce %d", c.NextNonce, c.Config.StartNonce),
		}
	}
	if c.Found {
		if raw, err := hex.DecodeString(c.Hash); err != nil || len(raw) != 32 {
			return &ValidationError{Field: "Hash", Reason: "must be 64 hex characters"}
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks that config describes the same puzzle as the
// checkpoint. Tuning parameters (batch size, backend, threads) may differ.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Block != config.Block {
		return &CompatibilityError{
			Field:    "Block",
			Expected: strconv.FormatUint(uint64(c.Config.Block), 10),
			Actual:   strconv.FormatUint(uint64(config.Block), 10),
		}
	}
	if c.Config.Entropy != config.Entropy {
		return &CompatibilityError{Field: "Entropy", Expected: c.Config.Entropy, Actual: config.Entropy}
	}
	if c.Config.Miner != config.Miner {
		return &CompatibilityError{Field: "Miner", Expected: c.Config.Miner, Actual: config.Miner}
	}
	if c.Config.Difficulty != config.Difficulty {
		return &CompatibilityError{
			Field:    "Difficulty",
			Expected: strconv.Itoa(c.Config.Difficulty),
			Actual:   strconv.Itoa(config.Difficulty),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
