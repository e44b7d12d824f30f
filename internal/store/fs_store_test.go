package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

func createTestCheckpoint(jobID string) *Checkpoint {
	return &Checkpoint{
		JobID:     jobID,
		NextNonce: 30_000_000,
		Batches:   3,
		Hashes:    30_000_000,
		Timestamp: time.Now(),
		Config: JobConfig{
			Block:      1042,
			Entropy:    "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=",
			Miner:      "GAAQEAYEAUDAOCAJBIFQYDIOB4IBCEQTCQKRMFYYDENBWHA5DYPSABRV",
			Difficulty: 7,
			StartNonce: 0,
			BatchSize:  10_000_000,
			Backend:    "opencl",
			Threads:    256,
		},
	}
}

func TestSaveAndLoadCheckpoint(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-123"
	checkpoint := createTestCheckpoint(jobID)
	if err := store.SaveCheckpoint(jobID, checkpoint); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "jobs", jobID, "checkpoint.json")
	if _, err := os.Stat(expectedPath); err != nil {
		t.Fatalf("Checkpoint file was not created at %s: %v", expectedPath, err)
	}
	matches, _ := filepath.Glob(filepath.Join(tempDir, "jobs", jobID, "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("Temp files left behind: %v", matches)
	}

	loaded, err := store.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.NextNonce != checkpoint.NextNonce || loaded.Batches != checkpoint.Batches {
		t.Errorf("Progress mismatch: got %d/%d", loaded.NextNonce, loaded.Batches)
	}
	if loaded.Config != checkpoint.Config {
		t.Errorf("Config mismatch: got %+v, want %+v", loaded.Config, checkpoint.Config)
	}
	if !loaded.Timestamp.Equal(checkpoint.Timestamp) {
		t.Errorf("Timestamp mismatch: got %v, want %v", loaded.Timestamp, checkpoint.Timestamp)
	}
}

func TestSaveCheckpointOverwrites(t *testing.T) {
	store, _ := setupTestStore(t)

	checkpoint := createTestCheckpoint("job")
	if err := store.SaveCheckpoint("job", checkpoint); err != nil {
		t.Fatal(err)
	}
	checkpoint.NextNonce += checkpoint.Config.BatchSize
	checkpoint.Batches++
	if err := store.SaveCheckpoint("job", checkpoint); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadCheckpoint("job")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Batches != 4 || loaded.NextNonce != 40_000_000 {
		t.Errorf("Expected latest progress, got batches=%d next=%d", loaded.Batches, loaded.NextNonce)
	}
}

func TestSaveCheckpointRejectsBadInput(t *testing.T) {
	store, _ := setupTestStore(t)

	for _, jobID := range []string{"", "..", "a/b", "../escape"} {
		if err := store.SaveCheckpoint(jobID, createTestCheckpoint("x")); err == nil {
			t.Errorf("SaveCheckpoint(%q) succeeded", jobID)
		}
	}
	if err := store.SaveCheckpoint("job", nil); err == nil {
		t.Error("Expected error for nil checkpoint")
	}
}

func TestLoadCheckpointNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadCheckpoint("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.JobID != "missing" {
		t.Errorf("Expected NotFoundError naming the job, got %v", err)
	}
}

func TestLoadCheckpointCorrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	dir := filepath.Join(tempDir, "jobs", "bad")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := store.LoadCheckpoint("bad")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deserialization error, got %v", err)
	}
}

func TestListCheckpoints(t *testing.T) {
	store, tempDir := setupTestStore(t)

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints on empty store: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("Expected no checkpoints, got %d", len(infos))
	}

	base := time.Now()
	for i, id := range []string{"old", "newest", "middle"} {
		cp := createTestCheckpoint(id)
		cp.Timestamp = base.Add([]time.Duration{-2 * time.Hour, 0, -time.Hour}[i])
		if err := store.SaveCheckpoint(id, cp); err != nil {
			t.Fatal(err)
		}
	}
	// Directories without a readable checkpoint are skipped.
	os.MkdirAll(filepath.Join(tempDir, "jobs", "empty"), 0o755)
	os.MkdirAll(filepath.Join(tempDir, "jobs", "corrupt"), 0o755)
	os.WriteFile(filepath.Join(tempDir, "jobs", "corrupt", "checkpoint.json"), []byte("]"), 0o644)
	os.WriteFile(filepath.Join(tempDir, "jobs", "stray.txt"), []byte("x"), 0o644)

	infos, err = store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	want := []string{"newest", "middle", "old"}
	if len(infos) != len(want) {
		t.Fatalf("Expected %d checkpoints, got %d", len(want), len(infos))
	}
	for i, id := range want {
		if infos[i].JobID != id {
			t.Errorf("Position %d: got %s, want %s", i, infos[i].JobID, id)
		}
	}
	if infos[0].Block != 1042 || infos[0].Difficulty != 7 || infos[0].Backend != "opencl" {
		t.Errorf("Info fields not copied: %+v", infos[0])
	}
}

func TestDeleteCheckpoint(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveCheckpoint("job", createTestCheckpoint("job")); err != nil {
		t.Fatal(err)
	}
	tw, err := NewTraceWriter(tempDir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	tw.Write(TraceEntry{Batch: 1, Timestamp: time.Now()})
	tw.Close()

	if err := store.DeleteCheckpoint("job"); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "jobs", "job")); !os.IsNotExist(err) {
		t.Error("Job directory still exists")
	}
	if err := store.DeleteCheckpoint("job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second delete: expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	store, _ := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cp := createTestCheckpoint("shared")
			cp.Batches = uint64(n)
			if err := store.SaveCheckpoint("shared", cp); err != nil {
				t.Errorf("save %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := store.LoadCheckpoint("shared"); err != nil {
		t.Errorf("Checkpoint unreadable after concurrent saves: %v", err)
	}
}
