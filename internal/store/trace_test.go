package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestTraceWriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-123"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Batch: 1, StartNonce: 0, NextNonce: 100, HashRate: 1.5e6, Timestamp: time.Now()},
		{Batch: 2, StartNonce: 100, NextNonce: 200, HashRate: 1.6e6, Timestamp: time.Now()},
		{Batch: 3, StartNonce: 200, NextNonce: 243, HashRate: 1.4e6, Found: true, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	if writer.Path() != filepath.Join(tmpDir, "jobs", jobID, "trace.jsonl") {
		t.Errorf("Unexpected trace path %s", writer.Path())
	}

	got, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if got[i].Batch != entries[i].Batch || got[i].NextNonce != entries[i].NextNonce || got[i].Found != entries[i].Found {
			t.Errorf("Entry %d: got %+v, want %+v", i, got[i], entries[i])
		}
	}
}

func TestTraceAppendAndTruncate(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(appendMode bool, batches ...uint64) {
		t.Helper()
		w, err := NewTraceWriter(tmpDir, "job", appendMode)
		if err != nil {
			t.Fatal(err)
		}
		for _, b := range batches {
			w.Write(TraceEntry{Batch: b, Timestamp: time.Now()})
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	write(false, 1, 2)
	write(true, 3)
	got, err := ReadTrace(tmpDir, "job")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].Batch != 3 {
		t.Errorf("Append mode lost entries: %+v", got)
	}

	write(false, 9)
	got, _ = ReadTrace(tmpDir, "job")
	if len(got) != 1 || got[0].Batch != 9 {
		t.Errorf("Truncate mode kept old entries: %+v", got)
	}
}

func TestTraceFlushMakesEntriesVisible(t *testing.T) {
	tmpDir := t.TempDir()
	w, err := NewTraceWriter(tmpDir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.Write(TraceEntry{Batch: 1, Timestamp: time.Now()})
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	got, err := ReadTrace(tmpDir, "job")
	if err != nil || len(got) != 1 {
		t.Errorf("Expected 1 flushed entry, got %d (%v)", len(got), err)
	}
}

func TestTraceWriteAfterClose(t *testing.T) {
	w, err := NewTraceWriter(t.TempDir(), "job", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := w.Write(TraceEntry{Batch: 1}); !errors.Is(err, ErrTraceClosed) {
		t.Errorf("Expected ErrTraceClosed, got %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Errorf("Flush after Close should be a no-op, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestTraceConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	w, err := NewTraceWriter(tmpDir, "job", false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				w.Write(TraceEntry{Batch: uint64(n*50 + j), Timestamp: time.Now()})
			}
		}(i)
	}
	wg.Wait()
	w.Close()

	got, err := ReadTrace(tmpDir, "job")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(got) != 400 {
		t.Errorf("Expected 400 entries, got %d", len(got))
	}
}

func TestReadTraceErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := ReadTrace(tmpDir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	dir := filepath.Join(tmpDir, "jobs", "bad")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "trace.jsonl"), []byte("{\"batch\":1}\n{oops\n"), 0o644)
	if _, err := ReadTrace(tmpDir, "bad"); err == nil {
		t.Error("Expected decode error for malformed line")
	}
}
