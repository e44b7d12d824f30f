package miner

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/cwbudde/keccakminer/internal/device"
	"github.com/cwbudde/keccakminer/internal/device/emulator"
	"github.com/cwbudde/keccakminer/internal/device/opencl"
	"github.com/cwbudde/keccakminer/internal/pow"
)

func testWork() pow.Work {
	var key [32]byte
	for i := range key {
		key[i] = byte(i * 7)
	}
	entropy := bytes.Repeat([]byte{0x5a}, 32)
	return pow.Work{
		Block:   42,
		Entropy: base64.StdEncoding.EncodeToString(entropy),
		Miner:   pow.EncodeAccountID(key),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emulatorSearcher(opts Options) Searcher {
	return NewDeviceSearcher(emulator.New(emulator.Config{}), opts)
}

func TestNormalizeBackend(t *testing.T) {
	tests := map[string]Backend{
		"":         BackendCPU,
		"CPU":      BackendCPU,
		" gpu ":    BackendOpenCL,
		"opencl":   BackendOpenCL,
		"cl":       BackendOpenCL,
		"Emulator": BackendEmulator,
		"emu":      BackendEmulator,
		"cuda":     Backend("cuda"),
	}
	for in, want := range tests {
		if got := NormalizeBackend(in); got != want {
			t.Errorf("NormalizeBackend(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSearcher(t *testing.T) {
	s, cleanup, err := NewSearcher("cpu", Options{Threads: 2})
	if err != nil {
		t.Fatalf("cpu: %v", err)
	}
	cleanup()
	if s.Name() != "cpu" {
		t.Errorf("name = %q", s.Name())
	}

	s, cleanup, err = NewSearcher("emulator", Options{})
	if err != nil {
		t.Fatalf("emulator: %v", err)
	}
	cleanup()
	if s.Name() != "emulator" {
		t.Errorf("name = %q", s.Name())
	}

	if _, _, err := NewSearcher("cuda", Options{}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("cuda error = %v, want ErrUnknownBackend", err)
	}

	if !opencl.Available() {
		if _, _, err := NewSearcher("gpu", Options{}); !errors.Is(err, ErrBackendUnavailable) {
			t.Errorf("gpu error = %v, want ErrBackendUnavailable", err)
		}
	}
}

func TestSearchersAgreeOnBatch(t *testing.T) {
	msg, offset, err := pow.Prepare(testWork(), 0)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	batch := Batch{Message: msg, NonceOffset: offset, StartNonce: 1000, Size: 2048, Difficulty: 2}
	_, want, err := pow.Search(context.Background(), msg, offset, batch.StartNonce, batch.Size, batch.Difficulty)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	searchers := []Searcher{
		newCPUSearcher(1),
		newCPUSearcher(3),
		newCPUSearcher(5000),
		emulatorSearcher(Options{Threads: 64}),
	}
	for _, s := range searchers {
		sol, found, err := s.SearchBatch(context.Background(), batch)
		if err != nil {
			t.Fatalf("%s: %v", s.Name(), err)
		}
		if found != want {
			t.Fatalf("%s found = %v, want %v", s.Name(), found, want)
		}
		if !found {
			continue
		}
		if sol.Nonce < batch.StartNonce || sol.Nonce >= batch.StartNonce+batch.Size {
			t.Errorf("%s nonce %d outside batch", s.Name(), sol.Nonce)
		}
		if err := pow.Verify(msg, offset, sol.Nonce, batch.Difficulty, sol.Digest); err != nil {
			t.Errorf("%s: %v", s.Name(), err)
		}
	}
}

func TestCPUSearcherCancelled(t *testing.T) {
	msg, offset, _ := pow.Prepare(testWork(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, found, err := newCPUSearcher(2).SearchBatch(ctx, Batch{
		Message: msg, NonceOffset: offset, Size: 1 << 20, Difficulty: pow.MaxDifficulty + 1,
	})
	if found || !errors.Is(err, context.Canceled) {
		t.Errorf("found=%v err=%v, want context.Canceled", found, err)
	}
}

func TestRunFindsSolution(t *testing.T) {
	var hooks []Progress
	m, err := New(emulatorSearcher(Options{Threads: 32}), Config{
		Work:       testWork(),
		StartNonce: 77,
		Difficulty: 3,
		BatchSize:  512,
	},
		WithLogger(quietLogger()),
		WithBatchHook(func(p Progress) error {
			hooks = append(hooks, p)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Found {
		t.Fatal("no solution found")
	}
	if err := pow.Verify(m.Message(), pow.NonceOffset, res.Solution.Nonce, 3, res.Solution.Digest); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uint64(len(hooks)) != res.Batches-1 {
		t.Errorf("%d hook calls for %d batches", len(hooks), res.Batches)
	}
	next := uint64(77)
	for i, p := range hooks {
		if p.StartNonce != next || p.NextNonce != next+512 {
			t.Errorf("batch %d covered [%d,%d), want start %d", i, p.StartNonce, p.NextNonce, next)
		}
		next = p.NextNonce
	}
	if res.Solution.Nonce < next || res.Solution.Nonce >= next+512 {
		t.Errorf("solution %d not in final batch starting at %d", res.Solution.Nonce, next)
	}
}

func TestRunStopsAfterMaxBatches(t *testing.T) {
	calls := 0
	m, err := New(newCPUSearcher(2), Config{
		Work:       testWork(),
		StartNonce: 10,
		Difficulty: pow.MaxDifficulty + 1,
		BatchSize:  100,
		MaxBatches: 3,
	}, WithLogger(quietLogger()), WithBatchHook(func(Progress) error {
		calls++
		return nil
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Found || res.Batches != 3 || res.NextNonce != 310 || res.Hashes != 300 {
		t.Errorf("result = %+v", res)
	}
	if calls != 3 {
		t.Errorf("hook calls = %d, want 3", calls)
	}
}

func TestRunHookErrorStops(t *testing.T) {
	stop := errors.New("stop")
	m, _ := New(newCPUSearcher(1), Config{
		Work: testWork(), Difficulty: pow.MaxDifficulty + 1, BatchSize: 10,
	}, WithLogger(quietLogger()), WithBatchHook(func(p Progress) error {
		if p.Batches == 2 {
			return stop
		}
		return nil
	}))

	res, err := m.Run(context.Background())
	if !errors.Is(err, stop) {
		t.Fatalf("error = %v, want hook error", err)
	}
	if res.Batches != 2 || res.NextNonce != 20 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunCancelledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, _ := New(newCPUSearcher(1), Config{
		Work: testWork(), Difficulty: pow.MaxDifficulty + 1, BatchSize: 10,
	}, WithLogger(quietLogger()), WithBatchHook(func(p Progress) error {
		if p.Batches == 1 {
			cancel()
		}
		return nil
	}))

	res, err := m.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if res.Batches != 1 || res.NextNonce != 10 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunExhaustsNonceSpace(t *testing.T) {
	m, _ := New(newCPUSearcher(1), Config{
		Work:       testWork(),
		StartNonce: math.MaxUint64 - 10,
		Difficulty: pow.MaxDifficulty + 1,
		BatchSize:  8,
	}, WithLogger(quietLogger()))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Exhausted || res.Batches != 2 || res.NextNonce != math.MaxUint64 {
		t.Errorf("result = %+v", res)
	}
	if res.Hashes != 11 {
		t.Errorf("hashes = %d, want 11", res.Hashes)
	}
}

type recordingSearcher struct {
	batches []Batch
}

func (r *recordingSearcher) Name() string { return "recording" }

func (r *recordingSearcher) SearchBatch(_ context.Context, b Batch) (pow.Solution, bool, error) {
	r.batches = append(r.batches, b)
	return pow.Solution{}, false, nil
}

func TestRunSearchesTopNonce(t *testing.T) {
	tests := []struct {
		name  string
		start uint64
		batch uint64
		sizes []uint64
	}{
		{"clipped batch", math.MaxUint64 - 10, 8, []uint64{8, 3}},
		{"single nonce left", math.MaxUint64, 8, []uint64{1}},
		{"exact fit", math.MaxUint64 - 15, 8, []uint64{8, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSearcher{}
			m, err := New(s, Config{Work: testWork(), StartNonce: tt.start, BatchSize: tt.batch}, WithLogger(quietLogger()))
			if err != nil {
				t.Fatal(err)
			}
			res, err := m.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !res.Exhausted {
				t.Error("expected Exhausted")
			}
			if len(s.batches) != len(tt.sizes) {
				t.Fatalf("batches = %+v", s.batches)
			}
			for i, want := range tt.sizes {
				if s.batches[i].Size != want {
					t.Errorf("batch %d size = %d, want %d", i, s.batches[i].Size, want)
				}
			}
			lastBatch := s.batches[len(s.batches)-1]
			if lastBatch.StartNonce+(lastBatch.Size-1) != math.MaxUint64 {
				t.Errorf("last batch %+v does not reach 2^64-1", lastBatch)
			}
		})
	}
}

type fixedSearcher struct {
	sol pow.Solution
}

func (f fixedSearcher) Name() string { return "fixed" }

func (f fixedSearcher) SearchBatch(context.Context, Batch) (pow.Solution, bool, error) {
	return f.sol, true, nil
}

func TestRunRejectsUnverifiedSolution(t *testing.T) {
	m, _ := New(fixedSearcher{pow.Solution{Nonce: 3, Digest: [32]byte{0xff}}}, Config{
		Work: testWork(), Difficulty: 1, BatchSize: 10,
	}, WithLogger(quietLogger()))

	_, err := m.Run(context.Background())
	if !errors.Is(err, ErrInvalidSolution) {
		t.Errorf("error = %v, want ErrInvalidSolution", err)
	}
}

func TestRunPropagatesDeviceErrors(t *testing.T) {
	drv := emulator.New(emulator.Config{Faults: emulator.Faults{Context: errors.New("no context")}})
	m, _ := New(NewDeviceSearcher(drv, Options{Logger: quietLogger()}), Config{
		Work: testWork(), Difficulty: 1, BatchSize: 64,
	}, WithLogger(quietLogger()))

	_, err := m.Run(context.Background())
	if !errors.Is(err, device.ErrSetup) {
		t.Errorf("error = %v, want ErrSetup", err)
	}
	if drv.LiveTotal() != 0 {
		t.Error("device handles leaked")
	}
}

func TestDeviceDiagnosticsOnFirstBatchOnly(t *testing.T) {
	var diag bytes.Buffer
	s := emulatorSearcher(Options{
		Threads:  16,
		Verbose:  true,
		Observer: device.NewTextObserver(&diag),
		Logger:   quietLogger(),
	})
	m, _ := New(s, Config{
		Work: testWork(), Difficulty: pow.MaxDifficulty + 1, BatchSize: 64, MaxBatches: 3,
	}, WithLogger(quietLogger()))

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := strings.Count(diag.String(), "Device 0:"); n != 1 {
		t.Errorf("device info printed %d times:\n%s", n, diag.String())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	bad := testWork()
	bad.Miner = "not-an-address"
	if _, err := New(newCPUSearcher(1), Config{Work: bad}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad miner: %v", err)
	}
	if _, err := New(newCPUSearcher(1), Config{Work: testWork(), Difficulty: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative difficulty: %v", err)
	}
	long := testWork()
	long.Entropy = base64.StdEncoding.EncodeToString(make([]byte, pow.MaxMessageSize))
	if _, err := New(newCPUSearcher(1), Config{Work: long}); !errors.Is(err, pow.ErrMessageTooLong) {
		t.Errorf("long entropy: %v", err)
	}
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	digest := [32]byte{0x00, 0x0a, 0xff}
	if err := WriteResult(&buf, Result{Found: true, Solution: pow.Solution{Nonce: 1234, Digest: digest}}); err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"hash\": \"000aff" + strings.Repeat("00", 29) + "\",\n  \"nonce\": 1234\n}\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := WriteResult(&buf, Result{}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != NotFoundMessage+"\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRateMeter(t *testing.T) {
	m := newRateMeter()
	m.record(100, 2500)
	m.record(50, 1250)
	if got := m.take(); got != 1250 {
		t.Errorf("take = %v, want latest rate", got)
	}
	if got := m.take(); got != 0 {
		t.Errorf("second take = %v, want 0", got)
	}
	if m.total.Load() != 150 {
		t.Errorf("total = %d", m.total.Load())
	}
}
