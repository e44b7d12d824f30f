package miner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/keccakminer/internal/pow"
)

const (
	// DefaultThreads is the default work-group size and CPU worker count.
	DefaultThreads = 4
	// DefaultBatchSize is the default number of nonces per batch.
	DefaultBatchSize uint64 = 10_000_000
	// DefaultReportInterval is how often the hash rate is reported.
	DefaultReportInterval = time.Second
)

var (
	// ErrInvalidConfig is returned by New for unusable mining parameters.
	ErrInvalidConfig = errors.New("invalid mining config")
	// ErrInvalidSolution means a backend reported a nonce whose digest does
	// not verify on the CPU.
	ErrInvalidSolution = errors.New("backend reported an invalid solution")
)

// Config describes one mining session.
type Config struct {
	Work       pow.Work
	StartNonce uint64
	Difficulty int
	BatchSize  uint64
	// MaxBatches ends the run after that many batches. Zero runs until a
	// solution is found or the context is cancelled.
	MaxBatches uint64
	Verbose    bool
}

// Progress is reported after every completed batch.
type Progress struct {
	Batches    uint64
	StartNonce uint64
	NextNonce  uint64
	Hashes     uint64
	// HashRate is the rate of the batch just completed, in hashes per second.
	HashRate float64
	Elapsed  time.Duration
}

// Result summarises a run.
type Result struct {
	Found     bool
	Solution  pow.Solution
	Batches   uint64
	NextNonce uint64
	Hashes    uint64
	Elapsed   time.Duration
	// Exhausted is set when every nonce up to 2^64-1 was tried without a
	// solution.
	Exhausted bool
}

// Miner searches batch after batch with a Searcher.
type Miner struct {
	searcher       Searcher
	cfg            Config
	message        []byte
	offset         int
	logger         *slog.Logger
	onBatch        func(Progress) error
	reportInterval time.Duration
}

// Option configures a Miner.
type Option func(*Miner)

// WithLogger sets the logger used for batch and hash-rate reports.
func WithLogger(l *slog.Logger) Option {
	return func(m *Miner) { m.logger = l }
}

// WithBatchHook calls fn after every batch that found nothing. A non-nil
// error stops the run.
func WithBatchHook(fn func(Progress) error) Option {
	return func(m *Miner) { m.onBatch = fn }
}

// WithReportInterval sets the hash-rate reporting period. Zero disables it.
func WithReportInterval(d time.Duration) Option {
	return func(m *Miner) { m.reportInterval = d }
}

// New validates cfg and prepares the message.
func New(s Searcher, cfg Config, opts ...Option) (*Miner, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Difficulty < 0 {
		return nil, fmt.Errorf("%w: negative difficulty %d", ErrInvalidConfig, cfg.Difficulty)
	}
	msg, offset, err := pow.Prepare(cfg.Work, cfg.StartNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	m := &Miner{
		searcher:       s,
		cfg:            cfg,
		message:        msg,
		offset:         offset,
		logger:         slog.Default(),
		reportInterval: DefaultReportInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Message returns the prepared message with the start nonce in place.
func (m *Miner) Message() []byte {
	return m.message
}

// Run searches until a solution is found, MaxBatches is reached, the nonce
// space is exhausted or ctx is cancelled. Cancellation is checked between
// batches; a batch in flight on a device runs to completion.
func (m *Miner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	meter := newRateMeter()
	if m.reportInterval > 0 {
		monitorCtx, stop := context.WithCancel(ctx)
		defer stop()
		go m.monitorHashRate(monitorCtx, meter)
	}

	res := Result{NextNonce: m.cfg.StartNonce}
	for {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		if m.cfg.MaxBatches > 0 && res.Batches >= m.cfg.MaxBatches {
			break
		}

		batchStart := res.NextNonce
		size := m.cfg.BatchSize
		last := false
		if size-1 >= math.MaxUint64-batchStart {
			// The last batch ends at nonce 2^64-1.
			size = math.MaxUint64 - batchStart + 1
			last = true
		}

		if m.cfg.Verbose {
			m.logger.Info("Mining batch",
				"backend", m.searcher.Name(),
				"start_nonce", batchStart,
				"block", m.cfg.Work.Block,
				"difficulty", m.cfg.Difficulty,
				"hash", m.cfg.Work.Entropy,
			)
		}

		batchBegin := time.Now()
		sol, found, err := m.searcher.SearchBatch(ctx, Batch{
			Message:     m.message,
			NonceOffset: m.offset,
			StartNonce:  batchStart,
			Size:        size,
			Difficulty:  m.cfg.Difficulty,
			First:       res.Batches == 0,
		})
		batchElapsed := time.Since(batchBegin)
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("batch at nonce %d: %w", batchStart, err)
		}

		hashes := size
		if found {
			hashes = sol.Nonce - batchStart + 1
		}
		rate := 0.0
		if batchElapsed > 0 {
			rate = float64(hashes) / batchElapsed.Seconds()
		}
		meter.record(hashes, rate)

		res.Batches++
		res.Hashes += hashes

		if found {
			if err := pow.Verify(m.message, m.offset, sol.Nonce, m.cfg.Difficulty, sol.Digest); err != nil {
				res.Elapsed = time.Since(start)
				return res, fmt.Errorf("%w: %w", ErrInvalidSolution, err)
			}
			res.Found = true
			res.Solution = sol
			res.NextNonce = sol.Nonce + 1
			res.Elapsed = time.Since(start)
			m.logger.Info("Solution found",
				"backend", m.searcher.Name(),
				"nonce", sol.Nonce,
				"batches", res.Batches,
				"elapsed", res.Elapsed,
			)
			return res, nil
		}

		if last {
			// NextNonce cannot pass 2^64-1; Exhausted marks that it was tried.
			res.NextNonce = math.MaxUint64
			res.Exhausted = true
		} else {
			res.NextNonce = batchStart + size
		}
		if m.onBatch != nil {
			err := m.onBatch(Progress{
				Batches:    res.Batches,
				StartNonce: batchStart,
				NextNonce:  res.NextNonce,
				Hashes:     res.Hashes,
				HashRate:   rate,
				Elapsed:    time.Since(start),
			})
			if err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
		}
		if res.Exhausted {
			break
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}
