// Package server runs mining sessions in the background behind an HTTP
// API with server-sent progress events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/keccakminer/internal/miner"
	"github.com/cwbudde/keccakminer/internal/pow"
	"github.com/cwbudde/keccakminer/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager  *JobManager
	addr        string
	server      *http.Server
	store       store.Store
	newSearcher SearcherFactory
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables checkpoints and resume through st.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithSearcherFactory replaces the backend factory used for new jobs.
func WithSearcherFactory(f SearcherFactory) Option {
	return func(s *Server) { s.newSearcher = f }
}

// NewServer creates a new HTTP server
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		jobManager:  NewJobManager(),
		addr:        addr,
		newSearcher: defaultSearcherFactory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/backends", s.handleBackends)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/checkpoints", s.handleCheckpoints)
	mux.HandleFunc("/api/v1/checkpoints/", s.handleCheckpointsWithID)
	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.jobManager.CancelAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// startJob launches the worker of a registered job.
func (s *Server) startJob(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.jobManager.setCancel(jobID, cancel)
	go func() {
		defer cancel()
		runJob(ctx, s.jobManager, s.store, s.newSearcher, jobID)
	}()
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	jobID, sub, ok := splitIDPath(r.URL.Path, "/api/v1/jobs/")
	if !ok {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	switch {
	case (sub == "" || sub == "status") && r.Method == http.MethodGet:
		s.handleGetJobStatus(w, r, jobID)
	case (sub == "" && r.Method == http.MethodDelete) || (sub == "cancel" && r.Method == http.MethodPost):
		s.handleCancelJob(w, r, jobID)
	case sub == "stream" && r.Method == http.MethodGet:
		s.handleJobStream(w, r, jobID)
	case sub == "trace" && r.Method == http.MethodGet:
		s.handleGetTrace(w, r, jobID)
	case sub == "" || sub == "status" || sub == "cancel" || sub == "stream" || sub == "trace":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if err := normalizeConfig(&config); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)
	s.startJob(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// normalizeConfig fills defaults and rejects configs no backend can mine.
func normalizeConfig(config *JobConfig) error {
	if config.Entropy == "" {
		return errors.New("entropy is required")
	}
	if config.Miner == "" {
		return errors.New("miner is required")
	}
	if config.Difficulty < 0 {
		return errors.New("difficulty cannot be negative")
	}
	if _, _, err := pow.Prepare(pow.Work{Block: config.Block, Entropy: config.Entropy, Miner: config.Miner}, 0); err != nil {
		return err
	}
	if config.BatchSize == 0 {
		config.BatchSize = miner.DefaultBatchSize
	}
	if config.Threads <= 0 {
		config.Threads = miner.DefaultThreads
	}

	backend := miner.NormalizeBackend(config.Backend)
	known := false
	for _, b := range miner.SupportedBackends() {
		if b == backend {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("%w: %s", miner.ErrUnknownBackend, config.Backend)
	}
	config.Backend = string(backend)
	return nil
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// JobStatus is the status view of a job.
type JobStatus struct {
	Job
	Elapsed      float64 `json:"elapsed"` // seconds
	AvgHashRate  float64 `json:"avgHashRate"`
	HashRateText string  `json:"hashRateText"`
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}
	avg := 0.0
	if elapsed > 0 {
		avg = float64(job.Hashes) / elapsed.Seconds()
	}

	writeJSON(w, http.StatusOK, JobStatus{
		Job:          job,
		Elapsed:      elapsed.Seconds(),
		AvgHashRate:  avg,
		HashRateText: pow.FormatHashRate(job.HashRate),
	})
}

// handleCancelJob handles DELETE /api/v1/jobs/:id and POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	fsStore, ok := s.store.(*store.FSStore)
	if !ok {
		http.Error(w, "Tracing not enabled", http.StatusNotFound)
		return
	}
	entries, err := store.ReadTrace(fsStore.BaseDir(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCheckpoints handles GET /api/v1/checkpoints
func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "Checkpoints not enabled", http.StatusNotFound)
		return
	}
	infos, err := s.store.ListCheckpoints()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleCheckpointsWithID handles POST /api/v1/checkpoints/:id/resume
func (s *Server) handleCheckpointsWithID(w http.ResponseWriter, r *http.Request) {
	jobID, sub, ok := splitIDPath(r.URL.Path, "/api/v1/checkpoints/")
	if !ok || sub != "resume" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "Checkpoints not enabled", http.StatusNotFound)
		return
	}

	cp, err := s.store.LoadCheckpoint(jobID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Checkpoint not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := cp.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if cp.Found {
		http.Error(w, "Session already found a solution", http.StatusConflict)
		return
	}

	job, err := s.jobManager.ResumeJob(cp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.startJob(job.ID)

	slog.Info("Resumed job from checkpoint", "job_id", job.ID, "next_nonce", cp.NextNonce, "batches", cp.Batches)
	writeJSON(w, http.StatusAccepted, job)
}

// handleBackends handles GET /api/v1/backends
func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, miner.SupportedBackends())
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func splitIDPath(path, prefix string) (id, sub string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}
	id, sub, _ = strings.Cut(rest, "/")
	return id, sub, id != ""
}
