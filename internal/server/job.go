package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/keccakminer/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateExhausted JobState = "exhausted"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job has stopped.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateExhausted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job is a mining session run by the server.
type Job struct {
	ID     string    `json:"id"`
	State  JobState  `json:"state"`
	Config JobConfig `json:"config"`

	NextNonce uint64  `json:"nextNonce"`
	Batches   uint64  `json:"batches"`
	Hashes    uint64  `json:"hashes"`
	HashRate  float64 `json:"hashRate"`

	Found bool   `json:"found"`
	Hash  string `json:"hash,omitempty"`
	Nonce uint64 `json:"nonce,omitempty"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job starting at config.StartNonce.
func (jm *JobManager) CreateJob(config JobConfig) Job {
	return jm.addJob(&Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		NextNonce: config.StartNonce,
		StartTime: time.Now(),
	})
}

// ResumeJob registers a pending job continuing from checkpoint. It fails if
// a job with the same ID is still running.
func (jm *JobManager) ResumeJob(cp *store.Checkpoint) (Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if existing, ok := jm.jobs[cp.JobID]; ok && !existing.State.Terminal() {
		return Job{}, fmt.Errorf("job %s is still %s", cp.JobID, existing.State)
	}
	job := &Job{
		ID:        cp.JobID,
		State:     StatePending,
		Config:    cp.Config,
		NextNonce: cp.NextNonce,
		Batches:   cp.Batches,
		Hashes:    cp.Hashes,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job
	return *job, nil
}

func (jm *JobManager) addJob(job *Job) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[job.ID] = job
	return *job
}

// GetJob returns a snapshot of the job with the given ID.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, *job)
		}
	}
	return running
}

// setCancel registers the cancel function of a running job.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.cancels[id] = cancel
}

// finishJob applies updateFn and drops the cancel function of the run in
// one step, so a job resumed under the same ID keeps its own.
func (jm *JobManager) finishJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	updateFn(job)
	delete(jm.cancels, id)
	return nil
}

// CancelJob stops a pending or running job after its current batch.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s already %s", id, job.State)
	}
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
	}
	return nil
}

// CancelAll stops every job that is still running.
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	for _, cancel := range jm.cancels {
		cancel()
	}
}
