package server

import (
	"net/http"
	"time"
)

type jobSummary struct {
	ID        string    `json:"id"`
	State     JobState  `json:"state"`
	Block     uint32    `json:"block"`
	Backend   string    `json:"backend"`
	Batches   uint64    `json:"batches"`
	Found     bool      `json:"found"`
	StartTime time.Time `json:"startTime"`
}

type indexResponse struct {
	Service   string       `json:"service"`
	Endpoints []string     `json:"endpoints"`
	Jobs      []jobSummary `json:"jobs"`
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	jobs := s.jobManager.ListJobs()
	summaries := make([]jobSummary, len(jobs))
	for i, job := range jobs {
		summaries[i] = jobSummary{
			ID:        job.ID,
			State:     job.State,
			Block:     job.Config.Block,
			Backend:   job.Config.Backend,
			Batches:   job.Batches,
			Found:     job.Found,
			StartTime: job.StartTime,
		}
	}

	writeJSON(w, http.StatusOK, indexResponse{
		Service: "keccakminer",
		Endpoints: []string{
			"GET /api/v1/backends",
			"GET|POST /api/v1/jobs",
			"GET|DELETE /api/v1/jobs/{id}",
			"POST /api/v1/jobs/{id}/cancel",
			"GET /api/v1/jobs/{id}/stream",
			"GET /api/v1/jobs/{id}/trace",
			"GET /api/v1/checkpoints",
			"POST /api/v1/checkpoints/{id}/resume",
		},
		Jobs: summaries,
	})
}
