package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/keccakminer/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the job server for mining sessions.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

var statusClient = &http.Client{Timeout: 10 * time.Second}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), serverURL)
	}
	return getJobStatus(cmd.OutOrStdout(), serverURL, args[0])
}

// fetchJSON decodes the response of GET url into v.
func fetchJSON(url string, v any) (int, error) {
	resp, err := statusClient.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(out io.Writer, baseURL string) error {
	var jobs []server.Job
	if _, err := fetchJSON(baseURL+"/api/v1/jobs", &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Block: %d (difficulty %d, %s)\n", job.Config.Block, job.Config.Difficulty, job.Config.Backend)
		fmt.Fprintf(out, "  Batches: %d, next nonce %d\n", job.Batches, job.NextNonce)
		if job.Found {
			fmt.Fprintf(out, "  Solution: nonce %d, hash %s\n", job.Nonce, job.Hash)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(out io.Writer, baseURL, jobID string) error {
	var status server.JobStatus
	code, err := fetchJSON(fmt.Sprintf("%s/api/v1/jobs/%s/status", baseURL, jobID), &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	cfg := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Block: %d\n", cfg.Block)
	fmt.Fprintf(out, "  Difficulty: %d\n", cfg.Difficulty)
	fmt.Fprintf(out, "  Miner: %s\n", cfg.Miner)
	fmt.Fprintf(out, "  Backend: %s (%d threads)\n", cfg.Backend, cfg.Threads)
	fmt.Fprintf(out, "  Batch size: %d\n", cfg.BatchSize)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Batches: %d\n", status.Batches)
	fmt.Fprintf(out, "  Next nonce: %d\n", status.NextNonce)
	fmt.Fprintf(out, "  Hashes: %d\n", status.Hashes)
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  Hash rate: %s\n", status.HashRateText)

	if status.Found {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Solution:")
		fmt.Fprintf(out, "  Nonce: %d\n", status.Nonce)
		fmt.Fprintf(out, "  Hash: %s\n", status.Hash)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
