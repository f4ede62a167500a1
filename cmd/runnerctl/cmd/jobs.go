package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage runner jobs",
	Long:  `Commands for listing and cancelling jobs on the orchestrator.`,
}

// jobsListCmd represents the jobs list command
var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	Long:  `Retrieve and display every job known to the orchestrator, newest first.`,
	RunE:  runJobsList,
}

// jobsCancelCmd represents the jobs cancel command
var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-uuid>",
	Short: "Cancel a job",
	Long:  `Cancel a job and every job depending on it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
}

type jobStateInfo struct {
	ID    int    `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

type jobRunnerInfo struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type jobParentInfo struct {
	UUID string `json:"uuid" yaml:"uuid"`
	Type string `json:"type" yaml:"type"`
}

type jobInfo struct {
	UUID      string         `json:"uuid" yaml:"uuid"`
	Type      string         `json:"type" yaml:"type"`
	State     jobStateInfo   `json:"state" yaml:"state"`
	Priority  int            `json:"priority" yaml:"priority"`
	Failures  int            `json:"failures" yaml:"failures"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
	Progress  *float64       `json:"progress,omitempty" yaml:"progress,omitempty"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
	Runner    *jobRunnerInfo `json:"runner,omitempty" yaml:"runner,omitempty"`
	Parent    *jobParentInfo `json:"parent,omitempty" yaml:"parent,omitempty"`
}

type jobsListResponse struct {
	Jobs  []jobInfo `json:"jobs" yaml:"jobs"`
	Count int       `json:"count" yaml:"count"`
}

func runJobsList(cmd *cobra.Command, args []string) error {
	body, err := apiRequest("GET", "/api/v1/admin/jobs", nil)
	if err != nil {
		return err
	}

	var result jobsListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !isTableOutput() {
		return renderStructured(result)
	}

	if len(result.Jobs) == 0 {
		fmt.Println("No jobs")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("UUID", "Type", "State", "Priority", "Progress", "Runner")

	for _, job := range result.Jobs {
		progress := "-"
		if job.Progress != nil {
			progress = fmt.Sprintf("%.1f%%", *job.Progress)
		}

		runnerName := "-"
		if job.Runner != nil {
			runnerName = job.Runner.Name
		}

		table.Append(
			job.UUID,
			job.Type,
			job.State.Label,
			fmt.Sprintf("%d", job.Priority),
			progress,
			runnerName,
		)
	}

	table.Render()
	fmt.Printf("\nTotal jobs: %d\n", result.Count)
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	jobUUID := args[0]

	if _, err := apiRequest("POST", fmt.Sprintf("/api/v1/admin/jobs/%s/cancel", jobUUID), nil); err != nil {
		return err
	}

	fmt.Printf("Job %s cancelled\n", jobUUID)
	return nil
}
