package api

import (
	"encoding/json"
	"time"

	"github.com/psantana5/runner-orchestrator/pkg/models"
)

// SimpleRunnerJob is the job listing entry returned to polling runners:
// just enough to decide whether to claim.
type SimpleRunnerJob struct {
	UUID    string          `json:"uuid"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newSimpleRunnerJob(job *models.RunnerJob) SimpleRunnerJob {
	return SimpleRunnerJob{
		UUID:    job.UUID.String(),
		Type:    string(job.Type),
		Payload: job.Payload,
	}
}

// JobStateView pairs the numeric state with its label
type JobStateView struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// RunnerSummary is the runner reference embedded in job views
type RunnerSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParentSummary is the parent job reference embedded in job views
type ParentSummary struct {
	UUID string `json:"uuid"`
	Type string `json:"type"`
}

// RunnerJobView is the full job representation returned on accept and in the
// admin listing.
type RunnerJobView struct {
	UUID       string          `json:"uuid"`
	Type       string          `json:"type"`
	State      JobStateView    `json:"state"`
	Priority   int             `json:"priority"`
	Failures   int             `json:"failures"`
	Error      string          `json:"error,omitempty"`
	Progress   *float64        `json:"progress,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	JobToken   string          `json:"jobToken,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Runner     *RunnerSummary  `json:"runner,omitempty"`
	Parent     *ParentSummary  `json:"parent,omitempty"`
}

func newRunnerJobView(job *models.RunnerJob, runner *models.Runner, parent *models.RunnerJob, withToken bool) RunnerJobView {
	view := RunnerJobView{
		UUID:       job.UUID.String(),
		Type:       string(job.Type),
		State:      JobStateView{ID: int(job.State), Label: job.State.Label()},
		Priority:   job.Priority,
		Failures:   job.Failures,
		Error:      job.Error,
		Progress:   job.Progress,
		Payload:    job.Payload,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}

	if withToken {
		view.JobToken = job.ProcessingJobToken
	}
	if runner != nil {
		view.Runner = &RunnerSummary{ID: runner.ID.String(), Name: runner.Name}
	}
	if parent != nil {
		view.Parent = &ParentSummary{UUID: parent.UUID.String(), Type: string(parent.Type)}
	}

	return view
}
