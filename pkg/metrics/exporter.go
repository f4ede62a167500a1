// Package metrics exports Prometheus metrics for the orchestrator.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

// jobStateLabels fixes the exported states so every series always exists
var jobStateLabels = []models.RunnerJobState{
	models.JobStatePending,
	models.JobStateProcessing,
	models.JobStateCompleted,
	models.JobStateErrored,
	models.JobStateWaitingForParentJob,
	models.JobStateCancelled,
	models.JobStateParentErrored,
	models.JobStateParentCancelled,
	models.JobStateCompleting,
}

// Exporter exports Prometheus metrics for the orchestrator
type Exporter struct {
	store     store.Store
	startTime time.Time

	mu            sync.RWMutex
	claimAttempts map[string]int64 // result -> count
}

// NewExporter creates a Prometheus exporter backed by the job store
func NewExporter(s store.Store) *Exporter {
	return &Exporter{
		store:         s,
		startTime:     time.Now(),
		claimAttempts: make(map[string]int64),
	}
}

// RecordClaimAttempt records the outcome of a job claim
func (e *Exporter) RecordClaimAttempt(result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.claimAttempts[result]++
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	jobs, err := e.store.ListJobs()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error collecting job metrics: %v", err), http.StatusInternalServerError)
		return
	}

	jobsByState := make(map[models.RunnerJobState]int, len(jobStateLabels))
	for _, state := range jobStateLabels {
		jobsByState[state] = 0
	}
	jobsByType := make(map[models.RunnerJobType]int, len(models.JobTypes))
	for _, jobType := range models.JobTypes {
		jobsByType[jobType] = 0
	}
	for _, job := range jobs {
		jobsByState[job.State]++
		jobsByType[job.Type]++
	}

	fmt.Fprintf(w, "# HELP orchestrator_jobs_total Jobs by state\n")
	fmt.Fprintf(w, "# TYPE orchestrator_jobs_total gauge\n")
	for _, state := range jobStateLabels {
		fmt.Fprintf(w, "orchestrator_jobs_total{state=%q} %d\n", state.Label(), jobsByState[state])
	}

	fmt.Fprintf(w, "\n# HELP orchestrator_jobs_by_type Jobs by type\n")
	fmt.Fprintf(w, "# TYPE orchestrator_jobs_by_type gauge\n")
	for _, jobType := range models.JobTypes {
		fmt.Fprintf(w, "orchestrator_jobs_by_type{type=%q} %d\n", string(jobType), jobsByType[jobType])
	}

	fmt.Fprintf(w, "\n# HELP orchestrator_queue_length Jobs waiting to be claimed\n")
	fmt.Fprintf(w, "# TYPE orchestrator_queue_length gauge\n")
	fmt.Fprintf(w, "orchestrator_queue_length %d\n", jobsByState[models.JobStatePending])

	runners, err := e.store.ListRunners()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error collecting runner metrics: %v", err), http.StatusInternalServerError)
		return
	}

	active := 0
	for _, runner := range runners {
		if time.Since(runner.LastContact) < 2*models.ContactUpdateInterval {
			active++
		}
	}

	fmt.Fprintf(w, "\n# HELP orchestrator_runners_total Registered runners\n")
	fmt.Fprintf(w, "# TYPE orchestrator_runners_total gauge\n")
	fmt.Fprintf(w, "orchestrator_runners_total %d\n", len(runners))

	fmt.Fprintf(w, "\n# HELP orchestrator_runners_active Runners seen recently\n")
	fmt.Fprintf(w, "# TYPE orchestrator_runners_active gauge\n")
	fmt.Fprintf(w, "orchestrator_runners_active %d\n", active)

	e.mu.RLock()
	fmt.Fprintf(w, "\n# HELP orchestrator_claim_attempts_total Job claim attempts by result\n")
	fmt.Fprintf(w, "# TYPE orchestrator_claim_attempts_total counter\n")
	for result, count := range e.claimAttempts {
		fmt.Fprintf(w, "orchestrator_claim_attempts_total{result=%q} %d\n", result, count)
	}
	e.mu.RUnlock()

	fmt.Fprintf(w, "\n# HELP orchestrator_uptime_seconds Orchestrator uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE orchestrator_uptime_seconds gauge\n")
	fmt.Fprintf(w, "orchestrator_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	// Append whatever was registered on the default registry
	fmt.Fprintf(w, "\n")

	metricFamilies, err := promclient.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}
