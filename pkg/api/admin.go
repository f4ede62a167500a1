package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

var startTime = time.Now()

// AdminListJobs returns every job, newest first
func (h *Handler) AdminListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListJobs()
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	// One runner list per request, the jobs only carry runner IDs.
	runnersByID := make(map[uuid.UUID]*models.Runner)
	if runners, err := h.store.ListRunners(); err == nil {
		for _, runner := range runners {
			runnersByID[runner.ID] = runner
		}
	}

	views := make([]RunnerJobView, 0, len(jobs))
	for _, job := range jobs {
		var runner *models.Runner
		if job.RunnerID != nil {
			runner = runnersByID[*job.RunnerID]
		}
		views = append(views, newRunnerJobView(job, runner, h.parentOf(job), false))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  views,
		"count": len(views),
	})
}

// AdminCancelJob cancels a job and its descendants
func (h *Handler) AdminCancelJob(w http.ResponseWriter, r *http.Request) {
	jobUUID, err := uuid.Parse(mux.Vars(r)["jobUUID"])
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	job, err := h.store.GetJob(jobUUID)
	if errors.Is(err, store.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	if err := h.engine.Cancel(job, false); err != nil {
		h.logger.Error("Failed to cancel job", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminListRunners returns every registered runner
func (h *Handler) AdminListRunners(w http.ResponseWriter, r *http.Request) {
	runners, err := h.store.ListRunners()
	if err != nil {
		http.Error(w, "Failed to list runners", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runners": runners,
		"count":   len(runners),
	})
}

// AdminListRegistrationTokens returns every registration token
func (h *Handler) AdminListRegistrationTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.ListRegistrationTokens()
	if err != nil {
		http.Error(w, "Failed to list registration tokens", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"registrationTokens": tokens,
		"count":              len(tokens),
	})
}

// AdminCreateRegistrationToken mints a new registration token
func (h *Handler) AdminCreateRegistrationToken(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	token := &models.RunnerRegistrationToken{
		ID:                uuid.New(),
		RegistrationToken: models.GenerateRegistrationToken(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := h.store.CreateRegistrationToken(token); err != nil {
		http.Error(w, "Failed to create registration token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Registration token created", map[string]interface{}{
		"id": token.ID.String(),
	})

	writeJSON(w, http.StatusCreated, token)
}

// Health reports liveness plus a small system snapshot
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.store.HealthCheck(); err != nil {
		status = "degraded"
	}

	report := map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		report["cpu_percent"] = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		report["memory_used_percent"] = vm.UsedPercent
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}
