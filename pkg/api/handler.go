// Package api exposes the runner protocol and the admin surface over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

// availableJobsPageSize caps how many pending jobs one poll returns
const availableJobsPageSize = 10

// MetricsRecorder records protocol outcomes for the exporter
type MetricsRecorder interface {
	RecordClaimAttempt(result string)
}

// Handler handles runner protocol and admin API requests
type Handler struct {
	store   store.Store
	engine  *engine.Engine
	storage objstore.Storage
	logger  *logging.Logger

	metricsRecorder MetricsRecorder
}

// NewHandler creates an API handler
func NewHandler(s store.Store, e *engine.Engine, storage objstore.Storage, logger *logging.Logger) *Handler {
	return &Handler{
		store:   s,
		engine:  e,
		storage: storage,
		logger:  logger,
	}
}

// SetMetricsRecorder sets the metrics recorder for the handler
func (h *Handler) SetMetricsRecorder(recorder MetricsRecorder) {
	h.metricsRecorder = recorder
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Runner session routes
	v1.HandleFunc("/runners/register", h.RegisterRunner).Methods("POST")
	v1.HandleFunc("/runners/unregister", h.UnregisterRunner).Methods("POST")

	// Job protocol routes (specific routes before parameterized ones)
	v1.HandleFunc("/runners/jobs/request", h.RequestJobs).Methods("POST")
	v1.HandleFunc("/runners/jobs/files/videos/{videoUUID}/{jobUUID}/max-quality", h.DownloadMaxQualityFile).Methods("POST", "GET")
	v1.HandleFunc("/runners/jobs/{jobUUID}/accept", h.AcceptJob).Methods("POST")
	v1.HandleFunc("/runners/jobs/{jobUUID}/update", h.UpdateJob).Methods("POST")
	v1.HandleFunc("/runners/jobs/{jobUUID}/error", h.ErrorJob).Methods("POST")
	v1.HandleFunc("/runners/jobs/{jobUUID}/abort", h.AbortJob).Methods("POST")
	v1.HandleFunc("/runners/jobs/{jobUUID}/success", h.SuccessJob).Methods("POST")

	// Admin routes
	v1.HandleFunc("/admin/jobs", h.AdminListJobs).Methods("GET")
	v1.HandleFunc("/admin/jobs/{jobUUID}/cancel", h.AdminCancelJob).Methods("POST")
	v1.HandleFunc("/admin/runners", h.AdminListRunners).Methods("GET")
	v1.HandleFunc("/admin/registration-tokens", h.AdminListRegistrationTokens).Methods("GET")
	v1.HandleFunc("/admin/registration-tokens", h.AdminCreateRegistrationToken).Methods("POST")

	r.HandleFunc("/health", h.Health).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// RegisterRunner exchanges a registration token for a runner credential
func (h *Handler) RegisterRunner(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RegistrationToken string `json:"registrationToken"`
		Name              string `json:"name"`
		Description       string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" {
		http.Error(w, "Runner name is required", http.StatusBadRequest)
		return
	}

	token, err := h.store.GetRegistrationToken(body.RegistrationToken)
	if errors.Is(err, store.ErrRegistrationTokenNotFound) {
		http.Error(w, "Unknown registration token", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to check registration token", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	runner := &models.Runner{
		ID:                  uuid.New(),
		RunnerToken:         models.GenerateRunnerToken(),
		Name:                body.Name,
		Description:         body.Description,
		IP:                  clientIP(r),
		LastContact:         now,
		RegistrationTokenID: token.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := h.store.CreateRunner(runner); err != nil {
		h.logger.Error("Failed to register runner", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to register runner", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Runner registered", map[string]interface{}{
		"runner": runner.Name,
		"ip":     runner.IP,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runnerToken": runner.RunnerToken,
		"runner": RunnerSummary{
			ID:   runner.ID.String(),
			Name: runner.Name,
		},
	})
}

// UnregisterRunner deletes a runner
func (h *Handler) UnregisterRunner(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	if err := h.store.DeleteRunner(runner.ID); err != nil {
		http.Error(w, "Failed to unregister runner", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Runner unregistered", map[string]interface{}{"runner": runner.Name})
	w.WriteHeader(http.StatusNoContent)
}

// RequestJobs lists pending jobs a runner could claim, browse-before-claim
func (h *Handler) RequestJobs(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	var types []models.RunnerJobType
	for _, t := range req.JobTypes {
		jobType := models.RunnerJobType(t)
		if models.KnownJobType(jobType) {
			types = append(types, jobType)
		}
	}

	jobs, err := h.store.ListAvailableJobs(types, availableJobsPageSize)
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	available := make([]SimpleRunnerJob, 0, len(jobs))
	for _, job := range jobs {
		available = append(available, newSimpleRunnerJob(job))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"availableJobs": available})
}

// AcceptJob atomically claims a pending job for the calling runner
func (h *Handler) AcceptJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	jobUUID, ok := h.jobUUIDVar(w, r)
	if !ok {
		return
	}

	job, err := h.engine.Accept(jobUUID, runner)
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		h.recordClaim("not_found")
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	case errors.Is(err, store.ErrJobNotPending):
		h.recordClaim("conflict")
		http.Error(w, "Job is not pending anymore", http.StatusConflict)
		return
	case err != nil:
		h.recordClaim("error")
		h.logger.Error("Failed to accept job", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to accept job", http.StatusInternalServerError)
		return
	}
	h.recordClaim("accepted")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job": newRunnerJobView(job, runner, h.parentOf(job), true),
	})
}

// UpdateJob stores a progress report
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	job, ok := h.loadProcessingJob(w, r, req)
	if !ok {
		return
	}

	payload, closeFiles, err := req.updatePayload()
	if err != nil {
		http.Error(w, "Failed to read uploads", http.StatusBadRequest)
		return
	}
	defer closeFiles()

	if err := h.engine.Update(job, req.Progress, payload); err != nil {
		h.logger.Error("Failed to update job", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		http.Error(w, "Failed to update job", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ErrorJob records a runner-reported failure
func (h *Handler) ErrorJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	job, ok := h.loadProcessingJob(w, r, req)
	if !ok {
		return
	}

	job.Failures++

	if err := h.engine.Error(job, req.Message, false); err != nil {
		h.logger.Error("Failed to record job error", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		http.Error(w, "Failed to record job error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AbortJob stops a processing job on the runner's initiative
func (h *Handler) AbortJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	job, ok := h.loadProcessingJob(w, r, req)
	if !ok {
		return
	}

	job.Failures++

	if err := h.engine.Abort(job); err != nil {
		h.logger.Error("Failed to abort job", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		http.Error(w, "Failed to abort job", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SuccessJob finishes a job with its result payload
func (h *Handler) SuccessJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	job, ok := h.loadProcessingJob(w, r, req)
	if !ok {
		return
	}

	result, closeFiles, err := req.resultPayload()
	if err != nil {
		http.Error(w, "Failed to read uploads", http.StatusBadRequest)
		return
	}
	defer closeFiles()

	if err := h.engine.Complete(job, result); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		http.Error(w, "Failed to complete job", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DownloadMaxQualityFile redirects the caller to the highest resolution
// stored file of a video.
func (h *Handler) DownloadMaxQualityFile(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProtocolRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runner := h.authenticateRunner(w, r, req)
	if runner == nil {
		return
	}

	vars := mux.Vars(r)
	videoUUID, err := uuid.Parse(vars["videoUUID"])
	if err != nil {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}

	video, err := h.store.GetVideo(videoUUID)
	if errors.Is(err, store.ErrVideoNotFound) {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load video", http.StatusInternalServerError)
		return
	}

	files, err := h.store.ListVideoFiles(video.ID)
	if err != nil {
		http.Error(w, "Failed to list video files", http.StatusInternalServerError)
		return
	}

	best := models.MaxQualityFile(files)
	if best == nil {
		http.Error(w, "Video has no files", http.StatusNotFound)
		return
	}

	location := h.storage.URL(best.Filename)
	if !strings.Contains(location, "://") {
		// Relative storage URL: rewrite through the origin the job was
		// created for so the runner can reach it.
		if jobUUID, err := uuid.Parse(vars["jobUUID"]); err == nil {
			if job, err := h.store.GetJob(jobUUID); err == nil && job.Domain != "" {
				location = strings.TrimSuffix(job.Domain, "/") + "/" + strings.TrimPrefix(location, "/")
			}
		}
	}

	http.Redirect(w, r, location, http.StatusFound)
}

// authenticateRunner resolves the calling runner from its token, writes the
// not-found response itself and performs the debounced last-contact update.
func (h *Handler) authenticateRunner(w http.ResponseWriter, r *http.Request, req *protocolRequest) *models.Runner {
	runner, err := h.store.GetRunnerByToken(req.RunnerToken)
	if errors.Is(err, store.ErrRunnerNotFound) {
		http.Error(w, "Unknown runner token", http.StatusNotFound)
		return nil
	}
	if err != nil {
		http.Error(w, "Failed to authenticate runner", http.StatusInternalServerError)
		return nil
	}

	if runner.TouchContact(clientIP(r), time.Now()) {
		if err := h.store.UpdateRunner(runner); err != nil {
			h.logger.Warn("Failed to update runner contact", map[string]interface{}{
				"runner": runner.Name,
				"error":  err.Error(),
			})
		}
	}

	return runner
}

func (h *Handler) jobUUIDVar(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobUUID, err := uuid.Parse(mux.Vars(r)["jobUUID"])
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return jobUUID, true
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*models.RunnerJob, bool) {
	jobUUID, ok := h.jobUUIDVar(w, r)
	if !ok {
		return nil, false
	}

	job, err := h.store.GetJob(jobUUID)
	if errors.Is(err, store.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return nil, false
	}

	return job, true
}

// loadProcessingJob loads a job and checks the ephemeral token issued on
// accept. Everything a runner reports about a claimed job goes through here.
func (h *Handler) loadProcessingJob(w http.ResponseWriter, r *http.Request, req *protocolRequest) (*models.RunnerJob, bool) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return nil, false
	}

	if job.State != models.JobStateProcessing || job.ProcessingJobToken == "" || job.ProcessingJobToken != req.JobToken {
		http.Error(w, "Unknown job token", http.StatusNotFound)
		return nil, false
	}

	return job, true
}

func (h *Handler) parentOf(job *models.RunnerJob) *models.RunnerJob {
	if job.DependsOnRunnerJob == nil {
		return nil
	}
	parent, err := h.store.GetJob(*job.DependsOnRunnerJob)
	if err != nil {
		return nil
	}
	return parent
}

func (h *Handler) recordClaim(result string) {
	if h.metricsRecorder != nil {
		h.metricsRecorder.RecordClaimAttempt(result)
	}
}
