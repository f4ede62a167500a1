package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

// Notifier is the push hint fired when jobs become available. Delivery is
// best-effort: runners also poll, so a missed notification never breaks
// correctness.
type Notifier interface {
	NotifyJobsAvailable()
}

// UpdatePayload carries the domain-specific part of a progress report.
// Live transcoding runners stream intermediate playlist and segment files
// through it.
type UpdatePayload struct {
	Files map[string]io.Reader
}

// ResultPayload carries the domain-specific part of a success report.
// Which fields are set depends on the job type.
type ResultPayload struct {
	VideoFile              io.Reader
	VideoFilename          string
	ResolutionPlaylistFile io.Reader
	InputLanguage          string
	VTTFile                io.Reader
}

// Handler implements the type-specific hooks of the job lifecycle.
// The engine drives the shared state machine and calls into the handler at
// well-defined points; handlers never mutate job state themselves.
type Handler interface {
	Type() models.RunnerJobType
	IsAbortSupported() bool

	SpecificUpdate(job *models.RunnerJob, payload *UpdatePayload) error
	SpecificComplete(job *models.RunnerJob, result *ResultPayload) error
	SpecificCancel(job *models.RunnerJob) error
	SpecificAbort(job *models.RunnerJob) error

	// SpecificError runs before the engine mutates the job state, so the
	// handler can distinguish a retry (nextState pending) from a terminal
	// failure and react only once.
	SpecificError(job *models.RunnerJob, message string, nextState models.RunnerJobState) error
}

// Engine drives the job state machine shared by every job type:
// creation, dependency release, retry policy and the failure/cancel cascades.
type Engine struct {
	store       store.Store
	notifier    Notifier
	logger      *logging.Logger
	maxFailures int

	handlers map[models.RunnerJobType]Handler
}

// New creates a job lifecycle engine
func New(s store.Store, notifier Notifier, logger *logging.Logger, maxFailures int) *Engine {
	return &Engine{
		store:       s,
		notifier:    notifier,
		logger:      logger,
		maxFailures: maxFailures,
		handlers:    make(map[models.RunnerJobType]Handler),
	}
}

// Register binds a handler to its job type
func (e *Engine) Register(h Handler) {
	e.handlers[h.Type()] = h
}

// HandlerFor returns the handler of a job type
func (e *Engine) HandlerFor(jobType models.RunnerJobType) (Handler, error) {
	h, ok := e.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", jobType)
	}
	return h, nil
}

// Store exposes the backing store to handlers
func (e *Engine) Store() store.Store {
	return e.store
}

// CreateJobParams describes a job to create. UUID may be set by the caller
// when the payload has to reference the job before it exists, typically for
// download URLs; the zero value means the engine picks one.
type CreateJobParams struct {
	UUID           uuid.UUID
	Type           models.RunnerJobType
	Domain         string
	Payload        interface{}
	PrivatePayload interface{}
	Priority       int
	DependsOnJob   *uuid.UUID
}

// CreateJob creates a job. A job with a parent starts waiting for it and only
// becomes pending once the parent completes; an independent job is pending
// immediately and fires the runner notification hint.
func (e *Engine) CreateJob(params CreateJobParams) (*models.RunnerJob, error) {
	if _, err := e.HandlerFor(params.Type); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	privatePayload, err := json.Marshal(params.PrivatePayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private payload: %w", err)
	}

	state := models.JobStatePending
	if params.DependsOnJob != nil {
		state = models.JobStateWaitingForParentJob
	}

	jobUUID := params.UUID
	if jobUUID == uuid.Nil {
		jobUUID = uuid.New()
	}

	now := time.Now()
	job := &models.RunnerJob{
		ID:                 uuid.New(),
		UUID:               jobUUID,
		Domain:             params.Domain,
		Type:               params.Type,
		Payload:            payload,
		PrivatePayload:     privatePayload,
		State:              state,
		Priority:           params.Priority,
		DependsOnRunnerJob: params.DependsOnJob,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := e.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	e.logger.Info("Created job", map[string]interface{}{
		"job":   job.UUID.String(),
		"type":  string(job.Type),
		"state": job.State.Label(),
	})

	if state == models.JobStatePending {
		e.notifier.NotifyJobsAvailable()
	}

	return job, nil
}

// Accept atomically claims a pending job for a runner. The conditional state
// flip in the store is the only synchronization: a lost race surfaces as
// store.ErrJobNotPending and must never silently succeed.
func (e *Engine) Accept(jobUUID uuid.UUID, runner *models.Runner) (*models.RunnerJob, error) {
	if err := e.store.AcceptJob(jobUUID); err != nil {
		return nil, err
	}

	job, err := e.store.GetJob(jobUUID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job.ProcessingJobToken = models.GenerateProcessingJobToken()
	job.StartedAt = &now
	job.RunnerID = &runner.ID

	if err := e.store.UpdateJob(job); err != nil {
		return nil, err
	}

	e.logger.Info("Job accepted", map[string]interface{}{
		"job":    job.UUID.String(),
		"runner": runner.Name,
	})

	return job, nil
}

// Update stores a progress report. No state transition.
func (e *Engine) Update(job *models.RunnerJob, progress *float64, payload *UpdatePayload) error {
	handler, err := e.HandlerFor(job.Type)
	if err != nil {
		return err
	}

	if err := handler.SpecificUpdate(job, payload); err != nil {
		return fmt.Errorf("failed to process update: %w", err)
	}

	if progress != nil {
		job.Progress = progress
	}

	return e.store.UpdateJob(job)
}

// Complete finishes a job. The job moves to the transient completing state
// first so a concurrent reader never observes a second complete or abort
// window, then the handler consumes the result. A handler failure lands the
// job in errored instead of completed; either way children waiting on this
// job are released to pending.
func (e *Engine) Complete(job *models.RunnerJob, result *ResultPayload) error {
	handler, err := e.HandlerFor(job.Type)
	if err != nil {
		return err
	}

	job.State = models.JobStateCompleting
	if err := e.store.UpdateJob(job); err != nil {
		return err
	}

	now := time.Now()
	if err := handler.SpecificComplete(job, result); err != nil {
		e.logger.Error("Job completion handler failed", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		job.State = models.JobStateErrored
		job.Error = err.Error()
	} else {
		job.State = models.JobStateCompleted
	}

	job.ProcessingJobToken = ""
	job.Progress = nil
	job.FinishedAt = &now

	if err := e.store.UpdateJob(job); err != nil {
		return err
	}

	e.logger.Info("Job finished", map[string]interface{}{
		"job":   job.UUID.String(),
		"state": job.State.Label(),
	})

	// Children are released whether the parent completed or errored here.
	// The terminal error path cascades separately through Error.
	released, err := e.store.ReleaseDependentJobs(job.UUID)
	if err != nil {
		return err
	}
	if released > 0 {
		e.notifier.NotifyJobsAvailable()
	}

	return nil
}

// Cancel cancels a job and its whole descendant subtree depth-first.
// A failure on one child does not block the remaining children.
func (e *Engine) Cancel(job *models.RunnerJob, fromParent bool) error {
	handler, err := e.HandlerFor(job.Type)
	if err != nil {
		return err
	}

	if err := handler.SpecificCancel(job); err != nil {
		e.logger.Error("Job cancel handler failed", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
	}

	state := models.JobStateCancelled
	if fromParent {
		state = models.JobStateParentCancelled
	}
	job.SetToErrorOrCancel(state)

	if err := e.store.UpdateJob(job); err != nil {
		return err
	}

	children, err := e.store.GetChildren(job.UUID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := e.Cancel(child, true); err != nil {
			e.logger.Error("Failed to cancel child job", map[string]interface{}{
				"job":   child.UUID.String(),
				"error": err.Error(),
			})
		}
	}

	return nil
}

// Abort stops a processing job. When the job type supports aborting the job
// is reset to pending for another runner; otherwise an abort is a failure.
func (e *Engine) Abort(job *models.RunnerJob) error {
	handler, err := e.HandlerFor(job.Type)
	if err != nil {
		return err
	}

	if !handler.IsAbortSupported() {
		return e.Error(job, "Job has been aborted but it is not supported by this job type", false)
	}

	if err := handler.SpecificAbort(job); err != nil {
		e.logger.Error("Job abort handler failed", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
	}

	job.ResetToPending()

	return e.store.UpdateJob(job)
}

// Error records a failure. Below the failure threshold the job goes back to
// pending for a retry; at the threshold, or when the type cannot be retried,
// it is parked in the terminal error state and the failure cascades to every
// descendant as a parent error.
func (e *Engine) Error(job *models.RunnerJob, message string, fromParent bool) error {
	handler, err := e.HandlerFor(job.Type)
	if err != nil {
		return err
	}

	errorState := models.JobStateErrored
	if fromParent {
		errorState = models.JobStateParentErrored
	}

	nextState := models.JobStatePending
	if job.Failures >= e.maxFailures || !handler.IsAbortSupported() {
		nextState = errorState
	}

	if err := handler.SpecificError(job, message, nextState); err != nil {
		e.logger.Error("Job error handler failed", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
	}

	if nextState == errorState {
		job.SetToErrorOrCancel(errorState)
		job.Error = message
	} else {
		job.ResetToPending()
	}

	if err := e.store.UpdateJob(job); err != nil {
		return err
	}

	e.logger.Info("Job errored", map[string]interface{}{
		"job":     job.UUID.String(),
		"state":   job.State.Label(),
		"message": message,
	})

	if nextState != errorState {
		return nil
	}

	children, err := e.store.GetChildren(job.UUID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := e.Error(child, "Parent error", true); err != nil {
			e.logger.Error("Failed to cascade error to child job", map[string]interface{}{
				"job":   child.UUID.String(),
				"error": err.Error(),
			})
		}
	}

	return nil
}
