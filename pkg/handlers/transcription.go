package handlers

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
)

// TranscriptionHandler drives video-transcription jobs: a runner downloads
// the media, transcribes it and uploads the VTT subtitle file together with
// the detected language.
type TranscriptionHandler struct {
	deps   Deps
	engine *engine.Engine
}

// NewTranscriptionHandler creates the transcription handler
func NewTranscriptionHandler(e *engine.Engine, deps Deps) *TranscriptionHandler {
	return &TranscriptionHandler{deps: deps, engine: e}
}

// Type implements engine.Handler
func (h *TranscriptionHandler) Type() models.RunnerJobType {
	return models.JobTypeVideoTranscription
}

// IsAbortSupported implements engine.Handler
func (h *TranscriptionHandler) IsAbortSupported() bool { return true }

// SpecificUpdate implements engine.Handler
func (h *TranscriptionHandler) SpecificUpdate(*models.RunnerJob, *engine.UpdatePayload) error {
	return nil
}

// SpecificAbort implements engine.Handler
func (h *TranscriptionHandler) SpecificAbort(*models.RunnerJob) error { return nil }

// Create creates a transcription job. videoURL overrides the source locator
// when the media does not live in the orchestrator's storage.
func (h *TranscriptionHandler) Create(video *models.Video, domain, videoURL string) (*models.RunnerJob, error) {
	jobUUID := uuid.New()

	payload := models.TranscriptionJobPayload{
		Input: models.TranscodingJobPayloadInput{
			VideoFileURL: downloadVideoFileURL(domain, video.UUID, jobUUID),
		},
	}
	if videoURL != "" {
		payload.Input.VideoFileURL = videoURL
	}

	private := models.TranscriptionPrivatePayload{
		VideoUUID: video.UUID.String(),
	}

	job, err := h.engine.CreateJob(engine.CreateJobParams{
		UUID:           jobUUID,
		Type:           h.Type(),
		Domain:         domain,
		Payload:        payload,
		PrivatePayload: private,
	})
	if err != nil {
		return nil, err
	}

	if _, err := h.deps.Store.IncreaseJobInfo(video.ID, models.PendingTranscript, 1); err != nil {
		return nil, fmt.Errorf("failed to increase pending transcript: %w", err)
	}

	return job, nil
}

// SpecificComplete validates the reported language, stores the subtitle file
// and records it on the video.
func (h *TranscriptionHandler) SpecificComplete(job *models.RunnerJob, result *engine.ResultPayload) error {
	video := h.deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	language := result.InputLanguage
	if !h.deps.isTranscriptionLanguageValid(language) {
		h.deps.Logger.Error("Invalid transcription language", map[string]interface{}{
			"job":      job.UUID.String(),
			"video":    video.UUID.String(),
			"language": language,
		})
		return nil
	}

	filename, err := h.deps.Storage.Save(
		transcoding.GetVideoDirectory(video, transcoding.GenerateTranscriptionFilename(language, video.BaseFilename)),
		result.VTTFile,
	)
	if err != nil {
		return fmt.Errorf("failed to store transcript: %w", err)
	}

	if video.Language == "" {
		video.Language = language
	}
	video.TranscriptFilename = filename

	if err := h.deps.Store.UpdateVideo(video); err != nil {
		return err
	}

	h.deps.Videos.TranscriptionEnded(video, language, filename)

	h.deps.Logger.Info("Transcription job ended", map[string]interface{}{
		"job":      job.UUID.String(),
		"video":    video.UUID.String(),
		"language": language,
	})

	return nil
}

// SpecificError reacts only to the terminal outcome, dropping the job from
// the pending transcript counter and firing the error hook.
func (h *TranscriptionHandler) SpecificError(job *models.RunnerJob, message string, nextState models.RunnerJobState) error {
	if nextState != models.JobStateErrored {
		return nil
	}

	video := h.deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	if _, err := h.deps.Store.DecreaseJobInfo(video.ID, models.PendingTranscript); err != nil {
		if !errors.Is(err, store.ErrJobInfoNotFound) {
			return err
		}
	}

	h.deps.Videos.TranscriptionError(video)
	return nil
}

// SpecificCancel implements engine.Handler
func (h *TranscriptionHandler) SpecificCancel(job *models.RunnerJob) error {
	video := h.deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	_, err := h.deps.Store.DecreaseJobInfo(video.ID, models.PendingTranscript)
	if errors.Is(err, store.ErrJobInfoNotFound) {
		return nil
	}
	return err
}

var _ engine.Handler = (*TranscriptionHandler)(nil)
