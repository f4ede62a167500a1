package handlers

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
)

// VideoStudioHandler drives video-studio-transcoding jobs: the runner applies
// a list of edition tasks (cut, intro/outro, watermark) to the source and
// uploads the edited file.
type VideoStudioHandler struct {
	vodTranscoding
	engine *engine.Engine
}

// NewVideoStudioHandler creates the studio edition handler
func NewVideoStudioHandler(e *engine.Engine, deps Deps) *VideoStudioHandler {
	return &VideoStudioHandler{vodTranscoding{deps: deps}, e}
}

// Type implements engine.Handler
func (h *VideoStudioHandler) Type() models.RunnerJobType {
	return models.JobTypeVideoStudioTranscoding
}

// Create creates a studio edition job carrying the task list
func (h *VideoStudioHandler) Create(video *models.Video, tasks []models.StudioTask, domain string) (*models.RunnerJob, error) {
	jobUUID := uuid.New()

	payload := models.VideoStudioJobPayload{
		Input: models.TranscodingJobPayloadInput{
			VideoFileURL: downloadVideoFileURL(domain, video.UUID, jobUUID),
		},
		Tasks: tasks,
	}

	private := models.TranscodingPrivatePayload{
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

	if _, err := h.deps.Store.IncreaseJobInfo(video.ID, models.PendingTranscode, 1); err != nil {
		return nil, fmt.Errorf("failed to increase pending transcode: %w", err)
	}

	return job, nil
}

// SpecificComplete stores the edited file next to the original renditions
// and advances the video state.
func (h *VideoStudioHandler) SpecificComplete(job *models.RunnerJob, result *engine.ResultPayload) error {
	ctx := context.Background()

	video := h.deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	basename := path.Base(result.VideoFilename)
	if basename == "." || basename == "/" || basename == "" {
		basename = uuid.NewString() + ".mp4"
	}

	filename, err := h.deps.Storage.Save(
		transcoding.GetVideoDirectory(video, basename),
		result.VideoFile,
	)
	if err != nil {
		return fmt.Errorf("failed to store edited file: %w", err)
	}

	probe, err := h.deps.Prober.Probe(ctx, h.deps.Storage.URL(filename))
	if err != nil {
		return fmt.Errorf("failed to probe edited file: %w", err)
	}

	if _, err := transcoding.BuildNewFile(h.deps.Store, video, filename, probe); err != nil {
		return err
	}

	if err := h.deps.onTranscodingEnded(video, true); err != nil {
		return err
	}

	h.deps.Logger.Info("Video studio transcoding job ended", map[string]interface{}{
		"job":   job.UUID.String(),
		"video": video.UUID.String(),
	})

	return nil
}

var _ engine.Handler = (*VideoStudioHandler)(nil)
