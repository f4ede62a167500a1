package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
)

// createVODRenditionJob creates a VOD transcoding job of the given type and
// counts it as pending work on the video. Shared by the web video and audio
// merge handlers, whose payloads have the same shape.
func createVODRenditionJob(e *engine.Engine, deps Deps, jobType models.RunnerJobType, video *models.Video, resolution, fps int, dependsOn *uuid.UUID, domain string) (*models.RunnerJob, error) {
	jobUUID := uuid.New()

	payload := models.TranscodingJobPayload{
		Input: models.TranscodingJobPayloadInput{
			VideoFileURL: downloadVideoFileURL(domain, video.UUID, jobUUID),
		},
		Output: models.TranscodingJobPayloadOutput{
			Resolution: resolution,
			FPS:        fps,
		},
	}

	private := models.TranscodingPrivatePayload{
		IsNewVideo: true,
		VideoUUID:  video.UUID.String(),
	}

	job, err := e.CreateJob(engine.CreateJobParams{
		UUID:           jobUUID,
		Type:           jobType,
		Domain:         domain,
		Payload:        payload,
		PrivatePayload: private,
		DependsOnJob:   dependsOn,
	})
	if err != nil {
		return nil, err
	}

	if _, err := deps.Store.IncreaseJobInfo(video.ID, models.PendingTranscode, 1); err != nil {
		return nil, fmt.Errorf("failed to increase pending transcode: %w", err)
	}

	return job, nil
}

// completeWebVideoFile stores the uploaded media as a web video rendition of
// the job's video and advances the video state.
func completeWebVideoFile(deps Deps, job *models.RunnerJob, result *engine.ResultPayload) error {
	ctx := context.Background()

	video := deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	var payload models.TranscodingJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode job payload: %w", err)
	}

	extname := transcoding.LowerCaseExtension(result.VideoFilename)
	if extname == "" {
		extname = ".mp4"
	}

	filename, err := deps.Storage.Save(
		transcoding.GetVideoDirectory(video, transcoding.GenerateWebVideoFilename(payload.Output.Resolution, extname)),
		result.VideoFile,
	)
	if err != nil {
		return fmt.Errorf("failed to store web video file: %w", err)
	}

	probe, err := deps.Prober.Probe(ctx, deps.Storage.URL(filename))
	if err != nil {
		return fmt.Errorf("failed to probe web video file: %w", err)
	}

	if _, err := transcoding.BuildNewFile(deps.Store, video, filename, probe); err != nil {
		return err
	}

	if err := deps.onTranscodingEnded(video, true); err != nil {
		return err
	}

	deps.Logger.Info("VOD web video transcoding job ended", map[string]interface{}{
		"job":   job.UUID.String(),
		"video": video.UUID.String(),
	})

	return nil
}

// VODWebVideoHandler drives vod-web-video-transcoding jobs: one plain mp4
// rendition per job, stored as a directly playable web video file.
type VODWebVideoHandler struct {
	vodTranscoding
	engine *engine.Engine
}

// NewVODWebVideoHandler creates the web video transcoding handler
func NewVODWebVideoHandler(e *engine.Engine, deps Deps) *VODWebVideoHandler {
	return &VODWebVideoHandler{vodTranscoding{deps: deps}, e}
}

// Type implements engine.Handler
func (h *VODWebVideoHandler) Type() models.RunnerJobType {
	return models.JobTypeVODWebVideoTranscoding
}

// Create creates one web video transcoding job for a rendition
func (h *VODWebVideoHandler) Create(video *models.Video, resolution, fps int, dependsOn *uuid.UUID, domain string) (*models.RunnerJob, error) {
	return createVODRenditionJob(h.engine, h.deps, h.Type(), video, resolution, fps, dependsOn, domain)
}

// SpecificComplete implements engine.Handler
func (h *VODWebVideoHandler) SpecificComplete(job *models.RunnerJob, result *engine.ResultPayload) error {
	return completeWebVideoFile(h.deps, job, result)
}

// VODAudioMergeHandler drives vod-audio-merge-transcoding jobs: the runner
// merges an audio file with a still image into a playable web video.
type VODAudioMergeHandler struct {
	vodTranscoding
	engine *engine.Engine
}

// NewVODAudioMergeHandler creates the audio merge transcoding handler
func NewVODAudioMergeHandler(e *engine.Engine, deps Deps) *VODAudioMergeHandler {
	return &VODAudioMergeHandler{vodTranscoding{deps: deps}, e}
}

// Type implements engine.Handler
func (h *VODAudioMergeHandler) Type() models.RunnerJobType {
	return models.JobTypeVODAudioMergeTranscoding
}

// Create creates one audio merge transcoding job
func (h *VODAudioMergeHandler) Create(video *models.Video, resolution, fps int, dependsOn *uuid.UUID, domain string) (*models.RunnerJob, error) {
	return createVODRenditionJob(h.engine, h.deps, h.Type(), video, resolution, fps, dependsOn, domain)
}

// SpecificComplete implements engine.Handler. The merged output is a plain
// web video file, so completion follows the web video path.
func (h *VODAudioMergeHandler) SpecificComplete(job *models.RunnerJob, result *engine.ResultPayload) error {
	return completeWebVideoFile(h.deps, job, result)
}

var (
	_ engine.Handler = (*VODWebVideoHandler)(nil)
	_ engine.Handler = (*VODAudioMergeHandler)(nil)
)
