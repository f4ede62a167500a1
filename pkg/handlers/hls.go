package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
)

// VODHLSHandler drives vod-hls-transcoding jobs: a runner downloads the
// source, produces one fragmented mp4 rendition plus its resolution playlist,
// and uploads both back.
type VODHLSHandler struct {
	vodTranscoding
	engine *engine.Engine
}

// NewVODHLSHandler creates the HLS transcoding handler
func NewVODHLSHandler(e *engine.Engine, deps Deps) *VODHLSHandler {
	return &VODHLSHandler{vodTranscoding{deps: deps}, e}
}

// Type implements engine.Handler
func (h *VODHLSHandler) Type() models.RunnerJobType { return models.JobTypeVODHLSTranscoding }

// Create creates one HLS transcoding job for a rendition and counts it as
// pending work on the video.
func (h *VODHLSHandler) Create(video *models.Video, resolution, fps int, dependsOn *uuid.UUID, domain string) (*models.RunnerJob, error) {
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
		VideoUUID: video.UUID.String(),
	}

	job, err := h.engine.CreateJob(engine.CreateJobParams{
		UUID:           jobUUID,
		Type:           h.Type(),
		Domain:         domain,
		Payload:        payload,
		PrivatePayload: private,
		DependsOnJob:   dependsOn,
	})
	if err != nil {
		return nil, err
	}

	if _, err := h.deps.Store.IncreaseJobInfo(video.ID, models.PendingTranscode, 1); err != nil {
		return nil, fmt.Errorf("failed to increase pending transcode: %w", err)
	}

	return job, nil
}

// SpecificComplete stores the uploaded rendition and its resolution playlist
// under the video directory, fixes the filename reference inside the playlist
// and rebuilds the master playlist.
func (h *VODHLSHandler) SpecificComplete(job *models.RunnerJob, result *engine.ResultPayload) error {
	ctx := context.Background()

	video := h.deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	var payload models.TranscodingJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode job payload: %w", err)
	}
	resolution := payload.Output.Resolution

	filename, err := h.deps.Storage.Save(
		transcoding.GetVideoDirectory(video, transcoding.GenerateHLSVideoFilename(resolution, video.BaseFilename)),
		result.VideoFile,
	)
	if err != nil {
		return fmt.Errorf("failed to store rendition: %w", err)
	}

	probe, err := h.deps.Prober.Probe(ctx, h.deps.Storage.URL(filename))
	if err != nil {
		return fmt.Errorf("failed to probe rendition: %w", err)
	}

	file, err := transcoding.BuildNewFile(h.deps.Store, video, filename, probe)
	if err != nil {
		return err
	}

	playlistKey, err := h.deps.Storage.Save(
		transcoding.HLSResolutionPlaylistFilename(file.Filename),
		result.ResolutionPlaylistFile,
	)
	if err != nil {
		return fmt.Errorf("failed to store resolution playlist: %w", err)
	}

	// The playlist still references the filename the runner picked, the
	// stored file got a new one.
	if err := h.deps.Playlists.RenameVideoFileInPlaylist(playlistKey, path.Base(file.Filename)); err != nil {
		return err
	}

	if err := h.deps.Playlists.OnHLSVideoFileTranscoding(ctx, video, file); err != nil {
		return err
	}

	var private models.TranscodingPrivatePayload
	if err := json.Unmarshal(job.PrivatePayload, &private); err == nil && private.DeleteWebVideoFiles {
		if err := h.deps.deleteWebVideoFiles(video); err != nil {
			return err
		}
	}

	if err := h.deps.onTranscodingEnded(video, true); err != nil {
		return err
	}

	h.deps.Logger.Info("VOD HLS transcoding job ended", map[string]interface{}{
		"job":   job.UUID.String(),
		"video": video.UUID.String(),
	})

	return nil
}

var _ engine.Handler = (*VODHLSHandler)(nil)
