package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
)

// Live jobs are scheduled behind VOD work: a live session occupies a runner
// for its whole duration.
const livePriority = 100

// LiveRTMPHLSHandler drives live-rtmp-hls-transcoding jobs. The runner holds
// an open RTMP session and streams produced segments and playlists back
// through progress updates, so the job is not abortable.
type LiveRTMPHLSHandler struct {
	deps   Deps
	engine *engine.Engine
}

// NewLiveRTMPHLSHandler creates the live transcoding handler
func NewLiveRTMPHLSHandler(e *engine.Engine, deps Deps) *LiveRTMPHLSHandler {
	return &LiveRTMPHLSHandler{deps: deps, engine: e}
}

// Type implements engine.Handler
func (h *LiveRTMPHLSHandler) Type() models.RunnerJobType {
	return models.JobTypeLiveRTMPHLSTranscoding
}

// IsAbortSupported implements engine.Handler. A live session cannot move to
// another runner, an abort is a failure.
func (h *LiveRTMPHLSHandler) IsAbortSupported() bool { return false }

// LiveJobParams describes a live transcoding session to start
type LiveJobParams struct {
	Video           *models.Video
	RTMPURL         string
	ToTranscode     []models.LiveTranscodeTarget
	SegmentDuration int
	SegmentListSize int
	OutputDirectory string
	SessionID       string
	Domain          string
}

// Create creates the job for a live session and pins the master playlist
// name so the ingest URL stays stable for the whole session.
func (h *LiveRTMPHLSHandler) Create(params LiveJobParams) (*models.RunnerJob, error) {
	playlist, err := h.deps.Store.GetOrCreatePlaylist(params.Video.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	if playlist.PlaylistFilename == "" {
		playlist.PlaylistFilename = transcoding.GenerateHLSMasterPlaylistFilename(true)
		if err := h.deps.Store.UpdatePlaylist(playlist); err != nil {
			return nil, err
		}
	}

	var payload models.LiveRTMPHLSJobPayload
	payload.Input.RTMPURL = params.RTMPURL
	payload.Output.ToTranscode = params.ToTranscode
	payload.Output.SegmentDuration = params.SegmentDuration
	payload.Output.SegmentListSize = params.SegmentListSize

	private := models.LiveRTMPHLSPrivatePayload{
		VideoUUID:          params.Video.UUID.String(),
		MasterPlaylistName: playlist.PlaylistFilename,
		SessionID:          params.SessionID,
		OutputDirectory:    params.OutputDirectory,
	}

	return h.engine.CreateJob(engine.CreateJobParams{
		Type:           h.Type(),
		Domain:         params.Domain,
		Payload:        payload,
		PrivatePayload: private,
		Priority:       livePriority,
	})
}

// SpecificUpdate stores the segment and playlist files the runner streamed
// with this progress report into the session output directory. Files are
// overwritten in place, live playlists rotate constantly.
func (h *LiveRTMPHLSHandler) SpecificUpdate(job *models.RunnerJob, payload *engine.UpdatePayload) error {
	if payload == nil || len(payload.Files) == 0 {
		return nil
	}

	var private models.LiveRTMPHLSPrivatePayload
	if err := json.Unmarshal(job.PrivatePayload, &private); err != nil {
		return fmt.Errorf("failed to decode job private payload: %w", err)
	}

	for name, content := range payload.Files {
		key := private.OutputDirectory + "/" + name
		if err := h.deps.Storage.Delete(key); err != nil {
			return err
		}
		if _, err := h.deps.Storage.Save(key, content); err != nil {
			return fmt.Errorf("failed to store live file %s: %w", name, err)
		}
	}

	h.deps.Logger.Debug("Live transcoding job updated", map[string]interface{}{
		"job":   job.UUID.String(),
		"files": len(payload.Files),
	})

	return nil
}

// SpecificComplete implements engine.Handler
func (h *LiveRTMPHLSHandler) SpecificComplete(job *models.RunnerJob, _ *engine.ResultPayload) error {
	return h.stopLive(job, "ended")
}

// SpecificCancel implements engine.Handler
func (h *LiveRTMPHLSHandler) SpecificCancel(job *models.RunnerJob) error {
	return h.stopLive(job, "cancelled")
}

// SpecificAbort implements engine.Handler. Never called since the type is
// not abortable.
func (h *LiveRTMPHLSHandler) SpecificAbort(*models.RunnerJob) error {
	return fmt.Errorf("live transcoding jobs cannot be aborted")
}

// SpecificError implements engine.Handler
func (h *LiveRTMPHLSHandler) SpecificError(job *models.RunnerJob, message string, nextState models.RunnerJobState) error {
	if nextState == models.JobStatePending {
		return nil
	}
	return h.stopLive(job, "errored")
}

// stopLive closes the session bookkeeping: the video leaves the live state
// whatever way the session ended.
func (h *LiveRTMPHLSHandler) stopLive(job *models.RunnerJob, reason string) error {
	var private models.LiveRTMPHLSPrivatePayload
	if err := json.Unmarshal(job.PrivatePayload, &private); err != nil {
		return fmt.Errorf("failed to decode job private payload: %w", err)
	}

	video := h.deps.loadRunnerVideo(job)
	if video != nil && video.State == models.VideoStateWaitingForLive {
		video.State = models.VideoStateLiveEnded
		if err := h.deps.Store.UpdateVideo(video); err != nil {
			return err
		}
	}

	h.deps.Logger.Info("Live transcoding session stopped", map[string]interface{}{
		"job":     job.UUID.String(),
		"video":   private.VideoUUID,
		"session": private.SessionID,
		"reason":  reason,
	})

	return nil
}

var _ engine.Handler = (*LiveRTMPHLSHandler)(nil)
