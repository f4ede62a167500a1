// Package handlers implements the type-specific behavior of runner jobs.
// Each job type gets one handler; the lifecycle engine drives the shared
// state machine and calls into the handler hooks.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/store"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
	"github.com/psantana5/runner-orchestrator/pkg/videostate"
)

// Deps are the collaborators every handler works against
type Deps struct {
	Store     store.Store
	Storage   objstore.Storage
	Prober    ffprobe.Prober
	Videos    *videostate.Machine
	Playlists *transcoding.HLSPlaylist
	Logger    *logging.Logger

	// Languages is the transcription language allow-list. Empty accepts
	// any language a runner reports.
	Languages []string
}

// Set holds the concrete handlers so callers that create jobs can reach the
// typed Create methods.
type Set struct {
	HLS           *VODHLSHandler
	WebVideo      *VODWebVideoHandler
	AudioMerge    *VODAudioMergeHandler
	Studio        *VideoStudioHandler
	Live          *LiveRTMPHLSHandler
	Transcription *TranscriptionHandler
}

// Register builds every handler and registers them on the engine
func Register(e *engine.Engine, deps Deps) *Set {
	set := &Set{
		HLS:           NewVODHLSHandler(e, deps),
		WebVideo:      NewVODWebVideoHandler(e, deps),
		AudioMerge:    NewVODAudioMergeHandler(e, deps),
		Studio:        NewVideoStudioHandler(e, deps),
		Live:          NewLiveRTMPHLSHandler(e, deps),
		Transcription: NewTranscriptionHandler(e, deps),
	}

	e.Register(set.HLS)
	e.Register(set.WebVideo)
	e.Register(set.AudioMerge)
	e.Register(set.Studio)
	e.Register(set.Live)
	e.Register(set.Transcription)

	return set
}

// downloadVideoFileURL builds the absolute URL a runner downloads the job's
// source file from.
func downloadVideoFileURL(domain string, videoUUID, jobUUID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/runners/jobs/files/videos/%s/%s/max-quality",
		strings.TrimSuffix(domain, "/"), videoUUID, jobUUID)
}

// loadRunnerVideo resolves the video a job belongs to from its private
// payload. A video deleted while the job ran is not an error: the handler
// has nothing left to do and the job still finishes.
func (d Deps) loadRunnerVideo(job *models.RunnerJob) *models.Video {
	var private struct {
		VideoUUID string `json:"videoUUID"`
	}
	if err := json.Unmarshal(job.PrivatePayload, &private); err != nil {
		d.Logger.Warn("Failed to decode job private payload", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		return nil
	}

	videoUUID, err := uuid.Parse(private.VideoUUID)
	if err != nil {
		d.Logger.Warn("Invalid video reference in job private payload", map[string]interface{}{
			"job":   job.UUID.String(),
			"video": private.VideoUUID,
		})
		return nil
	}

	video, err := d.Store.GetVideo(videoUUID)
	if errors.Is(err, store.ErrVideoNotFound) {
		d.Logger.Info("Video does not exist anymore after runner job", map[string]interface{}{
			"job":   job.UUID.String(),
			"video": private.VideoUUID,
		})
		return nil
	}
	if err != nil {
		d.Logger.Error("Failed to load job video", map[string]interface{}{
			"job":   job.UUID.String(),
			"error": err.Error(),
		})
		return nil
	}

	return video
}

// onTranscodingEnded decrements the pending transcode counter of the video
// and optionally advances its state machine.
func (d Deps) onTranscodingEnded(video *models.Video, moveToNextState bool) error {
	if _, err := d.Store.DecreaseJobInfo(video.ID, models.PendingTranscode); err != nil {
		if !errors.Is(err, store.ErrJobInfoNotFound) {
			return err
		}
	}

	if moveToNextState {
		return d.Videos.MoveToNextState(video)
	}
	return nil
}

// isTranscriptionLanguageValid checks a reported language against the
// configured allow-list.
func (d Deps) isTranscriptionLanguageValid(language string) bool {
	if language == "" {
		return false
	}
	if len(d.Languages) == 0 {
		return true
	}
	for _, allowed := range d.Languages {
		if allowed == language {
			return true
		}
	}
	return false
}

// deleteWebVideoFiles removes the stored web video renditions of a video,
// keeping the playlist-bound HLS files.
func (d Deps) deleteWebVideoFiles(video *models.Video) error {
	files, err := d.Store.ListVideoFiles(video.ID)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.StreamingPlaylistID != nil {
			continue
		}
		if err := d.Storage.Delete(file.Filename); err != nil {
			return fmt.Errorf("failed to delete %s: %w", file.Filename, err)
		}
		if err := d.Store.DeleteVideoFile(file.ID); err != nil {
			return err
		}
	}

	return nil
}
