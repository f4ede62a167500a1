// Package transcript is the entrypoint of the transcription pipeline.
package transcript

import (
	"fmt"

	"github.com/psantana5/runner-orchestrator/pkg/handlers"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

// Transcripter starts transcription jobs
type Transcripter struct {
	store   store.Store
	handler *handlers.TranscriptionHandler
	logger  *logging.Logger
}

// New creates a transcripter
func New(s store.Store, handler *handlers.TranscriptionHandler, logger *logging.Logger) *Transcripter {
	return &Transcripter{store: s, handler: handler, logger: logger}
}

// TranscriptVideo creates a transcription job for the video stored under
// destination, creating the video record when it does not exist yet. videoURL
// optionally overrides the source locator handed to the runner.
func (t *Transcripter) TranscriptVideo(destination, domain, videoURL string) (*models.RunnerJob, error) {
	video, created, err := t.store.GetOrCreateVideoByDirectory(destination, models.VideoStatePublished)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	if created {
		t.logger.Info("Created video for transcription", map[string]interface{}{
			"video":     video.UUID.String(),
			"directory": destination,
		})
	}

	return t.handler.Create(video, domain, videoURL)
}
