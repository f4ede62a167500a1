package videostate

import (
	"errors"

	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

// Callbacks are the optional domain hooks fired on video state changes.
// They are injected once at construction; a missing callback is logged,
// never fatal.
type Callbacks struct {
	OnTranscodingEnded   func(video *models.Video)
	OnTranscriptionEnded func(video *models.Video, language, vttPath string)
	OnTranscriptionError func(video *models.Video)
}

// Machine drives the coarse video lifecycle: ToTranscode to Published, or
// into the failure states.
type Machine struct {
	store     store.Store
	logger    *logging.Logger
	callbacks Callbacks
}

// New creates a video state machine
func New(s store.Store, logger *logging.Logger, callbacks Callbacks) *Machine {
	return &Machine{store: s, logger: logger, callbacks: callbacks}
}

// ErrAlreadyPublished is returned when computing the next state of a video
// already in its final state
var ErrAlreadyPublished = errors.New("video is already in its final state")

// BuildNextState computes the state following the current one
func BuildNextState(current models.VideoState) (models.VideoState, error) {
	if current == models.VideoStatePublished {
		return 0, ErrAlreadyPublished
	}

	switch current {
	case models.VideoStateToEdit, models.VideoStateToTranscode, models.VideoStateToMoveToExternalStorage:
		return models.VideoStatePublished, nil
	default:
		return models.VideoStateToTranscode, nil
	}
}

// MoveToNextState advances a video once its pending work drained.
// The video is re-read first since it may have moved while jobs ran.
func (m *Machine) MoveToNextState(video *models.Video) error {
	fresh, err := m.store.GetVideo(video.UUID)
	if err != nil {
		return err
	}
	*video = *fresh

	if video.State == models.VideoStatePublished {
		m.TranscodingEnded(video)
		return nil
	}

	next, err := BuildNextState(video.State)
	if err != nil {
		return err
	}
	if next == models.VideoStatePublished {
		return m.MoveToPublishedState(video)
	}

	return nil
}

// MoveToFailedTranscodingState parks a video in the failed transcoding state
func (m *Machine) MoveToFailedTranscodingState(video *models.Video) error {
	if video.State == models.VideoStateTranscodingFailed {
		return nil
	}

	video.State = models.VideoStateTranscodingFailed
	if err := m.store.UpdateVideo(video); err != nil {
		return err
	}

	m.TranscodingEnded(video)
	return nil
}

// MoveToPublishedState publishes a video
func (m *Machine) MoveToPublishedState(video *models.Video) error {
	m.logger.Info("Publishing video", map[string]interface{}{"video": video.UUID.String()})

	video.State = models.VideoStatePublished
	if err := m.store.UpdateVideo(video); err != nil {
		return err
	}

	m.TranscodingEnded(video)
	return nil
}

// TranscodingEnded fires the transcoding-ended hook
func (m *Machine) TranscodingEnded(video *models.Video) {
	if m.callbacks.OnTranscodingEnded == nil {
		m.logger.Debug("No transcoding ended callback configured")
		return
	}
	m.callbacks.OnTranscodingEnded(video)
}

// TranscriptionEnded fires the transcription-ended hook
func (m *Machine) TranscriptionEnded(video *models.Video, language, vttPath string) {
	if m.callbacks.OnTranscriptionEnded == nil {
		m.logger.Debug("No transcription ended callback configured")
		return
	}
	m.callbacks.OnTranscriptionEnded(video, language, vttPath)
}

// TranscriptionError fires the transcription-error hook
func (m *Machine) TranscriptionError(video *models.Video) {
	if m.callbacks.OnTranscriptionError == nil {
		m.logger.Debug("No transcription error callback configured")
		return
	}
	m.callbacks.OnTranscriptionError(video)
}
