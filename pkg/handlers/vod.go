package handlers

import (
	"errors"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

// vodTranscoding carries the hooks shared by every VOD transcoding job type:
// abortable, no progress handling, and the pending-transcode counter
// bookkeeping on error and cancel.
type vodTranscoding struct {
	deps Deps
}

func (vodTranscoding) IsAbortSupported() bool { return true }

func (vodTranscoding) SpecificUpdate(*models.RunnerJob, *engine.UpdatePayload) error { return nil }

func (vodTranscoding) SpecificAbort(*models.RunnerJob) error { return nil }

// SpecificError reacts only to the terminal outcome: a retry keeps the video
// untouched, a terminal error parks it in the failed transcoding state.
func (h vodTranscoding) SpecificError(job *models.RunnerJob, message string, nextState models.RunnerJobState) error {
	if nextState != models.JobStateErrored {
		return nil
	}

	video := h.deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	if err := h.deps.Videos.MoveToFailedTranscodingState(video); err != nil {
		return err
	}

	_, err := h.deps.Store.DecreaseJobInfo(video.ID, models.PendingTranscode)
	if errors.Is(err, store.ErrJobInfoNotFound) {
		return nil
	}
	return err
}

// SpecificCancel drops the cancelled job from the pending counter and, when
// it was the last one, advances the video.
func (h vodTranscoding) SpecificCancel(job *models.RunnerJob) error {
	video := h.deps.loadRunnerVideo(job)
	if video == nil {
		return nil
	}

	pending, err := h.deps.Store.DecreaseJobInfo(video.ID, models.PendingTranscode)
	if errors.Is(err, store.ErrJobInfoNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	h.deps.Logger.Debug("Pending transcode decreased after cancel", map[string]interface{}{
		"video":   video.UUID.String(),
		"pending": pending,
	})

	if pending == 0 {
		h.deps.Logger.Info("All transcoding jobs processed or cancelled, moving video to its next state", map[string]interface{}{
			"video": video.UUID.String(),
		})
		return h.deps.Videos.MoveToNextState(video)
	}

	return nil
}
