package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunnerJobState represents the lifecycle state of a runner job
type RunnerJobState int

const (
	JobStatePending RunnerJobState = iota + 1
	JobStateProcessing
	JobStateCompleted
	JobStateErrored
	JobStateWaitingForParentJob
	JobStateCancelled
	JobStateParentErrored
	JobStateParentCancelled
	JobStateCompleting
)

// Label returns the human readable label of a job state
func (s RunnerJobState) Label() string {
	switch s {
	case JobStatePending:
		return "Pending"
	case JobStateProcessing:
		return "Processing"
	case JobStateCompleted:
		return "Completed"
	case JobStateErrored:
		return "Errored"
	case JobStateWaitingForParentJob:
		return "Waiting for parent job"
	case JobStateCancelled:
		return "Cancelled"
	case JobStateParentErrored:
		return "Parent errored"
	case JobStateParentCancelled:
		return "Parent cancelled"
	case JobStateCompleting:
		return "Completing"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true if no further transitions are modeled for the state.
// Errored is not listed here: an errored job below the failure threshold is
// reset to pending by the engine before it ever lands in Errored.
func (s RunnerJobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateCancelled, JobStateParentErrored, JobStateParentCancelled:
		return true
	default:
		return false
	}
}

// RunnerJobType represents the type of work a runner job carries
type RunnerJobType string

const (
	JobTypeVODWebVideoTranscoding   RunnerJobType = "vod-web-video-transcoding"
	JobTypeVODHLSTranscoding        RunnerJobType = "vod-hls-transcoding"
	JobTypeVODAudioMergeTranscoding RunnerJobType = "vod-audio-merge-transcoding"
	JobTypeLiveRTMPHLSTranscoding   RunnerJobType = "live-rtmp-hls-transcoding"
	JobTypeVideoStudioTranscoding   RunnerJobType = "video-studio-transcoding"
	JobTypeVideoTranscription       RunnerJobType = "video-transcription"
)

// JobTypes lists every known runner job type
var JobTypes = []RunnerJobType{
	JobTypeVODWebVideoTranscoding,
	JobTypeVODHLSTranscoding,
	JobTypeVODAudioMergeTranscoding,
	JobTypeLiveRTMPHLSTranscoding,
	JobTypeVideoStudioTranscoding,
	JobTypeVideoTranscription,
}

// KnownJobType returns true if t is part of the closed job type enumeration
func KnownJobType(t RunnerJobType) bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RunnerJob represents one unit of work assigned to a remote runner
type RunnerJob struct {
	ID                 uuid.UUID       `json:"id"`
	UUID               uuid.UUID       `json:"uuid"`
	Domain             string          `json:"domain,omitempty"`
	Type               RunnerJobType   `json:"type"`
	Payload            json.RawMessage `json:"payload"`
	PrivatePayload     json.RawMessage `json:"-"`
	State              RunnerJobState  `json:"state"`
	Failures           int             `json:"failures"`
	Error              string          `json:"error,omitempty"`
	Priority           int             `json:"priority"`
	ProcessingJobToken string          `json:"-"`
	Progress           *float64        `json:"progress,omitempty"`
	StartedAt          *time.Time      `json:"startedAt,omitempty"`
	FinishedAt         *time.Time      `json:"finishedAt,omitempty"`
	DependsOnRunnerJob *uuid.UUID      `json:"dependsOnRunnerJob,omitempty"`
	RunnerID           *uuid.UUID      `json:"-"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// SetToErrorOrCancel puts the job in one of the errored/cancelled states,
// dropping the processing token and stamping the finish time.
func (j *RunnerJob) SetToErrorOrCancel(state RunnerJobState) {
	now := time.Now()
	j.State = state
	j.ProcessingJobToken = ""
	j.FinishedAt = &now
}

// ResetToPending resets the job so another runner can claim it again.
// Token, progress and timestamps are cleared together.
func (j *RunnerJob) ResetToPending() {
	j.State = JobStatePending
	j.ProcessingJobToken = ""
	j.Progress = nil
	j.StartedAt = nil
	j.FinishedAt = nil
}

// TranscodingJobPayloadInput describes where a runner fetches the source file
type TranscodingJobPayloadInput struct {
	VideoFileURL string `json:"videoFileUrl"`
}

// TranscodingJobPayloadOutput describes the expected rendition
type TranscodingJobPayloadOutput struct {
	Resolution int `json:"resolution"`
	FPS        int `json:"fps"`
}

// TranscodingJobPayload is the runner-visible payload of VOD transcoding jobs
type TranscodingJobPayload struct {
	Input  TranscodingJobPayloadInput  `json:"input"`
	Output TranscodingJobPayloadOutput `json:"output"`
}

// TranscodingPrivatePayload is the orchestrator-only payload of VOD transcoding jobs
type TranscodingPrivatePayload struct {
	IsNewVideo          bool   `json:"isNewVideo"`
	DeleteWebVideoFiles bool   `json:"deleteWebVideoFiles"`
	VideoUUID           string `json:"videoUUID"`
}

// TranscriptionJobPayload is the runner-visible payload of transcription jobs
type TranscriptionJobPayload struct {
	Input TranscodingJobPayloadInput `json:"input"`
}

// TranscriptionPrivatePayload is the orchestrator-only payload of transcription jobs
type TranscriptionPrivatePayload struct {
	VideoUUID string `json:"videoUUID"`
}

// LiveTranscodeTarget is one rendition of a live transcoding session
type LiveTranscodeTarget struct {
	Resolution int `json:"resolution"`
	FPS        int `json:"fps"`
}

// LiveRTMPHLSJobPayload is the runner-visible payload of live transcoding jobs
type LiveRTMPHLSJobPayload struct {
	Input struct {
		RTMPURL string `json:"rtmpUrl"`
	} `json:"input"`
	Output struct {
		ToTranscode     []LiveTranscodeTarget `json:"toTranscode"`
		SegmentDuration int                   `json:"segmentDuration"`
		SegmentListSize int                   `json:"segmentListSize"`
	} `json:"output"`
}

// LiveRTMPHLSPrivatePayload is the orchestrator-only payload of live transcoding jobs
type LiveRTMPHLSPrivatePayload struct {
	VideoUUID          string `json:"videoUUID"`
	MasterPlaylistName string `json:"masterPlaylistName"`
	SessionID          string `json:"sessionId"`
	OutputDirectory    string `json:"outputDirectory"`
}

// StudioTask is a single edition operation of a video studio job
type StudioTask struct {
	Name    string          `json:"name"`
	Options json.RawMessage `json:"options,omitempty"`
}

// VideoStudioJobPayload is the runner-visible payload of studio edition jobs
type VideoStudioJobPayload struct {
	Input TranscodingJobPayloadInput `json:"input"`
	Tasks []StudioTask               `json:"tasks"`
}
