package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VideoState represents the coarse lifecycle of a video
type VideoState int

const (
	VideoStatePublished VideoState = iota + 1
	VideoStateToTranscode
	VideoStateToImport
	VideoStateWaitingForLive
	VideoStateLiveEnded
	VideoStateToMoveToExternalStorage
	VideoStateTranscodingFailed
	VideoStateToMoveToExternalStorageFailed
	VideoStateToEdit
)

// Video resolutions, keyed by the smaller dimension of the stream.
// ResolutionNoVideo is the audio-only rung.
const (
	ResolutionNoVideo = 0
	Resolution144P    = 144
	Resolution240P    = 240
	Resolution360P    = 360
	Resolution480P    = 480
	Resolution720P    = 720
	Resolution1080P   = 1080
	Resolution1440P   = 1440
	Resolution4K      = 2160
)

// AvailableResolutions is the fixed transcoding ladder, ascending
var AvailableResolutions = []int{
	ResolutionNoVideo,
	Resolution144P,
	Resolution240P,
	Resolution360P,
	Resolution480P,
	Resolution720P,
	Resolution1080P,
	Resolution1440P,
	Resolution4K,
}

// VideoJobInfoColumn names one of the pending-work counters of a video
type VideoJobInfoColumn string

const (
	PendingMove       VideoJobInfoColumn = "pendingMove"
	PendingTranscode  VideoJobInfoColumn = "pendingTranscode"
	PendingTranscript VideoJobInfoColumn = "pendingTranscript"
)

// Video represents a video owned by the calling subsystem
type Video struct {
	ID                 uuid.UUID  `json:"id"`
	UUID               uuid.UUID  `json:"uuid"`
	State              VideoState `json:"state"`
	Duration           int        `json:"duration,omitempty"` // seconds, 0 when unknown
	Directory          string     `json:"directory"`
	ThumbnailFilename  string     `json:"thumbnailFilename,omitempty"`
	TranscriptFilename string     `json:"transcriptFileName,omitempty"`
	Language           string     `json:"language,omitempty"`
	BaseFilename       string     `json:"baseFilename,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// BandwidthBits computes the average bandwidth of a video file in bits per
// second, falling back to the raw size when the duration is unknown.
func (v *Video) BandwidthBits(f *VideoFile) int64 {
	if v.Duration == 0 {
		return f.Size
	}
	return f.Size * 8 / int64(v.Duration)
}

// VideoJobInfo tracks how many jobs are still pending for a video.
// It is the synchronization point between job completions and the video
// state machine; counters are only ever moved with atomic increments.
type VideoJobInfo struct {
	ID                uuid.UUID `json:"id"`
	VideoID           uuid.UUID `json:"-"`
	PendingMove       int       `json:"pendingMove"`
	PendingTranscode  int       `json:"pendingTranscode"`
	PendingTranscript int       `json:"pendingTranscript"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// VideoStreamingPlaylist represents the master HLS playlist of a video
type VideoStreamingPlaylist struct {
	ID               uuid.UUID `json:"id"`
	PlaylistFilename string    `json:"playlistFilename,omitempty"`
	VideoID          uuid.UUID `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// VideoFile represents one stored media file of a video
type VideoFile struct {
	ID                  uuid.UUID       `json:"id"`
	Resolution          int             `json:"resolution"`
	Size                int64           `json:"size"`
	Extname             string          `json:"extname"`
	FPS                 int             `json:"fps"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	Filename            string          `json:"filename"`
	VideoID             uuid.UUID       `json:"-"`
	StreamingPlaylistID *uuid.UUID      `json:"-"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// IsAudio returns true for the audio-only rendition
func (f *VideoFile) IsAudio() bool {
	return f.Resolution == ResolutionNoVideo
}

// MaxQualityFile returns the stored file with the highest resolution, or nil
func MaxQualityFile(files []*VideoFile) *VideoFile {
	var best *VideoFile
	for _, f := range files {
		if best == nil || f.Resolution > best.Resolution {
			best = f
		}
	}
	return best
}
