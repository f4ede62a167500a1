package transcoding

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

var fragmentedSuffix = regexp.MustCompile(`(?i)-fragmented\.mp4$`)

// GetVideoDirectory returns a path inside the video's directory
func GetVideoDirectory(video *models.Video, suffix string) string {
	return video.Directory + "/" + suffix
}

// LowerCaseExtension returns the lower case extension of a file
func LowerCaseExtension(p string) string {
	return strings.ToLower(path.Ext(p))
}

// GenerateWebVideoFilename generates a filename for a web video rendition
func GenerateWebVideoFilename(resolution int, extname string) string {
	return fmt.Sprintf("%s-%d%s", uuid.NewString(), resolution, extname)
}

// GenerateHLSVideoFilename generates a filename for an HLS rendition.
// An empty basename falls back to a fresh uuid.
func GenerateHLSVideoFilename(resolution int, basename string) string {
	if basename == "" {
		basename = uuid.NewString()
	}
	return fmt.Sprintf("%s-%d-fragmented.mp4", basename, resolution)
}

// GenerateTranscriptionFilename generates a filename for a transcript
func GenerateTranscriptionFilename(language, basename string) string {
	if basename == "" {
		basename = uuid.NewString()
	}
	return fmt.Sprintf("%s-%s.vtt", basename, language)
}

// HLSResolutionPlaylistFilename derives the resolution playlist name from
// its rendition video filename.
func HLSResolutionPlaylistFilename(videoFilename string) string {
	return fragmentedSuffix.ReplaceAllString(videoFilename, "") + ".m3u8"
}

// GenerateHLSMasterPlaylistFilename generates the master playlist name.
// Live playlists use a fixed name so the ingest URL stays stable.
func GenerateHLSMasterPlaylistFilename(isLive bool) string {
	if isLive {
		return "master.m3u8"
	}
	return uuid.NewString() + "-master.m3u8"
}

// BuildNewFile creates the VideoFile row describing a stored media file,
// deriving size, resolution and framerate from its probe.
func BuildNewFile(s store.Store, video *models.Video, filename string, probe *ffprobe.Probe) (*models.VideoFile, error) {
	resolution := models.ResolutionNoVideo
	fps := -1
	if probe.VideoStream() != nil {
		resolution = probe.Resolution()
		fps = int(probe.FPS())
	}

	metadata, err := probe.Metadata()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	file := &models.VideoFile{
		ID:         uuid.New(),
		Resolution: resolution,
		Size:       probe.SizeBytes(),
		Extname:    LowerCaseExtension(filename),
		FPS:        fps,
		Metadata:   metadata,
		Filename:   filename,
		VideoID:    video.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.CreateVideoFile(file); err != nil {
		return nil, fmt.Errorf("failed to create video file: %w", err)
	}

	return file, nil
}
