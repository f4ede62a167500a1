package transcoding

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

var uploadedRenditionRef = regexp.MustCompile(
	`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}-\d+-fragmented\.mp4`)

// HLSPlaylist maintains the streaming playlist bookkeeping of videos:
// linking rendition files to the playlist record and rebuilding the master
// playlist file.
type HLSPlaylist struct {
	store   store.Store
	storage objstore.Storage
	prober  ffprobe.Prober
	logger  *logging.Logger
}

// NewHLSPlaylist creates the playlist maintainer
func NewHLSPlaylist(s store.Store, storage objstore.Storage, prober ffprobe.Prober, logger *logging.Logger) *HLSPlaylist {
	return &HLSPlaylist{store: s, storage: storage, prober: prober, logger: logger}
}

// RenameVideoFileInPlaylist rewrites the rendition filename a runner put in
// an uploaded resolution playlist to the name the file was stored under.
func (h *HLSPlaylist) RenameVideoFileInPlaylist(playlistKey, newVideoFilename string) error {
	f, err := h.storage.Open(playlistKey)
	if err != nil {
		return fmt.Errorf("failed to open playlist %s: %w", playlistKey, err)
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read playlist %s: %w", playlistKey, err)
	}

	newContent := uploadedRenditionRef.ReplaceAllString(string(content), newVideoFilename)

	if err := h.storage.Delete(playlistKey); err != nil {
		return err
	}
	if _, err := h.storage.Save(playlistKey, strings.NewReader(newContent)); err != nil {
		return fmt.Errorf("failed to write playlist %s: %w", playlistKey, err)
	}

	return nil
}

// OnHLSVideoFileTranscoding attaches a freshly stored rendition to the
// video's streaming playlist and rebuilds the master playlist.
func (h *HLSPlaylist) OnHLSVideoFileTranscoding(ctx context.Context, video *models.Video, file *models.VideoFile) error {
	playlist, err := h.store.GetOrCreatePlaylist(video.ID)
	if err != nil {
		return fmt.Errorf("failed to get playlist: %w", err)
	}

	probe, err := h.prober.Probe(ctx, h.storage.URL(file.Filename))
	if err != nil {
		return fmt.Errorf("failed to probe rendition: %w", err)
	}

	// Live sessions start without a known duration
	if video.Duration == 0 {
		video.Duration = probe.DurationSeconds()
	}

	metadata, err := probe.Metadata()
	if err != nil {
		return err
	}

	file.StreamingPlaylistID = &playlist.ID
	file.Size = probe.SizeBytes()
	file.FPS = int(probe.FPS())
	file.Metadata = metadata

	if err := h.store.UpdateVideoFile(file); err != nil {
		return err
	}
	if err := h.store.UpdateVideo(video); err != nil {
		return err
	}

	return h.UpdateMasterPlaylist(ctx, video, playlist)
}

// UpdateMasterPlaylist fully rewrites the master playlist file of a video
// from its current rendition set. A video without renditions keeps whatever
// master playlist it has; rebuilding is skipped.
func (h *HLSPlaylist) UpdateMasterPlaylist(ctx context.Context, video *models.Video, playlist *models.VideoStreamingPlaylist) error {
	files, err := h.store.ListPlaylistFiles(playlist.ID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		h.logger.Info("Cannot update master playlist file: no video files", map[string]interface{}{
			"video": video.UUID.String(),
		})
		return nil
	}

	elements := []string{"#EXTM3U", "#EXT-X-VERSION:3"}

	for _, file := range files {
		probe, err := h.prober.Probe(ctx, h.storage.URL(file.Filename))
		if err != nil {
			return fmt.Errorf("failed to probe rendition %s: %w", file.Filename, err)
		}

		playlistFilename := HLSResolutionPlaylistFilename(path.Base(file.Filename))

		var width, height int
		if videoStream := probe.VideoStream(); videoStream != nil {
			width = videoStream.Width
			height = videoStream.Height
		}

		line := fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d",
			video.BandwidthBits(file), width, height)
		if file.FPS > 0 {
			line += fmt.Sprintf(",FRAME-RATE=%d", file.FPS)
		}

		var codecs []string
		for _, codec := range []string{
			VideoStreamCodec(file.Filename, probe, h.logger),
			AudioStreamCodec(file.Filename, probe, h.logger),
		} {
			if codec != "" {
				codecs = append(codecs, codec)
			}
		}
		line += fmt.Sprintf(",CODECS=%q", strings.Join(codecs, ","))

		elements = append(elements, line, playlistFilename)
	}

	masterPath := GetVideoDirectory(video, "master.m3u8")
	playlist.PlaylistFilename = masterPath
	if err := h.store.UpdatePlaylist(playlist); err != nil {
		return err
	}

	content := strings.Join(elements, "\n") + "\n"

	if exists, err := h.storage.Exists(masterPath); err != nil {
		return err
	} else if exists {
		if err := h.storage.Delete(masterPath); err != nil {
			return err
		}
	}
	if _, err := h.storage.Save(masterPath, strings.NewReader(content)); err != nil {
		return fmt.Errorf("failed to write master playlist: %w", err)
	}

	h.logger.Info("Updated master playlist file", map[string]interface{}{
		"playlist": masterPath,
		"video":    video.UUID.String(),
	})

	return nil
}
