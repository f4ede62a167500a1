// Package transcode is the entrypoint of the VOD transcoding pipeline: it
// registers a source file as a video, generates its thumbnail and creates
// the transcoding job tree runners will work through.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/handlers"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/store"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
)

// ErrSourceNotFound is returned when the file to transcode is not in storage
var ErrSourceNotFound = errors.New("video file does not exist")

// Transcoder starts transcoding pipelines
type Transcoder struct {
	store   store.Store
	storage objstore.Storage
	prober  ffprobe.Prober
	hls     *handlers.VODHLSHandler
	planner transcoding.PlannerConfig
	logger  *logging.Logger
}

// New creates a transcoder
func New(s store.Store, storage objstore.Storage, prober ffprobe.Prober, hls *handlers.VODHLSHandler, planner transcoding.PlannerConfig, logger *logging.Logger) *Transcoder {
	return &Transcoder{
		store:   s,
		storage: storage,
		prober:  prober,
		hls:     hls,
		planner: planner,
		logger:  logger,
	}
}

// TranscodeVideo registers the stored file at filePath as a new video under
// destination and creates its transcoding jobs. baseName seeds the rendition
// filenames and may be empty. domain is prepended to the download URLs handed
// to runners.
func (t *Transcoder) TranscodeVideo(ctx context.Context, filePath, destination, domain, baseName string) (*models.Video, error) {
	exists, err := t.storage.Exists(filePath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrSourceNotFound
	}

	now := time.Now()
	video := &models.Video{
		ID:           uuid.New(),
		UUID:         uuid.New(),
		State:        models.VideoStateToTranscode,
		Directory:    destination,
		BaseFilename: baseName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := t.store.CreateVideo(video); err != nil {
		return nil, fmt.Errorf("failed to create video: %w", err)
	}

	probe, err := t.prober.Probe(ctx, t.storage.URL(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to probe source: %w", err)
	}

	file, err := transcoding.BuildNewFile(t.store, video, filePath, probe)
	if err != nil {
		return nil, err
	}

	video.Duration = probe.DurationSeconds()

	thumbnail, err := t.buildThumbnail(ctx, video, file)
	if err != nil {
		return nil, fmt.Errorf("failed to build thumbnail: %w", err)
	}
	video.ThumbnailFilename = thumbnail

	if err := t.store.UpdateVideo(video); err != nil {
		return nil, err
	}

	t.logger.Info("Video created", map[string]interface{}{
		"video":     video.UUID.String(),
		"directory": destination,
		"file":      filePath,
	})

	createJob := func(video *models.Video, resolution, fps int, dependsOn *uuid.UUID, jobDomain string) (*models.RunnerJob, error) {
		return t.hls.Create(video, resolution, fps, dependsOn, jobDomain)
	}

	if err := transcoding.CreateTranscodingJobs(video, probe, domain, t.planner, createJob, t.logger); err != nil {
		return nil, err
	}

	return video, nil
}

// buildThumbnail extracts the first frame of the source into the video
// directory and returns the stored key.
func (t *Transcoder) buildThumbnail(ctx context.Context, video *models.Video, file *models.VideoFile) (string, error) {
	tmp, err := os.CreateTemp("", "thumbnail-*.jpg")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := t.prober.Thumbnail(ctx, t.storage.URL(file.Filename), tmpPath); err != nil {
		return "", err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return t.storage.Save(transcoding.GetVideoDirectory(video, "thumbnail.jpg"), f)
}
