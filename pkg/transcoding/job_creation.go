package transcoding

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
)

// CreateRenditionJob creates one transcoding job for a rendition. The job
// type handler provides it, which keeps the planner independent of the
// handler wiring.
type CreateRenditionJob func(video *models.Video, resolution, fps int, dependsOn *uuid.UUID, domain string) (*models.RunnerJob, error)

// PlannerConfig carries the configuration the job planner needs
type PlannerConfig struct {
	EnabledResolutions map[int]bool
	// AlwaysTranscodeOriginal keeps the source resolution in the plan even
	// when it is not an enabled ladder rung.
	AlwaysTranscodeOriginal bool
	FPS                     FPSConfig
}

// CreateTranscodingJobs decomposes a source video into its transcoding job
// tree: one root job at the highest resolution the source can serve, plus one
// dependent job per strictly lower enabled rung. The fan-out is flat, every
// child depends on the root directly.
func CreateTranscodingJobs(video *models.Video, probe *ffprobe.Probe, domain string, cfg PlannerConfig, create CreateRenditionJob, logger *logging.Logger) error {
	inputResolution := probe.Resolution()
	inputFPS := probe.FPS()

	maxResolution := ComputeMaxResolutionToTranscode(inputResolution, cfg.EnabledResolutions)
	if cfg.AlwaysTranscodeOriginal {
		if original := toEven(inputResolution); original > maxResolution {
			maxResolution = original
		}
	}
	fps, err := ComputeOutputFPS(maxResolution, inputFPS, cfg.FPS)
	if err != nil {
		return fmt.Errorf("failed to compute output fps: %w", err)
	}

	rootJob, err := create(video, maxResolution, fps, nil, domain)
	if err != nil {
		return fmt.Errorf("failed to create main transcoding job: %w", err)
	}

	logger.Info("Created transcoding job tree root", map[string]interface{}{
		"video":      video.UUID.String(),
		"job":        rootJob.UUID.String(),
		"resolution": maxResolution,
		"fps":        fps,
	})

	return buildLowerResolutionJobs(video, maxResolution, inputFPS, probe.HasAudio(), rootJob, domain, cfg, create, logger)
}

// buildLowerResolutionJobs creates the dependent jobs for every enabled rung
// strictly below the root resolution.
func buildLowerResolutionJobs(video *models.Video, rootResolution int, inputFPS float64, hasAudio bool, rootJob *models.RunnerJob, domain string, cfg PlannerConfig, create CreateRenditionJob, logger *logging.Logger) error {
	resolutions := ComputeResolutionsToTranscode(rootResolution, cfg.EnabledResolutions, false, true, hasAudio)
	if len(resolutions) == 0 {
		logger.Debug("No lower resolutions to transcode", map[string]interface{}{
			"video": video.UUID.String(),
		})
		return nil
	}

	for _, resolution := range resolutions {
		fps, err := ComputeOutputFPS(resolution, inputFPS, cfg.FPS)
		if err != nil {
			return fmt.Errorf("failed to compute output fps for %dp: %w", resolution, err)
		}

		job, err := create(video, resolution, fps, &rootJob.UUID, domain)
		if err != nil {
			return fmt.Errorf("failed to create %dp transcoding job: %w", resolution, err)
		}

		logger.Debug("Created dependent transcoding job", map[string]interface{}{
			"video":      video.UUID.String(),
			"job":        job.UUID.String(),
			"resolution": resolution,
			"fps":        fps,
		})
	}

	return nil
}
