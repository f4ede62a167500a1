package transcoding

import (
	"sort"

	"github.com/psantana5/runner-orchestrator/pkg/models"
)

// ComputeResolutionsToTranscode computes which rungs of the ladder a source
// video should be transcoded to. A rung is included when it is enabled in the
// configuration, does not exceed the input resolution (strictly below it when
// strictLower is set) and, for the audio-only rung, the source has audio.
// When includeInput is set the input resolution itself is added, rounded up
// to an even number since encoders reject odd dimensions.
func ComputeResolutionsToTranscode(inputResolution int, enabled map[int]bool, includeInput, strictLower, hasAudio bool) []int {
	set := make(map[int]bool)

	for _, resolution := range models.AvailableResolutions {
		if !enabled[resolution] {
			continue
		}
		if resolution == models.ResolutionNoVideo && !hasAudio {
			continue
		}
		if resolution > inputResolution {
			continue
		}
		if strictLower && resolution == inputResolution {
			continue
		}
		set[resolution] = true
	}

	if includeInput {
		set[toEven(inputResolution)] = true
	}

	resolutions := make([]int, 0, len(set))
	for resolution := range set {
		resolutions = append(resolutions, resolution)
	}
	sort.Ints(resolutions)

	return resolutions
}

// ComputeMaxResolutionToTranscode walks the ladder top-down and returns the
// first enabled rung the input can serve, falling back to the audio-only rung.
func ComputeMaxResolutionToTranscode(inputResolution int, enabled map[int]bool) int {
	for i := len(models.AvailableResolutions) - 1; i >= 0; i-- {
		resolution := models.AvailableResolutions[i]
		if enabled[resolution] && resolution <= inputResolution {
			return resolution
		}
	}
	return models.ResolutionNoVideo
}

// toEven rounds up to the nearest even number
func toEven(n int) int {
	if n%2 == 0 {
		return n
	}
	return n + 1
}
