package transcoding

import (
	"fmt"
	"math"
)

// FPSConfig bounds the output framerates of transcoded renditions
type FPSConfig struct {
	Min     int
	Max     int
	Average int
	// KeepOriginMinResolution is the resolution at and above which the
	// source framerate is kept even when it exceeds the average.
	KeepOriginMinResolution int
	// Standard and HDStandard are the encoder-friendly framerate ladders
	// the source rate is snapped to.
	Standard   []int
	HDStandard []int
}

// DefaultFPSConfig mirrors the usual transcoding profile
func DefaultFPSConfig() FPSConfig {
	return FPSConfig{
		Min:                     1,
		Max:                     60,
		Average:                 30,
		KeepOriginMinResolution: 720,
		Standard:                []int{24, 25, 30},
		HDStandard:              []int{50, 60},
	}
}

// ClosestFramerateStandard snaps a source framerate onto a ladder entry.
// The entry minimizing fps mod standard wins, ties go to the lower entry,
// so 59.94 snaps to 25 on {20,25,30} rather than the numerically closest 30.
func ClosestFramerateStandard(fps float64, ladder []int) int {
	best := ladder[0]
	bestRemainder := math.Mod(fps, float64(ladder[0]))

	for _, standard := range ladder[1:] {
		remainder := math.Mod(fps, float64(standard))
		if remainder < bestRemainder {
			best = standard
			bestRemainder = remainder
		}
	}

	return best
}

// ComputeOutputFPS derives the rendition framerate from the source framerate.
// Small renditions above the average rate are snapped to the standard ladder,
// anything above the maximum is snapped to the HD ladder, and a result below
// the minimum is a configuration error rather than a per-job failure.
func ComputeOutputFPS(resolution int, fps float64, cfg FPSConfig) (int, error) {
	if resolution < cfg.KeepOriginMinResolution && fps > float64(cfg.Average) {
		fps = float64(ClosestFramerateStandard(fps, cfg.Standard))
	}

	if fps > float64(cfg.Max) {
		fps = float64(ClosestFramerateStandard(fps, cfg.HDStandard))
	}

	if fps < float64(cfg.Min) {
		return 0, fmt.Errorf("cannot compute output fps: %v is lower than the minimum %d", fps, cfg.Min)
	}

	return int(math.Round(fps)), nil
}
