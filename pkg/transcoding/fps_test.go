package transcoding

import "testing"

func TestClosestFramerateStandard(t *testing.T) {
	standard := []int{24, 25, 30}
	hdStandard := []int{50, 60}

	tests := []struct {
		fps    float64
		ladder []int
		want   int
	}{
		// NTSC-ish rates snap onto the entry they divide most evenly by,
		// not the numerically closest one.
		{29.97, standard, 25},
		{59.94, standard, 25},
		{48, standard, 24},
		{120, standard, 24},
		{59, hdStandard, 50},
		{61, hdStandard, 60},
		{120, hdStandard, 60},
	}

	for _, tt := range tests {
		if got := ClosestFramerateStandard(tt.fps, tt.ladder); got != tt.want {
			t.Errorf("ClosestFramerateStandard(%v, %v) = %d, want %d", tt.fps, tt.ladder, got, tt.want)
		}
	}
}

func TestComputeOutputFPS(t *testing.T) {
	cfg := DefaultFPSConfig()

	tests := []struct {
		name       string
		resolution int
		fps        float64
		want       int
	}{
		{"at the average nothing changes", 480, 30, 30},
		{"small rendition above average snaps to standard", 480, 120, 24},
		{"hd rendition keeps the source rate", 1080, 31, 31},
		{"hd rendition above max snaps to hd standard", 720, 120, 60},
		{"fractional rates are rounded", 1080, 23.976, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeOutputFPS(tt.resolution, tt.fps, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputeOutputFPS(%d, %v) = %d, want %d", tt.resolution, tt.fps, got, tt.want)
			}
		})
	}
}

func TestComputeOutputFPSBelowMinimum(t *testing.T) {
	if _, err := ComputeOutputFPS(480, 0.5, DefaultFPSConfig()); err == nil {
		t.Fatal("expected error for a framerate below the configured minimum")
	}
}
