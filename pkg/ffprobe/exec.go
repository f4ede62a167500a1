package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Prober inspects a media file identified by a local path or URL
type Prober interface {
	Probe(ctx context.Context, input string) (*Probe, error)
	// Thumbnail extracts the first frame of a video as a JPEG file
	Thumbnail(ctx context.Context, input, output string) error
}

// CommandProber shells out to ffprobe/ffmpeg
type CommandProber struct {
	FFprobePath string
	FFmpegPath  string
}

// NewCommandProber creates a prober using the binaries found on PATH
func NewCommandProber() *CommandProber {
	return &CommandProber{
		FFprobePath: "ffprobe",
		FFmpegPath:  "ffmpeg",
	}
}

// Probe runs ffprobe and parses its JSON output
func (p *CommandProber) Probe(ctx context.Context, input string) (*Probe, error) {
	cmd := exec.CommandContext(ctx, p.FFprobePath,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-print_format", "json",
		input,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", input, err)
	}

	var probe Probe
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return &probe, nil
}

// Thumbnail extracts the first frame as a JPEG
func (p *CommandProber) Thumbnail(ctx context.Context, input, output string) error {
	cmd := exec.CommandContext(ctx, p.FFmpegPath,
		"-y",
		"-v", "error",
		"-i", input,
		"-frames:v", "1",
		output,
	)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail failed for %s: %w", input, err)
	}

	return nil
}

var _ Prober = (*CommandProber)(nil)
