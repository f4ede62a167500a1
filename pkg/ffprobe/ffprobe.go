package ffprobe

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Probe is the structured result of inspecting a media file
type Probe struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one elementary stream of a media file
type Stream struct {
	Index          int    `json:"index"`
	CodecType      string `json:"codec_type"`
	CodecName      string `json:"codec_name"`
	CodecTagString string `json:"codec_tag_string"`
	Profile        string `json:"profile"`
	Level          int    `json:"level"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	AvgFrameRate   string `json:"avg_frame_rate"`
	RFrameRate     string `json:"r_frame_rate"`
	BitRate        string `json:"bit_rate"`
	Channels       int    `json:"channels"`
	SampleRate     string `json:"sample_rate"`
}

// Format describes container level metadata
type Format struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

// Metadata serializes the probe for storage alongside the file record
func (p *Probe) Metadata() (json.RawMessage, error) {
	return json.Marshal(p)
}

// VideoStream returns the first video stream, or nil
func (p *Probe) VideoStream() *Stream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

// AudioStream returns the first audio stream, or nil
func (p *Probe) AudioStream() *Stream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// HasAudio returns true when the file carries an audio stream
func (p *Probe) HasAudio() bool {
	return p.AudioStream() != nil
}

// DurationSeconds returns the container duration rounded down to whole
// seconds, 0 when unknown.
func (p *Probe) DurationSeconds() int {
	d, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return int(d)
}

// SizeBytes returns the container size, 0 when unknown
func (p *Probe) SizeBytes() int64 {
	size, err := strconv.ParseInt(p.Format.Size, 10, 64)
	if err != nil {
		return 0
	}
	return size
}

// Resolution returns the video resolution keyed by the smaller dimension,
// so portrait videos map onto the same ladder as landscape ones. 0 for
// audio-only files.
func (p *Probe) Resolution() int {
	video := p.VideoStream()
	if video == nil {
		return 0
	}
	if video.Width < video.Height {
		return video.Width
	}
	return video.Height
}

// FPS returns the average framerate of the video stream, 0 for audio-only
// files or unparsable rates.
func (p *Probe) FPS() float64 {
	video := p.VideoStream()
	if video == nil {
		return 0
	}
	if fps := parseFrameRate(video.AvgFrameRate); fps > 0 {
		return fps
	}
	return parseFrameRate(video.RFrameRate)
}

// parseFrameRate parses the "num/den" rational ffprobe reports
func parseFrameRate(rate string) float64 {
	if rate == "" {
		return 0
	}

	parts := strings.SplitN(rate, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}

	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}
