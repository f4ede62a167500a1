package transcoding

import (
	"fmt"

	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
)

// avc1Profiles maps H.264 profile names to their RFC 6381 hex prefix
var avc1Profiles = map[string]string{
	"High":     "6400",
	"Main":     "4D40",
	"Baseline": "42E0",
}

// av01Profiles maps AV1 profile names to their codec string digit
var av01Profiles = map[string]string{
	"Main":         "0",
	"High":         "1",
	"Professional": "2",
}

// VideoStreamCodec builds the RFC 6381 codec string of the video stream for
// the CODECS attribute of a master playlist. Empty string when the file has
// no video stream or an unrecognized codec.
func VideoStreamCodec(path string, probe *ffprobe.Probe, logger *logging.Logger) string {
	video := probe.VideoStream()
	if video == nil {
		return ""
	}

	switch video.CodecTagString {
	case "vp09":
		return "vp09.00.50.08"
	case "hev1":
		return "hev1.1.6.L93.B0"
	case "avc1":
		if prefix, ok := avc1Profiles[video.Profile]; ok {
			return fmt.Sprintf("avc1.%s%02x", prefix, video.Level)
		}
	case "av01":
		if profile, ok := av01Profiles[video.Profile]; ok {
			return fmt.Sprintf("av01.%s.%02dM.08", profile, video.Level)
		}
	}

	logger.Warn(fmt.Sprintf("Cannot get video codec of %s", path))
	return ""
}

// AudioStreamCodec builds the codec tag of the audio stream. Unrecognized
// codecs fall back to AAC since that is what most players assume; empty
// string when the file has no audio stream.
func AudioStreamCodec(path string, probe *ffprobe.Probe, logger *logging.Logger) string {
	audio := probe.AudioStream()
	if audio == nil {
		return ""
	}

	switch audio.CodecName {
	case "opus", "vorbis":
		return audio.CodecName
	case "aac":
		return "mp4a.40.2"
	case "mp3":
		return "mp4a.40.34"
	}

	logger.Warn(fmt.Sprintf("Cannot get audio codec of %s", path))
	return "mp4a.40.2"
}
