package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/store"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
	"github.com/psantana5/runner-orchestrator/pkg/videostate"
)

type noopNotifier struct{}

func (noopNotifier) NotifyJobsAvailable() {}

// stubProber answers every probe with the same canned result
type stubProber struct {
	probe *ffprobe.Probe
}

func (p *stubProber) Probe(ctx context.Context, input string) (*ffprobe.Probe, error) {
	return p.probe, nil
}

func (p *stubProber) Thumbnail(ctx context.Context, input, output string) error {
	return nil
}

func canned720pProbe() *ffprobe.Probe {
	return &ffprobe.Probe{
		Streams: []ffprobe.Stream{
			{CodecType: "video", CodecTagString: "avc1", CodecName: "h264", Profile: "High", Level: 42,
				Width: 1280, Height: 720, AvgFrameRate: "30/1"},
			{CodecType: "audio", CodecName: "aac", Channels: 2},
		},
		Format: ffprobe.Format{Duration: "10.0", Size: "1000000"},
	}
}

type fixture struct {
	store  store.Store
	set    *Set
	engine *engine.Engine
	videos *videostate.Machine
}

func newFixture(t *testing.T, languages ...string) *fixture {
	t.Helper()

	s := store.NewMemoryStore()
	storage := objstore.NewFSStorage(t.TempDir(), "")
	prober := &stubProber{probe: canned720pProbe()}
	logger := logging.NewLogger(logging.ERROR, false)

	e := engine.New(s, noopNotifier{}, logger, 3)
	videos := videostate.New(s, logger, videostate.Callbacks{})
	playlists := transcoding.NewHLSPlaylist(s, storage, prober, logger)

	set := Register(e, Deps{
		Store:     s,
		Storage:   storage,
		Prober:    prober,
		Videos:    videos,
		Playlists: playlists,
		Logger:    logger,
		Languages: languages,
	})

	return &fixture{store: s, set: set, engine: e, videos: videos}
}

func (f *fixture) createVideo(t *testing.T, state models.VideoState) *models.Video {
	t.Helper()

	now := time.Now()
	video := &models.Video{
		ID:           uuid.New(),
		UUID:         uuid.New(),
		State:        state,
		Directory:    "videos/" + uuid.NewString(),
		BaseFilename: "deadbeef",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.store.CreateVideo(video); err != nil {
		t.Fatalf("failed to create video: %v", err)
	}
	return video
}

func (f *fixture) pending(t *testing.T, video *models.Video, column models.VideoJobInfoColumn) int {
	t.Helper()

	info, err := f.store.GetJobInfo(video.ID)
	if err != nil {
		t.Fatalf("failed to read job info: %v", err)
	}
	switch column {
	case models.PendingTranscode:
		return info.PendingTranscode
	case models.PendingTranscript:
		return info.PendingTranscript
	default:
		return info.PendingMove
	}
}

func TestHLSCreate(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateToTranscode)

	job, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create hls job: %v", err)
	}

	if job.Type != models.JobTypeVODHLSTranscoding {
		t.Errorf("unexpected job type %s", job.Type)
	}
	if job.State != models.JobStatePending {
		t.Errorf("independent job must start pending, got %v", job.State)
	}
	if job.Priority != 0 {
		t.Errorf("vod jobs must use the default priority, got %d", job.Priority)
	}

	var payload models.TranscodingJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	wantURL := fmt.Sprintf("https://example.com/api/v1/runners/jobs/files/videos/%s/%s/max-quality",
		video.UUID, job.UUID)
	if payload.Input.VideoFileURL != wantURL {
		t.Errorf("download url = %q, want %q", payload.Input.VideoFileURL, wantURL)
	}
	if payload.Output.Resolution != 720 || payload.Output.FPS != 30 {
		t.Errorf("unexpected output spec %+v", payload.Output)
	}

	if got := f.pending(t, video, models.PendingTranscode); got != 1 {
		t.Errorf("pending transcode = %d, want 1", got)
	}
}

func TestHLSCreateDependent(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateToTranscode)

	root, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create root job: %v", err)
	}

	child, err := f.set.HLS.Create(video, 480, 30, &root.UUID, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create child job: %v", err)
	}

	if child.State != models.JobStateWaitingForParentJob {
		t.Errorf("dependent job must wait for its parent, got %v", child.State)
	}
	if got := f.pending(t, video, models.PendingTranscode); got != 2 {
		t.Errorf("pending transcode = %d, want 2", got)
	}
}

func TestHLSComplete(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateToTranscode)

	job, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	uploaded := "01234567-89ab-cdef-0123-456789abcdef-720-fragmented.mp4"
	result := &engine.ResultPayload{
		VideoFile:              strings.NewReader("mp4 content"),
		VideoFilename:          uploaded,
		ResolutionPlaylistFile: strings.NewReader("#EXTM3U\n#EXTINF:4.0,\n" + uploaded + "\n#EXT-X-ENDLIST\n"),
	}

	if err := f.set.HLS.SpecificComplete(job, result); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	files, err := f.store.ListVideoFiles(video.ID)
	if err != nil {
		t.Fatalf("failed to list files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 video file, got %d", len(files))
	}

	file := files[0]
	if file.Resolution != 720 {
		t.Errorf("file resolution = %d, want 720", file.Resolution)
	}
	if file.StreamingPlaylistID == nil {
		t.Error("rendition must be linked to the streaming playlist")
	}
	if !strings.HasPrefix(file.Filename, video.Directory+"/") {
		t.Errorf("rendition must live in the video directory, got %q", file.Filename)
	}

	if got := f.pending(t, video, models.PendingTranscode); got != 0 {
		t.Errorf("pending transcode = %d, want 0", got)
	}

	fresh, err := f.store.GetVideo(video.UUID)
	if err != nil {
		t.Fatalf("failed to reload video: %v", err)
	}
	if fresh.State != models.VideoStatePublished {
		t.Errorf("video must be published after its last job, got %v", fresh.State)
	}
}

func TestHLSCompleteVideoGone(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateToTranscode)

	job, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	// Point the job at a video that no longer exists
	private, _ := json.Marshal(models.TranscodingPrivatePayload{VideoUUID: uuid.NewString()})
	job.PrivatePayload = private

	result := &engine.ResultPayload{
		VideoFile:              strings.NewReader("mp4"),
		ResolutionPlaylistFile: strings.NewReader("#EXTM3U\n"),
	}
	if err := f.set.HLS.SpecificComplete(job, result); err != nil {
		t.Fatalf("completing a job for a deleted video must not fail: %v", err)
	}
}

func TestVODErrorTerminal(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateToTranscode)

	job, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	if err := f.set.HLS.SpecificError(job, "ffmpeg blew up", models.JobStateErrored); err != nil {
		t.Fatalf("error hook failed: %v", err)
	}

	fresh, err := f.store.GetVideo(video.UUID)
	if err != nil {
		t.Fatalf("failed to reload video: %v", err)
	}
	if fresh.State != models.VideoStateTranscodingFailed {
		t.Errorf("video must be parked in failed transcoding, got %v", fresh.State)
	}
	if got := f.pending(t, video, models.PendingTranscode); got != 0 {
		t.Errorf("pending transcode = %d, want 0", got)
	}
}

func TestVODErrorRetryKeepsVideo(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateToTranscode)

	job, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	if err := f.set.HLS.SpecificError(job, "transient", models.JobStatePending); err != nil {
		t.Fatalf("error hook failed: %v", err)
	}

	fresh, err := f.store.GetVideo(video.UUID)
	if err != nil {
		t.Fatalf("failed to reload video: %v", err)
	}
	if fresh.State != models.VideoStateToTranscode {
		t.Errorf("a retried job must leave the video alone, got %v", fresh.State)
	}
	if got := f.pending(t, video, models.PendingTranscode); got != 1 {
		t.Errorf("pending transcode = %d, want 1", got)
	}
}

func TestVODCancelLastJobAdvancesVideo(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateToTranscode)

	root, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create root job: %v", err)
	}
	child, err := f.set.HLS.Create(video, 480, 30, &root.UUID, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create child job: %v", err)
	}

	if err := f.set.HLS.SpecificCancel(root); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	fresh, _ := f.store.GetVideo(video.UUID)
	if fresh.State != models.VideoStateToTranscode {
		t.Errorf("video must not advance while jobs remain, got %v", fresh.State)
	}

	if err := f.set.HLS.SpecificCancel(child); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	fresh, _ = f.store.GetVideo(video.UUID)
	if fresh.State != models.VideoStatePublished {
		t.Errorf("cancelling the last job must advance the video, got %v", fresh.State)
	}
}

func TestTranscriptionComplete(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStatePublished)

	job, err := f.set.Transcription.Create(video, "https://example.com", "")
	if err != nil {
		t.Fatalf("failed to create transcription job: %v", err)
	}

	result := &engine.ResultPayload{
		InputLanguage: "en",
		VTTFile:       strings.NewReader("WEBVTT\n"),
	}
	if err := f.set.Transcription.SpecificComplete(job, result); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	fresh, err := f.store.GetVideo(video.UUID)
	if err != nil {
		t.Fatalf("failed to reload video: %v", err)
	}
	if fresh.Language != "en" {
		t.Errorf("video language = %q, want en", fresh.Language)
	}
	if !strings.HasSuffix(fresh.TranscriptFilename, "deadbeef-en.vtt") {
		t.Errorf("unexpected transcript filename %q", fresh.TranscriptFilename)
	}
}

func TestTranscriptionCompleteKeepsExistingLanguage(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStatePublished)
	video.Language = "fr"
	if err := f.store.UpdateVideo(video); err != nil {
		t.Fatalf("failed to update video: %v", err)
	}

	job, err := f.set.Transcription.Create(video, "https://example.com", "")
	if err != nil {
		t.Fatalf("failed to create transcription job: %v", err)
	}

	result := &engine.ResultPayload{InputLanguage: "en", VTTFile: strings.NewReader("WEBVTT\n")}
	if err := f.set.Transcription.SpecificComplete(job, result); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	fresh, _ := f.store.GetVideo(video.UUID)
	if fresh.Language != "fr" {
		t.Errorf("an already set language must not change, got %q", fresh.Language)
	}
}

func TestTranscriptionCompleteRejectsLanguage(t *testing.T) {
	f := newFixture(t, "en", "fr")
	video := f.createVideo(t, models.VideoStatePublished)

	job, err := f.set.Transcription.Create(video, "https://example.com", "")
	if err != nil {
		t.Fatalf("failed to create transcription job: %v", err)
	}

	result := &engine.ResultPayload{InputLanguage: "xx", VTTFile: strings.NewReader("WEBVTT\n")}
	if err := f.set.Transcription.SpecificComplete(job, result); err != nil {
		t.Fatalf("an invalid language must not fail the job: %v", err)
	}

	fresh, _ := f.store.GetVideo(video.UUID)
	if fresh.TranscriptFilename != "" {
		t.Errorf("no transcript must be recorded for an invalid language, got %q", fresh.TranscriptFilename)
	}
}

func TestTranscriptionCreateOverridesURL(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStatePublished)

	job, err := f.set.Transcription.Create(video, "https://example.com", "https://media.example.com/v.mp4")
	if err != nil {
		t.Fatalf("failed to create transcription job: %v", err)
	}

	var payload models.TranscriptionJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Input.VideoFileURL != "https://media.example.com/v.mp4" {
		t.Errorf("explicit source url must win, got %q", payload.Input.VideoFileURL)
	}
}

func TestTranscriptionErrorTerminal(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStatePublished)

	job, err := f.set.Transcription.Create(video, "https://example.com", "")
	if err != nil {
		t.Fatalf("failed to create transcription job: %v", err)
	}
	if got := f.pending(t, video, models.PendingTranscript); got != 1 {
		t.Fatalf("pending transcript = %d, want 1", got)
	}

	if err := f.set.Transcription.SpecificError(job, "whisper crashed", models.JobStateErrored); err != nil {
		t.Fatalf("error hook failed: %v", err)
	}
	if got := f.pending(t, video, models.PendingTranscript); got != 0 {
		t.Errorf("pending transcript = %d, want 0", got)
	}
}

func TestLiveCreatePinsMasterPlaylist(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateWaitingForLive)

	job, err := f.set.Live.Create(LiveJobParams{
		Video:           video,
		RTMPURL:         "rtmp://example.com/live/stream",
		ToTranscode:     []models.LiveTranscodeTarget{{Resolution: 720, FPS: 30}},
		SegmentDuration: 4,
		SegmentListSize: 15,
		OutputDirectory: video.Directory,
		SessionID:       "session-1",
		Domain:          "https://example.com",
	})
	if err != nil {
		t.Fatalf("failed to create live job: %v", err)
	}

	if job.Priority != 100 {
		t.Errorf("live jobs must be scheduled behind vod work, got priority %d", job.Priority)
	}

	playlist, err := f.store.GetOrCreatePlaylist(video.ID)
	if err != nil {
		t.Fatalf("failed to load playlist: %v", err)
	}
	if playlist.PlaylistFilename != "master.m3u8" {
		t.Errorf("live master playlist name = %q, want master.m3u8", playlist.PlaylistFilename)
	}
}

func TestLiveCompleteEndsSession(t *testing.T) {
	f := newFixture(t)
	video := f.createVideo(t, models.VideoStateWaitingForLive)

	job, err := f.set.Live.Create(LiveJobParams{
		Video:     video,
		RTMPURL:   "rtmp://example.com/live/stream",
		SessionID: "session-1",
		Domain:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("failed to create live job: %v", err)
	}

	if err := f.set.Live.SpecificComplete(job, &engine.ResultPayload{}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	fresh, _ := f.store.GetVideo(video.UUID)
	if fresh.State != models.VideoStateLiveEnded {
		t.Errorf("video must leave the live state, got %v", fresh.State)
	}
}

func TestLiveAbortUnsupported(t *testing.T) {
	f := newFixture(t)

	if f.set.Live.IsAbortSupported() {
		t.Error("live jobs must not be abortable")
	}
	if err := f.set.Live.SpecificAbort(&models.RunnerJob{}); err == nil {
		t.Error("aborting a live job must fail")
	}
}
