package transcoding

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/store"
)

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

func newPlaylistFixture(t *testing.T) (*HLSPlaylist, store.Store, objstore.Storage) {
	t.Helper()

	s := store.NewMemoryStore()
	storage := objstore.NewFSStorage(t.TempDir(), "")
	prober := &stubProber{probe: canned720pProbe()}
	logger := logging.NewLogger(logging.ERROR, false)

	return NewHLSPlaylist(s, storage, prober, logger), s, storage
}

func createTestVideo(t *testing.T, s store.Store) *models.Video {
	t.Helper()

	now := time.Now()
	video := &models.Video{
		ID:           uuid.New(),
		UUID:         uuid.New(),
		State:        models.VideoStateToTranscode,
		Directory:    "videos/" + uuid.NewString(),
		BaseFilename: "deadbeef",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateVideo(video); err != nil {
		t.Fatalf("failed to create video: %v", err)
	}
	return video
}

func storageContent(t *testing.T, storage objstore.Storage, key string) string {
	t.Helper()

	f, err := storage.Open(key)
	if err != nil {
		t.Fatalf("failed to open %s: %v", key, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read %s: %v", key, err)
	}
	return string(content)
}

func TestRenameVideoFileInPlaylist(t *testing.T) {
	h, _, storage := newPlaylistFixture(t)

	uploaded := "01234567-89ab-cdef-0123-456789abcdef-720-fragmented.mp4"
	playlist := "#EXTM3U\n#EXTINF:4.0,\n" + uploaded + "\n#EXT-X-ENDLIST\n"

	key, err := storage.Save("videos/v/deadbeef-720.m3u8", strings.NewReader(playlist))
	if err != nil {
		t.Fatalf("failed to seed playlist: %v", err)
	}

	if err := h.RenameVideoFileInPlaylist(key, "deadbeef-720-fragmented.mp4"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	content := storageContent(t, storage, key)
	if strings.Contains(content, uploaded) {
		t.Error("uploaded filename still referenced after rename")
	}
	if !strings.Contains(content, "deadbeef-720-fragmented.mp4") {
		t.Errorf("stored filename missing from playlist: %q", content)
	}
}

func TestOnHLSVideoFileTranscodingBuildsMasterPlaylist(t *testing.T) {
	h, s, storage := newPlaylistFixture(t)
	video := createTestVideo(t, s)

	filename := GetVideoDirectory(video, "deadbeef-720-fragmented.mp4")
	if _, err := storage.Save(filename, strings.NewReader("mp4")); err != nil {
		t.Fatalf("failed to seed rendition: %v", err)
	}

	file := &models.VideoFile{
		ID:         uuid.New(),
		Resolution: 720,
		Filename:   filename,
		VideoID:    video.ID,
	}
	if err := s.CreateVideoFile(file); err != nil {
		t.Fatalf("failed to create video file: %v", err)
	}

	if err := h.OnHLSVideoFileTranscoding(context.Background(), video, file); err != nil {
		t.Fatalf("OnHLSVideoFileTranscoding failed: %v", err)
	}

	if file.StreamingPlaylistID == nil {
		t.Fatal("rendition must be linked to the streaming playlist")
	}
	if video.Duration != 10 {
		t.Errorf("video duration must come from the probe, got %d", video.Duration)
	}

	playlist, err := s.GetOrCreatePlaylist(video.ID)
	if err != nil {
		t.Fatalf("failed to load playlist: %v", err)
	}

	masterPath := GetVideoDirectory(video, "master.m3u8")
	if playlist.PlaylistFilename != masterPath {
		t.Errorf("playlist filename = %q, want %q", playlist.PlaylistFilename, masterPath)
	}

	content := storageContent(t, storage, masterPath)
	if !strings.HasPrefix(content, "#EXTM3U\n#EXT-X-VERSION:3\n") {
		t.Errorf("unexpected master playlist header: %q", content)
	}
	if !strings.Contains(content, "RESOLUTION=1280x720") {
		t.Errorf("missing resolution attribute: %q", content)
	}
	if !strings.Contains(content, `CODECS="avc1.64002a,mp4a.40.2"`) {
		t.Errorf("missing codecs attribute: %q", content)
	}
	if !strings.Contains(content, "deadbeef-720.m3u8") {
		t.Errorf("missing resolution playlist reference: %q", content)
	}
}

func TestUpdateMasterPlaylistIsIdempotent(t *testing.T) {
	h, s, storage := newPlaylistFixture(t)
	video := createTestVideo(t, s)

	filename := GetVideoDirectory(video, "deadbeef-720-fragmented.mp4")
	if _, err := storage.Save(filename, strings.NewReader("mp4")); err != nil {
		t.Fatalf("failed to seed rendition: %v", err)
	}

	file := &models.VideoFile{
		ID:         uuid.New(),
		Resolution: 720,
		Filename:   filename,
		VideoID:    video.ID,
	}
	if err := s.CreateVideoFile(file); err != nil {
		t.Fatalf("failed to create video file: %v", err)
	}

	if err := h.OnHLSVideoFileTranscoding(context.Background(), video, file); err != nil {
		t.Fatalf("first rebuild failed: %v", err)
	}

	masterPath := GetVideoDirectory(video, "master.m3u8")
	first := storageContent(t, storage, masterPath)

	playlist, err := s.GetOrCreatePlaylist(video.ID)
	if err != nil {
		t.Fatalf("failed to load playlist: %v", err)
	}
	if err := h.UpdateMasterPlaylist(context.Background(), video, playlist); err != nil {
		t.Fatalf("second rebuild failed: %v", err)
	}

	second := storageContent(t, storage, masterPath)
	if first != second {
		t.Errorf("master playlist changed on rebuild without new renditions:\n%q\n%q", first, second)
	}
}

func TestUpdateMasterPlaylistSkipsWithoutFiles(t *testing.T) {
	h, s, storage := newPlaylistFixture(t)
	video := createTestVideo(t, s)

	playlist, err := s.GetOrCreatePlaylist(video.ID)
	if err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}

	if err := h.UpdateMasterPlaylist(context.Background(), video, playlist); err != nil {
		t.Fatalf("rebuild without files must not fail: %v", err)
	}

	exists, err := storage.Exists(GetVideoDirectory(video, "master.m3u8"))
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if exists {
		t.Error("master playlist must not be written for a video without renditions")
	}
}
