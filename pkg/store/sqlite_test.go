package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func newTestJob(jobType models.RunnerJobType, state models.RunnerJobState) *models.RunnerJob {
	now := time.Now()
	return &models.RunnerJob{
		ID:             uuid.New(),
		UUID:           uuid.New(),
		Type:           jobType,
		Payload:        json.RawMessage(`{}`),
		PrivatePayload: json.RawMessage(`{}`),
		State:          state,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSQLiteJobRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	job := newTestJob(models.JobTypeVODHLSTranscoding, models.JobStatePending)
	job.Payload = json.RawMessage(`{"output":{"resolution":720,"fps":25}}`)
	job.Priority = 3

	if err := s.CreateJob(job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	got, err := s.GetJob(job.UUID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}

	if got.Type != models.JobTypeVODHLSTranscoding {
		t.Errorf("expected type %s, got %s", models.JobTypeVODHLSTranscoding, got.Type)
	}
	if got.State != models.JobStatePending {
		t.Errorf("expected state pending, got %v", got.State)
	}
	if got.Priority != 3 {
		t.Errorf("expected priority 3, got %d", got.Priority)
	}
	if string(got.Payload) != string(job.Payload) {
		t.Errorf("payload mismatch: %s", got.Payload)
	}
	if got.Progress != nil || got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("expected nil progress and timestamps on a fresh job")
	}
}

func TestSQLiteGetJobNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetJob(uuid.New())
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSQLiteAcceptJob(t *testing.T) {
	s := newTestSQLiteStore(t)

	job := newTestJob(models.JobTypeVODWebVideoTranscoding, models.JobStatePending)
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	if err := s.AcceptJob(job.UUID); err != nil {
		t.Fatalf("first accept should succeed: %v", err)
	}

	if err := s.AcceptJob(job.UUID); !errors.Is(err, ErrJobNotPending) {
		t.Errorf("second accept should fail with ErrJobNotPending, got %v", err)
	}

	if err := s.AcceptJob(uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("accepting unknown job should fail with ErrJobNotFound, got %v", err)
	}
}

func TestSQLiteAcceptJobRace(t *testing.T) {
	s := newTestSQLiteStore(t)

	job := newTestJob(models.JobTypeVideoTranscription, models.JobStatePending)
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	const claimers = 20
	var wg sync.WaitGroup
	results := make(chan error, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.AcceptJob(job.UUID)
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrJobNotPending):
			conflicts++
		default:
			t.Errorf("unexpected accept error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("expected exactly 1 winning claim, got %d", wins)
	}
	if conflicts != claimers-1 {
		t.Errorf("expected %d conflicts, got %d", claimers-1, conflicts)
	}
}

func TestSQLiteListAvailableJobs(t *testing.T) {
	s := newTestSQLiteStore(t)

	low := newTestJob(models.JobTypeVODHLSTranscoding, models.JobStatePending)
	low.Priority = 1
	high := newTestJob(models.JobTypeVODHLSTranscoding, models.JobStatePending)
	high.Priority = 10
	waiting := newTestJob(models.JobTypeVODHLSTranscoding, models.JobStateWaitingForParentJob)
	transcription := newTestJob(models.JobTypeVideoTranscription, models.JobStatePending)

	for _, job := range []*models.RunnerJob{low, high, waiting, transcription} {
		if err := s.CreateJob(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}
	}

	jobs, err := s.ListAvailableJobs(nil, 10)
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 pending jobs, got %d", len(jobs))
	}
	if jobs[0].UUID != low.UUID {
		t.Error("expected lowest priority value first")
	}

	jobs, err = s.ListAvailableJobs([]models.RunnerJobType{models.JobTypeVideoTranscription}, 10)
	if err != nil {
		t.Fatalf("failed to list filtered jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].UUID != transcription.UUID {
		t.Errorf("expected only the transcription job, got %d jobs", len(jobs))
	}
}

func TestSQLiteReleaseDependentJobs(t *testing.T) {
	s := newTestSQLiteStore(t)

	parent := newTestJob(models.JobTypeVODHLSTranscoding, models.JobStateCompleted)
	if err := s.CreateJob(parent); err != nil {
		t.Fatalf("failed to create parent: %v", err)
	}

	waiting := newTestJob(models.JobTypeVODHLSTranscoding, models.JobStateWaitingForParentJob)
	waiting.DependsOnRunnerJob = &parent.UUID
	cancelled := newTestJob(models.JobTypeVODHLSTranscoding, models.JobStateParentCancelled)
	cancelled.DependsOnRunnerJob = &parent.UUID

	for _, job := range []*models.RunnerJob{waiting, cancelled} {
		if err := s.CreateJob(job); err != nil {
			t.Fatalf("failed to create child: %v", err)
		}
	}

	released, err := s.ReleaseDependentJobs(parent.UUID)
	if err != nil {
		t.Fatalf("failed to release children: %v", err)
	}
	if released != 1 {
		t.Errorf("expected 1 released child, got %d", released)
	}

	got, err := s.GetJob(waiting.UUID)
	if err != nil {
		t.Fatalf("failed to get child: %v", err)
	}
	if got.State != models.JobStatePending {
		t.Errorf("expected waiting child to become pending, got %v", got.State)
	}

	got, err = s.GetJob(cancelled.UUID)
	if err != nil {
		t.Fatalf("failed to get child: %v", err)
	}
	if got.State != models.JobStateParentCancelled {
		t.Errorf("cancelled child must not be released, got %v", got.State)
	}
}

func TestSQLiteJobInfoCounters(t *testing.T) {
	s := newTestSQLiteStore(t)
	videoID := uuid.New()

	value, err := s.IncreaseJobInfo(videoID, models.PendingTranscode, 3)
	if err != nil {
		t.Fatalf("failed to increase counter: %v", err)
	}
	if value != 3 {
		t.Errorf("expected counter 3, got %d", value)
	}

	value, err = s.IncreaseJobInfo(videoID, models.PendingTranscode, 2)
	if err != nil {
		t.Fatalf("failed to increase counter: %v", err)
	}
	if value != 5 {
		t.Errorf("expected counter 5, got %d", value)
	}

	value, err = s.DecreaseJobInfo(videoID, models.PendingTranscode)
	if err != nil {
		t.Fatalf("failed to decrease counter: %v", err)
	}
	if value != 4 {
		t.Errorf("expected counter 4, got %d", value)
	}

	// Other columns stay untouched
	info, err := s.GetJobInfo(videoID)
	if err != nil {
		t.Fatalf("failed to get job info: %v", err)
	}
	if info.PendingMove != 0 || info.PendingTranscript != 0 {
		t.Errorf("unexpected counter values: %+v", info)
	}

	if _, err := s.DecreaseJobInfo(uuid.New(), models.PendingTranscode); !errors.Is(err, ErrJobInfoNotFound) {
		t.Errorf("expected ErrJobInfoNotFound for unknown video, got %v", err)
	}
}

func TestSQLiteJobInfoConcurrentDecrease(t *testing.T) {
	s := newTestSQLiteStore(t)
	videoID := uuid.New()

	const pending = 10
	if _, err := s.IncreaseJobInfo(videoID, models.PendingTranscode, pending); err != nil {
		t.Fatalf("failed to seed counter: %v", err)
	}

	var wg sync.WaitGroup
	zeros := make(chan int, pending)

	for i := 0; i < pending; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := s.DecreaseJobInfo(videoID, models.PendingTranscode)
			if err != nil {
				t.Errorf("decrease failed: %v", err)
				return
			}
			if value == 0 {
				zeros <- value
			}
		}()
	}
	wg.Wait()
	close(zeros)

	// Exactly one decrement observes zero, so exactly one completion
	// triggers the video state transition.
	var observed int
	for range zeros {
		observed++
	}
	if observed != 1 {
		t.Errorf("expected exactly one goroutine to observe zero, got %d", observed)
	}
}

func TestSQLiteRunnerLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()

	token := &models.RunnerRegistrationToken{
		ID:                uuid.New(),
		RegistrationToken: "ptrrt-" + uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.CreateRegistrationToken(token); err != nil {
		t.Fatalf("failed to create registration token: %v", err)
	}

	got, err := s.GetRegistrationToken(token.RegistrationToken)
	if err != nil {
		t.Fatalf("failed to get registration token: %v", err)
	}
	if got.ID != token.ID {
		t.Errorf("token id mismatch: %s != %s", got.ID, token.ID)
	}

	runner := &models.Runner{
		ID:                  uuid.New(),
		RunnerToken:         "ptrt-" + uuid.NewString(),
		Name:                "runner-1",
		LastContact:         now,
		IP:                  "10.0.0.1",
		RegistrationTokenID: token.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.CreateRunner(runner); err != nil {
		t.Fatalf("failed to create runner: %v", err)
	}

	fetched, err := s.GetRunnerByToken(runner.RunnerToken)
	if err != nil {
		t.Fatalf("failed to get runner: %v", err)
	}
	if fetched.Name != "runner-1" || fetched.IP != "10.0.0.1" {
		t.Errorf("unexpected runner: %+v", fetched)
	}

	fetched.IP = "10.0.0.2"
	if err := s.UpdateRunner(fetched); err != nil {
		t.Fatalf("failed to update runner: %v", err)
	}

	runners, err := s.ListRunners()
	if err != nil {
		t.Fatalf("failed to list runners: %v", err)
	}
	if len(runners) != 1 || runners[0].IP != "10.0.0.2" {
		t.Errorf("unexpected runner list: %+v", runners)
	}

	if err := s.DeleteRunner(runner.ID); err != nil {
		t.Fatalf("failed to delete runner: %v", err)
	}
	if _, err := s.GetRunnerByToken(runner.RunnerToken); !errors.Is(err, ErrRunnerNotFound) {
		t.Errorf("expected ErrRunnerNotFound after delete, got %v", err)
	}
}

func TestSQLiteVideoAndFiles(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()

	video := &models.Video{
		ID:        uuid.New(),
		UUID:      uuid.New(),
		State:     models.VideoStateToTranscode,
		Duration:  120,
		Directory: "/videos/abc",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateVideo(video); err != nil {
		t.Fatalf("failed to create video: %v", err)
	}

	playlist, err := s.GetOrCreatePlaylist(video.ID)
	if err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	again, err := s.GetOrCreatePlaylist(video.ID)
	if err != nil {
		t.Fatalf("failed to get playlist: %v", err)
	}
	if playlist.ID != again.ID {
		t.Error("GetOrCreatePlaylist must be idempotent per video")
	}

	file := &models.VideoFile{
		ID:                  uuid.New(),
		Resolution:          720,
		Size:                1 << 20,
		Extname:             ".mp4",
		FPS:                 25,
		Filename:            "abc-720-fragmented.mp4",
		VideoID:             video.ID,
		StreamingPlaylistID: &playlist.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.CreateVideoFile(file); err != nil {
		t.Fatalf("failed to create video file: %v", err)
	}

	files, err := s.ListPlaylistFiles(playlist.ID)
	if err != nil {
		t.Fatalf("failed to list playlist files: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "abc-720-fragmented.mp4" {
		t.Errorf("unexpected playlist files: %+v", files)
	}

	found, created, err := s.GetOrCreateVideoByDirectory("/videos/abc", models.VideoStatePublished)
	if err != nil {
		t.Fatalf("failed to get video by directory: %v", err)
	}
	if created || found.UUID != video.UUID {
		t.Error("expected to find the existing video by directory")
	}

	fresh, created, err := s.GetOrCreateVideoByDirectory("/videos/def", models.VideoStatePublished)
	if err != nil {
		t.Fatalf("failed to create video by directory: %v", err)
	}
	if !created || fresh.State != models.VideoStatePublished {
		t.Errorf("expected a fresh published video, got created=%v state=%v", created, fresh.State)
	}
}
