package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/handlers"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/models"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/store"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
	"github.com/psantana5/runner-orchestrator/pkg/videostate"
)

type noopNotifier struct{}

func (noopNotifier) NotifyJobsAvailable() {}

type stubProber struct{}

func (stubProber) Probe(ctx context.Context, input string) (*ffprobe.Probe, error) {
	return &ffprobe.Probe{
		Streams: []ffprobe.Stream{
			{CodecType: "video", CodecTagString: "avc1", CodecName: "h264", Profile: "High", Level: 42,
				Width: 1280, Height: 720, AvgFrameRate: "30/1"},
			{CodecType: "audio", CodecName: "aac"},
		},
		Format: ffprobe.Format{Duration: "10.0", Size: "1000000"},
	}, nil
}

func (stubProber) Thumbnail(ctx context.Context, input, output string) error { return nil }

type claimRecorder struct {
	results []string
}

func (r *claimRecorder) RecordClaimAttempt(result string) {
	r.results = append(r.results, result)
}

type apiFixture struct {
	store   store.Store
	set     *handlers.Set
	router  *mux.Router
	claims  *claimRecorder
	handler *Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	s := store.NewMemoryStore()
	storage := objstore.NewFSStorage(t.TempDir(), "")
	logger := logging.NewLogger(logging.ERROR, false)

	e := engine.New(s, noopNotifier{}, logger, 3)
	videos := videostate.New(s, logger, videostate.Callbacks{})
	playlists := transcoding.NewHLSPlaylist(s, storage, stubProber{}, logger)

	set := handlers.Register(e, handlers.Deps{
		Store:     s,
		Storage:   storage,
		Prober:    stubProber{},
		Videos:    videos,
		Playlists: playlists,
		Logger:    logger,
	})

	h := NewHandler(s, e, storage, logger)
	claims := &claimRecorder{}
	h.SetMetricsRecorder(claims)

	router := mux.NewRouter()
	h.RegisterRoutes(router)

	return &apiFixture{store: s, set: set, router: router, claims: claims, handler: h}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) registerRunner(t *testing.T) string {
	t.Helper()

	token := &models.RunnerRegistrationToken{
		ID:                uuid.New(),
		RegistrationToken: models.GenerateRegistrationToken(),
	}
	if err := f.store.CreateRegistrationToken(token); err != nil {
		t.Fatalf("failed to create registration token: %v", err)
	}

	w := f.do(t, "POST", "/api/v1/runners/register", map[string]string{
		"registrationToken": token.RegistrationToken,
		"name":              "test-runner",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register failed with %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RunnerToken string `json:"runnerToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	return resp.RunnerToken
}

func (f *apiFixture) createVideoWithJob(t *testing.T) (*models.Video, *models.RunnerJob) {
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
	if err := f.store.CreateVideo(video); err != nil {
		t.Fatalf("failed to create video: %v", err)
	}

	job, err := f.set.HLS.Create(video, 720, 30, nil, "https://example.com")
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return video, job
}

func TestRegisterRunner(t *testing.T) {
	f := newAPIFixture(t)

	runnerToken := f.registerRunner(t)
	if !strings.HasPrefix(runnerToken, "ptrt-") {
		t.Errorf("unexpected runner token %q", runnerToken)
	}
}

func TestRegisterRunnerBadToken(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "POST", "/api/v1/runners/register", map[string]string{
		"registrationToken": "ptrrt-unknown",
		"name":              "test-runner",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown registration token, got %d", w.Code)
	}
}

func TestRegisterRunnerRequiresName(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "POST", "/api/v1/runners/register", map[string]string{
		"registrationToken": "ptrrt-whatever",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing name, got %d", w.Code)
	}
}

func TestRequestJobs(t *testing.T) {
	f := newAPIFixture(t)
	runnerToken := f.registerRunner(t)
	_, job := f.createVideoWithJob(t)

	w := f.do(t, "POST", "/api/v1/runners/jobs/request", map[string]interface{}{
		"runnerToken": runnerToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("request jobs failed with %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AvailableJobs []SimpleRunnerJob `json:"availableJobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.AvailableJobs) != 1 {
		t.Fatalf("expected 1 available job, got %d", len(resp.AvailableJobs))
	}
	if resp.AvailableJobs[0].UUID != job.UUID.String() {
		t.Errorf("unexpected job %s", resp.AvailableJobs[0].UUID)
	}
}

func TestRequestJobsUnknownRunner(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "POST", "/api/v1/runners/jobs/request", map[string]string{
		"runnerToken": "ptrt-unknown",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown runner token, got %d", w.Code)
	}
}

func TestAcceptJob(t *testing.T) {
	f := newAPIFixture(t)
	runnerToken := f.registerRunner(t)
	_, job := f.createVideoWithJob(t)

	w := f.do(t, "POST", fmt.Sprintf("/api/v1/runners/jobs/%s/accept", job.UUID), map[string]string{
		"runnerToken": runnerToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("accept failed with %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Job RunnerJobView `json:"job"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Job.JobToken == "" {
		t.Error("accept must issue a job token")
	}
	if resp.Job.State.ID != int(models.JobStateProcessing) {
		t.Errorf("accepted job must be processing, got %d", resp.Job.State.ID)
	}

	// A second claim must lose
	w = f.do(t, "POST", fmt.Sprintf("/api/v1/runners/jobs/%s/accept", job.UUID), map[string]string{
		"runnerToken": runnerToken,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a second claim, got %d", w.Code)
	}

	if len(f.claims.results) != 2 || f.claims.results[0] != "accepted" || f.claims.results[1] != "conflict" {
		t.Errorf("unexpected claim records %v", f.claims.results)
	}
}

func (f *apiFixture) acceptJob(t *testing.T, runnerToken string, jobUUID uuid.UUID) string {
	t.Helper()

	w := f.do(t, "POST", fmt.Sprintf("/api/v1/runners/jobs/%s/accept", jobUUID), map[string]string{
		"runnerToken": runnerToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("accept failed with %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Job RunnerJobView `json:"job"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.Job.JobToken
}

func TestErrorJobRetries(t *testing.T) {
	f := newAPIFixture(t)
	runnerToken := f.registerRunner(t)
	_, job := f.createVideoWithJob(t)
	jobToken := f.acceptJob(t, runnerToken, job.UUID)

	w := f.do(t, "POST", fmt.Sprintf("/api/v1/runners/jobs/%s/error", job.UUID), map[string]string{
		"runnerToken": runnerToken,
		"jobToken":    jobToken,
		"message":     "ffmpeg exited with 1",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("error report failed with %d: %s", w.Code, w.Body.String())
	}

	fresh, err := f.store.GetJob(job.UUID)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if fresh.Failures != 1 {
		t.Errorf("failures = %d, want 1", fresh.Failures)
	}
	if fresh.State != models.JobStatePending {
		t.Errorf("below the failure threshold the job must be retried, got %v", fresh.State)
	}
}

func TestErrorJobWrongToken(t *testing.T) {
	f := newAPIFixture(t)
	runnerToken := f.registerRunner(t)
	_, job := f.createVideoWithJob(t)
	f.acceptJob(t, runnerToken, job.UUID)

	w := f.do(t, "POST", fmt.Sprintf("/api/v1/runners/jobs/%s/error", job.UUID), map[string]string{
		"runnerToken": runnerToken,
		"jobToken":    "ptrjt-wrong",
		"message":     "nope",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a wrong job token, got %d", w.Code)
	}
}

func TestSuccessJobMultipart(t *testing.T) {
	f := newAPIFixture(t)
	runnerToken := f.registerRunner(t)
	video, job := f.createVideoWithJob(t)
	jobToken := f.acceptJob(t, runnerToken, job.UUID)

	uploaded := "01234567-89ab-cdef-0123-456789abcdef-720-fragmented.mp4"

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	form.WriteField("runnerToken", runnerToken)
	form.WriteField("jobToken", jobToken)

	videoPart, err := form.CreateFormFile("payload[videoFile]", uploaded)
	if err != nil {
		t.Fatalf("failed to build form: %v", err)
	}
	videoPart.Write([]byte("mp4 content"))

	playlistPart, err := form.CreateFormFile("payload[resolutionPlaylistFile]", "playlist.m3u8")
	if err != nil {
		t.Fatalf("failed to build form: %v", err)
	}
	playlistPart.Write([]byte("#EXTM3U\n#EXTINF:4.0,\n" + uploaded + "\n#EXT-X-ENDLIST\n"))
	form.Close()

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/runners/jobs/%s/success", job.UUID), &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("success report failed with %d: %s", w.Code, w.Body.String())
	}

	fresh, err := f.store.GetJob(job.UUID)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if fresh.State != models.JobStateCompleted {
		t.Errorf("job state = %v, want completed", fresh.State)
	}

	freshVideo, err := f.store.GetVideo(video.UUID)
	if err != nil {
		t.Fatalf("failed to reload video: %v", err)
	}
	if freshVideo.State != models.VideoStatePublished {
		t.Errorf("video state = %v, want published", freshVideo.State)
	}
}

func TestDownloadMaxQualityFile(t *testing.T) {
	f := newAPIFixture(t)
	runnerToken := f.registerRunner(t)
	video, job := f.createVideoWithJob(t)

	file := &models.VideoFile{
		ID:         uuid.New(),
		Resolution: 720,
		Filename:   video.Directory + "/source.mp4",
		VideoID:    video.ID,
	}
	if err := f.store.CreateVideoFile(file); err != nil {
		t.Fatalf("failed to create video file: %v", err)
	}

	path := fmt.Sprintf("/api/v1/runners/jobs/files/videos/%s/%s/max-quality", video.UUID, job.UUID)
	w := f.do(t, "POST", path, map[string]string{"runnerToken": runnerToken})

	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d: %s", w.Code, w.Body.String())
	}

	location := w.Header().Get("Location")
	want := "https://example.com/" + file.Filename
	if location != want {
		t.Errorf("redirect location = %q, want %q", location, want)
	}
}

func TestAdminRegistrationTokens(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "POST", "/api/v1/admin/registration-tokens", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("token creation failed with %d: %s", w.Code, w.Body.String())
	}

	var token models.RunnerRegistrationToken
	if err := json.Unmarshal(w.Body.Bytes(), &token); err != nil {
		t.Fatalf("failed to decode token: %v", err)
	}
	if !strings.HasPrefix(token.RegistrationToken, "ptrrt-") {
		t.Errorf("unexpected registration token %q", token.RegistrationToken)
	}

	w = f.do(t, "GET", "/api/v1/admin/registration-tokens", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("token listing failed with %d", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("token count = %d, want 1", resp.Count)
	}
}

func TestAdminCancelJob(t *testing.T) {
	f := newAPIFixture(t)
	_, job := f.createVideoWithJob(t)

	w := f.do(t, "POST", fmt.Sprintf("/api/v1/admin/jobs/%s/cancel", job.UUID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel failed with %d: %s", w.Code, w.Body.String())
	}

	fresh, err := f.store.GetJob(job.UUID)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if fresh.State != models.JobStateCancelled {
		t.Errorf("job state = %v, want cancelled", fresh.State)
	}
}

func TestAdminListJobs(t *testing.T) {
	f := newAPIFixture(t)
	f.createVideoWithJob(t)

	w := f.do(t, "GET", "/api/v1/admin/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("listing failed with %d", w.Code)
	}

	var resp struct {
		Jobs  []RunnerJobView `json:"jobs"`
		Count int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("expected 1 job, got count=%d len=%d", resp.Count, len(resp.Jobs))
	}
	if resp.Jobs[0].JobToken != "" {
		t.Error("admin listing must not leak processing tokens")
	}
}

type runnerListCountingStore struct {
	store.Store
	listRunnerCalls int
}

func (s *runnerListCountingStore) ListRunners() ([]*models.Runner, error) {
	s.listRunnerCalls++
	return s.Store.ListRunners()
}

func TestAdminListJobsResolvesRunnersOnce(t *testing.T) {
	counting := &runnerListCountingStore{Store: store.NewMemoryStore()}
	logger := logging.NewLogger(logging.ERROR, false)
	e := engine.New(counting, noopNotifier{}, logger, 3)
	h := NewHandler(counting, e, objstore.NewFSStorage(t.TempDir(), ""), logger)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	runner := &models.Runner{
		ID:          uuid.New(),
		RunnerToken: models.GenerateRunnerToken(),
		Name:        "encoder-1",
	}
	if err := counting.CreateRunner(runner); err != nil {
		t.Fatalf("failed to create runner: %v", err)
	}

	for i := 0; i < 3; i++ {
		job := &models.RunnerJob{
			UUID:     uuid.New(),
			Type:     models.JobTypeVODHLSTranscoding,
			State:    models.JobStateProcessing,
			Payload:  json.RawMessage(`{}`),
			RunnerID: &runner.ID,
		}
		if err := counting.CreateJob(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/v1/admin/jobs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("listing failed with %d", w.Code)
	}

	var resp struct {
		Jobs []RunnerJobView `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(resp.Jobs))
	}
	for i, job := range resp.Jobs {
		if job.Runner == nil || job.Runner.Name != "encoder-1" {
			t.Errorf("job %d runner not resolved: %+v", i, job.Runner)
		}
	}

	if counting.listRunnerCalls != 1 {
		t.Errorf("expected one runner list per request, got %d", counting.listRunnerCalls)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health failed with %d", w.Code)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}
