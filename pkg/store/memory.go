package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store, used by tests
// and as a zero-dependency fallback. All operations hold a single mutex, so
// the accept race resolves the same way as the SQL conditional update.
type MemoryStore struct {
	mu sync.Mutex

	registrationTokens map[string]*models.RunnerRegistrationToken
	runners            map[uuid.UUID]*models.Runner
	jobs               map[uuid.UUID]*models.RunnerJob
	videos             map[uuid.UUID]*models.Video
	videoFiles         map[uuid.UUID]*models.VideoFile
	jobInfos           map[uuid.UUID]*models.VideoJobInfo
	playlists          map[uuid.UUID]*models.VideoStreamingPlaylist
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registrationTokens: make(map[string]*models.RunnerRegistrationToken),
		runners:            make(map[uuid.UUID]*models.Runner),
		jobs:               make(map[uuid.UUID]*models.RunnerJob),
		videos:             make(map[uuid.UUID]*models.Video),
		videoFiles:         make(map[uuid.UUID]*models.VideoFile),
		jobInfos:           make(map[uuid.UUID]*models.VideoJobInfo),
		playlists:          make(map[uuid.UUID]*models.VideoStreamingPlaylist),
	}
}

// CreateRegistrationToken adds a new registration token
func (m *MemoryStore) CreateRegistrationToken(token *models.RunnerRegistrationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *token
	m.registrationTokens[token.RegistrationToken] = &copied
	return nil
}

// GetRegistrationToken retrieves a registration token by its token string
func (m *MemoryStore) GetRegistrationToken(registrationToken string) (*models.RunnerRegistrationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.registrationTokens[registrationToken]
	if !ok {
		return nil, ErrRegistrationTokenNotFound
	}
	copied := *token
	return &copied, nil
}

// ListRegistrationTokens returns all registration tokens
func (m *MemoryStore) ListRegistrationTokens() ([]*models.RunnerRegistrationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := make([]*models.RunnerRegistrationToken, 0, len(m.registrationTokens))
	for _, token := range m.registrationTokens {
		copied := *token
		tokens = append(tokens, &copied)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.Before(tokens[j].CreatedAt) })
	return tokens, nil
}

// CreateRunner adds a new runner
func (m *MemoryStore) CreateRunner(runner *models.Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *runner
	m.runners[runner.ID] = &copied
	return nil
}

// GetRunnerByToken retrieves a runner by its runner token
func (m *MemoryStore) GetRunnerByToken(runnerToken string) (*models.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, runner := range m.runners {
		if runner.RunnerToken == runnerToken {
			copied := *runner
			return &copied, nil
		}
	}
	return nil, ErrRunnerNotFound
}

// ListRunners returns all registered runners
func (m *MemoryStore) ListRunners() ([]*models.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runners := make([]*models.Runner, 0, len(m.runners))
	for _, runner := range m.runners {
		copied := *runner
		runners = append(runners, &copied)
	}
	sort.Slice(runners, func(i, j int) bool { return runners[i].CreatedAt.Before(runners[j].CreatedAt) })
	return runners, nil
}

// UpdateRunner persists runner mutations
func (m *MemoryStore) UpdateRunner(runner *models.Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runners[runner.ID]; !ok {
		return ErrRunnerNotFound
	}
	runner.UpdatedAt = time.Now()
	copied := *runner
	m.runners[runner.ID] = &copied
	return nil
}

// DeleteRunner removes a runner
func (m *MemoryStore) DeleteRunner(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runners[id]; !ok {
		return ErrRunnerNotFound
	}
	delete(m.runners, id)
	return nil
}

// CreateJob adds a new runner job
func (m *MemoryStore) CreateJob(job *models.RunnerJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *job
	m.jobs[job.UUID] = &copied
	return nil
}

// GetJob retrieves a job by its UUID
func (m *MemoryStore) GetJob(jobUUID uuid.UUID) (*models.RunnerJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobUUID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// ListJobs returns all jobs, newest first
func (m *MemoryStore) ListJobs() ([]*models.RunnerJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*models.RunnerJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

// ListAvailableJobs returns pending jobs a runner can claim
func (m *MemoryStore) ListAvailableJobs(types []models.RunnerJobType, limit int) ([]*models.RunnerJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[models.RunnerJobType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var jobs []*models.RunnerJob
	for _, job := range m.jobs {
		if job.State != models.JobStatePending {
			continue
		}
		if len(types) > 0 && !wanted[job.Type] {
			continue
		}
		copied := *job
		jobs = append(jobs, &copied)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority < jobs[j].Priority
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// AcceptJob atomically transitions a job from pending to processing
func (m *MemoryStore) AcceptJob(jobUUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobUUID]
	if !ok {
		return ErrJobNotFound
	}
	if job.State != models.JobStatePending {
		return ErrJobNotPending
	}
	job.State = models.JobStateProcessing
	job.UpdatedAt = time.Now()
	return nil
}

// UpdateJob persists the full mutable state of a job
func (m *MemoryStore) UpdateJob(job *models.RunnerJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.UUID]; !ok {
		return ErrJobNotFound
	}
	job.UpdatedAt = time.Now()
	copied := *job
	m.jobs[job.UUID] = &copied
	return nil
}

// GetChildren returns the direct children of a job
func (m *MemoryStore) GetChildren(parentUUID uuid.UUID) ([]*models.RunnerJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var children []*models.RunnerJob
	for _, job := range m.jobs {
		if job.DependsOnRunnerJob != nil && *job.DependsOnRunnerJob == parentUUID {
			copied := *job
			children = append(children, &copied)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].CreatedAt.Before(children[j].CreatedAt) })
	return children, nil
}

// ReleaseDependentJobs moves children still waiting for the parent to pending
func (m *MemoryStore) ReleaseDependentJobs(parentUUID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released int64
	for _, job := range m.jobs {
		if job.DependsOnRunnerJob == nil || *job.DependsOnRunnerJob != parentUUID {
			continue
		}
		if job.State != models.JobStateWaitingForParentJob {
			continue
		}
		job.State = models.JobStatePending
		job.UpdatedAt = time.Now()
		released++
	}
	return released, nil
}

// CreateVideo adds a new video
func (m *MemoryStore) CreateVideo(video *models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *video
	m.videos[video.UUID] = &copied
	return nil
}

// GetVideo retrieves a video by its UUID
func (m *MemoryStore) GetVideo(videoUUID uuid.UUID) (*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	video, ok := m.videos[videoUUID]
	if !ok {
		return nil, ErrVideoNotFound
	}
	copied := *video
	return &copied, nil
}

// GetOrCreateVideoByDirectory finds a video by directory or creates it
func (m *MemoryStore) GetOrCreateVideoByDirectory(directory string, defaultState models.VideoState) (*models.Video, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, video := range m.videos {
		if video.Directory == directory {
			copied := *video
			return &copied, false, nil
		}
	}

	now := time.Now()
	created := &models.Video{
		ID:        uuid.New(),
		UUID:      uuid.New(),
		State:     defaultState,
		Directory: directory,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.videos[created.UUID] = created
	copied := *created
	return &copied, true, nil
}

// UpdateVideo persists video mutations
func (m *MemoryStore) UpdateVideo(video *models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.videos[video.UUID]; !ok {
		return ErrVideoNotFound
	}
	video.UpdatedAt = time.Now()
	copied := *video
	m.videos[video.UUID] = &copied
	return nil
}

// CreateVideoFile adds a new video file
func (m *MemoryStore) CreateVideoFile(file *models.VideoFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *file
	m.videoFiles[file.ID] = &copied
	return nil
}

// UpdateVideoFile persists video file mutations
func (m *MemoryStore) UpdateVideoFile(file *models.VideoFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.videoFiles[file.ID]; !ok {
		return ErrVideoFileNotFound
	}
	file.UpdatedAt = time.Now()
	copied := *file
	m.videoFiles[file.ID] = &copied
	return nil
}

// DeleteVideoFile removes a video file row
func (m *MemoryStore) DeleteVideoFile(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.videoFiles[id]; !ok {
		return ErrVideoFileNotFound
	}
	delete(m.videoFiles, id)
	return nil
}

// ListVideoFiles returns every stored file of a video
func (m *MemoryStore) ListVideoFiles(videoID uuid.UUID) ([]*models.VideoFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var files []*models.VideoFile
	for _, file := range m.videoFiles {
		if file.VideoID == videoID {
			copied := *file
			files = append(files, &copied)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Resolution < files[j].Resolution })
	return files, nil
}

// ListPlaylistFiles returns the files attached to a streaming playlist
func (m *MemoryStore) ListPlaylistFiles(playlistID uuid.UUID) ([]*models.VideoFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var files []*models.VideoFile
	for _, file := range m.videoFiles {
		if file.StreamingPlaylistID != nil && *file.StreamingPlaylistID == playlistID {
			copied := *file
			files = append(files, &copied)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Resolution < files[j].Resolution })
	return files, nil
}

func (m *MemoryStore) jobInfoLocked(videoID uuid.UUID) *models.VideoJobInfo {
	info, ok := m.jobInfos[videoID]
	if !ok {
		now := time.Now()
		info = &models.VideoJobInfo{
			ID:        uuid.New(),
			VideoID:   videoID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.jobInfos[videoID] = info
	}
	return info
}

func counterField(info *models.VideoJobInfo, column models.VideoJobInfoColumn) *int {
	switch column {
	case models.PendingMove:
		return &info.PendingMove
	case models.PendingTranscode:
		return &info.PendingTranscode
	case models.PendingTranscript:
		return &info.PendingTranscript
	default:
		return nil
	}
}

// IncreaseJobInfo atomically increments a pending counter
func (m *MemoryStore) IncreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.jobInfoLocked(videoID)
	field := counterField(info, column)
	if field == nil {
		return 0, fmt.Errorf("unknown job info column %q", column)
	}
	*field += amount
	info.UpdatedAt = time.Now()
	return *field, nil
}

// DecreaseJobInfo atomically decrements a pending counter
func (m *MemoryStore) DecreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.jobInfos[videoID]
	if !ok {
		return 0, ErrJobInfoNotFound
	}
	field := counterField(info, column)
	if field == nil {
		return 0, fmt.Errorf("unknown job info column %q", column)
	}
	*field--
	info.UpdatedAt = time.Now()
	return *field, nil
}

// GetJobInfo retrieves the pending counters of a video
func (m *MemoryStore) GetJobInfo(videoID uuid.UUID) (*models.VideoJobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.jobInfos[videoID]
	if !ok {
		return nil, ErrJobInfoNotFound
	}
	copied := *info
	return &copied, nil
}

// GetOrCreatePlaylist finds the streaming playlist of a video or creates it
func (m *MemoryStore) GetOrCreatePlaylist(videoID uuid.UUID) (*models.VideoStreamingPlaylist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	playlist, ok := m.playlists[videoID]
	if !ok {
		now := time.Now()
		playlist = &models.VideoStreamingPlaylist{
			ID:        uuid.New(),
			VideoID:   videoID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.playlists[videoID] = playlist
	}
	copied := *playlist
	return &copied, nil
}

// UpdatePlaylist persists playlist mutations
func (m *MemoryStore) UpdatePlaylist(playlist *models.VideoStreamingPlaylist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.playlists[playlist.VideoID]; !ok {
		return ErrPlaylistNotFound
	}
	playlist.UpdatedAt = time.Now()
	copied := *playlist
	m.playlists[playlist.VideoID] = &copied
	return nil
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds for the memory store
func (m *MemoryStore) HealthCheck() error {
	return nil
}

// Ensure implementations satisfy the interface
var _ Store = (*MemoryStore)(nil)
