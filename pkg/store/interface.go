package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/runner-orchestrator/pkg/models"
)

// Store defines the interface for data persistence.
// SQLite, PostgreSQL and the in-memory store implement this interface.
type Store interface {
	// Registration token operations
	CreateRegistrationToken(token *models.RunnerRegistrationToken) error
	GetRegistrationToken(registrationToken string) (*models.RunnerRegistrationToken, error)
	ListRegistrationTokens() ([]*models.RunnerRegistrationToken, error)

	// Runner operations
	CreateRunner(runner *models.Runner) error
	GetRunnerByToken(runnerToken string) (*models.Runner, error)
	ListRunners() ([]*models.Runner, error)
	UpdateRunner(runner *models.Runner) error
	DeleteRunner(id uuid.UUID) error

	// Job operations
	CreateJob(job *models.RunnerJob) error
	GetJob(jobUUID uuid.UUID) (*models.RunnerJob, error)
	ListJobs() ([]*models.RunnerJob, error)
	ListAvailableJobs(types []models.RunnerJobType, limit int) ([]*models.RunnerJob, error)
	UpdateJob(job *models.RunnerJob) error

	// AcceptJob atomically transitions a job from pending to processing.
	// It must be a single conditional write: when the job is not pending
	// anymore it returns ErrJobNotPending and changes nothing.
	AcceptJob(jobUUID uuid.UUID) error

	// GetChildren returns the direct children of a job (jobs whose
	// depends_on_runner_job points at it).
	GetChildren(parentUUID uuid.UUID) ([]*models.RunnerJob, error)

	// ReleaseDependentJobs moves every child still waiting for the parent
	// to the pending state and returns how many rows were affected.
	ReleaseDependentJobs(parentUUID uuid.UUID) (int64, error)

	// Video operations
	CreateVideo(video *models.Video) error
	GetVideo(videoUUID uuid.UUID) (*models.Video, error)
	GetOrCreateVideoByDirectory(directory string, defaultState models.VideoState) (*models.Video, bool, error)
	UpdateVideo(video *models.Video) error

	// Video file operations
	CreateVideoFile(file *models.VideoFile) error
	UpdateVideoFile(file *models.VideoFile) error
	DeleteVideoFile(id uuid.UUID) error
	ListVideoFiles(videoID uuid.UUID) ([]*models.VideoFile, error)
	ListPlaylistFiles(playlistID uuid.UUID) ([]*models.VideoFile, error)

	// Job info counters. Increments and decrements are executed atomically
	// in the database, never as read-modify-write in the caller: sibling
	// jobs of one video complete concurrently.
	IncreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn, amount int) (int, error)
	DecreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn) (int, error)
	GetJobInfo(videoID uuid.UUID) (*models.VideoJobInfo, error)

	// Streaming playlist operations
	GetOrCreatePlaylist(videoID uuid.UUID) (*models.VideoStreamingPlaylist, error)
	UpdatePlaylist(playlist *models.VideoStreamingPlaylist) error

	// Lifecycle
	Close() error
	HealthCheck() error
}

// Config holds database configuration
type Config struct {
	Type string // "sqlite" or "postgres"
	DSN  string // Connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// SQLite specific
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgresStore(config)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "orchestrator.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}
