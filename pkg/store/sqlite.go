package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/runner-orchestrator/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the data store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite connection string with parameters for concurrent access
	// - _journal_mode=WAL: Enable Write-Ahead Logging for better concurrency
	// - _busy_timeout=10000: Wait up to 10 seconds when database is locked
	// - _synchronous=NORMAL: Balance between safety and performance
	// - _txlock=immediate: Acquire write lock at transaction start to reduce conflicts
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid SQLITE_BUSY under concurrent claims
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runner_registration_tokens (
		id TEXT PRIMARY KEY,
		registration_token TEXT UNIQUE NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runners (
		id TEXT PRIMARY KEY,
		runner_token TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		last_contact DATETIME NOT NULL,
		ip TEXT NOT NULL,
		registration_token_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runner_jobs (
		id TEXT PRIMARY KEY,
		uuid TEXT UNIQUE NOT NULL,
		domain TEXT,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		private_payload TEXT NOT NULL,
		state INTEGER NOT NULL,
		failures INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		processing_job_token TEXT,
		progress REAL,
		started_at DATETIME,
		finished_at DATETIME,
		depends_on_runner_job TEXT,
		runner_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		uuid TEXT UNIQUE NOT NULL,
		state INTEGER NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0,
		directory TEXT NOT NULL,
		thumbnail_filename TEXT,
		transcript_filename TEXT,
		language TEXT,
		base_filename TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_files (
		id TEXT PRIMARY KEY,
		resolution INTEGER NOT NULL,
		size INTEGER NOT NULL,
		extname TEXT NOT NULL,
		fps INTEGER NOT NULL,
		metadata TEXT,
		filename TEXT NOT NULL,
		video_id TEXT NOT NULL,
		streaming_playlist_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_job_infos (
		id TEXT PRIMARY KEY,
		video_id TEXT UNIQUE NOT NULL,
		pending_move INTEGER NOT NULL DEFAULT 0,
		pending_transcode INTEGER NOT NULL DEFAULT 0,
		pending_transcript INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_streaming_playlists (
		id TEXT PRIMARY KEY,
		playlist_filename TEXT,
		video_id TEXT UNIQUE NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runner_jobs_state ON runner_jobs(state);
	CREATE INDEX IF NOT EXISTS idx_runner_jobs_state_priority ON runner_jobs(state, priority, created_at);
	CREATE INDEX IF NOT EXISTS idx_runner_jobs_parent ON runner_jobs(depends_on_runner_job);
	CREATE INDEX IF NOT EXISTS idx_video_files_video ON video_files(video_id);
	CREATE INDEX IF NOT EXISTS idx_video_files_playlist ON video_files(streaming_playlist_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRegistrationToken adds a new registration token
func (s *SQLiteStore) CreateRegistrationToken(token *models.RunnerRegistrationToken) error {
	_, err := s.db.Exec(`
		INSERT INTO runner_registration_tokens (id, registration_token, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, token.ID.String(), token.RegistrationToken, token.CreatedAt, token.UpdatedAt)

	return err
}

// GetRegistrationToken retrieves a registration token by its token string
func (s *SQLiteStore) GetRegistrationToken(registrationToken string) (*models.RunnerRegistrationToken, error) {
	var token models.RunnerRegistrationToken
	var id string

	err := s.db.QueryRow(`
		SELECT id, registration_token, created_at, updated_at
		FROM runner_registration_tokens WHERE registration_token = ?
	`, registrationToken).Scan(&id, &token.RegistrationToken, &token.CreatedAt, &token.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrRegistrationTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	token.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token id: %w", err)
	}

	return &token, nil
}

// ListRegistrationTokens returns all registration tokens
func (s *SQLiteStore) ListRegistrationTokens() ([]*models.RunnerRegistrationToken, error) {
	rows, err := s.db.Query(`
		SELECT id, registration_token, created_at, updated_at
		FROM runner_registration_tokens ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.RunnerRegistrationToken
	for rows.Next() {
		var token models.RunnerRegistrationToken
		var id string

		if err := rows.Scan(&id, &token.RegistrationToken, &token.CreatedAt, &token.UpdatedAt); err != nil {
			return nil, err
		}
		if token.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}

		tokens = append(tokens, &token)
	}

	return tokens, rows.Err()
}

// CreateRunner adds a new runner
func (s *SQLiteStore) CreateRunner(runner *models.Runner) error {
	_, err := s.db.Exec(`
		INSERT INTO runners
		(id, runner_token, name, description, last_contact, ip, registration_token_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runner.ID.String(), runner.RunnerToken, runner.Name, runner.Description,
		runner.LastContact, runner.IP, runner.RegistrationTokenID.String(),
		runner.CreatedAt, runner.UpdatedAt)

	return err
}

func scanRunner(row interface{ Scan(...interface{}) error }) (*models.Runner, error) {
	var runner models.Runner
	var id, registrationTokenID string
	var description sql.NullString

	err := row.Scan(&id, &runner.RunnerToken, &runner.Name, &description,
		&runner.LastContact, &runner.IP, &registrationTokenID,
		&runner.CreatedAt, &runner.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if runner.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse runner id: %w", err)
	}
	if runner.RegistrationTokenID, err = uuid.Parse(registrationTokenID); err != nil {
		return nil, fmt.Errorf("failed to parse registration token id: %w", err)
	}
	runner.Description = description.String

	return &runner, nil
}

// GetRunnerByToken retrieves a runner by its runner token
func (s *SQLiteStore) GetRunnerByToken(runnerToken string) (*models.Runner, error) {
	runner, err := scanRunner(s.db.QueryRow(`
		SELECT id, runner_token, name, description, last_contact, ip, registration_token_id,
		       created_at, updated_at
		FROM runners WHERE runner_token = ?
	`, runnerToken))

	if err == sql.ErrNoRows {
		return nil, ErrRunnerNotFound
	}
	if err != nil {
		return nil, err
	}

	return runner, nil
}

// ListRunners returns all registered runners
func (s *SQLiteStore) ListRunners() ([]*models.Runner, error) {
	rows, err := s.db.Query(`
		SELECT id, runner_token, name, description, last_contact, ip, registration_token_id,
		       created_at, updated_at
		FROM runners ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runners []*models.Runner
	for rows.Next() {
		runner, err := scanRunner(rows)
		if err != nil {
			return nil, err
		}
		runners = append(runners, runner)
	}

	return runners, rows.Err()
}

// UpdateRunner persists runner mutations (last contact, ip, description)
func (s *SQLiteStore) UpdateRunner(runner *models.Runner) error {
	runner.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE runners
		SET name = ?, description = ?, last_contact = ?, ip = ?, updated_at = ?
		WHERE id = ?
	`, runner.Name, runner.Description, runner.LastContact, runner.IP,
		runner.UpdatedAt, runner.ID.String())

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunnerNotFound
	}

	return nil
}

// DeleteRunner removes a runner
func (s *SQLiteStore) DeleteRunner(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM runners WHERE id = ?`, id.String())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunnerNotFound
	}

	return nil
}

const jobColumns = `id, uuid, domain, type, payload, private_payload, state, failures, error,
	       priority, processing_job_token, progress, started_at, finished_at,
	       depends_on_runner_job, runner_id, created_at, updated_at`

// CreateJob adds a new runner job
func (s *SQLiteStore) CreateJob(job *models.RunnerJob) error {
	var parent, runnerID interface{}
	if job.DependsOnRunnerJob != nil {
		parent = job.DependsOnRunnerJob.String()
	}
	if job.RunnerID != nil {
		runnerID = job.RunnerID.String()
	}

	_, err := s.db.Exec(`
		INSERT INTO runner_jobs
		(`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID.String(), job.UUID.String(), job.Domain, string(job.Type),
		string(job.Payload), string(job.PrivatePayload), int(job.State), job.Failures,
		job.Error, job.Priority, job.ProcessingJobToken, job.Progress,
		job.StartedAt, job.FinishedAt, parent, runnerID, job.CreatedAt, job.UpdatedAt)

	return err
}

func scanJob(row interface{ Scan(...interface{}) error }) (*models.RunnerJob, error) {
	var job models.RunnerJob
	var id, jobUUID string
	var domain, jobError, token, parent, runnerID sql.NullString
	var progress sql.NullFloat64
	var startedAt, finishedAt sql.NullTime
	var jobType string
	var payload, privatePayload string

	err := row.Scan(&id, &jobUUID, &domain, &jobType, &payload, &privatePayload,
		&job.State, &job.Failures, &jobError, &job.Priority, &token, &progress,
		&startedAt, &finishedAt, &parent, &runnerID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse job id: %w", err)
	}
	if job.UUID, err = uuid.Parse(jobUUID); err != nil {
		return nil, fmt.Errorf("failed to parse job uuid: %w", err)
	}

	job.Domain = domain.String
	job.Type = models.RunnerJobType(jobType)
	job.Payload = []byte(payload)
	job.PrivatePayload = []byte(privatePayload)
	job.Error = jobError.String
	job.ProcessingJobToken = token.String

	if progress.Valid {
		job.Progress = &progress.Float64
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if parent.Valid {
		parentUUID, err := uuid.Parse(parent.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse parent job uuid: %w", err)
		}
		job.DependsOnRunnerJob = &parentUUID
	}
	if runnerID.Valid {
		rid, err := uuid.Parse(runnerID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse runner id: %w", err)
		}
		job.RunnerID = &rid
	}

	return &job, nil
}

// GetJob retrieves a job by its UUID
func (s *SQLiteStore) GetJob(jobUUID uuid.UUID) (*models.RunnerJob, error) {
	job, err := scanJob(s.db.QueryRow(`
		SELECT `+jobColumns+` FROM runner_jobs WHERE uuid = ?
	`, jobUUID.String()))

	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (s *SQLiteStore) queryJobs(query string, args ...interface{}) ([]*models.RunnerJob, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.RunnerJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// ListJobs returns all jobs, newest first
func (s *SQLiteStore) ListJobs() ([]*models.RunnerJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM runner_jobs ORDER BY created_at DESC`)
}

// ListAvailableJobs returns pending jobs a runner can claim, lowest priority
// value first then oldest first. types filters by job type when non-empty.
func (s *SQLiteStore) ListAvailableJobs(types []models.RunnerJobType, limit int) ([]*models.RunnerJob, error) {
	query := `SELECT ` + jobColumns + ` FROM runner_jobs WHERE state = ?`
	args := []interface{}{int(models.JobStatePending)}

	if len(types) > 0 {
		query += ` AND type IN (?` + repeatPlaceholder(len(types)-1) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}

	query += ` ORDER BY priority ASC, created_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryJobs(query, args...)
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

// AcceptJob atomically transitions a job from pending to processing.
// The conditional update is the only synchronization point between racing
// runners: exactly one claim flips the row, the rest get ErrJobNotPending.
func (s *SQLiteStore) AcceptJob(jobUUID uuid.UUID) error {
	result, err := s.db.Exec(`
		UPDATE runner_jobs SET state = ?, updated_at = ?
		WHERE uuid = ? AND state = ?
	`, int(models.JobStateProcessing), time.Now(), jobUUID.String(), int(models.JobStatePending))

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing job from a lost race
		var state int
		err := s.db.QueryRow(`SELECT state FROM runner_jobs WHERE uuid = ?`, jobUUID.String()).Scan(&state)
		if err == sql.ErrNoRows {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		return ErrJobNotPending
	}

	return nil
}

// UpdateJob persists the full mutable state of a job
func (s *SQLiteStore) UpdateJob(job *models.RunnerJob) error {
	job.UpdatedAt = time.Now()

	var runnerID interface{}
	if job.RunnerID != nil {
		runnerID = job.RunnerID.String()
	}

	result, err := s.db.Exec(`
		UPDATE runner_jobs
		SET state = ?, failures = ?, error = ?, priority = ?, processing_job_token = ?,
		    progress = ?, started_at = ?, finished_at = ?, runner_id = ?,
		    payload = ?, private_payload = ?, updated_at = ?
		WHERE uuid = ?
	`, int(job.State), job.Failures, job.Error, job.Priority, job.ProcessingJobToken,
		job.Progress, job.StartedAt, job.FinishedAt, runnerID,
		string(job.Payload), string(job.PrivatePayload), job.UpdatedAt, job.UUID.String())

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrJobNotFound
	}

	return nil
}

// GetChildren returns the direct children of a job
func (s *SQLiteStore) GetChildren(parentUUID uuid.UUID) ([]*models.RunnerJob, error) {
	return s.queryJobs(`
		SELECT `+jobColumns+` FROM runner_jobs
		WHERE depends_on_runner_job = ? ORDER BY created_at ASC
	`, parentUUID.String())
}

// ReleaseDependentJobs moves children still waiting for the parent to pending
func (s *SQLiteStore) ReleaseDependentJobs(parentUUID uuid.UUID) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE runner_jobs SET state = ?, updated_at = ?
		WHERE depends_on_runner_job = ? AND state = ?
	`, int(models.JobStatePending), time.Now(), parentUUID.String(),
		int(models.JobStateWaitingForParentJob))

	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// CreateVideo adds a new video
func (s *SQLiteStore) CreateVideo(video *models.Video) error {
	_, err := s.db.Exec(`
		INSERT INTO videos
		(id, uuid, state, duration, directory, thumbnail_filename, transcript_filename,
		 language, base_filename, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, video.ID.String(), video.UUID.String(), int(video.State), video.Duration,
		video.Directory, video.ThumbnailFilename, video.TranscriptFilename,
		video.Language, video.BaseFilename, video.CreatedAt, video.UpdatedAt)

	return err
}

func scanVideo(row interface{ Scan(...interface{}) error }) (*models.Video, error) {
	var video models.Video
	var id, videoUUID string
	var thumbnail, transcript, language, baseFilename sql.NullString

	err := row.Scan(&id, &videoUUID, &video.State, &video.Duration, &video.Directory,
		&thumbnail, &transcript, &language, &baseFilename,
		&video.CreatedAt, &video.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if video.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse video id: %w", err)
	}
	if video.UUID, err = uuid.Parse(videoUUID); err != nil {
		return nil, fmt.Errorf("failed to parse video uuid: %w", err)
	}

	video.ThumbnailFilename = thumbnail.String
	video.TranscriptFilename = transcript.String
	video.Language = language.String
	video.BaseFilename = baseFilename.String

	return &video, nil
}

const videoColumns = `id, uuid, state, duration, directory, thumbnail_filename,
	       transcript_filename, language, base_filename, created_at, updated_at`

// GetVideo retrieves a video by its UUID
func (s *SQLiteStore) GetVideo(videoUUID uuid.UUID) (*models.Video, error) {
	video, err := scanVideo(s.db.QueryRow(`
		SELECT `+videoColumns+` FROM videos WHERE uuid = ?
	`, videoUUID.String()))

	if err == sql.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}

	return video, nil
}

// GetOrCreateVideoByDirectory finds the video stored in a directory or creates
// it with the given default state. The second return value reports creation.
func (s *SQLiteStore) GetOrCreateVideoByDirectory(directory string, defaultState models.VideoState) (*models.Video, bool, error) {
	video, err := scanVideo(s.db.QueryRow(`
		SELECT `+videoColumns+` FROM videos WHERE directory = ?
	`, directory))

	if err == nil {
		return video, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
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
	if err := s.CreateVideo(created); err != nil {
		return nil, false, err
	}

	return created, true, nil
}

// UpdateVideo persists video mutations
func (s *SQLiteStore) UpdateVideo(video *models.Video) error {
	video.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE videos
		SET state = ?, duration = ?, directory = ?, thumbnail_filename = ?,
		    transcript_filename = ?, language = ?, base_filename = ?, updated_at = ?
		WHERE uuid = ?
	`, int(video.State), video.Duration, video.Directory, video.ThumbnailFilename,
		video.TranscriptFilename, video.Language, video.BaseFilename,
		video.UpdatedAt, video.UUID.String())

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVideoNotFound
	}

	return nil
}

// CreateVideoFile adds a new video file
func (s *SQLiteStore) CreateVideoFile(file *models.VideoFile) error {
	var playlistID interface{}
	if file.StreamingPlaylistID != nil {
		playlistID = file.StreamingPlaylistID.String()
	}

	_, err := s.db.Exec(`
		INSERT INTO video_files
		(id, resolution, size, extname, fps, metadata, filename, video_id,
		 streaming_playlist_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, file.ID.String(), file.Resolution, file.Size, file.Extname, file.FPS,
		string(file.Metadata), file.Filename, file.VideoID.String(), playlistID,
		file.CreatedAt, file.UpdatedAt)

	return err
}

func scanVideoFile(row interface{ Scan(...interface{}) error }) (*models.VideoFile, error) {
	var file models.VideoFile
	var id, videoID string
	var metadata, playlistID sql.NullString

	err := row.Scan(&id, &file.Resolution, &file.Size, &file.Extname, &file.FPS,
		&metadata, &file.Filename, &videoID, &playlistID,
		&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if file.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse file id: %w", err)
	}
	if file.VideoID, err = uuid.Parse(videoID); err != nil {
		return nil, fmt.Errorf("failed to parse file video id: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		file.Metadata = []byte(metadata.String)
	}
	if playlistID.Valid {
		pid, err := uuid.Parse(playlistID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse playlist id: %w", err)
		}
		file.StreamingPlaylistID = &pid
	}

	return &file, nil
}

const videoFileColumns = `id, resolution, size, extname, fps, metadata, filename,
	       video_id, streaming_playlist_id, created_at, updated_at`

// UpdateVideoFile persists video file mutations
func (s *SQLiteStore) UpdateVideoFile(file *models.VideoFile) error {
	file.UpdatedAt = time.Now()

	var playlistID interface{}
	if file.StreamingPlaylistID != nil {
		playlistID = file.StreamingPlaylistID.String()
	}

	result, err := s.db.Exec(`
		UPDATE video_files
		SET resolution = ?, size = ?, extname = ?, fps = ?, metadata = ?, filename = ?,
		    streaming_playlist_id = ?, updated_at = ?
		WHERE id = ?
	`, file.Resolution, file.Size, file.Extname, file.FPS, string(file.Metadata),
		file.Filename, playlistID, file.UpdatedAt, file.ID.String())

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVideoFileNotFound
	}

	return nil
}

// DeleteVideoFile removes a video file row
func (s *SQLiteStore) DeleteVideoFile(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM video_files WHERE id = ?`, id.String())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVideoFileNotFound
	}

	return nil
}

func (s *SQLiteStore) queryVideoFiles(query string, args ...interface{}) ([]*models.VideoFile, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.VideoFile
	for rows.Next() {
		file, err := scanVideoFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// ListVideoFiles returns every stored file of a video
func (s *SQLiteStore) ListVideoFiles(videoID uuid.UUID) ([]*models.VideoFile, error) {
	return s.queryVideoFiles(`
		SELECT `+videoFileColumns+` FROM video_files
		WHERE video_id = ? ORDER BY resolution ASC
	`, videoID.String())
}

// ListPlaylistFiles returns the files attached to a streaming playlist
func (s *SQLiteStore) ListPlaylistFiles(playlistID uuid.UUID) ([]*models.VideoFile, error) {
	return s.queryVideoFiles(`
		SELECT `+videoFileColumns+` FROM video_files
		WHERE streaming_playlist_id = ? ORDER BY resolution ASC
	`, playlistID.String())
}

func jobInfoColumn(column models.VideoJobInfoColumn) (string, error) {
	switch column {
	case models.PendingMove:
		return "pending_move", nil
	case models.PendingTranscode:
		return "pending_transcode", nil
	case models.PendingTranscript:
		return "pending_transcript", nil
	default:
		return "", fmt.Errorf("unknown job info column %q", column)
	}
}

// IncreaseJobInfo atomically increments a pending counter, creating the row
// on first use, and returns the new value.
func (s *SQLiteStore) IncreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn, amount int) (int, error) {
	col, err := jobInfoColumn(column)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO video_job_infos (id, video_id, `+col+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET `+col+` = `+col+` + ?, updated_at = ?
	`, uuid.New().String(), videoID.String(), amount, now, now, amount, now)

	if err != nil {
		return 0, err
	}

	var value int
	err = s.db.QueryRow(`SELECT `+col+` FROM video_job_infos WHERE video_id = ?`, videoID.String()).Scan(&value)
	if err != nil {
		return 0, err
	}

	return value, nil
}

// DecreaseJobInfo atomically decrements a pending counter and returns the new
// value. ErrJobInfoNotFound when the video has no counters row.
func (s *SQLiteStore) DecreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn) (int, error) {
	col, err := jobInfoColumn(column)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE video_job_infos SET `+col+` = `+col+` - 1, updated_at = ?
		WHERE video_id = ?
	`, time.Now(), videoID.String())
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, ErrJobInfoNotFound
	}

	var value int
	if err := tx.QueryRow(`SELECT `+col+` FROM video_job_infos WHERE video_id = ?`, videoID.String()).Scan(&value); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return value, nil
}

// GetJobInfo retrieves the pending counters of a video
func (s *SQLiteStore) GetJobInfo(videoID uuid.UUID) (*models.VideoJobInfo, error) {
	var info models.VideoJobInfo
	var id, vid string

	err := s.db.QueryRow(`
		SELECT id, video_id, pending_move, pending_transcode, pending_transcript,
		       created_at, updated_at
		FROM video_job_infos WHERE video_id = ?
	`, videoID.String()).Scan(&id, &vid, &info.PendingMove, &info.PendingTranscode,
		&info.PendingTranscript, &info.CreatedAt, &info.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrJobInfoNotFound
	}
	if err != nil {
		return nil, err
	}

	if info.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if info.VideoID, err = uuid.Parse(vid); err != nil {
		return nil, err
	}

	return &info, nil
}

// GetOrCreatePlaylist finds the streaming playlist of a video or creates it
func (s *SQLiteStore) GetOrCreatePlaylist(videoID uuid.UUID) (*models.VideoStreamingPlaylist, error) {
	var playlist models.VideoStreamingPlaylist
	var id, vid string
	var filename sql.NullString

	err := s.db.QueryRow(`
		SELECT id, playlist_filename, video_id, created_at, updated_at
		FROM video_streaming_playlists WHERE video_id = ?
	`, videoID.String()).Scan(&id, &filename, &vid, &playlist.CreatedAt, &playlist.UpdatedAt)

	if err == nil {
		if playlist.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		playlist.VideoID = videoID
		playlist.PlaylistFilename = filename.String
		return &playlist, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now()
	playlist = models.VideoStreamingPlaylist{
		ID:        uuid.New(),
		VideoID:   videoID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.Exec(`
		INSERT INTO video_streaming_playlists (id, playlist_filename, video_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, playlist.ID.String(), playlist.PlaylistFilename, videoID.String(),
		playlist.CreatedAt, playlist.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &playlist, nil
}

// UpdatePlaylist persists playlist mutations
func (s *SQLiteStore) UpdatePlaylist(playlist *models.VideoStreamingPlaylist) error {
	playlist.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE video_streaming_playlists SET playlist_filename = ?, updated_at = ? WHERE id = ?
	`, playlist.PlaylistFilename, playlist.UpdatedAt, playlist.ID.String())

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPlaylistNotFound
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

// Ensure implementations satisfy the interface
var _ Store = (*SQLiteStore)(nil)
