package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/psantana5/runner-orchestrator/pkg/models"
)

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config Config) (*PostgresStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables if they don't exist
func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runner_registration_tokens (
		id TEXT PRIMARY KEY,
		registration_token TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runners (
		id TEXT PRIMARY KEY,
		runner_token TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		last_contact TIMESTAMP NOT NULL,
		ip TEXT NOT NULL,
		registration_token_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runner_jobs (
		id TEXT PRIMARY KEY,
		uuid TEXT UNIQUE NOT NULL,
		domain TEXT,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		private_payload JSONB NOT NULL,
		state INTEGER NOT NULL,
		failures INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		processing_job_token TEXT,
		progress REAL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		depends_on_runner_job TEXT,
		runner_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
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
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_files (
		id TEXT PRIMARY KEY,
		resolution INTEGER NOT NULL,
		size BIGINT NOT NULL,
		extname TEXT NOT NULL,
		fps INTEGER NOT NULL,
		metadata JSONB,
		filename TEXT NOT NULL,
		video_id TEXT NOT NULL,
		streaming_playlist_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_job_infos (
		id TEXT PRIMARY KEY,
		video_id TEXT UNIQUE NOT NULL,
		pending_move INTEGER NOT NULL DEFAULT 0,
		pending_transcode INTEGER NOT NULL DEFAULT 0,
		pending_transcript INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_streaming_playlists (
		id TEXT PRIMARY KEY,
		playlist_filename TEXT,
		video_id TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
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
func (s *PostgresStore) CreateRegistrationToken(token *models.RunnerRegistrationToken) error {
	_, err := s.db.Exec(`
		INSERT INTO runner_registration_tokens (id, registration_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, token.ID.String(), token.RegistrationToken, token.CreatedAt, token.UpdatedAt)

	return err
}

// GetRegistrationToken retrieves a registration token by its token string
func (s *PostgresStore) GetRegistrationToken(registrationToken string) (*models.RunnerRegistrationToken, error) {
	var token models.RunnerRegistrationToken
	var id string

	err := s.db.QueryRow(`
		SELECT id, registration_token, created_at, updated_at
		FROM runner_registration_tokens WHERE registration_token = $1
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
func (s *PostgresStore) ListRegistrationTokens() ([]*models.RunnerRegistrationToken, error) {
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
func (s *PostgresStore) CreateRunner(runner *models.Runner) error {
	_, err := s.db.Exec(`
		INSERT INTO runners
		(id, runner_token, name, description, last_contact, ip, registration_token_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, runner.ID.String(), runner.RunnerToken, runner.Name, runner.Description,
		runner.LastContact, runner.IP, runner.RegistrationTokenID.String(),
		runner.CreatedAt, runner.UpdatedAt)

	return err
}

// GetRunnerByToken retrieves a runner by its runner token
func (s *PostgresStore) GetRunnerByToken(runnerToken string) (*models.Runner, error) {
	runner, err := scanRunner(s.db.QueryRow(`
		SELECT id, runner_token, name, description, last_contact, ip, registration_token_id,
		       created_at, updated_at
		FROM runners WHERE runner_token = $1
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
func (s *PostgresStore) ListRunners() ([]*models.Runner, error) {
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

// UpdateRunner persists runner mutations
func (s *PostgresStore) UpdateRunner(runner *models.Runner) error {
	runner.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE runners
		SET name = $1, description = $2, last_contact = $3, ip = $4, updated_at = $5
		WHERE id = $6
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
func (s *PostgresStore) DeleteRunner(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM runners WHERE id = $1`, id.String())
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

// CreateJob adds a new runner job
func (s *PostgresStore) CreateJob(job *models.RunnerJob) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, job.ID.String(), job.UUID.String(), job.Domain, string(job.Type),
		string(job.Payload), string(job.PrivatePayload), int(job.State), job.Failures,
		job.Error, job.Priority, job.ProcessingJobToken, job.Progress,
		job.StartedAt, job.FinishedAt, parent, runnerID, job.CreatedAt, job.UpdatedAt)

	return err
}

// GetJob retrieves a job by its UUID
func (s *PostgresStore) GetJob(jobUUID uuid.UUID) (*models.RunnerJob, error) {
	job, err := scanJob(s.db.QueryRow(`
		SELECT `+jobColumns+` FROM runner_jobs WHERE uuid = $1
	`, jobUUID.String()))

	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (s *PostgresStore) queryJobs(query string, args ...interface{}) ([]*models.RunnerJob, error) {
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
func (s *PostgresStore) ListJobs() ([]*models.RunnerJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM runner_jobs ORDER BY created_at DESC`)
}

// ListAvailableJobs returns pending jobs a runner can claim
func (s *PostgresStore) ListAvailableJobs(types []models.RunnerJobType, limit int) ([]*models.RunnerJob, error) {
	query := `SELECT ` + jobColumns + ` FROM runner_jobs WHERE state = $1`
	args := []interface{}{int(models.JobStatePending)}

	if len(types) > 0 {
		query += ` AND type = ANY($2)`
		typeNames := make([]string, len(types))
		for i, t := range types {
			typeNames[i] = string(t)
		}
		args = append(args, pq.Array(typeNames))
	}

	query += ` ORDER BY priority ASC, created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	return s.queryJobs(query, args...)
}

// AcceptJob atomically transitions a job from pending to processing
func (s *PostgresStore) AcceptJob(jobUUID uuid.UUID) error {
	result, err := s.db.Exec(`
		UPDATE runner_jobs SET state = $1, updated_at = $2
		WHERE uuid = $3 AND state = $4
	`, int(models.JobStateProcessing), time.Now(), jobUUID.String(), int(models.JobStatePending))

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var state int
		err := s.db.QueryRow(`SELECT state FROM runner_jobs WHERE uuid = $1`, jobUUID.String()).Scan(&state)
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
func (s *PostgresStore) UpdateJob(job *models.RunnerJob) error {
	job.UpdatedAt = time.Now()

	var runnerID interface{}
	if job.RunnerID != nil {
		runnerID = job.RunnerID.String()
	}

	result, err := s.db.Exec(`
		UPDATE runner_jobs
		SET state = $1, failures = $2, error = $3, priority = $4, processing_job_token = $5,
		    progress = $6, started_at = $7, finished_at = $8, runner_id = $9,
		    payload = $10, private_payload = $11, updated_at = $12
		WHERE uuid = $13
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
func (s *PostgresStore) GetChildren(parentUUID uuid.UUID) ([]*models.RunnerJob, error) {
	return s.queryJobs(`
		SELECT `+jobColumns+` FROM runner_jobs
		WHERE depends_on_runner_job = $1 ORDER BY created_at ASC
	`, parentUUID.String())
}

// ReleaseDependentJobs moves children still waiting for the parent to pending
func (s *PostgresStore) ReleaseDependentJobs(parentUUID uuid.UUID) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE runner_jobs SET state = $1, updated_at = $2
		WHERE depends_on_runner_job = $3 AND state = $4
	`, int(models.JobStatePending), time.Now(), parentUUID.String(),
		int(models.JobStateWaitingForParentJob))

	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// CreateVideo adds a new video
func (s *PostgresStore) CreateVideo(video *models.Video) error {
	_, err := s.db.Exec(`
		INSERT INTO videos
		(id, uuid, state, duration, directory, thumbnail_filename, transcript_filename,
		 language, base_filename, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, video.ID.String(), video.UUID.String(), int(video.State), video.Duration,
		video.Directory, video.ThumbnailFilename, video.TranscriptFilename,
		video.Language, video.BaseFilename, video.CreatedAt, video.UpdatedAt)

	return err
}

// GetVideo retrieves a video by its UUID
func (s *PostgresStore) GetVideo(videoUUID uuid.UUID) (*models.Video, error) {
	video, err := scanVideo(s.db.QueryRow(`
		SELECT `+videoColumns+` FROM videos WHERE uuid = $1
	`, videoUUID.String()))

	if err == sql.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}

	return video, nil
}

// GetOrCreateVideoByDirectory finds a video by directory or creates it
func (s *PostgresStore) GetOrCreateVideoByDirectory(directory string, defaultState models.VideoState) (*models.Video, bool, error) {
	video, err := scanVideo(s.db.QueryRow(`
		SELECT `+videoColumns+` FROM videos WHERE directory = $1
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
func (s *PostgresStore) UpdateVideo(video *models.Video) error {
	video.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE videos
		SET state = $1, duration = $2, directory = $3, thumbnail_filename = $4,
		    transcript_filename = $5, language = $6, base_filename = $7, updated_at = $8
		WHERE uuid = $9
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
func (s *PostgresStore) CreateVideoFile(file *models.VideoFile) error {
	var playlistID interface{}
	if file.StreamingPlaylistID != nil {
		playlistID = file.StreamingPlaylistID.String()
	}

	metadata := string(file.Metadata)
	if metadata == "" {
		metadata = "null"
	}

	_, err := s.db.Exec(`
		INSERT INTO video_files
		(id, resolution, size, extname, fps, metadata, filename, video_id,
		 streaming_playlist_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, file.ID.String(), file.Resolution, file.Size, file.Extname, file.FPS,
		metadata, file.Filename, file.VideoID.String(), playlistID,
		file.CreatedAt, file.UpdatedAt)

	return err
}

// UpdateVideoFile persists video file mutations
func (s *PostgresStore) UpdateVideoFile(file *models.VideoFile) error {
	file.UpdatedAt = time.Now()

	var playlistID interface{}
	if file.StreamingPlaylistID != nil {
		playlistID = file.StreamingPlaylistID.String()
	}

	metadata := string(file.Metadata)
	if metadata == "" {
		metadata = "null"
	}

	result, err := s.db.Exec(`
		UPDATE video_files
		SET resolution = $1, size = $2, extname = $3, fps = $4, metadata = $5, filename = $6,
		    streaming_playlist_id = $7, updated_at = $8
		WHERE id = $9
	`, file.Resolution, file.Size, file.Extname, file.FPS, metadata,
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
func (s *PostgresStore) DeleteVideoFile(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM video_files WHERE id = $1`, id.String())
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

func (s *PostgresStore) queryVideoFiles(query string, args ...interface{}) ([]*models.VideoFile, error) {
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
func (s *PostgresStore) ListVideoFiles(videoID uuid.UUID) ([]*models.VideoFile, error) {
	return s.queryVideoFiles(`
		SELECT `+videoFileColumns+` FROM video_files
		WHERE video_id = $1 ORDER BY resolution ASC
	`, videoID.String())
}

// ListPlaylistFiles returns the files attached to a streaming playlist
func (s *PostgresStore) ListPlaylistFiles(playlistID uuid.UUID) ([]*models.VideoFile, error) {
	return s.queryVideoFiles(`
		SELECT `+videoFileColumns+` FROM video_files
		WHERE streaming_playlist_id = $1 ORDER BY resolution ASC
	`, playlistID.String())
}

// IncreaseJobInfo atomically increments a pending counter using an upsert
// and returns the new value.
func (s *PostgresStore) IncreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn, amount int) (int, error) {
	col, err := jobInfoColumn(column)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	var value int
	err = s.db.QueryRow(`
		INSERT INTO video_job_infos (id, video_id, `+col+`, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (video_id) DO UPDATE
		SET `+col+` = video_job_infos.`+col+` + $3, updated_at = $5
		RETURNING `+col+`
	`, uuid.New().String(), videoID.String(), amount, now, now).Scan(&value)

	if err != nil {
		return 0, err
	}

	return value, nil
}

// DecreaseJobInfo atomically decrements a pending counter and returns the new value
func (s *PostgresStore) DecreaseJobInfo(videoID uuid.UUID, column models.VideoJobInfoColumn) (int, error) {
	col, err := jobInfoColumn(column)
	if err != nil {
		return 0, err
	}

	var value int
	err = s.db.QueryRow(`
		UPDATE video_job_infos SET `+col+` = `+col+` - 1, updated_at = $1
		WHERE video_id = $2
		RETURNING `+col+`
	`, time.Now(), videoID.String()).Scan(&value)

	if err == sql.ErrNoRows {
		return 0, ErrJobInfoNotFound
	}
	if err != nil {
		return 0, err
	}

	return value, nil
}

// GetJobInfo retrieves the pending counters of a video
func (s *PostgresStore) GetJobInfo(videoID uuid.UUID) (*models.VideoJobInfo, error) {
	var info models.VideoJobInfo
	var id, vid string

	err := s.db.QueryRow(`
		SELECT id, video_id, pending_move, pending_transcode, pending_transcript,
		       created_at, updated_at
		FROM video_job_infos WHERE video_id = $1
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
func (s *PostgresStore) GetOrCreatePlaylist(videoID uuid.UUID) (*models.VideoStreamingPlaylist, error) {
	var playlist models.VideoStreamingPlaylist
	var id, vid string
	var filename sql.NullString

	err := s.db.QueryRow(`
		SELECT id, playlist_filename, video_id, created_at, updated_at
		FROM video_streaming_playlists WHERE video_id = $1
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
		VALUES ($1, $2, $3, $4, $5)
	`, playlist.ID.String(), playlist.PlaylistFilename, videoID.String(),
		playlist.CreatedAt, playlist.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &playlist, nil
}

// UpdatePlaylist persists playlist mutations
func (s *PostgresStore) UpdatePlaylist(playlist *models.VideoStreamingPlaylist) error {
	playlist.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE video_streaming_playlists SET playlist_filename = $1, updated_at = $2 WHERE id = $3
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *PostgresStore) HealthCheck() error {
	return s.db.Ping()
}

// Ensure implementations satisfy the interface
var _ Store = (*PostgresStore)(nil)
