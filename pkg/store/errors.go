package store

import "errors"

var (
	// ErrJobNotFound is returned when a job doesn't exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotPending is returned when a conditional accept finds the job
	// in any state other than pending
	ErrJobNotPending = errors.New("job is not in pending state")

	// ErrRunnerNotFound is returned when a runner doesn't exist
	ErrRunnerNotFound = errors.New("runner not found")

	// ErrRegistrationTokenNotFound is returned when a registration token doesn't exist
	ErrRegistrationTokenNotFound = errors.New("registration token not found")

	// ErrVideoNotFound is returned when a video doesn't exist
	ErrVideoNotFound = errors.New("video not found")

	// ErrVideoFileNotFound is returned when a video file doesn't exist
	ErrVideoFileNotFound = errors.New("video file not found")

	// ErrJobInfoNotFound is returned when a video has no job info counters yet
	ErrJobInfoNotFound = errors.New("video job info not found")

	// ErrPlaylistNotFound is returned when a streaming playlist doesn't exist
	ErrPlaylistNotFound = errors.New("streaming playlist not found")

	// ErrUnsupportedDatabase is returned for unknown database types
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)
