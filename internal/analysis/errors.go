package analysis

import "errors"

var (
	// ErrNotFound means the job id does not exist.
	ErrNotFound = errors.New("analysis job not found")
	// ErrNotCompleted means results were requested before the job finished.
	ErrNotCompleted = errors.New("analysis job not completed")
	// ErrTerminal means a state change was requested on a finished job.
	ErrTerminal = errors.New("analysis job already in a terminal state")
	// ErrInvalidConfig wraps all configuration validation failures.
	ErrInvalidConfig = errors.New("invalid analysis config")
	// ErrExclusionsUnavailable means no reference channel could be processed,
	// so there is no vocabulary to search with.
	ErrExclusionsUnavailable = errors.New("no exclusion channel could be processed")
)

// Error codes persisted on failed jobs and surfaced over the API.
const (
	ErrCodeValidation = "validation_error"
	ErrCodeQuota      = "quota_exceeded"
	ErrCodeExclusions = "exclusion_build_failed"
	ErrCodeProvider   = "provider_error"
	ErrCodeInternal   = "internal_error"
)
