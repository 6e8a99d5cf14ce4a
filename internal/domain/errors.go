package domain

import "errors"

var (
	// ErrJobNotFound is returned when no job matches the given identifier.
	ErrJobNotFound = errors.New("job not found")

	// ErrTranslationNotFound is returned when no translation result matches
	// the requested (job, language, source) key.
	ErrTranslationNotFound = errors.New("translation result not found")

	// ErrNotCancellable is returned when a cancel request arrives for a job
	// that is already in a terminal state.
	ErrNotCancellable = errors.New("job is not in a cancellable state")

	// ErrArtifactNotReady is returned when the packaged artifact is requested
	// before packaging has completed.
	ErrArtifactNotReady = errors.New("packaged artifact is not ready")

	// ErrJobActive is returned when a purge request arrives for a job that
	// has not reached a terminal state yet.
	ErrJobActive = errors.New("job is still active; cancel it before purging")
)
