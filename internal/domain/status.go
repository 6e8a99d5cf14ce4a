package domain

// JobStatus represents a job's position in the pipeline state machine.
// Transitions move forward through the stage states only; the two
// exceptions are the explicit cancel edge and the single automatic
// packaging retry.
type JobStatus string

const (
	// Transcription stage (AUDIO jobs only; TEXT jobs never enter it).
	StatusTranscriptionPending    JobStatus = "transcription_pending"
	StatusTranscriptionProcessing JobStatus = "transcription_processing"
	StatusTranscriptionCompleted  JobStatus = "transcription_completed"
	StatusTranscriptionFailed     JobStatus = "transcription_failed"

	// Translation stage.
	StatusTranslationPending    JobStatus = "translation_pending"
	StatusTranslationProcessing JobStatus = "translation_processing"
	StatusTranslationCompleted  JobStatus = "translation_completed"
	StatusTranslationFailed     JobStatus = "translation_failed"
	StatusTranslationCancelled  JobStatus = "translation_cancelled"

	// Packaging stage.
	StatusPackagingPending    JobStatus = "packaging_pending"
	StatusPackagingProcessing JobStatus = "packaging_processing"
	StatusPackagingCompleted  JobStatus = "packaging_completed"
	StatusPackagingFailed     JobStatus = "packaging_failed"
)

// InitialStatus returns the state a freshly created job starts in.
// Parameters:
//   - t: job type.
// Returns:
//   - JobStatus: transcription_pending for AUDIO, translation_pending for TEXT.
func InitialStatus(t JobType) JobStatus {
	if t == JobTypeAudio {
		return StatusTranscriptionPending
	}
	return StatusTranslationPending
}

// transitions is the closed forward-edge table of the state machine.
// The cancel edge is handled separately by Cancellable.
var transitions = map[JobStatus][]JobStatus{
	StatusTranscriptionPending:    {StatusTranscriptionProcessing},
	StatusTranscriptionProcessing: {StatusTranscriptionCompleted, StatusTranscriptionFailed},
	StatusTranscriptionCompleted:  {StatusTranslationPending},
	StatusTranslationPending:      {StatusTranslationProcessing},
	StatusTranslationProcessing:   {StatusTranslationCompleted, StatusTranslationFailed},
	StatusTranslationCompleted:    {StatusPackagingPending},
	StatusPackagingPending:        {StatusPackagingProcessing},
	StatusPackagingProcessing:     {StatusPackagingCompleted, StatusPackagingFailed},
}

// CanTransition reports whether moving from s to next is a legal forward
// edge of the state machine. Cancel edges are not covered here.
// Parameters:
//   - next: candidate successor state.
// Returns:
//   - bool: true if the edge exists.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is an end state of the pipeline.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusTranscriptionFailed,
		StatusTranslationFailed,
		StatusTranslationCancelled,
		StatusPackagingCompleted,
		StatusPackagingFailed:
		return true
	}
	return false
}

// Cancellable reports whether an external cancel request is honored in this
// state. Only pending/processing states qualify; a cancel moves the job
// directly to translation_cancelled and packaging is skipped.
func (s JobStatus) Cancellable() bool {
	switch s {
	case StatusTranscriptionPending,
		StatusTranscriptionProcessing,
		StatusTranslationPending,
		StatusTranslationProcessing,
		StatusPackagingPending,
		StatusPackagingProcessing:
		return true
	}
	return false
}

// CancellableStatuses lists every state from which a cancel is honored,
// in a fixed order usable in a guarded conditional update.
func CancellableStatuses() []JobStatus {
	return []JobStatus{
		StatusTranscriptionPending,
		StatusTranscriptionProcessing,
		StatusTranslationPending,
		StatusTranslationProcessing,
		StatusPackagingPending,
		StatusPackagingProcessing,
	}
}
