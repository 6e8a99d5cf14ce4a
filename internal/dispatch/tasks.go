// Package dispatch routes pipeline work onto stage queues. A Redis-backed
// asynq dispatcher serves production; an in-process worker pool serves
// single-binary deployments and tests. Both deliver at-least-once, so every
// handler downstream must tolerate redelivery.
package dispatch

import (
	"context"

	"github.com/voicelingua/voicelingua/internal/domain"
)

// Queue names, one per pipeline stage. Separate queues keep a burst of
// translation sub-jobs from starving transcription or packaging.
const (
	QueueTranscription = "transcription"
	QueueTranslation   = "translation"
	QueuePackaging     = "packaging"
)

// Task type names used by the asynq mux.
const (
	TypeTranscription = "pipeline:transcribe"
	TypeTranslation   = "pipeline:translate"
	TypePackaging     = "pipeline:package"
)

// TranscriptionTask asks a worker to transcribe a job's audio.
type TranscriptionTask struct {
	JobID string `json:"job_id"`
}

// TranslationTask is one fan-out unit: translate one text into one target
// language. Text is carried in the payload so the worker does not re-read
// the job row for it.
type TranslationTask struct {
	JobID          string            `json:"job_id"`
	Text           string            `json:"text"`
	TargetLanguage string            `json:"target_language"`
	SourceType     domain.SourceType `json:"source_type"`
}

// PackagingTask asks a worker to assemble and store the result artifact.
type PackagingTask struct {
	JobID string `json:"job_id"`
}

// Dispatcher enqueues pipeline tasks onto their stage queues.
type Dispatcher interface {
	EnqueueTranscription(ctx context.Context, task TranscriptionTask) error
	EnqueueTranslation(ctx context.Context, task TranslationTask) error
	EnqueuePackaging(ctx context.Context, task PackagingTask) error
}

// Handlers is the worker-side contract. Handle* returns nil on success, a
// transient error to request a retry, or any other error to fail the task
// permanently. The *Abandoned hooks fire exactly once per task, after the
// final attempt has failed; the barrier counter must be advanced there, not
// on intermediate retries.
type Handlers interface {
	HandleTranscription(ctx context.Context, task TranscriptionTask) error
	TranscriptionAbandoned(ctx context.Context, task TranscriptionTask, cause error)

	HandleTranslation(ctx context.Context, task TranslationTask) error
	TranslationAbandoned(ctx context.Context, task TranslationTask, cause error)

	HandlePackaging(ctx context.Context, task PackagingTask) error
	PackagingAbandoned(ctx context.Context, task PackagingTask, cause error)
}
