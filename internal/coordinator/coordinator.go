// Package coordinator drives jobs through the transcription, translation,
// and packaging stages. It owns the fan-out of translation sub-jobs, the
// exactly-once fan-in barrier, and every guarded status transition.
package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicelingua/voicelingua/internal/cache"
	"github.com/voicelingua/voicelingua/internal/codec"
	"github.com/voicelingua/voicelingua/internal/dispatch"
	"github.com/voicelingua/voicelingua/internal/domain"
	"github.com/voicelingua/voicelingua/internal/identifier"
	"github.com/voicelingua/voicelingua/internal/logger"
	"github.com/voicelingua/voicelingua/internal/repository"
	"github.com/voicelingua/voicelingua/internal/service"
	"github.com/voicelingua/voicelingua/internal/storage"
)

// Coordinator wires repositories, the status cache, object storage, the
// model clients, and the task dispatcher into the pipeline. It implements
// dispatch.Handlers.
type Coordinator struct {
	jobs         *repository.JobRepository
	translations *repository.TranslationResultRepository
	events       *repository.JobEventRepository
	cache        cache.Cache
	cacheTTL     time.Duration
	store        storage.ObjectStorage
	transcriber  service.Transcriber
	translator   service.Translator
	dispatcher   dispatch.Dispatcher
}

// New creates a Coordinator. The dispatcher is attached afterwards via
// SetDispatcher because the in-process dispatcher needs the coordinator as
// its handler.
// Parameters:
//   - jobs, translations, events: persistence layer.
//   - statusCache: job-status read cache; use cache.NewNoop when disabled.
//   - cacheTTL: TTL for cached statuses.
//   - store: artifact storage.
//   - transcriber: speech-to-text client.
//   - translator: translation client.
// Returns:
//   - *Coordinator: coordinator without a dispatcher attached yet.
func New(
	jobs *repository.JobRepository,
	translations *repository.TranslationResultRepository,
	events *repository.JobEventRepository,
	statusCache cache.Cache,
	cacheTTL time.Duration,
	store storage.ObjectStorage,
	transcriber service.Transcriber,
	translator service.Translator,
) *Coordinator {
	return &Coordinator{
		jobs:         jobs,
		translations: translations,
		events:       events,
		cache:        statusCache,
		cacheTTL:     cacheTTL,
		store:        store,
		transcriber:  transcriber,
		translator:   translator,
	}
}

// SetDispatcher attaches the task dispatcher. Must be called before any
// job is submitted.
func (c *Coordinator) SetDispatcher(d dispatch.Dispatcher) {
	c.dispatcher = d
}

// SubmitAudioRequest carries an audio job submission.
type SubmitAudioRequest struct {
	AudioPath     string   // local path of the stored upload
	Filename      string   // original upload filename, used for the external id
	Languages     []string // target language codes, order preserved
	ReferenceText string   // optional known-good text for accuracy scoring
}

// SubmitTextRequest carries a text job submission.
type SubmitTextRequest struct {
	Text       string
	Languages  []string
	ExternalID string // optional explicit external id
}

// SubmitAudioJob creates an audio job and enqueues its transcription.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: submission payload.
// Returns:
//   - *domain.Job: created job in transcription_pending.
//   - error: non-nil on validation or persistence failure.
func (c *Coordinator) SubmitAudioJob(ctx context.Context, req SubmitAudioRequest) (*domain.Job, error) {
	if len(req.Languages) == 0 {
		return nil, fmt.Errorf("at least one target language is required")
	}
	if req.AudioPath == "" {
		return nil, fmt.Errorf("audio path is required")
	}

	job := &domain.Job{
		ID:            uuid.New().String(),
		JobType:       domain.JobTypeAudio,
		Status:        domain.InitialStatus(domain.JobTypeAudio),
		Languages:     req.Languages,
		AudioRef:      req.AudioPath,
		ReferenceText: req.ReferenceText,
		ExternalID:    identifier.FromFilename(req.Filename),
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	ctx = logger.SetJobID(ctx, job.ID)
	c.recordEvent(ctx, job.ID, domain.EventJobCreated, "Audio job created", domain.JSONMap{
		"languages":   []string(job.Languages),
		"external_id": job.ExternalID,
	})
	c.cacheStatus(ctx, job.ID, job.Status)

	if err := c.dispatcher.EnqueueTranscription(ctx, dispatch.TranscriptionTask{JobID: job.ID}); err != nil {
		return nil, fmt.Errorf("failed to enqueue transcription: %w", err)
	}
	logger.CtxInfo(ctx, "Audio job submitted with %d target languages", len(req.Languages))
	return job, nil
}

// SubmitTextJob creates a text job and fans out its translations directly;
// text jobs never enter the transcription stage.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: submission payload.
// Returns:
//   - *domain.Job: created job in translation_pending.
//   - error: non-nil on validation or persistence failure.
func (c *Coordinator) SubmitTextJob(ctx context.Context, req SubmitTextRequest) (*domain.Job, error) {
	if len(req.Languages) == 0 {
		return nil, fmt.Errorf("at least one target language is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text content is required")
	}

	job := &domain.Job{
		ID:          uuid.New().String(),
		JobType:     domain.JobTypeText,
		Status:      domain.InitialStatus(domain.JobTypeText),
		Languages:   req.Languages,
		TextContent: req.Text,
		ExternalID:  req.ExternalID,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	ctx = logger.SetJobID(ctx, job.ID)
	c.recordEvent(ctx, job.ID, domain.EventJobCreated, "Text job created", domain.JSONMap{
		"languages":   []string(job.Languages),
		"external_id": job.ExternalID,
	})
	c.cacheStatus(ctx, job.ID, job.Status)

	if err := c.fanOut(ctx, job); err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "Text job submitted with %d target languages", len(req.Languages))
	return job, nil
}

// GetJob retrieves a job by ID and refreshes its cached status.
func (c *Coordinator) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := c.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cacheStatus(ctx, job.ID, job.Status)
	return job, nil
}

// GetJobStatus returns just the status, served from the cache when warm.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - domain.JobStatus: current (possibly cached) status.
//   - error: domain.ErrJobNotFound if the job does not exist.
func (c *Coordinator) GetJobStatus(ctx context.Context, id string) (domain.JobStatus, error) {
	if status, hit, err := c.cache.GetJobStatus(ctx, id); err == nil && hit {
		return domain.JobStatus(status), nil
	}
	job, err := c.jobs.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	c.cacheStatus(ctx, job.ID, job.Status)
	return job.Status, nil
}

// GetEvents returns a job's audit trail oldest first.
func (c *Coordinator) GetEvents(ctx context.Context, id string) ([]domain.JobEvent, error) {
	if _, err := c.jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return c.events.ListByJob(ctx, id)
}

// Cancel requests job cancellation. Valid only while the job is pending or
// processing; results arriving after a cancel are discarded by the stage
// handlers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: domain.ErrJobNotFound or domain.ErrNotCancellable.
func (c *Coordinator) Cancel(ctx context.Context, id string) error {
	ok, err := c.jobs.CancelFrom(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := c.jobs.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrNotCancellable
	}

	ctx = logger.SetJobID(ctx, id)
	c.recordEvent(ctx, id, domain.EventJobCancelled, "Job cancelled by request", nil)
	c.invalidateStatus(ctx, id)
	logger.CtxInfo(ctx, "Job cancelled")
	return nil
}

// PurgeJob permanently removes a terminal job together with its translation
// results, its audit trail, and its stored artifact. Active jobs must be
// cancelled first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: domain.ErrJobNotFound or domain.ErrJobActive.
func (c *Coordinator) PurgeJob(ctx context.Context, id string) error {
	job, err := c.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return domain.ErrJobActive
	}

	if job.ResultRef != "" {
		exists, err := c.store.Exists(ctx, job.ResultRef)
		if err != nil {
			return fmt.Errorf("failed to check artifact: %w", err)
		}
		if exists {
			if err := c.store.Delete(ctx, job.ResultRef); err != nil {
				return fmt.Errorf("failed to delete artifact: %w", err)
			}
		}
	}

	if err := c.jobs.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidateStatus(ctx, id)
	logger.CtxInfo(logger.SetJobID(ctx, id), "Job purged")
	return nil
}

// GetTranslation looks up one translation result. The id may be a job ID or
// an external identifier; external lookup resolves to the newest matching job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - language: target language code.
//   - id: job ID or external identifier.
//   - source: source type (AUDIO or TEXT).
// Returns:
//   - *domain.TranslationResult: matching result.
//   - error: domain.ErrJobNotFound or domain.ErrTranslationNotFound.
func (c *Coordinator) GetTranslation(ctx context.Context, language, id string, source domain.SourceType) (*domain.TranslationResult, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("invalid source type %q", source)
	}
	job, err := c.jobs.GetByID(ctx, id)
	if err == domain.ErrJobNotFound {
		job, err = c.jobs.GetByExternalID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return c.translations.GetByKey(ctx, job.ID, language, source)
}

// GetArtifact downloads and decodes a completed job's result artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *codec.Record: decoded canonical record.
//   - []byte: raw artifact bytes as stored.
//   - error: domain.ErrArtifactNotReady until packaging has completed.
func (c *Coordinator) GetArtifact(ctx context.Context, id string) (*codec.Record, []byte, error) {
	job, err := c.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != domain.StatusPackagingCompleted || job.ResultRef == "" {
		return nil, nil, domain.ErrArtifactNotReady
	}

	body, err := c.store.Download(ctx, job.ResultRef)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	record, err := codec.Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return record, raw, nil
}

// artifactKey builds the storage key for a job's result artifact.
func artifactKey(jobID string) string {
	return "results/" + jobID + ".bin"
}

// recordEvent appends to the audit trail; failures are logged, never fatal.
func (c *Coordinator) recordEvent(ctx context.Context, jobID, eventType, message string, details domain.JSONMap) {
	if err := c.events.Append(ctx, jobID, eventType, message, details); err != nil {
		logger.CtxWarn(ctx, "Failed to record %s event: %v", eventType, err)
	}
}

// cacheStatus refreshes the cached status; failures are logged, never fatal.
func (c *Coordinator) cacheStatus(ctx context.Context, jobID string, status domain.JobStatus) {
	if err := c.cache.SetJobStatus(ctx, jobID, string(status), c.cacheTTL); err != nil {
		logger.CtxDebug(ctx, "Failed to cache job status: %v", err)
	}
}

// invalidateStatus drops the cached status after a transition.
func (c *Coordinator) invalidateStatus(ctx context.Context, jobID string) {
	if err := c.cache.InvalidateJob(ctx, jobID); err != nil {
		logger.CtxDebug(ctx, "Failed to invalidate cached job status: %v", err)
	}
}

// encodeResults assembles and encodes the canonical record for a finished job.
func encodeResults(job *domain.Job, results []domain.TranslationResult, completedAt time.Time) ([]byte, error) {
	record := &codec.Record{
		JobID:        job.ID,
		JobType:      job.JobType,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  &completedAt,
		Accuracy:     job.Accuracy,
		ExternalID:   job.ExternalID,
		Translations: make(map[string]map[domain.SourceType]codec.Translation),
	}
	for _, r := range results {
		bySource := record.Translations[r.TargetLanguage]
		if bySource == nil {
			bySource = make(map[domain.SourceType]codec.Translation)
			record.Translations[r.TargetLanguage] = bySource
		}
		bySource[r.SourceType] = codec.Translation{
			TranslatedText: r.TranslatedText,
			Confidence:     r.Confidence,
		}
	}
	return codec.Encode(record)
}

// uploadArtifact stores the encoded artifact and returns its storage key.
func (c *Coordinator) uploadArtifact(ctx context.Context, jobID string, blob []byte) (string, error) {
	key := artifactKey(jobID)
	err := c.store.Upload(ctx, key, bytes.NewReader(blob), int64(len(blob)), "application/octet-stream")
	if err != nil {
		return "", service.Transient(fmt.Errorf("failed to upload artifact: %w", err))
	}
	return key, nil
}
