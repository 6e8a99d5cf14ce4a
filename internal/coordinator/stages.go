package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/voicelingua/voicelingua/internal/dispatch"
	"github.com/voicelingua/voicelingua/internal/domain"
	"github.com/voicelingua/voicelingua/internal/identifier"
	"github.com/voicelingua/voicelingua/internal/langdetect"
	"github.com/voicelingua/voicelingua/internal/logger"
	"github.com/voicelingua/voicelingua/internal/service"
	"github.com/voicelingua/voicelingua/internal/verify"
)

// passthroughEngine marks results where the source already matched the
// target language and no model call was made.
const passthroughEngine = "passthrough"

// claimStage flips pending -> processing for a stage. Redelivery of a task
// whose previous attempt crashed mid-processing finds the row already in
// processing and is allowed to continue; any other state means the task is
// stale (handled elsewhere or cancelled) and must be dropped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
//   - pending, processing: the stage's pending and processing states.
// Returns:
//   - bool: true if this delivery may proceed.
//   - error: non-nil on a database failure.
func (c *Coordinator) claimStage(ctx context.Context, jobID string, pending, processing domain.JobStatus) (bool, error) {
	won, err := c.jobs.UpdateStatusFrom(ctx, jobID, pending, processing, nil)
	if err != nil {
		return false, err
	}
	if won {
		c.invalidateStatus(ctx, jobID)
		return true, nil
	}
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == processing, nil
}

// HandleTranscription runs the transcription stage for one audio job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - task: transcription task payload.
// Returns:
//   - error: transient to request a retry; any other error is permanent.
func (c *Coordinator) HandleTranscription(ctx context.Context, task dispatch.TranscriptionTask) error {
	job, err := c.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusTranslationCancelled {
		logger.CtxInfo(ctx, "Skipping transcription of cancelled job")
		return nil
	}

	proceed, err := c.claimStage(ctx, job.ID,
		domain.StatusTranscriptionPending, domain.StatusTranscriptionProcessing)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}
	c.recordEvent(ctx, job.ID, domain.EventTranscriptionStarted, "Transcription started", nil)

	start := time.Now()
	transcript, err := c.transcriber.Transcribe(ctx, job.AudioRef)
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}

	var accuracy *float64
	if job.HasReferenceText() {
		score := verify.Score(transcript, job.ReferenceText)
		accuracy = &score
	}
	if err := c.jobs.SetTranscript(ctx, job.ID, transcript, accuracy); err != nil {
		return err
	}

	now := time.Now().UTC()
	won, err := c.jobs.UpdateStatusFrom(ctx, job.ID,
		domain.StatusTranscriptionProcessing, domain.StatusTranscriptionCompleted,
		map[string]interface{}{"transcription_completed_at": now})
	if err != nil {
		return err
	}
	if !won {
		// Cancelled mid-flight; the transcript stays but nothing fans out.
		logger.CtxInfo(ctx, "Discarding transcription of job no longer processing")
		return nil
	}
	c.invalidateStatus(ctx, job.ID)

	details := domain.JSONMap{"transcript_chars": len(transcript)}
	if accuracy != nil {
		details["accuracy"] = *accuracy
	}
	c.recordEvent(ctx, job.ID, domain.EventTranscriptionCompleted, "Transcription completed", details)
	logger.With(logger.Fields{logger.FieldDurationMs: time.Since(start).Milliseconds()}).
		Info(ctx, "Transcription completed")

	job, err = c.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	return c.fanOut(ctx, job)
}

// TranscriptionAbandoned marks the job failed after the final transcription
// attempt.
func (c *Coordinator) TranscriptionAbandoned(ctx context.Context, task dispatch.TranscriptionTask, cause error) {
	c.failStage(ctx, task.JobID, domain.StatusTranscriptionPending,
		domain.StatusTranscriptionProcessing, domain.StatusTranscriptionFailed,
		domain.EventTranscriptionFailed, cause)
}

// fanOut fixes the barrier width, moves the job into the translation stage,
// and dispatches one sub-job per (language, source) pair. The width is
// written before the first dispatch so no sub-job can observe it unset.
func (c *Coordinator) fanOut(ctx context.Context, job *domain.Job) error {
	type pair struct {
		text   string
		source domain.SourceType
	}
	var pairs []pair
	switch job.JobType {
	case domain.JobTypeAudio:
		pairs = append(pairs, pair{job.TranscriptText, domain.SourceAudio})
		if job.HasReferenceText() {
			pairs = append(pairs, pair{job.ReferenceText, domain.SourceText})
		}
	case domain.JobTypeText:
		pairs = append(pairs, pair{job.TextContent, domain.SourceText})
	}

	expected := len(pairs) * len(job.Languages)
	if err := c.jobs.SetExpectedSubjobs(ctx, job.ID, expected); err != nil {
		return err
	}

	if job.Status == domain.StatusTranscriptionCompleted {
		won, err := c.jobs.UpdateStatusFrom(ctx, job.ID,
			domain.StatusTranscriptionCompleted, domain.StatusTranslationPending, nil)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		c.invalidateStatus(ctx, job.ID)
	}

	for _, lang := range job.Languages {
		for _, p := range pairs {
			task := dispatch.TranslationTask{
				JobID:          job.ID,
				Text:           p.text,
				TargetLanguage: lang,
				SourceType:     p.source,
			}
			if err := c.dispatcher.EnqueueTranslation(ctx, task); err != nil {
				// An undispatchable sub-job counts as permanently failed
				// right away. The width is already fixed, so compensating
				// here keeps the barrier math exact instead of stranding
				// the job with fewer sub-jobs in flight than expected.
				logger.CtxError(ctx, "Failed to dispatch translation %s/%s: %v", lang, p.source, err)
				c.recordEvent(ctx, job.ID, domain.EventSubjobFailed, "Translation sub-job could not be dispatched",
					domain.JSONMap{"language": lang, "source_type": string(p.source), "error": err.Error()})
				if ferr := c.onSubJobFinished(ctx, job.ID); ferr != nil {
					return ferr
				}
				continue
			}
			c.recordEvent(ctx, job.ID, domain.EventTranslationDispatched, "Translation sub-job dispatched",
				domain.JSONMap{"language": lang, "source_type": string(p.source)})
		}
	}
	logger.With(logger.Fields{logger.FieldCount: expected}).
		Info(ctx, "Fanned out translation sub-jobs")
	return nil
}

// HandleTranslation runs one translation sub-job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - task: translation task payload.
// Returns:
//   - error: transient to request a retry; any other error is permanent.
func (c *Coordinator) HandleTranslation(ctx context.Context, task dispatch.TranslationTask) error {
	job, err := c.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case domain.StatusTranslationCancelled:
		c.recordEvent(ctx, job.ID, domain.EventResultDiscarded, "Sub-job skipped after cancel",
			domain.JSONMap{"language": task.TargetLanguage, "source_type": string(task.SourceType)})
		return nil
	case domain.StatusTranslationCompleted, domain.StatusPackagingPending:
		// Redelivered after the barrier opened. The only work this task can
		// still owe is the packaging handoff, which may not have been
		// enqueued if the dispatch substrate was down when the barrier
		// winner tried; re-drive it instead of re-translating.
		return c.schedulePackaging(ctx, job.ID)
	case domain.StatusTranslationPending, domain.StatusTranslationProcessing:
		// Normal path.
	default:
		// Packaging already running or the job is terminal; stale delivery.
		return nil
	}

	// First sub-job to run moves the job to processing; losers carry on.
	if job.Status == domain.StatusTranslationPending {
		won, err := c.jobs.UpdateStatusFrom(ctx, job.ID,
			domain.StatusTranslationPending, domain.StatusTranslationProcessing, nil)
		if err != nil {
			return err
		}
		if won {
			c.invalidateStatus(ctx, job.ID)
		}
	}

	translated, confidence, engine, err := c.translateOne(ctx, task.Text, task.TargetLanguage)
	if err != nil {
		return fmt.Errorf("translation %s/%s: %w", task.TargetLanguage, task.SourceType, err)
	}

	// A cancel racing the model call wins: the finished result is discarded
	// and does not advance the barrier.
	job, err = c.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusTranslationCancelled {
		c.recordEvent(ctx, job.ID, domain.EventResultDiscarded, "Late result discarded after cancel",
			domain.JSONMap{"language": task.TargetLanguage, "source_type": string(task.SourceType)})
		return nil
	}

	textID := job.ExternalID
	if textID == "" {
		textID = identifier.Generate(job.ID, task.TargetLanguage, string(task.SourceType))
	}
	result := &domain.TranslationResult{
		JobID:          task.JobID,
		TargetLanguage: task.TargetLanguage,
		SourceType:     task.SourceType,
		TextID:         textID,
		SourceText:     task.Text,
		TranslatedText: translated,
		Confidence:     confidence,
		Engine:         engine,
	}
	if err := c.translations.Upsert(ctx, result); err != nil {
		return err
	}
	c.recordEvent(ctx, task.JobID, domain.EventTranslationSaved, "Translation saved",
		domain.JSONMap{"language": task.TargetLanguage, "source_type": string(task.SourceType)})

	return c.onSubJobFinished(ctx, task.JobID)
}

// translateOne translates text, passing it through unchanged when it is
// already in the target language.
func (c *Coordinator) translateOne(ctx context.Context, text, targetLanguage string) (string, *float64, string, error) {
	if langdetect.Detect(text) == targetLanguage {
		conf := 1.0
		logger.CtxDebug(ctx, "Source already in target language, passing through")
		return text, &conf, passthroughEngine, nil
	}
	out, err := c.translator.Translate(ctx, text, targetLanguage)
	if err != nil {
		return "", nil, "", err
	}
	return out.TranslatedText, out.Confidence, out.Engine, nil
}

// TranslationAbandoned advances the barrier for a permanently failed
// sub-job. Fires once per task, never per retry.
func (c *Coordinator) TranslationAbandoned(ctx context.Context, task dispatch.TranslationTask, cause error) {
	job, err := c.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		logger.CtxError(ctx, "Failed to load job for abandoned sub-job: %v", err)
		return
	}
	// Only a sub-job that failed while the job was still translating counts
	// against the barrier. A task abandoned after the barrier opened failed
	// on follow-up work (the packaging handoff), not on its translation;
	// counting it again would advance the counter past the fixed width.
	if job.Status != domain.StatusTranslationPending && job.Status != domain.StatusTranslationProcessing {
		logger.CtxWarn(ctx, "Abandoned sub-job ignored in status %s: %v", job.Status, cause)
		return
	}

	c.recordEvent(ctx, task.JobID, domain.EventSubjobFailed, "Translation sub-job failed permanently",
		domain.JSONMap{
			"language":    task.TargetLanguage,
			"source_type": string(task.SourceType),
			"error":       cause.Error(),
		})
	if err := c.onSubJobFinished(ctx, task.JobID); err != nil {
		logger.CtxError(ctx, "Barrier advance failed for abandoned sub-job: %v", err)
	}
}

// onSubJobFinished advances the fan-in barrier: increment the finished
// counter atomically, and when the count reaches the fixed width, race for
// the stage transition. Several callers may observe the final count; the
// guarded transition lets exactly one of them open the barrier.
func (c *Coordinator) onSubJobFinished(ctx context.Context, jobID string) error {
	job, err := c.jobs.IncrementFinished(ctx, jobID)
	if err != nil {
		return err
	}
	if job.ExpectedSubjobs == 0 || job.FinishedSubjobs < job.ExpectedSubjobs {
		return nil
	}
	switch job.Status {
	case domain.StatusTranslationPending, domain.StatusTranslationProcessing:
		// Normal path: race for the barrier below.
	case domain.StatusTranslationCompleted, domain.StatusPackagingPending:
		// An earlier winner opened the barrier but the packaging handoff
		// may not have finished; re-drive it.
		return c.schedulePackaging(ctx, jobID)
	default:
		return nil
	}

	successes, err := c.translations.CountByJob(ctx, jobID)
	if err != nil {
		return err
	}

	if successes == 0 {
		won, err := c.jobs.UpdateStatusFrom(ctx, jobID,
			domain.StatusTranslationProcessing, domain.StatusTranslationFailed,
			map[string]interface{}{"error_message": "all translation sub-jobs failed"})
		if err != nil {
			return err
		}
		if !won {
			// Every sub-job can fail before any of them claimed processing.
			won, err = c.jobs.UpdateStatusFrom(ctx, jobID,
				domain.StatusTranslationPending, domain.StatusTranslationFailed,
				map[string]interface{}{"error_message": "all translation sub-jobs failed"})
			if err != nil {
				return err
			}
		}
		if won {
			c.invalidateStatus(ctx, jobID)
			c.recordEvent(ctx, jobID, domain.EventSubjobFailed, "Job failed: no sub-job succeeded", nil)
			logger.CtxWarn(ctx, "Job failed, all translation sub-jobs failed")
		}
		return nil
	}

	now := time.Now().UTC()
	won, err := c.jobs.UpdateStatusFrom(ctx, jobID,
		domain.StatusTranslationProcessing, domain.StatusTranslationCompleted,
		map[string]interface{}{"translation_completed_at": now})
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	c.invalidateStatus(ctx, jobID)
	c.recordEvent(ctx, jobID, domain.EventBarrierOpened, "All sub-jobs accounted for",
		domain.JSONMap{"expected": job.ExpectedSubjobs, "successes": successes})

	return c.schedulePackaging(ctx, jobID)
}

// schedulePackaging moves a job whose barrier has opened into
// packaging_pending and enqueues the packaging task. It is safe to call
// repeatedly: the pending transition is guarded, a duplicate packaging task
// is absorbed by the packaging stage claim, and an enqueue outage surfaces
// as a transient error so the delivering task retries and re-drives the
// handoff instead of leaving the job stranded in packaging_pending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - error: transient when the task could not be enqueued.
func (c *Coordinator) schedulePackaging(ctx context.Context, jobID string) error {
	won, err := c.jobs.UpdateStatusFrom(ctx, jobID,
		domain.StatusTranslationCompleted, domain.StatusPackagingPending, nil)
	if err != nil {
		return err
	}
	if won {
		c.invalidateStatus(ctx, jobID)
	}

	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusPackagingPending {
		return nil
	}
	if err := c.dispatcher.EnqueuePackaging(ctx, dispatch.PackagingTask{JobID: jobID}); err != nil {
		return service.Transient(fmt.Errorf("failed to enqueue packaging: %w", err))
	}
	return nil
}

// HandlePackaging assembles, encodes, and stores the result artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - task: packaging task payload.
// Returns:
//   - error: transient to request a retry; any other error is permanent.
func (c *Coordinator) HandlePackaging(ctx context.Context, task dispatch.PackagingTask) error {
	job, err := c.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusTranslationCancelled {
		logger.CtxInfo(ctx, "Skipping packaging of cancelled job")
		return nil
	}

	proceed, err := c.claimStage(ctx, job.ID,
		domain.StatusPackagingPending, domain.StatusPackagingProcessing)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}
	c.recordEvent(ctx, job.ID, domain.EventPackagingStarted, "Packaging started", nil)

	results, err := c.translations.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	blob, err := encodeResults(job, results, now)
	if err != nil {
		return err
	}
	key, err := c.uploadArtifact(ctx, job.ID, blob)
	if err != nil {
		return err
	}

	won, err := c.jobs.UpdateStatusFrom(ctx, job.ID,
		domain.StatusPackagingProcessing, domain.StatusPackagingCompleted,
		map[string]interface{}{
			"result_ref":   key,
			"completed_at": now,
		})
	if err != nil {
		return err
	}
	if !won {
		logger.CtxInfo(ctx, "Discarding packaged artifact of job no longer processing")
		return nil
	}
	c.invalidateStatus(ctx, job.ID)
	c.recordEvent(ctx, job.ID, domain.EventPackagingCompleted, "Result artifact stored",
		domain.JSONMap{
			"result_ref": key,
			"url":        c.store.GetURL(key),
			"size_bytes": len(blob),
			"results":    len(results),
		})
	logger.With(logger.Fields{logger.FieldSize: len(blob)}).
		Info(ctx, "Packaging completed")
	return nil
}

// PackagingAbandoned marks the job failed after the final packaging attempt.
func (c *Coordinator) PackagingAbandoned(ctx context.Context, task dispatch.PackagingTask, cause error) {
	c.failStage(ctx, task.JobID, domain.StatusPackagingPending,
		domain.StatusPackagingProcessing, domain.StatusPackagingFailed,
		domain.EventPackagingFailed, cause)
}

// failStage moves a job from a stage's processing (or pending) state into
// its failed state, recording the cause. Used by the abandonment hooks.
func (c *Coordinator) failStage(ctx context.Context, jobID string, pending, processing, failed domain.JobStatus, eventType string, cause error) {
	extra := map[string]interface{}{"error_message": cause.Error()}
	won, err := c.jobs.UpdateStatusFrom(ctx, jobID, processing, failed, extra)
	if err != nil {
		logger.CtxError(ctx, "Failed to mark job %s: %v", failed, err)
		return
	}
	if !won {
		won, err = c.jobs.UpdateStatusFrom(ctx, jobID, pending, failed, extra)
		if err != nil {
			logger.CtxError(ctx, "Failed to mark job %s: %v", failed, err)
			return
		}
	}
	if won {
		c.invalidateStatus(ctx, jobID)
		c.recordEvent(ctx, jobID, eventType, "Stage failed permanently",
			domain.JSONMap{"error": cause.Error()})
		logger.CtxError(ctx, "Job moved to %s: %v", failed, cause)
	}
}
