package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/voicelingua/voicelingua/internal/domain"
)

// JobRepository handles job persistence, including the atomically-guarded
// status transitions and the fan-in barrier counter.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: domain.ErrJobNotFound if no row matches.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetByExternalID retrieves the most recent job carrying the given external
// identifier. External identifiers are not unique; newest wins.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalID: human-assigned label.
// Returns:
//   - *domain.Job: job record if found.
//   - error: domain.ErrJobNotFound if no row matches.
func (r *JobRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// UpdateStatusFrom performs the guarded conditional status transition:
// status moves from -> to only if it still equals from, in a single UPDATE.
// Exactly one of many concurrent callers can win; the rest observe false.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - from: required current status.
//   - to: new status.
//   - extra: additional column updates applied atomically with the
//     transition (timestamps, error message, result reference); may be nil.
// Returns:
//   - bool: true if this caller won the transition.
//   - error: non-nil if the update fails.
func (r *JobRepository) UpdateStatusFrom(ctx context.Context, id string, from, to domain.JobStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	tx := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// CancelFrom moves the job to translation_cancelled if its status is still
// one of the cancellable states, as a single guarded update.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - bool: true if the cancel was applied.
//   - error: non-nil if the update fails.
func (r *JobRepository) CancelFrom(ctx context.Context, id string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id, domain.CancellableStatuses()).
		Updates(map[string]interface{}{
			"status":     domain.StatusTranslationCancelled,
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// SetExpectedSubjobs records the fan-out width. Written exactly once, before
// any translation sub-job is dispatched, and never changed afterwards.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - expected: number of sub-jobs the barrier waits for.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) SetExpectedSubjobs(ctx context.Context, id string, expected int) error {
	return r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Update("expected_subjobs", expected).Error
}

// IncrementFinished atomically increments the per-job finished counter with
// a single SQL expression and returns the job as of after the increment.
// The caller compares FinishedSubjobs against ExpectedSubjobs; the barrier
// transition itself is still guarded by UpdateStatusFrom, so multiple
// callers reading the final count race safely.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job state after the increment.
//   - error: non-nil if the update or re-read fails.
func (r *JobRepository) IncrementFinished(ctx context.Context, id string) (*domain.Job, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		UpdateColumn("finished_subjobs", gorm.Expr("finished_subjobs + ?", 1))
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, domain.ErrJobNotFound
	}
	return r.GetByID(ctx, id)
}

// SetTranscript stores the transcription output and optional accuracy score.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - transcript: transcribed text.
//   - accuracy: accuracy score, nil when no reference text exists.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) SetTranscript(ctx context.Context, id, transcript string, accuracy *float64) error {
	updates := map[string]interface{}{
		"transcript_text": transcript,
		"updated_at":      time.Now().UTC(),
	}
	if accuracy != nil {
		updates["accuracy"] = *accuracy
	}
	return r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete removes a job and its dependent rows in one transaction. Backs the
// purge endpoint; artifact cleanup happens before this is called.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.TranslationResult{}, "job_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.JobEvent{}, "job_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Job{}, "id = ?", id).Error
	})
}
