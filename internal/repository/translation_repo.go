package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voicelingua/voicelingua/internal/domain"
)

// TranslationResultRepository handles translation result persistence keyed by
// (job_id, target_language, source_type).
type TranslationResultRepository struct {
	db *gorm.DB
}

// NewTranslationResultRepository creates a new TranslationResultRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TranslationResultRepository: repository instance bound to db.
func NewTranslationResultRepository(db *gorm.DB) *TranslationResultRepository {
	return &TranslationResultRepository{db: db}
}

// Upsert creates or updates a translation result for its key. A redelivered
// or retried sub-job overwrites its own previous row; it never duplicates it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - result: translation result to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *TranslationResultRepository) Upsert(ctx context.Context, result *domain.TranslationResult) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "job_id"},
			{Name: "target_language"},
			{Name: "source_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"text_id", "source_text", "translated_text", "confidence", "engine",
		}),
	}).Create(result).Error
}

// GetByKey retrieves one translation result by its full key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
//   - language: target language code.
//   - source: source type.
// Returns:
//   - *domain.TranslationResult: result if found.
//   - error: domain.ErrTranslationNotFound if no row matches.
func (r *TranslationResultRepository) GetByKey(ctx context.Context, jobID, language string, source domain.SourceType) (*domain.TranslationResult, error) {
	var result domain.TranslationResult
	err := r.db.WithContext(ctx).
		First(&result, "job_id = ? AND target_language = ? AND source_type = ?", jobID, language, source).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTranslationNotFound
		}
		return nil, err
	}
	return &result, nil
}

// ListByJob retrieves all translation results for a job in a stable order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - []domain.TranslationResult: matching rows.
//   - error: non-nil if the query fails.
func (r *TranslationResultRepository) ListByJob(ctx context.Context, jobID string) ([]domain.TranslationResult, error) {
	var results []domain.TranslationResult
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("target_language, source_type").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CountByJob counts the translation results persisted for a job. At the
// fan-in barrier this is the number of successful sub-jobs, since permanent
// failures produce no row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - int64: number of rows.
//   - error: non-nil if the query fails.
func (r *TranslationResultRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.TranslationResult{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
