package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/voicelingua/voicelingua/internal/domain"
)

// JobEventRepository handles the append-only audit trail. Events are never
// updated or deleted here; cascade delete happens through JobRepository.
type JobEventRepository struct {
	db *gorm.DB
}

// NewJobEventRepository creates a new JobEventRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobEventRepository: repository instance bound to db.
func NewJobEventRepository(db *gorm.DB) *JobEventRepository {
	return &JobEventRepository{db: db}
}

// Append records one audit trail entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job the event belongs to.
//   - eventType: one of the domain.Event* constants.
//   - message: human-readable description.
//   - details: structured detail; may be nil.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobEventRepository) Append(ctx context.Context, jobID, eventType, message string, details domain.JSONMap) error {
	event := &domain.JobEvent{
		JobID:     jobID,
		EventType: eventType,
		Message:   message,
		Details:   details,
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByJob retrieves a job's events oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - []domain.JobEvent: matching rows.
//   - error: non-nil if the query fails.
func (r *JobEventRepository) ListByJob(ctx context.Context, jobID string) ([]domain.JobEvent, error) {
	var events []domain.JobEvent
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
