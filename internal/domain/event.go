package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Event types recorded on the audit trail.
const (
	EventJobCreated             = "job_created"
	EventTranscriptionStarted   = "transcription_started"
	EventTranscriptionCompleted = "transcription_completed"
	EventTranscriptionFailed    = "transcription_failed"
	EventTranslationDispatched  = "translation_dispatched"
	EventTranslationSaved       = "translation_saved"
	EventSubjobFailed           = "subjob_failed"
	EventBarrierOpened          = "barrier_opened"
	EventPackagingStarted       = "packaging_started"
	EventPackagingCompleted     = "packaging_completed"
	EventPackagingFailed        = "packaging_failed"
	EventJobCancelled           = "job_cancelled"
	EventResultDiscarded        = "result_discarded"
)

// JSONMap stores arbitrary structured detail as JSON text.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded map.
//   - error: non-nil if marshaling fails.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// JobEvent is one append-only audit trail entry. Events are never mutated
// or deleted except by job cascade-delete.
type JobEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     string    `gorm:"type:text;not null;index:idx_job_events_job" json:"job_id"`
	EventType string    `gorm:"type:text;not null" json:"event_type"`
	Message   string    `gorm:"type:text" json:"message,omitempty"`
	Details   JSONMap   `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for JobEvent.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (JobEvent) TableName() string {
	return "job_events"
}
