package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobType represents the kind of work a job carries.
// Values include JobTypeAudio and JobTypeText.
type JobType string

const (
	JobTypeAudio JobType = "audio"
	JobTypeText  JobType = "text"
)

// Valid reports whether the job type is one of the closed set.
// Parameters: none.
// Returns:
//   - bool: true for JobTypeAudio or JobTypeText.
func (t JobType) Valid() bool {
	return t == JobTypeAudio || t == JobTypeText
}

// StringArray is a custom type for storing string slices as JSON in the database.
// Order is preserved; target languages rely on that.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
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
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Job represents one submitted unit of work tracked end-to-end through the
// transcription, translation, and packaging stages.
type Job struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	JobType        JobType     `gorm:"type:text;not null" json:"job_type"`
	Status         JobStatus   `gorm:"type:text;not null;index:idx_jobs_status" json:"status"`
	Languages      StringArray `gorm:"type:text;not null" json:"languages"`
	AudioRef       string      `gorm:"type:text" json:"audio_ref,omitempty"`
	TextContent    string      `gorm:"type:text" json:"text_content,omitempty"`
	ReferenceText  string      `gorm:"type:text" json:"reference_text,omitempty"`
	TranscriptText string      `gorm:"type:text" json:"transcript_text,omitempty"`
	ExternalID     string      `gorm:"type:text;index:idx_jobs_external_id" json:"external_id,omitempty"`
	Accuracy       *float64    `json:"accuracy,omitempty"`
	ErrorMessage   string      `gorm:"type:text" json:"error_message,omitempty"`
	ResultRef      string      `gorm:"type:text" json:"result_ref,omitempty"`

	// Fan-in barrier bookkeeping. ExpectedSubjobs is fixed before the first
	// sub-job is dispatched; FinishedSubjobs is only ever incremented with a
	// single atomic SQL expression.
	ExpectedSubjobs int `gorm:"default:0" json:"expected_subjobs"`
	FinishedSubjobs int `gorm:"default:0" json:"finished_subjobs"`

	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	TranscriptionCompletedAt *time.Time `json:"transcription_completed_at,omitempty"`
	TranslationCompletedAt   *time.Time `json:"translation_completed_at,omitempty"`
	CompletedAt              *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "jobs"
}

// HasReferenceText reports whether the job carries a usable reference text.
// Whitespace-only references count as absent, matching the fan-out key math.
func (j *Job) HasReferenceText() bool {
	return strings.TrimSpace(j.ReferenceText) != ""
}

// ExpectedSubjobCount computes the fan-out width for the job: one sub-job
// per (language, source) pair. AUDIO jobs with a reference text translate
// from two sources, everything else from one.
// Parameters: none.
// Returns:
//   - int: number of translation sub-jobs the barrier must wait for.
func (j *Job) ExpectedSubjobCount() int {
	sources := 1
	if j.JobType == JobTypeAudio && j.HasReferenceText() {
		sources = 2
	}
	return len(j.Languages) * sources
}
