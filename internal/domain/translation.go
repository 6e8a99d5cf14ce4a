package domain

import "time"

// SourceType identifies which text a translation was derived from.
// Values include SourceAudio (the transcript) and SourceText (the
// reference/input text).
type SourceType string

const (
	SourceAudio SourceType = "AUDIO"
	SourceText  SourceType = "TEXT"
)

// Valid reports whether the source type is one of the closed set.
func (s SourceType) Valid() bool {
	return s == SourceAudio || s == SourceText
}

// TranslationResult represents one completed translation sub-job, keyed by
// (job_id, target_language, source_type). A second write for the same key
// is an upsert, never a duplicate row. TextID is the human-facing label of
// the result: the job's external identifier when one exists, otherwise a
// generated job-scoped fallback.
type TranslationResult struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID          string     `gorm:"type:text;not null;index:idx_translation_key,unique" json:"job_id"`
	TargetLanguage string     `gorm:"type:text;not null;index:idx_translation_key,unique" json:"target_language"`
	SourceType     SourceType `gorm:"type:text;not null;index:idx_translation_key,unique" json:"source_type"`
	TextID         string     `gorm:"type:text" json:"text_id,omitempty"`
	SourceText     string     `gorm:"type:text;not null" json:"source_text"`
	TranslatedText string     `gorm:"type:text;not null" json:"translated_text"`
	Confidence     *float64   `json:"confidence,omitempty"`
	Engine         string     `gorm:"type:text" json:"engine,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName returns the database table name for TranslationResult.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (TranslationResult) TableName() string {
	return "translation_results"
}
