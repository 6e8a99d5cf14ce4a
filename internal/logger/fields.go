package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID).
	FieldRequestID = "request_id"

	// FieldJobID is the pipeline job ID.
	FieldJobID = "job_id"

	// FieldComponent is the component/module name.
	FieldComponent = "component"

	// FieldLanguage is the target language of a translation sub-job.
	FieldLanguage = "language"

	// FieldSourceType is the sub-job source type (AUDIO/TEXT).
	FieldSourceType = "source_type"

	// FieldQueue is the dispatch queue name.
	FieldQueue = "queue"
)

// Standard metric fields, attached per entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds.
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field.
	FieldCount = "count"

	// FieldSize is the data size in bytes.
	FieldSize = "size"

	// FieldStatus is the operation status.
	FieldStatus = "status"
)
