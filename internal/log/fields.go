package log

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldRequestID = "request_id"

	// Tracking fields
	FieldAcademyID = "academy_id"
	FieldSessionID = "session_id"
	FieldEventName = "event_name"
	FieldCount     = "count"
	FieldPlatform  = "platform"

	// HTTP fields
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldBaseURL   = "base_url"
	FieldOperation = "operation"
)
