package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService   = "service"
	FieldComponent = "component"

	// Room protocol
	FieldRoomID      = "room_id"
	FieldClientID    = "client_id"
	FieldParticipant = "participant"
	FieldRole        = "role"
	FieldEvent       = "event"
	FieldState       = "state"
	FieldMedia       = "media"
	FieldChunkSet    = "chunk_set"
	FieldChunks      = "chunks"
	FieldAttempt     = "attempt"
	FieldDelay       = "delay_ms"
)
