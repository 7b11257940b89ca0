package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService  = "service"
	FieldInstance = "instance_id"

	// Signaling
	FieldClientID = "client_id"
	FieldRoomID   = "room_id"
	FieldTargetID = "target_id"
	FieldRole     = "role"
	FieldEvent    = "event"
	FieldReason   = "reason"
	FieldState    = "state"
	FieldAttempt  = "attempt"
)
