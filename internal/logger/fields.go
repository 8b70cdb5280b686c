package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that logs can be
// aggregated and queried by user, session, or connection.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Client identification
	KeyClientIP = "client_ip" // Client IP address (without port)
	KeyUserID   = "user_id"   // Authenticated user identifier
	KeyEmail    = "email"     // Authenticated user email

	// Session & connection
	KeySessionID    = "session_id"    // Client-visible terminal session identifier
	KeyConnectionID = "connection_id" // Internal SSH connection identifier
	KeyRequestID    = "request_id"    // HTTP request ID
	KeyProfileID    = "profile_id"    // SSH profile identifier

	// SSH target
	KeyHost   = "host"   // Remote SSH host
	KeyPort   = "port"   // Remote SSH port
	KeyStatus = "status" // Connection status

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyProvider   = "provider"    // Assistant provider name
)
