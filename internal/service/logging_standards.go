package service

// Standard field names for structured logging. Use these instead of ad hoc
// keys so log queries work across components.
const (
	LogFieldSession   = "session"
	LogFieldMessageID = "message_id"
	LogFieldChatID    = "chat_id"
	LogFieldPhone     = "phone"
	LogFieldCampaign  = "campaign_id"
	LogFieldSource    = "source"
	LogFieldSourceID  = "source_id"

	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	LogFieldEvent      = "event"
	LogFieldTarget     = "target"
	LogFieldSkipReason = "skip_reason"
	LogFieldAuthMethod = "auth_method"

	LogFieldDuration = "duration_ms"
	LogFieldSize     = "size_bytes"

	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"

	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log levels:
//
//	DEBUG  payload details, skipped events. Only with -verbose.
//	INFO   startup/shutdown, forwarded events, sent messages, injected leads.
//	WARN   retryable gateway failures, rate limiting, auth failures.
//	ERROR  failed forwards and gateway calls returned to the caller.
//	FATAL  configuration that prevents startup.
