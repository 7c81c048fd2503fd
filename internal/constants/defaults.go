package constants

// Default server configuration values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	// WriteTimeoutMarginSec is the minimum headroom of the server write
	// timeout over the slowest outbound call
	WriteTimeoutMarginSec        = 5
	DefaultMaxRequestBodyBytes   = 1 << 20
	ServerErrorChannelSize       = 1
)

// Default downstream workflow values
const (
	DefaultDownstreamBaseURL     = "https://lionalpha.app.n8n.cloud"
	DefaultLeadCapturePath       = "/webhook/lead-capture"
	DefaultWhatsAppResponsesPath = "/webhook/whatsapp-responses"
	DefaultForwardTimeoutSec     = 15
)

// Default authentication and throttling values
const (
	DefaultWebhookMaxSkewSec    = 300
	DefaultRateLimitWindowSec   = 60
	DefaultRateLimitMaxRequests = 1000
	MinProductionSecretLength   = 32
)

// Default de-duplication values
const (
	DefaultDedupTTLMinutes     = 10
	DefaultDedupCleanupMinutes = 5
)

// Session monitoring
const (
	DefaultSessionCheckSec          = 60
	DefaultSessionStartupTimeoutSec = 180
	SessionMonitorStartDelaySec     = 5
)

// Startup webhook registration
const (
	DefaultRegisterAttempts       = 5
	DefaultRegisterInitialDelayMs = 500
	DefaultRegisterMaxDelaySec    = 10
)

// Default lead values
const (
	DefaultContactName = "Lead"
	DefaultLeadSource  = "manual"
	CampaignIDPrefix   = "campaign_"
)

// Header names recognized on inbound requests
const (
	HeaderWebhookSecret    = "X-Webhook-Secret"
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWorkflowID       = "X-N8N-Workflow-Id"
	HeaderForwardedFor     = "X-Forwarded-For"
	HeaderRealIP           = "X-Real-IP"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)

// Input validation limits
const (
	MinPhoneDigits       = 8
	MaxPhoneDigits       = 15
	MaxSessionNameLength = 64
	MaxLeadNameLength    = 200
	MaxEmailLength       = 254
	MaxMessageLength     = 4096
)
