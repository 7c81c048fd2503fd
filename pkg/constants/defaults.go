package constants

// Gateway client defaults
const (
	DefaultGatewayBaseURL       = "http://localhost:3000"
	DefaultGatewaySession       = "default"
	DefaultGatewayTimeoutSec    = 10
	DefaultBreakerMaxFailures   = 5
	DefaultBreakerCooldownSec   = 30
	DefaultBreakerHalfOpenCalls = 3
)

// WhatsApp chat id conventions
const (
	ContactChatSuffix = "@c.us"
	GroupChatSuffix   = "@g.us"
)

// Timestamps above this value are milliseconds
const MillisecondTimestampThreshold int64 = 1_000_000_000_000

// UserAgent identifies this service to the gateway and downstream webhooks
const UserAgent = "leadbridge/1.0"
