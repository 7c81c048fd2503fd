package models

// Config holds the application configuration
type Config struct {
	Gateway    GatewayConfig    `json:"gateway"`
	Downstream DownstreamConfig `json:"downstream"`
	Auth       AuthConfig       `json:"auth"`
	Server     ServerConfig     `json:"server"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Translate  TranslateConfig  `json:"translate"`
	Dedup      DedupConfig      `json:"dedup"`
	Tracing    TracingConfig    `json:"tracing"`
	LogLevel   string           `json:"log_level"`
}

// GatewayConfig holds WAHA related configuration
type GatewayConfig struct {
	BaseURL            string `json:"base_url"`
	APIKey             string `json:"api_key"`
	Session            string `json:"session"`
	TimeoutSec         int    `json:"timeout_sec"`
	BreakerMaxFailures int    `json:"breaker_max_failures"`
	BreakerCooldownSec int    `json:"breaker_cooldown_sec"`

	// SessionCheckSec is the session monitor interval; negative disables it
	SessionCheckSec          int `json:"session_check_sec"`
	SessionStartupTimeoutSec int `json:"session_startup_timeout_sec"`
}

// DownstreamConfig holds the workflow platform webhook configuration
type DownstreamConfig struct {
	BaseURL              string `json:"base_url"`
	LeadCaptureURL       string `json:"lead_capture_url"`
	WhatsAppResponsesURL string `json:"whatsapp_responses_url"`
	SigningSecret        string `json:"signing_secret"`
	TimeoutSec           int    `json:"timeout_sec"`
}

// AuthConfig holds the credentials accepted on inbound requests
type AuthConfig struct {
	BearerToken   string `json:"bearer_token"`
	WebhookSecret string `json:"webhook_secret"`
	MaxSkewSec    int    `json:"max_skew_sec"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Port             int      `json:"port"`
	ReadTimeoutSec   int      `json:"read_timeout_sec"`
	WriteTimeoutSec  int      `json:"write_timeout_sec"`
	IdleTimeoutSec   int      `json:"idle_timeout_sec"`
	PublicWebhookURL string   `json:"public_webhook_url"`
	WebhookEvents    []string `json:"webhook_events"`
}

// RateLimitConfig holds sliding window limits per source
type RateLimitConfig struct {
	WindowSec   int `json:"window_sec"`
	MaxRequests int `json:"max_requests"`
}

// TranslateConfig holds payload translation options
type TranslateConfig struct {
	DefaultCountryCode string `json:"default_country_code"`
}

// DedupConfig holds message de-duplication options
type DedupConfig struct {
	TTLMinutes int `json:"ttl_minutes"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
