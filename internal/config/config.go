package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"leadbridge/internal/constants"
	"leadbridge/internal/models"
	"leadbridge/internal/security"
	pkgconstants "leadbridge/pkg/constants"

	"github.com/joho/godotenv"
)

var (
	ErrMissingGatewayURL    = models.ConfigError{Message: "missing gateway base URL"}
	ErrMissingDownstreamURL = models.ConfigError{Message: "missing downstream webhook URL"}
	ErrMissingCredentials   = models.ConfigError{Message: "at least one of auth.bearer_token (API_BEARER_TOKEN) or auth.webhook_secret (WEBHOOK_SECRET) is required"}
)

// DefaultWebhookEvents are the gateway events subscribed on startup registration
var DefaultWebhookEvents = []string{models.EventMessage, models.EventSessionStatus}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig reads the JSON file at path (optional), applies environment
// overrides and defaults, then validates the result. A missing file is not
// an error: the service runs on environment configuration alone.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		switch {
		case err == nil:
			if err := json.Unmarshal(file, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case stderrors.Is(err, fs.ErrNotExist):
			// environment only
		default:
			return nil, err
		}
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LeadCaptureURL resolves the lead capture webhook URL
func LeadCaptureURL(c *models.Config) string {
	if c.Downstream.LeadCaptureURL != "" {
		return c.Downstream.LeadCaptureURL
	}
	return strings.TrimRight(c.Downstream.BaseURL, "/") + constants.DefaultLeadCapturePath
}

// WhatsAppResponsesURL resolves the whatsapp responses webhook URL
func WhatsAppResponsesURL(c *models.Config) string {
	if c.Downstream.WhatsAppResponsesURL != "" {
		return c.Downstream.WhatsAppResponsesURL
	}
	return strings.TrimRight(c.Downstream.BaseURL, "/") + constants.DefaultWhatsAppResponsesPath
}

func applyDefaults(c *models.Config) {
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = pkgconstants.DefaultGatewayBaseURL
	}
	if c.Gateway.Session == "" {
		c.Gateway.Session = pkgconstants.DefaultGatewaySession
	}
	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = pkgconstants.DefaultGatewayTimeoutSec
	}
	if c.Gateway.BreakerMaxFailures <= 0 {
		c.Gateway.BreakerMaxFailures = pkgconstants.DefaultBreakerMaxFailures
	}
	if c.Gateway.BreakerCooldownSec <= 0 {
		c.Gateway.BreakerCooldownSec = pkgconstants.DefaultBreakerCooldownSec
	}
	if c.Gateway.SessionCheckSec == 0 {
		c.Gateway.SessionCheckSec = constants.DefaultSessionCheckSec
	}
	if c.Gateway.SessionStartupTimeoutSec <= 0 {
		c.Gateway.SessionStartupTimeoutSec = constants.DefaultSessionStartupTimeoutSec
	}

	if c.Downstream.BaseURL == "" {
		c.Downstream.BaseURL = constants.DefaultDownstreamBaseURL
	}
	if c.Downstream.TimeoutSec <= 0 {
		c.Downstream.TimeoutSec = constants.DefaultForwardTimeoutSec
	}

	if c.Auth.MaxSkewSec <= 0 {
		c.Auth.MaxSkewSec = constants.DefaultWebhookMaxSkewSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if len(c.Server.WebhookEvents) == 0 {
		c.Server.WebhookEvents = append([]string(nil), DefaultWebhookEvents...)
	}

	if c.RateLimit.WindowSec <= 0 {
		c.RateLimit.WindowSec = constants.DefaultRateLimitWindowSec
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = constants.DefaultRateLimitMaxRequests
	}

	if c.Dedup.TTLMinutes <= 0 {
		c.Dedup.TTLMinutes = constants.DefaultDedupTTLMinutes
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "leadbridge"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func validate(c *models.Config) error {
	if c.Gateway.BaseURL == "" {
		return ErrMissingGatewayURL
	}
	if err := validateURL("gateway.base_url", c.Gateway.BaseURL); err != nil {
		return err
	}

	for key, u := range map[string]string{
		"downstream.lead_capture_url":       LeadCaptureURL(c),
		"downstream.whatsapp_responses_url": WhatsAppResponsesURL(c),
	} {
		if u == "" {
			return ErrMissingDownstreamURL
		}
		if err := validateURL(key, u); err != nil {
			return err
		}
	}

	if c.Server.PublicWebhookURL != "" {
		if err := validateURL("server.public_webhook_url", c.Server.PublicWebhookURL); err != nil {
			return err
		}
	}

	if c.Auth.BearerToken == "" && c.Auth.WebhookSecret == "" {
		return ErrMissingCredentials
	}

	slowest := c.Gateway.TimeoutSec
	if c.Downstream.TimeoutSec > slowest {
		slowest = c.Downstream.TimeoutSec
	}
	if c.Server.WriteTimeoutSec < slowest+constants.WriteTimeoutMarginSec {
		return models.ConfigError{Message: fmt.Sprintf(
			"server.write_timeout_sec (%d) must be at least %ds above the gateway and forward timeouts (%ds)",
			c.Server.WriteTimeoutSec, constants.WriteTimeoutMarginSec, slowest)}
	}

	for _, r := range c.Translate.DefaultCountryCode {
		if r < '0' || r > '9' {
			return models.ConfigError{Message: fmt.Sprintf("default country code must contain only digits: %q", c.Translate.DefaultCountryCode)}
		}
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.ConfigError{Message: fmt.Sprintf("%s must be an absolute http(s) URL: %q", key, raw)}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	stringOverrides := map[string]*string{
		"WAHA_BASE_URL":              &c.Gateway.BaseURL,
		"WAHA_API_KEY":               &c.Gateway.APIKey,
		"WAHA_DEFAULT_SESSION":       &c.Gateway.Session,
		"N8N_BASE_URL":               &c.Downstream.BaseURL,
		"N8N_LEAD_CAPTURE_URL":       &c.Downstream.LeadCaptureURL,
		"N8N_WHATSAPP_RESPONSES_URL": &c.Downstream.WhatsAppResponsesURL,
		"N8N_SIGNING_SECRET":         &c.Downstream.SigningSecret,
		"WEBHOOK_SECRET":             &c.Auth.WebhookSecret,
		"API_BEARER_TOKEN":           &c.Auth.BearerToken,
		"PUBLIC_WEBHOOK_URL":         &c.Server.PublicWebhookURL,
		"DEFAULT_COUNTRY_CODE":       &c.Translate.DefaultCountryCode,
		"LOG_LEVEL":                  &c.LogLevel,
	}
	for env, field := range stringOverrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	intOverrides := map[string]*int{
		"GATEWAY_TIMEOUT_SEC":        &c.Gateway.TimeoutSec,
		"SESSION_CHECK_INTERVAL_SEC": &c.Gateway.SessionCheckSec,
		"FORWARD_TIMEOUT_SEC":        &c.Downstream.TimeoutSec,
		"WEBHOOK_MAX_SKEW_SEC":       &c.Auth.MaxSkewSec,
		"PORT":                       &c.Server.Port,
		"SERVER_WRITE_TIMEOUT_SEC":   &c.Server.WriteTimeoutSec,
		"RATE_LIMIT_WINDOW_SEC":      &c.RateLimit.WindowSec,
		"RATE_LIMIT_MAX_REQUESTS":    &c.RateLimit.MaxRequests,
	}
	for env, field := range intOverrides {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("%s must be an integer: %q", env, v)}
		}
		*field = n
	}
	return nil
}

// IsProduction reports whether the service runs with production safeguards
func IsProduction() bool {
	return os.Getenv("LEADBRIDGE_ENV") == "production"
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if IsProduction() {
		if c.Auth.WebhookSecret != "" && len(c.Auth.WebhookSecret) < constants.MinProductionSecretLength {
			return models.ConfigError{Message: fmt.Sprintf("webhook secret must be at least %d characters long", constants.MinProductionSecretLength)}
		}
		if c.Auth.BearerToken != "" && len(c.Auth.BearerToken) < constants.MinProductionSecretLength {
			return models.ConfigError{Message: fmt.Sprintf("bearer token must be at least %d characters long", constants.MinProductionSecretLength)}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Gateway.APIKey == "" {
		fmt.Fprintf(os.Stderr, "WARNING: gateway API key not set. Set WAHA_API_KEY if the gateway requires X-Api-Key.\n")
	}

	return nil
}
