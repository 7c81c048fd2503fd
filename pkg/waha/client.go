package waha

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadbridge/internal/errors"
	"leadbridge/internal/privacy"
	"leadbridge/pkg/circuitbreaker"
	"leadbridge/pkg/constants"
	"leadbridge/pkg/waha/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxResponseBytes = 1 << 20

var errServerStatus = stderrors.New("gateway server error")

// statusStrategy is one way of asking the gateway for a session's state.
// Gateway versions disagree on the endpoint, so they are tried in order.
type statusStrategy struct {
	name string
	path func(session string) string
}

var defaultStatusStrategies = []statusStrategy{
	{name: "sessions", path: func(s string) string {
		return types.APIBase + types.EndpointSessions + "/" + url.PathEscape(s)
	}},
	{name: "legacy_status", path: func(s string) string {
		return types.APIBase + "/" + url.PathEscape(s) + types.EndpointStatus
	}},
	{name: "legacy_sessions_status", path: func(s string) string {
		return types.APIBase + types.EndpointSessions + "/" + url.PathEscape(s) + types.EndpointStatus
	}},
}

var knownSessionStatuses = map[string]bool{
	types.SessionStatusConnected:  true,
	types.SessionStatusWorking:    true,
	types.SessionStatusStarting:   true,
	types.SessionStatusFailed:     true,
	types.SessionStatusStopped:    true,
	types.SessionStatusScanQRCode: true,
}

// WAHAClient talks to the gateway over HTTP. Every call is bounded by the
// configured timeout and guarded by a circuit breaker.
type WAHAClient struct {
	baseURL        string
	apiKey         string
	defaultSession string
	timeout        time.Duration
	httpClient     *http.Client
	breaker        *circuitbreaker.CircuitBreaker
	logger         logrus.FieldLogger
	strategies     []statusStrategy
}

// NewClient creates a gateway client
func NewClient(cfg types.ClientConfig, logger logrus.FieldLogger) *WAHAClient {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultGatewayTimeoutSec) * time.Second
	}
	session := cfg.DefaultSession
	if session == "" {
		session = constants.DefaultGatewaySession
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = constants.DefaultBreakerMaxFailures
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Duration(constants.DefaultBreakerCooldownSec) * time.Second
	}

	return &WAHAClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		defaultSession: session,
		timeout:        timeout,
		httpClient:     &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("waha", circuitbreaker.Config{
			MaxFailures:      maxFailures,
			Cooldown:         cooldown,
			HalfOpenMaxCalls: constants.DefaultBreakerHalfOpenCalls,
		}, logger),
		logger:     logger,
		strategies: defaultStatusStrategies,
	}
}

// DefaultSession returns the session used when a caller names none
func (c *WAHAClient) DefaultSession() string {
	return c.defaultSession
}

// BreakerStats exposes the circuit breaker counters for metrics
func (c *WAHAClient) BreakerStats() circuitbreaker.Stats {
	return c.breaker.Stats()
}

// SendText sends a text message to a phone number
func (c *WAHAClient) SendText(ctx context.Context, phone, text, session string) (*types.SendResult, error) {
	digits := NormalizePhone(phone)
	if digits == "" {
		return nil, errors.NewValidationError("phone", "must contain digits")
	}
	if session == "" {
		session = c.defaultSession
	}

	endpoint := types.APIBase + types.EndpointSendText
	payload := types.SendTextRequest{
		Session: session,
		ChatID:  digits + constants.ContactChatSuffix,
		Text:    text,
	}

	resp, err := c.call(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if resp.status >= http.StatusBadRequest {
		return nil, rejected(endpoint, resp)
	}

	result := &types.SendResult{}
	var parsed types.SendTextResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("Gateway send response is not JSON; message id unknown")
	} else {
		result.MessageID = parsed.ResolveID()
		result.Timestamp = parsed.Timestamp
	}

	c.logger.WithFields(logrus.Fields{
		"chat_id":    privacy.MaskChatID(payload.ChatID),
		"session":    session,
		"message_id": privacy.MaskMessageID(result.MessageID),
	}).Debug("Text message sent through gateway")

	return result, nil
}

// GetSessionStatus asks the gateway for the session state, trying each
// known endpoint in order until one answers. A timeout, an open circuit or
// a cancelled ctx ends the search early.
func (c *WAHAClient) GetSessionStatus(ctx context.Context, session string) (*types.SessionStatus, error) {
	if session == "" {
		session = c.defaultSession
	}

	var attempts []error
	var attempted []string
	for _, strategy := range c.strategies {
		endpoint := strategy.path(session)
		attempted = append(attempted, endpoint)

		status, err := c.tryStatus(ctx, endpoint, session)
		if err == nil {
			return status, nil
		}

		attempts = append(attempts, fmt.Errorf("%s: %w", strategy.name, err))
		c.logger.WithError(err).WithFields(logrus.Fields{
			"strategy": strategy.name,
			"endpoint": endpoint,
		}).Debug("Session status strategy failed")

		// A hung gateway would hang on every endpoint, so the whole
		// lookup stays within one client timeout.
		if circuitbreaker.IsOpen(err) || ctx.Err() != nil || errors.GetCode(err) == errors.ErrCodeGatewayTimeout {
			break
		}
	}

	return nil, errors.Wrap(stderrors.Join(attempts...), errors.ErrCodeStatusUnavailable, "session status unavailable").
		WithContext("session", session).
		WithContext("attempts", attempted).
		WithUserMessage("gateway session status unavailable")
}

func (c *WAHAClient) tryStatus(ctx context.Context, endpoint, session string) (*types.SessionStatus, error) {
	resp, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if resp.status >= http.StatusBadRequest {
		return nil, rejected(endpoint, resp)
	}

	var parsed types.SessionResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}

	state := parsed.Status
	if state == "" {
		state = parsed.State
	}
	if state == "" {
		return nil, fmt.Errorf("session response has no status")
	}

	status := &types.SessionStatus{
		Session:  session,
		Status:   NormalizeSessionStatus(state),
		Endpoint: endpoint,
		Raw:      json.RawMessage(resp.body),
	}
	if parsed.Name != "" {
		status.Session = parsed.Name
	}
	if parsed.Me != nil {
		status.MeID = parsed.Me.ID
	}
	return status, nil
}

// NormalizeSessionStatus upper-cases known session states and passes
// anything else through
func NormalizeSessionStatus(state string) string {
	state = strings.TrimSpace(state)
	if upper := strings.ToUpper(state); knownSessionStatuses[upper] {
		return upper
	}
	return state
}

// RegisterWebhook subscribes url to the given gateway events. Registering
// the same url twice is not an error.
func (c *WAHAClient) RegisterWebhook(ctx context.Context, webhookURL string, events []string) error {
	endpoint := types.APIBase + types.EndpointWebhooks
	resp, err := c.call(ctx, http.MethodPost, endpoint, types.WebhookRegistration{
		URL:    webhookURL,
		Events: events,
	})
	if err != nil {
		return err
	}

	alreadyRegistered := resp.status == http.StatusConflict ||
		strings.Contains(strings.ToLower(string(resp.body)), "already")
	if resp.status >= http.StatusBadRequest && !alreadyRegistered {
		return rejected(endpoint, resp)
	}

	c.logger.WithFields(logrus.Fields{
		"url":         webhookURL,
		"events":      events,
		"status_code": resp.status,
	}).Info("Webhook registered with gateway")
	return nil
}

// StartSession asks the gateway to (re)start a session. The gateway answers
// before the session is ready; callers poll GetSessionStatus afterwards.
func (c *WAHAClient) StartSession(ctx context.Context, session string) error {
	if session == "" {
		session = c.defaultSession
	}
	endpoint := types.APIBase + types.EndpointSessions + "/" + url.PathEscape(session) + types.EndpointStart

	resp, err := c.call(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if resp.status >= http.StatusBadRequest {
		return rejected(endpoint, resp)
	}

	c.logger.WithFields(logrus.Fields{
		"session":     session,
		"status_code": resp.status,
	}).Info("Gateway session start requested")
	return nil
}

type gatewayResponse struct {
	status int
	body   []byte
}

// call performs one request through the circuit breaker. Transport
// failures, timeouts and 5xx answers come back as classified errors and
// count against the breaker; 4xx answers are returned to the caller.
func (c *WAHAClient) call(ctx context.Context, method, endpoint string, payload interface{}) (*gatewayResponse, error) {
	ctx, span := otel.Tracer("leadbridge/waha").Start(ctx, "waha "+method+" "+endpoint)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("waha.endpoint", endpoint),
	)

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal gateway request")
		}
	}

	var resp gatewayResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set(types.HeaderAPIKey, c.apiKey)
		}
		req.Header.Set("User-Agent", constants.UserAgent)

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		resp.status = httpResp.StatusCode
		resp.body, err = io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.status >= http.StatusInternalServerError {
			return errServerStatus
		}
		return nil
	})

	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	if err == nil {
		return &resp, nil
	}

	var appErr *errors.AppError
	switch {
	case circuitbreaker.IsOpen(err):
		appErr = errors.NewGatewayError(endpoint, 0, err)
	case isTimeout(err):
		appErr = errors.NewGatewayTimeoutError(endpoint, c.timeout, err)
	case stderrors.Is(err, errServerStatus):
		appErr = errors.NewGatewayError(endpoint, resp.status, fmt.Errorf("%s", errorMessage(resp.body)))
	default:
		appErr = errors.NewGatewayError(endpoint, 0, err)
	}

	span.RecordError(appErr)
	span.SetStatus(codes.Error, string(appErr.Code))
	return nil, appErr
}

func rejected(endpoint string, resp *gatewayResponse) error {
	return errors.NewGatewayError(endpoint, resp.status, fmt.Errorf("%s", errorMessage(resp.body)))
}

// errorMessage extracts a readable reason from a gateway error body
func errorMessage(body []byte) string {
	var parsed types.ErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "empty response body"
	}
	return msg
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
