// Package forward posts payloads to the downstream workflow webhooks
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"leadbridge/internal/auth"
	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/tracing"
	pkgconstants "leadbridge/pkg/constants"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const maxResponseBytes = 1 << 20

// Target names a downstream webhook
type Target string

const (
	TargetLeadCapture       Target = "lead-capture"
	TargetWhatsAppResponses Target = "whatsapp-responses"
)

// Config configures the forwarder
type Config struct {
	LeadCaptureURL       string
	WhatsAppResponsesURL string
	// SigningSecret, when set, signs every forward with the same HMAC
	// headers accepted on inbound requests
	SigningSecret string
	Timeout       time.Duration
}

// Forwarder delivers payloads to downstream webhooks. Each call is a single
// attempt; retrying is the caller's decision.
type Forwarder struct {
	urls          map[Target]string
	signingSecret string
	timeout       time.Duration
	client        *http.Client
	logger        logrus.FieldLogger
	now           func() time.Time
}

// New creates a forwarder
func New(cfg Config, logger logrus.FieldLogger) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultForwardTimeoutSec) * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Forwarder{
		urls: map[Target]string{
			TargetLeadCapture:       cfg.LeadCaptureURL,
			TargetWhatsAppResponses: cfg.WhatsAppResponsesURL,
		},
		signingSecret: cfg.SigningSecret,
		timeout:       timeout,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
		now:           time.Now,
	}
}

// Forward posts payload as JSON to target and returns the downstream
// response body as JSON. Empty bodies come back as {} and non-JSON text is
// wrapped as {"message": text}.
func (f *Forwarder) Forward(ctx context.Context, target Target, payload interface{}) (json.RawMessage, error) {
	url, ok := f.urls[target]
	if !ok || url == "" {
		return nil, errors.NewForwardError(string(target), 0, "unknown forward target", nil)
	}

	ctx, span := tracing.StartSpan(ctx, "forward "+string(target),
		attribute.String("forward.target", string(target)))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal forward payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewForwardError(string(target), 0, "invalid target url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", pkgconstants.UserAgent)
	if f.signingSecret != "" {
		ts, sig := auth.SignatureHeaders(f.signingSecret, body, f.now())
		req.Header.Set(constants.HeaderWebhookTimestamp, ts)
		req.Header.Set(constants.HeaderWebhookSignature, sig)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		msg := "downstream unreachable"
		if isTimeout(err) {
			msg = fmt.Sprintf("downstream timed out after %s", f.timeout)
		}
		fwdErr := errors.NewForwardError(string(target), 0, msg, err)
		tracing.RecordError(ctx, fwdErr)
		return nil, fwdErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		fwdErr := errors.NewForwardError(string(target), resp.StatusCode, "failed to read downstream response", err)
		tracing.RecordError(ctx, fwdErr)
		return nil, fwdErr
	}

	tracing.AddSpanAttributes(ctx, attribute.Int("http.status_code", resp.StatusCode))
	f.logger.WithFields(logrus.Fields{
		"target":      target,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Forwarded payload downstream")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fwdErr := errors.NewForwardError(string(target), resp.StatusCode,
			fmt.Sprintf("downstream returned status %d: %s", resp.StatusCode, snippet(raw)), nil)
		tracing.RecordError(ctx, fwdErr)
		return nil, fwdErr
	}

	return responseJSON(raw), nil
}

// Ping sends a HEAD request to target and reports whether it answers.
// Workflow webhooks usually reject HEAD, so any status below 500 counts
// as reachable.
func (f *Forwarder) Ping(ctx context.Context, target Target) error {
	url, ok := f.urls[target]
	if !ok || url == "" {
		return errors.NewForwardError(string(target), 0, "unknown forward target", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.NewForwardError(string(target), 0, "invalid target url", err)
	}
	req.Header.Set("User-Agent", pkgconstants.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		msg := "downstream unreachable"
		if isTimeout(err) {
			msg = fmt.Sprintf("downstream timed out after %s", f.timeout)
		}
		return errors.NewForwardError(string(target), 0, msg, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.NewForwardError(string(target), resp.StatusCode,
			fmt.Sprintf("downstream returned status %d", resp.StatusCode), nil)
	}
	return nil
}

func responseJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"message": string(trimmed)})
	return wrapped
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "empty body"
	}
	return s
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
