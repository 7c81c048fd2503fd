package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/forward"
	"leadbridge/internal/metrics"
	"leadbridge/internal/models"
	"leadbridge/internal/retry"
	"leadbridge/internal/translate"
	"leadbridge/internal/validation"
	"leadbridge/pkg/waha"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// Response statuses returned by the bridge
const (
	StatusForwarded    = "forwarded"
	StatusSkipped      = "skipped"
	StatusSent         = "sent"
	StatusDisconnected = "disconnected"
)

// Forwarder delivers payloads to the downstream workflows
type Forwarder interface {
	Forward(ctx context.Context, target forward.Target, payload interface{}) (json.RawMessage, error)
	Ping(ctx context.Context, target forward.Target) error
}

// BridgeConfig tunes the bridge
type BridgeConfig struct {
	// DedupTTL is how long a forwarded message id is remembered
	DedupTTL time.Duration
}

// EventResult is the answer to a gateway webhook delivery
type EventResult struct {
	Status    string               `json:"status"`
	MessageID string               `json:"messageId,omitempty"`
	Reason    translate.SkipReason `json:"reason,omitempty"`
}

// LeadResult is the answer to a lead injection
type LeadResult struct {
	Success  bool              `json:"success"`
	LeadData models.LeadRecord `json:"leadData"`
	Result   json.RawMessage   `json:"result"`
}

// SendResult is the answer to an outbound send
type SendResult struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
	Phone     string `json:"phone"`
}

// StatusReport describes the gateway session. Failures are reported as
// status "disconnected" with the error text.
type StatusReport struct {
	Status    string `json:"status"`
	Session   string `json:"session,omitempty"`
	Me        string `json:"me,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Bridge connects the gateway, the translator and the downstream
// workflows. It is safe for concurrent use.
type Bridge struct {
	gateway    waha.Client
	forwarder  Forwarder
	translator *translate.Translator
	seen       *cache.Cache
	logger     logrus.FieldLogger
	now        func() time.Time
	newID      func() string
}

// NewBridge creates a bridge
func NewBridge(gateway waha.Client, forwarder Forwarder, translator *translate.Translator, cfg BridgeConfig, logger logrus.FieldLogger) *Bridge {
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = time.Duration(constants.DefaultDedupTTLMinutes) * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Bridge{
		gateway:    gateway,
		forwarder:  forwarder,
		translator: translator,
		seen:       cache.New(ttl, time.Duration(constants.DefaultDedupCleanupMinutes)*time.Minute),
		logger:     logger.WithField(LogFieldComponent, "bridge"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// HandleGatewayEvent translates ev and forwards it to the whatsapp
// responses workflow. Non-message events, own messages, group chats and
// message ids already forwarded come back skipped without any downstream
// call. A failed forward forgets the message id so a redelivery is
// processed again.
func (b *Bridge) HandleGatewayEvent(ctx context.Context, ev models.InboundEvent) (*EventResult, error) {
	metrics.IncrementCounter(metrics.GatewayEventsTotal, map[string]string{"event": ev.EventType}, "Gateway webhook events received")

	tr, err := b.translator.Translate(ev)
	if err != nil {
		return nil, err
	}
	if tr.Skipped() {
		return b.skipped(ctx, ev, tr.Skip), nil
	}
	msg := tr.Message

	key := dedupKey(ev.SessionID, msg.MessageID)
	if key != "" {
		if err := b.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			return b.skipped(ctx, ev, translate.SkipDuplicate), nil
		}
	}

	start := time.Now()
	_, err = b.forwarder.Forward(ctx, forward.TargetWhatsAppResponses, translate.BusinessPayload(*msg, ev.SessionID))
	metrics.RecordTimer(metrics.ForwardDuration, time.Since(start), map[string]string{"target": string(forward.TargetWhatsAppResponses)})
	if err != nil {
		if key != "" {
			b.seen.Delete(key)
		}
		b.countForward(forward.TargetWhatsAppResponses, err)
		errors.LogRetryableError(b.logger, err, "Failed to forward gateway message", logrus.Fields{
			LogFieldMessageID: msg.MessageID,
			LogFieldSession:   ev.SessionID,
		})
		return nil, err
	}
	b.countForward(forward.TargetWhatsAppResponses, nil)

	LogWithContext(ctx, b.logger, logrus.Fields{
		LogFieldMessageID: msg.MessageID,
		LogFieldSession:   ev.SessionID,
		LogFieldPhone:     msg.FromPhone,
		"message_type":    msg.Type,
	}).Info("Forwarded gateway message")

	return &EventResult{Status: StatusForwarded, MessageID: msg.MessageID}, nil
}

func (b *Bridge) skipped(ctx context.Context, ev models.InboundEvent, reason translate.SkipReason) *EventResult {
	metrics.IncrementCounter(metrics.GatewayEventsSkipped, map[string]string{"reason": string(reason)}, "Gateway events not forwarded")
	b.logger.WithFields(logrus.Fields{
		LogFieldEvent:      ev.EventType,
		LogFieldMessageID:  ev.MessageID,
		LogFieldSkipReason: reason,
	}).Debug("Skipping gateway event")
	return &EventResult{Status: StatusSkipped, Reason: reason}
}

// InjectLead validates req, completes it into a LeadRecord and forwards it
// once to the lead capture workflow
func (b *Bridge) InjectLead(ctx context.Context, req models.LeadRequest) (*LeadResult, error) {
	if err := validation.ValidateLeadRequest(req); err != nil {
		return nil, err
	}

	source := models.LeadSource(req.Source)
	if source == "" {
		source = models.LeadSource(constants.DefaultLeadSource)
	}
	lead := models.LeadRecord{
		Source:     source,
		Name:       strings.TrimSpace(req.Name),
		Phone:      req.Phone,
		Email:      req.Email,
		Message:    req.Message,
		Timestamp:  b.now().UTC().Format(time.RFC3339),
		CampaignID: constants.CampaignIDPrefix + b.newID(),
	}

	start := time.Now()
	result, err := b.forwarder.Forward(ctx, forward.TargetLeadCapture, lead)
	metrics.RecordTimer(metrics.ForwardDuration, time.Since(start), map[string]string{"target": string(forward.TargetLeadCapture)})
	b.countForward(forward.TargetLeadCapture, err)
	if err != nil {
		errors.LogError(b.logger, err, "Failed to inject lead", logrus.Fields{LogFieldCampaign: lead.CampaignID})
		return nil, err
	}

	metrics.IncrementCounter(metrics.LeadsInjectedTotal, map[string]string{"source": string(source)}, "Leads forwarded to lead capture")
	LogWithContext(ctx, b.logger, logrus.Fields{
		LogFieldCampaign: lead.CampaignID,
		LogFieldSource:   lead.Source,
		LogFieldPhone:    lead.Phone,
		"name":           lead.Name,
	}).Info("Lead injected")

	return &LeadResult{Success: true, LeadData: lead, Result: result}, nil
}

// SendMessage sends a text through the gateway. The phone is echoed back
// exactly as given.
func (b *Bridge) SendMessage(ctx context.Context, req models.OutboundSendRequest) (*SendResult, error) {
	if err := validation.ValidateSendRequest(req); err != nil {
		return nil, err
	}

	session := req.SessionID
	if session == "" {
		session = b.gateway.DefaultSession()
	}

	sent, err := b.gateway.SendText(ctx, req.Phone, req.Text, session)
	if err != nil {
		metrics.IncrementCounter(metrics.MessagesSentTotal, map[string]string{"result": "error"}, "Outbound gateway sends")
		errors.LogRetryableError(b.logger, err, "Failed to send message", logrus.Fields{LogFieldSession: session})
		return nil, err
	}

	metrics.IncrementCounter(metrics.MessagesSentTotal, map[string]string{"result": "ok"}, "Outbound gateway sends")
	LogWithContext(ctx, b.logger, logrus.Fields{
		LogFieldSession:   session,
		LogFieldMessageID: sent.MessageID,
		LogFieldPhone:     req.Phone,
	}).Info("Message sent")

	return &SendResult{Status: StatusSent, MessageID: sent.MessageID, Phone: req.Phone}, nil
}

// Status reports the gateway session state. It never fails: any error is
// folded into a "disconnected" report.
func (b *Bridge) Status(ctx context.Context, session string) StatusReport {
	if session == "" {
		session = b.gateway.DefaultSession()
	}
	ts := b.now().UTC().Format(time.RFC3339)

	st, err := b.gateway.GetSessionStatus(ctx, session)
	if err != nil {
		errors.LogWarn(b.logger, err, "Gateway status unavailable", logrus.Fields{LogFieldSession: session})
		return StatusReport{
			Status:    StatusDisconnected,
			Session:   session,
			Error:     errors.GetUserMessage(err),
			Timestamp: ts,
		}
	}

	return StatusReport{
		Status:    st.Status,
		Session:   st.Session,
		Me:        st.MeID,
		Endpoint:  st.Endpoint,
		Timestamp: ts,
	}
}

// RegisterWebhook subscribes webhookURL to events on the gateway, retrying
// retryable failures with backoff
func (b *Bridge) RegisterWebhook(ctx context.Context, webhookURL string, events []string, backoff *retry.Backoff) error {
	backoff = backoff.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		errors.LogWarn(b.logger, err, "Webhook registration failed, retrying", logrus.Fields{
			LogFieldAttempt:  attempt,
			"retry_in_ms":    delay.Milliseconds(),
			LogFieldEndpoint: webhookURL,
		})
	})

	err := backoff.Retry(ctx, func(ctx context.Context, attempt int) error {
		return b.gateway.RegisterWebhook(ctx, webhookURL, events)
	})
	if err != nil {
		return err
	}

	b.logger.WithFields(logrus.Fields{
		LogFieldEndpoint: webhookURL,
		"events":         events,
	}).Info("Registered gateway webhook")
	return nil
}

func (b *Bridge) countForward(target forward.Target, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.IncrementCounter(metrics.ForwardsTotal, map[string]string{
		"target": string(target),
		"result": result,
	}, "Downstream forwards")
}

// dedupKey hashes session and message id into a fixed size cache key.
// Messages without an id are never de-duplicated.
func dedupKey(session, messageID string) string {
	if messageID == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(session + "\x00" + messageID))
	return hex.EncodeToString(sum[:])
}
