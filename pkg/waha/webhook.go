package waha

import (
	"bytes"
	"encoding/json"
	"strconv"

	"leadbridge/internal/errors"
	"leadbridge/internal/models"
	"leadbridge/pkg/waha/types"
)

// ParseInboundEvent flattens a gateway webhook body into an InboundEvent.
// Only malformed JSON is an error; unknown event types and missing fields
// are left for the translator to judge.
func ParseInboundEvent(body []byte) (*models.InboundEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.NewValidationError("body", "must be a JSON object")
	}

	var envelope types.WebhookEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFailed, "malformed gateway event").
			WithUserMessage("Invalid JSON body")
	}

	event := &models.InboundEvent{
		EventType: envelope.Event,
		SessionID: envelope.Session,
		MessageID: envelope.ID,
		Timestamp: envelope.Timestamp,
		Raw:       json.RawMessage(trimmed),
	}

	payload := bytes.TrimSpace(envelope.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return event, nil
	}
	event.Raw = json.RawMessage(payload)

	var msg types.MessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		// non-message payloads (session.status and friends) need no fields
		return event, nil
	}

	if msg.ID.Serialized != "" {
		event.MessageID = msg.ID.Serialized
	}
	event.SenderID = msg.From
	event.Body = msg.Body
	event.FromMe = msg.FromMe
	event.HasMedia = msg.HasMedia
	if ts, ok := parseTimestamp(msg.Timestamp); ok {
		event.Timestamp = ts
	}
	return event, nil
}

func parseTimestamp(n json.Number) (int64, bool) {
	if n == "" {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return int64(f), true
	}
	return 0, false
}
