package types

import (
	"encoding/json"
	"time"
)

// ClientConfig configures the gateway client
type ClientConfig struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	DefaultSession string        `json:"default_session"`
	Timeout        time.Duration `json:"timeout"`
	// BreakerMaxFailures and BreakerCooldown tune the circuit breaker
	// around every gateway call; zero values use the package defaults
	BreakerMaxFailures uint32        `json:"breaker_max_failures"`
	BreakerCooldown    time.Duration `json:"breaker_cooldown"`
}

// SendTextRequest is the body of POST /api/sendText
type SendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

// SendResult is what the gateway acknowledged for a sent message
type SendResult struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SessionStatus is the normalized session state returned by the gateway
type SessionStatus struct {
	Session  string          `json:"session"`
	Status   string          `json:"status"`
	MeID     string          `json:"me,omitempty"`
	Endpoint string          `json:"endpoint"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// WebhookRegistration is the body of POST /api/webhooks
type WebhookRegistration struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// MessageID is the gateway's message identifier: either a bare string or an
// object carrying the serialized form
type MessageID struct {
	Serialized string
}

// UnmarshalJSON accepts both "id" and {"_serialized": "id"}
func (m *MessageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Serialized = s
		return nil
	}

	var obj struct {
		ID         string `json:"id"`
		Serialized string `json:"_serialized"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	m.Serialized = obj.Serialized
	if m.Serialized == "" {
		m.Serialized = obj.ID
	}
	return nil
}

// SendTextResponse covers the response shapes of the gateway's sendText
// across engine versions
type SendTextResponse struct {
	ID   *MessageID `json:"id"`
	Data *struct {
		ID *MessageID `json:"id"`
	} `json:"_data"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// ResolveID picks the message id from id, _data.id or messageId, in that
// order
func (r *SendTextResponse) ResolveID() string {
	if r.ID != nil && r.ID.Serialized != "" {
		return r.ID.Serialized
	}
	if r.Data != nil && r.Data.ID != nil && r.Data.ID.Serialized != "" {
		return r.Data.ID.Serialized
	}
	return r.MessageID
}

// SessionResponse covers the session status shapes of the gateway
type SessionResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	State  string `json:"state"`
	Me     *struct {
		ID       string `json:"id"`
		PushName string `json:"pushName"`
	} `json:"me"`
}

// ErrorResponse represents error bodies from the gateway
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// WebhookEnvelope is the outer shape of every event the gateway posts
type WebhookEnvelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Session   string          `json:"session"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MessagePayload is the payload of message and message.any events
type MessagePayload struct {
	ID        MessageID       `json:"id"`
	Timestamp json.Number     `json:"timestamp"`
	From      string          `json:"from"`
	FromMe    bool            `json:"fromMe"`
	To        string          `json:"to"`
	Body      string          `json:"body"`
	HasMedia  bool            `json:"hasMedia"`
	Data      json.RawMessage `json:"_data,omitempty"`
}
