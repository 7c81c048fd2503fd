package models

import (
	"encoding/json"
	"time"
)

// Gateway webhook event types
const (
	EventMessage         = "message"
	EventMessageAny      = "message.any"
	EventMessageReaction = "message.reaction"
	EventSessionStatus   = "session.status"
)

// InboundEvent is a gateway webhook event flattened to the fields the bridge reads.
type InboundEvent struct {
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	MessageID string          `json:"messageId,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	Body      string          `json:"body,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	FromMe    bool            `json:"fromMe,omitempty"`
	HasMedia  bool            `json:"hasMedia,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// MessageType classifies a normalized message
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeOther MessageType = "other"
)

// NormalizedMessage is the canonical message forwarded downstream
type NormalizedMessage struct {
	FromPhone        string      `json:"fromPhone"`
	MessageID        string      `json:"messageId"`
	TimestampSeconds int64       `json:"timestampSeconds"`
	Type             MessageType `json:"type"`
	BodyText         string      `json:"bodyText"`
	ContactName      string      `json:"contactName"`
}

// LeadSource identifies how a lead entered the system
type LeadSource string

const (
	LeadSourceManual  LeadSource = "manual"
	LeadSourceWebhook LeadSource = "webhook"
	LeadSourceTest    LeadSource = "test"
)

// Valid reports whether s is one of the known lead sources
func (s LeadSource) Valid() bool {
	switch s {
	case LeadSourceManual, LeadSourceWebhook, LeadSourceTest:
		return true
	}
	return false
}

// LeadRecord is a contact-intent record forwarded to lead capture
type LeadRecord struct {
	Source     LeadSource `json:"source"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email,omitempty"`
	Message    string     `json:"message,omitempty"`
	Timestamp  string     `json:"timestamp"`
	CampaignID string     `json:"campaignId"`
}

// LeadRequest is the partial lead accepted by the inject endpoint
type LeadRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message,omitempty"`
	Source  string `json:"source,omitempty"`
}

// OutboundSendRequest is an operator or workflow initiated send
type OutboundSendRequest struct {
	Phone     string `json:"phone"`
	Text      string `json:"message"`
	SessionID string `json:"session,omitempty"`
}

// AuthMethod names the proof that authenticated a request
type AuthMethod string

const (
	AuthMethodBearerToken      AuthMethod = "bearerToken"
	AuthMethodSharedSecret     AuthMethod = "sharedSecret"
	AuthMethodWebhookSignature AuthMethod = "webhookSignature"
)

// AuthContext is the result of a successful authentication
type AuthContext struct {
	Method     AuthMethod `json:"method"`
	SourceID   string     `json:"sourceId"`
	ValidUntil time.Time  `json:"validUntil"`
}
