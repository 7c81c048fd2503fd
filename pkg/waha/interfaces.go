package waha

import (
	"context"

	"leadbridge/pkg/waha/types"
)

// Client is the outbound surface of the WhatsApp HTTP gateway
type Client interface {
	SendText(ctx context.Context, phone, text, session string) (*types.SendResult, error)
	GetSessionStatus(ctx context.Context, session string) (*types.SessionStatus, error)
	RegisterWebhook(ctx context.Context, url string, events []string) error
	StartSession(ctx context.Context, session string) error
	DefaultSession() string
}
