package translate

import (
	"strconv"

	"leadbridge/internal/models"
)

// BusinessEnvelope mirrors the webhook body of the WhatsApp Business Cloud
// API so downstream workflows built for it accept gateway traffic unchanged
type BusinessEnvelope struct {
	Object string          `json:"object"`
	Entry  []BusinessEntry `json:"entry"`
}

type BusinessEntry struct {
	ID      string           `json:"id"`
	Changes []BusinessChange `json:"changes"`
}

type BusinessChange struct {
	Field string        `json:"field"`
	Value BusinessValue `json:"value"`
}

type BusinessValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         BusinessMetadata  `json:"metadata"`
	Contacts         []BusinessContact `json:"contacts"`
	Messages         []BusinessMessage `json:"messages"`
}

type BusinessMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type BusinessContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

type BusinessMessage struct {
	From      string        `json:"from"`
	ID        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *BusinessText `json:"text,omitempty"`
}

type BusinessText struct {
	Body string `json:"body"`
}

// BusinessPayload wraps msg in the business webhook envelope. session
// stands in for the business account and phone number ids.
func BusinessPayload(msg models.NormalizedMessage, session string) BusinessEnvelope {
	contact := BusinessContact{WaID: msg.FromPhone}
	contact.Profile.Name = msg.ContactName

	message := BusinessMessage{
		From:      msg.FromPhone,
		ID:        msg.MessageID,
		Timestamp: strconv.FormatInt(msg.TimestampSeconds, 10),
		Type:      string(msg.Type),
	}
	if msg.Type == models.MessageTypeText {
		message.Text = &BusinessText{Body: msg.BodyText}
	}

	return BusinessEnvelope{
		Object: "whatsapp_business_account",
		Entry: []BusinessEntry{{
			ID: session,
			Changes: []BusinessChange{{
				Field: "messages",
				Value: BusinessValue{
					MessagingProduct: "whatsapp",
					Metadata:         BusinessMetadata{PhoneNumberID: session},
					Contacts:         []BusinessContact{contact},
					Messages:         []BusinessMessage{message},
				},
			}},
		}},
	}
}
