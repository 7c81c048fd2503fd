// Package translate turns gateway events into the normalized business
// message shape consumed by the downstream workflows. Everything here is
// pure: no I/O and no clock.
package translate

import (
	"encoding/json"
	"strings"

	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/models"
	pkgconstants "leadbridge/pkg/constants"
	"leadbridge/pkg/waha"
)

// SkipReason explains why an event was not forwarded
type SkipReason string

const (
	SkipUnsupportedEvent SkipReason = "unsupported_event"
	SkipFromMe           SkipReason = "from_me"
	SkipGroup            SkipReason = "group"
	SkipDuplicate        SkipReason = "duplicate"
)

// Translation is either a message to forward or a skip marker
type Translation struct {
	Message *models.NormalizedMessage
	Skip    SkipReason
}

// Skipped reports whether the event must not be forwarded
func (t Translation) Skipped() bool {
	return t.Message == nil
}

func skip(reason SkipReason) Translation {
	return Translation{Skip: reason}
}

// Translator converts inbound gateway events
type Translator struct {
	defaultCountryCode string
}

// New creates a translator. A non-empty defaultCountryCode is prefixed to
// sender numbers that look national (10 or 11 digits).
func New(defaultCountryCode string) *Translator {
	return &Translator{defaultCountryCode: defaultCountryCode}
}

// Translate converts ev into a normalized message. Only "message" events
// are translated; everything else comes back as a skip marker.
func (t *Translator) Translate(ev models.InboundEvent) (Translation, error) {
	if ev.EventType != models.EventMessage {
		return skip(SkipUnsupportedEvent), nil
	}
	if ev.FromMe {
		return skip(SkipFromMe), nil
	}
	if waha.IsGroupChat(ev.SenderID) {
		return skip(SkipGroup), nil
	}

	phone := t.normalizeSender(ev.SenderID)
	if phone == "" {
		return Translation{}, errors.NewValidationError("senderId", "is required")
	}

	msgType := models.MessageTypeText
	if ev.HasMedia {
		msgType = models.MessageTypeOther
	}

	return Translation{Message: &models.NormalizedMessage{
		FromPhone:        phone,
		MessageID:        ev.MessageID,
		TimestampSeconds: TimestampSeconds(ev.Timestamp),
		Type:             msgType,
		BodyText:         ev.Body,
		ContactName:      ContactName(ev.Raw),
	}}, nil
}

func (t *Translator) normalizeSender(senderID string) string {
	digits := waha.NormalizePhone(senderID)
	cc := t.defaultCountryCode
	if cc == "" || !isNational(digits) {
		return digits
	}
	// "15551234567" with cc "1" is already international
	if strings.HasPrefix(digits, cc) && isNational(digits[len(cc):]) {
		return digits
	}
	return cc + digits
}

func isNational(digits string) bool {
	return len(digits) == 10 || len(digits) == 11
}

// TimestampSeconds reads millisecond timestamps (above 10^12) as seconds.
// Anything else, zero included, is already in seconds.
func TimestampSeconds(ts int64) int64 {
	if ts > pkgconstants.MillisecondTimestampThreshold {
		return ts / 1000
	}
	return ts
}

// ContactName picks the sender's display name from the raw payload:
// _data.notifyName, notifyName, pushName, then pushname
func ContactName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return constants.DefaultContactName
	}

	var fields struct {
		Data *struct {
			NotifyName string `json:"notifyName"`
		} `json:"_data"`
		NotifyName string `json:"notifyName"`
		PushName   string `json:"pushName"`
		Pushname   string `json:"pushname"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return constants.DefaultContactName
	}

	candidates := []string{fields.NotifyName, fields.PushName, fields.Pushname}
	if fields.Data != nil {
		candidates = append([]string{fields.Data.NotifyName}, candidates...)
	}
	for _, name := range candidates {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return constants.DefaultContactName
}
