// Package privacy masks personal data before it reaches the logs.
package privacy

import (
	"strings"

	"leadbridge/internal/constants"

	"github.com/sirupsen/logrus"
)

// MaskPhoneNumber hides every digit except the last four, keeping the
// original punctuation so the shape stays recognisable.
// "+55 66 99999-0000" -> "+** ** *****-0000"
func MaskPhoneNumber(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	keep := constants.DefaultPhoneMaskLength
	if digits <= keep {
		keep = 0
	}

	var b strings.Builder
	b.Grow(len(phone))
	seen := 0
	for _, r := range phone {
		if r < '0' || r > '9' {
			b.WriteRune(r)
			continue
		}
		seen++
		if seen > digits-keep {
			b.WriteRune(r)
		} else {
			b.WriteByte('*')
		}
	}
	return b.String()
}

// MaskChatID masks the user part of a gateway chat id and keeps the suffix.
// "556699990000@c.us" -> "********0000@c.us"
func MaskChatID(chatID string) string {
	user, domain, found := strings.Cut(chatID, "@")
	if !found {
		return MaskPhoneNumber(chatID)
	}
	return maskString(user, constants.DefaultPhoneMaskLength) + "@" + domain
}

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" {
		return maskString(email, 0)
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}

// MaskName keeps initials only. "Ana Souza" -> "A** S****"
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		words[i] = string(runes[0]) + strings.Repeat("*", len(runes)-1)
	}
	return strings.Join(words, " ")
}

// MaskMessageID masks a gateway message id of the form
// "<fromMe>_<chat>_<id>": the chat part as MaskChatID does and all but the
// last four characters of the id.
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	parts := strings.SplitN(messageID, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + MaskChatID(parts[1]) + "_" + maskString(parts[2], constants.DefaultPhoneMaskLength)
	}
	return maskString(messageID, constants.DefaultPhoneMaskLength)
}

func maskString(s string, keepLast int) string {
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields returns a copy of fields with personal values masked.
// With reveal set the fields are returned unchanged.
func MaskSensitiveFields(fields logrus.Fields, reveal bool) logrus.Fields {
	if fields == nil || reveal {
		return fields
	}

	masked := make(logrus.Fields, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "from_phone", "from", "to", "sender_id":
			masked[k] = MaskPhoneNumber(s)
		case "chat_id":
			masked[k] = MaskChatID(s)
		case "message_id":
			masked[k] = MaskMessageID(s)
		case "email":
			masked[k] = MaskEmail(s)
		case "name", "contact_name":
			masked[k] = MaskName(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
