package waha

import (
	"strings"

	"leadbridge/pkg/constants"
)

// NormalizePhone reduces a phone number or chat id to its digits. Anything
// from the first '@' on is dropped, so "5511999990000@c.us" and
// "+55 (11) 99999-0000" both become "5511999990000". The result never
// changes when normalized again.
func NormalizePhone(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ChatID returns the contact chat id for a phone number
func ChatID(phone string) string {
	return NormalizePhone(phone) + constants.ContactChatSuffix
}

// IsGroupChat reports whether id addresses a group chat
func IsGroupChat(id string) bool {
	return strings.HasSuffix(id, constants.GroupChatSuffix)
}
