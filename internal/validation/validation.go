package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/models"
	"leadbridge/pkg/waha"
)

// ValidatePhoneNumber checks that phone carries a plausible number of
// digits once formatting and chat suffixes are stripped
func ValidatePhoneNumber(field, phone string) error {
	if strings.TrimSpace(phone) == "" {
		return errors.NewValidationError(field, "is required")
	}

	digits := waha.NormalizePhone(phone)
	if len(digits) < constants.MinPhoneDigits {
		return errors.NewValidationError(field,
			fmt.Sprintf("must have at least %d digits", constants.MinPhoneDigits))
	}
	if len(digits) > constants.MaxPhoneDigits {
		return errors.NewValidationError(field,
			fmt.Sprintf("must have at most %d digits", constants.MaxPhoneDigits))
	}
	return nil
}

// ValidateSessionName validates session name format and length
func ValidateSessionName(sessionName string) error {
	if sessionName == "" {
		return errors.NewValidationError("session", "cannot be empty")
	}

	if len(sessionName) > constants.MaxSessionNameLength {
		return errors.NewValidationError("session",
			fmt.Sprintf("too long (max %d characters)", constants.MaxSessionNameLength))
	}

	for _, char := range sessionName {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return errors.NewValidationError("session",
				"must contain only letters, numbers, underscores, and dashes")
		}
	}

	return nil
}

// ValidateStringLength validates string length in characters
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(value)
	if n < minLength {
		return errors.NewValidationError(fieldName,
			fmt.Sprintf("too short (min %d characters)", minLength))
	}

	if n > maxLength {
		return errors.NewValidationError(fieldName,
			fmt.Sprintf("too long (max %d characters)", maxLength))
	}

	return nil
}

// ValidateEmail performs a shallow shape check; deliverability is the
// downstream workflow's problem
func ValidateEmail(email string) error {
	if len(email) > constants.MaxEmailLength {
		return errors.NewValidationError("email", "too long")
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return errors.NewValidationError("email", "is not a valid address")
	}
	return nil
}

// ValidateHTTPRequestSize rejects requests whose declared length exceeds
// maxSizeBytes. Unknown lengths pass; the body reader enforces the limit.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.NewValidationError("body",
			fmt.Sprintf("too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}

// ValidateLeadRequest checks an inject-lead body. Name and phone are
// required; source, when present, must be a known lead source.
func ValidateLeadRequest(req models.LeadRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.NewValidationError("name", "is required")
	}
	if err := ValidateStringLength(req.Name, "name", 1, constants.MaxLeadNameLength); err != nil {
		return err
	}
	if err := ValidatePhoneNumber("phone", req.Phone); err != nil {
		return err
	}
	if req.Email != "" {
		if err := ValidateEmail(req.Email); err != nil {
			return err
		}
	}
	if err := ValidateStringLength(req.Message, "message", 0, constants.MaxMessageLength); err != nil {
		return err
	}
	if req.Source != "" && !models.LeadSource(req.Source).Valid() {
		return errors.NewValidationError("source", "must be one of manual, webhook, test")
	}
	return nil
}

// ValidateSendRequest checks a send-message body
func ValidateSendRequest(req models.OutboundSendRequest) error {
	if err := ValidatePhoneNumber("phone", req.Phone); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return errors.NewValidationError("message", "is required")
	}
	if err := ValidateStringLength(req.Text, "message", 1, constants.MaxMessageLength); err != nil {
		return err
	}
	if req.SessionID != "" {
		return ValidateSessionName(req.SessionID)
	}
	return nil
}
