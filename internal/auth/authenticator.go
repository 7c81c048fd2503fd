// Package auth authenticates inbound requests. A request proves itself
// with a bearer token, the shared webhook secret, or an HMAC signature over
// its body, tried in that order.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/httputil"
	"leadbridge/internal/models"
)

// Authenticator checks the configured proofs
type Authenticator struct {
	bearerToken   string
	webhookSecret string
	maxSkew       time.Duration
	now           func() time.Time
}

// NewAuthenticator creates an authenticator from the auth configuration
func NewAuthenticator(cfg models.AuthConfig) *Authenticator {
	skew := time.Duration(cfg.MaxSkewSec) * time.Second
	if skew <= 0 {
		skew = time.Duration(constants.DefaultWebhookMaxSkewSec) * time.Second
	}
	return &Authenticator{
		bearerToken:   cfg.BearerToken,
		webhookSecret: cfg.WebhookSecret,
		maxSkew:       skew,
		now:           time.Now,
	}
}

// Authenticate returns the context of the first proof r satisfies. body is
// the raw request body, needed for signature checks.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*models.AuthContext, error) {
	now := a.now()
	source := httputil.SourceID(r)

	if token, ok := bearerToken(r); ok && secretEqual(token, a.bearerToken) {
		return &models.AuthContext{Method: models.AuthMethodBearerToken, SourceID: source, ValidUntil: now}, nil
	}

	if secretEqual(r.Header.Get(constants.HeaderWebhookSecret), a.webhookSecret) {
		return &models.AuthContext{Method: models.AuthMethodSharedSecret, SourceID: source, ValidUntil: now}, nil
	}

	timestamp := r.Header.Get(constants.HeaderWebhookTimestamp)
	signature := r.Header.Get(constants.HeaderWebhookSignature)
	if timestamp == "" || signature == "" || a.webhookSecret == "" {
		return nil, errors.NewAuthError("no valid credentials")
	}

	if err := VerifySignature(a.webhookSecret, timestamp, signature, body, now, a.maxSkew); err != nil {
		return nil, errors.NewAuthError(err.Error())
	}

	ts, _ := ParseTimestamp(timestamp)
	return &models.AuthContext{
		Method:     models.AuthMethodWebhookSignature,
		SourceID:   source,
		ValidUntil: ts.Add(a.maxSkew),
	}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// secretEqual compares in constant time; an unconfigured secret never
// matches
func secretEqual(provided, configured string) bool {
	if configured == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}
