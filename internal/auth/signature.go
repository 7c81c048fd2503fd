package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadbridge/pkg/constants"
)

const signaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of timestamp + "." + body
func Sign(secret, timestamp string, body []byte) string {
	return hex.EncodeToString(mac(secret, timestamp, body))
}

// SignatureHeaders returns the timestamp and signature header values for
// body signed at now
func SignatureHeaders(secret string, body []byte, now time.Time) (timestamp, signature string) {
	timestamp = strconv.FormatInt(now.Unix(), 10)
	return timestamp, signaturePrefix + Sign(secret, timestamp, body)
}

// VerifySignature checks signature against body and rejects timestamps
// further than maxSkew from now in either direction. signature may carry
// the "sha256=" prefix or be bare hex.
func VerifySignature(secret, timestamp, signature string, body []byte, now time.Time, maxSkew time.Duration) error {
	if secret == "" {
		return fmt.Errorf("no signing secret configured")
	}

	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return err
	}
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return fmt.Errorf("timestamp outside allowed window: skew %s exceeds %s", skew.Round(time.Second), maxSkew)
	}

	sig := strings.TrimSpace(signature)
	if len(sig) > len(signaturePrefix) && strings.EqualFold(sig[:len(signaturePrefix)], signaturePrefix) {
		sig = sig[len(signaturePrefix):]
	}
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("invalid signature encoding")
	}

	if !hmac.Equal(provided, mac(secret, timestamp, body)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// ParseTimestamp reads a unix timestamp in seconds, or milliseconds when
// the value is above 10^12
func ParseTimestamp(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	if n > constants.MillisecondTimestampThreshold {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}

func mac(secret, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return h.Sum(nil)
}
