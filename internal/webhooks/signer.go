package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Headers attached to every outbound delivery.
const (
	SignatureHeader = "X-Signalement-Signature"
	EventTypeHeader = "X-Signalement-Event"
	EventIDHeader   = "X-Signalement-Event-Id"
)

// Sign computes the signature header value for a payload:
// "sha256=" followed by the hex HMAC-SHA256 of the body under the
// subscription secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header against a payload.
// Intended for receiver-side use and tests.
func VerifySignature(secret, header string, payload []byte) bool {
	expected, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal([]byte(expected), []byte(hex.EncodeToString(mac.Sum(nil))))
}
