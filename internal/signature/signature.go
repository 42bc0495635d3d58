package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
)

// Verifier checks HMAC-SHA256 signatures computed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify compares the hex HMAC of body against received, ignoring case.
// body must be the bytes exactly as they arrived on the wire.
func (v *Verifier) Verify(body []byte, received string) (bool, error) {
	if len(v.secret) == 0 {
		return false, apperr.New(apperr.KindConfiguration, "callback signing secret is not configured")
	}

	received = strings.ToLower(strings.TrimSpace(received))
	if received == "" {
		return false, nil
	}

	expected := v.compute(body)
	return hmac.Equal([]byte(expected), []byte(received)), nil
}

// Sign returns the hex HMAC over the concatenation of parts.
func (v *Verifier) Sign(parts ...string) string {
	return v.compute([]byte(strings.Join(parts, "")))
}

func (v *Verifier) compute(data []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
