// Package external holds the boundary with outside services: the provider
// signature check on the way in, and the resilient HTTP client plus the ops
// alert webhook on the way out.
package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"brokerly/internal/types"
)

// WebhookVerifier authenticates provider deliveries. The provider signs the
// raw request body with HMAC-SHA256 and sends the hex digest in X-Signature.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier builds a verifier from the shared secret. An empty
// secret is rejected at server construction, not here.
func NewWebhookVerifier(secret types.SecretString) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret.Unmask())}
}

// Verify recomputes the HMAC over body and compares it to the claimed hex
// digest in constant time. Comparing digests (fixed length, uniformly
// distributed) rather than the hex strings keeps the comparison independent
// of attacker-controlled input length.
func (v *WebhookVerifier) Verify(body []byte, signatureHex string) bool {
	claimed, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), claimed)
}
