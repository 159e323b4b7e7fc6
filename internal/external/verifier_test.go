package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"brokerly/internal/types"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifier_ValidSignature(t *testing.T) {
	v := NewWebhookVerifier(types.SecretString("whsec_secret"))

	bodies := [][]byte{
		[]byte(`{}`),
		[]byte(`{"meta":{"event_name":"subscription_created"}}`),
		[]byte(""),
		[]byte("not json at all"),
	}
	for _, body := range bodies {
		if !v.Verify(body, sign(body, "whsec_secret")) {
			t.Errorf("valid signature rejected for body %q", body)
		}
	}
}

func TestWebhookVerifier_InvalidSignature(t *testing.T) {
	v := NewWebhookVerifier(types.SecretString("whsec_secret"))
	body := []byte(`{"meta":{"event_name":"subscription_created"}}`)

	cases := map[string]string{
		"wrong secret":    sign(body, "other-secret"),
		"tampered body":   sign([]byte(`{"meta":{"event_name":"subscription_cancelled"}}`), "whsec_secret"),
		"not hex":         "zzzz-not-hex",
		"truncated":       sign(body, "whsec_secret")[:16],
		"empty signature": "",
	}
	for name, sig := range cases {
		if v.Verify(body, sig) {
			t.Errorf("%s: invalid signature accepted", name)
		}
	}
}
