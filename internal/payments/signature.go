package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks the gateway's HMAC-SHA256 signatures.
type Signer struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewSigner returns a Signer. keySecret signs checkout payloads, webhookSecret
// signs webhook bodies.
func NewSigner(keySecret, webhookSecret string) *Signer {
	return &Signer{keySecret: []byte(keySecret), webhookSecret: []byte(webhookSecret)}
}

// PaymentSignature is hex(HMAC-SHA256(keySecret, gatewayOrderID + "|" + paymentID)).
func (s *Signer) PaymentSignature(gatewayOrderID, paymentID string) string {
	return sign(s.keySecret, []byte(gatewayOrderID+"|"+paymentID))
}

// VerifyPayment checks a checkout signature in constant time. Without a key
// secret nothing verifies.
func (s *Signer) VerifyPayment(gatewayOrderID, paymentID, signature string) bool {
	if len(s.keySecret) == 0 {
		return false
	}
	return hmac.Equal([]byte(s.PaymentSignature(gatewayOrderID, paymentID)), []byte(signature))
}

// WebhookConfigured reports whether a webhook secret is set.
func (s *Signer) WebhookConfigured() bool { return len(s.webhookSecret) > 0 }

// WebhookSignature is hex(HMAC-SHA256(webhookSecret, body)) over the raw body bytes.
func (s *Signer) WebhookSignature(body []byte) string {
	return sign(s.webhookSecret, body)
}

// VerifyWebhook checks the X-Razorpay-Signature header value against body.
func (s *Signer) VerifyWebhook(body []byte, signature string) bool {
	if !s.WebhookConfigured() {
		return false
	}
	return hmac.Equal([]byte(s.WebhookSignature(body)), []byte(signature))
}

func sign(secret, msg []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}
