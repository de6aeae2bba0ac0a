package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Parts of a checkout confirmation are joined with this delimiter before signing
const signatureDelimiter = "|"

// SignatureVerifier validates gateway signatures. Implementations are pure and never log key material.
type SignatureVerifier interface {
	// VerifyCheckout checks HMAC(checkout secret, order_id|payment_id)
	VerifyCheckout(orderID, paymentID, signature string) bool
	// VerifyWebhook checks HMAC(webhook secret, raw body)
	VerifyWebhook(body []byte, signature string) bool
}

// HMACSignatureVerifier verifies HMAC-SHA256 hex signatures under two distinct secrets
type HMACSignatureVerifier struct {
	checkoutSecret string
	webhookSecret  []byte
}

// NewHMACSignatureVerifier creates a verifier for the checkout and webhook secrets
func NewHMACSignatureVerifier(checkoutSecret, webhookSecret string) SignatureVerifier {
	return &HMACSignatureVerifier{
		checkoutSecret: checkoutSecret,
		webhookSecret:  []byte(webhookSecret),
	}
}

func (v *HMACSignatureVerifier) VerifyCheckout(orderID, paymentID, signature string) bool {
	return VerifySignature(v.checkoutSecret, []string{orderID, paymentID}, signature)
}

func (v *HMACSignatureVerifier) VerifyWebhook(body []byte, signature string) bool {
	return verifyHMACSHA256(v.webhookSecret, body, signature)
}

// VerifySignature checks candidate against HMAC-SHA256(secret, parts joined by "|").
// Empty parts and parts containing the delimiter are rejected, since
// ("a|b", "c") and ("a", "b|c") would otherwise share a signature.
func VerifySignature(secret string, parts []string, candidate string) bool {
	if len(parts) == 0 {
		return false
	}
	for _, part := range parts {
		if part == "" || strings.Contains(part, signatureDelimiter) {
			return false
		}
	}
	return verifyHMACSHA256([]byte(secret), []byte(strings.Join(parts, signatureDelimiter)), candidate)
}

// SignHMACSHA256 returns the lower-case hex HMAC-SHA256 of message under secret
func SignHMACSHA256(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignParts signs parts joined by "|", the counterpart of VerifySignature
func SignParts(secret string, parts ...string) string {
	return SignHMACSHA256(secret, []byte(strings.Join(parts, signatureDelimiter)))
}

// SignCheckout returns the signature the gateway attaches to a checkout confirmation
func SignCheckout(secret, orderID, paymentID string) string {
	return SignParts(secret, orderID, paymentID)
}

func verifyHMACSHA256(secret, message []byte, candidate string) bool {
	if len(secret) == 0 || candidate == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(candidate))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), given)
}
