// Package signature computes and checks the hex HMAC-SHA256 signatures the
// gateway uses for checkout returns and webhook bodies.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func Sign(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the hex HMAC of data under secret.
// The comparison runs in constant time.
func Verify(secret string, data []byte, signature string) bool {
	expected := Sign(secret, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// PaymentPayload is the message the gateway signs when a buyer returns from
// checkout: "<order id>|<payment id>".
func PaymentPayload(gatewayOrderID, paymentID string) []byte {
	return []byte(gatewayOrderID + "|" + paymentID)
}
