package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

func randomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(buf))[:n]
}

// GeneratePurchaseReference returns a human-readable unique purchase
// reference, e.g. EVT-3F9A1C02.
func GeneratePurchaseReference() string {
	return fmt.Sprintf("EVT-%s", randomHex(8))
}

// GeneratePaymentReference returns a unique payment reference, e.g.
// PAY-9C2E41AB0D7F.
func GeneratePaymentReference() string {
	return fmt.Sprintf("PAY-%s", randomHex(12))
}

// GenerateRefundReference returns a unique refund reference, e.g.
// RF-4B1D9E72A6C0.
func GenerateRefundReference() string {
	return fmt.Sprintf("RF-%s", randomHex(12))
}
