package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// verifySignature verifies a GitHub X-Hub-Signature-256 header against the
// exact raw bytes of the request body.
//
// Uses constant-time comparison (crypto/subtle) to prevent timing attacks.
// A missing secret is a deployment error and fails closed: every event is
// rejected rather than accepted unverified.
//
// Returns nil if the signature is valid, error otherwise. All errors are
// generic to prevent information leakage.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return fmt.Errorf("webhook verification failed")
	}
	if signature == "" {
		return fmt.Errorf("webhook verification failed")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedMAC := mac.Sum(nil)

	actualMAC, err := parseSignature(signature)
	if err != nil {
		// Generic error - don't leak format details
		return fmt.Errorf("webhook verification failed")
	}

	if subtle.ConstantTimeCompare(expectedMAC, actualMAC) != 1 {
		return fmt.Errorf("webhook verification failed")
	}
	return nil
}

// parseSignature decodes the signature header. GitHub sends
// "sha256=<hex>"; plain hex is accepted for manual testing.
func parseSignature(signature string) ([]byte, error) {
	if strings.HasPrefix(signature, "sha256=") {
		hexSig := strings.TrimPrefix(signature, "sha256=")
		return hex.DecodeString(hexSig)
	}
	return hex.DecodeString(signature)
}

// computeSignature computes the hex HMAC-SHA256 of body. Used by tests.
func computeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// formatSignatureHeader renders a hex digest in GitHub's header format.
func formatSignatureHeader(hexSig string) string {
	return "sha256=" + hexSig
}
