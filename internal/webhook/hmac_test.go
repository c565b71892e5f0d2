package webhook

import (
	"encoding/hex"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"action":"closed","pull_request":{"merged":true}}`)

	expectedSig := computeSignature(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{
			name:      "valid signature - plain hex",
			body:      body,
			signature: expectedSig,
			secret:    secret,
			wantErr:   false,
		},
		{
			name:      "valid signature - GitHub format",
			body:      body,
			signature: formatSignatureHeader(expectedSig),
			secret:    secret,
			wantErr:   false,
		},
		{
			name:      "invalid signature - wrong signature",
			body:      body,
			signature: "0000000000000000000000000000000000000000000000000000000000000000",
			secret:    secret,
			wantErr:   true,
		},
		{
			name:      "invalid signature - tampered body",
			body:      []byte(`{"action":"closed","pull_request":{"merged":false}}`),
			signature: expectedSig,
			secret:    secret,
			wantErr:   true,
		},
		{
			name:      "invalid signature - wrong secret",
			body:      body,
			signature: expectedSig,
			secret:    "wrong-secret",
			wantErr:   true,
		},
		{
			name:      "invalid signature - empty signature",
			body:      body,
			signature: "",
			secret:    secret,
			wantErr:   true,
		},
		{
			name:      "invalid signature - empty secret fails closed",
			body:      body,
			signature: expectedSig,
			secret:    "",
			wantErr:   true,
		},
		{
			name:      "invalid signature - malformed hex",
			body:      body,
			signature: "not-valid-hex",
			secret:    secret,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySignature(tt.body, tt.signature, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}

			// All errors should be generic (no information leakage)
			if err != nil && err.Error() != "webhook verification failed" {
				t.Errorf("error should be generic, got: %v", err)
			}
		})
	}
}

// Flipping any single bit of a valid signature must fail verification.
func TestVerifySignature_BitFlip(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"action":"closed"}`)

	raw, err := hex.DecodeString(computeSignature(body, secret))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(raw))
			copy(mutated, raw)
			mutated[i] ^= 1 << bit

			sig := formatSignatureHeader(hex.EncodeToString(mutated))
			if err := verifySignature(body, sig, secret); err == nil {
				t.Fatalf("mutated signature (byte %d bit %d) unexpectedly verified", i, bit)
			}
		}
	}
}

func TestComputeSignature(t *testing.T) {
	body := []byte("test payload")
	secret := "test-secret"

	sig := computeSignature(body, secret)

	// Should return lowercase hex string
	if len(sig) != 64 { // SHA256 = 32 bytes = 64 hex chars
		t.Errorf("signature length = %d, want 64", len(sig))
	}

	// Should be deterministic
	if sig != computeSignature(body, secret) {
		t.Error("signature should be deterministic")
	}

	// Different body should produce different signature
	if sig == computeSignature([]byte("different"), secret) {
		t.Error("different body should produce different signature")
	}
}
