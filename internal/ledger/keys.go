package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// LoadKeypair reads the oracle's signing key from a Solana CLI keygen file
// (JSON array of 64 bytes). The key is read once at startup and treated as
// read-only afterwards.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("keypair path is empty")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return key, nil
}
