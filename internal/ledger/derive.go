package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AgentSeed is the namespace tag for agent account derivation. It is shared
// with the on-chain program; changing it changes every derived address, so
// any future change must be versioned alongside a program upgrade.
const AgentSeed = "agent"

// DeriveAgentAddress computes the deterministic agent account address for an
// owner wallet. Pure function of (program, owner); the bump is returned for
// callers that need to reproduce the derivation.
func DeriveAgentAddress(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(AgentSeed), owner.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive agent address: %w", err)
	}
	return addr, bump, nil
}
