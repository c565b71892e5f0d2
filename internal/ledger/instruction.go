package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Call names one program instruction together with its ordered arguments and
// the accounts it binds. Every account the instruction touches is an explicit
// input here; nothing is inferred client-side, because the account mapping is
// correctness-critical.
type Call struct {
	// Instruction is the program method name in snake_case, as declared
	// on-chain (e.g. "add_reputation").
	Instruction string

	// Args are encoded in order after the instruction discriminator.
	Args []Arg

	// Accounts are passed to the program in order.
	Accounts []Binding
}

// Arg is a single typed instruction argument. The name is kept for logging.
type Arg struct {
	Name  string
	Value any
}

// Binding assigns an address to one of the instruction's account roles.
type Binding struct {
	Role     string
	Address  solana.PublicKey
	Writable bool
	Signer   bool
}

// instructionDiscriminator returns the 8-byte Anchor method discriminator:
// sha256("global:<name>")[:8].
func instructionDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:8]
}

// buildInstruction assembles the wire-level instruction for a Call.
func buildInstruction(programID solana.PublicKey, call Call) (solana.Instruction, error) {
	if call.Instruction == "" {
		return nil, fmt.Errorf("instruction name is empty")
	}
	if len(call.Accounts) == 0 {
		return nil, fmt.Errorf("instruction %q has no account bindings", call.Instruction)
	}

	buf := new(bytes.Buffer)
	buf.Write(instructionDiscriminator(call.Instruction))

	enc := bin.NewBorshEncoder(buf)
	for _, arg := range call.Args {
		if err := enc.Encode(arg.Value); err != nil {
			return nil, fmt.Errorf("encode arg %q: %w", arg.Name, err)
		}
	}

	// The system program's address is the all-zero key, so an unset Address
	// cannot be told apart from a legitimate one here; bindings are taken as
	// given.
	metas := make(solana.AccountMetaSlice, 0, len(call.Accounts))
	for _, b := range call.Accounts {
		metas = append(metas, solana.NewAccountMeta(b.Address, b.Writable, b.Signer))
	}

	return solana.NewInstruction(programID, metas, buf.Bytes()), nil
}
