// Package ledger submits state-mutating calls to the AgentLink program on
// Solana. It owns address derivation, instruction encoding, signing, and the
// wait for confirmed commitment; callers see a transaction signature or a
// classified failure.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/abhinag007/AgentLink/internal/config"
)

// statusPollInterval is how often the client polls for transaction
// confirmation after submission.
const statusPollInterval = 2 * time.Second

// rpcAPI is the slice of the Solana JSON-RPC surface the client needs.
// *rpc.Client satisfies it; tests substitute a fake.
type rpcAPI interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Client signs and submits program calls, retrying transient failures with
// exponential backoff inside a bounded budget.
type Client struct {
	rpc        rpcAPI
	endpoint   string
	programID  solana.PublicKey
	signer     solana.PrivateKey
	commitment rpc.CommitmentType

	confirmTimeout time.Duration
	maxAttempts    int
	backoffBase    time.Duration

	logger *slog.Logger
}

// New constructs a Client from deployment configuration. The signing key is
// shared freely across goroutines; it is never mutated after construction.
func New(cfg config.Solana, signer solana.PrivateKey, logger *slog.Logger) (*Client, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("parse program id %q: %w", cfg.ProgramID, err)
	}

	commitment := rpc.CommitmentConfirmed
	if cfg.Commitment == "finalized" {
		commitment = rpc.CommitmentFinalized
	}

	return &Client{
		rpc:            rpc.New(cfg.RPCURL),
		endpoint:       cfg.RPCURL,
		programID:      programID,
		signer:         signer,
		commitment:     commitment,
		confirmTimeout: cfg.ConfirmTimeout,
		maxAttempts:    cfg.Retry.MaxAttempts,
		backoffBase:    cfg.Retry.BackoffBase,
		logger:         logger,
	}, nil
}

// Endpoint returns the RPC endpoint the client targets.
func (c *Client) Endpoint() string { return c.endpoint }

// ProgramID returns the on-chain program the client submits to.
func (c *Client) ProgramID() solana.PublicKey { return c.programID }

// SignerAddress returns the oracle's own public key (fee payer and signer).
func (c *Client) SignerAddress() solana.PublicKey { return c.signer.PublicKey() }

// AddReputation credits the agent account owned by owner. The oracle signs
// and pays fees; the owner key only participates in derivation and the
// program's seed check.
func (c *Client) AddReputation(ctx context.Context, owner solana.PublicKey) (solana.Signature, error) {
	agentAddr, _, err := DeriveAgentAddress(c.programID, owner)
	if err != nil {
		return solana.Signature{}, err
	}

	return c.Submit(ctx, Call{
		Instruction: "add_reputation",
		Accounts: []Binding{
			{Role: "agent_account", Address: agentAddr, Writable: true},
			{Role: "owner", Address: owner},
			{Role: "oracle", Address: c.signer.PublicKey(), Writable: true, Signer: true},
			{Role: "system_program", Address: solana.SystemProgramID},
		},
	})
}

// RegisterAgent creates the oracle's own agent account on-chain. Duplicate
// registration classifies as AlreadyProcessed, which callers treat as success.
func (c *Client) RegisterAgent(ctx context.Context, name, github string) (solana.Signature, error) {
	owner := c.signer.PublicKey()
	agentAddr, _, err := DeriveAgentAddress(c.programID, owner)
	if err != nil {
		return solana.Signature{}, err
	}

	return c.Submit(ctx, Call{
		Instruction: "register_agent",
		Args: []Arg{
			{Name: "name", Value: name},
			{Name: "github", Value: github},
		},
		Accounts: []Binding{
			{Role: "agent_account", Address: agentAddr, Writable: true},
			{Role: "user", Address: owner, Writable: true, Signer: true},
			{Role: "system_program", Address: solana.SystemProgramID},
		},
	})
}

// Submit signs and sends one call, waits for the configured commitment, and
// retries transient failures. The budget counts retries beyond the first
// attempt, so maxAttempts transient failures still leave one try. Non-transient
// classifications return immediately.
func (c *Client) Submit(ctx context.Context, call Call) (solana.Signature, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts+1; attempt++ {
		if attempt > 1 {
			backoff := c.backoffBase << (attempt - 2)
			c.logger.Warn("retrying ledger submission",
				"instruction", call.Instruction,
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", lastErr,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return solana.Signature{}, classify(call.Instruction, ctx.Err())
			}
		}

		sig, err := c.submitOnce(ctx, call)
		if err == nil {
			c.logger.Info("ledger submission confirmed",
				"instruction", call.Instruction,
				"tx", sig.String(),
				"attempt", attempt,
			)
			return sig, nil
		}
		if !IsKind(err, KindTransient) {
			return solana.Signature{}, err
		}
		lastErr = err
	}
	return solana.Signature{}, lastErr
}

func (c *Client) submitOnce(ctx context.Context, call Call) (solana.Signature, error) {
	ix, err := buildInstruction(c.programID, call)
	if err != nil {
		return solana.Signature{}, &Error{Kind: KindRejected, Op: call.Instruction, Err: err}
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, classify(call.Instruction, err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, &Error{Kind: KindRejected, Op: call.Instruction, Err: err}
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.signer.PublicKey()) {
			return &c.signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, &Error{Kind: KindRejected, Op: call.Instruction, Err: fmt.Errorf("sign transaction: %w", err)}
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, classify(call.Instruction, err)
	}

	if err := c.awaitCommitment(ctx, call.Instruction, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// awaitCommitment polls signature status until the configured commitment
// level is reached. A submitted-but-unconfirmed signature may still be
// dropped or reordered, so success is only reported from here.
func (c *Client) awaitCommitment(ctx context.Context, op string, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return classify(op, fmt.Errorf("transaction failed on-chain: %v", st.Err))
			}
			if commitmentReached(st.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return classify(op, fmt.Errorf("timed out awaiting confirmation of %s: %w", sig, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func commitmentReached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}
