package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a failed submission so the dispatcher can decide between
// retry and give-up.
type Kind int

const (
	// KindTransient covers network timeouts, node unavailability and similar
	// conditions that a bounded retry may clear.
	KindTransient Kind = iota

	// KindRejected covers signature or authorization failures on the ledger
	// side. Never retried.
	KindRejected

	// KindPrecondition covers calls whose target account is missing or in the
	// wrong state (e.g. crediting an agent that was never registered
	// on-chain). Never retried.
	KindPrecondition

	// KindAlreadyProcessed covers calls whose effect is already reflected
	// on-chain (e.g. duplicate agent registration). Treated as success.
	KindAlreadyProcessed
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindPrecondition:
		return "precondition_failed"
	case KindAlreadyProcessed:
		return "already_processed"
	default:
		return "unknown"
	}
}

// Error is a classified submission failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a classified ledger error of the given kind.
func IsKind(err error, kind Kind) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == kind
}

// classify wraps an RPC or confirmation failure with a Kind.
//
// The Solana RPC surface reports most failures as strings (preflight
// simulation logs, JSON-RPC messages), so classification matches on the
// stable substrings the node emits. Anything unrecognized is Rejected: a
// blind retry of an unknown failure risks double-crediting if the
// transaction actually landed.
func classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	kind := KindRejected

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTransient
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTransient
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case containsAny(msg,
			"already in use",
			"already processed",
			"already been processed",
			"alreadyprocessed"):
			kind = KindAlreadyProcessed
		case containsAny(msg,
			"accountnotfound",
			"could not find account",
			"account does not exist",
			"accountnotinitialized",
			"program expected this account to be already initialized"):
			kind = KindPrecondition
		case containsAny(msg,
			"connection refused",
			"connection reset",
			"no such host",
			"i/o timeout",
			"blockhash not found",
			"blockhashnotfound",
			"node is behind",
			"too many requests",
			"rate limit",
			"service unavailable",
			"bad gateway",
			"gateway timeout",
			"timed out awaiting confirmation"):
			kind = KindTransient
		}
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
