// Package eventledger records which webhook deliveries have already produced
// a ledger submission, so sender redeliveries never double-credit.
package eventledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcome is the terminal state recorded for a delivery.
type Outcome string

const (
	// OutcomePending marks a claimed delivery whose ledger call has not yet
	// resolved. It is the only non-terminal outcome.
	OutcomePending Outcome = "pending"

	OutcomeCredited        Outcome = "credited"
	OutcomeAlreadyCredited Outcome = "already_credited"
	OutcomeRejected        Outcome = "rejected"
	OutcomeError           Outcome = "error"
)

// Terminal reports whether o is a final state.
func (o Outcome) Terminal() bool {
	return o != OutcomePending
}

// Claim is the result of attempting to claim a delivery for processing.
type Claim struct {
	// Claimed is true when the caller won the claim and must Finalize.
	Claimed bool

	// Outcome and TxRef hold the stored result when Claimed is false.
	Outcome Outcome
	TxRef   string
}

// DefaultStaleClaimAfter bounds how long a pending claim from a crashed
// process blocks redeliveries of the same delivery ID.
const DefaultStaleClaimAfter = 5 * time.Minute

type Ledger struct {
	db         *sql.DB
	staleAfter time.Duration

	// inflight serializes concurrent claims for the same delivery ID within
	// this process: losers wait for the winner's Finalize instead of polling.
	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func New(db *sql.DB) *Ledger {
	return &Ledger{
		db:         db,
		staleAfter: DefaultStaleClaimAfter,
		inflight:   make(map[string]chan struct{}),
	}
}

// Claim atomically claims deliveryID for processing. Exactly one caller wins
// for a given delivery ID; concurrent callers block until the winner
// finalizes, then receive the stored outcome. A delivery whose stored outcome
// is OutcomeError is re-claimable, so sender retries can succeed once a
// transient condition clears. All other terminal outcomes replay as-is.
func (l *Ledger) Claim(ctx context.Context, deliveryID string) (Claim, error) {
	if deliveryID == "" {
		return Claim{}, fmt.Errorf("delivery id is empty")
	}

	for {
		l.mu.Lock()
		if ch, ok := l.inflight[deliveryID]; ok {
			l.mu.Unlock()
			select {
			case <-ch:
				continue // winner finalized; re-read the stored outcome
			case <-ctx.Done():
				return Claim{}, ctx.Err()
			}
		}

		claim, err := l.tryClaim(ctx, deliveryID)
		if err != nil {
			l.mu.Unlock()
			return Claim{}, err
		}
		if claim.Claimed {
			l.inflight[deliveryID] = make(chan struct{})
		}
		l.mu.Unlock()
		return claim, nil
	}
}

// tryClaim performs the claim-or-read against the database. Caller holds l.mu.
func (l *Ledger) tryClaim(ctx context.Context, deliveryID string) (Claim, error) {
	now := time.Now().UTC()
	nowS := now.Format(time.RFC3339Nano)

	res, err := l.db.ExecContext(ctx, `
INSERT INTO processed_events(delivery_id, outcome, claimed_at)
VALUES(?, ?, ?)
ON CONFLICT(delivery_id) DO NOTHING;
`, deliveryID, OutcomePending, nowS)
	if err != nil {
		return Claim{}, fmt.Errorf("claim delivery: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return Claim{Claimed: true}, nil
	}

	var (
		outcomeS  string
		txRef     sql.NullString
		claimedAt string
	)
	err = l.db.QueryRowContext(ctx,
		"SELECT outcome, tx_ref, claimed_at FROM processed_events WHERE delivery_id = ?;",
		deliveryID).Scan(&outcomeS, &txRef, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Row vanished between insert and read; treat as contended.
		return Claim{Outcome: OutcomePending}, nil
	}
	if err != nil {
		return Claim{}, fmt.Errorf("read processed event: %w", err)
	}

	outcome := Outcome(outcomeS)
	switch outcome {
	case OutcomeError:
		// Retryable terminal state: take over the claim.
		res, err := l.db.ExecContext(ctx, `
UPDATE processed_events
SET outcome = ?, tx_ref = NULL, claimed_at = ?, finalized_at = NULL
WHERE delivery_id = ? AND outcome = ?;
`, OutcomePending, nowS, deliveryID, OutcomeError)
		if err != nil {
			return Claim{}, fmt.Errorf("reclaim delivery: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return Claim{Claimed: true}, nil
		}
		return Claim{Outcome: OutcomePending}, nil

	case OutcomePending:
		// A claim from a previous process that never finalized (crash) must
		// not block this delivery ID forever.
		if t, perr := time.Parse(time.RFC3339Nano, claimedAt); perr == nil && now.Sub(t) > l.staleAfter {
			res, err := l.db.ExecContext(ctx, `
UPDATE processed_events
SET claimed_at = ?
WHERE delivery_id = ? AND outcome = ? AND claimed_at = ?;
`, nowS, deliveryID, OutcomePending, claimedAt)
			if err != nil {
				return Claim{}, fmt.Errorf("takeover stale claim: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 1 {
				return Claim{Claimed: true}, nil
			}
		}
		return Claim{Outcome: OutcomePending}, nil

	default:
		c := Claim{Outcome: outcome}
		if txRef.Valid {
			c.TxRef = txRef.String
		}
		return c, nil
	}
}

// Finalize records the terminal outcome for a claimed delivery and wakes any
// waiters. It must be called exactly once per successful Claim, even when the
// inbound connection has gone away.
func (l *Ledger) Finalize(ctx context.Context, deliveryID string, outcome Outcome, txRef string) error {
	if !outcome.Terminal() {
		return fmt.Errorf("outcome %q is not terminal", outcome)
	}

	var txRefVal any
	if txRef != "" {
		txRefVal = txRef
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := l.db.ExecContext(ctx, `
UPDATE processed_events
SET outcome = ?, tx_ref = ?, finalized_at = ?
WHERE delivery_id = ?;
`, outcome, txRefVal, now, deliveryID)

	l.mu.Lock()
	if ch, ok := l.inflight[deliveryID]; ok {
		close(ch)
		delete(l.inflight, deliveryID)
	}
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("finalize delivery: %w", err)
	}
	return nil
}
