package eventledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abhinag007/AgentLink/internal/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "oracle.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestClaimThenFinalize(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	ctx := context.Background()

	claim, err := l.Claim(ctx, "d1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claim.Claimed {
		t.Fatalf("first claim not won: %#v", claim)
	}

	if err := l.Finalize(ctx, "d1", OutcomeCredited, "tx-abc"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	replay, err := l.Claim(ctx, "d1")
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if replay.Claimed {
		t.Fatal("duplicate delivery won a second claim")
	}
	if replay.Outcome != OutcomeCredited || replay.TxRef != "tx-abc" {
		t.Errorf("replay = %#v, want credited/tx-abc", replay)
	}
}

func TestFinalizeRejectsNonTerminalOutcome(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)

	if _, err := l.Claim(context.Background(), "d1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := l.Finalize(context.Background(), "d1", OutcomePending, ""); err == nil {
		t.Error("Finalize accepted a non-terminal outcome")
	}
}

// Concurrent claims for one delivery ID: exactly one winner, every loser
// observes the winner's stored outcome.
func TestConcurrentClaimsSingleWinner(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	ctx := context.Background()

	const contenders = 8

	var mu sync.Mutex
	var wins, replays int

	start := make(chan struct{})
	var wg sync.WaitGroup
	for range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claim, err := l.Claim(ctx, "d1")
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			if claim.Claimed {
				// Simulate the ledger call before finalizing.
				time.Sleep(20 * time.Millisecond)
				if err := l.Finalize(ctx, "d1", OutcomeCredited, "tx-1"); err != nil {
					t.Errorf("Finalize: %v", err)
					return
				}
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if claim.Outcome == OutcomeCredited && claim.TxRef == "tx-1" {
				mu.Lock()
				replays++
				mu.Unlock()
				return
			}
			t.Errorf("unexpected claim result: %#v", claim)
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if replays != contenders-1 {
		t.Errorf("replays = %d, want %d", replays, contenders-1)
	}
}

func TestErrorOutcomeIsReclaimable(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	ctx := context.Background()

	claim, err := l.Claim(ctx, "d1")
	if err != nil || !claim.Claimed {
		t.Fatalf("first claim: %#v, %v", claim, err)
	}
	if err := l.Finalize(ctx, "d1", OutcomeError, ""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// A sender retry after a failed attempt must get another try.
	retry, err := l.Claim(ctx, "d1")
	if err != nil {
		t.Fatalf("retry Claim: %v", err)
	}
	if !retry.Claimed {
		t.Fatalf("error outcome was not reclaimable: %#v", retry)
	}

	if err := l.Finalize(ctx, "d1", OutcomeCredited, "tx-2"); err != nil {
		t.Fatalf("Finalize retry: %v", err)
	}
	replay, err := l.Claim(ctx, "d1")
	if err != nil {
		t.Fatalf("replay Claim: %v", err)
	}
	if replay.Claimed || replay.Outcome != OutcomeCredited || replay.TxRef != "tx-2" {
		t.Errorf("replay = %#v, want credited/tx-2", replay)
	}
}

func TestRejectedOutcomeIsNotReclaimable(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	ctx := context.Background()

	claim, err := l.Claim(ctx, "d1")
	if err != nil || !claim.Claimed {
		t.Fatalf("first claim: %#v, %v", claim, err)
	}
	if err := l.Finalize(ctx, "d1", OutcomeRejected, ""); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	replay, err := l.Claim(ctx, "d1")
	if err != nil {
		t.Fatalf("replay Claim: %v", err)
	}
	if replay.Claimed || replay.Outcome != OutcomeRejected {
		t.Errorf("replay = %#v, want rejected", replay)
	}
}

// A pending row from a crashed process must not block the delivery forever.
func TestStaleClaimTakeover(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	l.staleAfter = 50 * time.Millisecond
	ctx := context.Background()

	claim, err := l.Claim(ctx, "d1")
	if err != nil || !claim.Claimed {
		t.Fatalf("first claim: %#v, %v", claim, err)
	}

	// Drop the in-process marker to simulate a crash before Finalize.
	l.mu.Lock()
	delete(l.inflight, "d1")
	l.mu.Unlock()

	// Fresh pending claim is reported as in flight.
	contended, err := l.Claim(ctx, "d1")
	if err != nil {
		t.Fatalf("contended Claim: %v", err)
	}
	if contended.Claimed || contended.Outcome != OutcomePending {
		t.Fatalf("contended = %#v, want pending", contended)
	}

	time.Sleep(60 * time.Millisecond)

	takeover, err := l.Claim(ctx, "d1")
	if err != nil {
		t.Fatalf("takeover Claim: %v", err)
	}
	if !takeover.Claimed {
		t.Errorf("stale pending claim was not taken over: %#v", takeover)
	}
}

func TestClaimRequiresDeliveryID(t *testing.T) {
	t.Parallel()
	l := newTestLedger(t)
	if _, err := l.Claim(context.Background(), ""); err == nil {
		t.Error("Claim with empty delivery ID should fail")
	}
}
