package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/abhinag007/AgentLink/internal/eventledger"
	"github.com/abhinag007/AgentLink/internal/identity"
	"github.com/abhinag007/AgentLink/internal/ledger"
)

// DefaultSubmitTimeout bounds one delivery's ledger leg, including the
// client's internal retries and confirmation waits.
const DefaultSubmitTimeout = 5 * time.Minute

// IdentityResolver maps a GitHub username to its registered wallet address.
type IdentityResolver interface {
	Resolve(ctx context.Context, githubUsername string) (string, error)
}

// EventClaimer is the idempotency guard over webhook deliveries.
type EventClaimer interface {
	Claim(ctx context.Context, deliveryID string) (eventledger.Claim, error)
	Finalize(ctx context.Context, deliveryID string, outcome eventledger.Outcome, txRef string) error
}

// ReputationSubmitter submits the reputation credit to the ledger.
type ReputationSubmitter interface {
	AddReputation(ctx context.Context, owner solana.PublicKey) (solana.Signature, error)
}

// Dispatcher runs the per-delivery state machine for verified webhook
// events: type filter, identity resolution, idempotency claim, ledger
// submission, terminal record.
type Dispatcher struct {
	identities    IdentityResolver
	events        EventClaimer
	submitter     ReputationSubmitter
	submitTimeout time.Duration
	logger        *slog.Logger
}

func NewDispatcher(identities IdentityResolver, events EventClaimer, submitter ReputationSubmitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		identities:    identities,
		events:        events,
		submitter:     submitter,
		submitTimeout: DefaultSubmitTimeout,
		logger:        logger,
	}
}

// Dispatch processes one signature-verified event and returns the HTTP
// status and JSON body to send. The ledger leg runs on a context detached
// from the inbound request: a dropped connection must not strand a claimed
// delivery, or every redelivery of it would block forever.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *PullRequestEvent, deliveryID string) (int, any) {
	if !ev.IsMergedPR() {
		return http.StatusOK, WebhookResponse{Status: "ignored"}
	}

	actor := ev.Actor()
	if actor == "" {
		return http.StatusBadRequest, ErrorResponse{Error: "event has no pull request author"}
	}
	logger := d.logger.With("delivery_id", deliveryID, "actor", actor)

	wallet, err := d.identities.Resolve(ctx, actor)
	if errors.Is(err, identity.ErrNotRegistered) {
		logger.Info("merged PR from unregistered user")
		return http.StatusNotFound, ErrorResponse{Error: "user not registered in AgentLink"}
	}
	if err != nil {
		logger.Error("identity lookup failed", "error", err)
		return http.StatusInternalServerError, ErrorResponse{Error: "identity lookup failed"}
	}

	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		logger.Error("registered wallet address is invalid", "wallet", wallet, "error", err)
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "registered wallet address is invalid"}
	}

	claim, err := d.events.Claim(ctx, deliveryID)
	if err != nil {
		logger.Error("delivery claim failed", "error", err)
		return http.StatusInternalServerError, ErrorResponse{Error: "delivery claim failed"}
	}
	if !claim.Claimed {
		return d.replay(logger, actor, claim)
	}

	// Detached from the request: finalize must happen even if the sender
	// hangs up mid-confirmation. The submission ID ties the detached leg's
	// log lines back to this delivery.
	logger = logger.With("submission_id", uuid.NewString())
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.submitTimeout)
	defer cancel()

	sig, err := d.submitter.AddReputation(sctx, owner)
	status, body, outcome, txRef := d.conclude(logger, actor, sig, err)

	if ferr := d.events.Finalize(sctx, deliveryID, outcome, txRef); ferr != nil {
		logger.Error("failed to finalize delivery record", "outcome", outcome, "error", ferr)
	}
	return status, body
}

// replay maps a previously stored outcome to the same response the first
// attempt produced, without touching the ledger.
func (d *Dispatcher) replay(logger *slog.Logger, actor string, claim eventledger.Claim) (int, any) {
	switch claim.Outcome {
	case eventledger.OutcomeCredited, eventledger.OutcomeAlreadyCredited:
		logger.Info("duplicate delivery short-circuited", "outcome", claim.Outcome, "tx", claim.TxRef)
		return http.StatusOK, WebhookResponse{Success: true, Tx: claim.TxRef, Actor: actor}
	case eventledger.OutcomeRejected:
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "ledger rejected this event"}
	default:
		// Another claim is still in flight; the sender should retry later.
		return http.StatusServiceUnavailable, ErrorResponse{Error: "delivery is being processed"}
	}
}

// conclude classifies the ledger result into an HTTP response and the
// terminal outcome to record.
func (d *Dispatcher) conclude(logger *slog.Logger, actor string, sig solana.Signature, err error) (int, any, eventledger.Outcome, string) {
	switch {
	case err == nil:
		logger.Info("reputation credited", "tx", sig.String())
		return http.StatusOK,
			WebhookResponse{Success: true, Tx: sig.String(), Actor: actor},
			eventledger.OutcomeCredited, sig.String()

	case ledger.IsKind(err, ledger.KindAlreadyProcessed):
		logger.Info("ledger already reflects this credit")
		return http.StatusOK,
			WebhookResponse{Success: true, Actor: actor},
			eventledger.OutcomeAlreadyCredited, ""

	case ledger.IsKind(err, ledger.KindPrecondition):
		logger.Warn("agent account missing on ledger", "error", err)
		return http.StatusUnprocessableEntity,
			ErrorResponse{Error: "agent account does not exist on the ledger"},
			eventledger.OutcomeRejected, ""

	case ledger.IsKind(err, ledger.KindRejected):
		logger.Error("ledger rejected transaction", "error", err)
		return http.StatusUnprocessableEntity,
			ErrorResponse{Error: "ledger rejected transaction"},
			eventledger.OutcomeRejected, ""

	default:
		// Transient budget exhausted (or unclassified failure). Recorded as a
		// retryable terminal state: a later redelivery may re-claim it.
		logger.Error("ledger submission failed", "error", err)
		return http.StatusBadGateway,
			ErrorResponse{Error: "transaction failed"},
			eventledger.OutcomeError, ""
	}
}
