package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/markethub/walletd/internal/audit"
	"github.com/markethub/walletd/internal/config"
	"github.com/markethub/walletd/internal/events"
	"github.com/markethub/walletd/internal/models"
)

// EntryApplier is the slice of the balance engine the coordinator
// drives: apply a leg, reverse a leg.
type EntryApplier interface {
	Apply(ctx context.Context, intent models.EntryIntent) (*models.LedgerEntry, error)
	TransitionStatus(ctx context.Context, reference string, newStatus models.EntryStatus) (*models.LedgerEntry, error)
}

// TransferCoordinator moves money between two accounts as one logical
// operation. The two legs commit as independent single-account
// transactions, never under a cross-account lock, and a failed credit
// leg is undone by reversing the debit. An in-between state exists
// briefly but is never a stable end state.
type TransferCoordinator struct {
	engine              EntryApplier
	publisher           events.Publisher
	audit               *audit.Logger
	log                 zerolog.Logger
	compensationRetries int
	compensationBackoff time.Duration
}

// TransferResult holds the two linked entries of a completed transfer.
type TransferResult struct {
	Debit  *models.LedgerEntry `json:"debit"`
	Credit *models.LedgerEntry `json:"credit"`
}

func NewTransferCoordinator(engine EntryApplier, publisher events.Publisher, auditLog *audit.Logger, cfg *config.LedgerConfig, log zerolog.Logger) *TransferCoordinator {
	retries := cfg.CompensationRetries
	if retries < 1 {
		retries = 1
	}
	return &TransferCoordinator{
		engine:              engine,
		publisher:           publisher,
		audit:               auditLog,
		log:                 log.With().Str("component", "transfer_coordinator").Logger(),
		compensationRetries: retries,
		compensationBackoff: cfg.CompensationBackoff,
	}
}

// DebitReference and CreditReference derive the per-leg idempotency
// keys from the caller's transfer reference, so retrying the whole
// transfer replays rather than re-moves.
func DebitReference(reference string) string  { return reference + ":debit" }
func CreditReference(reference string) string { return reference + ":credit" }

// Transfer debits the source owner and credits the destination owner.
func (tc *TransferCoordinator) Transfer(ctx context.Context, sourceOwner, destOwner string, amount int64, reference string, metadata models.Metadata) (*TransferResult, error) {
	if sourceOwner == destOwner {
		return nil, models.ErrSameAccount
	}
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	debitRef := DebitReference(reference)
	creditRef := CreditReference(reference)

	debit, err := tc.engine.Apply(ctx, models.EntryIntent{
		OwnerID:          sourceOwner,
		Type:             models.EntryDebit,
		Amount:           amount,
		Reference:        debitRef,
		RelatedReference: creditRef,
		Metadata:         metadata,
	})
	if err != nil {
		// No money moved; nothing to undo.
		tc.fail(ctx, reference, sourceOwner, destOwner, amount, err)
		return nil, fmt.Errorf("debit leg: %w", err)
	}

	// A replayed debit in reversed status means an earlier attempt was
	// compensated. Crediting now would invent money.
	if debit.Status == models.StatusReversed {
		err := fmt.Errorf("transfer %s was previously compensated: %w", reference, models.ErrInvalidTransition)
		tc.fail(ctx, reference, sourceOwner, destOwner, amount, err)
		return nil, err
	}

	credit, err := tc.engine.Apply(ctx, models.EntryIntent{
		OwnerID:          destOwner,
		Type:             models.EntryCredit,
		Amount:           amount,
		Reference:        creditRef,
		RelatedReference: debitRef,
		Metadata:         metadata,
	})
	if err != nil {
		tc.compensate(ctx, debit, amount)
		tc.fail(ctx, reference, sourceOwner, destOwner, amount, err)
		return nil, fmt.Errorf("credit leg: %w", err)
	}

	tc.audit.LogTransfer(reference, debit.AccountID, credit.AccountID, amount, "SUCCESS")
	tc.log.Info().Str("reference", reference).Int64("amount", amount).Msg("transfer completed")
	return &TransferResult{Debit: debit, Credit: credit}, nil
}

// compensate reverses the committed debit leg. It runs on a context
// detached from the caller's: an impatient client must not strand a
// half-done transfer. Exhausted retries are handed to the audit trail
// for manual reconciliation; the debit is never silently left applied.
func (tc *TransferCoordinator) compensate(ctx context.Context, debit *models.LedgerEntry, amount int64) {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= tc.compensationRetries; attempt++ {
		_, err = tc.engine.TransitionStatus(ctx, debit.Reference, models.StatusReversed)
		if err == nil {
			tc.audit.LogReversal(debit.Reference, debit.AccountID, amount, "transfer compensation")
			return
		}
		tc.log.Warn().Err(err).Str("reference", debit.Reference).Int("attempt", attempt).
			Msg("compensation attempt failed")
		time.Sleep(tc.compensationBackoff * time.Duration(attempt))
	}

	tc.audit.LogCompensationFailure(debit.Reference, debit.AccountID, amount, err)
}

func (tc *TransferCoordinator) fail(ctx context.Context, reference, sourceOwner, destOwner string, amount int64, cause error) {
	tc.audit.LogTransfer(reference, sourceOwner, destOwner, amount, "FAILED")
	if err := tc.publisher.Publish(ctx, events.TransferFailed(reference, cause.Error())); err != nil {
		tc.log.Warn().Err(err).Str("reference", reference).Msg("failed to publish transfer event")
	}
}
