package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markethub/walletd/internal/audit"
	"github.com/markethub/walletd/internal/config"
	"github.com/markethub/walletd/internal/events"
	"github.com/markethub/walletd/internal/models"
)

// LedgerService is the façade controllers call. It hides the
// engine/log/coordinator split, fills in system references, and emits
// domain events after commit. Callers arrive with an
// already-authenticated owner ID and a validated amount.
type LedgerService struct {
	engine      *BalanceEngine
	txlog       *TransactionLog
	coordinator *TransferCoordinator
	publisher   events.Publisher
	audit       *audit.Logger
	log         zerolog.Logger
	pendingTTL  time.Duration
}

func NewLedgerService(engine *BalanceEngine, txlog *TransactionLog, coordinator *TransferCoordinator, publisher events.Publisher, auditLog *audit.Logger, cfg *config.LedgerConfig, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		engine:      engine,
		txlog:       txlog,
		coordinator: coordinator,
		publisher:   publisher,
		audit:       auditLog,
		log:         log.With().Str("component", "ledger_service").Logger(),
		pendingTTL:  cfg.PendingTTL,
	}
}

// GetAccount returns the owner's account.
func (s *LedgerService) GetAccount(ctx context.Context, ownerID string) (*models.Account, error) {
	return s.txlog.GetAccountByOwner(ctx, ownerID)
}

// GetBalance returns the authoritative spendable amount for an owner.
func (s *LedgerService) GetBalance(ctx context.Context, ownerID string) (int64, error) {
	account, err := s.txlog.GetAccountByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Deposit credits the owner's account immediately. An empty reference
// gets a generated one; a repeated reference replays the original
// entry without a second credit.
func (s *LedgerService) Deposit(ctx context.Context, ownerID string, amount int64, reference string, metadata models.Metadata) (*models.LedgerEntry, error) {
	entry, err := s.engine.Apply(ctx, models.EntryIntent{
		OwnerID:   ownerID,
		Type:      models.EntryCredit,
		Amount:    amount,
		Reference: orGenerated(reference),
		Metadata:  metadata,
	})
	if err != nil {
		return nil, err
	}
	s.publishCompleted(ctx, entry)
	return entry, nil
}

// Withdraw debits the owner's account immediately, failing with
// ErrInsufficientFunds when the balance cannot cover it.
func (s *LedgerService) Withdraw(ctx context.Context, ownerID string, amount int64, reference string, metadata models.Metadata) (*models.LedgerEntry, error) {
	entry, err := s.engine.Apply(ctx, models.EntryIntent{
		OwnerID:   ownerID,
		Type:      models.EntryDebit,
		Amount:    amount,
		Reference: orGenerated(reference),
		Metadata:  metadata,
	})
	if err != nil {
		return nil, err
	}
	s.publishCompleted(ctx, entry)
	return entry, nil
}

// InitiateDeposit records a pending credit awaiting external
// confirmation (a payment-gateway callback). ConfirmPending applies
// the balance effect later; FailPending or the stale sweep voids it.
func (s *LedgerService) InitiateDeposit(ctx context.Context, ownerID string, amount int64, reference string, metadata models.Metadata) (*models.LedgerEntry, error) {
	return s.engine.Record(ctx, models.EntryIntent{
		OwnerID:   ownerID,
		Type:      models.EntryCredit,
		Amount:    amount,
		Reference: orGenerated(reference),
		Metadata:  metadata,
	})
}

// Transfer moves amount from one owner to another, all or nothing.
func (s *LedgerService) Transfer(ctx context.Context, sourceOwner, destOwner string, amount int64, reference string, metadata models.Metadata) (*TransferResult, error) {
	result, err := s.coordinator.Transfer(ctx, sourceOwner, destOwner, amount, orGenerated(reference), metadata)
	if err != nil {
		return nil, err
	}
	s.publishCompleted(ctx, result.Debit)
	s.publishCompleted(ctx, result.Credit)
	return result, nil
}

// Reverse undoes a completed entry by moving it to reversed status,
// the only sanctioned way to undo money movement. History stays
// intact; the inverse balance effect applies exactly once.
func (s *LedgerService) Reverse(ctx context.Context, reference, reason string) (*models.LedgerEntry, error) {
	entry, err := s.engine.TransitionStatus(ctx, reference, models.StatusReversed)
	if err != nil {
		return nil, err
	}
	s.audit.LogReversal(entry.Reference, entry.AccountID, entry.Amount, reason)
	if perr := s.publisher.Publish(ctx, events.EntryReversed(entry, reason)); perr != nil {
		s.log.Warn().Err(perr).Str("reference", reference).Msg("failed to publish reversal event")
	}
	return entry, nil
}

// ConfirmPending completes a pending entry, applying its balance
// effect. This is the "credit confirmed" path for gateway callbacks.
func (s *LedgerService) ConfirmPending(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	entry, err := s.engine.TransitionStatus(ctx, reference, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	s.publishCompleted(ctx, entry)
	return entry, nil
}

// FailPending voids a pending entry that will never confirm. No
// balance effect; failed is terminal.
func (s *LedgerService) FailPending(ctx context.Context, reference, reason string) (*models.LedgerEntry, error) {
	entry, err := s.engine.TransitionStatus(ctx, reference, models.StatusFailed)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("reference", reference).Str("reason", reason).Msg("pending entry failed")
	return entry, nil
}

// History returns the owner's entries, filtered and paginated.
func (s *LedgerService) History(ctx context.Context, ownerID string, filter models.EntryFilter, page models.Page) ([]models.LedgerEntry, error) {
	account, err := s.txlog.GetAccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.txlog.ListByAccount(ctx, account.ID, filter, page)
}

// Stats returns the reconciliation view: balance next to total
// completed credits and debits.
func (s *LedgerService) Stats(ctx context.Context, ownerID string) (*models.AccountStats, error) {
	account, err := s.txlog.GetAccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.txlog.Stats(ctx, account)
}

// ListStalePending returns pending entries older than the configured
// TTL. The engine never auto-expires entries; an external sweep calls
// this and then FailPending for each.
func (s *LedgerService) ListStalePending(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	cutoff := time.Now().UTC().Add(-s.pendingTTL)
	return s.txlog.ListByStatus(ctx, models.StatusPending, cutoff, limit)
}

func (s *LedgerService) publishCompleted(ctx context.Context, entry *models.LedgerEntry) {
	if entry.Status != models.StatusCompleted {
		return
	}
	if err := s.publisher.Publish(ctx, events.EntryCompleted(entry)); err != nil {
		s.log.Warn().Err(err).Str("reference", entry.Reference).Msg("failed to publish completion event")
	}
}

func orGenerated(reference string) string {
	if reference != "" {
		return reference
	}
	return uuid.NewString()
}
