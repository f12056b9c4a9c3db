package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markethub/walletd/internal/config"
	"github.com/markethub/walletd/internal/models"
)

// BalanceEngine is the only component that mutates account balances.
// Every mutation commits the account row and its ledger entry in one
// database transaction; rows are serialized with FOR UPDATE and a
// version column guards against lost updates.
type BalanceEngine struct {
	db              *sql.DB
	txlog           *TransactionLog
	log             zerolog.Logger
	maxRetries      int
	defaultCurrency string
}

func NewBalanceEngine(db *sql.DB, txlog *TransactionLog, cfg *config.LedgerConfig, log zerolog.Logger) *BalanceEngine {
	return &BalanceEngine{
		db:              db,
		txlog:           txlog,
		log:             log.With().Str("component", "balance_engine").Logger(),
		maxRetries:      cfg.MaxRetries,
		defaultCurrency: cfg.DefaultCurrency,
	}
}

// Apply validates a proposed credit or debit and writes it in
// completed status, adjusting the balance in the same transaction.
// A reference that already exists returns the stored entry unchanged:
// gateway callers retry, and a retry must not double-apply.
func (e *BalanceEngine) Apply(ctx context.Context, intent models.EntryIntent) (*models.LedgerEntry, error) {
	return e.withRetry(ctx, func() (*models.LedgerEntry, error) {
		return e.applyOnce(ctx, intent, models.StatusCompleted)
	})
}

// Record writes a pending entry with no balance effect. The balance
// moves when TransitionStatus confirms it. Used for intents awaiting
// external confirmation (gateway deposits).
func (e *BalanceEngine) Record(ctx context.Context, intent models.EntryIntent) (*models.LedgerEntry, error) {
	return e.withRetry(ctx, func() (*models.LedgerEntry, error) {
		return e.applyOnce(ctx, intent, models.StatusPending)
	})
}

// TransitionStatus moves an entry through the status state machine.
// Balance changes only on transitions that cross the completed
// boundary: pending→completed applies the effect, completed→reversed
// applies the inverse exactly once. Requesting the status the entry
// already has is a no-op returning the entry, so confirm and reverse
// are themselves idempotent under retry.
func (e *BalanceEngine) TransitionStatus(ctx context.Context, reference string, newStatus models.EntryStatus) (*models.LedgerEntry, error) {
	return e.withRetry(ctx, func() (*models.LedgerEntry, error) {
		return e.transitionOnce(ctx, reference, newStatus)
	})
}

// withRetry re-runs an operation whose optimistic version check lost
// the race, a bounded number of times.
func (e *BalanceEngine) withRetry(ctx context.Context, op func() (*models.LedgerEntry, error)) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		entry, err = op()
		if !errors.Is(err, models.ErrConcurrencyConflict) {
			return entry, err
		}
		e.log.Debug().Int("attempt", attempt+1).Msg("optimistic lock conflict, retrying")
	}
	return nil, err
}

func (e *BalanceEngine) applyOnce(ctx context.Context, intent models.EntryIntent, status models.EntryStatus) (*models.LedgerEntry, error) {
	if intent.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if intent.Type != models.EntryCredit && intent.Type != models.EntryDebit {
		return nil, fmt.Errorf("unknown entry type %q: %w", intent.Type, models.ErrInvalidTransition)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", models.ErrPersistenceFailure, err)
	}
	defer tx.Rollback()

	account, err := e.lockOrCreateAccount(ctx, tx, intent.OwnerID, intent.Currency)
	if err != nil {
		return nil, err
	}

	if !account.Active() {
		return nil, fmt.Errorf("account %s: %w", account.ID, models.ErrAccountFrozen)
	}
	if intent.Currency != "" && intent.Currency != account.Currency {
		return nil, fmt.Errorf("intent %s vs account %s: %w", intent.Currency, account.Currency, models.ErrCurrencyMismatch)
	}

	now := time.Now().UTC()
	entry := &models.LedgerEntry{
		Reference:        intent.Reference,
		AccountID:        account.ID,
		Type:             intent.Type,
		Amount:           intent.Amount,
		Currency:         account.Currency,
		Status:           status,
		RelatedReference: intent.RelatedReference,
		Metadata:         intent.Metadata,
		CreatedAt:        now,
	}

	newBalance := account.Balance
	if status == models.StatusCompleted {
		entry.CompletedAt = &now
		newBalance, err = nextBalance(account.Balance, intent.Type, intent.Amount, false)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", account.ID, err)
		}
	}

	if err := e.txlog.AppendTx(ctx, tx, entry); err != nil {
		if errors.Is(err, models.ErrDuplicateReference) {
			// Idempotent replay: surface the original entry from a
			// fresh read, nothing re-applied.
			tx.Rollback()
			existing, ferr := e.txlog.Find(ctx, intent.Reference)
			if ferr != nil {
				return nil, ferr
			}
			e.log.Info().Str("reference", intent.Reference).Str("status", string(existing.Status)).
				Msg("duplicate reference, returning existing entry")
			return existing, nil
		}
		return nil, err
	}

	if newBalance != account.Balance {
		if err := e.updateBalance(ctx, tx, account, newBalance); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", models.ErrPersistenceFailure, err)
	}

	e.log.Info().Str("reference", entry.Reference).Str("account_id", account.ID).
		Str("type", string(entry.Type)).Int64("amount", entry.Amount).
		Str("status", string(entry.Status)).Msg("entry applied")
	return entry, nil
}

func (e *BalanceEngine) transitionOnce(ctx context.Context, reference string, newStatus models.EntryStatus) (*models.LedgerEntry, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", models.ErrPersistenceFailure, err)
	}
	defer tx.Rollback()

	entry, err := e.txlog.FindTx(ctx, tx, reference, true)
	if err != nil {
		return nil, err
	}

	if entry.Status == newStatus {
		return entry, nil
	}
	if err := models.Transition(entry.Status, newStatus); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	crossing := entry.Status == models.StatusPending && newStatus == models.StatusCompleted
	reversing := entry.Status == models.StatusCompleted && newStatus == models.StatusReversed

	if crossing || reversing {
		account, err := e.lockAccountByID(ctx, tx, entry.AccountID)
		if err != nil {
			return nil, err
		}
		// Confirmation respects the frozen flag; reversal does not,
		// otherwise a frozen destination could strand compensations.
		if crossing && !account.Active() {
			return nil, fmt.Errorf("account %s: %w", account.ID, models.ErrAccountFrozen)
		}

		newBalance, err := nextBalance(account.Balance, entry.Type, entry.Amount, reversing)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", account.ID, err)
		}
		if err := e.updateBalance(ctx, tx, account, newBalance); err != nil {
			return nil, err
		}
	}

	entry.Status = newStatus
	if crossing {
		entry.CompletedAt = &now
	}
	if reversing {
		entry.ReversedAt = &now
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries SET status = $1, completed_at = $2, reversed_at = $3 WHERE reference = $4`,
		entry.Status, entry.CompletedAt, entry.ReversedAt, reference); err != nil {
		return nil, fmt.Errorf("%w: update entry: %v", models.ErrPersistenceFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", models.ErrPersistenceFailure, err)
	}

	e.log.Info().Str("reference", reference).Str("status", string(newStatus)).Msg("entry status changed")
	return entry, nil
}

// nextBalance computes the balance after applying (or inverting) an
// entry's effect, rejecting anything that would go negative.
func nextBalance(balance int64, entryType models.EntryType, amount int64, inverse bool) (int64, error) {
	credit := entryType == models.EntryCredit
	if inverse {
		credit = !credit
	}
	if credit {
		return balance + amount, nil
	}
	if balance < amount {
		return 0, models.ErrInsufficientFunds
	}
	return balance - amount, nil
}

// lockOrCreateAccount locks the owner's account row for the duration
// of the transaction, creating it with balance 0 on first interaction.
func (e *BalanceEngine) lockOrCreateAccount(ctx context.Context, tx *sql.Tx, ownerID, currency string) (*models.Account, error) {
	if ownerID == "" {
		return nil, models.ErrAccountNotFound
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, `
		SELECT id, owner_id, balance, currency, status, version, created_at, updated_at
		FROM accounts WHERE owner_id = $1 FOR UPDATE`, ownerID))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lock account: %v", models.ErrPersistenceFailure, err)
	}

	if currency == "" {
		currency = e.defaultCurrency
	}
	now := time.Now().UTC()
	account = &models.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Balance:   0,
		Currency:  currency,
		Status:    models.AccountActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, balance, currency, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.OwnerID, account.Balance, account.Currency,
		account.Status, account.Version, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the creation race; the retry will find the row.
			return nil, fmt.Errorf("account for owner %s: %w", ownerID, models.ErrConcurrencyConflict)
		}
		return nil, fmt.Errorf("%w: create account: %v", models.ErrPersistenceFailure, err)
	}

	e.log.Info().Str("owner_id", ownerID).Str("account_id", account.ID).Msg("account created")
	return account, nil
}

func (e *BalanceEngine) lockAccountByID(ctx context.Context, tx *sql.Tx, accountID string) (*models.Account, error) {
	account, err := scanAccount(tx.QueryRowContext(ctx, `
		SELECT id, owner_id, balance, currency, status, version, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE`, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", accountID, models.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%w: lock account: %v", models.ErrPersistenceFailure, err)
	}
	return account, nil
}

// updateBalance writes the new balance conditioned on the version not
// having moved. Zero rows affected means another writer got there
// first; the caller's retry loop re-reads and re-applies.
func (e *BalanceEngine) updateBalance(ctx context.Context, tx *sql.Tx, account *models.Account, newBalance int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now().UTC(), account.ID, account.Version)
	if err != nil {
		return fmt.Errorf("%w: update balance: %v", models.ErrPersistenceFailure, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", models.ErrPersistenceFailure, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s: %w", account.ID, models.ErrConcurrencyConflict)
	}
	return nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.OwnerID, &account.Balance, &account.Currency,
		&account.Status, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
