package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/markethub/walletd/internal/models"
)

const entryColumns = `id, reference, account_id, type, amount, currency, status, related_reference, metadata, created_at, completed_at, reversed_at`

// TransactionLog is the append-only store of ledger entries. Entries
// are never updated in amount, type or account, and never deleted;
// status changes go through the balance engine.
type TransactionLog struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTransactionLog(db *sql.DB, log zerolog.Logger) *TransactionLog {
	return &TransactionLog{db: db, log: log.With().Str("component", "transaction_log").Logger()}
}

// Append persists a new entry. A reference collision surfaces as
// ErrDuplicateReference via the unique constraint, never a
// check-then-insert.
func (l *TransactionLog) Append(ctx context.Context, entry *models.LedgerEntry) error {
	return l.AppendTx(ctx, l.db, entry)
}

// AppendTx is Append inside a caller-owned transaction. The balance
// engine uses it so entry and balance commit as one unit.
func (l *TransactionLog) AppendTx(ctx context.Context, q Querier, entry *models.LedgerEntry) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (reference, account_id, type, amount, currency, status, related_reference, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		entry.Reference, entry.AccountID, entry.Type, entry.Amount, entry.Currency,
		entry.Status, entry.RelatedReference, entry.Metadata, entry.CreatedAt, entry.CompletedAt,
	).Scan(&entry.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reference %s: %w", entry.Reference, models.ErrDuplicateReference)
		}
		return fmt.Errorf("%w: append entry: %v", models.ErrPersistenceFailure, err)
	}
	return nil
}

// Find returns the entry for a reference.
func (l *TransactionLog) Find(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	return l.FindTx(ctx, l.db, reference, false)
}

// FindTx is Find inside a caller-owned transaction; forUpdate locks
// the row for the duration of that transaction.
func (l *TransactionLog) FindTx(ctx context.Context, q Querier, reference string, forUpdate bool) (*models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE reference = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRowContext(ctx, query, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reference %s: %w", reference, models.ErrEntryNotFound)
		}
		return nil, fmt.Errorf("%w: find entry: %v", models.ErrPersistenceFailure, err)
	}
	return entry, nil
}

// ListByAccount returns an account's entries, newest first, narrowed
// by the filter and paginated.
func (l *TransactionLog) ListByAccount(ctx context.Context, accountID string, filter models.EntryFilter, page models.Page) ([]models.LedgerEntry, error) {
	page = page.Normalize()

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1`
	args := []any{accountID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	args = append(args, page.Limit, page.Offset())
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", models.ErrPersistenceFailure, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByStatus returns entries in a given status created before the
// cutoff, oldest first. The stale-pending sweep feeds on this.
func (l *TransactionLog) ListByStatus(ctx context.Context, status models.EntryStatus, before time.Time, limit int) ([]models.LedgerEntry, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`,
		status, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list by status: %v", models.ErrPersistenceFailure, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// TotalCompleted sums completed entries of one type for an account.
// At any quiescent point TotalCompleted(credit) - TotalCompleted(debit)
// must equal the account balance.
func (l *TransactionLog) TotalCompleted(ctx context.Context, accountID string, entryType models.EntryType) (int64, error) {
	var total int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE account_id = $1 AND type = $2 AND status = $3`,
		accountID, entryType, models.StatusCompleted).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: total completed: %v", models.ErrPersistenceFailure, err)
	}
	return total, nil
}

// GetAccountByOwner returns the account for an owner, read-only.
func (l *TransactionLog) GetAccountByOwner(ctx context.Context, ownerID string) (*models.Account, error) {
	var account models.Account
	err := l.db.QueryRowContext(ctx, `
		SELECT id, owner_id, balance, currency, status, version, created_at, updated_at
		FROM accounts WHERE owner_id = $1`, ownerID).
		Scan(&account.ID, &account.OwnerID, &account.Balance, &account.Currency,
			&account.Status, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("owner %s: %w", ownerID, models.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%w: get account: %v", models.ErrPersistenceFailure, err)
	}
	return &account, nil
}

// Stats assembles the reconciliation view for an account.
func (l *TransactionLog) Stats(ctx context.Context, account *models.Account) (*models.AccountStats, error) {
	credits, err := l.TotalCompleted(ctx, account.ID, models.EntryCredit)
	if err != nil {
		return nil, err
	}
	debits, err := l.TotalCompleted(ctx, account.ID, models.EntryDebit)
	if err != nil {
		return nil, err
	}

	stats := &models.AccountStats{
		AccountID:    account.ID,
		Balance:      account.Balance,
		TotalCredits: credits,
		TotalDebits:  debits,
	}

	last, err := l.ListByAccount(ctx, account.ID, models.EntryFilter{}, models.Page{Number: 1, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(last) > 0 {
		stats.LastEntry = &last[0]
	}
	return stats, nil
}

// Querier is the subset of *sql.DB / *sql.Tx the log reads and writes
// through, so appends can join the engine's transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanEntry(row *sql.Row) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var related sql.NullString
	err := row.Scan(&entry.ID, &entry.Reference, &entry.AccountID, &entry.Type, &entry.Amount,
		&entry.Currency, &entry.Status, &related, &entry.Metadata,
		&entry.CreatedAt, &entry.CompletedAt, &entry.ReversedAt)
	if err != nil {
		return nil, err
	}
	entry.RelatedReference = related.String
	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		var related sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Reference, &entry.AccountID, &entry.Type, &entry.Amount,
			&entry.Currency, &entry.Status, &related, &entry.Metadata,
			&entry.CreatedAt, &entry.CompletedAt, &entry.ReversedAt); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", models.ErrPersistenceFailure, err)
		}
		entry.RelatedReference = related.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate entries: %v", models.ErrPersistenceFailure, err)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
