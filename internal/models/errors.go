package models

import "errors"

// Domain error taxonomy. Services match these with errors.Is;
// handlers translate them to HTTP status codes. Storage errors are
// always wrapped in ErrPersistenceFailure so SQL details never leak
// past the service layer.
var (
	// ErrInsufficientFunds indicates a debit larger than the balance. Not retryable.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountFrozen indicates an operation on a non-active account. Not retryable.
	ErrAccountFrozen = errors.New("account frozen")
	// ErrAccountNotFound indicates no account exists for the owner.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEntryNotFound indicates no ledger entry exists for the reference.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrDuplicateReference indicates the idempotency key was already used.
	ErrDuplicateReference = errors.New("duplicate reference")
	// ErrInvalidTransition indicates an illegal status change was requested.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrencyConflict indicates the optimistic-lock version moved
	// under us and bounded retries were exhausted. Retryable.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
	// ErrPersistenceFailure wraps storage errors. The whole operation is
	// safe to retry: nothing partial was committed.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrCurrencyMismatch indicates the intent currency differs from the account's.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrSameAccount indicates a transfer where source and destination match.
	ErrSameAccount = errors.New("source and destination accounts are the same")
)
