package models

import (
	"time"
)

// AccountStatus is the lifecycle state of a wallet account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
)

// Account holds the authoritative spendable balance for one owner.
// Balance is stored in minor units (cents) and must never go negative.
type Account struct {
	ID        string        `json:"id" db:"id"`
	OwnerID   string        `json:"owner_id" db:"owner_id"`
	Balance   int64         `json:"balance" db:"balance"` // in cents
	Currency  string        `json:"currency" db:"currency"`
	Status    AccountStatus `json:"status" db:"status"`
	Version   int           `json:"version" db:"version"` // for optimistic locking
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// Active reports whether the account accepts new debits and credits.
func (a *Account) Active() bool {
	return a.Status == AccountActive
}

// AccountStats is the reconciliation view of an account: the running
// balance next to the completed-entry sums it must equal.
type AccountStats struct {
	AccountID    string       `json:"account_id"`
	Balance      int64        `json:"balance"`
	TotalCredits int64        `json:"total_credits"`
	TotalDebits  int64        `json:"total_debits"`
	LastEntry    *LedgerEntry `json:"last_entry,omitempty"`
}

// Balanced reports whether balance equals completed credits minus
// completed debits. False at a quiescent point means the ledger and
// the account have drifted and need manual reconciliation.
func (s *AccountStats) Balanced() bool {
	return s.Balance == s.TotalCredits-s.TotalDebits
}
