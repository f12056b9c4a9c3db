package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EntryType classifies the direction of a ledger entry.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Metadata is a free-form string map attached to an entry, stored as JSON.
type Metadata map[string]string

// Value implements driver.Valuer for JSON column storage.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("metadata: cannot scan %T", src)
	}
	return json.Unmarshal(data, m)
}

// LedgerEntry is an immutable record of one balance-affecting event.
// Amount, type and account never change after creation; only Status
// moves, and only along the transitions in status.go.
type LedgerEntry struct {
	ID               int64       `json:"id" db:"id"`
	Reference        string      `json:"reference" db:"reference"`
	AccountID        string      `json:"account_id" db:"account_id"`
	Type             EntryType   `json:"type" db:"type"`
	Amount           int64       `json:"amount" db:"amount"` // in cents, always > 0
	Currency         string      `json:"currency" db:"currency"`
	Status           EntryStatus `json:"status" db:"status"`
	RelatedReference string      `json:"related_reference,omitempty" db:"related_reference"`
	Metadata         Metadata    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	ReversedAt       *time.Time  `json:"reversed_at,omitempty" db:"reversed_at"`
}

// EntryIntent is a proposed credit or debit before it hits the ledger.
type EntryIntent struct {
	OwnerID          string    `json:"owner_id" validate:"required"`
	Type             EntryType `json:"type" validate:"required,oneof=credit debit"`
	Amount           int64     `json:"amount" validate:"required,gt=0"`
	Currency         string    `json:"currency" validate:"required,len=3"`
	Reference        string    `json:"reference" validate:"required"`
	RelatedReference string    `json:"related_reference,omitempty"`
	Metadata         Metadata  `json:"metadata,omitempty"`
}

// EntryFilter narrows history queries.
type EntryFilter struct {
	Type   EntryType
	Status EntryStatus
	From   time.Time
	To     time.Time
}

// Page holds pagination bounds for history queries.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return (n - 1) * p.Normalize().Limit
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}
