// Package events carries domain events out of the ledger core.
// Notification, email and webhook collaborators subscribe downstream;
// the core never formats or sends notifications itself.
package events

import (
	"context"
	"time"

	"github.com/markethub/walletd/internal/models"
)

// Event types emitted by the ledger.
const (
	TypeEntryCompleted = "LedgerEntryCompleted"
	TypeEntryReversed  = "LedgerEntryReversed"
	TypeTransferFailed = "TransferFailed"
)

// Event is one domain event. Payload is the entry that triggered it,
// if any.
type Event struct {
	Type       string              `json:"type"`
	Reference  string              `json:"reference"`
	AccountID  string              `json:"account_id,omitempty"`
	Amount     int64               `json:"amount,omitempty"`
	Currency   string              `json:"currency,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Entry      *models.LedgerEntry `json:"entry,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Publisher delivers domain events to external collaborators.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EntryCompleted builds the event for a newly completed entry.
func EntryCompleted(entry *models.LedgerEntry) Event {
	return Event{
		Type:       TypeEntryCompleted,
		Reference:  entry.Reference,
		AccountID:  entry.AccountID,
		Amount:     entry.Amount,
		Currency:   entry.Currency,
		Entry:      entry,
		OccurredAt: time.Now().UTC(),
	}
}

// EntryReversed builds the event for a reversed entry.
func EntryReversed(entry *models.LedgerEntry, reason string) Event {
	return Event{
		Type:       TypeEntryReversed,
		Reference:  entry.Reference,
		AccountID:  entry.AccountID,
		Amount:     entry.Amount,
		Currency:   entry.Currency,
		Reason:     reason,
		Entry:      entry,
		OccurredAt: time.Now().UTC(),
	}
}

// TransferFailed builds the event for an aborted or compensated transfer.
func TransferFailed(reference, reason string) Event {
	return Event{
		Type:       TypeTransferFailed,
		Reference:  reference,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
