// Package audit records an operator-facing trail of money movement.
// Reconciliation sweeps grep these records; compensation failures land
// here for manual follow-up.
package audit

import (
	"time"

	"github.com/rs/zerolog"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	AccountID string    `json:"account_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct {
	log zerolog.Logger
}

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "audit").Logger()}
}

func (a *Logger) LogTransfer(reference, sourceAccount, destAccount string, amount int64, status string) {
	a.emit(Event{
		EventType: "TRANSFER",
		Reference: reference,
		Amount:    amount,
		Status:    status,
		Details: map[string]string{
			"source_account": sourceAccount,
			"dest_account":   destAccount,
		},
	})
}

func (a *Logger) LogReversal(reference, accountID string, amount int64, reason string) {
	a.emit(Event{
		EventType: "REVERSAL",
		Reference: reference,
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"reason": reason},
	})
}

// LogCompensationFailure marks a debit whose compensating reversal
// could not be applied after the full retry budget. Money has left the
// source account and needs a manual reconciliation pass.
func (a *Logger) LogCompensationFailure(reference, accountID string, amount int64, err error) {
	a.emit(Event{
		EventType: "COMPENSATION_FAILURE",
		Reference: reference,
		AccountID: accountID,
		Amount:    amount,
		Status:    "NEEDS_RECONCILIATION",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) LogError(reference, accountID string, err error) {
	a.emit(Event{
		EventType: "ERROR",
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) emit(event Event) {
	event.Timestamp = time.Now().UTC()
	logger := a.log.Warn()
	if event.Status == "SUCCESS" {
		logger = a.log.Info()
	}
	logger.Str("event_type", event.EventType).
		Str("reference", event.Reference).
		Str("account_id", event.AccountID).
		Int64("amount", event.Amount).
		Str("status", event.Status).
		Interface("details", event.Details).
		Msg("audit")
}
