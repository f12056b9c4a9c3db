package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markethub/walletd/internal/audit"
	"github.com/markethub/walletd/internal/config"
	"github.com/markethub/walletd/internal/events"
	"github.com/markethub/walletd/internal/models"
)

// fakeEngine is an in-memory EntryApplier tracking balances per owner,
// so coordinator tests exercise real saga behavior without SQL.
type fakeEngine struct {
	mu       sync.Mutex
	balances map[string]int64
	frozen   map[string]bool
	entries  map[string]*models.LedgerEntry
	failNext map[string]error // reference -> forced failure
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		balances: map[string]int64{},
		frozen:   map[string]bool{},
		entries:  map[string]*models.LedgerEntry{},
		failNext: map[string]error{},
	}
}

func (f *fakeEngine) Apply(_ context.Context, intent models.EntryIntent) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.entries[intent.Reference]; ok {
		return existing, nil
	}
	if err, ok := f.failNext[intent.Reference]; ok {
		delete(f.failNext, intent.Reference)
		return nil, err
	}
	if f.frozen[intent.OwnerID] {
		return nil, models.ErrAccountFrozen
	}
	if intent.Type == models.EntryDebit {
		if f.balances[intent.OwnerID] < intent.Amount {
			return nil, models.ErrInsufficientFunds
		}
		f.balances[intent.OwnerID] -= intent.Amount
	} else {
		f.balances[intent.OwnerID] += intent.Amount
	}

	entry := &models.LedgerEntry{
		Reference:        intent.Reference,
		AccountID:        "acct:" + intent.OwnerID,
		Type:             intent.Type,
		Amount:           intent.Amount,
		Currency:         "USD",
		Status:           models.StatusCompleted,
		RelatedReference: intent.RelatedReference,
	}
	f.entries[intent.Reference] = entry
	return entry, nil
}

func (f *fakeEngine) TransitionStatus(_ context.Context, reference string, newStatus models.EntryStatus) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failNext[reference+":transition"]; ok {
		delete(f.failNext, reference+":transition")
		return nil, err
	}
	entry, ok := f.entries[reference]
	if !ok {
		return nil, models.ErrEntryNotFound
	}
	if entry.Status == newStatus {
		return entry, nil
	}
	if err := models.Transition(entry.Status, newStatus); err != nil {
		return nil, err
	}
	if entry.Status == models.StatusCompleted && newStatus == models.StatusReversed {
		owner := entry.AccountID[len("acct:"):]
		if entry.Type == models.EntryDebit {
			f.balances[owner] += entry.Amount
		} else {
			f.balances[owner] -= entry.Amount
		}
	}
	entry.Status = newStatus
	return entry, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) byType(eventType string) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestCoordinator(engine EntryApplier) (*TransferCoordinator, *capturePublisher) {
	publisher := &capturePublisher{}
	cfg := &config.LedgerConfig{CompensationRetries: 3, CompensationBackoff: 0}
	coordinator := NewTransferCoordinator(engine, publisher, audit.NewLogger(zerolog.Nop()), cfg, zerolog.Nop())
	return coordinator, publisher
}

func TestTransferCoordinator_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds and links the legs", func(t *testing.T) {
		engine := newFakeEngine()
		engine.balances["alice"] = 1000
		coordinator, _ := newTestCoordinator(engine)

		result, err := coordinator.Transfer(ctx, "alice", "bob", 400, "ref-1", nil)
		require.NoError(t, err)

		assert.Equal(t, int64(600), engine.balances["alice"])
		assert.Equal(t, int64(400), engine.balances["bob"])
		assert.Equal(t, "ref-1:credit", result.Debit.RelatedReference)
		assert.Equal(t, "ref-1:debit", result.Credit.RelatedReference)
		assert.Equal(t, models.StatusCompleted, result.Debit.Status)
		assert.Equal(t, models.StatusCompleted, result.Credit.Status)
	})

	t.Run("retry is idempotent", func(t *testing.T) {
		engine := newFakeEngine()
		engine.balances["alice"] = 1000
		coordinator, _ := newTestCoordinator(engine)

		_, err := coordinator.Transfer(ctx, "alice", "bob", 400, "ref-1", nil)
		require.NoError(t, err)

		result, err := coordinator.Transfer(ctx, "alice", "bob", 400, "ref-1", nil)
		require.NoError(t, err)

		assert.Equal(t, int64(600), engine.balances["alice"], "no double move")
		assert.Equal(t, int64(400), engine.balances["bob"])
		assert.Equal(t, models.StatusCompleted, result.Debit.Status)
	})

	t.Run("insufficient funds aborts before the credit leg", func(t *testing.T) {
		engine := newFakeEngine()
		engine.balances["alice"] = 100
		coordinator, publisher := newTestCoordinator(engine)

		_, err := coordinator.Transfer(ctx, "alice", "bob", 400, "ref-2", nil)
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		assert.Equal(t, int64(100), engine.balances["alice"])
		assert.Equal(t, int64(0), engine.balances["bob"])
		assert.Len(t, publisher.byType(events.TypeTransferFailed), 1)
	})

	t.Run("failed credit leg is compensated", func(t *testing.T) {
		engine := newFakeEngine()
		engine.balances["alice"] = 1000
		engine.frozen["bob"] = true
		coordinator, publisher := newTestCoordinator(engine)

		_, err := coordinator.Transfer(ctx, "alice", "bob", 400, "ref-3", nil)
		assert.ErrorIs(t, err, models.ErrAccountFrozen)

		assert.Equal(t, int64(1000), engine.balances["alice"], "debit was reversed")
		assert.Equal(t, int64(0), engine.balances["bob"])
		assert.Equal(t, models.StatusReversed, engine.entries["ref-3:debit"].Status)
		assert.Len(t, publisher.byType(events.TypeTransferFailed), 1)
	})

	t.Run("compensation retries transient failures", func(t *testing.T) {
		engine := newFakeEngine()
		engine.balances["alice"] = 1000
		engine.frozen["bob"] = true
		engine.failNext["ref-4:debit:transition"] = fmt.Errorf("%w", models.ErrPersistenceFailure)
		coordinator, _ := newTestCoordinator(engine)

		_, err := coordinator.Transfer(ctx, "alice", "bob", 400, "ref-4", nil)
		assert.Error(t, err)
		assert.Equal(t, int64(1000), engine.balances["alice"], "second compensation attempt succeeded")
	})

	t.Run("replayed transfer after compensation does not re-debit", func(t *testing.T) {
		engine := newFakeEngine()
		engine.balances["alice"] = 1000
		engine.frozen["bob"] = true
		coordinator, _ := newTestCoordinator(engine)

		_, err := coordinator.Transfer(ctx, "alice", "bob", 400, "ref-5", nil)
		require.Error(t, err)
		require.Equal(t, int64(1000), engine.balances["alice"])

		// Destination thaws, caller retries the same reference. The
		// reversed debit leg must not be silently re-run.
		delete(engine.frozen, "bob")
		_, err = coordinator.Transfer(ctx, "alice", "bob", 400, "ref-5", nil)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.Equal(t, int64(1000), engine.balances["alice"])
		assert.Equal(t, int64(0), engine.balances["bob"])
	})

	t.Run("rejects same account and bad amounts", func(t *testing.T) {
		coordinator, _ := newTestCoordinator(newFakeEngine())

		_, err := coordinator.Transfer(ctx, "alice", "alice", 100, "ref-6", nil)
		assert.ErrorIs(t, err, models.ErrSameAccount)

		_, err = coordinator.Transfer(ctx, "alice", "bob", 0, "ref-7", nil)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)

		_, err = coordinator.Transfer(ctx, "alice", "bob", -5, "ref-8", nil)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})
}
