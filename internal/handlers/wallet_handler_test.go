package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markethub/walletd/internal/audit"
	"github.com/markethub/walletd/internal/config"
	"github.com/markethub/walletd/internal/events"
	"github.com/markethub/walletd/internal/services"
)

func newTestHandler(t *testing.T) (*WalletHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.LedgerConfig{MaxRetries: 1, DefaultCurrency: "USD", CompensationRetries: 1}
	auditLog := audit.NewLogger(zerolog.Nop())
	publisher := events.NopPublisher{}
	txlog := services.NewTransactionLog(db, zerolog.Nop())
	engine := services.NewBalanceEngine(db, txlog, cfg, zerolog.Nop())
	coordinator := services.NewTransferCoordinator(engine, publisher, auditLog, cfg, zerolog.Nop())
	ledger := services.NewLedgerService(engine, txlog, coordinator, publisher, auditLog, cfg, zerolog.Nop())
	return NewWalletHandler(ledger), mock
}

func authed(r *http.Request, ownerID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "ownerID", ownerID))
}

func TestWalletHandler_GetBalance(t *testing.T) {
	t.Run("unauthorized without owner", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		w := httptest.NewRecorder()
		handler.GetBalance(w, httptest.NewRequest("GET", "/wallet/balance", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("returns balance", func(t *testing.T) {
		handler, mock := newTestHandler(t)

		mock.ExpectQuery("SELECT .* FROM accounts WHERE owner_id").
			WithArgs("owner-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "balance", "currency", "status", "version", "created_at", "updated_at"}).
				AddRow("acc-1", "owner-1", int64(750), "USD", "active", 1, time.Now(), time.Now()))

		w := httptest.NewRecorder()
		handler.GetBalance(w, authed(httptest.NewRequest("GET", "/wallet/balance", nil), "owner-1"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"balance":750`)
	})

	t.Run("unknown owner maps to 404", func(t *testing.T) {
		handler, mock := newTestHandler(t)

		mock.ExpectQuery("SELECT .* FROM accounts WHERE owner_id").
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "balance", "currency", "status", "version", "created_at", "updated_at"}))

		w := httptest.NewRecorder()
		handler.GetBalance(w, authed(httptest.NewRequest("GET", "/wallet/balance", nil), "stranger"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWalletHandler_Withdraw(t *testing.T) {
	t.Run("insufficient funds maps to 422", func(t *testing.T) {
		handler, mock := newTestHandler(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .* FROM accounts WHERE owner_id").
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "balance", "currency", "status", "version", "created_at", "updated_at"}).
				AddRow("acc-1", "owner-1", int64(100), "USD", "active", 1, time.Now(), time.Now()))
		mock.ExpectRollback()

		body := strings.NewReader(`{"amount": 700, "reference": "wd-1"}`)
		w := httptest.NewRecorder()
		handler.Withdraw(w, authed(httptest.NewRequest("POST", "/wallet/withdraw", body), "owner-1"))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "Insufficient funds")
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		body := strings.NewReader(`{"amount": -5}`)
		w := httptest.NewRecorder()
		handler.Withdraw(w, authed(httptest.NewRequest("POST", "/wallet/withdraw", body), "owner-1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		body := strings.NewReader(`{"amount": 100, "hack": true}`)
		w := httptest.NewRecorder()
		handler.Withdraw(w, authed(httptest.NewRequest("POST", "/wallet/withdraw", body), "owner-1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWalletHandler_Transfer(t *testing.T) {
	t.Run("same account maps to 400", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		body := strings.NewReader(`{"toOwnerId": "owner-1", "amount": 100}`)
		w := httptest.NewRecorder()
		handler.Transfer(w, authed(httptest.NewRequest("POST", "/wallet/transfer", body), "owner-1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
