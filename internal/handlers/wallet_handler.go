package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/markethub/walletd/internal/models"
	"github.com/markethub/walletd/internal/services"
)

// WalletHandler is thin HTTP glue over the ledger service. All ledger
// semantics live below; this layer decodes requests, derives the owner
// from the request context, and maps domain errors to status codes.
type WalletHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
}

func NewWalletHandler(ledger *services.LedgerService) *WalletHandler {
	return &WalletHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

type moveFundsRequest struct {
	Amount    int64             `json:"amount" validate:"required,gt=0"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata"`
}

type transferRequest struct {
	ToOwnerID string            `json:"toOwnerId" validate:"required"`
	Amount    int64             `json:"amount" validate:"required,gt=0"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata"`
}

type reverseRequest struct {
	Reference string `json:"reference" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=200"`
}

// GetBalance returns the caller's spendable balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), ownerID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance":  account.Balance,
		"currency": account.Currency,
		"status":   account.Status,
	})
}

// Deposit credits the caller's wallet.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req moveFundsRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.ledger.Deposit(r.Context(), ownerID, req.Amount, req.Reference, req.Metadata)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "entry": entry})
}

// Withdraw debits the caller's wallet.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req moveFundsRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.ledger.Withdraw(r.Context(), ownerID, req.Amount, req.Reference, req.Metadata)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "entry": entry})
}

// Transfer moves funds from the caller to another owner.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.ledger.Transfer(r.Context(), ownerID, req.ToOwnerID, req.Amount, req.Reference, req.Metadata)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "transfer": result})
}

// Reverse undoes a completed entry.
func (h *WalletHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.ledger.Reverse(r.Context(), req.Reference, req.Reason)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "entry": entry})
}

// History lists the caller's ledger entries with optional filters.
func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	query := r.URL.Query()
	filter := models.EntryFilter{
		Type:   models.EntryType(query.Get("type")),
		Status: models.EntryStatus(query.Get("status")),
	}
	if v := query.Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = ts
		}
	}
	if v := query.Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = ts
		}
	}

	page := models.Page{}
	if v, err := strconv.Atoi(query.Get("page")); err == nil {
		page.Number = v
	}
	if v, err := strconv.Atoi(query.Get("limit")); err == nil {
		page.Limit = v
	}

	entries, err := h.ledger.History(r.Context(), ownerID, filter, page)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Stats returns the caller's reconciliation view.
func (h *WalletHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	stats, err := h.ledger.Stats(r.Context(), ownerID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *WalletHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func ownerFromContext(r *http.Request) (string, bool) {
	ownerID, ok := r.Context().Value("ownerID").(string)
	return ownerID, ok && ownerID != ""
}

// sendDomainError maps the ledger error taxonomy onto HTTP status
// codes without leaking internals.
func sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		services.SendErrorResponse(w, "Insufficient funds", http.StatusUnprocessableEntity, nil)
	case errors.Is(err, models.ErrAccountFrozen):
		services.SendErrorResponse(w, "Account is frozen", http.StatusForbidden, nil)
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrEntryNotFound):
		services.SendErrorResponse(w, "Not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrInvalidTransition):
		services.SendErrorResponse(w, "Invalid operation for current status", http.StatusConflict, nil)
	case errors.Is(err, models.ErrDuplicateReference):
		services.SendErrorResponse(w, "Duplicate reference", http.StatusConflict, nil)
	case errors.Is(err, models.ErrSameAccount), errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrCurrencyMismatch):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, models.ErrConcurrencyConflict):
		services.SendErrorResponse(w, "Temporary conflict, retry the request", http.StatusServiceUnavailable, nil)
	default:
		services.SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
