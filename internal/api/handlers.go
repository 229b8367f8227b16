/**
 * @description
 * This file contains the HTTP handlers for the ledger service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * Every response uses the same envelope: {"status": "success"|"error",
 * "message": ..., "data": ...} with an "error_code" and "request_id" on
 * errors, so a chatbot caller can branch on machine-readable fields.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain and friends: Service logic, models, errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hamza-sanaullah/Plutus/internal/app"
	"github.com/hamza-sanaullah/Plutus/internal/beneficiary"
	"github.com/hamza-sanaullah/Plutus/internal/domain"
	"github.com/hamza-sanaullah/Plutus/internal/ledger"
	"github.com/hamza-sanaullah/Plutus/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
	logger  *slog.Logger
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service, logger *slog.Logger) *LedgerHandlers {
	return &LedgerHandlers{service: service, logger: logger}
}

type responseEnvelope struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type balanceResponse struct {
	UserID        string `json:"user_id"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
}

type transferResponse struct {
	TransactionID   string `json:"transaction_id"`
	Status          string `json:"status"`
	ToAccountNumber string `json:"to_account_number"`
	Amount          string `json:"amount"`
	Description     string `json:"description,omitempty"`
	NewBalance      string `json:"new_balance"`
}

type transactionResponse struct {
	TransactionID   string  `json:"transaction_id"`
	FromUserID      string  `json:"from_user_id"`
	ToUserID        *string `json:"to_user_id,omitempty"`
	ToAccountNumber string  `json:"to_account_number"`
	Amount          string  `json:"amount"`
	Description     string  `json:"description,omitempty"`
	Status          string  `json:"status"`
	Timestamp       string  `json:"timestamp"`
}

type userResponse struct {
	UserID        string `json:"user_id"`
	FullName      string `json:"full_name"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
	DailyLimit    string `json:"daily_limit"`
	CreatedAt     string `json:"created_at"`
}

func toTransactionResponse(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID:   tx.TransactionID,
		FromUserID:      tx.FromUserID,
		ToUserID:        tx.ToUserID,
		ToAccountNumber: tx.ToAccountNumber,
		Amount:          domain.FormatAmount(tx.Amount),
		Description:     tx.Description,
		Status:          tx.Status,
		Timestamp:       tx.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// RegisterUserHandler handles POST /api/users.
func (h *LedgerHandlers) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())

	var req domain.RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_JSON", requestID)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req, requestID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}

	h.writeSuccess(w, http.StatusCreated, "Account created", userResponse{
		UserID:        u.UserID,
		FullName:      u.FullName,
		AccountNumber: u.AccountNumber,
		Balance:       domain.FormatAmount(u.Balance),
		DailyLimit:    domain.FormatAmount(u.DailyLimit),
		CreatedAt:     u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// BalanceHandler handles GET /api/users/{userID}/balance.
func (h *LedgerHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	info, err := h.service.GetBalance(r.Context(), userID, requestID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}

	h.writeSuccess(w, http.StatusOK, "Balance retrieved", balanceResponse{
		UserID:        info.UserID,
		AccountNumber: info.AccountNumber,
		Balance:       domain.FormatAmount(info.Balance),
	})
}

// TransferHandler handles POST /api/users/{userID}/transfers.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_JSON", requestID)
		return
	}

	result, err := h.service.Transfer(r.Context(), userID, req, requestID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}

	h.writeSuccess(w, http.StatusCreated, "Transfer completed", transferResponse{
		TransactionID:   result.TransactionID,
		Status:          result.Status,
		ToAccountNumber: result.ToAccountNumber,
		Amount:          domain.FormatAmount(result.Amount),
		Description:     result.Description,
		NewBalance:      domain.FormatAmount(result.NewBalance),
	})
}

type cashRequest struct {
	Amount string `json:"amount"`
}

type cashResponse struct {
	UserID     string `json:"user_id"`
	Amount     string `json:"amount"`
	NewBalance string `json:"new_balance"`
}

// DepositHandler handles POST /api/users/{userID}/deposits.
func (h *LedgerHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_JSON", requestID)
		return
	}

	newBalance, err := h.service.Deposit(r.Context(), userID, req.Amount, requestID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}
	h.writeSuccess(w, http.StatusCreated, "Deposit completed", cashResponse{
		UserID:     userID,
		Amount:     req.Amount,
		NewBalance: domain.FormatAmount(newBalance),
	})
}

// WithdrawHandler handles POST /api/users/{userID}/withdrawals.
func (h *LedgerHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_JSON", requestID)
		return
	}

	newBalance, err := h.service.Withdraw(r.Context(), userID, req.Amount, requestID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}
	h.writeSuccess(w, http.StatusCreated, "Withdrawal completed", cashResponse{
		UserID:     userID,
		Amount:     req.Amount,
		NewBalance: domain.FormatAmount(newBalance),
	})
}

// TransactionHistoryHandler handles GET /api/users/{userID}/transactions.
// An optional ?limit=N caps the number of entries, newest first.
func (h *LedgerHandlers) TransactionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit parameter", "INVALID_LIMIT", requestID)
			return
		}
		limit = n
	}

	txs, err := h.service.TransactionHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	h.writeSuccess(w, http.StatusOK, "Transactions retrieved", out)
}

// GetTransactionHandler handles GET /api/users/{userID}/transactions/{transactionID}.
func (h *LedgerHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	transactionID := chi.URLParam(r, "transactionID")

	tx, err := h.service.GetTransaction(r.Context(), userID, transactionID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Transaction retrieved", toTransactionResponse(*tx))
}

type addBeneficiaryRequest struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
}

type beneficiaryResponse struct {
	BeneficiaryID string `json:"beneficiary_id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	AddedAt       string `json:"added_at"`
}

func toBeneficiaryResponse(b domain.Beneficiary) beneficiaryResponse {
	return beneficiaryResponse{
		BeneficiaryID: b.BeneficiaryID,
		Name:          b.Name,
		AccountNumber: b.AccountNumber,
		AddedAt:       b.AddedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// AddBeneficiaryHandler handles POST /api/users/{userID}/beneficiaries.
func (h *LedgerHandlers) AddBeneficiaryHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	var req addBeneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_JSON", requestID)
		return
	}

	b, err := h.service.AddBeneficiary(r.Context(), userID, strings.TrimSpace(req.Name), strings.TrimSpace(req.AccountNumber), requestID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}
	h.writeSuccess(w, http.StatusCreated, "Beneficiary added", toBeneficiaryResponse(*b))
}

// ListBeneficiariesHandler handles GET /api/users/{userID}/beneficiaries.
func (h *LedgerHandlers) ListBeneficiariesHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	list, err := h.service.ListBeneficiaries(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}
	out := make([]beneficiaryResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBeneficiaryResponse(b))
	}
	h.writeSuccess(w, http.StatusOK, "Beneficiaries retrieved", out)
}

// SearchBeneficiariesHandler handles GET /api/users/{userID}/beneficiaries/search?q=.
func (h *LedgerHandlers) SearchBeneficiariesHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	query := r.URL.Query().Get("q")

	matches, err := h.service.SearchBeneficiaries(r.Context(), userID, query, requestID)
	if err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}
	out := make([]beneficiaryResponse, 0, len(matches))
	for _, b := range matches {
		out = append(out, toBeneficiaryResponse(b))
	}
	h.writeSuccess(w, http.StatusOK, "Search complete", out)
}

// RemoveBeneficiaryHandler handles DELETE /api/users/{userID}/beneficiaries/{beneficiaryID}.
func (h *LedgerHandlers) RemoveBeneficiaryHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	beneficiaryID := chi.URLParam(r, "beneficiaryID")

	if err := h.service.RemoveBeneficiary(r.Context(), userID, beneficiaryID, requestID); err != nil {
		h.writeServiceError(w, r, err, requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Beneficiary removed", nil)
}

// writeServiceError maps service errors onto HTTP statuses and machine
// readable error codes.
func (h *LedgerHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	var partial *app.PartialFailureError

	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "User not found", "USER_NOT_FOUND", requestID)
	case errors.Is(err, app.ErrRecipientNotFound), errors.Is(err, beneficiary.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "RECIPIENT_NOT_FOUND", requestID)
	case errors.Is(err, app.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, "Transaction not found", "TRANSACTION_NOT_FOUND", requestID)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error(), "INSUFFICIENT_FUNDS", requestID)
	case errors.Is(err, ledger.ErrDailyLimitExceeded):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "DAILY_LIMIT_EXCEEDED", requestID)
	case errors.Is(err, domain.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, err.Error(), "INVALID_AMOUNT", requestID)
	case errors.Is(err, app.ErrInvalidAccountNumber):
		h.writeError(w, http.StatusBadRequest, err.Error(), "INVALID_ACCOUNT_NUMBER", requestID)
	case errors.Is(err, app.ErrInvalidName):
		h.writeError(w, http.StatusBadRequest, err.Error(), "INVALID_NAME", requestID)
	case errors.Is(err, beneficiary.ErrDuplicateName), errors.Is(err, beneficiary.ErrDuplicateAcct):
		h.writeError(w, http.StatusConflict, err.Error(), "DUPLICATE_BENEFICIARY", requestID)
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error(), "RATE_LIMITED", requestID)
	case errors.As(err, &partial):
		// The debit landed; the caller must not blindly retry.
		h.logger.Error("partial failure surfaced to client",
			"request_id", requestID, "transaction_id", partial.TransactionID, "stage", partial.Stage, "err", partial.Err)
		h.writeJSON(w, http.StatusInternalServerError, responseEnvelope{
			Status:    "error",
			Message:   "Transfer debited but could not be fully recorded; do not retry. Contact support with the transaction id.",
			ErrorCode: "PARTIAL_FAILURE",
			RequestID: requestID,
			Data:      map[string]string{"transaction_id": partial.TransactionID},
		})
	case errors.Is(err, store.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Storage unavailable, try again later", "STORAGE_UNAVAILABLE", requestID)
	default:
		h.logger.Error("unhandled service error", "request_id", requestID, "path", r.URL.Path, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL", requestID)
	}
}

func (h *LedgerHandlers) writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	h.writeJSON(w, status, responseEnvelope{Status: "success", Message: message, Data: data})
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message, code, requestID string) {
	h.writeJSON(w, status, responseEnvelope{Status: "error", Message: message, ErrorCode: code, RequestID: requestID})
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
