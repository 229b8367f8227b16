/**
 * @description
 * This file defines the core domain models for the Plutus ledger service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, persistence, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (paisa),
 *   which avoids floating-point inaccuracies with financial data.
 * - `ToUserID` on a Transaction is a pointer because a transfer may settle
 *   against an account number that no known user owns; the money still leaves
 *   the system and the record is kept.
 */

package domain

import "time"

// User represents one account holder. The balance and daily-spend fields are
// owned exclusively by the ledger; nothing else may write them.
type User struct {
	UserID         string    `json:"user_id"`
	FullName       string    `json:"full_name"`
	AccountNumber  string    `json:"account_number"`
	Balance        int64     `json:"balance"` // in paisa
	DailyLimit     int64     `json:"daily_limit"`
	DailySentDate  string    `json:"daily_sent_date"` // YYYY-MM-DD of the running total
	DailyTotalSent int64     `json:"daily_total_sent"`
	CreatedAt      time.Time `json:"created_at"`
}

// Beneficiary is an owner-scoped named pointer to a destination account.
// The relation is directional: owner -> target, never mutual.
type Beneficiary struct {
	BeneficiaryID string    `json:"beneficiary_id"`
	OwnerUserID   string    `json:"owner_user_id"`
	Name          string    `json:"name"`
	AccountNumber string    `json:"account_number"`
	AddedAt       time.Time `json:"added_at"`
}

// Transaction is the immutable record of one completed transfer. Once
// appended it is never modified or deleted; the transaction log is the source
// of truth for balance reconstruction.
type Transaction struct {
	TransactionID   string    `json:"transaction_id"`
	FromUserID      string    `json:"from_user_id"`
	ToUserID        *string   `json:"to_user_id,omitempty"`
	ToAccountNumber string    `json:"to_account_number"`
	Amount          int64     `json:"amount"` // in paisa
	Description     string    `json:"description"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}

// Transaction statuses. Rejected transfers are never persisted as
// transactions, so the only terminal status a record can carry is completed.
const (
	TxStatusCompleted = "completed"
)

// AuditAction enumerates every action the audit trail records.
type AuditAction string

const (
	ActionBalanceCheck      AuditAction = "balance_check"
	ActionTransfer          AuditAction = "transfer"
	ActionDeposit           AuditAction = "deposit"
	ActionWithdraw          AuditAction = "withdraw"
	ActionAddBeneficiary    AuditAction = "add_beneficiary"
	ActionRemoveBeneficiary AuditAction = "remove_beneficiary"
	ActionSearchBeneficiary AuditAction = "search_beneficiary"
	ActionRegister          AuditAction = "register"
)

// AuditLogEntry is an append-only record of an action taken, written for
// every state-changing or sensitive read regardless of outcome.
type AuditLogEntry struct {
	LogID     string      `json:"log_id"`
	UserID    string      `json:"user_id"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details"` // JSON payload
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
}

// TransferRequest is the DTO for an incoming transfer. Exactly one of
// BeneficiaryRef (beneficiary id or name) or ToAccountNumber identifies the
// recipient; Amount is a decimal string such as "150.00".
type TransferRequest struct {
	BeneficiaryRef  string `json:"beneficiary"`
	ToAccountNumber string `json:"to_account_number"`
	Amount          string `json:"amount"`
	Description     string `json:"description"`
}

// TransferResult echoes the request back to the caller together with the
// identifiers it needs to reconcile the transfer.
type TransferResult struct {
	TransactionID   string `json:"transaction_id"`
	Status          string `json:"status"`
	ToAccountNumber string `json:"to_account_number"`
	Amount          int64  `json:"amount"`
	Description     string `json:"description"`
	NewBalance      int64  `json:"new_balance"`
}

// RegisterUserRequest is the DTO for creating a new account.
type RegisterUserRequest struct {
	FullName      string `json:"full_name"`
	AccountNumber string `json:"account_number"`
}

// BalanceInfo is the response shape for a balance inquiry.
type BalanceInfo struct {
	UserID        string `json:"user_id"`
	AccountNumber string `json:"account_number"`
	Balance       int64  `json:"balance"`
}
