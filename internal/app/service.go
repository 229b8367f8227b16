/**
 * @description
 * This file contains the core business logic for the Plutus ledger service.
 * The `Service` struct is the transaction engine: it resolves a transfer
 * request into a validated, atomic balance mutation plus an immutable
 * transaction record and audit entry, and it exposes the read/maintenance
 * operations the HTTP boundary needs (balance, history, beneficiaries,
 * registration).
 *
 * Key invariants:
 * - The debit is durable before the transaction record is appended, and both
 *   complete before the caller sees success. A crash can therefore never
 *   leave a record claiming money moved when the balance was not mutated.
 * - Transfers from one sender are serialized by a per-sender mutex; unrelated
 *   senders proceed in parallel. Credits are serialized by the store's
 *   per-key atomic update.
 * - Appends after a durable debit are retried a bounded number of times and
 *   then surfaced as a PartialFailureError; the debit is never auto-reversed
 *   and never retried.
 *
 * @dependencies
 * - internal/ledger, internal/beneficiary, internal/audit, internal/store,
 *   internal/domain: The engine's collaborators.
 * - pkg/rabbitmq: Best-effort transfer event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hamza-sanaullah/Plutus/internal/audit"
	"github.com/hamza-sanaullah/Plutus/internal/beneficiary"
	"github.com/hamza-sanaullah/Plutus/internal/domain"
	"github.com/hamza-sanaullah/Plutus/internal/ledger"
	"github.com/hamza-sanaullah/Plutus/internal/store"
	"github.com/hamza-sanaullah/Plutus/pkg/rabbitmq"
)

const dateLayout = "2006-01-02"

var (
	// ErrRecipientNotFound is returned when neither a beneficiary reference
	// nor an account number identifies the transfer destination.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrRateLimited is returned when the sender has exceeded the configured
	// transfer attempts per window.
	ErrRateLimited = errors.New("too many transfer attempts")

	// ErrInvalidAccountNumber is returned at registration for account
	// numbers that fail the format rules.
	ErrInvalidAccountNumber = errors.New("invalid account number")

	// ErrInvalidName is returned at registration for blank names.
	ErrInvalidName = errors.New("full name is required")
)

// TransferRateLimiter counts transfer attempts per subject within a window.
// *RedisTransferRateLimiter is the production implementation.
type TransferRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// PartialFailureError reports a transfer whose debit was durably applied but
// whose confirming writes could not be recorded. The debit must never be
// silently reversed; the state is reconciled by re-reading the ledger and
// cross-checking the transaction log.
type PartialFailureError struct {
	TransactionID string
	Stage         string // "credit", "record" or "audit"
	Err           error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("transfer %s: debit applied but %s could not be recorded: %v", e.TransactionID, e.Stage, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// Config carries the engine's business knobs. Amounts are in paisa.
type Config struct {
	DefaultBalance    int64
	DefaultDailyLimit int64
	MinTransferAmount int64
	MaxTransferAmount int64

	// AppendRetries bounds how often a failed append is retried after a
	// durable debit. The debit itself is never retried.
	AppendRetries      int
	AppendRetryBackoff time.Duration

	// IOTimeout bounds how long the engine may hold a sender lock across
	// storage waits.
	IOTimeout time.Duration

	// TransfersPerMinute > 0 enables per-sender rate limiting when a
	// limiter is attached.
	TransfersPerMinute int
}

// Service is the transaction engine plus the boundary operations.
type Service struct {
	store     store.RecordStore
	ledger    *ledger.Ledger
	directory *beneficiary.Directory
	trail     *audit.Trail
	events    rabbitmq.Publisher
	limiter   TransferRateLimiter
	cfg       Config
	logger    *slog.Logger
	senders   *keyedMutex
	now       func() time.Time
}

// NewService wires the engine. events must not be nil; pass a NoopPublisher
// when no broker is configured. limiter may be nil to disable rate limiting.
func NewService(
	st store.RecordStore,
	ldg *ledger.Ledger,
	dir *beneficiary.Directory,
	trail *audit.Trail,
	events rabbitmq.Publisher,
	limiter TransferRateLimiter,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.AppendRetries <= 0 {
		cfg.AppendRetries = 3
	}
	if cfg.AppendRetryBackoff <= 0 {
		cfg.AppendRetryBackoff = 100 * time.Millisecond
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 10 * time.Second
	}
	return &Service{
		store:     st,
		ledger:    ldg,
		directory: dir,
		trail:     trail,
		events:    events,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
		senders:   newKeyedMutex(),
		now:       time.Now,
	}
}

// Transfer moves money from one user to a beneficiary or raw account number.
// On success the result carries the transaction id and the sender's new
// balance so the caller can reconcile.
func (s *Service) Transfer(ctx context.Context, fromUserID string, req domain.TransferRequest, requestID string) (*domain.TransferResult, error) {
	if s.limiter != nil && s.cfg.TransfersPerMinute > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "transfer", fromUserID, s.cfg.TransfersPerMinute, time.Minute)
		if err != nil {
			// A broken limiter must not block money movement.
			s.logger.Warn("rate limiter unavailable, allowing transfer", "user_id", fromUserID, "err", err)
		} else if count > s.cfg.TransfersPerMinute {
			s.logger.Warn("transfer rate limited", "user_id", fromUserID, "retry_after_s", retryAfter)
			return nil, fmt.Errorf("%w: retry after %ds", ErrRateLimited, retryAfter)
		}
	}

	// Resolve the recipient to an account number before touching any money.
	toAccount, err := s.resolveRecipient(ctx, fromUserID, req)
	if err != nil {
		s.auditRejected(ctx, fromUserID, req, requestID, "recipient_not_found")
		return nil, err
	}

	amount, err := domain.ParsePositiveAmount(req.Amount)
	if err != nil {
		s.auditRejected(ctx, fromUserID, req, requestID, "invalid_amount")
		return nil, err
	}
	if s.cfg.MinTransferAmount > 0 && amount < s.cfg.MinTransferAmount {
		s.auditRejected(ctx, fromUserID, req, requestID, "amount_below_minimum")
		return nil, fmt.Errorf("%w: minimum transfer is %s", domain.ErrInvalidAmount, domain.FormatAmount(s.cfg.MinTransferAmount))
	}
	if s.cfg.MaxTransferAmount > 0 && amount > s.cfg.MaxTransferAmount {
		s.auditRejected(ctx, fromUserID, req, requestID, "amount_above_maximum")
		return nil, fmt.Errorf("%w: maximum transfer is %s", domain.ErrInvalidAmount, domain.FormatAmount(s.cfg.MaxTransferAmount))
	}

	// Serialize everything that mutates this sender's balance. The lock is
	// held across bounded I/O only.
	unlock := s.senders.Lock(fromUserID)
	defer unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.IOTimeout)
	defer cancel()

	now := s.now().UTC()
	today := now.Format(dateLayout)

	newBalance, err := s.ledger.ReserveAndDebit(opCtx, fromUserID, amount, today)
	if err != nil {
		s.auditRejected(ctx, fromUserID, req, requestID, rejectionReason(err))
		return nil, err
	}

	// From here on the debit is durable. Nothing below may reverse it.
	tx := &domain.Transaction{
		TransactionID:   domain.NewTransactionID(now),
		FromUserID:      fromUserID,
		ToAccountNumber: toAccount,
		Amount:          amount,
		Description:     req.Description,
		Status:          domain.TxStatusCompleted,
		Timestamp:       now,
	}

	var toUserID *string
	if err := s.withAppendRetry(opCtx, func() error {
		var creditErr error
		toUserID, creditErr = s.ledger.Credit(opCtx, toAccount, amount)
		return creditErr
	}); err != nil {
		return nil, s.partialFailure(tx, "credit", err)
	}
	tx.ToUserID = toUserID

	if err := s.withAppendRetry(opCtx, func() error {
		return s.store.Append(opCtx, store.Transactions, encodeTransaction(tx))
	}); err != nil {
		return nil, s.partialFailure(tx, "record", err)
	}

	if err := s.withAppendRetry(opCtx, func() error {
		_, auditErr := s.trail.Record(opCtx, fromUserID, domain.ActionTransfer, map[string]any{
			"transaction_id":    tx.TransactionID,
			"to_account_number": toAccount,
			"amount":            domain.FormatAmount(amount),
			"new_balance":       domain.FormatAmount(newBalance),
			"outcome":           "completed",
		}, requestID)
		return auditErr
	}); err != nil {
		return nil, s.partialFailure(tx, "audit", err)
	}

	if err := s.events.PublishTransferEvent(ctx, rabbitmq.TransferEvent{
		TransactionID:   tx.TransactionID,
		FromUserID:      tx.FromUserID,
		ToUserID:        tx.ToUserID,
		ToAccountNumber: tx.ToAccountNumber,
		Amount:          tx.Amount,
		Timestamp:       tx.Timestamp,
	}); err != nil {
		s.logger.Warn("transfer event publish failed", "transaction_id", tx.TransactionID, "err", err)
	}

	s.logger.Info("transfer completed",
		"request_id", requestID,
		"transaction_id", tx.TransactionID,
		"from", fromUserID,
		"to_account", toAccount,
		"amount", amount,
	)

	return &domain.TransferResult{
		TransactionID:   tx.TransactionID,
		Status:          tx.Status,
		ToAccountNumber: toAccount,
		Amount:          amount,
		Description:     req.Description,
		NewBalance:      newBalance,
	}, nil
}

// resolveRecipient maps the request's beneficiary reference or raw account
// number onto a destination account number.
func (s *Service) resolveRecipient(ctx context.Context, fromUserID string, req domain.TransferRequest) (string, error) {
	if req.BeneficiaryRef != "" {
		b, err := s.directory.Resolve(ctx, fromUserID, req.BeneficiaryRef)
		if err != nil {
			if errors.Is(err, beneficiary.ErrNotFound) {
				return "", fmt.Errorf("%w: %q", ErrRecipientNotFound, req.BeneficiaryRef)
			}
			return "", err
		}
		return b.AccountNumber, nil
	}
	if req.ToAccountNumber != "" {
		return req.ToAccountNumber, nil
	}
	return "", fmt.Errorf("%w: no beneficiary or account number given", ErrRecipientNotFound)
}

// withAppendRetry retries fn on storage failures with a linear backoff. Only
// ErrStorageUnavailable is retryable; business errors pass through at once.
func (s *Service) withAppendRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.cfg.AppendRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrStorageUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(s.cfg.AppendRetryBackoff * time.Duration(attempt+1)):
		}
	}
	return err
}

func (s *Service) partialFailure(tx *domain.Transaction, stage string, err error) error {
	s.logger.Error("transfer in partial-failure state, debit applied",
		"transaction_id", tx.TransactionID, "from", tx.FromUserID, "stage", stage, "err", err)
	return &PartialFailureError{TransactionID: tx.TransactionID, Stage: stage, Err: err}
}

func (s *Service) auditRejected(ctx context.Context, fromUserID string, req domain.TransferRequest, requestID, reason string) {
	s.trail.RecordBestEffort(ctx, fromUserID, domain.ActionTransfer, map[string]any{
		"outcome":     "rejected",
		"reason":      reason,
		"beneficiary": req.BeneficiaryRef,
		"amount":      req.Amount,
	}, requestID)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, ledger.ErrUserNotFound):
		return "user_not_found"
	default:
		return "storage_error"
	}
}

// GetBalance returns the caller's balance and records the sensitive read.
func (s *Service) GetBalance(ctx context.Context, userID, requestID string) (*domain.BalanceInfo, error) {
	u, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.trail.RecordBestEffort(ctx, userID, domain.ActionBalanceCheck, map[string]any{
		"balance": domain.FormatAmount(u.Balance),
	}, requestID)
	return &domain.BalanceInfo{
		UserID:        u.UserID,
		AccountNumber: u.AccountNumber,
		Balance:       u.Balance,
	}, nil
}

// Deposit credits the user's own account with amount and returns the new
// balance. Deposits do not count toward the daily send limit.
func (s *Service) Deposit(ctx context.Context, userID, amount, requestID string) (int64, error) {
	paisa, err := domain.ParsePositiveAmount(amount)
	if err != nil {
		return 0, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.IOTimeout)
	defer cancel()

	newBalance, err := s.ledger.CreditUser(opCtx, userID, paisa)
	if err != nil {
		return 0, err
	}
	s.trail.RecordBestEffort(ctx, userID, domain.ActionDeposit, map[string]any{
		"amount":      domain.FormatAmount(paisa),
		"new_balance": domain.FormatAmount(newBalance),
	}, requestID)
	return newBalance, nil
}

// Withdraw debits the user's own account with amount and returns the new
// balance. Withdrawals move money out of the modeled system, so they count
// toward the daily send limit like any other outflow.
func (s *Service) Withdraw(ctx context.Context, userID, amount, requestID string) (int64, error) {
	paisa, err := domain.ParsePositiveAmount(amount)
	if err != nil {
		return 0, err
	}

	unlock := s.senders.Lock(userID)
	defer unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.IOTimeout)
	defer cancel()

	today := s.now().UTC().Format(dateLayout)
	newBalance, err := s.ledger.ReserveAndDebit(opCtx, userID, paisa, today)
	if err != nil {
		s.trail.RecordBestEffort(ctx, userID, domain.ActionWithdraw, map[string]any{
			"outcome": "rejected",
			"reason":  rejectionReason(err),
			"amount":  amount,
		}, requestID)
		return 0, err
	}
	s.trail.RecordBestEffort(ctx, userID, domain.ActionWithdraw, map[string]any{
		"amount":      domain.FormatAmount(paisa),
		"new_balance": domain.FormatAmount(newBalance),
	}, requestID)
	return newBalance, nil
}

// RegisterUser creates a new account with the default starting balance and
// daily limit. Account numbers are caller-supplied and deliberately not
// checked for global uniqueness.
func (s *Service) RegisterUser(ctx context.Context, req domain.RegisterUserRequest, requestID string) (*domain.User, error) {
	if len(req.FullName) == 0 {
		return nil, ErrInvalidName
	}
	if err := validateAccountNumber(req.AccountNumber); err != nil {
		return nil, err
	}

	u := &domain.User{
		UserID:         domain.NewUserID(),
		FullName:       req.FullName,
		AccountNumber:  req.AccountNumber,
		Balance:        s.cfg.DefaultBalance,
		DailyLimit:     s.cfg.DefaultDailyLimit,
		DailySentDate:  "",
		DailyTotalSent: 0,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.ledger.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.trail.RecordBestEffort(ctx, u.UserID, domain.ActionRegister, map[string]any{
		"account_number": u.AccountNumber,
	}, requestID)
	return u, nil
}

// validateAccountNumber applies the registration format rules: digits only,
// 10 to 20 of them, not all the same digit.
func validateAccountNumber(accountNumber string) error {
	if len(accountNumber) < 10 || len(accountNumber) > 20 {
		return fmt.Errorf("%w: must be 10-20 digits", ErrInvalidAccountNumber)
	}
	allSame := true
	for i, c := range accountNumber {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: must contain only digits", ErrInvalidAccountNumber)
		}
		if i > 0 && byte(c) != accountNumber[0] {
			allSame = false
		}
	}
	if allSame {
		return fmt.Errorf("%w: cannot be all the same digit", ErrInvalidAccountNumber)
	}
	return nil
}

// AddBeneficiary saves a named recipient for the owner.
func (s *Service) AddBeneficiary(ctx context.Context, ownerUserID, name, accountNumber, requestID string) (*domain.Beneficiary, error) {
	if _, err := s.ledger.GetUser(ctx, ownerUserID); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: beneficiary name is required", ErrInvalidName)
	}
	b, err := s.directory.Add(ctx, ownerUserID, name, accountNumber)
	if err != nil {
		return nil, err
	}
	s.trail.RecordBestEffort(ctx, ownerUserID, domain.ActionAddBeneficiary, map[string]any{
		"beneficiary_id": b.BeneficiaryID,
		"name":           b.Name,
		"account_number": b.AccountNumber,
	}, requestID)
	return b, nil
}

// RemoveBeneficiary deletes one of the owner's saved recipients.
func (s *Service) RemoveBeneficiary(ctx context.Context, ownerUserID, beneficiaryID, requestID string) error {
	if err := s.directory.Remove(ctx, ownerUserID, beneficiaryID); err != nil {
		return err
	}
	s.trail.RecordBestEffort(ctx, ownerUserID, domain.ActionRemoveBeneficiary, map[string]any{
		"beneficiary_id": beneficiaryID,
	}, requestID)
	return nil
}

// ListBeneficiaries returns the owner's saved recipients, oldest first.
func (s *Service) ListBeneficiaries(ctx context.Context, ownerUserID string) ([]domain.Beneficiary, error) {
	if _, err := s.ledger.GetUser(ctx, ownerUserID); err != nil {
		return nil, err
	}
	return s.directory.List(ctx, ownerUserID)
}

// SearchBeneficiaries returns the owner's recipients matching query and
// records the sensitive read. An empty result is not an error.
func (s *Service) SearchBeneficiaries(ctx context.Context, ownerUserID, query, requestID string) ([]domain.Beneficiary, error) {
	if _, err := s.ledger.GetUser(ctx, ownerUserID); err != nil {
		return nil, err
	}
	matches, err := s.directory.Search(ctx, ownerUserID, query)
	if err != nil {
		return nil, err
	}
	s.trail.RecordBestEffort(ctx, ownerUserID, domain.ActionSearchBeneficiary, map[string]any{
		"query":   query,
		"matches": len(matches),
	}, requestID)
	return matches, nil
}
