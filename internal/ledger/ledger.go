/**
 * @description
 * The ledger owns authoritative balance and daily-spend state per user. All
 * mutations flow through the record store's atomic per-key Update, so a
 * balance check and the write it guards can never be split by a concurrent
 * writer.
 *
 * Daily limits are lazy: the running total carries the calendar day it was
 * accumulated on, and any operation that sees a different day treats the
 * total as zero. There is no reset job.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and persistence contract.
 */

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hamza-sanaullah/Plutus/internal/domain"
	"github.com/hamza-sanaullah/Plutus/internal/store"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")
)

// Ledger reads and mutates the users collection.
type Ledger struct {
	store  store.RecordStore
	logger *slog.Logger
}

// New returns a ledger over the given record store.
func New(st store.RecordStore, logger *slog.Logger) *Ledger {
	return &Ledger{store: st, logger: logger}
}

// CreateUser persists a newly registered user.
func (l *Ledger) CreateUser(ctx context.Context, u *domain.User) error {
	return l.store.Put(ctx, store.Users, u.UserID, encodeUser(u))
}

// GetUser returns the user stored under userID.
func (l *Ledger) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	rec, err := l.store.Get(ctx, store.Users, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return decodeUser(rec)
}

// GetBalance returns the current balance in paisa.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	u, err := l.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// FindByAccountNumber returns the first user holding the given account
// number. Account numbers are user-supplied and not enforced unique; the
// oldest registration wins, matching scan order.
func (l *Ledger) FindByAccountNumber(ctx context.Context, accountNumber string) (*domain.User, error) {
	var found *domain.User
	err := l.store.Scan(ctx, store.Users, func(rec store.Record) bool {
		u, err := decodeUser(rec)
		if err != nil {
			return true
		}
		if u.AccountNumber == accountNumber {
			found = u
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrUserNotFound
	}
	return found, nil
}

// ReserveAndDebit checks that the user can afford amount today and, if so,
// decrements the balance and increases the daily running total in one durable
// write. today is the sender's calendar day as YYYY-MM-DD. Returns the new
// balance.
func (l *Ledger) ReserveAndDebit(ctx context.Context, userID string, amount int64, today string) (int64, error) {
	var newBalance int64
	err := l.store.Update(ctx, store.Users, userID, func(rec store.Record) (store.Record, error) {
		u, err := decodeUser(rec)
		if err != nil {
			return nil, err
		}

		sentToday := u.DailyTotalSent
		if u.DailySentDate != today {
			sentToday = 0
		}

		if u.Balance < amount {
			return nil, ErrInsufficientFunds
		}
		if sentToday+amount > u.DailyLimit {
			return nil, ErrDailyLimitExceeded
		}

		u.Balance -= amount
		u.DailySentDate = today
		u.DailyTotalSent = sentToday + amount
		newBalance = u.Balance
		return encodeUser(u), nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return newBalance, nil
}

// CreditUser adds amount to the balance of a known user in one atomic write
// and returns the new balance.
func (l *Ledger) CreditUser(ctx context.Context, userID string, amount int64) (int64, error) {
	var newBalance int64
	err := l.store.Update(ctx, store.Users, userID, func(rec store.Record) (store.Record, error) {
		u, err := decodeUser(rec)
		if err != nil {
			return nil, err
		}
		u.Balance += amount
		newBalance = u.Balance
		return encodeUser(u), nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return newBalance, nil
}

// Credit adds amount to the user owning accountNumber. If no known user owns
// the account the credit is a no-op and the returned user id is nil: the
// money has left the modeled system, which is an accepted outcome. The write
// is atomic per recipient.
func (l *Ledger) Credit(ctx context.Context, accountNumber string, amount int64) (*string, error) {
	recipient, err := l.FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			l.logger.Info("credit to external account, ledger untouched",
				"account_number", accountNumber, "amount", amount)
			return nil, nil
		}
		return nil, err
	}

	if _, err := l.CreditUser(ctx, recipient.UserID, amount); err != nil {
		return nil, err
	}
	return &recipient.UserID, nil
}

func encodeUser(u *domain.User) store.Record {
	return store.Record{
		u.UserID,
		u.FullName,
		u.AccountNumber,
		domain.FormatAmount(u.Balance),
		domain.FormatAmount(u.DailyLimit),
		u.DailySentDate,
		domain.FormatAmount(u.DailyTotalSent),
		u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func decodeUser(rec store.Record) (*domain.User, error) {
	if len(rec) != len(store.Users.Header) {
		return nil, fmt.Errorf("user record has %d columns, want %d", len(rec), len(store.Users.Header))
	}
	balance, err := domain.ParseAmount(rec[3])
	if err != nil {
		return nil, fmt.Errorf("user %s: bad balance %q", rec[0], rec[3])
	}
	limit, err := domain.ParseAmount(rec[4])
	if err != nil {
		return nil, fmt.Errorf("user %s: bad daily_limit %q", rec[0], rec[4])
	}
	sent, err := domain.ParseAmount(rec[6])
	if err != nil {
		return nil, fmt.Errorf("user %s: bad daily_total_sent %q", rec[0], rec[6])
	}
	createdAt, err := time.Parse(time.RFC3339, rec[7])
	if err != nil {
		return nil, fmt.Errorf("user %s: bad created_at %q", rec[0], rec[7])
	}
	return &domain.User{
		UserID:         rec[0],
		FullName:       rec[1],
		AccountNumber:  rec[2],
		Balance:        balance,
		DailyLimit:     limit,
		DailySentDate:  rec[5],
		DailyTotalSent: sent,
		CreatedAt:      createdAt,
	}, nil
}
