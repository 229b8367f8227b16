/**
 * @description
 * Transaction record encoding and read-side queries. The engine in service.go
 * is the only writer of the transactions collection; these helpers keep the
 * row layout in one place.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hamza-sanaullah/Plutus/internal/domain"
	"github.com/hamza-sanaullah/Plutus/internal/store"
)

// ErrTransactionNotFound is returned when a transaction id is unknown or not
// visible to the requesting user.
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionHistory returns every transaction involving userID, newest
// first. limit <= 0 means no limit.
func (s *Service) TransactionHistory(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if _, err := s.ledger.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	var out []domain.Transaction
	err := s.store.Scan(ctx, store.Transactions, func(rec store.Record) bool {
		tx, err := decodeTransaction(rec)
		if err != nil {
			s.logger.Warn("skipping unreadable transaction row", "err", err)
			return true
		}
		if tx.FromUserID == userID || (tx.ToUserID != nil && *tx.ToUserID == userID) {
			out = append(out, *tx)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetTransaction returns one transaction by id, visible only to the users it
// involves.
func (s *Service) GetTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error) {
	rec, err := s.store.Get(ctx, store.Transactions, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	tx, err := decodeTransaction(rec)
	if err != nil {
		return nil, ErrTransactionNotFound
	}
	if tx.FromUserID != userID && (tx.ToUserID == nil || *tx.ToUserID != userID) {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func encodeTransaction(tx *domain.Transaction) store.Record {
	toUser := ""
	if tx.ToUserID != nil {
		toUser = *tx.ToUserID
	}
	return store.Record{
		tx.TransactionID,
		tx.FromUserID,
		toUser,
		tx.ToAccountNumber,
		domain.FormatAmount(tx.Amount),
		tx.Description,
		tx.Status,
		tx.Timestamp.UTC().Format(time.RFC3339),
	}
}

func decodeTransaction(rec store.Record) (*domain.Transaction, error) {
	if len(rec) != len(store.Transactions.Header) {
		return nil, fmt.Errorf("transaction record has %d columns, want %d", len(rec), len(store.Transactions.Header))
	}
	amount, err := domain.ParseAmount(rec[4])
	if err != nil {
		return nil, fmt.Errorf("transaction %s: bad amount %q", rec[0], rec[4])
	}
	ts, err := time.Parse(time.RFC3339, rec[7])
	if err != nil {
		return nil, fmt.Errorf("transaction %s: bad timestamp %q", rec[0], rec[7])
	}
	var toUser *string
	if rec[2] != "" {
		v := rec[2]
		toUser = &v
	}
	return &domain.Transaction{
		TransactionID:   rec[0],
		FromUserID:      rec[1],
		ToUserID:        toUser,
		ToAccountNumber: rec[3],
		Amount:          amount,
		Description:     rec[5],
		Status:          rec[6],
		Timestamp:       ts,
	}, nil
}
