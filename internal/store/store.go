/**
 * @description
 * This file defines the record store contract: a generic durable table
 * abstraction over a set of named, fixed-column collections. Every component
 * that persists state does so through this interface, which keeps the
 * business logic independent of whether rows live in CSV files, Postgres, or
 * an in-memory map in tests.
 *
 * All writers must go through Put/Append/Update; nothing may read-modify-write
 * the underlying files directly.
 */

package store

import (
	"context"
	"errors"
)

// Record is one fixed-column row. Its length must equal the owning
// collection's header length; rows that do not are treated as corrupt and
// skipped on read.
type Record []string

// Collection names a logical table, its column header, and which column
// holds the record key.
type Collection struct {
	Name     string
	Header   []string
	KeyIndex int
}

// Key returns the record's key column, or "" for a malformed record.
func (c Collection) Key(rec Record) string {
	if c.KeyIndex >= len(rec) {
		return ""
	}
	return rec[c.KeyIndex]
}

// The four collections the ledger service persists.
var (
	Users = Collection{
		Name: "users",
		Header: []string{
			"user_id", "full_name", "account_number", "balance",
			"daily_limit", "daily_sent_date", "daily_total_sent", "created_at",
		},
		KeyIndex: 0,
	}

	Beneficiaries = Collection{
		Name: "beneficiaries",
		Header: []string{
			"beneficiary_id", "owner_user_id", "name", "account_number", "added_at",
		},
		KeyIndex: 0,
	}

	Transactions = Collection{
		Name: "transactions",
		Header: []string{
			"transaction_id", "from_user_id", "to_user_id", "to_account_number",
			"amount", "description", "status", "timestamp",
		},
		KeyIndex: 0,
	}

	AuditLogs = Collection{
		Name: "audit_logs",
		Header: []string{
			"log_id", "user_id", "action", "details", "timestamp", "request_id",
		},
		KeyIndex: 0,
	}
)

// AllCollections lists every collection a store must provision at startup.
var AllCollections = []Collection{Users, Beneficiaries, Transactions, AuditLogs}

var (
	// ErrNotFound is returned when a key is absent from a collection.
	ErrNotFound = errors.New("record not found")

	// ErrStorageUnavailable wraps I/O failures. Callers may retry appends
	// with backoff; debits are never retried.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// RecordStore is the durable table abstraction. Put, Append and Update must
// flush to stable storage before returning success; the audit trail depends
// on that.
type RecordStore interface {
	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, col Collection, key string) (Record, error)

	// Put upserts the record under key, atomically with respect to every
	// other operation on the same key.
	Put(ctx context.Context, col Collection, key string, rec Record) error

	// Append adds a new record to the collection.
	Append(ctx context.Context, col Collection, rec Record) error

	// Update atomically applies fn to the record stored under key and
	// persists the result. If fn returns an error nothing is written and the
	// error is returned unwrapped, so callers can thread business rejections
	// through the atomic section.
	Update(ctx context.Context, col Collection, key string, fn func(Record) (Record, error)) error

	// Delete removes the record stored under key, or returns ErrNotFound.
	// Only beneficiary rows are ever deleted; transactions and audit logs
	// are append-only by construction.
	Delete(ctx context.Context, col Collection, key string) error

	// Scan visits every non-corrupt record in insertion order until fn
	// returns false. Each call re-reads current state; there is no cursor
	// kept across calls. Corrupt rows are skipped with a warning, never
	// fatal.
	Scan(ctx context.Context, col Collection, fn func(Record) bool) error
}
