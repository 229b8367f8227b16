/**
 * @description
 * PostgreSQL implementation of the record store. All four collections share
 * one `plutus_records` table keyed by (collection, key); the row payload is a
 * text array matching the collection header. Update runs its read-modify-
 * write inside a transaction with SELECT ... FOR UPDATE, which gives the same
 * per-key atomicity the CSV store gets from its file lock.
 *
 * This backend exists for deployments that outgrow flat files; the contract
 * is identical, so nothing above the store changes.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS plutus_records (
	seq        BIGSERIAL PRIMARY KEY,
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	fields     TEXT[] NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS plutus_records_collection_key
	ON plutus_records (collection, key);
`

// PostgresStore is a RecordStore backed by a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates the records table if needed and returns the store.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, createRecordsTable); err != nil {
		return nil, fmt.Errorf("%w: create records table: %v", ErrStorageUnavailable, err)
	}
	return &PostgresStore{db: db}, nil
}

// Get implements RecordStore.
func (s *PostgresStore) Get(ctx context.Context, col Collection, key string) (Record, error) {
	var fields []string
	err := s.db.QueryRow(ctx,
		`SELECT fields FROM plutus_records WHERE collection = $1 AND key = $2`,
		col.Name, key,
	).Scan(&fields)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s/%s: %v", ErrStorageUnavailable, col.Name, key, err)
	}
	if len(fields) != len(col.Header) {
		return nil, ErrNotFound
	}
	return Record(fields), nil
}

// Put implements RecordStore.
func (s *PostgresStore) Put(ctx context.Context, col Collection, key string, rec Record) error {
	if len(rec) != len(col.Header) {
		return fmt.Errorf("record for %s has %d columns, header has %d", col.Name, len(rec), len(col.Header))
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO plutus_records (collection, key, fields) VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET fields = EXCLUDED.fields`,
		col.Name, key, []string(rec),
	)
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", ErrStorageUnavailable, col.Name, key, err)
	}
	return nil
}

// Append implements RecordStore.
func (s *PostgresStore) Append(ctx context.Context, col Collection, rec Record) error {
	if len(rec) != len(col.Header) {
		return fmt.Errorf("record for %s has %d columns, header has %d", col.Name, len(rec), len(col.Header))
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO plutus_records (collection, key, fields) VALUES ($1, $2, $3)`,
		col.Name, col.Key(rec), []string(rec),
	)
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	return nil
}

// Update implements RecordStore.
func (s *PostgresStore) Update(ctx context.Context, col Collection, key string, fn func(Record) (Record, error)) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin update %s/%s: %v", ErrStorageUnavailable, col.Name, key, err)
	}
	defer tx.Rollback(ctx)

	var fields []string
	err = tx.QueryRow(ctx,
		`SELECT fields FROM plutus_records WHERE collection = $1 AND key = $2 FOR UPDATE`,
		col.Name, key,
	).Scan(&fields)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: lock %s/%s: %v", ErrStorageUnavailable, col.Name, key, err)
	}
	if len(fields) != len(col.Header) {
		return ErrNotFound
	}

	updated, err := fn(Record(fields))
	if err != nil {
		return err
	}
	if len(updated) != len(col.Header) {
		return fmt.Errorf("updated record for %s has %d columns, header has %d", col.Name, len(updated), len(col.Header))
	}

	if _, err := tx.Exec(ctx,
		`UPDATE plutus_records SET fields = $3 WHERE collection = $1 AND key = $2`,
		col.Name, key, []string(updated),
	); err != nil {
		return fmt.Errorf("%w: update %s/%s: %v", ErrStorageUnavailable, col.Name, key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit %s/%s: %v", ErrStorageUnavailable, col.Name, key, err)
	}
	return nil
}

// Delete implements RecordStore.
func (s *PostgresStore) Delete(ctx context.Context, col Collection, key string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM plutus_records WHERE collection = $1 AND key = $2`,
		col.Name, key,
	)
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrStorageUnavailable, col.Name, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Scan implements RecordStore. Rows come back in insertion (seq) order.
func (s *PostgresStore) Scan(ctx context.Context, col Collection, fn func(Record) bool) error {
	rows, err := s.db.Query(ctx,
		`SELECT fields FROM plutus_records WHERE collection = $1 ORDER BY seq`,
		col.Name,
	)
	if err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var fields []string
		if err := rows.Scan(&fields); err != nil {
			return fmt.Errorf("%w: scan row %s: %v", ErrStorageUnavailable, col.Name, err)
		}
		if len(fields) != len(col.Header) {
			continue
		}
		if !fn(Record(fields)) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	return nil
}
