/**
 * @description
 * In-memory implementation of the record store, used by tests and available
 * as a throwaway backend for local experiments. Semantics mirror the CSV
 * store: per-collection locking, insertion-order scans, atomic Update.
 */

package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps every collection as an ordered slice of records.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]Record
}

// NewMemoryStore returns an empty store covering the given collections.
func NewMemoryStore(cols []Collection) *MemoryStore {
	data := make(map[string][]Record, len(cols))
	for _, col := range cols {
		data[col.Name] = nil
	}
	return &MemoryStore{data: data}
}

// Get implements RecordStore.
func (s *MemoryStore) Get(ctx context.Context, col Collection, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.data[col.Name] {
		if col.Key(rec) == key {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

// Put implements RecordStore.
func (s *MemoryStore) Put(ctx context.Context, col Collection, key string, rec Record) error {
	if len(rec) != len(col.Header) {
		return fmt.Errorf("record for %s has %d columns, header has %d", col.Name, len(rec), len(col.Header))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.data[col.Name]
	for i, existing := range recs {
		if col.Key(existing) == key {
			recs[i] = cloneRecord(rec)
			return nil
		}
	}
	s.data[col.Name] = append(recs, cloneRecord(rec))
	return nil
}

// Append implements RecordStore.
func (s *MemoryStore) Append(ctx context.Context, col Collection, rec Record) error {
	if len(rec) != len(col.Header) {
		return fmt.Errorf("record for %s has %d columns, header has %d", col.Name, len(rec), len(col.Header))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[col.Name] = append(s.data[col.Name], cloneRecord(rec))
	return nil
}

// Update implements RecordStore.
func (s *MemoryStore) Update(ctx context.Context, col Collection, key string, fn func(Record) (Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.data[col.Name]
	for i, rec := range recs {
		if col.Key(rec) != key {
			continue
		}
		updated, err := fn(cloneRecord(rec))
		if err != nil {
			return err
		}
		if len(updated) != len(col.Header) {
			return fmt.Errorf("updated record for %s has %d columns, header has %d", col.Name, len(updated), len(col.Header))
		}
		recs[i] = updated
		return nil
	}
	return ErrNotFound
}

// Delete implements RecordStore.
func (s *MemoryStore) Delete(ctx context.Context, col Collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.data[col.Name]
	for i, rec := range recs {
		if col.Key(rec) == key {
			s.data[col.Name] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Scan implements RecordStore.
func (s *MemoryStore) Scan(ctx context.Context, col Collection, fn func(Record) bool) error {
	s.mu.Lock()
	snapshot := make([]Record, len(s.data[col.Name]))
	for i, rec := range s.data[col.Name] {
		snapshot[i] = cloneRecord(rec)
	}
	s.mu.Unlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}
