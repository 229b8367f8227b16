/**
 * @description
 * CSV implementation of the record store. Each collection lives in one CSV
 * file under a data directory, created with its header if absent at startup.
 * Writes rewrite the file through a temp file, fsync it, and rename it over
 * the original, so a crash mid-write can never corrupt the previous state.
 * Appends write a single row with O_APPEND and fsync before acknowledging.
 *
 * A mutex per collection serializes all access to that file; cross-collection
 * operations proceed in parallel.
 *
 * @dependencies
 * - encoding/csv, os, path/filepath, sync: Standard Go libraries.
 * - log/slog: For corrupt-row warnings.
 */

package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// CSVStore persists each collection as <dir>/<name>.csv.
type CSVStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// NewCSVStore prepares the data directory and creates any missing collection
// file with its documented header.
func NewCSVStore(dir string, logger *slog.Logger, cols []Collection) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrStorageUnavailable, err)
	}

	s := &CSVStore{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex, len(cols)),
	}
	for _, col := range cols {
		s.locks[col.Name] = &sync.Mutex{}
		if err := s.ensureFile(col); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *CSVStore) path(col Collection) string {
	return filepath.Join(s.dir, col.Name+".csv")
}

func (s *CSVStore) lock(col Collection) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[col.Name]
	if !ok {
		// Collections not provisioned at construction get a mutex lazily;
		// this only happens when a caller bypasses NewCSVStore's list.
		mu = &sync.Mutex{}
		s.locks[col.Name] = mu
	}
	return mu
}

func (s *CSVStore) ensureFile(col Collection) error {
	p := s.path(col)
	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: stat %s: %v", ErrStorageUnavailable, p, err)
	}
	return s.writeAll(col, nil)
}

// readAll loads every row of the collection, skipping rows whose column count
// does not match the header.
func (s *CSVStore) readAll(col Collection) ([]Record, error) {
	f, err := os.Open(s.path(col))
	if err != nil {
		if os.IsNotExist(err) {
			// A collection used before its file exists reads as empty; the
			// next write creates the file.
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// First row is the header.
	out := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(col.Header) {
			s.logger.Warn("skipping corrupt record",
				"collection", col.Name, "line", i+2, "columns", len(row))
			continue
		}
		out = append(out, Record(row))
	}
	return out, nil
}

// writeAll rewrites the whole collection file atomically: temp file, fsync,
// rename.
func (s *CSVStore) writeAll(col Collection, recs []Record) error {
	p := s.path(col)
	tmp, err := os.CreateTemp(s.dir, col.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: temp file for %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(col.Header); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write header %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: write row %s: %v", ErrStorageUnavailable, col.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: flush %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	return nil
}

// Get implements RecordStore.
func (s *CSVStore) Get(ctx context.Context, col Collection, key string) (Record, error) {
	mu := s.lock(col)
	mu.Lock()
	defer mu.Unlock()

	recs, err := s.readAll(col)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if col.Key(rec) == key {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// Put implements RecordStore.
func (s *CSVStore) Put(ctx context.Context, col Collection, key string, rec Record) error {
	if len(rec) != len(col.Header) {
		return fmt.Errorf("record for %s has %d columns, header has %d", col.Name, len(rec), len(col.Header))
	}
	mu := s.lock(col)
	mu.Lock()
	defer mu.Unlock()

	recs, err := s.readAll(col)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range recs {
		if col.Key(existing) == key {
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}
	return s.writeAll(col, recs)
}

// Append implements RecordStore. It writes one row to the end of the file
// and fsyncs it so the record is durable before callers are acknowledged.
func (s *CSVStore) Append(ctx context.Context, col Collection, rec Record) error {
	if len(rec) != len(col.Header) {
		return fmt.Errorf("record for %s has %d columns, header has %d", col.Name, len(rec), len(col.Header))
	}
	mu := s.lock(col)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(s.path(col), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s for append: %v", ErrStorageUnavailable, col.Name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrStorageUnavailable, col.Name, err)
	}
	return nil
}

// Update implements RecordStore. The whole read-modify-write happens under
// the collection lock, so no concurrent writer can interleave.
func (s *CSVStore) Update(ctx context.Context, col Collection, key string, fn func(Record) (Record, error)) error {
	mu := s.lock(col)
	mu.Lock()
	defer mu.Unlock()

	recs, err := s.readAll(col)
	if err != nil {
		return err
	}
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
		return s.writeAll(col, recs)
	}
	return ErrNotFound
}

// Delete implements RecordStore.
func (s *CSVStore) Delete(ctx context.Context, col Collection, key string) error {
	mu := s.lock(col)
	mu.Lock()
	defer mu.Unlock()

	recs, err := s.readAll(col)
	if err != nil {
		return err
	}
	for i, rec := range recs {
		if col.Key(rec) == key {
			recs = append(recs[:i], recs[i+1:]...)
			return s.writeAll(col, recs)
		}
	}
	return ErrNotFound
}

// Scan implements RecordStore.
func (s *CSVStore) Scan(ctx context.Context, col Collection, fn func(Record) bool) error {
	mu := s.lock(col)
	mu.Lock()
	recs, err := s.readAll(col)
	mu.Unlock()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

func cloneRecord(rec Record) Record {
	cp := make(Record, len(rec))
	copy(cp, rec)
	return cp
}
