/**
 * @description
 * Append-only audit trail. Every mutating action and every sensitive read is
 * recorded here regardless of business outcome; a rejected transfer still
 * leaves a trace. Audit failures are logged but never fail the operation that
 * triggered them, except inside the transfer path where the engine handles
 * retries itself.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and persistence contract.
 */

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hamza-sanaullah/Plutus/internal/domain"
	"github.com/hamza-sanaullah/Plutus/internal/store"
)

// Trail appends entries to the audit_logs collection.
type Trail struct {
	store  store.RecordStore
	logger *slog.Logger
	now    func() time.Time
}

// New returns a trail over the given record store.
func New(st store.RecordStore, logger *slog.Logger) *Trail {
	return &Trail{store: st, logger: logger, now: time.Now}
}

// Record appends one entry and returns it. details is marshaled to JSON; a
// nil map records an empty object.
func (t *Trail) Record(ctx context.Context, userID string, action domain.AuditAction, details map[string]any, requestID string) (*domain.AuditLogEntry, error) {
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal audit details: %w", err)
	}

	entry := &domain.AuditLogEntry{
		LogID:     domain.NewLogID(),
		UserID:    userID,
		Action:    action,
		Details:   string(payload),
		Timestamp: t.now().UTC(),
		RequestID: requestID,
	}
	if err := t.store.Append(ctx, store.AuditLogs, encodeEntry(entry)); err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordBestEffort is Record for paths where audit must not fail the caller:
// sensitive reads and rejection logging. Failures are logged and swallowed.
func (t *Trail) RecordBestEffort(ctx context.Context, userID string, action domain.AuditAction, details map[string]any, requestID string) {
	if _, err := t.Record(ctx, userID, action, details, requestID); err != nil {
		t.logger.Error("audit append failed",
			"user_id", userID, "action", string(action), "request_id", requestID, "err", err)
	}
}

// ForUser returns every entry recorded for userID, oldest first.
func (t *Trail) ForUser(ctx context.Context, userID string) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	err := t.store.Scan(ctx, store.AuditLogs, func(rec store.Record) bool {
		entry, err := decodeEntry(rec)
		if err != nil {
			t.logger.Warn("skipping unreadable audit row", "err", err)
			return true
		}
		if entry.UserID == userID {
			out = append(out, *entry)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func encodeEntry(e *domain.AuditLogEntry) store.Record {
	return store.Record{
		e.LogID,
		e.UserID,
		string(e.Action),
		e.Details,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.RequestID,
	}
}

func decodeEntry(rec store.Record) (*domain.AuditLogEntry, error) {
	if len(rec) != len(store.AuditLogs.Header) {
		return nil, fmt.Errorf("audit record has %d columns, want %d", len(rec), len(store.AuditLogs.Header))
	}
	ts, err := time.Parse(time.RFC3339, rec[4])
	if err != nil {
		return nil, fmt.Errorf("audit %s: bad timestamp %q", rec[0], rec[4])
	}
	return &domain.AuditLogEntry{
		LogID:     rec[0],
		UserID:    rec[1],
		Action:    domain.AuditAction(rec[2]),
		Details:   rec[3],
		Timestamp: ts,
		RequestID: rec[5],
	}, nil
}
