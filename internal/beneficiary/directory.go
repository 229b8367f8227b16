/**
 * @description
 * The beneficiary directory owns the owner-scoped named-recipient mappings
 * used to resolve a human-given name to a destination account number. Every
 * operation is scoped to the owning user; one user's entries are invisible to
 * everyone else.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and persistence contract.
 */

package beneficiary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hamza-sanaullah/Plutus/internal/domain"
	"github.com/hamza-sanaullah/Plutus/internal/store"
)

var (
	ErrNotFound      = errors.New("beneficiary not found")
	ErrDuplicateName = errors.New("beneficiary name already exists")
	ErrDuplicateAcct = errors.New("account number already saved for this owner")
)

// Directory reads and mutates the beneficiaries collection.
type Directory struct {
	store  store.RecordStore
	logger *slog.Logger
	now    func() time.Time

	// addMu serializes Add's duplicate check with its append; without it two
	// concurrent Adds for the same owner could both pass the check.
	addMu sync.Mutex
}

// New returns a directory over the given record store.
func New(st store.RecordStore, logger *slog.Logger) *Directory {
	return &Directory{store: st, logger: logger, now: time.Now}
}

// Add saves a new beneficiary for owner and returns it. A name or account
// number the owner has already saved is rejected; other owners' entries do
// not conflict.
func (d *Directory) Add(ctx context.Context, ownerUserID, name, accountNumber string) (*domain.Beneficiary, error) {
	d.addMu.Lock()
	defer d.addMu.Unlock()

	existing, err := d.List(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	for _, b := range existing {
		if strings.EqualFold(b.Name, name) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		if b.AccountNumber == accountNumber {
			return nil, fmt.Errorf("%w: already saved as %q", ErrDuplicateAcct, b.Name)
		}
	}

	b := &domain.Beneficiary{
		BeneficiaryID: domain.NewBeneficiaryID(),
		OwnerUserID:   ownerUserID,
		Name:          name,
		AccountNumber: accountNumber,
		AddedAt:       d.now().UTC(),
	}
	if err := d.store.Append(ctx, store.Beneficiaries, encodeBeneficiary(b)); err != nil {
		return nil, err
	}
	return b, nil
}

// Remove deletes one of owner's beneficiaries. A beneficiary id that exists
// but belongs to someone else reads as not found, so owners cannot probe each
// other's directories.
func (d *Directory) Remove(ctx context.Context, ownerUserID, beneficiaryID string) error {
	rec, err := d.store.Get(ctx, store.Beneficiaries, beneficiaryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	b, err := decodeBeneficiary(rec)
	if err != nil || b.OwnerUserID != ownerUserID {
		return ErrNotFound
	}
	if err := d.store.Delete(ctx, store.Beneficiaries, beneficiaryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// List returns all of owner's beneficiaries, oldest first.
func (d *Directory) List(ctx context.Context, ownerUserID string) ([]domain.Beneficiary, error) {
	var out []domain.Beneficiary
	err := d.store.Scan(ctx, store.Beneficiaries, func(rec store.Record) bool {
		b, err := decodeBeneficiary(rec)
		if err != nil {
			d.logger.Warn("skipping unreadable beneficiary row", "err", err)
			return true
		}
		if b.OwnerUserID == ownerUserID {
			out = append(out, *b)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

// Search returns owner's beneficiaries whose name contains query,
// case-insensitive, ordered by added_at ascending so repeated queries are
// stable. An empty result is not an error.
func (d *Directory) Search(ctx context.Context, ownerUserID, query string) ([]domain.Beneficiary, error) {
	all, err := d.List(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	var out []domain.Beneficiary
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Name), needle) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Resolve turns a beneficiary id or name into a destination account number.
// Exact id lookup wins; otherwise the oldest search match is used.
func (d *Directory) Resolve(ctx context.Context, ownerUserID, ref string) (*domain.Beneficiary, error) {
	rec, err := d.store.Get(ctx, store.Beneficiaries, ref)
	if err == nil {
		b, decErr := decodeBeneficiary(rec)
		if decErr == nil && b.OwnerUserID == ownerUserID {
			return b, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	matches, err := d.Search(ctx, ownerUserID, ref)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return &matches[0], nil
}

func encodeBeneficiary(b *domain.Beneficiary) store.Record {
	return store.Record{
		b.BeneficiaryID,
		b.OwnerUserID,
		b.Name,
		b.AccountNumber,
		b.AddedAt.UTC().Format(time.RFC3339),
	}
}

func decodeBeneficiary(rec store.Record) (*domain.Beneficiary, error) {
	if len(rec) != len(store.Beneficiaries.Header) {
		return nil, fmt.Errorf("beneficiary record has %d columns, want %d", len(rec), len(store.Beneficiaries.Header))
	}
	addedAt, err := time.Parse(time.RFC3339, rec[4])
	if err != nil {
		return nil, fmt.Errorf("beneficiary %s: bad added_at %q", rec[0], rec[4])
	}
	return &domain.Beneficiary{
		BeneficiaryID: rec[0],
		OwnerUserID:   rec[1],
		Name:          rec[2],
		AccountNumber: rec[3],
		AddedAt:       addedAt,
	}, nil
}
