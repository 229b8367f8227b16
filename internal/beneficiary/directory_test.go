package beneficiary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hamza-sanaullah/Plutus/internal/store"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	st := store.NewMemoryStore(store.AllCollections)
	d := New(st, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Deterministic, strictly increasing clock so added_at ordering is stable
	// at RFC3339 second precision.
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	d.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return d
}

func TestAddAndList(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	first, err := d.Add(ctx, "USR1", "Ali Raza", "1234567890")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if first.BeneficiaryID == "" || first.OwnerUserID != "USR1" {
		t.Fatalf("bad beneficiary: %+v", first)
	}
	if _, err := d.Add(ctx, "USR1", "Bilal Khan", "2234567890"); err != nil {
		t.Fatalf("Add second: %v", err)
	}

	list, err := d.List(ctx, "USR1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Ali Raza" || list[1].Name != "Bilal Khan" {
		t.Fatalf("list wrong or out of order: %+v", list)
	}

	// Other owners see nothing.
	other, err := d.List(ctx, "USR2")
	if err != nil {
		t.Fatalf("List other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("directory leaked across owners: %+v", other)
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if _, err := d.Add(ctx, "USR1", "Ali Raza", "1234567890"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := d.Add(ctx, "USR1", "ali raza", "3334567890"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("case-insensitive duplicate name allowed: %v", err)
	}
	if _, err := d.Add(ctx, "USR1", "Someone Else", "1234567890"); !errors.Is(err, ErrDuplicateAcct) {
		t.Fatalf("duplicate account allowed: %v", err)
	}

	// The same name and account are fine for a different owner.
	if _, err := d.Add(ctx, "USR2", "Ali Raza", "1234567890"); err != nil {
		t.Fatalf("cross-owner add rejected: %v", err)
	}
}

func TestAddConcurrentDuplicates(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	// Racing Adds with the same name must produce exactly one entry.
	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		acct := fmt.Sprintf("12345678%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Add(ctx, "USR1", "Ali Raza", acct)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrDuplicateName) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d adds succeeded, want 1", succeeded)
	}
	list, _ := d.List(ctx, "USR1")
	if len(list) != 1 {
		t.Fatalf("directory holds %d entries, want 1", len(list))
	}
}

func TestRemove(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	b, _ := d.Add(ctx, "USR1", "Ali Raza", "1234567890")

	// Another owner cannot remove or even observe it.
	if err := d.Remove(ctx, "USR2", b.BeneficiaryID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign remove should read as not found, got %v", err)
	}

	if err := d.Remove(ctx, "USR1", b.BeneficiaryID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := d.Remove(ctx, "USR1", b.BeneficiaryID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double remove should be not found, got %v", err)
	}

	list, _ := d.List(ctx, "USR1")
	if len(list) != 0 {
		t.Fatalf("removed beneficiary still listed: %+v", list)
	}
}

func TestSearch(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	_, _ = d.Add(ctx, "USR1", "Ali Raza", "1234567890")
	_, _ = d.Add(ctx, "USR1", "Alina Shah", "2234567890")
	_, _ = d.Add(ctx, "USR1", "Bilal Khan", "3334567890")

	tests := []struct {
		query string
		want  []string
	}{
		{"ali", []string{"Ali Raza", "Alina Shah"}},
		{"ALI", []string{"Ali Raza", "Alina Shah"}},
		{"khan", []string{"Bilal Khan"}},
		{"zz", nil},
	}
	for _, tt := range tests {
		got, err := d.Search(ctx, "USR1", tt.query)
		if err != nil {
			t.Fatalf("Search(%q): %v", tt.query, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Search(%q) = %d matches, want %d", tt.query, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].Name != tt.want[i] {
				t.Fatalf("Search(%q)[%d] = %q, want %q", tt.query, i, got[i].Name, tt.want[i])
			}
		}
	}
}

func TestResolve(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	ali, _ := d.Add(ctx, "USR1", "Ali Raza", "1234567890")
	_, _ = d.Add(ctx, "USR1", "Alina Shah", "2234567890")

	// Exact id wins.
	got, err := d.Resolve(ctx, "USR1", ali.BeneficiaryID)
	if err != nil {
		t.Fatalf("Resolve by id: %v", err)
	}
	if got.AccountNumber != "1234567890" {
		t.Fatalf("resolved wrong entry: %+v", got)
	}

	// Name match falls back to the oldest search hit.
	got, err = d.Resolve(ctx, "USR1", "ali")
	if err != nil {
		t.Fatalf("Resolve by name: %v", err)
	}
	if got.Name != "Ali Raza" {
		t.Fatalf("expected oldest match, got %+v", got)
	}

	// An id owned by someone else does not resolve.
	if _, err := d.Resolve(ctx, "USR2", ali.BeneficiaryID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign id resolved: %v", err)
	}
	if _, err := d.Resolve(ctx, "USR1", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ref resolved: %v", err)
	}
}
