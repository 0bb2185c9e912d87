package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tiffinbill/internal/store"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tiffin.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	if _, err := s.Get(ctx, "tiffinShopTheme"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "tiffinShopTheme", []byte(`"dark"`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := s.Set(ctx, "tiffinShopTheme", []byte(`"high-contrast"`)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := s.Get(ctx, "tiffinShopTheme")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != `"high-contrast"` {
		t.Fatalf("expected upserted value, got %s", got)
	}
}

func TestSQLiteDeleteMany(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, key, []byte("1")); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := s.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected a deleted, got %v", err)
	}
	if _, err := s.Get(ctx, "c"); err != nil {
		t.Fatalf("expected c to survive, got %v", err)
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("empty delete should be a no-op: %v", err)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tiffin.db")

	first, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, "tiffinShopBills", []byte("[]")); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = first.Close()

	second, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if got, err := second.Get(ctx, "tiffinShopBills"); err != nil || string(got) != "[]" {
		t.Fatalf("expected persisted value, got %q (%v)", got, err)
	}
}
