package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"tiffinbill/internal/store"
)

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TIFFIN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TIFFIN_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	s := New(addr, os.Getenv("TIFFIN_TEST_REDIS_PASSWORD"), 0, fmt.Sprintf("tiffin-it-%d:", time.Now().UnixNano()))
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Delete(ctx, "theme", "bills")
		_ = s.Close()
	})

	if _, err := s.Get(ctx, "theme"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "theme", []byte(`"dark"`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "bills", []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, "theme")
	if err != nil || string(got) != `"dark"` {
		t.Fatalf("unexpected value %q (%v)", got, err)
	}
	if err := s.Delete(ctx, "theme", "bills"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "bills"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
