package sqlitekv

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crim50n/falai-paw/pkg/kv"
)

func openTestStore(t *testing.T, options ...Option) *Store {
	t.Helper()
	store, err := Open("", options...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "paw:settings", []byte(`{"flux": {}}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, ok, err := store.Get(ctx, "paw:settings")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false after Set")
	}
	if !bytes.Equal(value, []byte(`{"flux": {}}`)) {
		t.Errorf("Get() = %q", value)
	}

	_, ok, err = store.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if ok {
		t.Error("Get(missing) ok = true")
	}
}

func TestSetReplacesExistingValue(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("Set() replace error = %v", err)
	}

	value, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(value) != "second" {
		t.Errorf("Get() = %q, want second", value)
	}
}

func TestKeysSorted(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"paw:settings", "paw:active-job", "paw:custom-endpoints"} {
		if err := store.Set(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	want := []string{"paw:active-job", "paw:custom-endpoints", "paw:settings"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() second call error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("key still present after Delete")
	}
}

func TestByteBudgetRejectsOversizedWrite(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, WithByteBudget(64))
	ctx := context.Background()

	if err := store.Set(ctx, "small", bytes.Repeat([]byte("a"), 32)); err != nil {
		t.Fatalf("Set(small) error = %v", err)
	}

	err := store.Set(ctx, "big", bytes.Repeat([]byte("b"), 64))
	if !errors.Is(err, kv.ErrQuotaExceeded) {
		t.Fatalf("Set(big) error = %v, want ErrQuotaExceeded", err)
	}

	// The failed write left the store untouched.
	if _, ok, _ := store.Get(ctx, "big"); ok {
		t.Error("rejected value was stored")
	}

	// Rewriting an existing key with a smaller value succeeds: the old row
	// does not count against the budget.
	if err := store.Set(ctx, "small", bytes.Repeat([]byte("c"), 60)); err != nil {
		t.Errorf("Set(small, shrink-fit) error = %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "paw.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Set(ctx, "paw:settings", []byte("persisted")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, "paw:settings")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if !ok || string(value) != "persisted" {
		t.Errorf("Get() after reopen = %q, %v", value, ok)
	}
}
